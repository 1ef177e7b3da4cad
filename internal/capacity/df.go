package capacity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// CommandRunner runs an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// DfProbe shells out to `df -P`, whose POSIX output format is stable across
// coreutils, busybox and BSD.
type DfProbe struct {
	run CommandRunner
}

func NewDfProbe() *DfProbe {
	return &DfProbe{run: execCommand}
}

func NewDfProbeWithRunner(run CommandRunner) *DfProbe {
	return &DfProbe{run: run}
}

func (p *DfProbe) UsedPercent(ctx context.Context, path string) (int, error) {
	out, err := p.run(ctx, "df", "-P", path)
	if err != nil {
		return 0, fmt.Errorf("run df: %w", err)
	}
	return parseDfOutput(out)
}

// parseDfOutput reads the capacity column of the last data row. The mount
// point may contain spaces, so the column is located as the first field after
// the filesystem name that ends in '%'.
func parseDfOutput(out []byte) (int, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("parse df output: expected header and data row, got %q", string(out))
	}

	fields := strings.Fields(lines[len(lines)-1])
	for _, field := range fields[1:] {
		if !strings.HasSuffix(field, "%") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(field, "%"))
		if err != nil {
			return 0, fmt.Errorf("parse df capacity %q: %w", field, err)
		}
		if n < 0 || n > 100 {
			return 0, fmt.Errorf("parse df capacity %q: out of range", field)
		}
		return n, nil
	}

	return 0, fmt.Errorf("parse df output: no capacity column in %q", lines[len(lines)-1])
}

func execCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s exited with code %d: %s", name, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}
	return out, nil
}
