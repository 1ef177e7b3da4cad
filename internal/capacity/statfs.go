//go:build linux || darwin

package capacity

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// StatfsProbe asks the kernel directly instead of spawning df.
type StatfsProbe struct{}

func NewStatfsProbe() *StatfsProbe {
	return &StatfsProbe{}
}

func (p *StatfsProbe) UsedPercent(ctx context.Context, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}

	used := uint64(st.Blocks) - uint64(st.Bfree)
	return usedPercent(used, uint64(st.Bavail))
}
