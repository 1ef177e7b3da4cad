package capacity

import (
	"context"
	"errors"
	"fmt"
)

// usedPercent rounds up the way df does, so both probes agree on the same
// filesystem. Reserved root blocks are excluded from the denominator.
func usedPercent(usedBlocks, availBlocks uint64) (int, error) {
	total := usedBlocks + availBlocks
	if total == 0 {
		return 0, errors.New("filesystem reports zero usable blocks")
	}
	return int((usedBlocks*100 + total - 1) / total), nil
}

// New returns the probe registered under name.
func New(name string) (Probe, error) {
	switch name {
	case "", "df":
		return NewDfProbe(), nil
	case "statfs":
		return NewStatfsProbe(), nil
	default:
		return nil, fmt.Errorf("unknown capacity probe %q", name)
	}
}

// Static always reports the same reading.
func Static(percent int) Probe {
	return ProbeFunc(func(ctx context.Context, path string) (int, error) {
		return percent, nil
	})
}
