package capacity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bit2swaz/cache-janitor/internal/logging"
)

// Probe reports how full the filesystem backing path is, as a whole percent.
type Probe interface {
	UsedPercent(ctx context.Context, path string) (int, error)
}

// ProbeFunc adapts a plain function to Probe.
type ProbeFunc func(ctx context.Context, path string) (int, error)

func (f ProbeFunc) UsedPercent(ctx context.Context, path string) (int, error) {
	return f(ctx, path)
}

// Observer receives every successful reading. The metrics recorder
// implements it.
type Observer interface {
	ObserveUsedPercent(root string, percent int)
}

// Checker compares probe readings against the free-space threshold.
type Checker struct {
	probe     Probe
	threshold int
	logger    *slog.Logger
	observer  Observer
}

func NewChecker(probe Probe, freeSpaceThresholdPercent int, logger *slog.Logger, observer Observer) *Checker {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Checker{
		probe:     probe,
		threshold: freeSpaceThresholdPercent,
		logger:    logger,
		observer:  observer,
	}
}

// CheckUsedCapacity reports whether path's filesystem has less free space
// than the threshold, i.e. used% > 100 - threshold. Probe failures are
// returned as errors and never read as "enough space".
func (c *Checker) CheckUsedCapacity(ctx context.Context, path string) (bool, error) {
	used, err := c.probe.UsedPercent(ctx, path)
	if err != nil {
		return false, fmt.Errorf("probe capacity of %s: %w", path, err)
	}

	c.logger.Info("disk usage", "root", path, "used_percent", used, "free_space_threshold", c.threshold)
	if c.observer != nil {
		c.observer.ObserveUsedPercent(path, used)
	}

	return Exceeds(used, c.threshold), nil
}

// Exceeds is the threshold predicate on its own.
func Exceeds(usedPercent, freeSpaceThresholdPercent int) bool {
	return usedPercent > 100-freeSpaceThresholdPercent
}
