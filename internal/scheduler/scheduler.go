package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/bit2swaz/cache-janitor/internal/config"
	"github.com/bit2swaz/cache-janitor/internal/logging"
	"github.com/bit2swaz/cache-janitor/internal/metrics"
	"github.com/bit2swaz/cache-janitor/internal/reclaim"
)

// ErrInvalidRoot means a configured root is missing or not a directory.
// The process treats it as fatal.
var ErrInvalidRoot = errors.New("invalid cache directory")

type Tier string

const (
	TierNormal Tier = "normal"
	TierDeep   Tier = "deep"
)

type Reclaimer interface {
	Reclaim(root string, expiry time.Duration) reclaim.Result
}

type CapacityChecker interface {
	CheckUsedCapacity(ctx context.Context, path string) (bool, error)
}

type Submitter interface {
	Submit(task func()) error
}

// Scheduler drives the fixed-interval reclaim loop. Reclaim passes run on the
// pool; capacity checks run synchronously on the caller's goroutine.
type Scheduler struct {
	roots        []string
	normalExpiry time.Duration
	deepExpiry   time.Duration
	interval     time.Duration

	reclaimer Reclaimer
	checker   CapacityChecker
	pool      Submitter
	logger    *slog.Logger

	metrics         *metrics.Recorder
	metricsTextfile string

	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Scheduler)

// WithMetrics records pass outcomes on rec and, when textfile is set,
// rewrites it at the end of every iteration.
func WithMetrics(rec *metrics.Recorder, textfile string) Option {
	return func(s *Scheduler) {
		s.metrics = rec
		s.metricsTextfile = textfile
	}
}

// WithSleep replaces the wait between iterations.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) {
		s.sleep = sleep
	}
}

func New(cfg *config.Config, reclaimer Reclaimer, checker CapacityChecker, pool Submitter, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Scheduler{
		roots:        append([]string(nil), cfg.RootDirectories...),
		normalExpiry: cfg.NormalExpiry,
		deepExpiry:   cfg.DeepExpiry,
		interval:     cfg.PollInterval,
		reclaimer:    reclaimer,
		checker:      checker,
		pool:         pool,
		logger:       logger,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run repeats RunOnce every interval until ctx is cancelled, which returns
// nil, or an iteration fails, which returns that error. A failure caused by
// the cancellation itself, such as a killed df, counts as cancellation.
// Passes already handed to the pool keep running either way; draining is the
// pool owner's job.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("iteration interrupted by shutdown", "error", err)
				return nil
			}
			return err
		}
		if err := s.sleep(ctx, s.interval); err != nil {
			return nil
		}
	}
}

// RunOnce dispatches one round of work for every root in configuration order.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	for _, root := range s.roots {
		if err := ValidateRoot(root); err != nil {
			return err
		}

		if err := s.dispatch(root, TierNormal, s.normalExpiry); err != nil {
			return err
		}

		over, err := s.checker.CheckUsedCapacity(ctx, root)
		if err != nil {
			return err
		}
		if !over {
			continue
		}

		s.logger.Info("free space below threshold, starting deep clean", "root", root, "expiry", s.deepExpiry)
		if s.metrics != nil {
			s.metrics.DeepCleans.WithLabelValues(root).Inc()
		}
		if err := s.dispatch(root, TierDeep, s.deepExpiry); err != nil {
			return err
		}

		over, err = s.checker.CheckUsedCapacity(ctx, root)
		if err != nil {
			return err
		}
		if over {
			s.logger.Warn("deep clean did not free enough space", "root", root)
			if s.metrics != nil {
				s.metrics.DeepCleanExhausted.WithLabelValues(root).Inc()
			}
		}
	}

	if s.metrics != nil {
		s.metrics.Iterations.Inc()
		if s.metricsTextfile != "" {
			if err := s.metrics.WriteTextfile(s.metricsTextfile); err != nil {
				s.logger.Warn("flush metrics failed", "error", err)
			}
		}
	}
	return nil
}

func (s *Scheduler) dispatch(root string, tier Tier, expiry time.Duration) error {
	err := s.pool.Submit(func() {
		start := time.Now()
		res := s.reclaimer.Reclaim(root, expiry)
		if s.metrics != nil {
			s.metrics.ObservePass(root, string(tier), res.FilesRemoved, res.DirsRemoved, res.BytesFreed, res.Failures, time.Since(start))
		}
	})
	if err != nil {
		return fmt.Errorf("submit %s reclaim of %s: %w", tier, root, err)
	}
	s.logger.Debug("reclaim pass queued", "root", root, "tier", tier, "expiry", expiry)
	return nil
}

// ValidateRoot fails unless root exists and is a directory.
func ValidateRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s does not exist", ErrInvalidRoot, root)
		}
		return fmt.Errorf("%w: stat %s: %v", ErrInvalidRoot, root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
