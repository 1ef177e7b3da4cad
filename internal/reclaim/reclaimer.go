package reclaim

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bit2swaz/cache-janitor/internal/logging"
)

// Result tallies what one pass did.
type Result struct {
	FilesRemoved int64
	DirsRemoved  int64
	BytesFreed   int64
	Failures     int64
}

// Reclaimer deletes stale artifacts under a root and prunes the directories
// it empties. It holds no state between passes, so concurrent passes over
// the same root are safe.
type Reclaimer struct {
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Reclaimer)

// WithClock overrides the wall clock used by the staleness check.
func WithClock(now func() time.Time) Option {
	return func(r *Reclaimer) {
		r.now = now
	}
}

func New(logger *slog.Logger, opts ...Option) *Reclaimer {
	if logger == nil {
		logger = logging.Discard()
	}
	r := &Reclaimer{logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reclaim runs one pass over root: every file under a recognised layout whose
// age exceeds expiry is deleted, then emptied directories are removed bottom
// up. Individual failures are logged and counted, never returned.
func (r *Reclaimer) Reclaim(root string, expiry time.Duration) Result {
	start := r.now()
	var res Result

	entries, err := os.ReadDir(root)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			res.Failures++
		}
		r.logger.Warn("list root directory failed", "root", root, "error", err)
		return res
	}

	for _, layout := range Layouts {
		for _, entry := range entries {
			if !entry.IsDir() || !layout.Matches(entry.Name()) {
				continue
			}
			r.reclaimTree(filepath.Join(root, entry.Name()), layout.Depth, start, expiry, &res)
		}
	}

	r.logger.Info("reclaim pass complete",
		"root", root,
		"expiry", expiry,
		"files_deleted", res.FilesRemoved,
		"dirs_deleted", res.DirsRemoved,
		"freed", humanize.IBytes(uint64(res.BytesFreed)),
		"failures", res.Failures,
		"duration", r.now().Sub(start),
	)
	return res
}

// PruneEmpty removes dir only if it has no entries. A directory that is
// already gone, or that gained an entry in the meantime, is left alone
// without error.
func (r *Reclaimer) PruneEmpty(dir string) (bool, error) {
	empty, err := isEmpty(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if !empty {
		return false, nil
	}

	if err := os.Remove(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *Reclaimer) reclaimTree(dir string, depth int, now time.Time, expiry time.Duration, res *Result) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("list directory failed", "dir", dir, "error", err)
			res.Failures++
		}
		return
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if depth > 1 {
			if entry.IsDir() {
				r.reclaimTree(path, depth-1, now, expiry, res)
			}
			continue
		}
		if !entry.IsDir() {
			r.removeIfStale(path, entry, now, expiry, res)
		}
	}

	removed, err := r.PruneEmpty(dir)
	if err != nil {
		r.logger.Warn("delete directory failed", "dir", dir, "error", err)
		res.Failures++
		return
	}
	if removed {
		r.logger.Debug("deleted empty directory", "dir", dir)
		res.DirsRemoved++
	}
}

func (r *Reclaimer) removeIfStale(path string, entry fs.DirEntry, now time.Time, expiry time.Duration, res *Result) {
	info, err := entry.Info()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			r.logger.Warn("stat file failed", "file", path, "error", err)
			res.Failures++
		}
		return
	}
	if !Stale(info.ModTime(), now, expiry) {
		return
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		r.logger.Warn("delete file failed", "file", path, "error", err)
		res.Failures++
		return
	}

	r.logger.Debug("deleted file", "file", path, "size", info.Size(), "modified", info.ModTime())
	res.FilesRemoved++
	res.BytesFreed += info.Size()
}

// Stale compares at millisecond resolution; a file exactly expiry old is kept.
func Stale(modified, now time.Time, expiry time.Duration) bool {
	return now.UnixMilli()-modified.UnixMilli() > expiry.Milliseconds()
}

func isEmpty(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}
