package reclaim

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

var fixedNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func newTestReclaimer(t *testing.T) (*Reclaimer, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(logger, WithClock(func() time.Time { return fixedNow })), &buf
}

func writeFile(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))
	mtime := fixedNow.Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestReclaimShuffleLayoutRemovesStaleTree(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "blockmgr-1", "ab", "shuffle_0_0.data")
	writeFile(t, file, 10*day)

	r, _ := newTestReclaimer(t)
	res := r.Reclaim(root, 7*day)

	assert.NoFileExists(t, file)
	assert.NoDirExists(t, filepath.Join(root, "blockmgr-1", "ab"))
	assert.NoDirExists(t, filepath.Join(root, "blockmgr-1"))
	assert.DirExists(t, root)

	assert.Equal(t, int64(1), res.FilesRemoved)
	assert.Equal(t, int64(2), res.DirsRemoved)
	assert.Equal(t, int64(len("payload")), res.BytesFreed)
	assert.Zero(t, res.Failures)
}

func TestReclaimCacheLayoutKeepsFreshFile(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "spark-cache", "tmpfile")
	writeFile(t, file, time.Hour)

	before, err := os.Stat(file)
	require.NoError(t, err)

	r, _ := newTestReclaimer(t)
	res := r.Reclaim(root, 7*day)

	after, err := os.Stat(file)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
	assert.DirExists(t, filepath.Join(root, "spark-cache"))
	assert.Equal(t, Result{}, res)
}

func TestReclaimMixedAgesKeepsPartiallyFilledDirs(t *testing.T) {
	root := t.TempDir()
	staleShuffle := filepath.Join(root, "blockmgr-2", "0c", "shuffle_1_0.index")
	freshShuffle := filepath.Join(root, "blockmgr-2", "0c", "shuffle_1_1.index")
	otherStale := filepath.Join(root, "blockmgr-2", "1f", "shuffle_2_0.data")
	staleCache := filepath.Join(root, "spark-abc", "broadcast_0")
	freshCache := filepath.Join(root, "spark-abc", "broadcast_1")

	writeFile(t, staleShuffle, 8*day)
	writeFile(t, freshShuffle, day)
	writeFile(t, otherStale, 30*day)
	writeFile(t, staleCache, 9*day)
	writeFile(t, freshCache, 2*day)

	r, _ := newTestReclaimer(t)
	res := r.Reclaim(root, 7*day)

	assert.NoFileExists(t, staleShuffle)
	assert.FileExists(t, freshShuffle)
	assert.NoFileExists(t, otherStale)
	assert.NoDirExists(t, filepath.Join(root, "blockmgr-2", "1f"))
	assert.DirExists(t, filepath.Join(root, "blockmgr-2", "0c"))
	assert.NoFileExists(t, staleCache)
	assert.FileExists(t, freshCache)
	assert.DirExists(t, filepath.Join(root, "spark-abc"))

	assert.Equal(t, int64(3), res.FilesRemoved)
	assert.Equal(t, int64(1), res.DirsRemoved)
}

func TestReclaimBoundaryAgeIsRetained(t *testing.T) {
	root := t.TempDir()
	exact := filepath.Join(root, "spark-x", "exact")
	older := filepath.Join(root, "spark-x", "older")
	writeFile(t, exact, 7*day)
	writeFile(t, older, 7*day+time.Millisecond)

	r, _ := newTestReclaimer(t)
	r.Reclaim(root, 7*day)

	assert.FileExists(t, exact)
	assert.NoFileExists(t, older)
}

func TestReclaimIgnoresUnrecognisedEntries(t *testing.T) {
	root := t.TempDir()
	paths := []string{
		filepath.Join(root, "executor-logs", "stderr"),
		filepath.Join(root, "tmp", "blockmgr-nested", "ab", "x"),
		filepath.Join(root, "Spark-upper", "file"),
	}
	for _, p := range paths {
		writeFile(t, p, 100*day)
	}
	looseFile := filepath.Join(root, "spark-not-a-dir")
	writeFile(t, looseFile, 100*day)
	emptyOther := filepath.Join(root, "empty-other")
	require.NoError(t, os.Mkdir(emptyOther, 0o755))

	r, _ := newTestReclaimer(t)
	res := r.Reclaim(root, day)

	for _, p := range paths {
		assert.FileExists(t, p)
	}
	assert.FileExists(t, looseFile)
	assert.DirExists(t, emptyOther)
	assert.Equal(t, Result{}, res)
}

func TestReclaimLeavesFilesAtUnexpectedDepth(t *testing.T) {
	root := t.TempDir()
	topLevel := filepath.Join(root, "blockmgr-3", "stray")
	nested := filepath.Join(root, "spark-y", "sub", "deep")
	writeFile(t, topLevel, 100*day)
	writeFile(t, nested, 100*day)

	r, _ := newTestReclaimer(t)
	r.Reclaim(root, day)

	assert.FileExists(t, topLevel)
	assert.FileExists(t, nested)
}

func TestReclaimIsIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "blockmgr-1", "ab", "old"), 10*day)
	writeFile(t, filepath.Join(root, "blockmgr-1", "cd", "new"), time.Minute)
	writeFile(t, filepath.Join(root, "spark-1", "old"), 10*day)

	r, _ := newTestReclaimer(t)
	first := r.Reclaim(root, 7*day)
	require.Equal(t, int64(2), first.FilesRemoved)

	snapshot := listTree(t, root)
	second := r.Reclaim(root, 7*day)

	assert.Equal(t, Result{}, second)
	assert.Equal(t, snapshot, listTree(t, root))
}

func TestReclaimEmptyLayoutDirsArePruned(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "blockmgr-9", "00"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "spark-9"), 0o755))

	r, _ := newTestReclaimer(t)
	res := r.Reclaim(root, 7*day)

	assert.NoDirExists(t, filepath.Join(root, "blockmgr-9"))
	assert.NoDirExists(t, filepath.Join(root, "spark-9"))
	assert.Equal(t, int64(3), res.DirsRemoved)
}

func TestReclaimMissingRootIsTolerated(t *testing.T) {
	r, buf := newTestReclaimer(t)
	res := r.Reclaim(filepath.Join(t.TempDir(), "gone"), day)

	assert.Equal(t, Result{}, res)
	assert.Contains(t, buf.String(), "list root directory failed")
}

func TestReclaimLogsAndContinuesOnDeleteFailure(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}

	root := t.TempDir()
	locked := filepath.Join(root, "spark-locked")
	lockedFile := filepath.Join(locked, "old")
	other := filepath.Join(root, "spark-open", "old")
	writeFile(t, lockedFile, 10*day)
	writeFile(t, other, 10*day)

	require.NoError(t, os.Chmod(locked, 0o555))
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	r, buf := newTestReclaimer(t)
	res := r.Reclaim(root, day)

	assert.FileExists(t, lockedFile)
	assert.NoFileExists(t, other)
	assert.Equal(t, int64(1), res.FilesRemoved)
	assert.Equal(t, int64(1), res.Failures)
	assert.Contains(t, buf.String(), "delete file failed")
	assert.Contains(t, buf.String(), "level=WARN")
}

func TestReclaimSummaryLine(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "spark-1", "old"), 10*day)

	r, buf := newTestReclaimer(t)
	r.Reclaim(root, 7*day)

	out := buf.String()
	assert.Contains(t, out, "reclaim pass complete")
	assert.Contains(t, out, "files_deleted=1")
	assert.Contains(t, out, "freed=\"7 B\"")
}

func TestReclaimConcurrentPassesOverSameRoot(t *testing.T) {
	const passes = 4

	for iteration := 0; iteration < 5; iteration++ {
		root := t.TempDir()
		total := 0
		for b := 0; b < 4; b++ {
			for h := 0; h < 5; h++ {
				for f := 0; f < 8; f++ {
					writeFile(t, filepath.Join(root, fmt.Sprintf("blockmgr-%d", b), fmt.Sprintf("%02x", h), fmt.Sprintf("shuffle_%d_%d.data", h, f)), 10*day)
					total++
				}
			}
		}
		for c := 0; c < 3; c++ {
			for f := 0; f < 20; f++ {
				writeFile(t, filepath.Join(root, fmt.Sprintf("spark-%d", c), fmt.Sprintf("broadcast_%d", f)), 10*day)
				total++
			}
		}

		r, _ := newTestReclaimer(t)
		results := make([]Result, passes)
		var wg sync.WaitGroup
		for i := 0; i < passes; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				expiry := 7 * day
				if i%2 == 1 {
					expiry = 5 * day
				}
				results[i] = r.Reclaim(root, expiry)
			}(i)
		}
		wg.Wait()

		var files, failures int64
		for _, res := range results {
			files += res.FilesRemoved
			failures += res.Failures
		}
		assert.Zero(t, failures)
		assert.Equal(t, int64(total), files)
		assert.Empty(t, listTree(t, root)[1:])
	}
}

func TestPruneEmpty(t *testing.T) {
	r, _ := newTestReclaimer(t)

	empty := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.Mkdir(empty, 0o755))

	removed, err := r.PruneEmpty(empty)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoDirExists(t, empty)

	removed, err = r.PruneEmpty(empty)
	require.NoError(t, err)
	assert.False(t, removed)

	full := t.TempDir()
	writeFile(t, filepath.Join(full, "keep"), 0)
	removed, err = r.PruneEmpty(full)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.FileExists(t, filepath.Join(full, "keep"))
}

func TestStale(t *testing.T) {
	assert.False(t, Stale(fixedNow, fixedNow, 0))
	assert.True(t, Stale(fixedNow.Add(-time.Millisecond), fixedNow, 0))
	assert.False(t, Stale(fixedNow.Add(-time.Hour), fixedNow, time.Hour))
	assert.True(t, Stale(fixedNow.Add(-time.Hour-time.Millisecond), fixedNow, time.Hour))
	assert.False(t, Stale(fixedNow.Add(time.Hour), fixedNow, 0))
}

func TestLayoutMatches(t *testing.T) {
	assert.True(t, ShuffleLayout.Matches("blockmgr-7f1c"))
	assert.True(t, ShuffleLayout.Matches("blockmgr"))
	assert.False(t, ShuffleLayout.Matches("spark-1"))
	assert.True(t, CacheLayout.Matches("spark-4c3d"))
	assert.False(t, CacheLayout.Matches("xspark"))
	assert.False(t, CacheLayout.Matches("Spark-1"))
}

func listTree(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, rel)
		return nil
	})
	require.NoError(t, err)
	return out
}
