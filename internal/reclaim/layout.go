package reclaim

import "github.com/bmatcuk/doublestar/v4"

// Layout describes one artifact tree shape found directly under a root.
// Depth counts directory levels from the matched child down to the level
// holding files: 1 means files sit in the matched directory itself.
type Layout struct {
	Name    string
	Pattern string
	Depth   int
}

var (
	// ShuffleLayout is root/blockmgr-<id>/<hash-subdir>/<file>.
	ShuffleLayout = Layout{Name: "shuffle", Pattern: "blockmgr*", Depth: 2}
	// CacheLayout is root/spark-<id>/<file>.
	CacheLayout = Layout{Name: "cache", Pattern: "spark*", Depth: 1}
)

// Layouts are visited in this order on every pass.
var Layouts = []Layout{ShuffleLayout, CacheLayout}

func (l Layout) Matches(name string) bool {
	ok, err := doublestar.Match(l.Pattern, name)
	return err == nil && ok
}
