package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder owns a private registry so several janitors (or tests) in one
// process never collide. The zero value is not usable; use New.
type Recorder struct {
	registry *prometheus.Registry

	FilesDeleted       *prometheus.CounterVec
	DirsDeleted        *prometheus.CounterVec
	BytesFreed         *prometheus.CounterVec
	DeleteFailures     *prometheus.CounterVec
	PassDuration       *prometheus.HistogramVec
	DiskUsedPercent    *prometheus.GaugeVec
	DeepCleans         *prometheus.CounterVec
	DeepCleanExhausted *prometheus.CounterVec
	Iterations         prometheus.Counter
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		FilesDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "janitor_files_deleted_total",
			Help: "Files removed by reclaim passes.",
		}, []string{"root", "tier"}),
		DirsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "janitor_dirs_deleted_total",
			Help: "Empty directories pruned by reclaim passes.",
		}, []string{"root", "tier"}),
		BytesFreed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "janitor_bytes_freed_total",
			Help: "Bytes released by deleted files.",
		}, []string{"root", "tier"}),
		DeleteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "janitor_delete_failures_total",
			Help: "File or directory deletions that failed and were skipped.",
		}, []string{"root", "tier"}),
		PassDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "janitor_reclaim_duration_seconds",
			Help:    "Wall time of a single reclaim pass.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"root", "tier"}),
		DiskUsedPercent: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "janitor_disk_used_percent",
			Help: "Last used-space percentage reported for the filesystem holding a root.",
		}, []string{"root"}),
		DeepCleans: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "janitor_deep_cleans_total",
			Help: "Deep-clean passes dispatched because free space was below threshold.",
		}, []string{"root"}),
		DeepCleanExhausted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "janitor_deep_clean_insufficient_total",
			Help: "Iterations where usage stayed over threshold after a deep clean.",
		}, []string{"root"}),
		Iterations: factory.NewCounter(prometheus.CounterOpts{
			Name: "janitor_iterations_total",
			Help: "Completed scheduling iterations.",
		}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveUsedPercent satisfies capacity.Observer.
func (r *Recorder) ObserveUsedPercent(root string, percent int) {
	r.DiskUsedPercent.WithLabelValues(root).Set(float64(percent))
}

// ObservePass records the outcome of one reclaim pass.
func (r *Recorder) ObservePass(root, tier string, files, dirs, bytes, failures int64, took time.Duration) {
	r.FilesDeleted.WithLabelValues(root, tier).Add(float64(files))
	r.DirsDeleted.WithLabelValues(root, tier).Add(float64(dirs))
	r.BytesFreed.WithLabelValues(root, tier).Add(float64(bytes))
	r.DeleteFailures.WithLabelValues(root, tier).Add(float64(failures))
	r.PassDuration.WithLabelValues(root, tier).Observe(took.Seconds())
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
// The write goes through a temp file and rename, so the collector never
// sees a partial file.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
