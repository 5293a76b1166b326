package metrics

import (
	"net/http"
	"time"

	"s3migrate/internal/progress"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes metrics
type Collector struct {
	registry        *prometheus.Registry
	objectsTotal    *prometheus.CounterVec
	bytesTotal      prometheus.Counter
	partsTotal      prometheus.Counter
	partBytesTotal  prometheus.Counter
	sweepDeleted    *prometheus.CounterVec
	duration        prometheus.Histogram
	progressTracker *progress.Tracker
}

// New creates a new metrics collector with its own registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		objectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "migrate_objects_total",
				Help: "Total number of objects processed",
			},
			[]string{"status"},
		),
		bytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "migrate_bytes_total",
				Help: "Total bytes migrated",
			},
		),
		partsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "migrate_parts_total",
				Help: "Total multipart parts uploaded",
			},
		),
		partBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "migrate_part_bytes_total",
				Help: "Total bytes uploaded as multipart parts",
			},
		),
		sweepDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweep_deleted_total",
				Help: "Total buckets and objects deleted by the sweep tool",
			},
			[]string{"kind"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "migrate_object_duration_seconds",
				Help:    "Time taken to migrate an object",
				Buckets: prometheus.DefBuckets,
			},
		),
		progressTracker: progress.NewTracker(),
	}

	c.registry.MustRegister(c.objectsTotal)
	c.registry.MustRegister(c.bytesTotal)
	c.registry.MustRegister(c.partsTotal)
	c.registry.MustRegister(c.partBytesTotal)
	c.registry.MustRegister(c.sweepDeleted)
	c.registry.MustRegister(c.duration)

	return c
}

// IncSuccessWithBytes counts one migrated object and its payload size
func (c *Collector) IncSuccessWithBytes(bytes int64) {
	c.objectsTotal.WithLabelValues("success").Inc()
	c.bytesTotal.Add(float64(bytes))
	c.progressTracker.AddSuccess(bytes)
}

// IncSkippedWithBytes counts one already-migrated object
func (c *Collector) IncSkippedWithBytes(bytes int64) {
	c.objectsTotal.WithLabelValues("skipped").Inc()
	c.progressTracker.AddSkipped(bytes)
}

// IncFailed counts one object that failed to migrate
func (c *Collector) IncFailed() {
	c.objectsTotal.WithLabelValues("failed").Inc()
	c.progressTracker.AddFailed()
}

// IncPartUploaded counts one uploaded multipart part
func (c *Collector) IncPartUploaded(bytes int64) {
	c.partsTotal.Inc()
	c.partBytesTotal.Add(float64(bytes))
}

// IncSweepObjectDeleted counts one object removed by the sweep tool
func (c *Collector) IncSweepObjectDeleted() {
	c.sweepDeleted.WithLabelValues("object").Inc()
}

// IncSweepBucketDeleted counts one bucket removed by the sweep tool
func (c *Collector) IncSweepBucketDeleted() {
	c.sweepDeleted.WithLabelValues("bucket").Inc()
}

// ObserveDuration observes migration duration
func (c *Collector) ObserveDuration(duration time.Duration) {
	c.duration.Observe(duration.Seconds())
}

// SetTotalCounts sets the total counts for progress tracking
func (c *Collector) SetTotalCounts(objects, bytes int64) {
	c.progressTracker.SetTotal(objects, bytes)
}

// GetProgressTracker returns the progress tracker
func (c *Collector) GetProgressTracker() *progress.Tracker {
	return c.progressTracker
}

// StartServer starts the metrics HTTP server
func (c *Collector) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
