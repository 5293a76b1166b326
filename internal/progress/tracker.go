package progress

import (
	"fmt"
	"sync"
	"time"
)

// Status is a point-in-time snapshot of migration progress.
type Status struct {
	TotalObjects     int64
	ProcessedObjects int64
	SuccessObjects   int64
	FailedObjects    int64
	SkippedObjects   int64
	TotalBytes       int64
	ProcessedBytes   int64
	BucketsDone      int64
	StartTime        time.Time
	LastUpdateTime   time.Time
	CurrentSpeed     float64 // bytes/second over the recent window
	AverageSpeed     float64 // bytes/second since start
	ETA              time.Duration
}

// Tracker tracks migration progress across buckets
type Tracker struct {
	mu           sync.RWMutex
	status       Status
	speedSamples []speedSample
	maxSamples   int
}

type speedSample struct {
	timestamp time.Time
	bytes     int64
}

// NewTracker creates a new progress tracker
func NewTracker() *Tracker {
	now := time.Now()
	return &Tracker{
		status: Status{
			StartTime:      now,
			LastUpdateTime: now,
		},
		speedSamples: make([]speedSample, 0, 60),
		maxSamples:   60,
	}
}

// SetTotal sets the total number of objects and bytes for this run. May
// be called per bucket; totals accumulate.
func (t *Tracker) SetTotal(objects, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.TotalObjects += objects
	t.status.TotalBytes += bytes
}

// AddSuccess counts one migrated object
func (t *Tracker) AddSuccess(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.SuccessObjects++
	t.status.ProcessedObjects++
	t.status.ProcessedBytes += bytes
	t.recordSample(bytes)
}

// AddSkipped counts one object already present at the destination
func (t *Tracker) AddSkipped(bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.SkippedObjects++
	t.status.ProcessedObjects++
	t.status.ProcessedBytes += bytes
	t.recordSample(bytes)
}

// AddFailed counts one object that could not be migrated
func (t *Tracker) AddFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.FailedObjects++
	t.status.ProcessedObjects++
}

// BucketDone counts one fully processed bucket
func (t *Tracker) BucketDone() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.BucketsDone++
}

// recordSample must be called with the lock held
func (t *Tracker) recordSample(bytes int64) {
	now := time.Now()

	t.speedSamples = append(t.speedSamples, speedSample{timestamp: now, bytes: bytes})
	if len(t.speedSamples) > t.maxSamples {
		t.speedSamples = t.speedSamples[1:]
	}

	t.status.CurrentSpeed = t.recentSpeed(now)

	if elapsed := now.Sub(t.status.StartTime); elapsed > 0 {
		t.status.AverageSpeed = float64(t.status.ProcessedBytes) / elapsed.Seconds()
	}

	t.status.ETA = t.estimateRemaining()
	t.status.LastUpdateTime = now
}

// recentSpeed computes throughput over the last five seconds of samples
func (t *Tracker) recentSpeed(now time.Time) float64 {
	if len(t.speedSamples) < 2 {
		return 0
	}

	cutoff := now.Add(-5 * time.Second)
	var recentBytes int64
	var oldest time.Time

	for i := len(t.speedSamples) - 1; i >= 0; i-- {
		sample := t.speedSamples[i]
		if sample.timestamp.Before(cutoff) {
			break
		}
		recentBytes += sample.bytes
		oldest = sample.timestamp
	}

	if oldest.IsZero() {
		return 0
	}
	window := now.Sub(oldest)
	if window <= 0 {
		return 0
	}
	return float64(recentBytes) / window.Seconds()
}

func (t *Tracker) estimateRemaining() time.Duration {
	if t.status.TotalBytes == 0 || t.status.AverageSpeed == 0 {
		return 0
	}

	remaining := t.status.TotalBytes - t.status.ProcessedBytes
	if remaining <= 0 {
		return 0
	}

	return time.Duration(float64(remaining)/t.status.AverageSpeed) * time.Second
}

// GetStatus returns the current status snapshot
func (t *Tracker) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.status
}

// ObjectPercent returns the object-count progress percentage
func (t *Tracker) ObjectPercent() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.status.TotalObjects == 0 {
		return 0
	}
	return float64(t.status.ProcessedObjects) / float64(t.status.TotalObjects) * 100
}

// BytesPercent returns the byte-count progress percentage
func (t *Tracker) BytesPercent() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.status.TotalBytes == 0 {
		return 0
	}
	return float64(t.status.ProcessedBytes) / float64(t.status.TotalBytes) * 100
}

// FormatSpeed formats speed in human readable form
func FormatSpeed(bytesPerSecond float64) string {
	switch {
	case bytesPerSecond < 1024:
		return fmt.Sprintf("%.1f B/s", bytesPerSecond)
	case bytesPerSecond < 1024*1024:
		return fmt.Sprintf("%.1f KB/s", bytesPerSecond/1024)
	case bytesPerSecond < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB/s", bytesPerSecond/(1024*1024))
	default:
		return fmt.Sprintf("%.1f GB/s", bytesPerSecond/(1024*1024*1024))
	}
}

// FormatBytes formats a byte count in human readable form
func FormatBytes(bytes int64) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	case bytes < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	default:
		return fmt.Sprintf("%.1f GB", float64(bytes)/(1024*1024*1024))
	}
}

// FormatDuration formats a duration as 1h2m3s style
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "n/a"
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
