package progress

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Display renders the tracker state to the terminal on an interval.
type Display struct {
	tracker  *Tracker
	interval time.Duration
	stopCh   chan struct{}
}

// NewDisplay creates a new progress display
func NewDisplay(tracker *Tracker, interval time.Duration) *Display {
	return &Display{
		tracker:  tracker,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the display loop
func (d *Display) Start() {
	go d.loop()
}

// Stop stops the display loop and prints the final summary
func (d *Display) Stop() {
	close(d.stopCh)
}

func (d *Display) loop() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.render()
		case <-d.stopCh:
			d.renderFinal()
			return
		}
	}
}

func (d *Display) render() {
	status := d.tracker.GetStatus()

	lines := []string{
		"",
		fmt.Sprintf("objects  %d/%d (%.1f%%)  %s",
			status.ProcessedObjects, status.TotalObjects, d.tracker.ObjectPercent(),
			bar(d.tracker.ObjectPercent(), 30)),
		fmt.Sprintf("bytes    %s/%s (%.1f%%)  %s",
			FormatBytes(status.ProcessedBytes), FormatBytes(status.TotalBytes), d.tracker.BytesPercent(),
			bar(d.tracker.BytesPercent(), 30)),
		fmt.Sprintf("ok %d  failed %d  skipped %d  buckets %d",
			status.SuccessObjects, status.FailedObjects, status.SkippedObjects, status.BucketsDone),
		fmt.Sprintf("speed %s (avg %s)  elapsed %s  eta %s",
			FormatSpeed(status.CurrentSpeed), FormatSpeed(status.AverageSpeed),
			FormatDuration(time.Since(status.StartTime)), FormatDuration(status.ETA)),
	}

	fmt.Println(strings.Join(lines, "\n"))
}

func (d *Display) renderFinal() {
	status := d.tracker.GetStatus()
	elapsed := time.Since(status.StartTime)

	lines := []string{
		"",
		"migration summary",
		strings.Repeat("-", 40),
		fmt.Sprintf("processed: %d objects, %s", status.ProcessedObjects, FormatBytes(status.ProcessedBytes)),
		fmt.Sprintf("ok %d  failed %d  skipped %d  buckets %d",
			status.SuccessObjects, status.FailedObjects, status.SkippedObjects, status.BucketsDone),
		fmt.Sprintf("elapsed %s, avg %s", FormatDuration(elapsed), FormatSpeed(status.AverageSpeed)),
		"",
	}

	fmt.Println(strings.Join(lines, "\n"))
}

func bar(percent float64, width int) string {
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}

	filled := int(percent * float64(width) / 100)
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

// IsTerminalSupported reports whether stdout is a terminal
func IsTerminalSupported() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
