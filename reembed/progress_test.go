package reembed

import (
	"bytes"
	"strings"
	"testing"

	"github.com/poiesic/shelfmark/core"
	"github.com/stretchr/testify/assert"
)

func batch(refreshed, skipped, failed int) *BatchResult {
	result := &BatchResult{Refreshed: refreshed, Skipped: skipped}
	for i := range failed {
		result.Failures = append(result.Failures, &RecordError{RecordId: core.ID(i + 1)})
	}
	return result
}

func TestProgressTracker_Tally(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 10, 5)
	tracker.Start()

	tracker.Add(batch(2, 1, 0))
	tracker.Add(batch(3, 0, 2))

	tally := tracker.Tally()
	assert.Equal(t, Tally{Refreshed: 5, Skipped: 1, Failed: 2}, tally)
	assert.Equal(t, 8, tally.Processed())
	assert.Contains(t, buf.String(), "8/10 (80.0%) refreshed 5, skipped 1, failed 2")
}

func TestProgressTracker_ReportInterval(t *testing.T) {
	tests := []struct {
		name       string
		interval   int
		batches    []*BatchResult
		wantReport bool
	}{
		{"under interval", 10, []*BatchResult{batch(4, 0, 0), batch(3, 0, 0)}, false},
		{"reaches interval", 10, []*BatchResult{batch(6, 0, 0), batch(2, 1, 1)}, true},
		{"failures count toward interval", 3, []*BatchResult{batch(0, 0, 3)}, true},
		{"non-positive interval reports every batch", 0, []*BatchResult{batch(1, 0, 0)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tracker := NewProgressTracker(&buf, 100, tt.interval)
			tracker.Start()
			for _, b := range tt.batches {
				tracker.Add(b)
			}
			assert.Equal(t, tt.wantReport, strings.Contains(buf.String(), "Records:"))
		})
	}
}

func TestProgressTracker_Finish(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 4, 100)
	tracker.Start()
	tracker.Add(batch(1, 1, 0))
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "2/4 (50.0%)", "unreached records are not counted")
	assert.Contains(t, output, "records/s")
	assert.True(t, strings.HasSuffix(output, "\n"))
}

func TestProgressTracker_CapsAtTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 3, 1)
	tracker.Start()
	tracker.Add(batch(5, 0, 0))

	assert.Contains(t, buf.String(), "3/3 (100.0%)")
	assert.Equal(t, 5, tracker.Tally().Refreshed)
}

func TestProgressTracker_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 0, 10)
	tracker.Start()
	tracker.Finish()

	assert.Contains(t, buf.String(), "0/0 (0.0%)")
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 10, 1)

	tracker.Add(batch(3, 0, 1))
	tracker.Add(nil)
	tracker.Finish()

	assert.Empty(t, buf.String())
	assert.Zero(t, tracker.Tally().Processed())
	assert.Zero(t, tracker.Elapsed())
}
