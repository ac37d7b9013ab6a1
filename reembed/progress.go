package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Tally counts record outcomes of a reembedding pass.
type Tally struct {
	Refreshed int
	Skipped   int
	Failed    int
}

// Processed is the number of records settled so far, whatever the outcome.
func (t Tally) Processed() int {
	return t.Refreshed + t.Skipped + t.Failed
}

func (t *Tally) add(result *BatchResult) {
	t.Refreshed += result.Refreshed
	t.Skipped += result.Skipped
	t.Failed += len(result.Failures)
}

// ProgressTracker writes a running tally of a reembedding pass to a writer,
// at most once per reportInterval records.
type ProgressTracker struct {
	mu             sync.Mutex
	writer         io.Writer
	total          int
	reportInterval int
	tally          Tally
	lastReported   int
	startTime      time.Time
	started        bool
}

// NewProgressTracker creates a tracker for total records.
func NewProgressTracker(writer io.Writer, total, reportInterval int) *ProgressTracker {
	return &ProgressTracker{
		writer:         writer,
		total:          total,
		reportInterval: max(reportInterval, 1),
	}
}

// Start resets the tally and the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startTime = time.Now()
	p.started = true
	p.tally = Tally{}
	p.lastReported = 0
}

// Add folds one batch into the tally. Ignored before Start.
func (p *ProgressTracker) Add(result *BatchResult) {
	if result == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.tally.add(result)
	if done := p.processed(); done-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = done
	}
}

// Tally returns the counts so far.
func (p *ProgressTracker) Tally() Tally {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tally
}

// Finish writes the final line. Records never reached are not counted.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.report()
	fmt.Fprintln(p.writer)
}

// Elapsed returns the time since Start, or zero before it.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

func (p *ProgressTracker) processed() int {
	return min(p.tally.Processed(), p.total)
}

// report must be called with the lock held.
func (p *ProgressTracker) report() {
	done := p.processed()
	percentage := 0.0
	if p.total > 0 {
		percentage = float64(done) / float64(p.total) * 100.0
	}
	rate := float64(done) / time.Since(p.startTime).Seconds()

	fmt.Fprintf(p.writer, "\rRecords: %d/%d (%.1f%%) refreshed %d, skipped %d, failed %d - %.1f records/s",
		done, p.total, percentage, p.tally.Refreshed, p.tally.Skipped, p.tally.Failed, rate)
}
