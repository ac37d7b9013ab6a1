package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/shelfmark/ai"
	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/retry"
	"github.com/poiesic/shelfmark/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of records to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per batch
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Filter narrows the records visited. The zero value visits every record.
	Filter storage.RecordFilter

	// MissingOnly skips records that already have a stored vector
	MissingOnly bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// policy retries transient embedding failures only.
func (c *Config) policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: max(c.MaxRetries, 1),
		BaseDelay:   c.RetryDelay,
		MaxDelay:    8 * c.RetryDelay,
		Retryable:   retry.IsTransient,
	}
}

// Reembedder orchestrates the reembedding of all records in a catalog.
type Reembedder struct {
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *RecordIterator
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(records storage.RecordRepository, enrichments storage.EnrichmentRepository, embedder ai.Embedder, config *Config, progress io.Writer) *Reembedder {
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(enrichments, embedder, config.policy()).SkipEmbedded(config.MissingOnly),
		iterator:  NewRecordIterator(records, config.Filter, config.BatchSize),
	}
}

// Run re-embeds every record with the configured embedder.
// A failing batch does not stop the pass; Run returns the per-record
// failures joined together once every batch has been attempted.
func (r *Reembedder) Run(ctx context.Context) error {
	totalRecords, err := r.iterator.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to query records: %w", err)
	}
	if totalRecords == 0 {
		fmt.Fprintf(r.progress, "No records found in catalog (0 records)\n")
		return nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d records (batch size: %d)\n",
		totalRecords, r.iterator.batchSize)

	tracker := NewProgressTracker(r.progress, totalRecords, r.config.ReportInterval)
	tracker.Start()

	var failures []error
	err = r.iterator.ForEach(ctx, func(records []*core.CanonicalRecord) error {
		result := r.processor.Process(ctx, records)
		for _, failure := range result.Failures {
			failures = append(failures, failure)
		}
		tracker.Add(result)
		return nil
	})
	if err != nil {
		return errors.Join(append(failures, err)...)
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	tally := tracker.Tally()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d records (%d refreshed, %d skipped, %d failed) in %v (%.1f records/sec)\n",
		tally.Processed(), tally.Refreshed, tally.Skipped, tally.Failed,
		elapsed.Round(time.Second), float64(tally.Processed())/elapsed.Seconds())

	return errors.Join(failures...)
}
