package reembed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/shelfmark/ai"
	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/enrichment"
	"github.com/poiesic/shelfmark/retry"
	"github.com/poiesic/shelfmark/storage"
)

// RecordError is a failure to refresh one record's embedding.
type RecordError struct {
	RecordId core.ID
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.RecordId, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// BatchResult settles every record of one batch: refreshed, skipped or failed.
type BatchResult struct {
	Refreshed int
	Skipped   int
	Failures  []*RecordError
}

// BatchProcessor handles embedding generation for batches of records.
type BatchProcessor struct {
	enrichments  storage.EnrichmentRepository
	embedder     ai.Embedder
	policy       retry.Policy
	skipEmbedded bool
	now          func() time.Time
}

// NewBatchProcessor creates a new batch processor. Embedding calls are
// retried per policy.
func NewBatchProcessor(enrichments storage.EnrichmentRepository, embedder ai.Embedder, policy retry.Policy) *BatchProcessor {
	return &BatchProcessor{
		enrichments: enrichments,
		embedder:    embedder,
		policy:      policy,
		now:         time.Now,
	}
}

// SkipEmbedded makes Process leave records that already carry a vector alone.
func (bp *BatchProcessor) SkipEmbedded(skip bool) *BatchProcessor {
	bp.skipEmbedded = skip
	return bp
}

// Process embeds a batch of records and stores the normalized vectors.
// Every record lands in exactly one of the result's counts; stored vectors
// of failed records are left as they were.
func (bp *BatchProcessor) Process(ctx context.Context, records []*core.CanonicalRecord) *BatchResult {
	result := &BatchResult{}

	pending := make([]*core.CanonicalRecord, 0, len(records))
	texts := make([]string, 0, len(records))
	for _, record := range records {
		existing, err := bp.enrichments.GetEnrichment(ctx, record.Id)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return &BatchResult{Failures: failAll(records, fmt.Errorf("load enrichment: %w", err))}
		}
		if bp.skipEmbedded && existing != nil && existing.HasEmbedding() {
			result.Skipped++
			continue
		}
		pending = append(pending, record)
		texts = append(texts, enrichment.EmbeddingText(record, existing))
	}
	if len(pending) == 0 {
		return result
	}

	// Generate embeddings with retry
	var embeddings [][]float32
	attempts, err := retry.Do(ctx, bp.policy, func(ctx context.Context, _ int) error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	})
	if err != nil {
		result.Failures = failAll(pending, fmt.Errorf("%w after %d attempts: %w", enrichment.ErrEmbeddingFailed, attempts, err))
		return result
	}

	if len(embeddings) != len(pending) {
		result.Failures = failAll(pending, fmt.Errorf("%w: %w: expected %d vectors, got %d",
			enrichment.ErrEmbeddingFailed, core.ErrMalformedResponse, len(pending), len(embeddings)))
		return result
	}

	at := bp.now()
	for i, record := range pending {
		if len(embeddings[i]) == 0 {
			result.Failures = append(result.Failures, &RecordError{RecordId: record.Id,
				Err: fmt.Errorf("%w: %w: empty vector", enrichment.ErrEmbeddingFailed, core.ErrMalformedResponse)})
			continue
		}
		if err := bp.enrichments.SetEmbedding(ctx, record.Id, core.NormalizeVector(embeddings[i]), at); err != nil {
			result.Failures = append(result.Failures, &RecordError{RecordId: record.Id, Err: fmt.Errorf("store embedding: %w", err)})
			continue
		}
		result.Refreshed++
	}
	return result
}

func failAll(records []*core.CanonicalRecord, err error) []*RecordError {
	failures := make([]*RecordError, len(records))
	for i, record := range records {
		failures[i] = &RecordError{RecordId: record.Id, Err: err}
	}
	return failures
}
