package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/storage"
)

// EmbeddingText is the text embedded for a record: the title, a blank line,
// then the enrichment summary, falling back to the record's own summary.
func EmbeddingText(record *core.CanonicalRecord, enrichment *core.EnrichmentRecord) string {
	summary := ""
	if enrichment != nil {
		summary = strings.TrimSpace(enrichment.Summary)
	}
	if summary == "" {
		summary = strings.TrimSpace(record.Summary)
	}
	return record.Title + "\n\n" + summary
}

// RefreshEmbedding embeds a record and writes the unit-length vector and its
// timestamp together. Any failure wraps ErrEmbeddingFailed and leaves the
// stored vector unchanged.
func (e *Enricher) RefreshEmbedding(ctx context.Context, recordID core.ID) error {
	if e.embedder == nil {
		return fmt.Errorf("%w: no embedder configured", ErrEmbeddingFailed)
	}

	record, err := e.records.GetRecord(ctx, recordID)
	if err != nil {
		return fmt.Errorf("%w: load record %d: %w", ErrEmbeddingFailed, recordID, err)
	}
	enrichment, err := e.enrichments.GetEnrichment(ctx, recordID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: load enrichment %d: %w", ErrEmbeddingFailed, recordID, err)
	}

	vector, err := e.embedder.EmbedText(ctx, EmbeddingText(record, enrichment))
	if err != nil {
		e.logger.Warn("embedding failed, keeping stored vector", "record", recordID, "err", err)
		return fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: %w: empty vector", ErrEmbeddingFailed, core.ErrMalformedResponse)
	}
	vector = core.NormalizeVector(vector)

	if e.dryRun {
		e.logger.Debug("embedding computed (dry run)", "record", recordID, "dimensions", len(vector))
		return nil
	}
	if err := e.enrichments.SetEmbedding(ctx, recordID, vector, e.now()); err != nil {
		return fmt.Errorf("%w: store: %w", ErrEmbeddingFailed, err)
	}
	e.logger.Debug("embedding stored", "record", recordID, "dimensions", len(vector))
	return nil
}
