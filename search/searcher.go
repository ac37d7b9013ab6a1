package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/poiesic/shelfmark/ai"
	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/storage"
)

const (
	// DefaultMinSimilarity is the cosine similarity below which matches are dropped.
	DefaultMinSimilarity float32 = 0.60

	// titleBoost is added when a title contains every query word.
	titleBoost float32 = 0.3
)

// Searcher finds similar titles over stored embeddings.
type Searcher struct {
	records       storage.RecordRepository
	enrichments   storage.EnrichmentRepository
	embedder      ai.Embedder
	minSimilarity float32
	logger        *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMinSimilarity overrides DefaultMinSimilarity.
func WithMinSimilarity(min float32) Option {
	return func(s *Searcher) error {
		if min < -1 || min > 1 {
			return fmt.Errorf("min similarity must be within [-1, 1], got %v", min)
		}
		s.minSimilarity = min
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	records storage.RecordRepository,
	enrichments storage.EnrichmentRepository,
	embedder ai.Embedder,
	opts ...Option,
) (*Searcher, error) {
	if records == nil {
		return nil, ErrRecordRepositoryRequired
	}
	if enrichments == nil {
		return nil, ErrEnrichmentRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		records:       records,
		enrichments:   enrichments,
		embedder:      embedder,
		minSimilarity: DefaultMinSimilarity,
		logger:        slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// SimilarTo returns up to maxHits records whose embedding is closest to the
// given record's, excluding the record itself.
func (s *Searcher) SimilarTo(ctx context.Context, recordID core.ID, maxHits int) ([]*core.SearchResult, error) {
	reference, err := s.enrichments.GetEnrichment(ctx, recordID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: record %d", ErrNoEmbedding, recordID)
		}
		return nil, err
	}
	if !reference.HasEmbedding() {
		return nil, fmt.Errorf("%w: record %d", ErrNoEmbedding, recordID)
	}

	matches, err := s.enrichments.FindSimilar(ctx, reference.Embedding, s.minSimilarity, maxHits, recordID)
	if err != nil {
		s.logger.Error("error querying for similar records", "err", err)
		return nil, err
	}
	return s.attachRecords(ctx, matches)
}

// Query searches for records similar to free text.
// Returns up to maxHits results, ranked by relevance score.
func (s *Searcher) Query(ctx context.Context, query string, maxHits int) ([]*core.SearchResult, error) {
	return s.QueryWithMonitor(ctx, query, maxHits, nil)
}

// QueryWithMonitor searches for records similar to free text with monitoring.
// The monitor receives callbacks at each stage of the search process.
func (s *Searcher) QueryWithMonitor(ctx context.Context, query string, maxHits int, monitor SearchMonitor) ([]*core.SearchResult, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	monitor.Start(query)

	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}

	matches, err := s.enrichments.FindSimilar(ctx, core.NormalizeVector(embedding), s.minSimilarity, maxHits)
	if err != nil {
		s.logger.Error("error querying for similar records", "err", err)
		return nil, err
	}

	ids := make([]core.ID, 0, len(matches))
	for _, match := range matches {
		ids = append(ids, match.Enrichment.RecordId)
	}
	monitor.AfterSemanticSearch(ids)

	results, err := s.attachRecords(ctx, matches)
	if err != nil {
		return nil, err
	}
	records := make([]*core.CanonicalRecord, len(results))
	for i, result := range results {
		records[i] = result.Record
	}
	monitor.AfterRecordRetrieval(records)

	// Apply verbatim match boost
	for _, result := range results {
		if containsAllQueryWords(result.Record.Title, query) {
			result.Score += titleBoost
			monitor.TitleHit(result.Record)
		}
	}

	// Sort by score descending
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if maxHits > 0 && len(results) > maxHits {
		results = results[:maxHits]
	}
	monitor.Finish(results)

	return results, nil
}

// attachRecords loads the record for each match. Matches whose record has
// since disappeared are dropped.
func (s *Searcher) attachRecords(ctx context.Context, matches []*core.SearchResult) ([]*core.SearchResult, error) {
	results := make([]*core.SearchResult, 0, len(matches))
	for _, match := range matches {
		record, err := s.records.GetRecord(ctx, match.Enrichment.RecordId)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				s.logger.Warn("enrichment without record", "record", match.Enrichment.RecordId)
				continue
			}
			s.logger.Error("error retrieving record", "record", match.Enrichment.RecordId, "err", err)
			return nil, err
		}
		match.Record = record
		results = append(results, match)
	}
	return results, nil
}
