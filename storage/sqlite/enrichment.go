package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/storage"
)

// GetEnrichment retrieves the enrichment row for a record.
func (s *Store) GetEnrichment(ctx context.Context, recordID core.ID) (*core.EnrichmentRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+enrichmentColumns+" FROM enrichment_records WHERE record_id = ?", int64(recordID))
	enrichment, err := scanEnrichment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get enrichment %d: %w", recordID, err)
	}
	return enrichment, nil
}

// UpsertEnrichment writes the text fields. The embedding columns are never touched.
func (s *Store) UpsertEnrichment(ctx context.Context, enrichment *core.EnrichmentRecord) (*core.EnrichmentRecord, error) {
	if err := core.ValidateEnrichmentRecord(enrichment); err != nil {
		return nil, err
	}

	now := timestamp()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO enrichment_records
			(record_id, identifier, preview_url, preview_available, cover_url, summary, tags_json, reading_level, recommendations_json, provenance, inserted_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(record_id) DO UPDATE SET
				identifier = excluded.identifier,
				preview_url = excluded.preview_url,
				preview_available = excluded.preview_available,
				cover_url = excluded.cover_url,
				summary = excluded.summary,
				tags_json = excluded.tags_json,
				reading_level = excluded.reading_level,
				recommendations_json = excluded.recommendations_json,
				provenance = excluded.provenance,
				updated_at = excluded.updated_at`,
			int64(enrichment.RecordId),
			enrichment.Identifier,
			enrichment.PreviewURL,
			enrichment.PreviewAvailable,
			enrichment.CoverURL,
			enrichment.Summary,
			encodeStrings(enrichment.Tags),
			string(enrichment.ReadingLevel),
			encodeRecommendations(enrichment.Recommendations),
			string(enrichment.Provenance),
			formatTime(now),
			formatTime(now),
		)
		if err != nil {
			return fmt.Errorf("upsert enrichment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetEnrichment(ctx, enrichment.RecordId)
}

// SetEmbedding writes the vector and its timestamp in one statement.
func (s *Store) SetEmbedding(ctx context.Context, recordID core.ID, vector []float32, at time.Time) error {
	if recordID == 0 {
		return core.ErrMissingRecordID
	}
	now := formatTime(timestamp())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO enrichment_records
			(record_id, embedding, embedding_updated_at, inserted_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(record_id) DO UPDATE SET
				embedding = excluded.embedding,
				embedding_updated_at = excluded.embedding_updated_at,
				updated_at = excluded.updated_at`,
			int64(recordID),
			encodeVector(vector),
			formatTime(at.Truncate(time.Microsecond)),
			now,
			now,
		)
		if err != nil {
			return fmt.Errorf("set embedding: %w", err)
		}
		return nil
	})
}

// FindSimilar scores every stored embedding against vector.
func (s *Store) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int, exclude ...core.ID) ([]*core.SearchResult, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+enrichmentColumns+" FROM enrichment_records WHERE embedding IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var results []*core.SearchResult
	for rows.Next() {
		enrichment, err := scanEnrichment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrichment: %w", err)
		}
		if !enrichment.HasEmbedding() || slices.Contains(exclude, enrichment.RecordId) {
			continue
		}
		similarity := core.DotProduct(vector, enrichment.Embedding)
		if similarity >= minSimilarity {
			results = append(results, &core.SearchResult{Enrichment: enrichment, Score: similarity})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}

	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
