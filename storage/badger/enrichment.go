package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/storage"
)

// EnrichmentRepository implements storage.EnrichmentRepository for BadgerDB.
type EnrichmentRepository struct {
	backend *Backend
}

var _ storage.EnrichmentRepository = (*EnrichmentRepository)(nil)

// NewEnrichmentRepository creates a new EnrichmentRepository.
func NewEnrichmentRepository(backend *Backend) *EnrichmentRepository {
	return &EnrichmentRepository{backend: backend}
}

// Close is a no-op.
func (r *EnrichmentRepository) Close() error {
	return nil
}

// GetEnrichment retrieves the enrichment for a record.
func (r *EnrichmentRepository) GetEnrichment(ctx context.Context, recordID core.ID) (*core.EnrichmentRecord, error) {
	var result *core.EnrichmentRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readEnrichment(tx, recordID)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// UpsertEnrichment writes the text fields, carrying over the stored embedding.
func (r *EnrichmentRepository) UpsertEnrichment(ctx context.Context, enrichment *core.EnrichmentRecord) (*core.EnrichmentRecord, error) {
	if err := core.ValidateEnrichmentRecord(enrichment); err != nil {
		return nil, err
	}

	var stored *core.EnrichmentRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := readEnrichment(tx, enrichment.RecordId)
		if err != nil {
			return err
		}

		next := *enrichment
		now := timestamp()
		next.InsertedAt = now
		next.Embedding = nil
		next.EmbeddingUpdatedAt = time.Time{}
		if existing != nil {
			next.InsertedAt = existing.InsertedAt
			next.Embedding = existing.Embedding
			next.EmbeddingUpdatedAt = existing.EmbeddingUpdatedAt
		}
		next.UpdatedAt = now

		if err := tx.Set(makeEnrichmentKey(next.RecordId), storage.MarshalEnrichment(&next)); err != nil {
			return err
		}
		stored = &next
		return commit(tx)
	}, true)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// SetEmbedding writes vector and timestamp together.
func (r *EnrichmentRepository) SetEmbedding(ctx context.Context, recordID core.ID, vector []float32, at time.Time) error {
	if recordID == 0 {
		return core.ErrMissingRecordID
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := readEnrichment(tx, recordID)
		if err != nil {
			return err
		}
		if existing == nil {
			existing = &core.EnrichmentRecord{
				RecordId:   recordID,
				InsertedAt: timestamp(),
			}
		}
		existing.Embedding = vector
		existing.EmbeddingUpdatedAt = at.UTC().Truncate(time.Microsecond)
		existing.UpdatedAt = timestamp()

		if err := tx.Set(makeEnrichmentKey(recordID), storage.MarshalEnrichment(existing)); err != nil {
			return err
		}
		return commit(tx)
	}, true)
}

// FindSimilar delegates to the backend.
func (r *EnrichmentRepository) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int, exclude ...core.ID) ([]*core.SearchResult, error) {
	return r.backend.FindSimilar(ctx, vector, minSimilarity, limit, exclude...)
}

// readEnrichment reads an enrichment from the transaction. Returns nil, nil when absent.
func readEnrichment(tx *badger.Txn, recordID core.ID) (*core.EnrichmentRecord, error) {
	item, err := tx.Get(makeEnrichmentKey(recordID))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var enrichment *core.EnrichmentRecord
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		enrichment, unmarshalErr = storage.UnmarshalEnrichment(val)
		return unmarshalErr
	})
	return enrichment, err
}
