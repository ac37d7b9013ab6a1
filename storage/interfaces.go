package storage

import (
	"context"
	"time"

	"github.com/poiesic/shelfmark/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Close releases resources held by the repository.
	Close() error
}

// RecordFilter narrows ListRecords.
type RecordFilter struct {
	// UnresolvedOnly returns only records whose identifier still needs resolution.
	UnresolvedOnly bool

	// Limit caps the number of records returned. Zero means no limit.
	Limit int
}

// RecordRepository provides operations for managing canonical records.
type RecordRepository interface {
	Repository

	// AddRecord stores a new record, assigning its ID and timestamps.
	// Returns the record with generated fields populated.
	AddRecord(ctx context.Context, record *core.CanonicalRecord) (*core.CanonicalRecord, error)

	// GetRecord retrieves a record by ID.
	// Returns ErrNotFound if the record doesn't exist.
	GetRecord(ctx context.Context, id core.ID) (*core.CanonicalRecord, error)

	// FindByIdentifier finds a record whose identifier equals identifier, ignoring case.
	// Returns ErrNotFound if no record matches.
	FindByIdentifier(ctx context.Context, identifier string) (*core.CanonicalRecord, error)

	// FindByTitleAndAuthor finds a record whose title equals title ignoring case and
	// where some author's first name contains firstName ignoring case. An empty
	// firstName matches on title alone.
	// Returns ErrNotFound if no record matches.
	FindByTitleAndAuthor(ctx context.Context, title, firstName string) (*core.CanonicalRecord, error)

	// SetIdentifier replaces a record's identifier.
	// Returns false without writing when the stored value is already identifier.
	// Returns ErrNotFound if the record doesn't exist.
	SetIdentifier(ctx context.Context, id core.ID, identifier string) (bool, error)

	// ListRecords returns records ordered by ID.
	ListRecords(ctx context.Context, filter RecordFilter) ([]*core.CanonicalRecord, error)
}

// LedgerRepository tracks ingestion attempts keyed by fingerprint.
type LedgerRepository interface {
	Repository

	// Lookup retrieves the entry for a fingerprint.
	// Returns ErrNotFound if the fingerprint has never been recorded.
	Lookup(ctx context.Context, fp core.Fingerprint) (*core.LedgerEntry, error)

	// Record upserts the entry keyed by its fingerprint and returns the stored value.
	// A Done entry never changes status again: recording a Done entry over a Done
	// entry linked to the same record is a no-op, a different link returns
	// ErrDuplicateKey and any other status returns ErrLedgerFinal.
	Record(ctx context.Context, entry *core.LedgerEntry) (*core.LedgerEntry, error)

	// CompleteWithRecord creates record and marks the fingerprint Done, linked to it,
	// in a single transaction. Returns ErrDuplicateKey if the fingerprint is already Done.
	CompleteWithRecord(ctx context.Context, fp core.Fingerprint, sourceURL string, record *core.CanonicalRecord) (*core.CanonicalRecord, error)

	// ListStale returns Pending entries last updated before cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]*core.LedgerEntry, error)

	// Counts returns the number of entries per status.
	Counts(ctx context.Context) (map[core.LedgerStatus]int, error)
}

// EnrichmentRepository manages the enrichment cached per canonical record.
type EnrichmentRepository interface {
	Repository

	// GetEnrichment retrieves the enrichment for a record.
	// Returns ErrNotFound if the record has not been enriched.
	GetEnrichment(ctx context.Context, recordID core.ID) (*core.EnrichmentRecord, error)

	// UpsertEnrichment creates or overwrites the text fields of a record's enrichment.
	// The stored embedding and its timestamp are left untouched.
	UpsertEnrichment(ctx context.Context, enrichment *core.EnrichmentRecord) (*core.EnrichmentRecord, error)

	// SetEmbedding writes the vector and its timestamp together, creating the
	// enrichment row if it does not exist yet.
	SetEmbedding(ctx context.Context, recordID core.ID, vector []float32, at time.Time) error

	// FindSimilar finds enrichments whose embedding is similar to vector.
	// Returns matches with similarity >= minSimilarity, highest first, up to limit,
	// skipping the record IDs in exclude. Result records carry only Enrichment.
	FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int, exclude ...core.ID) ([]*core.SearchResult, error)
}
