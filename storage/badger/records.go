package badger

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/storage"
)

// RecordRepository implements storage.RecordRepository for BadgerDB.
type RecordRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.RecordRepository = (*RecordRepository)(nil)

// NewRecordRepository creates a new RecordRepository.
func NewRecordRepository(backend *Backend) (*RecordRepository, error) {
	idSeq, err := backend.GetSequence(recordIDSeq)
	if err != nil {
		return nil, err
	}

	return &RecordRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *RecordRepository) Close() error {
	return r.idSeq.Release()
}

// AddRecord stores a new record with a freshly allocated ID.
func (r *RecordRepository) AddRecord(ctx context.Context, record *core.CanonicalRecord) (*core.CanonicalRecord, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if err := r.insertRecord(tx, record); err != nil {
			return err
		}
		return commit(tx)
	}, true)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetRecord retrieves a single record by ID.
func (r *RecordRepository) GetRecord(ctx context.Context, id core.ID) (*core.CanonicalRecord, error) {
	var result *core.CanonicalRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, makeRecordKey(id))
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

// FindByIdentifier returns the lowest-ID record carrying identifier.
func (r *RecordRepository) FindByIdentifier(ctx context.Context, identifier string) (*core.CanonicalRecord, error) {
	value := identifierIndexValue(identifier)
	if value == "" {
		return nil, storage.ErrNotFound
	}

	var result *core.CanonicalRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanIndex(tx, makePartialIndexKey(recordIdentifierPrefix, value), func(id core.ID) (bool, error) {
			record, err := readRecord(tx, makeRecordKey(id))
			if err != nil || record == nil {
				return false, err
			}
			if identifierIndexValue(record.Identifier) != value {
				return false, nil
			}
			result = record
			return true, nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, storage.ErrNotFound
	}
	return result, nil
}

// FindByTitleAndAuthor walks the title index and matches author first names by substring.
func (r *RecordRepository) FindByTitleAndAuthor(ctx context.Context, title, firstName string) (*core.CanonicalRecord, error) {
	normalized := core.NormalizeText(title)
	if normalized == "" {
		return nil, storage.ErrNotFound
	}
	firstName = core.NormalizeText(firstName)

	var result *core.CanonicalRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanIndex(tx, makePartialIndexKey(recordTitlePrefix, normalized), func(id core.ID) (bool, error) {
			record, err := readRecord(tx, makeRecordKey(id))
			if err != nil || record == nil {
				return false, err
			}
			// a title containing the separator can share the scanned prefix
			if core.NormalizeText(record.Title) != normalized {
				return false, nil
			}
			if matchesFirstName(record.Authors, firstName) {
				result = record
				return true, nil
			}
			return false, nil
		})
	}, false)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, storage.ErrNotFound
	}
	return result, nil
}

// SetIdentifier replaces a record's identifier and moves its index entry.
func (r *RecordRepository) SetIdentifier(ctx context.Context, id core.ID, identifier string) (bool, error) {
	changed := false
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeRecordKey(id)
		record, err := readRecord(tx, key)
		if err != nil {
			return err
		}
		if record == nil {
			return storage.ErrNotFound
		}
		if record.Identifier == identifier {
			return nil
		}

		if record.Identifier != "" {
			if err := tx.Delete(makeIdentifierKey(record.Identifier, id)); err != nil {
				return err
			}
		}
		record.Identifier = identifier
		record.UpdatedAt = timestamp()
		if err := tx.Set(key, storage.MarshalRecord(record)); err != nil {
			return err
		}
		if identifier != "" {
			if err := tx.Set(makeIdentifierKey(identifier, id), storage.MarshalID(id)); err != nil {
				return err
			}
		}
		changed = true
		return commit(tx)
	}, true)
	return changed, err
}

// ListRecords iterates records in ID order.
func (r *RecordRepository) ListRecords(ctx context.Context, filter storage.RecordFilter) ([]*core.CanonicalRecord, error) {
	if filter.Limit < 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.CanonicalRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record *core.CanonicalRecord
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalRecord(val)
				return err
			}); err != nil {
				return err
			}
			if filter.UnresolvedOnly && !record.NeedsResolution() {
				continue
			}
			results = append(results, record)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	// Keys are decimal, so iteration order is lexicographic rather than numeric.
	sortRecordsByID(results)
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

// Helper methods

// insertRecord allocates an ID and writes the record with its index entries.
func (r *RecordRepository) insertRecord(tx *badger.Txn, record *core.CanonicalRecord) error {
	nextID, err := r.idSeq.Next()
	if err != nil {
		return err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if nextID == 0 {
		if nextID, err = r.idSeq.Next(); err != nil {
			return err
		}
	}
	record.Id = core.ID(nextID)
	record.InsertedAt = timestamp()
	record.UpdatedAt = record.InsertedAt

	if err := tx.Set(makeRecordKey(record.Id), storage.MarshalRecord(record)); err != nil {
		return err
	}
	if record.Identifier != "" {
		if err := tx.Set(makeIdentifierKey(record.Identifier, record.Id), storage.MarshalID(record.Id)); err != nil {
			return err
		}
	}
	return tx.Set(makeTitleKey(record.Title, record.Id), storage.MarshalID(record.Id))
}

// readRecord reads a record from the transaction. Returns nil, nil when absent.
func readRecord(tx *badger.Txn, key []byte) (*core.CanonicalRecord, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var record *core.CanonicalRecord
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = storage.UnmarshalRecord(val)
		return unmarshalErr
	})
	return record, err
}

// scanIndex calls fn with each record ID stored under prefix until fn returns true.
func scanIndex(tx *badger.Txn, prefix []byte, fn func(id core.ID) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		var id core.ID
		if err := iter.Item().Value(func(val []byte) error {
			var err error
			id, err = storage.UnmarshalID(val)
			return err
		}); err != nil {
			return err
		}
		done, err := fn(id)
		if err != nil || done {
			return err
		}
	}
	return nil
}

func identifierIndexValue(identifier string) string {
	return strings.ToUpper(strings.TrimSpace(identifier))
}

// matchesFirstName reports whether some author's first name contains firstName.
func matchesFirstName(authors []string, firstName string) bool {
	if firstName == "" {
		return true
	}
	for _, author := range authors {
		if strings.Contains(core.FirstName(author), firstName) {
			return true
		}
	}
	return false
}

func sortRecordsByID(records []*core.CanonicalRecord) {
	slices.SortFunc(records, func(a, b *core.CanonicalRecord) int {
		return cmp.Compare(a.Id, b.Id)
	})
}
