// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/storage"
)

// LedgerRepository implements storage.LedgerRepository for BadgerDB.
// It shares the record repository's ID sequence so CompleteWithRecord can
// create a record in the same transaction that marks the fingerprint Done.
type LedgerRepository struct {
	backend *Backend
	records *RecordRepository
}

var _ storage.LedgerRepository = (*LedgerRepository)(nil)

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(backend *Backend, records *RecordRepository) *LedgerRepository {
	return &LedgerRepository{
		backend: backend,
		records: records,
	}
}

// Close is a no-op; the record repository owns the sequence.
func (r *LedgerRepository) Close() error {
	return nil
}

// Lookup retrieves the entry for a fingerprint.
func (r *LedgerRepository) Lookup(ctx context.Context, fp core.Fingerprint) (*core.LedgerEntry, error) {
	var entry *core.LedgerEntry
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		entry, err = readLedgerEntry(tx, fp)
		if err != nil {
			return err
		}
		if entry == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return entry, err
}

// Record upserts an entry. Done entries are final.
func (r *LedgerRepository) Record(ctx context.Context, entry *core.LedgerEntry) (*core.LedgerEntry, error) {
	var stored *core.LedgerEntry
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := readLedgerEntry(tx, entry.Fingerprint)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status == core.LedgerDone {
			switch {
			case entry.Status != core.LedgerDone:
				return storage.ErrLedgerFinal
			case entry.RecordId != existing.RecordId:
				return storage.ErrDuplicateKey
			}
			stored = existing
			return nil
		}

		next := *entry
		now := timestamp()
		next.CreatedAt = now
		if existing != nil {
			next.CreatedAt = existing.CreatedAt
		}
		next.UpdatedAt = now
		if err := tx.Set(makeLedgerKey(next.Fingerprint), storage.MarshalLedgerEntry(&next)); err != nil {
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

// CompleteWithRecord creates record and links the fingerprint to it in one transaction.
// Concurrent callers that read the same ledger key lose with storage.ErrConflict.
func (r *LedgerRepository) CompleteWithRecord(ctx context.Context, fp core.Fingerprint, sourceURL string, record *core.CanonicalRecord) (*core.CanonicalRecord, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := readLedgerEntry(tx, fp)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status == core.LedgerDone {
			return storage.ErrDuplicateKey
		}

		if err := r.records.insertRecord(tx, record); err != nil {
			return err
		}

		entry := core.LedgerEntry{
			Fingerprint: fp,
			Status:      core.LedgerDone,
			RecordId:    record.Id,
			SourceURL:   sourceURL,
			Attempts:    1,
			CreatedAt:   record.InsertedAt,
			UpdatedAt:   record.InsertedAt,
		}
		if existing != nil {
			entry.CreatedAt = existing.CreatedAt
			entry.Attempts = max(existing.Attempts, 1)
			if sourceURL == "" {
				entry.SourceURL = existing.SourceURL
			}
		}
		if err := tx.Set(makeLedgerKey(fp), storage.MarshalLedgerEntry(&entry)); err != nil {
			return err
		}
		return commit(tx)
	}, true)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListStale returns Pending entries last updated before cutoff.
func (r *LedgerRepository) ListStale(ctx context.Context, cutoff time.Time) ([]*core.LedgerEntry, error) {
	var results []*core.LedgerEntry
	err := r.forEach(func(entry *core.LedgerEntry) {
		if entry.Status == core.LedgerPending && entry.UpdatedAt.Before(cutoff) {
			results = append(results, entry)
		}
	})
	return results, err
}

// Counts tallies entries per status.
func (r *LedgerRepository) Counts(ctx context.Context) (map[core.LedgerStatus]int, error) {
	counts := make(map[core.LedgerStatus]int)
	err := r.forEach(func(entry *core.LedgerEntry) {
		counts[entry.Status]++
	})
	return counts, err
}

func (r *LedgerRepository) forEach(fn func(entry *core.LedgerEntry)) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(ledgerPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				entry, err := storage.UnmarshalLedgerEntry(val)
				if err != nil {
					return err
				}
				fn(entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// readLedgerEntry reads an entry from the transaction. Returns nil, nil when absent.
func readLedgerEntry(tx *badger.Txn, fp core.Fingerprint) (*core.LedgerEntry, error) {
	item, err := tx.Get(makeLedgerKey(fp))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var entry *core.LedgerEntry
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		entry, unmarshalErr = storage.UnmarshalLedgerEntry(val)
		return unmarshalErr
	})
	return entry, err
}
