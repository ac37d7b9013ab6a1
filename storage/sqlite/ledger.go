package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/storage"
)

// Lookup retrieves the ledger entry for a fingerprint.
func (s *Store) Lookup(ctx context.Context, fp core.Fingerprint) (*core.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+ledgerColumns+" FROM ledger_entries WHERE fingerprint = ?", string(fp))
	entry, err := scanLedgerEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup ledger entry: %w", err)
	}
	return entry, nil
}

// Record upserts a ledger entry. Done entries are final.
func (s *Store) Record(ctx context.Context, entry *core.LedgerEntry) (*core.LedgerEntry, error) {
	var stored *core.LedgerEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := lookupTx(ctx, tx, entry.Fingerprint)
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

		if _, err := tx.ExecContext(ctx, `INSERT INTO ledger_entries (`+ledgerColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(fingerprint) DO UPDATE SET
				status = excluded.status,
				record_id = excluded.record_id,
				source_url = excluded.source_url,
				attempts = excluded.attempts,
				updated_at = excluded.updated_at`,
			string(next.Fingerprint),
			next.Status.String(),
			nullableID(next.RecordId),
			next.SourceURL,
			next.Attempts,
			formatTime(next.CreatedAt),
			formatTime(next.UpdatedAt),
		); err != nil {
			return fmt.Errorf("upsert ledger entry: %w", err)
		}
		stored = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// CompleteWithRecord inserts record and marks the fingerprint Done in one transaction.
func (s *Store) CompleteWithRecord(ctx context.Context, fp core.Fingerprint, sourceURL string, record *core.CanonicalRecord) (*core.CanonicalRecord, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := lookupTx(ctx, tx, fp)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status == core.LedgerDone {
			return storage.ErrDuplicateKey
		}

		if err := insertRecord(ctx, tx, record); err != nil {
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

		// A racing insert of the same fingerprint fails on the UNIQUE constraint.
		if existing == nil {
			_, err = tx.ExecContext(ctx, "INSERT INTO ledger_entries ("+ledgerColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
				string(fp), entry.Status.String(), int64(entry.RecordId), entry.SourceURL, entry.Attempts,
				formatTime(entry.CreatedAt), formatTime(entry.UpdatedAt))
			if err != nil {
				return fmt.Errorf("insert ledger entry: %w", err)
			}
			return nil
		}

		res, err := tx.ExecContext(ctx, `UPDATE ledger_entries
			SET status = ?, record_id = ?, source_url = ?, attempts = ?, updated_at = ?
			WHERE fingerprint = ? AND status != ?`,
			entry.Status.String(), int64(entry.RecordId), entry.SourceURL, entry.Attempts,
			formatTime(entry.UpdatedAt), string(fp), core.LedgerDone.String())
		if err != nil {
			return fmt.Errorf("complete ledger entry: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return storage.ErrDuplicateKey
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListStale returns Pending entries last updated before cutoff, oldest first.
func (s *Store) ListStale(ctx context.Context, cutoff time.Time) ([]*core.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+ledgerColumns+" FROM ledger_entries WHERE status = ? ORDER BY updated_at",
		core.LedgerPending.String())
	if err != nil {
		return nil, fmt.Errorf("list pending entries: %w", err)
	}
	defer rows.Close()

	var results []*core.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		// RFC3339Nano strings do not sort reliably, so the cutoff is applied here.
		if entry.UpdatedAt.Before(cutoff) {
			results = append(results, entry)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return results, nil
}

// Counts returns the number of entries per status.
func (s *Store) Counts(ctx context.Context) (map[core.LedgerStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM ledger_entries GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count ledger entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[core.LedgerStatus]int)
	for rows.Next() {
		var (
			raw   string
			count int
		)
		if err := rows.Scan(&raw, &count); err != nil {
			return nil, fmt.Errorf("scan ledger count: %w", err)
		}
		status, ok := core.ParseLedgerStatus(raw)
		if !ok {
			return nil, fmt.Errorf("unknown ledger status %q", raw)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger counts: %w", err)
	}
	return counts, nil
}

func lookupTx(ctx context.Context, tx *sql.Tx, fp core.Fingerprint) (*core.LedgerEntry, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+ledgerColumns+" FROM ledger_entries WHERE fingerprint = ?", string(fp))
	entry, err := scanLedgerEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup ledger entry: %w", err)
	}
	return entry, nil
}

func nullableID(id core.ID) any {
	if id == 0 {
		return nil
	}
	return int64(id)
}
