package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/storage"
)

// AddRecord inserts a new record and assigns its ID and timestamps.
func (s *Store) AddRecord(ctx context.Context, record *core.CanonicalRecord) (*core.CanonicalRecord, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return insertRecord(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// GetRecord retrieves a record by ID.
func (s *Store) GetRecord(ctx context.Context, id core.ID) (*core.CanonicalRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM canonical_records WHERE id = ?", int64(id))
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record %d: %w", id, err)
	}
	return record, nil
}

// FindByIdentifier returns the lowest-ID record carrying identifier, ignoring case.
func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*core.CanonicalRecord, error) {
	key := identifierKey(identifier)
	if key == "" {
		return nil, storage.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM canonical_records WHERE identifier_key = ? ORDER BY id LIMIT 1", key)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find by identifier: %w", err)
	}
	return record, nil
}

// FindByTitleAndAuthor matches the normalized title exactly and an author's
// first name by substring.
func (s *Store) FindByTitleAndAuthor(ctx context.Context, title, firstName string) (*core.CanonicalRecord, error) {
	key := core.NormalizeText(title)
	if key == "" {
		return nil, storage.ErrNotFound
	}
	firstName = core.NormalizeText(firstName)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM canonical_records WHERE title_key = ? ORDER BY id", key)
	if err != nil {
		return nil, fmt.Errorf("find by title: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if matchesFirstName(record.Authors, firstName) {
			return record, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return nil, storage.ErrNotFound
}

// SetIdentifier replaces a record's identifier, reporting whether a write happened.
func (s *Store) SetIdentifier(ctx context.Context, id core.ID, identifier string) (bool, error) {
	changed := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, "SELECT identifier FROM canonical_records WHERE id = ?", int64(id)).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("read identifier: %w", err)
		}
		if current == identifier {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE canonical_records SET identifier = ?, identifier_key = ?, updated_at = ? WHERE id = ?",
			identifier, identifierKey(identifier), formatTime(timestamp()), int64(id)); err != nil {
			return fmt.Errorf("update identifier: %w", err)
		}
		changed = true
		return nil
	})
	return changed, err
}

// ListRecords returns records ordered by ID.
func (s *Store) ListRecords(ctx context.Context, filter storage.RecordFilter) ([]*core.CanonicalRecord, error) {
	if filter.Limit < 0 {
		return nil, storage.ErrInvalidQuery
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+recordColumns+" FROM canonical_records ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var results []*core.CanonicalRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if filter.UnresolvedOnly && !record.NeedsResolution() {
			continue
		}
		results = append(results, record)
		if filter.Limit > 0 && len(results) == filter.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return results, nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, record *core.CanonicalRecord) error {
	record.InsertedAt = timestamp()
	record.UpdatedAt = record.InsertedAt

	res, err := tx.ExecContext(ctx, `INSERT INTO canonical_records
		(title, title_key, authors_json, identifier, identifier_key, work_key, language, summary, genres_json, cover_url, publish_year, inserted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Title,
		core.NormalizeText(record.Title),
		encodeStrings(record.Authors),
		record.Identifier,
		identifierKey(record.Identifier),
		record.WorkKey,
		record.Language,
		record.Summary,
		encodeStrings(record.Genres),
		record.CoverURL,
		record.PublishYear,
		formatTime(record.InsertedAt),
		formatTime(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("record id: %w", err)
	}
	record.Id = core.ID(id)
	return nil
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
