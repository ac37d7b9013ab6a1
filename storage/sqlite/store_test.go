package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/storage"
	"github.com/poiesic/shelfmark/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "shelfmark.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storagetest.Repositories {
		store := openTestStore(t)
		return storagetest.Repositories{Records: store, Ledger: store, Enrichments: store}
	})
}

func TestOpen_CreatesDirectoryAndMigratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "shelfmark.db")
	ctx := context.Background()

	store, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = store.AddRecord(ctx, &core.CanonicalRecord{Title: "Dune"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	var versions int
	require.NoError(t, store.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 1, versions)

	records, err := store.ListRecords(ctx, storage.RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestLedgerFingerprintIsUnique(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx, "INSERT INTO ledger_entries ("+ledgerColumns+") VALUES ('fp', 'pending', NULL, '', 1, ?, ?)",
		formatTime(timestamp()), formatTime(timestamp()))
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx, "INSERT INTO ledger_entries ("+ledgerColumns+") VALUES ('fp', 'pending', NULL, '', 1, ?, ?)",
		formatTime(timestamp()), formatTime(timestamp()))
	require.Error(t, err)
	assert.ErrorIs(t, mapError(err), storage.ErrDuplicateKey)
}

func TestEnrichmentRecordIsUnique(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	record, err := store.AddRecord(ctx, &core.CanonicalRecord{Title: "Dune"})
	require.NoError(t, err)

	insert := "INSERT INTO enrichment_records (record_id, inserted_at, updated_at) VALUES (?, ?, ?)"
	_, err = store.db.ExecContext(ctx, insert, int64(record.Id), formatTime(timestamp()), formatTime(timestamp()))
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, insert, int64(record.Id), formatTime(timestamp()), formatTime(timestamp()))
	assert.True(t, isUniqueViolation(err))
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0.25, -1.5, 3}
	decoded, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, decoded)

	decoded, err = decodeVector(nil)
	require.NoError(t, err)
	assert.Nil(t, decoded)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
