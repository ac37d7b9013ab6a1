package reembed

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/storage"
	"github.com/poiesic/shelfmark/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRepos struct {
	records     storage.RecordRepository
	enrichments storage.EnrichmentRepository
}

// setupTestDB creates in-memory repositories for testing.
func setupTestDB(t *testing.T) *testRepos {
	t.Helper()
	records, ledger, enrichments, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		enrichments.Close()
		ledger.Close()
		records.Close()
		backend.Close()
	})
	return &testRepos{records: records, enrichments: enrichments}
}

// addRecords stores n records titled "Book 0".."Book n-1".
func (r *testRepos) addRecords(t *testing.T, n int) []*core.CanonicalRecord {
	t.Helper()
	added := make([]*core.CanonicalRecord, 0, n)
	for i := range n {
		rec, err := r.records.AddRecord(context.Background(), &core.CanonicalRecord{
			Title:   fmt.Sprintf("Book %d", i),
			Authors: []string{"Test Author"},
			WorkKey: fmt.Sprintf("OL%dW", i+1),
			Summary: fmt.Sprintf("Summary of book %d", i),
		})
		require.NoError(t, err)
		added = append(added, rec)
	}
	return added
}

func TestRecordIterator_Basic(t *testing.T) {
	repos := setupTestDB(t)
	repos.addRecords(t, 10)

	iterator := NewRecordIterator(repos.records, storage.RecordFilter{}, 3)

	count, err := iterator.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	var batchSizes []int
	seen := make(map[core.ID]bool)
	err = iterator.ForEach(context.Background(), func(batch []*core.CanonicalRecord) error {
		batchSizes = append(batchSizes, len(batch))
		for _, rec := range batch {
			seen[rec.Id] = true
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{3, 3, 3, 1}, batchSizes)
	assert.Len(t, seen, 10, "every record should be visited once")
}

func TestRecordIterator_BatchSizes(t *testing.T) {
	tests := []struct {
		name       string
		records    int
		batchSize  int
		wantBatchs int
	}{
		{"exact multiple", 10, 5, 2},
		{"single batch", 4, 10, 1},
		{"batch of one", 3, 1, 3},
		{"remainder", 7, 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repos := setupTestDB(t)
			repos.addRecords(t, tt.records)

			iterator := NewRecordIterator(repos.records, storage.RecordFilter{}, tt.batchSize)

			batches, total := 0, 0
			err := iterator.ForEach(context.Background(), func(batch []*core.CanonicalRecord) error {
				batches++
				total += len(batch)
				assert.LessOrEqual(t, len(batch), tt.batchSize)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantBatchs, batches)
			assert.Equal(t, tt.records, total)
		})
	}
}

func TestRecordIterator_EmptyDatabase(t *testing.T) {
	repos := setupTestDB(t)

	iterator := NewRecordIterator(repos.records, storage.RecordFilter{}, 10)

	called := false
	err := iterator.ForEach(context.Background(), func(batch []*core.CanonicalRecord) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called, "callback should not run for an empty catalog")
}

func TestRecordIterator_ErrorHandling(t *testing.T) {
	repos := setupTestDB(t)
	repos.addRecords(t, 10)

	iterator := NewRecordIterator(repos.records, storage.RecordFilter{}, 2)

	boom := fmt.Errorf("boom")
	batches := 0
	err := iterator.ForEach(context.Background(), func(batch []*core.CanonicalRecord) error {
		batches++
		if batches == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, batches, "iteration should stop at the failing batch")
}

func TestRecordIterator_ContextCancellation(t *testing.T) {
	repos := setupTestDB(t)
	repos.addRecords(t, 10)

	iterator := NewRecordIterator(repos.records, storage.RecordFilter{}, 2)

	ctx, cancel := context.WithCancel(context.Background())
	batches := 0
	err := iterator.ForEach(ctx, func(batch []*core.CanonicalRecord) error {
		batches++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, batches)
}

func TestRecordIterator_Filter(t *testing.T) {
	repos := setupTestDB(t)
	repos.addRecords(t, 5)

	iterator := NewRecordIterator(repos.records, storage.RecordFilter{Limit: 2}, 10)

	count, err := iterator.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRecordIterator_InvalidBatchSize(t *testing.T) {
	repos := setupTestDB(t)

	for _, size := range []int{0, -5} {
		iterator := NewRecordIterator(repos.records, storage.RecordFilter{}, size)
		assert.Equal(t, DefaultBatchSize, iterator.batchSize)
	}
}
