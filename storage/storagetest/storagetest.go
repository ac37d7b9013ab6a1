// Package storagetest holds the conformance suite every storage backend runs.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Repositories is the set of repositories under test.
type Repositories struct {
	Records     storage.RecordRepository
	Ledger      storage.LedgerRepository
	Enrichments storage.EnrichmentRepository
}

// Factory opens a fresh, empty set of repositories. It registers its own cleanup with t.
type Factory func(t *testing.T) Repositories

// Run executes the conformance suite against repositories produced by newRepos.
func Run(t *testing.T, newRepos Factory) {
	t.Run("Records", func(t *testing.T) { testRecords(t, newRepos) })
	t.Run("Ledger", func(t *testing.T) { testLedger(t, newRepos) })
	t.Run("Enrichments", func(t *testing.T) { testEnrichments(t, newRepos) })
}

func sampleRecord(title, author, identifier string) *core.CanonicalRecord {
	return &core.CanonicalRecord{
		Title:      title,
		Authors:    []string{author},
		Identifier: identifier,
		WorkKey:    core.WorkKeyFromIdentifier(identifier),
		Genres:     []string{"Fiction"},
	}
}

func testRecords(t *testing.T, newRepos Factory) {
	ctx := context.Background()

	t.Run("add and get", func(t *testing.T) {
		repos := newRepos(t)
		added, err := repos.Records.AddRecord(ctx, sampleRecord("Dune", "Frank Herbert", "9780441172719"))
		require.NoError(t, err)
		assert.NotZero(t, added.Id)
		assert.False(t, added.InsertedAt.IsZero())

		got, err := repos.Records.GetRecord(ctx, added.Id)
		require.NoError(t, err)
		assert.Equal(t, "Dune", got.Title)
		assert.Equal(t, []string{"Frank Herbert"}, got.Authors)
		assert.Equal(t, "9780441172719", got.Identifier)
		assert.Equal(t, []string{"Fiction"}, got.Genres)
		assert.True(t, added.InsertedAt.Equal(got.InsertedAt))
	})

	t.Run("get missing", func(t *testing.T) {
		repos := newRepos(t)
		_, err := repos.Records.GetRecord(ctx, 424242)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("ids are unique", func(t *testing.T) {
		repos := newRepos(t)
		a, err := repos.Records.AddRecord(ctx, sampleRecord("A", "Ann Author", ""))
		require.NoError(t, err)
		b, err := repos.Records.AddRecord(ctx, sampleRecord("B", "Bob Author", ""))
		require.NoError(t, err)
		assert.NotEqual(t, a.Id, b.Id)
	})

	t.Run("find by identifier ignores case", func(t *testing.T) {
		repos := newRepos(t)
		added, err := repos.Records.AddRecord(ctx, sampleRecord("Dune", "Frank Herbert", "OLISBN-OL893415W"))
		require.NoError(t, err)

		got, err := repos.Records.FindByIdentifier(ctx, "olisbn-ol893415w")
		require.NoError(t, err)
		assert.Equal(t, added.Id, got.Id)

		_, err = repos.Records.FindByIdentifier(ctx, "OLISBN-OL893415")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repos.Records.FindByIdentifier(ctx, "")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("find by title and author", func(t *testing.T) {
		repos := newRepos(t)
		added, err := repos.Records.AddRecord(ctx, sampleRecord("The Dispossessed", "Ursula K. Le Guin", ""))
		require.NoError(t, err)
		_, err = repos.Records.AddRecord(ctx, sampleRecord("The Dispossessed: Notes", "Ursula K. Le Guin", ""))
		require.NoError(t, err)

		got, err := repos.Records.FindByTitleAndAuthor(ctx, "the dispossessed", "URS")
		require.NoError(t, err)
		assert.Equal(t, added.Id, got.Id)

		got, err = repos.Records.FindByTitleAndAuthor(ctx, "THE DISPOSSESSED", "")
		require.NoError(t, err)
		assert.Equal(t, added.Id, got.Id)

		_, err = repos.Records.FindByTitleAndAuthor(ctx, "The Dispossessed", "Frank")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = repos.Records.FindByTitleAndAuthor(ctx, "Dispossessed", "Ursula")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("set identifier", func(t *testing.T) {
		repos := newRepos(t)
		added, err := repos.Records.AddRecord(ctx, sampleRecord("Dune", "Frank Herbert", "OLISBN-OL893415W"))
		require.NoError(t, err)

		changed, err := repos.Records.SetIdentifier(ctx, added.Id, "9780441172719")
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = repos.Records.SetIdentifier(ctx, added.Id, "9780441172719")
		require.NoError(t, err)
		assert.False(t, changed)

		got, err := repos.Records.FindByIdentifier(ctx, "9780441172719")
		require.NoError(t, err)
		assert.Equal(t, added.Id, got.Id)
		assert.Equal(t, "OL893415W", got.WorkKey)

		_, err = repos.Records.FindByIdentifier(ctx, "OLISBN-OL893415W")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = repos.Records.SetIdentifier(ctx, 424242, "9780441172719")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("list records", func(t *testing.T) {
		repos := newRepos(t)
		var ids []core.ID
		for _, rec := range []*core.CanonicalRecord{
			sampleRecord("Dune", "Frank Herbert", "9780441172719"),
			sampleRecord("Hyperion", "Dan Simmons", "OLISBN-OL1W"),
			sampleRecord("Neuromancer", "William Gibson", ""),
			sampleRecord("Ubik", "Philip K. Dick", "OLISBN-OL2W"),
		} {
			added, err := repos.Records.AddRecord(ctx, rec)
			require.NoError(t, err)
			ids = append(ids, added.Id)
		}

		all, err := repos.Records.ListRecords(ctx, storage.RecordFilter{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		for i := range ids {
			assert.Equal(t, ids[i], all[i].Id)
		}

		unresolved, err := repos.Records.ListRecords(ctx, storage.RecordFilter{UnresolvedOnly: true})
		require.NoError(t, err)
		require.Len(t, unresolved, 2)
		assert.Equal(t, "Hyperion", unresolved[0].Title)
		assert.Equal(t, "Ubik", unresolved[1].Title)

		limited, err := repos.Records.ListRecords(ctx, storage.RecordFilter{UnresolvedOnly: true, Limit: 1})
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Equal(t, "Hyperion", limited[0].Title)
	})
}

func testLedger(t *testing.T, newRepos Factory) {
	ctx := context.Background()
	fp := core.ComputeFingerprint("Dune", []string{"Frank Herbert"}, []string{"9780441172719"})

	t.Run("lookup missing", func(t *testing.T) {
		repos := newRepos(t)
		_, err := repos.Ledger.Lookup(ctx, fp)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("record upserts", func(t *testing.T) {
		repos := newRepos(t)
		first, err := repos.Ledger.Record(ctx, &core.LedgerEntry{Fingerprint: fp, Status: core.LedgerPending, Attempts: 1, SourceURL: "feed"})
		require.NoError(t, err)
		assert.False(t, first.CreatedAt.IsZero())

		second, err := repos.Ledger.Record(ctx, &core.LedgerEntry{Fingerprint: fp, Status: core.LedgerFailed, Attempts: 2, SourceURL: "feed"})
		require.NoError(t, err)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

		got, err := repos.Ledger.Lookup(ctx, fp)
		require.NoError(t, err)
		assert.Equal(t, core.LedgerFailed, got.Status)
		assert.Equal(t, 2, got.Attempts)
		assert.Equal(t, "feed", got.SourceURL)
		assert.Zero(t, got.RecordId)
	})

	t.Run("complete with record", func(t *testing.T) {
		repos := newRepos(t)
		_, err := repos.Ledger.Record(ctx, &core.LedgerEntry{Fingerprint: fp, Status: core.LedgerPending, Attempts: 1})
		require.NoError(t, err)

		record, err := repos.Ledger.CompleteWithRecord(ctx, fp, "feed", sampleRecord("Dune", "Frank Herbert", "9780441172719"))
		require.NoError(t, err)
		require.NotZero(t, record.Id)

		entry, err := repos.Ledger.Lookup(ctx, fp)
		require.NoError(t, err)
		assert.Equal(t, core.LedgerDone, entry.Status)
		assert.Equal(t, record.Id, entry.RecordId)
		assert.Equal(t, 1, entry.Attempts)

		stored, err := repos.Records.GetRecord(ctx, record.Id)
		require.NoError(t, err)
		assert.Equal(t, "Dune", stored.Title)

		_, err = repos.Ledger.CompleteWithRecord(ctx, fp, "feed", sampleRecord("Dune", "Frank Herbert", "9780441172719"))
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)

		all, err := repos.Records.ListRecords(ctx, storage.RecordFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("done is final", func(t *testing.T) {
		repos := newRepos(t)
		record, err := repos.Ledger.CompleteWithRecord(ctx, fp, "", sampleRecord("Dune", "Frank Herbert", ""))
		require.NoError(t, err)
		other, err := repos.Records.AddRecord(ctx, sampleRecord("Dune Messiah", "Frank Herbert", ""))
		require.NoError(t, err)

		_, err = repos.Ledger.Record(ctx, &core.LedgerEntry{Fingerprint: fp, Status: core.LedgerPending})
		assert.ErrorIs(t, err, storage.ErrLedgerFinal)

		_, err = repos.Ledger.Record(ctx, &core.LedgerEntry{Fingerprint: fp, Status: core.LedgerDone, RecordId: other.Id})
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)

		same, err := repos.Ledger.Record(ctx, &core.LedgerEntry{Fingerprint: fp, Status: core.LedgerDone, RecordId: record.Id})
		require.NoError(t, err)
		assert.Equal(t, record.Id, same.RecordId)
	})

	t.Run("concurrent completion creates one record", func(t *testing.T) {
		repos := newRepos(t)
		const workers = 8

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			failures  []error
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repos.Ledger.CompleteWithRecord(ctx, fp, "feed", sampleRecord("Dune", "Frank Herbert", ""))
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					successes++
					return
				}
				failures = append(failures, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		for _, err := range failures {
			assert.True(t, errors.Is(err, storage.ErrDuplicateKey) || errors.Is(err, storage.ErrConflict), "unexpected error: %v", err)
		}

		entry, err := repos.Ledger.Lookup(ctx, fp)
		require.NoError(t, err)
		assert.Equal(t, core.LedgerDone, entry.Status)

		all, err := repos.Records.ListRecords(ctx, storage.RecordFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("stale and counts", func(t *testing.T) {
		repos := newRepos(t)
		pendingFP := core.ComputeFingerprint("Pending", nil, nil)
		failedFP := core.ComputeFingerprint("Failed", nil, nil)

		_, err := repos.Ledger.Record(ctx, &core.LedgerEntry{Fingerprint: pendingFP, Status: core.LedgerPending, Attempts: 1})
		require.NoError(t, err)
		_, err = repos.Ledger.Record(ctx, &core.LedgerEntry{Fingerprint: failedFP, Status: core.LedgerFailed, Attempts: 1})
		require.NoError(t, err)
		_, err = repos.Ledger.CompleteWithRecord(ctx, fp, "", sampleRecord("Dune", "Frank Herbert", ""))
		require.NoError(t, err)

		stale, err := repos.Ledger.ListStale(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, pendingFP, stale[0].Fingerprint)

		stale, err = repos.Ledger.ListStale(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Empty(t, stale)

		counts, err := repos.Ledger.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, counts[core.LedgerPending])
		assert.Equal(t, 1, counts[core.LedgerFailed])
		assert.Equal(t, 1, counts[core.LedgerDone])
	})
}

func testEnrichments(t *testing.T, newRepos Factory) {
	ctx := context.Background()

	addRecord := func(t *testing.T, repos Repositories, title string) core.ID {
		added, err := repos.Records.AddRecord(ctx, sampleRecord(title, "Some Author", ""))
		require.NoError(t, err)
		return added.Id
	}

	t.Run("get missing", func(t *testing.T) {
		repos := newRepos(t)
		_, err := repos.Enrichments.GetEnrichment(ctx, 424242)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("upsert overwrites text fields", func(t *testing.T) {
		repos := newRepos(t)
		id := addRecord(t, repos, "Dune")

		first, err := repos.Enrichments.UpsertEnrichment(ctx, &core.EnrichmentRecord{
			RecordId:     id,
			Summary:      "first",
			Tags:         []string{"a", "b"},
			ReadingLevel: core.ReadingLevelBeginner,
			Provenance:   core.ProvenanceCatalog,
		})
		require.NoError(t, err)

		_, err = repos.Enrichments.UpsertEnrichment(ctx, &core.EnrichmentRecord{
			RecordId:        id,
			Summary:         "second",
			Tags:            []string{"c"},
			ReadingLevel:    core.ReadingLevelAdvanced,
			Recommendations: []core.Recommendation{{Title: "Hyperion", Reason: "scope"}},
			Provenance:      core.ProvenanceGenerative,
		})
		require.NoError(t, err)

		got, err := repos.Enrichments.GetEnrichment(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "second", got.Summary)
		assert.Equal(t, []string{"c"}, got.Tags)
		assert.Equal(t, core.ReadingLevelAdvanced, got.ReadingLevel)
		assert.Equal(t, core.ProvenanceGenerative, got.Provenance)
		assert.Equal(t, []core.Recommendation{{Title: "Hyperion", Reason: "scope"}}, got.Recommendations)
		assert.True(t, first.InsertedAt.Equal(got.InsertedAt))
		assert.False(t, got.HasEmbedding())
	})

	t.Run("upsert rejects invalid provenance", func(t *testing.T) {
		repos := newRepos(t)
		id := addRecord(t, repos, "Dune")
		_, err := repos.Enrichments.UpsertEnrichment(ctx, &core.EnrichmentRecord{RecordId: id, Provenance: "scraped"})
		assert.ErrorIs(t, err, core.ErrInvalidProvenance)
	})

	t.Run("upsert keeps embedding", func(t *testing.T) {
		repos := newRepos(t)
		id := addRecord(t, repos, "Dune")
		at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

		require.NoError(t, repos.Enrichments.SetEmbedding(ctx, id, []float32{0.6, 0.8}, at))

		_, err := repos.Enrichments.UpsertEnrichment(ctx, &core.EnrichmentRecord{
			RecordId:   id,
			Summary:    "text",
			Provenance: core.ProvenanceCatalog,
		})
		require.NoError(t, err)

		got, err := repos.Enrichments.GetEnrichment(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "text", got.Summary)
		assert.Equal(t, []float32{0.6, 0.8}, got.Embedding)
		assert.True(t, at.Equal(got.EmbeddingUpdatedAt))
	})

	t.Run("set embedding keeps text", func(t *testing.T) {
		repos := newRepos(t)
		id := addRecord(t, repos, "Dune")
		_, err := repos.Enrichments.UpsertEnrichment(ctx, &core.EnrichmentRecord{
			RecordId:   id,
			Summary:    "text",
			Provenance: core.ProvenanceCatalog,
		})
		require.NoError(t, err)

		at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, repos.Enrichments.SetEmbedding(ctx, id, []float32{1, 0}, at))

		got, err := repos.Enrichments.GetEnrichment(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "text", got.Summary)
		assert.Equal(t, core.ProvenanceCatalog, got.Provenance)
		assert.Equal(t, []float32{1, 0}, got.Embedding)
	})

	t.Run("find similar", func(t *testing.T) {
		repos := newRepos(t)
		high := addRecord(t, repos, "High")
		medium := addRecord(t, repos, "Medium")
		low := addRecord(t, repos, "Low")
		none := addRecord(t, repos, "None")

		now := time.Now()
		require.NoError(t, repos.Enrichments.SetEmbedding(ctx, high, []float32{1, 0, 0}, now))
		require.NoError(t, repos.Enrichments.SetEmbedding(ctx, medium, core.NormalizeVector([]float32{0.7, 0.3, 0}), now))
		require.NoError(t, repos.Enrichments.SetEmbedding(ctx, low, core.NormalizeVector([]float32{0.3, 0.7, 0}), now))
		_, err := repos.Enrichments.UpsertEnrichment(ctx, &core.EnrichmentRecord{RecordId: none, Provenance: core.ProvenanceCatalog})
		require.NoError(t, err)

		query := []float32{1, 0, 0}

		results, err := repos.Enrichments.FindSimilar(ctx, query, 0.2, 10)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, high, results[0].Enrichment.RecordId)
		assert.Equal(t, medium, results[1].Enrichment.RecordId)
		assert.Equal(t, low, results[2].Enrichment.RecordId)

		results, err = repos.Enrichments.FindSimilar(ctx, query, 0.95, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, high, results[0].Enrichment.RecordId)

		results, err = repos.Enrichments.FindSimilar(ctx, query, 0.2, 1, high)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, medium, results[0].Enrichment.RecordId)
	})
}
