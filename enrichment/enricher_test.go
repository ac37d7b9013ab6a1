package enrichment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/poiesic/shelfmark/ai"
	"github.com/poiesic/shelfmark/ai/mock"
	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/openlibrary"
	"github.com/poiesic/shelfmark/storage"
	"github.com/poiesic/shelfmark/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	doc   *openlibrary.Document
	err   error
	calls int

	work      *openlibrary.Document
	workErr   error
	workCalls []string
}

func (s *fakeSource) LookupISBN(ctx context.Context, isbn string) (*openlibrary.Document, error) {
	s.calls++
	return s.doc, s.err
}

func (s *fakeSource) LookupWork(ctx context.Context, workKey string) (*openlibrary.Document, error) {
	s.workCalls = append(s.workCalls, workKey)
	return s.work, s.workErr
}

func (s *fakeSource) PreviewURL(isbn string) string {
	return "https://openlibrary.org/isbn/" + isbn + "/preview"
}

func (s *fakeSource) CoversBase() string {
	return "https://covers.openlibrary.org"
}

type fixture struct {
	records     storage.RecordRepository
	enrichments storage.EnrichmentRepository
	generator   *mock.MockPreviewGenerator
	embedder    *mock.MockEmbedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	records, ledger, enrichments, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		enrichments.Close()
		ledger.Close()
		records.Close()
		backend.Close()
	})
	return &fixture{
		records:     records,
		enrichments: enrichments,
		generator:   mock.NewMockPreviewGenerator(),
		embedder:    mock.NewMockEmbedder(),
	}
}

func (f *fixture) enricher(t *testing.T, source Source, opts ...Option) *Enricher {
	t.Helper()
	e, err := New(f.records, f.enrichments, source, f.generator, f.embedder, opts...)
	require.NoError(t, err)
	return e
}

func (f *fixture) addRecord(t *testing.T, identifier, summary string) *core.CanonicalRecord {
	t.Helper()
	record, err := f.records.AddRecord(context.Background(), &core.CanonicalRecord{
		Title:      "Dune",
		Authors:    []string{"Frank Herbert"},
		Identifier: identifier,
		Summary:    summary,
	})
	require.NoError(t, err)
	return record
}

func TestNew_RequiresRepositories(t *testing.T) {
	f := newFixture(t)
	_, err := New(nil, f.enrichments, nil, nil, nil)
	assert.Error(t, err)
	_, err = New(f.records, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestEnrich_CatalogDescriptionSkipsGenerator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	record := f.addRecord(t, "978-0-441-17271-9", "")

	var subjects []string
	for i := 0; i < 12; i++ {
		subjects = append(subjects, fmt.Sprintf("Subject %d", i))
	}
	source := &fakeSource{doc: &openlibrary.Document{
		Description: "A desert planet...",
		Covers:      []int64{42},
		Subjects:    subjects,
	}}

	result, err := f.enricher(t, source).Enrich(ctx, record.Id)
	require.NoError(t, err)

	assert.Equal(t, core.ProvenanceCatalog, result.Provenance)
	assert.NoError(t, result.SourceErr)
	assert.True(t, result.Written)
	assert.Zero(t, f.generator.CallCount())

	stored, err := f.enrichments.GetEnrichment(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, "A desert planet...", stored.Summary)
	assert.Equal(t, "9780441172719", stored.Identifier)
	assert.Equal(t, "https://openlibrary.org/isbn/9780441172719/preview", stored.PreviewURL)
	assert.True(t, stored.PreviewAvailable)
	assert.Equal(t, "https://covers.openlibrary.org/b/id/42-L.jpg", stored.CoverURL)
	assert.Len(t, stored.Tags, MaxCatalogTags)
}

func TestEnrich_NestedDescriptionOverHTTP(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	record := f.addRecord(t, "9780441172719", "")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/isbn/9780441172719.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"description": {"type": "/type/text", "value": "A desert planet..."}, "subjects": ["Science fiction"]}`)
	}))
	defer server.Close()

	client, err := openlibrary.New(server.URL)
	require.NoError(t, err)

	result, err := f.enricher(t, client).Enrich(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ProvenanceCatalog, result.Provenance)
	assert.Equal(t, "A desert planet...", result.Record.Summary)
	assert.Equal(t, []string{"Science fiction"}, result.Record.Tags)
	assert.Zero(t, f.generator.CallCount())
}

func TestEnrich_WorkDescription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	record := f.addRecord(t, "9780441172719", "")

	source := &fakeSource{
		doc: &openlibrary.Document{
			Key:   "/books/OL1M",
			Works: []openlibrary.Reference{{Key: "/works/OL45804W"}},
		},
		work: &openlibrary.Document{
			Key:         "/works/OL45804W",
			Description: "Set on the desert planet Arrakis...",
			Subjects:    []string{"Ecology", "Politics"},
		},
	}

	result, err := f.enricher(t, source).Enrich(ctx, record.Id)
	require.NoError(t, err)

	assert.Equal(t, core.ProvenanceCatalog, result.Provenance)
	assert.NoError(t, result.SourceErr)
	assert.Equal(t, []string{"OL45804W"}, source.workCalls)
	assert.Equal(t, "Set on the desert planet Arrakis...", result.Record.Summary)
	assert.Equal(t, []string{"Ecology", "Politics"}, result.Record.Tags)
	assert.Zero(t, f.generator.CallCount())
}

func TestEnrich_WorkDescriptionOverHTTP(t *testing.T) {
	f := newFixture(t)
	record := f.addRecord(t, "9780441172719", "")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/isbn/9780441172719.json":
			fmt.Fprint(w, `{"key": "/books/OL1M", "works": [{"key": "/works/OL45804W"}], "subjects": ["Science fiction"]}`)
		case "/works/OL45804W.json":
			fmt.Fprint(w, `{"key": "/works/OL45804W", "description": "Set on the desert planet Arrakis..."}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client, err := openlibrary.New(server.URL)
	require.NoError(t, err)

	result, err := f.enricher(t, client).Enrich(context.Background(), record.Id)
	require.NoError(t, err)
	assert.Equal(t, core.ProvenanceCatalog, result.Provenance)
	assert.Equal(t, "Set on the desert planet Arrakis...", result.Record.Summary)
	assert.Equal(t, []string{"Science fiction"}, result.Record.Tags, "edition subjects win over the work's")
}

func TestEnrich_GenerativeFallback(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		source     *fakeSource
		sourceErr  error
		wantCalls  int
	}{
		{
			name:       "placeholder identifier",
			identifier: core.PlaceholderIdentifier("OL45804W"),
			source:     &fakeSource{},
			sourceErr:  ErrNoIdentifier,
		},
		{
			name:       "no description",
			identifier: "9780441172719",
			source:     &fakeSource{doc: &openlibrary.Document{Subjects: []string{"Deserts"}}},
			sourceErr:  core.ErrNotFound,
			wantCalls:  1,
		},
		{
			name:       "work has no description either",
			identifier: "9780441172719",
			source: &fakeSource{
				doc:  &openlibrary.Document{Works: []openlibrary.Reference{{Key: "/works/OL45804W"}}},
				work: &openlibrary.Document{Key: "/works/OL45804W"},
			},
			sourceErr: core.ErrNotFound,
			wantCalls: 1,
		},
		{
			name:       "work lookup fails",
			identifier: "9780441172719",
			source: &fakeSource{
				doc:     &openlibrary.Document{Works: []openlibrary.Reference{{Key: "/works/OL45804W"}}},
				workErr: fmt.Errorf("%w: status 503", core.ErrTransient),
			},
			sourceErr: ErrSourceUnavailable,
			wantCalls: 1,
		},
		{
			name:       "edition missing",
			identifier: "9780441172719",
			source:     &fakeSource{},
			sourceErr:  core.ErrNotFound,
			wantCalls:  1,
		},
		{
			name:       "transport failure",
			identifier: "9780441172719",
			source:     &fakeSource{err: fmt.Errorf("%w: connection reset", core.ErrTransient)},
			sourceErr:  ErrSourceUnavailable,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			record := f.addRecord(t, tt.identifier, "")

			result, err := f.enricher(t, tt.source).Enrich(context.Background(), record.Id)
			require.NoError(t, err)

			assert.Equal(t, core.ProvenanceGenerative, result.Provenance)
			assert.ErrorIs(t, result.SourceErr, tt.sourceErr)
			assert.Equal(t, tt.wantCalls, tt.source.calls)
			assert.Equal(t, 1, f.generator.CallCount())
			assert.Equal(t, "Generated summary of Dune.", result.Record.Summary)
			assert.Equal(t, core.ReadingLevelIntermediate, result.Record.ReadingLevel)
			require.Len(t, result.Record.Recommendations, 1)
			assert.Equal(t, "Similar to Dune", result.Record.Recommendations[0].Title)
		})
	}
}

func TestEnrich_GeneratorRequest(t *testing.T) {
	f := newFixture(t)
	long := ""
	for len(long) < 1000 {
		long += "sand "
	}
	record := f.addRecord(t, "", long)

	_, err := f.enricher(t, nil).Enrich(context.Background(), record.Id)
	require.NoError(t, err)

	requests := f.generator.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "Dune", requests[0].Title)
	assert.Equal(t, []string{"Frank Herbert"}, requests[0].Authors)
	assert.Len(t, []rune(requests[0].Context), MaxContextLength)
}

func TestEnrich_GeneratorRequestCarriesGenresAndLanguage(t *testing.T) {
	f := newFixture(t)
	record, err := f.records.AddRecord(context.Background(), &core.CanonicalRecord{
		Title:    "Dune",
		Authors:  []string{"Frank Herbert"},
		Genres:   []string{"Science fiction", "Ecology"},
		Language: "en",
	})
	require.NoError(t, err)

	_, err = f.enricher(t, nil).Enrich(context.Background(), record.Id)
	require.NoError(t, err)

	requests := f.generator.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, []string{"Science fiction", "Ecology"}, requests[0].Genres)
	assert.Equal(t, "en", requests[0].Language)
}

func TestEnrich_GeneratedTagsNormalized(t *testing.T) {
	f := newFixture(t)
	record := f.addRecord(t, "", "")
	f.generator.GeneratePreviewFunc = func(ctx context.Context, req ai.PreviewRequest) (*ai.Preview, error) {
		return &ai.Preview{
			Summary:      "A summary.",
			Tags:         []string{" sci-fi ", "Sci-Fi", "", "desert", "politics", "ecology", "religion", "war"},
			ReadingLevel: "advanced",
		}, nil
	}

	result, err := f.enricher(t, nil).Enrich(context.Background(), record.Id)
	require.NoError(t, err)
	assert.Equal(t, []string{"sci-fi", "desert", "politics", "ecology", "religion"}, result.Record.Tags)
	assert.Equal(t, core.ReadingLevelAdvanced, result.Record.ReadingLevel)
}

func TestEnrich_FailuresWriteNothing(t *testing.T) {
	tests := []struct {
		name    string
		preview *ai.Preview
		err     error
		wantErr error
	}{
		{
			name:    "malformed response",
			err:     fmt.Errorf("%w: not json", core.ErrMalformedResponse),
			wantErr: core.ErrMalformedResponse,
		},
		{
			name:    "reading level outside vocabulary",
			preview: &ai.Preview{Summary: "A summary.", ReadingLevel: "Expert"},
			wantErr: core.ErrMalformedResponse,
		},
		{
			name:    "transport failure",
			err:     errors.New("dial tcp: connection refused"),
			wantErr: ErrSourceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			record := f.addRecord(t, "", "")
			f.generator.GeneratePreviewFunc = func(ctx context.Context, req ai.PreviewRequest) (*ai.Preview, error) {
				return tt.preview, tt.err
			}

			_, err := f.enricher(t, nil).Enrich(ctx, record.Id)
			require.ErrorIs(t, err, tt.wantErr)

			_, err = f.enrichments.GetEnrichment(ctx, record.Id)
			assert.ErrorIs(t, err, storage.ErrNotFound)
		})
	}
}

func TestEnrich_NoGenerator(t *testing.T) {
	f := newFixture(t)
	record := f.addRecord(t, "", "")
	e, err := New(f.records, f.enrichments, nil, nil, nil)
	require.NoError(t, err)

	_, err = e.Enrich(context.Background(), record.Id)
	assert.ErrorIs(t, err, ErrNoGenerator)
}

func TestEnrich_UpsertKeepsOneRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	record := f.addRecord(t, "", "")
	e := f.enricher(t, nil)

	_, err := e.Enrich(ctx, record.Id)
	require.NoError(t, err)

	f.generator.GeneratePreviewFunc = func(ctx context.Context, req ai.PreviewRequest) (*ai.Preview, error) {
		return &ai.Preview{Summary: "Second pass.", Tags: []string{"epic"}, ReadingLevel: "Beginner"}, nil
	}
	_, err = e.Enrich(ctx, record.Id)
	require.NoError(t, err)

	stored, err := f.enrichments.GetEnrichment(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, "Second pass.", stored.Summary)
	assert.Equal(t, []string{"epic"}, stored.Tags)
	assert.Equal(t, core.ReadingLevelBeginner, stored.ReadingLevel)
	assert.Empty(t, stored.Recommendations)
}

func TestEnrich_DryRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	record := f.addRecord(t, "", "")

	result, err := f.enricher(t, nil, WithDryRun(true)).Enrich(ctx, record.Id)
	require.NoError(t, err)
	assert.False(t, result.Written)
	assert.Equal(t, "Generated summary of Dune.", result.Record.Summary)

	_, err = f.enrichments.GetEnrichment(ctx, record.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEmbeddingText(t *testing.T) {
	record := &core.CanonicalRecord{Title: "Dune", Summary: "raw subjects"}

	assert.Equal(t, "Dune\n\nenriched", EmbeddingText(record, &core.EnrichmentRecord{Summary: "enriched"}))
	assert.Equal(t, "Dune\n\nraw subjects", EmbeddingText(record, &core.EnrichmentRecord{}))
	assert.Equal(t, "Dune\n\nraw subjects", EmbeddingText(record, nil))
	assert.Equal(t, "Emma\n\n", EmbeddingText(&core.CanonicalRecord{Title: "Emma"}, nil))
}

func TestRefreshEmbedding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	record := f.addRecord(t, "", "raw subjects")
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	err := f.enricher(t, nil, WithClock(func() time.Time { return at })).RefreshEmbedding(ctx, record.Id)
	require.NoError(t, err)

	assert.Equal(t, []string{"Dune\n\nraw subjects"}, f.embedder.Texts())

	stored, err := f.enrichments.GetEnrichment(ctx, record.Id)
	require.NoError(t, err)
	require.True(t, stored.HasEmbedding())
	assert.True(t, at.Equal(stored.EmbeddingUpdatedAt))
	assert.InDelta(t, 1.0, core.DotProduct(stored.Embedding, stored.Embedding), 1e-4)
}

func TestRefreshEmbedding_FailurePreservesVector(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	record := f.addRecord(t, "", "raw subjects")
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e := f.enricher(t, nil, WithClock(func() time.Time { return at }))

	require.NoError(t, e.RefreshEmbedding(ctx, record.Id))
	before, err := f.enrichments.GetEnrichment(ctx, record.Id)
	require.NoError(t, err)

	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("%w: timeout", core.ErrTransient)
	}
	err = e.RefreshEmbedding(ctx, record.Id)
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.ErrorIs(t, err, core.ErrTransient)

	after, err := f.enrichments.GetEnrichment(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, before.Embedding, after.Embedding)
	assert.True(t, before.EmbeddingUpdatedAt.Equal(after.EmbeddingUpdatedAt))
}

func TestRefreshEmbedding_EmptyVector(t *testing.T) {
	f := newFixture(t)
	record := f.addRecord(t, "", "")
	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{}, nil
	}

	err := f.enricher(t, nil).RefreshEmbedding(context.Background(), record.Id)
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.ErrorIs(t, err, core.ErrMalformedResponse)
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("embedding failure keeps text status", func(t *testing.T) {
		f := newFixture(t)
		record := f.addRecord(t, "", "")
		f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("boom")
		}

		report := f.enricher(t, nil).Run(ctx, record.Id)
		assert.True(t, report.OK())
		assert.ErrorIs(t, report.EmbeddingErr, ErrEmbeddingFailed)
		assert.Equal(t, core.ProvenanceGenerative, report.Result.Provenance)
	})

	t.Run("embedding uses enriched summary", func(t *testing.T) {
		f := newFixture(t)
		record := f.addRecord(t, "", "raw")

		report := f.enricher(t, nil).Run(ctx, record.Id)
		require.True(t, report.OK())
		require.NoError(t, report.EmbeddingErr)
		assert.Equal(t, []string{"Dune\n\nGenerated summary of Dune."}, f.embedder.Texts())
	})

	t.Run("embedding runs after text failure", func(t *testing.T) {
		f := newFixture(t)
		record := f.addRecord(t, "", "raw")
		f.generator.GeneratePreviewFunc = func(ctx context.Context, req ai.PreviewRequest) (*ai.Preview, error) {
			return nil, core.ErrMalformedResponse
		}

		report := f.enricher(t, nil).Run(ctx, record.Id)
		assert.False(t, report.OK())
		assert.NoError(t, report.EmbeddingErr)
		assert.Equal(t, []string{"Dune\n\nraw"}, f.embedder.Texts())
	})
}

func TestRunAll(t *testing.T) {
	f := newFixture(t)
	f.addRecord(t, "", "")
	f.addRecord(t, "", "")

	reports, err := f.enricher(t, nil).RunAll(context.Background(), storage.RecordFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].OK())
}
