package storage

import (
	"testing"
	"time"

	"github.com/poiesic/shelfmark/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalID(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"zero ID", core.ID(0)},
		{"small ID", core.ID(42)},
		{"large ID", core.ID(18446744073709551615)}, // max uint64
		{"content-based ID", core.IDFromContent("test content")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalID(tt.id)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalID(data)
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
		})
	}
}

func TestUnmarshalID_Invalid(t *testing.T) {
	_, err := UnmarshalID([]byte{})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMarshalUnmarshalRecord(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	tests := []struct {
		name   string
		record *core.CanonicalRecord
	}{
		{
			name:   "minimal record",
			record: &core.CanonicalRecord{Id: 1, Title: "Untitled"},
		},
		{
			name: "full record",
			record: &core.CanonicalRecord{
				Id:          99,
				Title:       "The Left Hand of Darkness",
				Authors:     []string{"Ursula K. Le Guin"},
				Identifier:  "9780441478125",
				WorkKey:     "OL59853W",
				Language:    "eng",
				Summary:     "Science fiction, Gender",
				Genres:      []string{"Science fiction", "Gender"},
				CoverURL:    "https://covers.openlibrary.org/b/id/1-L.jpg",
				PublishYear: 1969,
				InsertedAt:  now,
				UpdatedAt:   now,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := UnmarshalRecord(MarshalRecord(tt.record))
			require.NoError(t, err)
			assert.Equal(t, tt.record, decoded)
		})
	}
}

func TestMarshalUnmarshalLedgerEntry(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	entry := &core.LedgerEntry{
		Fingerprint: core.ComputeFingerprint("Dune", []string{"Frank Herbert"}, nil),
		Status:      core.LedgerDone,
		RecordId:    7,
		SourceURL:   "https://openlibrary.org/subjects/science_fiction.json",
		Attempts:    2,
		CreatedAt:   now.Add(-time.Minute),
		UpdatedAt:   now,
	}

	decoded, err := UnmarshalLedgerEntry(MarshalLedgerEntry(entry))
	require.NoError(t, err)
	assert.Equal(t, entry, decoded)
}

func TestMarshalUnmarshalEnrichment(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	enrichment := &core.EnrichmentRecord{
		RecordId:         7,
		Identifier:       "9780441172719",
		PreviewURL:       "https://openlibrary.org/isbn/9780441172719",
		PreviewAvailable: true,
		Summary:          "Desert planet politics.",
		Tags:             []string{"science fiction"},
		ReadingLevel:     core.ReadingLevelAdvanced,
		Recommendations: []core.Recommendation{
			{Title: "Hyperion", Reason: "Epic scope"},
		},
		Provenance:         core.ProvenanceGenerative,
		Embedding:          []float32{0.6, 0.8},
		EmbeddingUpdatedAt: now,
		InsertedAt:         now,
		UpdatedAt:          now,
	}

	decoded, err := UnmarshalEnrichment(MarshalEnrichment(enrichment))
	require.NoError(t, err)
	assert.Equal(t, enrichment, decoded)
}

func TestUnmarshalEnrichment_Truncated(t *testing.T) {
	data := MarshalEnrichment(&core.EnrichmentRecord{RecordId: 1, Summary: "some summary text"})
	_, err := UnmarshalEnrichment(data[:len(data)/2])
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
