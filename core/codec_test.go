package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrichmentRecordMUS_PreservesEmbeddingState(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("never embedded", func(t *testing.T) {
		rec := EnrichmentRecord{RecordId: 7, Provenance: ProvenanceCatalog, Summary: "A desert planet..."}
		bs := make([]byte, EnrichmentRecordMUS.Size(rec))
		EnrichmentRecordMUS.Marshal(rec, bs)

		got, n, err := EnrichmentRecordMUS.Unmarshal(bs)
		require.NoError(t, err)
		assert.Equal(t, len(bs), n)
		assert.Nil(t, got.Embedding)
		assert.True(t, got.EmbeddingUpdatedAt.IsZero())
	})

	t.Run("embedded with recommendations", func(t *testing.T) {
		rec := EnrichmentRecord{
			RecordId:           7,
			Provenance:         ProvenanceGenerative,
			ReadingLevel:       ReadingLevelIntermediate,
			Tags:               []string{"sf", "desert"},
			Recommendations:    []Recommendation{{Title: "Hyperion", Reason: "epic scope"}},
			Embedding:          []float32{0.25, -0.5, 1},
			EmbeddingUpdatedAt: now,
			InsertedAt:         now,
			UpdatedAt:          now,
		}
		bs := make([]byte, EnrichmentRecordMUS.Size(rec))
		EnrichmentRecordMUS.Marshal(rec, bs)

		got, _, err := EnrichmentRecordMUS.Unmarshal(bs)
		require.NoError(t, err)
		assert.Equal(t, rec, got)
	})
}

func TestCanonicalRecordMUS_TruncatedInput(t *testing.T) {
	rec := CanonicalRecord{Id: 3, Title: "Dune", Authors: []string{"Frank Herbert"}, InsertedAt: time.Now().UTC()}
	bs := make([]byte, CanonicalRecordMUS.Size(rec))
	CanonicalRecordMUS.Marshal(rec, bs)

	_, _, err := CanonicalRecordMUS.Unmarshal(bs[:len(bs)/2])
	assert.Error(t, err)
}
