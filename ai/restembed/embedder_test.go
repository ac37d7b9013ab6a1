package restembed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/poiesic/shelfmark/ai"
	"github.com/poiesic/shelfmark/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEmbedding(t *testing.T) {
	t.Run("data list shape", func(t *testing.T) {
		vector, shape, err := DecodeEmbedding([]byte(`{"data": [{"embedding": [0.1, 0.2]}]}`))
		require.NoError(t, err)
		assert.Equal(t, ShapeDataList, shape)
		assert.Equal(t, []float32{0.1, 0.2}, vector)
	})

	t.Run("direct shape", func(t *testing.T) {
		vector, shape, err := DecodeEmbedding([]byte(`{"embedding": [0.3]}`))
		require.NoError(t, err)
		assert.Equal(t, ShapeDirect, shape)
		assert.Equal(t, []float32{0.3}, vector)
	})

	for name, payload := range map[string]string{
		"not json":   `<html>`,
		"empty data": `{"data": []}`,
		"no vector":  `{"object": "list"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeEmbedding([]byte(payload))
			assert.ErrorIs(t, err, core.ErrMalformedResponse)
		})
	}
}

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) *Embedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := ai.NewConfig(
		ai.WithEmbeddingBackend(ai.BackendREST),
		ai.WithEmbeddingHost(srv.URL+"/api/embed"),
		ai.WithTokens("secret", ""),
		ai.WithTimeout(5*time.Second),
	)
	e, err := New(cfg, nil)
	require.NoError(t, err)
	return e
}

func TestEmbedText(t *testing.T) {
	var got map[string]string
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = w.Write([]byte(`{"embedding": [1, 2, 3]}`))
	})

	vector, err := e.EmbedText(context.Background(), "  Dune  ")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vector)
	assert.Equal(t, "Dune", got["input"])
	assert.Equal(t, "embeddinggemma", got["model"])
}

func TestEmbedTextFailures(t *testing.T) {
	t.Run("blank text", func(t *testing.T) {
		e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("should not be called")
		})
		_, err := e.EmbedText(context.Background(), "   ")
		assert.ErrorIs(t, err, ErrEmptyText)
	})

	t.Run("server error is transient", func(t *testing.T) {
		e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		_, err := e.EmbedText(context.Background(), "x")
		assert.ErrorIs(t, err, core.ErrTransient)
	})

	t.Run("client error is not transient", func(t *testing.T) {
		e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})
		_, err := e.EmbedText(context.Background(), "x")
		require.Error(t, err)
		assert.NotErrorIs(t, err, core.ErrTransient)
	})

	t.Run("malformed body", func(t *testing.T) {
		e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data": [{}]}`))
		})
		_, err := e.EmbedText(context.Background(), "x")
		assert.ErrorIs(t, err, core.ErrMalformedResponse)
	})
}
