package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/shelfmark/ai"
	"github.com/poiesic/shelfmark/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer answers chat completion and embedding requests the way an
// OpenAI-compatible server does.
func fakeServer(t *testing.T, reply string, vector []float32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"created": 1,
				"model":   "test",
				"choices": []map[string]any{{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": reply},
				}},
			})
		case strings.HasSuffix(r.URL.Path, "/embeddings"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"model":  "test",
				"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": vector}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testConfig(host string) *ai.Config {
	return ai.NewConfig(ai.WithHost(host), ai.WithTimeout(5*time.Second))
}

func TestPreviewGenerator(t *testing.T) {
	reply := `{"summary": "A desert planet...", "tags": ["sf", "ecology", "politics"],
"reading_level": "Advanced", "recommendations": [{"title": "Hyperion", "reason": "Epic scope"}]}`
	srv, calls := fakeServer(t, reply, nil)

	gen, err := NewPreviewGenerator(testConfig(srv.URL))
	require.NoError(t, err)

	preview, err := gen.GeneratePreview(context.Background(), ai.PreviewRequest{Title: "Dune", Authors: []string{"Frank Herbert"}})
	require.NoError(t, err)
	assert.Equal(t, "A desert planet...", preview.Summary)
	assert.Equal(t, "Advanced", preview.ReadingLevel)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPreviewGeneratorMalformed(t *testing.T) {
	srv, _ := fakeServer(t, "Sorry, I don't know that book.", nil)

	gen, err := NewPreviewGenerator(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = gen.GeneratePreview(context.Background(), ai.PreviewRequest{Title: "Unknown"})
	assert.ErrorIs(t, err, core.ErrMalformedResponse)
}

func TestEmbedder(t *testing.T) {
	srv, _ := fakeServer(t, "", []float32{0.25, 0.5, 0.75})

	embedder, err := NewEmbedder(testConfig(srv.URL))
	require.NoError(t, err)

	vector, err := embedder.EmbedText(context.Background(), "Dune\n\nA desert planet")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.5, 0.75}, vector)
}

func TestTokenOrNone(t *testing.T) {
	assert.Equal(t, "none", tokenOrNone(""))
	assert.Equal(t, "sk-test", tokenOrNone("sk-test"))
}

func TestProvider(t *testing.T) {
	reply := `{"summary": "A desert planet", "tags": ["sf"], "reading_level": "Advanced"}`

	t.Run("shared endpoint", func(t *testing.T) {
		srv, calls := fakeServer(t, reply, []float32{1, 0})
		provider, err := NewProvider(testConfig(srv.URL))
		require.NoError(t, err)
		defer provider.Close()

		p := provider.(*Provider)
		assert.True(t, p.shared)

		vector, err := provider.Embedder().EmbedText(context.Background(), "Dune")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 0}, vector)

		preview, err := provider.PreviewGenerator().GeneratePreview(context.Background(), ai.PreviewRequest{Title: "Dune"})
		require.NoError(t, err)
		assert.Equal(t, "A desert planet", preview.Summary)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("separate endpoints", func(t *testing.T) {
		embedSrv, embedCalls := fakeServer(t, "", []float32{0, 1})
		genSrv, genCalls := fakeServer(t, reply, nil)
		config := ai.NewConfig(
			ai.WithEmbeddingHost(embedSrv.URL),
			ai.WithGeneratorHost(genSrv.URL),
			ai.WithTimeout(5*time.Second),
		)
		provider, err := NewProvider(config)
		require.NoError(t, err)
		defer provider.Close()

		assert.False(t, provider.(*Provider).shared)

		_, err = provider.Embedder().EmbedText(context.Background(), "Dune")
		require.NoError(t, err)
		_, err = provider.PreviewGenerator().GeneratePreview(context.Background(), ai.PreviewRequest{Title: "Dune"})
		require.NoError(t, err)
		assert.Equal(t, int32(1), embedCalls.Load())
		assert.Equal(t, int32(1), genCalls.Load())
	})
}
