// Package restembed implements ai.Embedder over a plain HTTP embedding endpoint.
//
// Two response shapes are accepted, both equally valid:
//
//	{"data": [{"embedding": [...]}]}   (OpenAI style)
//	{"embedding": [...]}               (Ollama style)
package restembed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/poiesic/shelfmark/ai"
	"github.com/poiesic/shelfmark/core"
)

// ErrEmptyText is returned when asked to embed blank text.
var ErrEmptyText = errors.New("empty text provided for embedding")

// Shape names the response layout an embedding was read from.
type Shape string

const (
	ShapeDataList Shape = "data-list"
	ShapeDirect   Shape = "direct"
)

// Embedder posts {"model", "input"} to an embedding endpoint.
type Embedder struct {
	url    string
	model  string
	token  string
	client *http.Client
	logger *slog.Logger
}

// New creates an embedder from the embedding settings of config. The endpoint
// is EmbeddingHost itself when it ends in /embeddings or /embed, otherwise
// EmbeddingHost + "/embeddings".
func New(config *ai.Config, client *http.Client) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	url := strings.TrimSuffix(config.EmbeddingHost, "/")
	if !strings.HasSuffix(url, "/embeddings") && !strings.HasSuffix(url, "/embed") {
		url += "/embeddings"
	}

	return &Embedder{
		url:    url,
		model:  config.EmbeddingModel,
		token:  config.EmbeddingToken,
		client: client,
		logger: slog.Default().With("component", "rest-embedder"),
	}, nil
}

// EmbedText embeds a single text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	body, err := json.Marshal(map[string]string{"model": e.model, "input": text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrTransient, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrTransient, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: embedding endpoint returned %d", core.ErrTransient, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding endpoint returned %d: %s", resp.StatusCode, core.Truncate(string(payload), 512))
	}

	vector, shape, err := DecodeEmbedding(payload)
	if err != nil {
		e.logger.Warn("unexpected embedding response", "response", core.Truncate(string(payload), 2048), "err", err)
		return nil, err
	}
	e.logger.Debug("embedded text", "length", len(text), "dims", len(vector), "shape", shape)
	return vector, nil
}

// EmbedTexts embeds each text in turn.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vector, err := e.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vector)
	}
	return vectors, nil
}

// DecodeEmbedding reads a vector from either accepted response shape and
// reports which one matched. The data-list shape is tried first.
func DecodeEmbedding(payload []byte) ([]float32, Shape, error) {
	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, "", fmt.Errorf("%w: %w", core.ErrMalformedResponse, err)
	}

	if len(resp.Data) > 0 && len(resp.Data[0].Embedding) > 0 {
		return resp.Data[0].Embedding, ShapeDataList, nil
	}
	if len(resp.Embedding) > 0 {
		return resp.Embedding, ShapeDirect, nil
	}
	return nil, "", fmt.Errorf("%w: no embedding in response", core.ErrMalformedResponse)
}
