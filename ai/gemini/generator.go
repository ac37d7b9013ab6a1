// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package gemini implements ai.PreviewGenerator on Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/poiesic/shelfmark/ai"
	"github.com/poiesic/shelfmark/core"
	"google.golang.org/api/option"
)

// PreviewGenerator asks a Gemini model for preview-card content.
type PreviewGenerator struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
	logger  *slog.Logger
}

// NewPreviewGenerator creates a Gemini client from the generator settings of config.
// The caller must Close the generator to release the client.
func NewPreviewGenerator(ctx context.Context, config *ai.Config) (*PreviewGenerator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.GeneratorBackend != ai.BackendGemini {
		return nil, fmt.Errorf("gemini: generator backend is %q", config.GeneratorBackend)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.GeneratorToken))
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}

	model := client.GenerativeModel(config.GeneratorModel)
	model.SetTemperature(0.3)
	model.ResponseMIMEType = "application/json"

	return &PreviewGenerator{
		client:  client,
		model:   model,
		timeout: config.Timeout,
		logger:  slog.Default().With("component", "gemini-generator"),
	}, nil
}

// GeneratePreview sends the preview prompt and parses the first candidate.
func (g *PreviewGenerator) GeneratePreview(ctx context.Context, req ai.PreviewRequest) (*ai.Preview, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.model.GenerateContent(ctx, genai.Text(ai.BuildPreviewPrompt(req)))
	if err != nil {
		g.logger.Error("failed to generate preview", "title", req.Title, "err", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", core.ErrTransient, err)
		}
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	raw, err := firstText(resp)
	if err != nil {
		return nil, err
	}

	preview, err := ai.ParsePreview(raw)
	if err != nil {
		g.logger.Warn("error parsing preview response",
			"title", req.Title,
			"response", core.Truncate(raw, 2048),
			"err", err)
		return nil, err
	}
	return preview, nil
}

// Close releases the underlying client.
func (g *PreviewGenerator) Close() error {
	return g.client.Close()
}

func firstText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates returned from Gemini", core.ErrMalformedResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: empty content returned from Gemini", core.ErrMalformedResponse)
	}

	if txt, ok := candidate.Content.Parts[0].(genai.Text); ok {
		return string(txt), nil
	}
	return "", fmt.Errorf("%w: unexpected response format from Gemini", core.ErrMalformedResponse)
}
