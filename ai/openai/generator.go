package openai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/shelfmark/ai"
	"github.com/poiesic/shelfmark/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// PreviewGenerator implements ai.PreviewGenerator using OpenAI-compatible chat APIs.
type PreviewGenerator struct {
	client  llms.Model
	timeout time.Duration
	logger  *slog.Logger
}

func newPreviewGenerator(config *ai.Config) (*PreviewGenerator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.GeneratorHost),
		openai.WithToken(tokenOrNone(config.GeneratorToken)),
		openai.WithModel(config.GeneratorModel),
	)
	if err != nil {
		return nil, err
	}
	return generatorFor(client, config), nil
}

func generatorFor(client llms.Model, config *ai.Config) *PreviewGenerator {
	return &PreviewGenerator{
		client:  client,
		timeout: config.Timeout,
		logger:  slog.Default().With("component", "openai-generator"),
	}
}

// NewPreviewGenerator creates a preview generator using the provided configuration.
//
// Returns ai.PreviewGenerator interface to enforce abstraction.
func NewPreviewGenerator(config *ai.Config) (ai.PreviewGenerator, error) {
	return newPreviewGenerator(config)
}

// GeneratePreview sends a single user prompt and parses the JSON reply.
// A malformed reply is returned as core.ErrMalformedResponse and not retried.
func (g *PreviewGenerator) GeneratePreview(ctx context.Context, req ai.PreviewRequest) (*ai.Preview, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(ai.BuildPreviewPrompt(req)),
			},
		},
	}

	response, err := g.client.GenerateContent(ctx, content,
		llms.WithTemperature(0.3),
		llms.WithMaxTokens(600),
		llms.WithJSONMode())
	if err != nil {
		g.logger.Error("failed to generate preview", "title", req.Title, "err", err)
		return nil, classify(err)
	}

	if len(response.Choices) < 1 {
		return nil, fmt.Errorf("%w: no choices returned from model", core.ErrMalformedResponse)
	}

	raw := response.Choices[0].Content
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
