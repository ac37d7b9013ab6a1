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


package openai

import (
	"log/slog"
	"strings"

	"github.com/poiesic/shelfmark/ai"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider implements ai.AIProvider using OpenAI-compatible services.
// When embeddings and generation share an endpoint one client serves both.
type Provider struct {
	embedder  *Embedder
	generator *PreviewGenerator
	shared    bool
	logger    *slog.Logger
}

// NewProvider creates a new AI provider with OpenAI-compatible services for
// both embeddings and generation. The config is validated and normalized before use.
//
// Returns ai.AIProvider interface (not *Provider) to enforce abstraction
// and prevent coupling to OpenAI-specific implementation details.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	p := &Provider{
		shared: sameEndpoint(config),
		logger: slog.Default().With("component", "openai-provider"),
	}

	if !p.shared {
		var err error
		if p.embedder, err = newEmbedder(config); err != nil {
			return nil, err
		}
		if p.generator, err = newPreviewGenerator(config); err != nil {
			return nil, err
		}
		return p, nil
	}

	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(tokenOrNone(config.EmbeddingToken)),
		openai.WithModel(config.GeneratorModel),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}
	if p.embedder, err = embedderFor(client, config); err != nil {
		return nil, err
	}
	p.generator = generatorFor(client, config)
	p.logger.Debug("sharing one client for embeddings and generation", "host", config.EmbeddingHost)
	return p, nil
}

func sameEndpoint(config *ai.Config) bool {
	return strings.TrimRight(config.EmbeddingHost, "/") == strings.TrimRight(config.GeneratorHost, "/") &&
		config.EmbeddingToken == config.GeneratorToken
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// PreviewGenerator returns the preview generation service.
func (p *Provider) PreviewGenerator() ai.PreviewGenerator {
	return p.generator
}

// Close is a no-op; the HTTP clients hold nothing that needs releasing.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider", "shared_client", p.shared)
	return nil
}
