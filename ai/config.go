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


package ai

import (
	"errors"
	"strings"
	"time"
)

// Backend names accepted by Config.
const (
	BackendOpenAI = "openai"
	BackendREST   = "rest"
	BackendGemini = "gemini"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingBackend selects the embedding client: "openai" (langchaingo) or
	// "rest" (plain HTTP accepting either embedding response shape).
	EmbeddingBackend string

	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// EmbeddingToken is the bearer token for the embedding service.
	// Local OpenAI-compatible services accept any value.
	EmbeddingToken string

	// GeneratorBackend selects the preview generator: "openai" or "gemini".
	GeneratorBackend string

	// GeneratorHost is the base URL for the generative service API.
	// Ignored by the gemini backend.
	GeneratorHost string

	// GeneratorModel is the model identifier used for preview generation.
	// Example: "qwen2.5:3b", "gpt-4o-mini", "gemini-1.5-flash"
	GeneratorModel string

	// GeneratorToken is the API key for the generative service.
	GeneratorToken string

	// Timeout bounds each generative or embedding call.
	// Default: 30s
	Timeout time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithGeneratorHost sets the generative service host URL.
func WithGeneratorHost(host string) ConfigOption {
	return func(c *Config) {
		c.GeneratorHost = host
	}
}

// WithHost sets both embedding and generator hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.GeneratorHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithGeneratorModel sets the generative model identifier.
func WithGeneratorModel(model string) ConfigOption {
	return func(c *Config) {
		c.GeneratorModel = model
	}
}

// WithEmbeddingBackend selects the embedding client.
func WithEmbeddingBackend(backend string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingBackend = backend
	}
}

// WithGeneratorBackend selects the preview generator.
func WithGeneratorBackend(backend string) ConfigOption {
	return func(c *Config) {
		c.GeneratorBackend = backend
	}
}

// WithTokens sets the embedding and generator credentials.
func WithTokens(embeddingToken, generatorToken string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingToken = embeddingToken
		c.GeneratorToken = generatorToken
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
// By default, embeddings and generation use the same host.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingBackend: BackendOpenAI,
		EmbeddingHost:    defaultHost,
		EmbeddingModel:   "embeddinggemma",
		GeneratorBackend: BackendOpenAI,
		GeneratorHost:    defaultHost,
		GeneratorModel:   "qwen2.5:3b",
		Timeout:          30 * time.Second,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithEmbeddingModel("text-embedding-3-small"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to OpenAI-compatible hosts if missing and lower-cases
// backend names.
func (c *Config) Normalize() {
	c.EmbeddingBackend = strings.ToLower(strings.TrimSpace(c.EmbeddingBackend))
	c.GeneratorBackend = strings.ToLower(strings.TrimSpace(c.GeneratorBackend))
	if c.EmbeddingBackend == BackendOpenAI {
		c.EmbeddingHost = withV1(c.EmbeddingHost)
	}
	if c.GeneratorBackend == BackendOpenAI {
		c.GeneratorHost = withV1(c.GeneratorHost)
	}
}

func withV1(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.EmbeddingBackend {
	case BackendOpenAI, BackendREST:
	default:
		return errors.New("ai config: EmbeddingBackend must be openai or rest")
	}
	switch c.GeneratorBackend {
	case BackendOpenAI, BackendGemini:
	default:
		return errors.New("ai config: GeneratorBackend must be openai or gemini")
	}
	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.GeneratorBackend == BackendOpenAI && c.GeneratorHost == "" {
		return errors.New("ai config: GeneratorHost is required")
	}
	if c.GeneratorBackend == BackendGemini && c.GeneratorToken == "" {
		return errors.New("ai config: GeneratorToken is required for gemini")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.GeneratorModel == "" {
		return errors.New("ai config: GeneratorModel is required")
	}
	if c.Timeout <= 0 {
		return errors.New("ai config: Timeout must be positive")
	}
	return nil
}
