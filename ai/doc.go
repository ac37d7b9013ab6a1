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


// Package ai provides abstractions for AI services used in Shelfmark.
//
// This package defines interfaces for text embeddings and generative preview
// content, and holds the pieces every backend shares: the preview prompt and
// the tolerant parser for generative replies.
//
// # Design Principles
//
// The package is designed around three key interfaces:
//
//   - Embedder: Generates vector embeddings from text
//   - PreviewGenerator: Writes summary, tags, reading level and recommendations
//   - AIProvider: Aggregates AI services for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: Embeddings and generation over OpenAI-compatible APIs (langchaingo)
//   - ai/gemini: Generation over Google's Gemini API
//   - ai/restembed: Embeddings over a plain HTTP endpoint, accepting either response shape
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Backends are mixed with Compose when embeddings and generation come from
// different services.
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, openai.NewEmbedder, etc.) return
// INTERFACE types to enforce abstraction. Test utility constructors
// (mock.NewMockEmbedder, mock.NewMockPreviewGenerator) return CONCRETE types
// to enable test assertions and behavior injection.
//
// # Usage Example
//
//	config := ai.DefaultConfig()
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "Dune")
//	preview, err := provider.PreviewGenerator().GeneratePreview(ctx, ai.PreviewRequest{
//	    Title:   "Dune",
//	    Authors: []string{"Frank Herbert"},
//	})
package ai
