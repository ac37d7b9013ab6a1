// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.PreviewGenerator,
// and ai.AIProvider for use in unit tests. The mocks allow tests to run without
// external AI service dependencies and enable controlled, deterministic behavior.
// All mocks are safe for concurrent use, since the ingestion pipeline calls
// them from worker pools.
//
// # Usage in Tests
//
//	provider := mock.NewMockProvider().(*mock.MockProvider)
//	gen := provider.GetMockGenerator()
//	gen.GeneratePreviewFunc = func(ctx context.Context, req ai.PreviewRequest) (*ai.Preview, error) {
//	    return nil, core.ErrMalformedResponse
//	}
//
//	// Check call counts
//	count := gen.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic vectors based on text hash
//   - MockPreviewGenerator: Returns DefaultPreview for the requested title
//   - MockProvider: Aggregates mock embedder and generator
package mock
