package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// PreviewGenerator writes preview-card content for a book from its bibliographic
// data. Implementations must be thread-safe for concurrent use.
type PreviewGenerator interface {
	// GeneratePreview asks a generative model for a summary, tags, reading level
	// and recommendations. A response that cannot be parsed into a Preview
	// returns an error wrapping core.ErrMalformedResponse.
	GeneratePreview(ctx context.Context, req PreviewRequest) (*Preview, error)
}

// PreviewRequest carries the book data sent to the generative model.
type PreviewRequest struct {
	Title    string
	Authors  []string
	Genres   []string
	Language string

	// Context is existing descriptive text, already truncated by the caller.
	Context string
}

// Preview is the parsed generative response, before vocabulary checks.
type Preview struct {
	Summary         string
	Tags            []string
	ReadingLevel    string
	Recommendations []SimilarBook
}

// SimilarBook is a recommended title with the reason it was suggested.
type SimilarBook struct {
	Title  string
	Reason string
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// PreviewGenerator returns the generative preview service.
	PreviewGenerator() PreviewGenerator

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
