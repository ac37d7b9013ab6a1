package mock

import (
	"context"
	"sync"

	"github.com/poiesic/shelfmark/ai"
)

// MockPreviewGenerator is a test double for ai.PreviewGenerator.
type MockPreviewGenerator struct {
	// GeneratePreviewFunc is called by GeneratePreview if set.
	GeneratePreviewFunc func(ctx context.Context, req ai.PreviewRequest) (*ai.Preview, error)

	mu        sync.Mutex
	callCount int
	requests  []ai.PreviewRequest
}

// NewMockPreviewGenerator creates a generator that returns DefaultPreview.
func NewMockPreviewGenerator() *MockPreviewGenerator {
	return &MockPreviewGenerator{}
}

// GeneratePreview records the request and returns the injected or default preview.
func (m *MockPreviewGenerator) GeneratePreview(ctx context.Context, req ai.PreviewRequest) (*ai.Preview, error) {
	m.mu.Lock()
	m.callCount++
	m.requests = append(m.requests, req)
	fn := m.GeneratePreviewFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return DefaultPreview(req.Title), nil
}

// CallCount returns the number of GeneratePreview calls.
func (m *MockPreviewGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Requests returns every request received, in call order.
func (m *MockPreviewGenerator) Requests() []ai.PreviewRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ai.PreviewRequest(nil), m.requests...)
}

// Reset clears the call count and injected behavior.
func (m *MockPreviewGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.requests = nil
	m.GeneratePreviewFunc = nil
}

// DefaultPreview is a well-formed preview for title.
func DefaultPreview(title string) *ai.Preview {
	return &ai.Preview{
		Summary:      "Generated summary of " + title + ".",
		Tags:         []string{"fiction", "classic", "adventure"},
		ReadingLevel: "Intermediate",
		Recommendations: []ai.SimilarBook{
			{Title: "Similar to " + title, Reason: "Shares themes"},
		},
	}
}
