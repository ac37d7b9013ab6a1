package gemini

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/poiesic/shelfmark/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"summary": "S"}`)}},
		}},
	}
	text, err := firstText(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"summary": "S"}`, text)

	tests := map[string]*genai.GenerateContentResponse{
		"nil response":  nil,
		"no candidates": {},
		"nil content":   {Candidates: []*genai.Candidate{{}}},
		"no parts":      {Candidates: []*genai.Candidate{{Content: &genai.Content{}}}},
		"blob part": {Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Blob{MIMEType: "image/png"}}},
		}}},
	}
	for name, resp := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := firstText(resp)
			assert.ErrorIs(t, err, core.ErrMalformedResponse)
		})
	}
}
