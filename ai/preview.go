package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/poiesic/shelfmark/core"
)

// previewResponse accepts both response shapes a generative model may return:
// summary/recommendations, or the flatter improved_summary/similar_books.
type previewResponse struct {
	Summary         string          `json:"summary"`
	ImprovedSummary string          `json:"improved_summary"`
	Tags            json.RawMessage `json:"tags"`
	ReadingLevel    string          `json:"reading_level"`
	Recommendations json.RawMessage `json:"recommendations"`
	SimilarBooks    json.RawMessage `json:"similar_books"`
}

// ParsePreview decodes a generative model's reply into a Preview. Markdown code
// fences are stripped and keys missing their opening quote are repaired before
// decoding. A reply that is not a JSON object, or has no summary, returns an
// error wrapping core.ErrMalformedResponse.
func ParsePreview(raw string) (*Preview, error) {
	text := repairJSON(stripFences(raw))

	var resp previewResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrMalformedResponse, err)
	}

	summary := strings.TrimSpace(resp.ImprovedSummary)
	if summary == "" {
		summary = strings.TrimSpace(resp.Summary)
	}
	if summary == "" {
		return nil, fmt.Errorf("%w: response has no summary", core.ErrMalformedResponse)
	}

	tags, err := decodeTags(resp.Tags)
	if err != nil {
		return nil, err
	}

	recs := resp.Recommendations
	if isAbsent(recs) {
		recs = resp.SimilarBooks
	}
	similar, err := decodeSimilarBooks(recs)
	if err != nil {
		return nil, err
	}

	return &Preview{
		Summary:         summary,
		Tags:            tags,
		ReadingLevel:    strings.TrimSpace(resp.ReadingLevel),
		Recommendations: similar,
	}, nil
}

// stripFences removes a surrounding ```json ... ``` block and any prose
// outside the outermost braces.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null" || trimmed == `""` || trimmed == "[]"
}

// decodeTags accepts a list of strings or a single comma-separated string.
func decodeTags(raw json.RawMessage) ([]string, error) {
	if isAbsent(raw) {
		return nil, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var joined string
	if err := json.Unmarshal(raw, &joined); err != nil {
		return nil, fmt.Errorf("%w: tags: %w", core.ErrMalformedResponse, err)
	}
	return strings.Split(joined, ","), nil
}

// decodeSimilarBooks accepts a list of {title, reason} objects, a list of
// titles, or a single comma-separated string of titles.
func decodeSimilarBooks(raw json.RawMessage) ([]SimilarBook, error) {
	if isAbsent(raw) {
		return nil, nil
	}

	var pairs []struct {
		Title  string `json:"title"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &pairs); err == nil {
		books := make([]SimilarBook, 0, len(pairs))
		for _, p := range pairs {
			if title := strings.TrimSpace(p.Title); title != "" {
				books = append(books, SimilarBook{Title: title, Reason: strings.TrimSpace(p.Reason)})
			}
		}
		return books, nil
	}

	var titles []string
	if err := json.Unmarshal(raw, &titles); err != nil {
		var joined string
		if err := json.Unmarshal(raw, &joined); err != nil {
			return nil, fmt.Errorf("%w: recommendations: %w", core.ErrMalformedResponse, err)
		}
		titles = strings.Split(joined, ",")
	}

	books := make([]SimilarBook, 0, len(titles))
	for _, title := range titles {
		if title = strings.TrimSpace(title); title != "" {
			books = append(books, SimilarBook{Title: title})
		}
	}
	return books, nil
}

// repairJSON attempts to fix common JSON formatting issues from LLM responses.
// It specifically handles missing opening quotes before keys in JSON objects.
func repairJSON(s string) string {
	// Pattern: after { or , followed by optional whitespace, then a word followed by ":
	// Example: `, tags":` -> `, "tags":`
	result := []rune(s)
	fixed := make([]rune, 0, len(result)+100)

	i := 0
	for i < len(result) {
		ch := result[i]

		if ch == '{' || ch == ',' {
			fixed = append(fixed, ch)
			i++

			for i < len(result) && (result[i] == ' ' || result[i] == '\n' || result[i] == '\t') {
				fixed = append(fixed, result[i])
				i++
			}

			if i < len(result) && result[i] != '"' && isLetter(result[i]) {
				keyStart := i
				for i < len(result) && (isLetter(result[i]) || result[i] == '_') {
					i++
				}
				keyEnd := i

				if i+1 < len(result) && result[i] == '"' && result[i+1] == ':' {
					fixed = append(fixed, '"')
					fixed = append(fixed, result[keyStart:keyEnd]...)
					// closing quote is already at result[i]
					continue
				}
				fixed = append(fixed, result[keyStart:i]...)
			}
		} else {
			fixed = append(fixed, ch)
			i++
		}
	}

	return string(fixed)
}

// isLetter returns true if the rune is an ASCII letter.
func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
