package ai

import (
	"fmt"
	"strings"

	"github.com/poiesic/shelfmark/core"
)

const previewResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "summary": {"type": "string"},
    "tags": {
      "type": "array",
      "items": {"type": "string"},
      "minItems": 3,
      "maxItems": 5
    },
    "reading_level": {"type": "string", "enum": [%s]},
    "recommendations": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "title": {"type": "string"},
          "reason": {"type": "string"}
        },
        "required": ["title", "reason"],
        "additionalProperties": false
      }
    }
  },
  "required": ["summary", "tags", "reading_level", "recommendations"],
  "additionalProperties": false
}`

const previewPromptTemplate = `You are a library metadata engine writing content for a book preview card.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- summary is an engaging 3-4 sentence description of the book, no more than 200 words.
- tags has 3 to 5 short genre or topic tags.
- reading_level must be exactly one of: %s.
- recommendations lists 2 or 3 other books a reader of this one would enjoy, each with a one-sentence reason.
- Do not invent facts about the book that are not implied by the data below.
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

BOOK DATA
Title: %s
Authors: %s
Genres: %s
Language: %s
Context: %s`

// BuildPreviewPrompt renders the single user prompt sent for preview generation.
func BuildPreviewPrompt(req PreviewRequest) string {
	levels := make([]string, len(core.ReadingLevels))
	quoted := make([]string, len(core.ReadingLevels))
	for i, level := range core.ReadingLevels {
		levels[i] = string(level)
		quoted[i] = fmt.Sprintf("%q", level)
	}

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = "Unknown"
	}

	return fmt.Sprintf(previewPromptTemplate,
		fmt.Sprintf(previewResponseSchema, strings.Join(quoted, ", ")),
		strings.Join(levels, ", "),
		req.Title,
		joinOrUnknown(req.Authors),
		joinOrUnknown(req.Genres),
		language,
		req.Context)
}

func joinOrUnknown(values []string) string {
	if joined := strings.Join(values, ", "); joined != "" {
		return joined
	}
	return "Unknown"
}
