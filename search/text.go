package search

import (
	"strings"
	"unicode"

	"github.com/poiesic/shelfmark/core"
)

// Words ignored when matching a query against a title.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "and": true, "in": true,
	"to": true, "for": true, "on": true, "with": true, "at": true, "by": true,
	"from": true, "about": true, "like": true, "book": true, "books": true,
	"novel": true, "novels": true, "similar": true,
}

// titleWords splits text on anything that is not a letter or digit, folds
// case and drops stop words. "Dune: Messiah" yields [dune messiah].
func titleWords(text string) []string {
	words := strings.FieldsFunc(core.NormalizeText(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	filtered := make([]string, 0, len(words))
	for _, word := range words {
		word = strings.Trim(word, "'")
		if word != "" && !stopWords[word] {
			filtered = append(filtered, word)
		}
	}
	return filtered
}

// containsAllQueryWords reports whether every query word appears in title.
// A query made only of stop words never matches.
func containsAllQueryWords(title, query string) bool {
	queryWords := titleWords(query)
	if len(queryWords) == 0 {
		return false
	}

	titleSet := make(map[string]bool)
	for _, word := range titleWords(title) {
		titleSet[word] = true
	}
	for _, word := range queryWords {
		if !titleSet[word] {
			return false
		}
	}
	return true
}
