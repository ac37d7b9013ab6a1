package resolver

import (
	"fmt"
	"strings"

	"github.com/poiesic/shelfmark/core"
	"golang.org/x/net/html"
)

// DefaultLabels are the label strings tried, in order, when scanning an
// editions page. The site's markup is not consistent about which it uses.
var DefaultLabels = []string{"ISBN 10:", "ISBN 13:", "ISBN:"}

// Identifier length bounds after stripping everything but digits and X.
const (
	MinIdentifierLength = 10
	MaxIdentifierLength = 13
)

// ExtractIdentifier scans the text of page for the first identifier next to
// one of labels. Labels are tried in order; for each text node containing a
// label, the text of its parent element after the label is searched, then
// the text of the parent's next element sibling. The first run of digits
// (hyphens or spaces between groups, trailing X allowed) whose length is 10 to 13 wins.
// Returns an error wrapping ErrNoLabelMatch when nothing matches.
func ExtractIdentifier(page string, labels []string) (string, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrMalformedResponse, err)
	}

	var texts []*html.Node
	collectText(doc, &texts)

	for _, label := range labels {
		if label == "" {
			continue
		}
		for _, node := range texts {
			if !strings.Contains(node.Data, label) {
				continue
			}
			if id, ok := identifierNear(node, label); ok {
				return id, nil
			}
		}
	}
	return "", fmt.Errorf("%w: tried %d labels", ErrNoLabelMatch, len(labels))
}

// collectText appends visible text nodes in document order.
func collectText(n *html.Node, out *[]*html.Node) {
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
		return
	}
	if n.Type == html.TextNode {
		*out = append(*out, n)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, out)
	}
}

func identifierNear(node *html.Node, label string) (string, bool) {
	scope := node.Parent
	if scope == nil {
		scope = node
	}

	text := nodeText(scope)
	if i := strings.Index(text, label); i >= 0 {
		text = text[i+len(label):]
	}
	if id, ok := firstIdentifierRun(text); ok {
		return id, true
	}

	for sib := scope.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type == html.ElementNode {
			return firstIdentifierRun(nodeText(sib))
		}
	}
	return "", false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// firstIdentifierRun returns the first run of digit groups whose length,
// without separators, is in range. Groups may be joined by hyphens or spaces.
// An X is accepted only as the final character.
func firstIdentifierRun(s string) (string, bool) {
	runes := []rune(s)
	for i := 0; i < len(runes); {
		if !isDigit(runes[i]) {
			i++
			continue
		}
		id, next := identifierRun(runes, i)
		if n := len(id); n >= MinIdentifierLength && n <= MaxIdentifierLength {
			return id, true
		}
		i = next
	}
	return "", false
}

// identifierRun reads digit groups starting at start. A further group is
// joined only while the total stays within MaxIdentifierLength, so adjacent
// ISBN-13 and ISBN-10 values are not merged. Returns the run and the index
// to resume scanning from.
func identifierRun(runes []rune, start int) (string, int) {
	var id []rune
	i := start
	for {
		j := i
		for j < len(runes) && isDigit(runes[j]) {
			j++
		}
		group := runes[i:j]
		checkChar := j < len(runes) && (runes[j] == 'x' || runes[j] == 'X')

		size := len(group)
		if checkChar {
			size++
		}
		if len(id) > 0 && len(id)+size > MaxIdentifierLength {
			return string(id), i
		}
		id = append(id, group...)
		if checkChar {
			return string(append(id, 'X')), j + 1
		}

		k := j
		for k < len(runes) && (runes[k] == '-' || runes[k] == ' ') {
			k++
		}
		if k == j || k >= len(runes) || !isDigit(runes[k]) {
			return string(id), j
		}
		i = k
	}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
