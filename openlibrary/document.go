package openlibrary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Text is a description field, which Open Library returns either as a plain
// string or as {"type": "/type/text", "value": "..."}.
type Text string

// UnmarshalJSON accepts both shapes. null leaves the text empty.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var v struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("description: %w", err)
	}
	*t = Text(v.Value)
	return nil
}

// String returns the trimmed text.
func (t Text) String() string {
	return strings.TrimSpace(string(t))
}

// Reference is a {"key": "..."} link to another document.
type Reference struct {
	Key string `json:"key"`
}

// Document is an edition or work record. Only the fields the catalog uses are decoded.
type Document struct {
	Key         string      `json:"key"`
	Title       string      `json:"title"`
	Description Text        `json:"description"`
	Covers      []int64     `json:"covers"`
	Subjects    []string    `json:"subjects"`
	Subject     []string    `json:"subject"`
	Works       []Reference `json:"works"`
	ISBN13      []string    `json:"isbn_13"`
	ISBN10      []string    `json:"isbn_10"`
}

// Tags merges subjects and subject, dropping blanks and case-insensitive repeats.
func (d *Document) Tags() []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, list := range [][]string{d.Subjects, d.Subject} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			key := strings.ToLower(s)
			if s == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			tags = append(tags, s)
		}
	}
	return tags
}

// CoverURL returns the large image URL of the first valid cover, or "".
func (d *Document) CoverURL(coversBase string) string {
	for _, id := range d.Covers {
		if id > 0 {
			return coverURL(strings.TrimRight(coversBase, "/"), id)
		}
	}
	return ""
}

// WorkKey returns the key of the first linked work, or of the document itself when it is a work.
func (d *Document) WorkKey() string {
	if len(d.Works) > 0 {
		return workKeyFromPath(d.Works[0].Key)
	}
	if strings.HasPrefix(d.Key, "/works/") {
		return workKeyFromPath(d.Key)
	}
	return ""
}

// LookupISBN fetches the edition for an ISBN. Returns nil, nil when Open Library has no such edition.
func (c *Client) LookupISBN(ctx context.Context, isbn string) (*Document, error) {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return nil, fmt.Errorf("openlibrary: isbn must not be empty")
	}
	return c.lookup(ctx, "/isbn/"+url.PathEscape(isbn)+".json")
}

// LookupWork fetches a work by key such as "OL45804W". Returns nil, nil when missing.
func (c *Client) LookupWork(ctx context.Context, workKey string) (*Document, error) {
	workKey = workKeyFromPath(strings.TrimSpace(workKey))
	if workKey == "" {
		return nil, fmt.Errorf("openlibrary: work key must not be empty")
	}
	return c.lookup(ctx, "/works/"+url.PathEscape(workKey)+".json")
}

func (c *Client) lookup(ctx context.Context, path string) (*Document, error) {
	var doc Document
	found, err := c.getJSON(ctx, path, nil, &doc)
	if err != nil || !found {
		return nil, err
	}
	return &doc, nil
}

// CoversBase returns the cover image host.
func (c *Client) CoversBase() string {
	return c.coversURL
}
