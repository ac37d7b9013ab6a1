package openlibrary

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/poiesic/shelfmark/core"
)

// EditionsLimit is the page size requested from the editions endpoint.
const EditionsLimit = 50

type editionsResponse struct {
	Entries []Document `json:"entries"`
}

// EditionIdentifiers lists candidate ISBNs across a work's editions, in
// edition order. Each edition contributes its first ISBN-13, or its first
// ISBN-10 when it has none. Returns nil when the work has no editions.
func (c *Client) EditionIdentifiers(ctx context.Context, workKey string) ([]string, error) {
	workKey = workKeyFromPath(strings.TrimSpace(workKey))
	if workKey == "" {
		return nil, fmt.Errorf("openlibrary: work key must not be empty")
	}

	var resp editionsResponse
	query := url.Values{"limit": []string{fmt.Sprint(EditionsLimit)}}
	found, err := c.getJSON(ctx, "/works/"+url.PathEscape(workKey)+"/editions.json", query, &resp)
	if err != nil || !found {
		return nil, err
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, edition := range resp.Entries {
		candidates := edition.ISBN13
		if len(candidates) == 0 {
			candidates = edition.ISBN10
		}
		if len(candidates) == 0 {
			continue
		}
		id := strings.TrimSpace(candidates[0])
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func workKeyFromPath(path string) string {
	return core.WorkKeyFromPath(path)
}
