package openlibrary

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/poiesic/shelfmark/core"
)

// MaxItemSubjects is the number of work subjects carried onto an imported item.
const MaxItemSubjects = 5

type subjectWork struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	Description      Text     `json:"description"`
	Authors          []author `json:"authors"`
	CoverID          int64    `json:"cover_id"`
	FirstPublishYear int      `json:"first_publish_year"`
	Subject          []string `json:"subject"`
	Subjects         []string `json:"subjects"`
}

type author struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type subjectResponse struct {
	Name      string        `json:"name"`
	WorkCount int           `json:"work_count"`
	Works     []subjectWork `json:"works"`
}

// SubjectItems imports up to limit works listed under subject as catalog
// items. Each item carries a placeholder identifier derived from its work key.
func (c *Client) SubjectItems(ctx context.Context, subject string, limit int) ([]core.CatalogItem, error) {
	slug := SubjectSlug(subject)
	if slug == "" {
		return nil, fmt.Errorf("openlibrary: subject must not be empty")
	}
	if limit <= 0 {
		limit = 100
	}

	var resp subjectResponse
	query := url.Values{"limit": []string{fmt.Sprint(limit)}}
	found, err := c.getJSON(ctx, "/subjects/"+url.PathEscape(slug)+".json", query, &resp)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	items := make([]core.CatalogItem, 0, len(resp.Works))
	for _, work := range resp.Works {
		items = append(items, c.itemFromWork(work))
	}
	c.logger.Info("imported subject listing", "subject", slug, "works", len(items))
	return items, nil
}

func (c *Client) itemFromWork(work subjectWork) core.CatalogItem {
	workKey := workKeyFromPath(work.Key)

	title := strings.TrimSpace(work.Title)
	if title == "" {
		title = "Unknown Title"
	}

	var authors []string
	for _, a := range work.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	subjects := work.Subject
	if len(subjects) == 0 {
		subjects = work.Subjects
	}
	if len(subjects) > MaxItemSubjects {
		subjects = subjects[:MaxItemSubjects]
	}

	var identifiers []string
	if workKey != "" {
		identifiers = []string{core.PlaceholderIdentifier(workKey)}
	}

	return core.CatalogItem{
		Title:       title,
		Authors:     authors,
		Identifiers: identifiers,
		Subjects:    append([]string(nil), subjects...),
		CoverURL:    c.CoverURL(work.CoverID),
		PublishYear: work.FirstPublishYear,
		WorkKey:     workKey,
		Summary:     work.Description.String(),
		Language:    "English",
	}
}

// SubjectSlug converts a subject name to the form used in subject URLs,
// e.g. "Science Fiction" to "science_fiction".
func SubjectSlug(subject string) string {
	fields := strings.Fields(strings.ToLower(subject))
	return strings.Join(fields, "_")
}
