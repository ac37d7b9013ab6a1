package report

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/poiesic/shelfmark/ingestion"
)

// Summary is the archived report of one ingestion run.
type Summary struct {
	RunID       string         `yaml:"run_id"`
	GeneratedAt time.Time      `yaml:"generated_at"`
	Total       int            `yaml:"total"`
	Counts      map[string]int `yaml:"counts"`
	Items       []Item         `yaml:"items"`
}

// Item is the report line for one ingested item.
type Item struct {
	Index          int    `yaml:"index"`
	Title          string `yaml:"title"`
	Fingerprint    string `yaml:"fingerprint"`
	RecordID       uint64 `yaml:"record_id,omitempty"`
	Status         string `yaml:"status"`
	Reason         string `yaml:"reason"`
	Identifier     string `yaml:"identifier,omitempty"`
	Source         string `yaml:"identifier_source,omitempty"`
	Navigations    int    `yaml:"navigations,omitempty"`
	Provenance     string `yaml:"provenance,omitempty"`
	Error          string `yaml:"error,omitempty"`
	EmbeddingError string `yaml:"embedding_error,omitempty"`
}

// Summarize builds a Summary from pipeline outcomes, in input order.
func Summarize(runID string, outcomes []*ingestion.Outcome) *Summary {
	summary := &Summary{
		RunID:       runID,
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
		Total:       len(outcomes),
		Counts:      make(map[string]int),
		Items:       make([]Item, 0, len(outcomes)),
	}
	for _, outcome := range outcomes {
		item := itemFor(outcome)
		summary.Counts[item.Status]++
		summary.Items = append(summary.Items, item)
	}
	return summary
}

func itemFor(o *ingestion.Outcome) Item {
	item := Item{
		Index:       o.Index,
		Title:       o.Title,
		Fingerprint: o.Fingerprint.Short(),
		RecordID:    uint64(o.RecordId),
		Status:      string(o.Status()),
		Reason:      string(o.Reason),
	}
	if o.Record != nil {
		item.Identifier = o.Record.Identifier
	}
	if o.Err != nil {
		item.Error = o.Err.Error()
	}
	if res := o.Resolution; res != nil {
		if res.Identifier != "" {
			item.Identifier = res.Identifier
		}
		item.Source = string(res.Source)
		item.Navigations = res.Navigations
		if res.Err != nil && item.Error == "" {
			item.Error = res.Err.Error()
		}
	}
	if rep := o.Enrichment; rep != nil {
		if rep.Result != nil {
			item.Provenance = string(rep.Result.Provenance)
		}
		if rep.Err != nil && item.Error == "" {
			item.Error = rep.Err.Error()
		}
		if rep.EmbeddingErr != nil {
			item.EmbeddingError = rep.EmbeddingErr.Error()
		}
	}
	return item
}

// Failed reports how many items ended in a failure status.
func (s *Summary) Failed() int {
	return s.Counts[string(ingestion.StatusFailed)] + s.Counts[string(ingestion.StatusEnrichmentFailed)]
}

// WriteYAML encodes the summary as YAML.
func WriteYAML(w io.Writer, summary *Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}
