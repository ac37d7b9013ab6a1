// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/shelfmark/ai"
	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/openlibrary"
	"github.com/poiesic/shelfmark/storage"
)

const (
	// MaxCatalogTags caps the subjects kept from a catalog document.
	MaxCatalogTags = 8

	// MaxGeneratedTags caps the tags kept from a generated preview.
	MaxGeneratedTags = 5

	// MaxContextLength caps the existing summary passed to the generator, in runes.
	MaxContextLength = 800
)

// Source is the structured metadata lookup used as the first enrichment source.
type Source interface {
	LookupISBN(ctx context.Context, isbn string) (*openlibrary.Document, error)
	LookupWork(ctx context.Context, workKey string) (*openlibrary.Document, error)
	PreviewURL(isbn string) string
	CoversBase() string
}

// Result is the outcome of one text enrichment.
type Result struct {
	Record     *core.EnrichmentRecord
	Provenance core.Provenance

	// SourceErr explains why the catalog source did not supply the text, when
	// the generative fallback was used. ErrNoIdentifier when it was skipped.
	SourceErr error

	// Written is false in dry-run mode.
	Written bool
}

// Report combines text enrichment and embedding refresh for one record.
type Report struct {
	RecordId     core.ID
	Result       *Result
	Err          error
	EmbeddingErr error
}

// OK reports whether the text enrichment succeeded. Embedding failures do not count.
func (r *Report) OK() bool {
	return r.Err == nil
}

// Enricher produces and refreshes EnrichmentRecords.
type Enricher struct {
	records     storage.RecordRepository
	enrichments storage.EnrichmentRepository
	source      Source
	generator   ai.PreviewGenerator
	embedder    ai.Embedder
	dryRun      bool
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithDryRun computes enrichments without writing them.
func WithDryRun(dryRun bool) Option {
	return func(e *Enricher) {
		e.dryRun = dryRun
	}
}

// WithClock overrides the embedding timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Enricher) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enricher) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Enricher. source, generator and embedder may each be nil;
// the corresponding step then reports an error instead of running.
func New(records storage.RecordRepository, enrichments storage.EnrichmentRepository, source Source, generator ai.PreviewGenerator, embedder ai.Embedder, opts ...Option) (*Enricher, error) {
	if records == nil {
		return nil, fmt.Errorf("record repository required")
	}
	if enrichments == nil {
		return nil, fmt.Errorf("enrichment repository required")
	}
	e := &Enricher{
		records:     records,
		enrichments: enrichments,
		source:      source,
		generator:   generator,
		embedder:    embedder,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "enrichment")
	return e, nil
}

// Enrich produces or refreshes the text fields of a record's enrichment.
// The catalog source is tried first when the record has a verified
// identifier; the generative fallback runs when it yields no description.
// A malformed generative response fails the call without writing.
func (e *Enricher) Enrich(ctx context.Context, recordID core.ID) (*Result, error) {
	record, err := e.records.GetRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("load record %d: %w", recordID, err)
	}
	logger := e.logger.With("record", recordID)

	enrichment := &core.EnrichmentRecord{
		RecordId: record.Id,
		CoverURL: record.CoverURL,
	}
	result := &Result{Record: enrichment}

	if record.HasVerifiedIdentifier() {
		identifier := core.NormalizeIdentifier(record.Identifier)
		enrichment.Identifier = identifier
		if e.source != nil {
			enrichment.PreviewURL = e.source.PreviewURL(identifier)
			result.SourceErr = e.fromCatalog(ctx, identifier, enrichment)
		} else {
			result.SourceErr = fmt.Errorf("%w: no catalog source configured", ErrSourceUnavailable)
		}
	} else {
		enrichment.Identifier = record.Identifier
		result.SourceErr = ErrNoIdentifier
	}

	if enrichment.Summary != "" {
		enrichment.Provenance = core.ProvenanceCatalog
	} else {
		if result.SourceErr != nil && !errors.Is(result.SourceErr, ErrNoIdentifier) {
			logger.Info("catalog source failed, using generative fallback", "err", result.SourceErr)
		}
		if err := e.fromGenerator(ctx, record, enrichment); err != nil {
			logger.Warn("enrichment failed", "err", err)
			return nil, err
		}
		enrichment.Provenance = core.ProvenanceGenerative
	}
	result.Provenance = enrichment.Provenance

	if err := core.ValidateEnrichmentRecord(enrichment); err != nil {
		return nil, err
	}

	if e.dryRun {
		logger.Info("enrichment computed (dry run)", "provenance", enrichment.Provenance, "tags", len(enrichment.Tags))
		return result, nil
	}

	stored, err := e.enrichments.UpsertEnrichment(ctx, enrichment)
	if err != nil {
		return nil, fmt.Errorf("store enrichment: %w", err)
	}
	result.Record = stored
	result.Written = true
	logger.Info("enrichment stored", "provenance", stored.Provenance, "tags", len(stored.Tags))
	return result, nil
}

// fromCatalog fills enrichment from the edition document for identifier,
// falling back to the edition's work for the description and subjects.
// The returned error explains a missing description; it never aborts enrichment.
func (e *Enricher) fromCatalog(ctx context.Context, identifier string, enrichment *core.EnrichmentRecord) error {
	doc, err := e.source.LookupISBN(ctx, identifier)
	if err != nil {
		if errors.Is(err, core.ErrMalformedResponse) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if doc == nil {
		return fmt.Errorf("%w: no catalog edition for %s", core.ErrNotFound, identifier)
	}

	enrichment.PreviewAvailable = true
	if cover := doc.CoverURL(e.source.CoversBase()); cover != "" {
		enrichment.CoverURL = cover
	}
	enrichment.Tags = limitTags(doc.Tags(), MaxCatalogTags)

	summary := doc.Description.String()
	if summary == "" {
		workKey := doc.WorkKey()
		if workKey == "" {
			return fmt.Errorf("%w: catalog edition %s has no description", core.ErrNotFound, identifier)
		}
		work, err := e.source.LookupWork(ctx, workKey)
		switch {
		case err != nil && errors.Is(err, core.ErrMalformedResponse):
			return err
		case err != nil:
			return fmt.Errorf("%w: work %s: %w", ErrSourceUnavailable, workKey, err)
		case work == nil:
			return fmt.Errorf("%w: no catalog work %s for %s", core.ErrNotFound, workKey, identifier)
		}
		if len(enrichment.Tags) == 0 {
			enrichment.Tags = limitTags(work.Tags(), MaxCatalogTags)
		}
		summary = work.Description.String()
		if summary == "" {
			return fmt.Errorf("%w: catalog edition %s and work %s have no description", core.ErrNotFound, identifier, workKey)
		}
	}
	enrichment.Summary = summary
	return nil
}

func (e *Enricher) fromGenerator(ctx context.Context, record *core.CanonicalRecord, enrichment *core.EnrichmentRecord) error {
	if e.generator == nil {
		return ErrNoGenerator
	}

	preview, err := e.generator.GeneratePreview(ctx, ai.PreviewRequest{
		Title:    record.Title,
		Authors:  record.Authors,
		Genres:   record.Genres,
		Language: record.Language,
		Context:  core.Truncate(strings.TrimSpace(record.Summary), MaxContextLength),
	})
	if err != nil {
		if errors.Is(err, core.ErrMalformedResponse) || errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	level, ok := core.ParseReadingLevel(preview.ReadingLevel)
	if !ok {
		return fmt.Errorf("%w: reading level %q not in vocabulary", core.ErrMalformedResponse, preview.ReadingLevel)
	}

	enrichment.Summary = strings.TrimSpace(preview.Summary)
	if tags := limitTags(preview.Tags, MaxGeneratedTags); len(tags) > 0 {
		enrichment.Tags = tags
	}
	enrichment.ReadingLevel = level
	enrichment.Recommendations = nil
	for _, book := range preview.Recommendations {
		title := strings.TrimSpace(book.Title)
		if title == "" {
			continue
		}
		enrichment.Recommendations = append(enrichment.Recommendations, core.Recommendation{
			Title:  title,
			Reason: strings.TrimSpace(book.Reason),
		})
	}
	return nil
}

// limitTags trims, drops blanks and case-insensitive repeats, and keeps at most max.
func limitTags(tags []string, max int) []string {
	seen := make(map[string]struct{}, len(tags))
	var out []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
		if len(out) == max {
			break
		}
	}
	return out
}

// Run enriches a record and then refreshes its embedding. The embedding step
// runs even when text enrichment fails, against whatever summary is available.
func (e *Enricher) Run(ctx context.Context, recordID core.ID) *Report {
	report := &Report{RecordId: recordID}
	report.Result, report.Err = e.Enrich(ctx, recordID)
	if e.embedder != nil {
		report.EmbeddingErr = e.RefreshEmbedding(ctx, recordID)
	}
	return report
}

// RunAll runs every record matching filter, in ID order.
func (e *Enricher) RunAll(ctx context.Context, filter storage.RecordFilter) ([]*Report, error) {
	records, err := e.records.ListRecords(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	reports := make([]*Report, 0, len(records))
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		reports = append(reports, e.Run(ctx, record.Id))
	}
	return reports, nil
}
