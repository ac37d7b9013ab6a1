package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/enrichment"
	"github.com/poiesic/shelfmark/storage"
)

const (
	// DefaultWorkers sizes the dedup and resolution pool. Kept small: the
	// limit is external rate limits, not CPU.
	DefaultWorkers = 2

	// DefaultEnrichmentWorkers sizes the enrichment pool.
	DefaultEnrichmentWorkers = 4

	// DefaultStaleAfter is how long a Pending entry is trusted to belong to a live worker.
	DefaultStaleAfter = 30 * time.Minute
)

// Pipeline orchestrates the ingestion of catalog items.
type Pipeline struct {
	records    storage.RecordRepository
	ledger     storage.LedgerRepository
	resolver   Resolver
	enricher   Enricher
	pool       *ants.Pool
	enrichPool *ants.Pool
	locks      *fingerprintLocks
	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithWorkers sets the number of items admitted and resolved concurrently.
// Default is DefaultWorkers.
func WithWorkers(size int) Option {
	return func(p *Pipeline) error {
		pool, err := ants.NewPool(max(size, 1))
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithEnrichmentWorkers sets the number of concurrent enrichments.
// Default is DefaultEnrichmentWorkers.
func WithEnrichmentWorkers(size int) Option {
	return func(p *Pipeline) error {
		pool, err := ants.NewPool(max(size, 1))
		if err != nil {
			return err
		}
		if p.enrichPool != nil {
			p.enrichPool.Release()
		}
		p.enrichPool = pool
		return nil
	}
}

// WithResolver enables identifier resolution for new records.
func WithResolver(r Resolver) Option {
	return func(p *Pipeline) error {
		p.resolver = r
		return nil
	}
}

// WithEnricher enables enrichment for new records.
func WithEnricher(e Enricher) Option {
	return func(p *Pipeline) error {
		p.enricher = e
		return nil
	}
}

// WithStaleAfter sets how old a Pending ledger entry must be before it is
// reclaimed. Default is DefaultStaleAfter.
func WithStaleAfter(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return fmt.Errorf("stale-after must be positive, got %v", d)
		}
		p.staleAfter = d
		return nil
	}
}

// WithClock overrides the clock used for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		if now != nil {
			p.now = now
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline. Without WithResolver and
// WithEnricher it only deduplicates and creates records.
func NewPipeline(records storage.RecordRepository, ledger storage.LedgerRepository, opts ...Option) (*Pipeline, error) {
	if records == nil {
		return nil, ErrRecordRepositoryRequired
	}
	if ledger == nil {
		return nil, ErrLedgerRepositoryRequired
	}

	p := &Pipeline{
		records:    records,
		ledger:     ledger,
		locks:      newFingerprintLocks(),
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		logger:     slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}

	if p.pool == nil {
		if err := WithWorkers(DefaultWorkers)(p); err != nil {
			p.Release()
			return nil, err
		}
	}
	if p.enrichPool == nil {
		if err := WithEnrichmentWorkers(DefaultEnrichmentWorkers)(p); err != nil {
			p.Release()
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "ingestion")
	return p, nil
}

// Ingest runs one item through every stage synchronously.
func (p *Pipeline) Ingest(ctx context.Context, item *core.CatalogItem, sourceURL string) *Outcome {
	outcome := p.admit(ctx, 0, item, sourceURL)
	if outcome.needsFollowUp() {
		p.resolve(ctx, outcome)
		p.enrich(ctx, outcome)
	}
	return outcome
}

// Run ingests items concurrently and returns one outcome per item, in input
// order. Cancelling ctx stops new items from starting; they are reported
// skipped. Items already started finish on a context detached from ctx, so
// no ledger entry is left Pending by the cancellation itself.
func (p *Pipeline) Run(ctx context.Context, items []core.CatalogItem, sourceURL string) []*Outcome {
	outcomes := make([]*Outcome, len(items))
	work := context.WithoutCancel(ctx)

	p.logger.Info("ingesting items", "items", len(items))

	var wg sync.WaitGroup
	for i := range items {
		item := &items[i]
		if ctx.Err() != nil {
			outcomes[i] = skipped(i, item)
			continue
		}

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if v := recover(); v != nil {
					outcomes[i] = p.recoverItem(work, outcomes[i], i, item, v)
				}
			}()
			if ctx.Err() != nil {
				outcomes[i] = skipped(i, item)
				return
			}

			outcome := p.admit(work, i, item, sourceURL)
			outcomes[i] = outcome
			if !outcome.needsFollowUp() {
				return
			}
			p.resolve(work, outcome)

			if p.enricher == nil {
				return
			}
			wg.Add(1)
			if err := p.enrichPool.Submit(func() {
				defer wg.Done()
				defer func() {
					if v := recover(); v != nil {
						p.logger.Error("recovered from panic while enriching", "record", outcome.RecordId, "panic", v)
						outcome.Enrichment = &enrichment.Report{
							RecordId: outcome.RecordId,
							Err:      fmt.Errorf("%w: %v", ErrPanic, v),
						}
					}
				}()
				p.enrich(work, outcome)
			}); err != nil {
				wg.Done()
				p.logger.Error("error submitting enrichment", "index", i, "err", err)
			}
		})
		if err != nil {
			wg.Done()
			outcomes[i] = &Outcome{Index: i, Title: item.Title, Reason: ReasonFailed, Err: err}
		}
	}
	wg.Wait()

	counts := make(map[Status]int)
	for i, o := range outcomes {
		if o == nil {
			o = &Outcome{Index: i, Title: items[i].Title, Reason: ReasonFailed, Err: ErrPanic}
			outcomes[i] = o
		}
		counts[o.Status()]++
	}
	p.logger.Info("ingestion finished", "items", len(items), "created", counts[StatusCreated],
		"matched", counts[StatusMatchedExisting], "failed", counts[StatusFailed], "skipped", counts[StatusSkipped])
	return outcomes
}

// recoverItem settles an item whose processing panicked. An item that never
// got past dedup becomes a failed outcome and its Pending ledger entry is
// marked Failed so a later run retries it. A record already created keeps its
// outcome and carries the panic as Err.
func (p *Pipeline) recoverItem(ctx context.Context, outcome *Outcome, index int, item *core.CatalogItem, v any) *Outcome {
	err := fmt.Errorf("%w: %v", ErrPanic, v)
	fp := item.Fingerprint()
	logger := p.logger.With("fingerprint", fp.Short())
	logger.Error("recovered from panic while ingesting item", "index", index, "title", item.Title, "panic", v)

	if outcome != nil && outcome.Reason != ReasonFailed && outcome.Record != nil {
		outcome.Err = err
		return outcome
	}

	if entry, lookupErr := p.ledger.Lookup(ctx, fp); lookupErr == nil && entry.Status == core.LedgerPending {
		p.markFailed(ctx, entry, logger)
	}
	return &Outcome{Index: index, Fingerprint: fp, Title: item.Title, Reason: ReasonFailed, Err: err}
}

func skipped(index int, item *core.CatalogItem) *Outcome {
	return &Outcome{
		Index:       index,
		Fingerprint: item.Fingerprint(),
		Title:       item.Title,
		Reason:      ReasonSkipped,
		Err:         ErrCancelled,
	}
}

// admit settles the dedup decision for an item while holding its fingerprint lock.
func (p *Pipeline) admit(ctx context.Context, index int, item *core.CatalogItem, sourceURL string) *Outcome {
	outcome := &Outcome{Index: index, Title: item.Title}
	if err := core.ValidateCatalogItem(item); err != nil {
		outcome.Reason = ReasonFailed
		outcome.Err = err
		return outcome
	}

	fp := item.Fingerprint()
	outcome.Fingerprint = fp
	logger := p.logger.With("fingerprint", fp.Short())

	unlock := p.locks.lock(fp)
	defer unlock()

	record, created, reason, err := p.dedup(ctx, item, fp, sourceURL, logger)
	outcome.Record = record
	outcome.Created = created
	outcome.Reason = reason
	outcome.Err = err
	if record != nil {
		outcome.RecordId = record.Id
	}
	if err != nil {
		logger.Error("error ingesting item", "title", item.Title, "err", err)
	} else {
		logger.Debug("item admitted", "title", item.Title, "reason", reason, "record", outcome.RecordId)
	}
	return outcome
}

func (p *Pipeline) dedup(ctx context.Context, item *core.CatalogItem, fp core.Fingerprint, sourceURL string, logger *slog.Logger) (*core.CanonicalRecord, bool, Reason, error) {
	entry, err := p.ledger.Lookup(ctx, fp)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		entry = nil
	case err != nil:
		return nil, false, ReasonFailed, fmt.Errorf("ledger lookup: %w", err)
	}

	attempts := 1
	if entry != nil {
		switch entry.Status {
		case core.LedgerDone:
			return p.alreadyImported(ctx, entry)
		case core.LedgerPending:
			if !entry.IsStale(p.now(), p.staleAfter) {
				return nil, false, ReasonInProgress, nil
			}
			logger.Info("reclaiming stale ledger entry", "attempts", entry.Attempts, "updated", entry.UpdatedAt)
		}
		attempts = entry.Attempts + 1
	}

	pending := &core.LedgerEntry{
		Fingerprint: fp,
		Status:      core.LedgerPending,
		SourceURL:   sourceURL,
		Attempts:    attempts,
	}
	if _, err := p.ledger.Record(ctx, pending); err != nil {
		if errors.Is(err, storage.ErrLedgerFinal) {
			return p.reread(ctx, fp)
		}
		return nil, false, ReasonFailed, fmt.Errorf("mark pending: %w", err)
	}

	record, reason, err := p.match(ctx, item)
	if err != nil {
		p.markFailed(ctx, pending, logger)
		return nil, false, ReasonFailed, err
	}
	if record != nil {
		done := *pending
		done.Status = core.LedgerDone
		done.RecordId = record.Id
		if _, err := p.ledger.Record(ctx, &done); err != nil {
			if errors.Is(err, storage.ErrLedgerFinal) || errors.Is(err, storage.ErrDuplicateKey) {
				return p.reread(ctx, fp)
			}
			p.markFailed(ctx, pending, logger)
			return nil, false, ReasonFailed, fmt.Errorf("mark done: %w", err)
		}
		return record, false, reason, nil
	}

	record, err = p.ledger.CompleteWithRecord(ctx, fp, sourceURL, core.NewRecordFromItem(item))
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) || errors.Is(err, storage.ErrConflict) {
			return p.reread(ctx, fp)
		}
		p.markFailed(ctx, pending, logger)
		return nil, false, ReasonFailed, fmt.Errorf("create record: %w", err)
	}
	return record, true, ReasonCreated, nil
}

// match looks for an existing record: any candidate identifier first, then
// title with the first author's first name.
func (p *Pipeline) match(ctx context.Context, item *core.CatalogItem) (*core.CanonicalRecord, Reason, error) {
	for _, identifier := range item.Identifiers {
		identifier = strings.TrimSpace(identifier)
		if identifier == "" {
			continue
		}
		record, err := p.records.FindByIdentifier(ctx, identifier)
		switch {
		case err == nil:
			return record, ReasonExistingIdentifier, nil
		case !errors.Is(err, storage.ErrNotFound):
			return nil, "", fmt.Errorf("match identifier: %w", err)
		}
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = core.DefaultTitle
	}
	firstName := ""
	if len(item.Authors) > 0 {
		firstName, _ = core.SplitAuthorName(item.Authors[0])
	}
	record, err := p.records.FindByTitleAndAuthor(ctx, core.Truncate(title, core.MaxTitleLength), firstName)
	switch {
	case err == nil:
		return record, ReasonExistingTitleAuthor, nil
	case errors.Is(err, storage.ErrNotFound):
		return nil, "", nil
	default:
		return nil, "", fmt.Errorf("match title and author: %w", err)
	}
}

func (p *Pipeline) alreadyImported(ctx context.Context, entry *core.LedgerEntry) (*core.CanonicalRecord, bool, Reason, error) {
	if entry.RecordId == 0 {
		return nil, false, ReasonAlreadyImported, nil
	}
	record, err := p.records.GetRecord(ctx, entry.RecordId)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &core.CanonicalRecord{Id: entry.RecordId}, false, ReasonAlreadyImported, nil
		}
		return nil, false, ReasonFailed, fmt.Errorf("load linked record: %w", err)
	}
	return record, false, ReasonAlreadyImported, nil
}

// reread settles an item whose fingerprint was completed by another writer.
func (p *Pipeline) reread(ctx context.Context, fp core.Fingerprint) (*core.CanonicalRecord, bool, Reason, error) {
	entry, err := p.ledger.Lookup(ctx, fp)
	if err != nil {
		return nil, false, ReasonFailed, fmt.Errorf("re-read ledger: %w", err)
	}
	if entry.Status != core.LedgerDone {
		return nil, false, ReasonFailed, fmt.Errorf("ledger entry %s is %s after conflict", fp.Short(), entry.Status)
	}
	return p.alreadyImported(ctx, entry)
}

func (p *Pipeline) markFailed(ctx context.Context, pending *core.LedgerEntry, logger *slog.Logger) {
	failed := *pending
	failed.Status = core.LedgerFailed
	if _, err := p.ledger.Record(ctx, &failed); err != nil {
		logger.Error("error marking ledger entry failed", "err", err)
	}
}

func (p *Pipeline) resolve(ctx context.Context, outcome *Outcome) {
	if p.resolver == nil || !outcome.Record.NeedsResolution() {
		return
	}
	// A failed resolution leaves the placeholder in place for enrichment.
	res, err := p.resolver.Resolve(ctx, outcome.Record)
	outcome.Resolution = res
	if err != nil {
		p.logger.Debug("identifier not resolved", "record", outcome.RecordId, "err", err)
	}
}

func (p *Pipeline) enrich(ctx context.Context, outcome *Outcome) {
	if p.enricher == nil {
		return
	}
	outcome.Enrichment = p.enricher.Run(ctx, outcome.RecordId)
}

// Stale returns Pending ledger entries old enough to be reclaimed.
func (p *Pipeline) Stale(ctx context.Context) ([]*core.LedgerEntry, error) {
	return p.ledger.ListStale(ctx, p.now().Add(-p.staleAfter))
}

// Release releases resources including worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
	if p.enrichPool != nil {
		p.enrichPool.Release()
	}
}
