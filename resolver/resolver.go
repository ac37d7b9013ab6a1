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


package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/poiesic/shelfmark/browser"
	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/politeness"
	"github.com/poiesic/shelfmark/retry"
	"github.com/poiesic/shelfmark/storage"
	"golang.org/x/sync/semaphore"
)

// State is a step of the resolution state machine.
type State string

const (
	StateNoIdentifier    State = "no-identifier"
	StateAPILookup       State = "api-lookup"
	StateAPIEmpty        State = "api-empty"
	StateScrape          State = "scrape"
	StateIdentifierFound State = "identifier-found"
	StateScrapeFailed    State = "scrape-failed"
	StateTerminal        State = "terminal"
)

// Outcome is how a resolution ended.
type Outcome string

const (
	OutcomeFound    Outcome = "found"
	OutcomeNotFound Outcome = "not-found"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
)

// Source names the lookup that produced an identifier.
type Source string

const (
	SourceAPI    Source = "api"
	SourceScrape Source = "scrape"
)

// Resolution records what happened to one record.
type Resolution struct {
	RecordId    core.ID
	WorkKey     string
	Identifier  string
	Source      Source
	Outcome     Outcome
	States      []State
	Navigations int
	// Written is false when the identifier was already stored or in dry-run mode.
	Written bool
	Err     error
}

func (r *Resolution) enter(s State) {
	r.States = append(r.States, s)
}

func (r *Resolution) finish(outcome Outcome, err error) *Resolution {
	r.Outcome = outcome
	r.Err = err
	if outcome != OutcomeSkipped {
		r.enter(StateTerminal)
	}
	return r
}

// Catalog is the structured API and page layout the resolver looks up.
type Catalog interface {
	EditionIdentifiers(ctx context.Context, workKey string) ([]string, error)
	EditionsPageURL(workKey string) string
}

// RobotsChecker decides whether a page may be scraped.
type RobotsChecker interface {
	Allowed(ctx context.Context, rawURL string) politeness.Decision
}

// Pacer spaces consecutive requests to a host.
type Pacer interface {
	Wait(ctx context.Context, host string) error
}

// Resolver upgrades placeholder identifiers to verified ones: an API lookup
// first, then a scrape of the editions page under a retry policy.
type Resolver struct {
	records  storage.RecordRepository
	catalog  Catalog
	browser  browser.Browser
	robots   RobotsChecker
	pacer    Pacer
	sessions *semaphore.Weighted
	labels   []string
	policy   retry.Policy
	dryRun   bool
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLabels overrides DefaultLabels.
func WithLabels(labels []string) Option {
	return func(r *Resolver) {
		if len(labels) > 0 {
			r.labels = append([]string(nil), labels...)
		}
	}
}

// WithRetryPolicy overrides retry.DefaultScrapePolicy for the scrape step.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(r *Resolver) {
		r.policy = policy
	}
}

// WithMaxSessions caps concurrently open browser sessions. Default 1.
func WithMaxSessions(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.sessions = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithRobots gates scraping on robots.txt.
func WithRobots(robots RobotsChecker) Option {
	return func(r *Resolver) {
		r.robots = robots
	}
}

// WithPacer paces page navigations.
func WithPacer(pacer Pacer) Option {
	return func(r *Resolver) {
		r.pacer = pacer
	}
}

// WithDryRun resolves without writing identifiers.
func WithDryRun(dryRun bool) Option {
	return func(r *Resolver) {
		r.dryRun = dryRun
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a resolver. browser may be nil, in which case resolution stops
// after the API lookup.
func New(records storage.RecordRepository, catalog Catalog, b browser.Browser, opts ...Option) *Resolver {
	r := &Resolver{
		records:  records,
		catalog:  catalog,
		browser:  b,
		sessions: semaphore.NewWeighted(1),
		labels:   DefaultLabels,
		policy:   retry.DefaultScrapePolicy(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "resolver")
	return r
}

// Resolve drives record through the state machine. The returned Resolution is
// never nil; its Err is also returned. Records that already carry a verified
// identifier are skipped. A found identifier is written with SetIdentifier
// and copied onto record unless the resolver is in dry-run mode.
func (r *Resolver) Resolve(ctx context.Context, record *core.CanonicalRecord) (*Resolution, error) {
	res := &Resolution{RecordId: record.Id, WorkKey: record.ResolutionKey()}

	if record.HasVerifiedIdentifier() {
		res.Identifier = record.Identifier
		return res.finish(OutcomeSkipped, nil), nil
	}
	if res.WorkKey == "" {
		return res.finish(OutcomeSkipped, nil), nil
	}
	res.enter(StateNoIdentifier)

	logger := r.logger.With("record", record.Id, "work", res.WorkKey)

	id, err := r.lookupAPI(ctx, res)
	if err != nil {
		logger.Warn("edition lookup failed, falling back to scrape", "err", err)
	}
	if id == "" {
		res.enter(StateAPIEmpty)
		id, err = r.scrape(ctx, res, logger)
		if err != nil {
			res.enter(StateScrapeFailed)
			outcome := OutcomeFailed
			if errors.Is(err, core.ErrNotFound) {
				outcome = OutcomeNotFound
			}
			logger.Info("identifier not resolved", "outcome", outcome, "navigations", res.Navigations, "err", err)
			res.finish(outcome, err)
			return res, err
		}
	}

	res.enter(StateIdentifierFound)
	res.Identifier = id

	if !r.dryRun {
		written, err := r.records.SetIdentifier(ctx, record.Id, id)
		if err != nil {
			err = fmt.Errorf("store identifier: %w", err)
			res.finish(OutcomeFailed, err)
			return res, err
		}
		res.Written = written
		record.Identifier = id
	}

	logger.Info("identifier resolved", "identifier", id, "source", res.Source, "written", res.Written)
	return res.finish(OutcomeFound, nil), nil
}

func (r *Resolver) lookupAPI(ctx context.Context, res *Resolution) (string, error) {
	res.enter(StateAPILookup)
	ids, err := r.catalog.EditionIdentifiers(ctx, res.WorkKey)
	if err != nil {
		return "", err
	}
	for _, candidate := range ids {
		if id, ok := acceptIdentifier(candidate); ok {
			res.Source = SourceAPI
			return id, nil
		}
	}
	return "", nil
}

func (r *Resolver) scrape(ctx context.Context, res *Resolution, logger *slog.Logger) (string, error) {
	res.enter(StateScrape)
	if r.browser == nil {
		return "", fmt.Errorf("%w: no browser configured", core.ErrNotFound)
	}

	pageURL := r.catalog.EditionsPageURL(res.WorkKey)
	if r.robots != nil {
		decision := r.robots.Allowed(ctx, pageURL)
		if !decision.Allowed {
			return "", fmt.Errorf("%w: %s (%s)", ErrDisallowed, pageURL, decision.Reason)
		}
		if decision.Err != nil {
			logger.Debug("robots.txt unavailable, proceeding", "policy", "fail-open", "err", decision.Err)
		}
	}

	if err := r.sessions.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: browser session: %w", core.ErrResourceExhausted, err)
	}
	defer r.sessions.Release(1)

	session, err := r.browser.Open(ctx)
	if err != nil {
		if !errors.Is(err, core.ErrResourceExhausted) {
			err = fmt.Errorf("%w: %w", core.ErrResourceExhausted, err)
		}
		return "", err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("failed to close browser session", "err", cerr)
		}
	}()

	host := ""
	if u, err := url.Parse(pageURL); err == nil {
		host = u.Host
	}

	var found string
	_, err = retry.Do(ctx, r.policy, func(ctx context.Context, attempt int) error {
		if r.pacer != nil {
			if err := r.pacer.Wait(ctx, host); err != nil {
				return err
			}
		}
		res.Navigations++
		page, err := session.Fetch(ctx, pageURL)
		if err != nil {
			logger.Debug("navigation failed", "attempt", attempt, "err", err)
			return err
		}
		id, err := ExtractIdentifier(page, r.labels)
		if err != nil {
			return err
		}
		found = id
		return nil
	})
	if err != nil {
		return "", err
	}
	res.Source = SourceScrape
	return found, nil
}

// acceptIdentifier normalizes a candidate and accepts it when 10 to 13
// characters remain.
func acceptIdentifier(candidate string) (string, bool) {
	id := core.NormalizeIdentifier(candidate)
	if len(id) < MinIdentifierLength || len(id) > MaxIdentifierLength {
		return "", false
	}
	return id, true
}

// ResolveAll resolves the unresolved records matching filter in ID order.
// Per-record failures are reported in the resolutions; the error is non-nil
// only when records cannot be listed or ctx ends.
func (r *Resolver) ResolveAll(ctx context.Context, filter storage.RecordFilter) ([]*Resolution, error) {
	filter.UnresolvedOnly = true
	records, err := r.records.ListRecords(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list unresolved records: %w", err)
	}

	r.logger.Info("resolving identifiers", "records", len(records), "dry_run", r.dryRun)
	resolutions := make([]*Resolution, 0, len(records))
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return resolutions, err
		}
		res, _ := r.Resolve(ctx, record)
		resolutions = append(resolutions, res)
	}
	return resolutions, nil
}
