package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/shelfmark/browser"
	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/politeness"
	"github.com/poiesic/shelfmark/retry"
	"github.com/poiesic/shelfmark/storage"
	"github.com/poiesic/shelfmark/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const workKey = "OL45804W"

type fakeCatalog struct {
	ids []string
	err error
}

func (c *fakeCatalog) EditionIdentifiers(ctx context.Context, key string) ([]string, error) {
	return c.ids, c.err
}

func (c *fakeCatalog) EditionsPageURL(key string) string {
	return "https://openlibrary.org/works/" + key + "/editions"
}

type step struct {
	page  string
	err   error
	panic bool
}

// scriptedBrowser replays steps across every session it opens.
type scriptedBrowser struct {
	mu      sync.Mutex
	steps   []step
	openErr error
	opened  int
	closed  int
	fetched []string
}

func (b *scriptedBrowser) Open(ctx context.Context) (browser.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.opened++
	return &scriptedSession{b: b}, nil
}

type scriptedSession struct {
	b *scriptedBrowser
}

func (s *scriptedSession) Fetch(ctx context.Context, url string) (string, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.fetched = append(s.b.fetched, url)
	if len(s.b.steps) == 0 {
		return "", errors.New("script exhausted")
	}
	next := s.b.steps[0]
	s.b.steps = s.b.steps[1:]
	if next.panic {
		panic("devtools connection reset")
	}
	return next.page, next.err
}

func (s *scriptedSession) Close() error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.closed++
	return nil
}

type fixedRobots struct {
	decision politeness.Decision
}

func (r fixedRobots) Allowed(ctx context.Context, rawURL string) politeness.Decision {
	return r.decision
}

type countingPacer struct {
	hosts []string
}

func (p *countingPacer) Wait(ctx context.Context, host string) error {
	p.hosts = append(p.hosts, host)
	return nil
}

const editionsPage = `<html><body><div><span>ISBN 10:</span> <span>0441172717</span></div></body></html>`

func fastPolicy() retry.Policy {
	p := retry.DefaultScrapePolicy()
	p.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p
}

func newRecords(t *testing.T) storage.RecordRepository {
	t.Helper()
	records, ledger, enrichments, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		enrichments.Close()
		ledger.Close()
		records.Close()
		backend.Close()
	})
	return records
}

func addPlaceholder(t *testing.T, records storage.RecordRepository) *core.CanonicalRecord {
	t.Helper()
	record, err := records.AddRecord(context.Background(), &core.CanonicalRecord{
		Title:      "Dune",
		Authors:    []string{"Frank Herbert"},
		Identifier: core.PlaceholderIdentifier(workKey),
		WorkKey:    workKey,
	})
	require.NoError(t, err)
	return record
}

func TestResolve_APIHit(t *testing.T) {
	ctx := context.Background()
	records := newRecords(t)
	record := addPlaceholder(t, records)
	b := &scriptedBrowser{}

	r := New(records, &fakeCatalog{ids: []string{"12345", "978-0-441-17271-9"}}, b)
	res, err := r.Resolve(ctx, record)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFound, res.Outcome)
	assert.Equal(t, SourceAPI, res.Source)
	assert.Equal(t, "9780441172719", res.Identifier)
	assert.True(t, res.Written)
	assert.Zero(t, res.Navigations)
	assert.Zero(t, b.opened)
	assert.Equal(t, []State{StateNoIdentifier, StateAPILookup, StateIdentifierFound, StateTerminal}, res.States)

	stored, err := records.GetRecord(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, "9780441172719", stored.Identifier)
}

func TestResolve_ScrapeAfterTransientFailures(t *testing.T) {
	ctx := context.Background()
	records := newRecords(t)
	record := addPlaceholder(t, records)
	b := &scriptedBrowser{steps: []step{
		{err: core.ErrTransient},
		{err: core.ErrTransient},
		{page: editionsPage},
	}}
	pacer := &countingPacer{}

	r := New(records, &fakeCatalog{}, b, WithRetryPolicy(fastPolicy()), WithPacer(pacer))
	res, err := r.Resolve(ctx, record)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFound, res.Outcome)
	assert.Equal(t, SourceScrape, res.Source)
	assert.Equal(t, "0441172717", res.Identifier)
	assert.Equal(t, 3, res.Navigations)
	assert.Len(t, pacer.hosts, 3)
	assert.Equal(t, "openlibrary.org", pacer.hosts[0])
	assert.Equal(t, 1, b.opened)
	assert.Equal(t, 1, b.closed)
	assert.Equal(t, []State{
		StateNoIdentifier, StateAPILookup, StateAPIEmpty, StateScrape, StateIdentifierFound, StateTerminal,
	}, res.States)
}

func TestResolve_NoLabelMatchIsNotRetried(t *testing.T) {
	ctx := context.Background()
	records := newRecords(t)
	record := addPlaceholder(t, records)
	b := &scriptedBrowser{steps: []step{
		{page: `<html><body><p>No editions listed</p></body></html>`},
		{page: editionsPage},
	}}

	r := New(records, &fakeCatalog{}, b, WithRetryPolicy(fastPolicy()))
	res, err := r.Resolve(ctx, record)
	require.ErrorIs(t, err, ErrNoLabelMatch)

	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.Equal(t, 1, res.Navigations)
	assert.Equal(t, 1, b.closed)
	assert.Contains(t, res.States, StateScrapeFailed)

	stored, err := records.GetRecord(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, core.PlaceholderIdentifier(workKey), stored.Identifier)
}

func TestResolve_RetriesExhausted(t *testing.T) {
	ctx := context.Background()
	records := newRecords(t)
	record := addPlaceholder(t, records)
	b := &scriptedBrowser{steps: []step{
		{err: core.ErrTransient},
		{err: core.ErrTransient},
		{err: core.ErrTransient},
		{page: editionsPage},
	}}

	r := New(records, &fakeCatalog{}, b, WithRetryPolicy(fastPolicy()))
	res, err := r.Resolve(ctx, record)
	require.ErrorIs(t, err, core.ErrTransient)

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 3, res.Navigations)
	assert.Equal(t, 1, b.closed)
}

func TestResolve_APIErrorFallsBackToScrape(t *testing.T) {
	records := newRecords(t)
	record := addPlaceholder(t, records)
	b := &scriptedBrowser{steps: []step{{page: editionsPage}}}

	r := New(records, &fakeCatalog{err: core.ErrTransient}, b, WithRetryPolicy(fastPolicy()))
	res, err := r.Resolve(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, SourceScrape, res.Source)
}

func TestResolve_RobotsDisallow(t *testing.T) {
	records := newRecords(t)
	record := addPlaceholder(t, records)
	b := &scriptedBrowser{steps: []step{{page: editionsPage}}}
	robots := fixedRobots{politeness.Decision{Allowed: false, Reason: politeness.ReasonDisallowed}}

	r := New(records, &fakeCatalog{}, b, WithRobots(robots))
	res, err := r.Resolve(context.Background(), record)
	require.ErrorIs(t, err, ErrDisallowed)
	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.Zero(t, b.opened)
	assert.Zero(t, res.Navigations)
}

func TestResolve_RobotsUnavailableFailsOpen(t *testing.T) {
	records := newRecords(t)
	record := addPlaceholder(t, records)
	b := &scriptedBrowser{steps: []step{{page: editionsPage}}}
	robots := fixedRobots{politeness.Decision{
		Allowed: true,
		Reason:  politeness.ReasonRobotsUnavailable,
		Err:     politeness.ErrRobotsUnavailable,
	}}

	r := New(records, &fakeCatalog{}, b, WithRobots(robots), WithRetryPolicy(fastPolicy()))
	res, err := r.Resolve(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFound, res.Outcome)
	assert.Equal(t, SourceScrape, res.Source)
	assert.Equal(t, 1, res.Navigations)
	assert.Equal(t, 1, b.opened)
	assert.Equal(t, 1, b.closed)
}

func TestResolve_SessionClosedOnPanic(t *testing.T) {
	records := newRecords(t)
	record := addPlaceholder(t, records)
	b := &scriptedBrowser{steps: []step{{panic: true}, {page: editionsPage}}}

	r := New(records, &fakeCatalog{}, b, WithMaxSessions(1), WithRetryPolicy(fastPolicy()))
	assert.Panics(t, func() {
		_, _ = r.Resolve(context.Background(), record)
	})
	assert.Equal(t, 1, b.opened)
	assert.Equal(t, 1, b.closed)

	// the only session slot was released
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := r.Resolve(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFound, res.Outcome)
	assert.Equal(t, 2, b.closed)
}

func TestResolve_SessionUnavailable(t *testing.T) {
	records := newRecords(t)
	record := addPlaceholder(t, records)
	b := &scriptedBrowser{openErr: errors.New("chrome not found")}

	r := New(records, &fakeCatalog{}, b)
	res, err := r.Resolve(context.Background(), record)
	require.ErrorIs(t, err, core.ErrResourceExhausted)
	assert.Equal(t, OutcomeFailed, res.Outcome)
}

func TestResolve_SkipsVerified(t *testing.T) {
	records := newRecords(t)
	record, err := records.AddRecord(context.Background(), &core.CanonicalRecord{
		Title:      "Dune",
		Identifier: "9780441172719",
		WorkKey:    workKey,
	})
	require.NoError(t, err)

	catalog := &fakeCatalog{err: errors.New("should not be called")}
	r := New(records, catalog, nil)
	res, err := r.Resolve(context.Background(), record)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Empty(t, res.States)
}

func TestResolve_DryRun(t *testing.T) {
	ctx := context.Background()
	records := newRecords(t)
	record := addPlaceholder(t, records)

	r := New(records, &fakeCatalog{ids: []string{"9780441172719"}}, nil, WithDryRun(true))
	res, err := r.Resolve(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFound, res.Outcome)
	assert.False(t, res.Written)

	stored, err := records.GetRecord(ctx, record.Id)
	require.NoError(t, err)
	assert.Equal(t, core.PlaceholderIdentifier(workKey), stored.Identifier)
}

func TestResolveAll(t *testing.T) {
	ctx := context.Background()
	records := newRecords(t)
	addPlaceholder(t, records)
	_, err := records.AddRecord(ctx, &core.CanonicalRecord{Title: "Emma", Identifier: "9780141439587"})
	require.NoError(t, err)

	r := New(records, &fakeCatalog{ids: []string{"9780441172719"}}, nil)
	resolutions, err := r.ResolveAll(ctx, storage.RecordFilter{})
	require.NoError(t, err)
	require.Len(t, resolutions, 1)
	assert.Equal(t, OutcomeFound, resolutions[0].Outcome)

	again, err := r.ResolveAll(ctx, storage.RecordFilter{})
	require.NoError(t, err)
	assert.Empty(t, again)
}
