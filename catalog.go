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

package shelfmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gofrs/flock"

	"github.com/poiesic/shelfmark/ai"
	"github.com/poiesic/shelfmark/ai/gemini"
	"github.com/poiesic/shelfmark/ai/openai"
	"github.com/poiesic/shelfmark/ai/restembed"
	"github.com/poiesic/shelfmark/browser"
	"github.com/poiesic/shelfmark/core"
	"github.com/poiesic/shelfmark/enrichment"
	"github.com/poiesic/shelfmark/ingestion"
	"github.com/poiesic/shelfmark/openlibrary"
	"github.com/poiesic/shelfmark/politeness"
	"github.com/poiesic/shelfmark/reembed"
	"github.com/poiesic/shelfmark/resolver"
	"github.com/poiesic/shelfmark/search"
	"github.com/poiesic/shelfmark/storage"
	"github.com/poiesic/shelfmark/storage/badger"
	"github.com/poiesic/shelfmark/storage/sqlite"
)

// ErrLocked is returned by Open when another process holds the store lock.
var ErrLocked = errors.New("catalog store is locked by another process")

// Catalog wires the store, AI services, Open Library client, politeness gates
// and browser described by a Config.
type Catalog struct {
	cfg         *Config
	records     storage.RecordRepository
	ledger      storage.LedgerRepository
	enrichments storage.EnrichmentRepository
	store       io.Closer
	lock        *flock.Flock
	provider    ai.AIProvider
	browser     browser.Browser
	openLibrary *openlibrary.Client
	pacer       *politeness.Pacer
	robots      *politeness.RobotsGate
	logger      *slog.Logger
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	logger     *slog.Logger
	provider   ai.AIProvider
	browser    browser.Browser
	noBrowser  bool
	httpClient *http.Client
	exclusive  bool
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *openOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAIProvider uses provider instead of building one from the [ai] section.
// The Catalog closes it.
func WithAIProvider(provider ai.AIProvider) Option {
	return func(o *openOptions) {
		o.provider = provider
	}
}

// WithBrowser uses b instead of Chrome. A nil b disables scraping, so the
// resolver stops after the API lookup.
func WithBrowser(b browser.Browser) Option {
	return func(o *openOptions) {
		o.browser = b
		o.noBrowser = b == nil
	}
}

// WithHTTPClient sets the client used for Open Library, robots.txt and the
// REST embedding backend.
func WithHTTPClient(client *http.Client) Option {
	return func(o *openOptions) {
		o.httpClient = client
	}
}

// WithExclusiveLock holds an exclusive file lock beside the store until Close.
// Open fails with ErrLocked when another process holds it.
func WithExclusiveLock() Option {
	return func(o *openOptions) {
		o.exclusive = true
	}
}

// Open validates cfg and builds a Catalog.
func Open(ctx context.Context, cfg *Config, opts ...Option) (*Catalog, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &openOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	c := &Catalog{cfg: cfg, logger: options.logger}

	if options.exclusive {
		c.lock = flock.New(cfg.Storage.Path + ".lock")
		ok, err := c.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrLocked, c.lock.Path())
		}
	}

	if err := c.openStore(ctx); err != nil {
		c.Close()
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		var err error
		if provider, err = newProvider(ctx, cfg.aiConfig(), options.httpClient); err != nil {
			c.Close()
			return nil, fmt.Errorf("ai provider: %w", err)
		}
	}
	c.provider = provider

	c.pacer = politeness.NewPacer(seconds(cfg.Politeness.MinDelaySeconds), seconds(cfg.Politeness.MaxDelaySeconds))

	gateOpts := []politeness.GateOption{politeness.WithLogger(c.logger)}
	olOpts := []openlibrary.Option{
		openlibrary.WithCoversURL(cfg.OpenLibrary.CoversURL),
		openlibrary.WithUserAgent(cfg.OpenLibrary.UserAgent),
		openlibrary.WithPacer(c.pacer),
		openlibrary.WithLogger(c.logger),
	}
	if options.httpClient != nil {
		gateOpts = append(gateOpts, politeness.WithHTTPClient(options.httpClient))
		olOpts = append(olOpts, openlibrary.WithHTTPClient(options.httpClient))
	}
	olOpts = append(olOpts, openlibrary.WithTimeout(seconds(float64(cfg.OpenLibrary.TimeoutSeconds))))
	c.robots = politeness.NewRobotsGate(cfg.Politeness.RobotsUserAgent, cfg.robotsPolicy(), gateOpts...)

	client, err := openlibrary.New(cfg.OpenLibrary.BaseURL, olOpts...)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.openLibrary = client

	switch {
	case options.browser != nil:
		c.browser = options.browser
	case !options.noBrowser:
		c.browser = browser.NewChrome(cfg.browserConfig(), c.logger)
	}

	c.logger.Debug("catalog opened",
		"backend", cfg.Storage.Backend,
		"path", cfg.Storage.Path,
		"embedding_model", cfg.AI.EmbeddingModel,
		"generator_model", cfg.AI.GeneratorModel,
		"remote_browser", cfg.Browser.RemoteURL != "")
	return c, nil
}

func (c *Catalog) openStore(ctx context.Context) error {
	switch c.cfg.Storage.Backend {
	case BackendBadger:
		store, err := badger.Open(c.cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open badger store: %w", err)
		}
		c.records, c.ledger, c.enrichments, c.store = store.Records, store.Ledger, store.Enrichments, store
	default:
		store, err := sqlite.Open(ctx, c.cfg.Storage.Path)
		if err != nil {
			return err
		}
		c.records, c.ledger, c.enrichments, c.store = store, store, store, store
	}
	return nil
}

// newProvider builds the embedder and generator named by cfg. Both openai
// backends share one provider; mixed backends are composed.
func newProvider(ctx context.Context, cfg *ai.Config, client *http.Client) (ai.AIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.EmbeddingBackend == ai.BackendOpenAI && cfg.GeneratorBackend == ai.BackendOpenAI {
		return openai.NewProvider(cfg)
	}

	var embedder ai.Embedder
	switch cfg.EmbeddingBackend {
	case ai.BackendREST:
		if client == nil {
			client = &http.Client{Timeout: cfg.Timeout}
		}
		rest, err := restembed.New(cfg, client)
		if err != nil {
			return nil, err
		}
		embedder = rest
	default:
		e, err := openai.NewEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		embedder = e
	}

	switch cfg.GeneratorBackend {
	case ai.BackendGemini:
		generator, err := gemini.NewPreviewGenerator(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return ai.Compose(embedder, generator, generator), nil
	default:
		generator, err := openai.NewPreviewGenerator(cfg)
		if err != nil {
			return nil, err
		}
		return ai.Compose(embedder, generator), nil
	}
}

// Close releases the AI provider, the browser, the store and finally the lock.
func (c *Catalog) Close() error {
	var errs []error
	if c.provider != nil {
		if err := c.provider.Close(); err != nil {
			c.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
		c.provider = nil
	}
	if closer, ok := c.browser.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.logger.Error("error closing browser", "err", err)
			errs = append(errs, err)
		}
	}
	c.browser = nil
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Error("error closing store", "err", err)
			errs = append(errs, err)
		}
		c.store = nil
	}
	if c.lock != nil {
		if err := c.lock.Unlock(); err != nil {
			c.logger.Warn("failed to release store lock", "err", err)
			errs = append(errs, err)
		}
		c.lock = nil
	}
	return errors.Join(errs...)
}

func (c *Catalog) Config() *Config {
	return c.cfg
}

func (c *Catalog) Records() storage.RecordRepository {
	return c.records
}

func (c *Catalog) Ledger() storage.LedgerRepository {
	return c.ledger
}

func (c *Catalog) Enrichments() storage.EnrichmentRepository {
	return c.enrichments
}

func (c *Catalog) OpenLibrary() *openlibrary.Client {
	return c.openLibrary
}

func (c *Catalog) Provider() ai.AIProvider {
	return c.provider
}

// NewResolver builds a resolver from the [resolver], [browser] and
// [politeness] sections. opts are applied last.
func (c *Catalog) NewResolver(opts ...resolver.Option) *resolver.Resolver {
	base := []resolver.Option{
		resolver.WithLabels(c.cfg.Resolver.Labels),
		resolver.WithRetryPolicy(c.cfg.retryPolicy()),
		resolver.WithMaxSessions(c.cfg.browserConfig().MaxSessions),
		resolver.WithRobots(c.robots),
		resolver.WithPacer(c.pacer),
		resolver.WithLogger(c.logger),
	}
	return resolver.New(c.records, c.openLibrary, c.browser, append(base, opts...)...)
}

// NewEnricher builds an enricher over the catalog's source and AI services.
func (c *Catalog) NewEnricher(opts ...enrichment.Option) (*enrichment.Enricher, error) {
	base := []enrichment.Option{enrichment.WithLogger(c.logger)}
	return enrichment.New(c.records, c.enrichments, c.openLibrary,
		c.provider.PreviewGenerator(), c.provider.Embedder(), append(base, opts...)...)
}

// NewIngestionPipeline builds a pipeline sized by the [ingestion] section.
// Resolution and enrichment are attached when enabled there. opts are
// applied last.
func (c *Catalog) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	in := c.cfg.Ingestion
	base := []ingestion.Option{
		ingestion.WithWorkers(in.Workers),
		ingestion.WithEnrichmentWorkers(in.EnrichmentWorkers),
		ingestion.WithStaleAfter(in.StaleAfter()),
		ingestion.WithLogger(c.logger),
	}
	if in.Resolve {
		base = append(base, ingestion.WithResolver(c.NewResolver()))
	}
	if in.Enrich {
		enricher, err := c.NewEnricher()
		if err != nil {
			return nil, err
		}
		base = append(base, ingestion.WithEnricher(enricher))
	}
	return ingestion.NewPipeline(c.records, c.ledger, append(base, opts...)...)
}

// StaleLedgerEntries lists the Pending entries an ingestion run would reclaim.
// It needs no resolver or enricher, so it works on a catalog opened without AI.
func (c *Catalog) StaleLedgerEntries(ctx context.Context, opts ...ingestion.Option) ([]*core.LedgerEntry, error) {
	base := []ingestion.Option{
		ingestion.WithWorkers(1),
		ingestion.WithEnrichmentWorkers(1),
		ingestion.WithStaleAfter(c.cfg.Ingestion.StaleAfter()),
		ingestion.WithLogger(c.logger),
	}
	pipeline, err := ingestion.NewPipeline(c.records, c.ledger, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	defer pipeline.Release()
	return pipeline.Stale(ctx)
}

func (c *Catalog) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	base := []search.Option{
		search.WithMinSimilarity(c.cfg.Search.MinSimilarity),
		search.WithLogger(c.logger),
	}
	return search.NewSearcher(c.records, c.enrichments, c.provider.Embedder(), append(base, opts...)...)
}

// NewReembedder builds a bulk embedding refresh writing progress to w.
func (c *Catalog) NewReembedder(config *reembed.Config, w io.Writer) *reembed.Reembedder {
	return reembed.NewReembedder(c.records, c.enrichments, c.provider.Embedder(), config, w)
}
