package shelfmark

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/poiesic/shelfmark/ai"
	"github.com/poiesic/shelfmark/browser"
	"github.com/poiesic/shelfmark/ingestion"
	"github.com/poiesic/shelfmark/openlibrary"
	"github.com/poiesic/shelfmark/politeness"
	"github.com/poiesic/shelfmark/resolver"
	"github.com/poiesic/shelfmark/retry"
	"github.com/poiesic/shelfmark/search"
)

// Storage backends accepted by StorageConfig.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Config is the complete configuration of a Catalog.
type Config struct {
	Storage     StorageConfig     `toml:"storage"`
	AI          AIConfig          `toml:"ai"`
	OpenLibrary OpenLibraryConfig `toml:"openlibrary"`
	Browser     BrowserConfig     `toml:"browser"`
	Politeness  PolitenessConfig  `toml:"politeness"`
	Resolver    ResolverConfig    `toml:"resolver"`
	Ingestion   IngestionConfig   `toml:"ingestion"`
	Search      SearchConfig      `toml:"search"`
}

type StorageConfig struct {
	// Backend is "sqlite" (a single database file) or "badger" (a directory).
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

type AIConfig struct {
	EmbeddingBackend string `toml:"embedding_backend"`
	EmbeddingHost    string `toml:"embedding_host"`
	EmbeddingModel   string `toml:"embedding_model"`
	EmbeddingToken   string `toml:"-"`
	GeneratorBackend string `toml:"generator_backend"`
	GeneratorHost    string `toml:"generator_host"`
	GeneratorModel   string `toml:"generator_model"`
	GeneratorToken   string `toml:"-"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

type OpenLibraryConfig struct {
	BaseURL        string `toml:"base_url"`
	CoversURL      string `toml:"covers_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	UserAgent      string `toml:"user_agent"`
}

type BrowserConfig struct {
	// RemoteURL is a DevTools websocket endpoint. Empty launches local Chrome.
	RemoteURL                string `toml:"remote_url"`
	Headless                 bool   `toml:"headless"`
	WindowWidth              int    `toml:"window_width"`
	WindowHeight             int    `toml:"window_height"`
	UserAgent                string `toml:"user_agent"`
	NavigationTimeoutSeconds int    `toml:"navigation_timeout_seconds"`
	StartTimeoutSeconds      int    `toml:"start_timeout_seconds"`
	MaxSessions              int    `toml:"max_sessions"`
}

type PolitenessConfig struct {
	MinDelaySeconds float64 `toml:"min_delay_seconds"`
	MaxDelaySeconds float64 `toml:"max_delay_seconds"`
	RobotsUserAgent string  `toml:"robots_user_agent"`
	// RobotsPolicy is "fail-open" or "fail-closed".
	RobotsPolicy string `toml:"robots_policy"`
}

type ResolverConfig struct {
	Attempts         int      `toml:"attempts"`
	BaseDelaySeconds float64  `toml:"base_delay_seconds"`
	MaxDelaySeconds  float64  `toml:"max_delay_seconds"`
	Labels           []string `toml:"labels"`
}

type IngestionConfig struct {
	Workers           int  `toml:"workers"`
	EnrichmentWorkers int  `toml:"enrichment_workers"`
	StaleAfterMinutes int  `toml:"stale_after_minutes"`
	Resolve           bool `toml:"resolve"`
	Enrich            bool `toml:"enrich"`
}

// StaleAfter is how long a Pending ledger entry lives before it may be reclaimed.
func (c IngestionConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}

type SearchConfig struct {
	MinSimilarity float32 `toml:"min_similarity"`
}

// DefaultConfig returns a configuration that works against a local
// OpenAI-compatible server and the public Open Library.
func DefaultConfig() *Config {
	aiDefaults := ai.DefaultConfig()
	browserDefaults := browser.DefaultConfig()
	return &Config{
		Storage: StorageConfig{
			Backend: BackendSQLite,
			Path:    "shelfmark.db",
		},
		AI: AIConfig{
			EmbeddingBackend: aiDefaults.EmbeddingBackend,
			EmbeddingHost:    aiDefaults.EmbeddingHost,
			EmbeddingModel:   aiDefaults.EmbeddingModel,
			GeneratorBackend: aiDefaults.GeneratorBackend,
			GeneratorHost:    aiDefaults.GeneratorHost,
			GeneratorModel:   aiDefaults.GeneratorModel,
			TimeoutSeconds:   int(aiDefaults.Timeout / time.Second),
		},
		OpenLibrary: OpenLibraryConfig{
			BaseURL:        openlibrary.DefaultBaseURL,
			CoversURL:      openlibrary.DefaultCoversURL,
			TimeoutSeconds: int(openlibrary.DefaultTimeout / time.Second),
			UserAgent:      openlibrary.DefaultUserAgent,
		},
		Browser: BrowserConfig{
			Headless:                 browserDefaults.Headless,
			WindowWidth:              browserDefaults.WindowWidth,
			WindowHeight:             browserDefaults.WindowHeight,
			NavigationTimeoutSeconds: int(browserDefaults.NavigationTimeout / time.Second),
			StartTimeoutSeconds:      int(browserDefaults.StartTimeout / time.Second),
			MaxSessions:              browserDefaults.MaxSessions,
		},
		Politeness: PolitenessConfig{
			MinDelaySeconds: 1.0,
			MaxDelaySeconds: 2.5,
			RobotsUserAgent: "shelfmark",
			RobotsPolicy:    politeness.PolicyFailOpen.String(),
		},
		Resolver: ResolverConfig{
			Attempts:         3,
			BaseDelaySeconds: 1,
			MaxDelaySeconds:  8,
			Labels:           append([]string(nil), resolver.DefaultLabels...),
		},
		Ingestion: IngestionConfig{
			Workers:           ingestion.DefaultWorkers,
			EnrichmentWorkers: ingestion.DefaultEnrichmentWorkers,
			StaleAfterMinutes: int(ingestion.DefaultStaleAfter / time.Minute),
			Resolve:           true,
			Enrich:            true,
		},
		Search: SearchConfig{
			MinSimilarity: search.DefaultMinSimilarity,
		},
	}
}

// LoadConfig decodes the TOML file at path over DefaultConfig. Keys absent
// from the file keep their defaults; unknown keys are an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays secrets and endpoints from lookup, usually os.LookupEnv.
//
//	OPENAI_API_KEY         token for openai embedding and generator backends
//	GEMINI_API_KEY         token for the gemini generator backend
//	SHELFMARK_BROWSER_URL  remote DevTools endpoint
//	SHELFMARK_DB           storage path
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if key, ok := get("OPENAI_API_KEY"); ok {
		if c.AI.EmbeddingToken == "" {
			c.AI.EmbeddingToken = key
		}
		if c.AI.GeneratorToken == "" && !strings.EqualFold(c.AI.GeneratorBackend, ai.BackendGemini) {
			c.AI.GeneratorToken = key
		}
	}
	if key, ok := get("GEMINI_API_KEY"); ok && strings.EqualFold(c.AI.GeneratorBackend, ai.BackendGemini) {
		c.AI.GeneratorToken = key
	}
	if v, ok := get("SHELFMARK_BROWSER_URL"); ok {
		c.Browser.RemoteURL = v
	}
	if v, ok := get("SHELFMARK_DB"); ok {
		c.Storage.Path = v
	}
}

// Normalize trims values, lower-cases enumerations and fills zero values
// from DefaultConfig.
func (c *Config) Normalize() {
	def := DefaultConfig()

	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = def.Storage.Backend
	}
	c.Storage.Path = strings.TrimSpace(c.Storage.Path)

	if c.AI.TimeoutSeconds <= 0 {
		c.AI.TimeoutSeconds = def.AI.TimeoutSeconds
	}

	c.OpenLibrary.BaseURL = strings.TrimRight(strings.TrimSpace(c.OpenLibrary.BaseURL), "/")
	if c.OpenLibrary.BaseURL == "" {
		c.OpenLibrary.BaseURL = def.OpenLibrary.BaseURL
	}
	if c.OpenLibrary.TimeoutSeconds <= 0 {
		c.OpenLibrary.TimeoutSeconds = def.OpenLibrary.TimeoutSeconds
	}

	c.Browser.RemoteURL = strings.TrimSpace(c.Browser.RemoteURL)

	c.Politeness.RobotsPolicy = strings.ToLower(strings.TrimSpace(c.Politeness.RobotsPolicy))
	if c.Politeness.RobotsPolicy == "" {
		c.Politeness.RobotsPolicy = def.Politeness.RobotsPolicy
	}

	if len(c.Resolver.Labels) == 0 {
		c.Resolver.Labels = def.Resolver.Labels
	}
	if c.Ingestion.StaleAfterMinutes <= 0 {
		c.Ingestion.StaleAfterMinutes = def.Ingestion.StaleAfterMinutes
	}
}

// Validate normalizes the configuration and checks that it is usable.
func (c *Config) Validate() error {
	c.Normalize()

	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.aiConfig().Validate(); err != nil {
		return err
	}
	if err := c.validateOpenLibrary(); err != nil {
		return err
	}
	if err := c.validatePoliteness(); err != nil {
		return err
	}
	if err := c.validateResolver(); err != nil {
		return err
	}
	if c.Ingestion.Workers <= 0 || c.Ingestion.EnrichmentWorkers <= 0 {
		return errors.New("ingestion.workers and ingestion.enrichment_workers must be positive")
	}
	if c.Search.MinSimilarity < -1 || c.Search.MinSimilarity > 1 {
		return errors.New("search.min_similarity must be between -1 and 1")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendBadger:
	default:
		return fmt.Errorf("storage.backend must be %s or %s, got %q", BackendSQLite, BackendBadger, c.Storage.Backend)
	}
	if c.Storage.Path == "" {
		return errors.New("storage.path must be set")
	}
	return nil
}

func (c *Config) validateOpenLibrary() error {
	u, err := url.Parse(c.OpenLibrary.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("openlibrary.base_url is not an absolute URL: %q", c.OpenLibrary.BaseURL)
	}
	return nil
}

func (c *Config) validatePoliteness() error {
	p := c.Politeness
	if p.MinDelaySeconds < 0 || p.MaxDelaySeconds < p.MinDelaySeconds {
		return errors.New("politeness delays must satisfy 0 <= min_delay_seconds <= max_delay_seconds")
	}
	if _, err := politeness.ParsePolicy(p.RobotsPolicy); err != nil {
		return fmt.Errorf("politeness.robots_policy: %w", err)
	}
	return nil
}

func (c *Config) validateResolver() error {
	r := c.Resolver
	if r.Attempts <= 0 {
		return errors.New("resolver.attempts must be positive")
	}
	if r.BaseDelaySeconds < 0 || r.MaxDelaySeconds < 0 {
		return errors.New("resolver delays must not be negative")
	}
	for _, label := range r.Labels {
		if strings.TrimSpace(label) == "" {
			return errors.New("resolver.labels must not contain blank labels")
		}
	}
	return nil
}

func (c *Config) aiConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingBackend(c.AI.EmbeddingBackend),
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithGeneratorBackend(c.AI.GeneratorBackend),
		ai.WithGeneratorHost(c.AI.GeneratorHost),
		ai.WithGeneratorModel(c.AI.GeneratorModel),
		ai.WithTokens(c.AI.EmbeddingToken, c.AI.GeneratorToken),
		ai.WithTimeout(seconds(float64(c.AI.TimeoutSeconds))),
	)
}

func (c *Config) browserConfig() browser.Config {
	cfg := browser.Config{
		RemoteURL:         c.Browser.RemoteURL,
		Headless:          c.Browser.Headless,
		WindowWidth:       c.Browser.WindowWidth,
		WindowHeight:      c.Browser.WindowHeight,
		UserAgent:         c.Browser.UserAgent,
		NavigationTimeout: seconds(float64(c.Browser.NavigationTimeoutSeconds)),
		StartTimeout:      seconds(float64(c.Browser.StartTimeoutSeconds)),
		MaxSessions:       c.Browser.MaxSessions,
	}
	cfg.Normalize()
	return cfg
}

func (c *Config) retryPolicy() retry.Policy {
	policy := retry.DefaultScrapePolicy()
	policy.MaxAttempts = c.Resolver.Attempts
	policy.BaseDelay = seconds(c.Resolver.BaseDelaySeconds)
	policy.MaxDelay = seconds(c.Resolver.MaxDelaySeconds)
	return policy
}

func (c *Config) robotsPolicy() politeness.Policy {
	policy, err := politeness.ParsePolicy(c.Politeness.RobotsPolicy)
	if err != nil {
		return politeness.PolicyFailOpen
	}
	return policy
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
