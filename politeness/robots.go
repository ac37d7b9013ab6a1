package politeness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// Policy decides what a RobotsGate does when robots.txt cannot be read.
type Policy int

const (
	// PolicyFailOpen allows the request when robots.txt cannot be fetched or
	// parsed, so a transient robots error never blocks ingestion.
	PolicyFailOpen Policy = iota
	// PolicyFailClosed denies the request in the same situation.
	PolicyFailClosed
)

func (p Policy) String() string {
	switch p {
	case PolicyFailOpen:
		return "fail-open"
	case PolicyFailClosed:
		return "fail-closed"
	default:
		return "unknown"
	}
}

// ParsePolicy parses the String form of a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "fail-open":
		return PolicyFailOpen, nil
	case "fail-closed":
		return PolicyFailClosed, nil
	}
	return 0, fmt.Errorf("unknown robots policy %q", s)
}

// Decision reasons.
const (
	ReasonAllowed           = "allowed"
	ReasonDisallowed        = "disallowed"
	ReasonRobotsUnavailable = "robots-unavailable"
	ReasonInvalidURL        = "invalid-url"
)

// ErrRobotsUnavailable wraps fetch and parse failures of robots.txt.
var ErrRobotsUnavailable = errors.New("robots.txt unavailable")

// Decision is the outcome of a robots check.
type Decision struct {
	Allowed bool
	Reason  string
	// Err is set when robots.txt could not be read, whatever the policy decided.
	Err error
}

// RobotsGate fetches and caches robots.txt per host.
type RobotsGate struct {
	userAgent string
	policy    Policy
	client    *http.Client
	logger    *slog.Logger

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

// GateOption configures a RobotsGate.
type GateOption func(*RobotsGate)

// WithHTTPClient overrides the HTTP client used to fetch robots.txt.
func WithHTTPClient(client *http.Client) GateOption {
	return func(g *RobotsGate) {
		if client != nil {
			g.client = client
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GateOption {
	return func(g *RobotsGate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewRobotsGate creates a gate that checks rules for userAgent.
func NewRobotsGate(userAgent string, policy Policy, opts ...GateOption) *RobotsGate {
	g := &RobotsGate{
		userAgent: userAgent,
		policy:    policy,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    slog.Default(),
		cache:     make(map[string]*robotstxt.RobotsData),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "robots")
	return g
}

// Policy returns the configured failure policy.
func (g *RobotsGate) Policy() Policy {
	return g.policy
}

// Allowed reports whether rawURL may be fetched. Successfully parsed
// robots.txt files are cached per scheme and host; failures are not cached.
func (g *RobotsGate) Allowed(ctx context.Context, rawURL string) Decision {
	target, err := url.Parse(rawURL)
	if err != nil {
		return Decision{Allowed: false, Reason: ReasonInvalidURL, Err: err}
	}
	if target.Host == "" {
		return Decision{Allowed: false, Reason: ReasonInvalidURL, Err: fmt.Errorf("url %q has no host", rawURL)}
	}

	data, err := g.robots(ctx, target)
	if err != nil {
		switch g.policy {
		case PolicyFailClosed:
			g.logger.Warn("robots.txt unavailable, denying", "host", target.Host, "err", err)
			return Decision{Allowed: false, Reason: ReasonRobotsUnavailable, Err: err}
		default:
			g.logger.Warn("robots.txt unavailable, allowing", "host", target.Host, "err", err)
			return Decision{Allowed: true, Reason: ReasonRobotsUnavailable, Err: err}
		}
	}

	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if data.TestAgent(path, g.userAgent) {
		return Decision{Allowed: true, Reason: ReasonAllowed}
	}
	g.logger.Info("disallowed by robots.txt", "url", rawURL)
	return Decision{Allowed: false, Reason: ReasonDisallowed}
}

func (g *RobotsGate) robots(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	key := target.Scheme + "://" + target.Host

	g.mu.Lock()
	data, ok := g.cache[key]
	g.mu.Unlock()
	if ok {
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRobotsUnavailable, err)
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRobotsUnavailable, err)
	}
	defer resp.Body.Close()

	// 5xx from robots.txt is an outage, not a policy
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrRobotsUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRobotsUnavailable, err)
	}

	data, err = robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRobotsUnavailable, err)
	}

	g.mu.Lock()
	g.cache[key] = data
	g.mu.Unlock()
	return data, nil
}
