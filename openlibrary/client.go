package openlibrary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/poiesic/shelfmark/core"
)

const (
	// DefaultBaseURL is the public Open Library API.
	DefaultBaseURL = "https://openlibrary.org"

	// DefaultCoversURL serves cover images by id.
	DefaultCoversURL = "https://covers.openlibrary.org"

	// DefaultUserAgent identifies the client to Open Library.
	DefaultUserAgent = "shelfmark/1.0 (+https://github.com/poiesic/shelfmark)"

	// DefaultTimeout bounds each REST call.
	DefaultTimeout = 10 * time.Second
)

// Pacer delays a request to host until it is polite to send it.
type Pacer interface {
	Wait(ctx context.Context, host string) error
}

// Client provides access to the Open Library API.
type Client struct {
	baseURL    string
	coversURL  string
	userAgent  string
	host       string
	httpClient *http.Client
	pacer      Pacer
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithCoversURL overrides the cover image host.
func WithCoversURL(coversURL string) Option {
	return func(c *Client) {
		if coversURL = strings.TrimSpace(coversURL); coversURL != "" {
			c.coversURL = strings.TrimRight(coversURL, "/")
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent = strings.TrimSpace(userAgent); userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithPacer spaces out consecutive requests.
func WithPacer(pacer Pacer) Option {
	return func(c *Client) {
		c.pacer = pacer
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates an Open Library client. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("openlibrary: invalid base url %q", baseURL)
	}

	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		coversURL:  DefaultCoversURL,
		userAgent:  DefaultUserAgent,
		host:       parsed.Host,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = client.logger.With("component", "openlibrary")
	return client, nil
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// EditionsPageURL is the human-facing editions listing of a work.
func (c *Client) EditionsPageURL(workKey string) string {
	return c.baseURL + "/works/" + url.PathEscape(workKey) + "/editions"
}

// PreviewURL is the reader preview page for an ISBN.
func (c *Client) PreviewURL(isbn string) string {
	return c.baseURL + "/isbn/" + url.PathEscape(isbn) + "/preview"
}

// CoverURL builds the large cover image URL for a cover id.
func (c *Client) CoverURL(coverID int64) string {
	return coverURL(c.coversURL, coverID)
}

func coverURL(base string, coverID int64) string {
	if coverID <= 0 {
		return ""
	}
	return fmt.Sprintf("%s/b/id/%d-L.jpg", base, coverID)
}

// getJSON decodes the document at path into out. A 404 returns false with no error.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) (bool, error) {
	if c.pacer != nil {
		if err := c.pacer.Wait(ctx, c.host); err != nil {
			return false, err
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build openlibrary request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return false, ctxErr
		}
		return false, fmt.Errorf("%w: openlibrary %s: %w", core.ErrTransient, path, err)
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.logger.Debug("document not found", "path", path, "latency", latency)
		return false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return false, fmt.Errorf("%w: openlibrary %s returned %d (latency=%v)", core.ErrTransient, path, resp.StatusCode, latency)
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("openlibrary %s returned %d (latency=%v)", path, resp.StatusCode, latency)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return false, fmt.Errorf("%w: read openlibrary %s: %w", core.ErrTransient, path, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Warn("undecodable openlibrary response", "path", path, "response", core.Truncate(string(body), 2048), "err", err)
		return false, fmt.Errorf("%w: decode openlibrary %s: %w", core.ErrMalformedResponse, path, err)
	}
	c.logger.Debug("fetched document", "path", path, "latency", latency)
	return true, nil
}
