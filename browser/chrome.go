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


package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/poiesic/shelfmark/core"
)

// Chrome opens sessions with chromedp, against a remote DevTools endpoint
// when one is configured and a local headless process otherwise.
type Chrome struct {
	cfg    Config
	logger *slog.Logger
}

var _ Browser = (*Chrome)(nil)

// NewChrome creates a Chrome browser. A nil logger uses slog.Default().
func NewChrome(cfg Config, logger *slog.Logger) *Chrome {
	cfg.Normalize()
	if logger == nil {
		logger = slog.Default()
	}
	return &Chrome{cfg: cfg, logger: logger.With("component", "browser")}
}

// Config returns the normalized configuration.
func (c *Chrome) Config() Config {
	return c.cfg
}

// Open starts a browser and a tab. Failure to start wraps core.ErrResourceExhausted.
func (c *Chrome) Open(ctx context.Context) (Session, error) {
	// the session outlives the caller's context; only Close ends it
	base := context.WithoutCancel(ctx)

	var allocCtx context.Context
	var allocCancel context.CancelFunc
	if c.cfg.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(base, c.cfg.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(base, allocatorOptions(c.cfg)...)
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			c.logger.Debug(fmt.Sprintf(format, args...))
		}))

	// the first Run starts the browser and must not run under a timeout
	// context, or the browser dies with it; race it against a timer instead
	if err := c.start(ctx, tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: start browser: %w", core.ErrResourceExhausted, err)
	}

	c.logger.Debug("opened browser session", "remote", c.cfg.RemoteURL != "")
	return &chromeSession{
		ctx:         tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		timeout:     c.cfg.NavigationTimeout,
		logger:      c.logger,
	}, nil
}

// start waits for the first Run on tabCtx. On expiry or caller cancellation the
// caller cancels tabCtx, which ends the Run still in flight.
func (c *Chrome) start(ctx, tabCtx context.Context) error {
	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(tabCtx)
	}()

	timer := time.NewTimer(c.cfg.StartTimeout)
	defer timer.Stop()

	select {
	case err := <-started:
		return err
	case <-timer.C:
		return fmt.Errorf("no response within %v", c.cfg.StartTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

type chromeSession struct {
	ctx         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	timeout     time.Duration
	logger      *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Fetch navigates and returns the outer HTML of the document. Navigation
// failures and timeouts wrap core.ErrTransient.
func (s *chromeSession) Fetch(ctx context.Context, url string) (string, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return "", ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: navigate %s: %w", core.ErrTransient, url, err)
	}
	return html, nil
}

// Close shuts the browser down. Later calls are no-ops.
func (s *chromeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := chromedp.Cancel(s.ctx)
	s.tabCancel()
	s.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("browser did not close cleanly", "err", err)
		return err
	}
	return nil
}
