// Package browser fetches rendered HTML through a headless Chrome session.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrSessionClosed is returned by Fetch after Close.
var ErrSessionClosed = errors.New("browser session closed")

// Browser opens rendering sessions. Sessions are expensive; callers cap how
// many are open at once and must Close every session they open.
type Browser interface {
	Open(ctx context.Context) (Session, error)
}

// Session is one browser tab.
type Session interface {
	// Fetch navigates to url and returns the rendered document HTML.
	Fetch(ctx context.Context, url string) (string, error)

	// Close releases the tab and its browser. Safe to call more than once.
	Close() error
}

// Config configures Chrome sessions.
type Config struct {
	// RemoteURL is a DevTools websocket endpoint (ws://host:9222). Empty
	// launches a local Chrome process per session.
	RemoteURL string

	Headless bool

	WindowWidth  int
	WindowHeight int

	UserAgent string

	// NavigationTimeout bounds each Fetch.
	NavigationTimeout time.Duration

	// StartTimeout bounds starting or attaching to the browser in Open.
	StartTimeout time.Duration

	// MaxSessions caps concurrent sessions. Enforced by callers.
	MaxSessions int
}

// DefaultConfig returns a headless 1920x1080 configuration with a 30s
// navigation timeout, a 20s start timeout and two concurrent sessions.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		WindowWidth:       1920,
		WindowHeight:      1080,
		NavigationTimeout: 30 * time.Second,
		StartTimeout:      20 * time.Second,
		MaxSessions:       2,
	}
}

// Normalize fills zero values from DefaultConfig.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.WindowWidth <= 0 || c.WindowHeight <= 0 {
		c.WindowWidth, c.WindowHeight = def.WindowWidth, def.WindowHeight
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = def.NavigationTimeout
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = def.StartTimeout
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = def.MaxSessions
	}
}
