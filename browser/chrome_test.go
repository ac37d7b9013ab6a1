package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/shelfmark/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigNormalize(t *testing.T) {
	cfg := Config{WindowWidth: 800}
	cfg.Normalize()

	assert.Equal(t, 1920, cfg.WindowWidth)
	assert.Equal(t, 1080, cfg.WindowHeight)
	assert.Equal(t, 30*time.Second, cfg.NavigationTimeout)
	assert.Equal(t, 20*time.Second, cfg.StartTimeout)
	assert.Equal(t, 2, cfg.MaxSessions)

	custom := Config{WindowWidth: 1024, WindowHeight: 768, NavigationTimeout: time.Second, MaxSessions: 5}
	custom.Normalize()
	assert.Equal(t, 1024, custom.WindowWidth)
	assert.Equal(t, time.Second, custom.NavigationTimeout)
	assert.Equal(t, 5, custom.MaxSessions)
}

func TestNewChromeNormalizes(t *testing.T) {
	c := NewChrome(Config{}, nil)
	assert.Equal(t, 1920, c.Config().WindowWidth)
}

func TestAllocatorOptions(t *testing.T) {
	base := allocatorOptions(DefaultConfig())
	withAgent := DefaultConfig()
	withAgent.UserAgent = "shelfmark-test"

	assert.NotEmpty(t, base)
	assert.Len(t, allocatorOptions(withAgent), len(base)+1)
}

func TestClosedSession(t *testing.T) {
	s := &chromeSession{closed: true}

	_, err := s.Fetch(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, ErrSessionClosed)
	require.NoError(t, s.Close())
}

// silentDevTools accepts connections and never answers, like a wedged
// remote browser.
func silentDevTools(t *testing.T) string {
	t.Helper()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })
	return "ws://" + strings.TrimPrefix(server.URL, "http://") + "/devtools/browser/shelfmark"
}

func TestOpen_StartTimeout(t *testing.T) {
	c := NewChrome(Config{RemoteURL: silentDevTools(t), StartTimeout: 100 * time.Millisecond}, nil)

	start := time.Now()
	session, err := c.Open(context.Background())
	assert.Nil(t, session)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrResourceExhausted)
	assert.Contains(t, err.Error(), "no response within")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestOpen_CallerCancelled(t *testing.T) {
	c := NewChrome(Config{RemoteURL: silentDevTools(t), StartTimeout: time.Minute}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Open(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrResourceExhausted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
