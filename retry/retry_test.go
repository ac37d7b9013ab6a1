package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/poiesic/shelfmark/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordSleeps returns a Sleep that records waits without blocking.
func recordSleeps(into *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*into = append(*into, d)
		return ctx.Err()
	}
}

func TestDo_Success(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), Policy{MaxAttempts: 3}, func(context.Context, int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts, "should succeed on first try")
	assert.Equal(t, 1, calls)
}

func TestDo_TransientTwiceThenSuccess(t *testing.T) {
	var sleeps []time.Duration
	p := DefaultScrapePolicy()
	p.Sleep = recordSleeps(&sleeps)

	attempts, err := Do(context.Background(), p, func(_ context.Context, attempt int) error {
		if attempt < 3 {
			return fmt.Errorf("%w: timeout", core.ErrTransient)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	var sleeps []time.Duration
	p := DefaultScrapePolicy()
	p.Sleep = recordSleeps(&sleeps)
	parseErr := errors.New("no label match")

	attempts, err := Do(context.Background(), p, func(context.Context, int) error {
		return parseErr
	})
	assert.ErrorIs(t, err, parseErr)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, sleeps)
}

func TestDo_AllAttemptsFail(t *testing.T) {
	var sleeps []time.Duration
	expectedErr := fmt.Errorf("%w: persistent", core.ErrTransient)
	p := DefaultScrapePolicy()
	p.Sleep = recordSleeps(&sleeps)

	attempts, err := Do(context.Background(), p, func(context.Context, int) error {
		return expectedErr
	})
	assert.Equal(t, expectedErr, err, "should return the original error")
	assert.Equal(t, 3, attempts, "should attempt exactly MaxAttempts times")
	assert.Len(t, sleeps, 2, "no sleep after the last attempt")
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	attempts, err := Do(ctx, Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}, func(context.Context, int) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("temporary error")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, attempts)
}

func TestDo_InvalidMaxAttempts(t *testing.T) {
	for _, n := range []int{0, -1} {
		_, err := Do(context.Background(), Policy{MaxAttempts: n}, func(context.Context, int) error { return nil })
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
	}
}

func TestDo_RealSleep(t *testing.T) {
	start := time.Now()
	attempts, err := Do(context.Background(), Policy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond},
		func(_ context.Context, attempt int) error {
			if attempt < 3 {
				return errors.New("retry me")
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	// 10ms + 20ms
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 8 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second, 8 * time.Second}
	for i, w := range want {
		assert.Equal(t, w, p.Delay(i+1), "attempt %d", i+1)
	}

	uncapped := Policy{BaseDelay: time.Millisecond}
	assert.Equal(t, 16*time.Millisecond, uncapped.Delay(5))
}

type timeoutErr struct{ timeout bool }

func (e timeoutErr) Error() string   { return "net" }
func (e timeoutErr) Timeout() bool   { return e.timeout }
func (e timeoutErr) Temporary() bool { return false }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(core.ErrTransient))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", core.ErrTransient)))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(timeoutErr{timeout: true}))

	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(timeoutErr{timeout: false}))
	assert.False(t, IsTransient(core.ErrMalformedResponse))
	assert.False(t, IsTransient(context.Canceled))
}
