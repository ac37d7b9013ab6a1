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


package politeness

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Default delay range between consecutive lookups to the same host.
const (
	DefaultMinDelay = 1000 * time.Millisecond
	DefaultMaxDelay = 2500 * time.Millisecond
)

// SleepFunc waits for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pacer separates consecutive requests to the same host by a uniformly random
// delay in [min, max]. Hosts are paced independently. Safe for concurrent use;
// concurrent callers for one host are queued one delay apart.
type Pacer struct {
	min, max time.Duration

	mu   sync.Mutex
	next map[string]time.Time

	now    func() time.Time
	jitter func() float64
	sleep  SleepFunc
}

// PacerOption configures a Pacer.
type PacerOption func(*Pacer)

// WithSleep replaces the sleep used between requests.
func WithSleep(sleep SleepFunc) PacerOption {
	return func(p *Pacer) {
		if sleep != nil {
			p.sleep = sleep
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) PacerOption {
	return func(p *Pacer) {
		if now != nil {
			p.now = now
		}
	}
}

// WithJitter replaces the random source; it must return values in [0, 1).
func WithJitter(jitter func() float64) PacerOption {
	return func(p *Pacer) {
		if jitter != nil {
			p.jitter = jitter
		}
	}
}

// NewPacer creates a pacer. A max below min is raised to min; negative values are treated as zero.
func NewPacer(min, max time.Duration, opts ...PacerOption) *Pacer {
	min = maxDuration(min, 0)
	max = maxDuration(max, min)
	p := &Pacer{
		min:    min,
		max:    max,
		next:   make(map[string]time.Time),
		now:    time.Now,
		jitter: rand.Float64,
		sleep:  Sleep,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Wait blocks until a request to host may start. The first request to a host
// never waits.
func (p *Pacer) Wait(ctx context.Context, host string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	now := p.now()
	start := now
	if next, ok := p.next[host]; ok && next.After(now) {
		start = next
	}
	p.next[host] = start.Add(p.delay())
	p.mu.Unlock()

	return p.sleep(ctx, start.Sub(now))
}

// Range returns the configured delay bounds.
func (p *Pacer) Range() (min, max time.Duration) {
	return p.min, p.max
}

func (p *Pacer) delay() time.Duration {
	spread := p.max - p.min
	if spread <= 0 {
		return p.min
	}
	return p.min + time.Duration(p.jitter()*float64(spread))
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
