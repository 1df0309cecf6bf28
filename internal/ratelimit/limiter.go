// Package ratelimit guards calls to external model services with two sliding
// windows (requests and tokens per minute) and a fixed pool of concurrency
// slots. The limiter never rejects work: callers block until they comply.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"docqa/internal/metrics"
)

// DefaultWindow is the trailing interval both windows are measured over.
const DefaultWindow = time.Minute

// Clock abstracts time so window behaviour can be driven from tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type Config struct {
	RequestsPerMinute int
	TokensPerMinute   int
	MaxConcurrent     int
	Window            time.Duration
}

type tokenEvent struct {
	at    time.Time
	count int
}

type Limiter struct {
	cfg   Config
	clock Clock
	slots *semaphore.Weighted

	mu       sync.Mutex
	requests []time.Time
	tokens   []tokenEvent
}

type Option func(*Limiter)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

func New(cfg Config, opts ...Option) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	l := &Limiter{
		cfg:   cfg,
		clock: realClock{},
		slots: semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AdmitRequest blocks until fewer than RequestsPerMinute requests were
// admitted in the trailing window, then records the admission.
// A non-positive ceiling disables the check.
func (l *Limiter) AdmitRequest(ctx context.Context) error {
	if l.cfg.RequestsPerMinute <= 0 {
		return nil
	}
	for {
		l.mu.Lock()
		now := l.clock.Now()
		l.pruneLocked(now)
		if len(l.requests) < l.cfg.RequestsPerMinute {
			l.requests = append(l.requests, now)
			l.mu.Unlock()
			return nil
		}
		wait := l.requests[0].Add(l.cfg.Window).Sub(now)
		l.mu.Unlock()

		slog.DebugContext(ctx, "request window full, waiting", "wait", wait, "limit", l.cfg.RequestsPerMinute)
		metrics.RateLimitWaits.WithLabelValues("requests").Inc()
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// AdmitTokens blocks until count more tokens fit into the trailing window,
// then records them. Usage is only known after a response arrives, so this
// is called after the fact. An empty window always admits, otherwise a single
// report larger than the ceiling would wait forever.
func (l *Limiter) AdmitTokens(ctx context.Context, count int) error {
	if l.cfg.TokensPerMinute <= 0 || count <= 0 {
		return nil
	}
	for {
		l.mu.Lock()
		now := l.clock.Now()
		l.pruneLocked(now)
		used := 0
		for _, ev := range l.tokens {
			used += ev.count
		}
		if len(l.tokens) == 0 || used+count <= l.cfg.TokensPerMinute {
			l.tokens = append(l.tokens, tokenEvent{at: now, count: count})
			l.mu.Unlock()
			return nil
		}
		wait := l.tokens[0].at.Add(l.cfg.Window).Sub(now)
		l.mu.Unlock()

		slog.DebugContext(ctx, "token window full, waiting", "wait", wait, "used", used, "requested", count)
		metrics.RateLimitWaits.WithLabelValues("tokens").Inc()
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// WithSlot runs fn while holding one of MaxConcurrent slots. The slot is
// released however fn returns.
func (l *Limiter) WithSlot(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	metrics.InFlightCalls.Inc()
	defer func() {
		metrics.InFlightCalls.Dec()
		l.slots.Release(1)
	}()
	return fn(ctx)
}

func (l *Limiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.cfg.Window)

	i := 0
	for i < len(l.requests) && !l.requests[i].After(cutoff) {
		i++
	}
	l.requests = l.requests[i:]

	j := 0
	for j < len(l.tokens) && !l.tokens[j].at.After(cutoff) {
		j++
	}
	l.tokens = l.tokens[j:]
}

func (l *Limiter) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.clock.After(d):
		return nil
	}
}
