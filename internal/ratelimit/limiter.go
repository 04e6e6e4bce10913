// Package ratelimit implements the per-host token bucket that paces all
// outbound requests.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds the bucket defaults applied to hosts without an explicit
// domain policy.
type Config struct {
	// Capacity is the bucket size, i.e. the maximum number of in-flight
	// permits a host can hold at once.
	Capacity int
	// MinInterval is the spacing between refilled tokens; the refill rate
	// is one token per MinInterval.
	MinInterval time.Duration
}

func (c Config) normalized() Config {
	if c.Capacity <= 0 {
		c.Capacity = 1
	}
	if c.MinInterval <= 0 {
		c.MinInterval = time.Second
	}
	return c
}

func (c Config) limit() rate.Limit {
	return rate.Every(c.MinInterval)
}

// Limiter manages one token bucket per host. Buckets are created lazily on
// first use and live for the process lifetime; refill is computed from
// elapsed wall-clock time inside x/time/rate, so idle hosts cost nothing.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	defaults Config
}

// New creates a Limiter with the given defaults.
func New(defaults Config) *Limiter {
	return &Limiter{
		buckets:  make(map[string]*rate.Limiter),
		defaults: defaults.normalized(),
	}
}

func hostKey(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	key := hostKey(host)
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.defaults.limit(), l.defaults.Capacity)
		l.buckets[key] = b
	}
	return b
}

// SetPolicy applies a host-specific bucket configuration, replacing any
// default bucket created earlier. Calling it again with the same values is
// cheap and keeps the accumulated token state.
func (l *Limiter) SetPolicy(host string, cfg Config) {
	cfg = cfg.normalized()
	key := hostKey(host)
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = rate.NewLimiter(cfg.limit(), cfg.Capacity)
		return
	}
	if b.Limit() != cfg.limit() || b.Burst() != cfg.Capacity {
		b.SetLimit(cfg.limit())
		b.SetBurst(cfg.Capacity)
	}
}

// TryConsume takes a token for host if one is immediately available.
func (l *Limiter) TryConsume(host string) bool {
	return l.bucket(host).Allow()
}

// WaitTime reports how long a caller would wait for the next token without
// consuming one.
func (l *Limiter) WaitTime(host string) time.Duration {
	r := l.bucket(host).Reserve()
	d := r.Delay()
	r.Cancel()
	if d < 0 {
		return 0
	}
	return d
}

// Wait blocks the caller, without blocking other hosts, until one token is
// available for host, then consumes it.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if err := l.bucket(host).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	return nil
}

// Reset drops all buckets. Test hook.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*rate.Limiter)
}
