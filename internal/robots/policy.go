// Package robots fetches, parses and caches robots.txt verdicts per host.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// State tracks how a host's cached entry was obtained.
type State string

// Per-host robots states. An uncached host is fetched on first use and
// moves to one of the cached states; TTL expiry sends it back to unknown.
const (
	StateUnknown          State = "unknown"
	StateAllowedCached    State = "allowed_cached"
	StateDisallowedCached State = "disallowed_cached"
	StateErrorDefault     State = "error_default"
)

// Decision is the gate result for one request path.
type Decision struct {
	Allowed    bool
	CrawlDelay time.Duration
	State      State
}

// Entry is the cached robots.txt outcome for one host.
type Entry struct {
	Rules     Rules
	State     State
	FetchedAt time.Time
}

const (
	maxRobotsBody = 1 << 20
	cacheSize     = 4096
	// errorDelay is the conservative extra pacing applied when robots.txt
	// itself cannot be fetched or parsed.
	errorDelay = time.Second
)

// Policy enforces robots.txt directives per host, caching each verdict for
// a fixed TTL. Error outcomes are cached too, so a failing host is not
// hammered with robots refetches.
type Policy struct {
	client    *http.Client
	cache     *expirable.LRU[string, Entry]
	userAgent string
	logger    *zap.Logger

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

// New builds a Policy identifying itself as userAgent, trusting cached
// entries for ttl.
func New(userAgent string, ttl time.Duration, logger *zap.Logger) *Policy {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Policy{
		client:    &http.Client{Timeout: 10 * time.Second},
		cache:     expirable.NewLRU[string, Entry](cacheSize, nil, ttl),
		userAgent: userAgent,
		logger:    logger,
		inflight:  make(map[string]*sync.Mutex),
	}
}

// Check gates a request. The returned Decision carries the crawl delay the
// caller must honor on top of its own pacing.
func (p *Policy) Check(ctx context.Context, rawURL string) (Decision, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Decision{}, fmt.Errorf("parse url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	if host == "" {
		return Decision{}, fmt.Errorf("url %q has no host", rawURL)
	}

	entry, ok := p.cache.Get(host)
	if !ok {
		entry = p.fetchOnce(ctx, parsed, host)
	}

	allowed := entry.Rules.Allows(parsed.Path)
	d := Decision{
		Allowed:    allowed,
		CrawlDelay: entry.Rules.CrawlDelay,
		State:      entry.State,
	}
	if !allowed {
		d.State = StateDisallowedCached
	}
	return d, nil
}

// fetchOnce serializes the robots fetch per host so a burst of requests to
// a cold host performs one download.
func (p *Policy) fetchOnce(ctx context.Context, parsed *url.URL, host string) Entry {
	p.mu.Lock()
	lock, ok := p.inflight[host]
	if !ok {
		lock = &sync.Mutex{}
		p.inflight[host] = lock
	}
	p.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()

	if entry, ok := p.cache.Get(host); ok {
		return entry
	}

	entry := p.fetch(ctx, parsed)
	// Written back unconditionally, error outcomes included.
	p.cache.Add(host, entry)
	return entry
}

func (p *Policy) fetch(ctx context.Context, parsed *url.URL) Entry {
	robotsURL := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	now := time.Now().UTC()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return Entry{State: StateErrorDefault, FetchedAt: now, Rules: Rules{CrawlDelay: errorDelay, HasDelay: true}}
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("robots fetch failed; allowing with delay",
			zap.String("host", parsed.Host), zap.Error(err))
		return Entry{State: StateErrorDefault, FetchedAt: now, Rules: Rules{CrawlDelay: errorDelay, HasDelay: true}}
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			p.logger.Debug("close robots body", zap.Error(cerr))
		}
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBody))
		if err != nil {
			p.logger.Warn("robots read failed; allowing with delay",
				zap.String("host", parsed.Host), zap.Error(err))
			return Entry{State: StateErrorDefault, FetchedAt: now, Rules: Rules{CrawlDelay: errorDelay, HasDelay: true}}
		}
		return Entry{State: StateAllowedCached, FetchedAt: now, Rules: Parse(body, p.userAgent)}
	case resp.StatusCode == http.StatusNotFound:
		// No robots file: everything allowed, no extra delay.
		return Entry{State: StateAllowedCached, FetchedAt: now}
	default:
		// The target may be flaky rather than hostile; allow but slow down.
		return Entry{State: StateErrorDefault, FetchedAt: now, Rules: Rules{CrawlDelay: errorDelay, HasDelay: true}}
	}
}

// Purge drops every cached entry. Test hook.
func (p *Policy) Purge() {
	p.cache.Purge()
}
