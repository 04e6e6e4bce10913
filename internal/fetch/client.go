// Package fetch implements the polite HTTP client used for every outbound
// request: per-host pacing, identifying headers, conditional GET,
// Retry-After handling, bounded transport retries and body caps.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joblens/harvester/internal/harvest"
	"github.com/joblens/harvester/internal/metrics"
	"github.com/joblens/harvester/internal/ratelimit"
)

// Request captures everything needed to fetch one URL.
type Request struct {
	URL          string
	Method       string
	ETag         string
	LastModified string
	Accept       string
	Policy       harvest.DomainPolicy
	Throttled    bool
	OAuth        *harvest.OAuthCredentials
}

// Response is the fetch result. An HTTP error status is data, not an
// error; only transport failures surface as errors.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Size       int64
	Truncated  bool
	Duration   time.Duration
	RetrySlept time.Duration
}

// Config controls Client behavior.
type Config struct {
	UserAgent    string
	Contact      string
	Timeout      time.Duration
	MaxRetries   int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	MaxPageBytes int64
}

// Client is the polite fetcher. It owns the process-wide OAuth2 token
// cache and shares the per-host rate limiter with the scheduler.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *ratelimit.Limiter
	tokens  *TokenCache
	backoff backoffPolicy
	logger  *zap.Logger
	metrics *metrics.Metrics

	// sleep is swapped out in tests; it must honor ctx cancellation.
	sleep func(ctx context.Context, d time.Duration)
}

// New builds a Client.
func New(cfg Config, limiter *ratelimit.Limiter, m *metrics.Metrics, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxPageBytes <= 0 {
		cfg.MaxPageBytes = 2 << 20
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: newTransport(),
		},
		limiter: limiter,
		tokens:  NewTokenCache(),
		backoff: newBackoffPolicy(cfg.MaxRetries, cfg.BackoffBase, cfg.BackoffMax),
		logger:  logger,
		metrics: m,
		sleep:   sleepCtx,
	}
}

// Tokens exposes the OAuth2 cache so tests can clear it.
func (c *Client) Tokens() *TokenCache { return c.tokens }

// Fetch retrieves one URL. Transport failures are retried up to the
// configured bound with exponential backoff; HTTP statuses are returned as
// data. A 429/503 with Retry-After sleeps the advisory delay before
// returning so the caller's next attempt is already paced.
func (c *Client) Fetch(ctx context.Context, req Request) (Response, error) {
	parsed, err := url.Parse(req.URL)
	if err != nil {
		return Response{}, fmt.Errorf("parse url: %w", err)
	}

	if req.Throttled {
		c.limiter.SetPolicy(parsed.Host, ratelimit.Config{
			Capacity:    req.Policy.MaxConcurrency,
			MinInterval: req.Policy.MinInterval,
		})
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx, parsed.Host); err != nil {
			return Response{}, err
		}
		c.metrics.ObserveRateDelay(time.Since(waitStart))
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := c.do(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt >= c.backoff.maxRetries || !retryable(err) {
			break
		}
		delay := c.backoff.delay(attempt + 1)
		c.logger.Debug("transport retry",
			zap.String("url", req.URL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		c.sleep(ctx, delay)
		if ctx.Err() != nil {
			break
		}
	}
	return Response{}, TransportError{Err: lastErr}
}

func (c *Client) do(ctx context.Context, req Request) (Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, nil)
	if err != nil {
		return Response{}, fmt.Errorf("new request: %w", err)
	}

	httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.Contact != "" {
		httpReq.Header.Set("From", c.cfg.Contact)
	}
	if req.Accept != "" {
		httpReq.Header.Set("Accept", req.Accept)
	}
	if req.ETag != "" {
		httpReq.Header.Set("If-None-Match", req.ETag)
	}
	if req.LastModified != "" {
		httpReq.Header.Set("If-Modified-Since", req.LastModified)
	}
	if req.OAuth != nil {
		token, err := c.tokens.Token(ctx, *req.OAuth)
		if err != nil {
			return Response{}, err
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if cerr := httpResp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	limit := c.cfg.MaxPageBytes
	if req.Policy.MaxPageBytes > 0 {
		limit = req.Policy.MaxPageBytes
	}
	// Read one byte past the cap to tell "exactly cap" from "over cap".
	body, err := io.ReadAll(io.LimitReader(httpResp.Body, limit+1))
	if err != nil {
		return Response{}, fmt.Errorf("read body: %w", err)
	}
	truncated := int64(len(body)) > limit
	if truncated {
		body = body[:limit]
		c.logger.Warn("response body truncated",
			zap.String("url", req.URL),
			zap.Int64("cap_bytes", limit),
		)
	}

	resp := Response{
		URL:        req.URL,
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header.Clone(),
		Body:       body,
		Size:       int64(len(body)),
		Truncated:  truncated,
		Duration:   time.Since(start),
	}

	if httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode == http.StatusServiceUnavailable {
		if delay := parseRetryAfter(httpResp.Header.Get("Retry-After"), time.Now()); delay > 0 {
			c.logger.Info("honoring Retry-After",
				zap.String("url", req.URL),
				zap.Int("status", httpResp.StatusCode),
				zap.Duration("delay", delay),
			)
			c.metrics.IncRetryAfter()
			c.sleep(ctx, delay)
			resp.RetrySlept = delay
		}
	}

	return resp, nil
}

// parseRetryAfter accepts either delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
