package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joblens/harvester/internal/harvest"
	"github.com/joblens/harvester/internal/ratelimit"
)

func newTestClient(cfg Config) (*Client, *[]time.Duration) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "joblens-harvester/1.0"
	}
	if cfg.Contact == "" {
		cfg.Contact = "crawl@joblens.example"
	}
	limiter := ratelimit.New(ratelimit.Config{Capacity: 10, MinInterval: time.Millisecond})
	c := New(cfg, limiter, nil, zap.NewNop())

	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) {
		slept = append(slept, d)
	}
	return c, &slept
}

func TestFetchSendsPolitenessAndConditionalHeaders(t *testing.T) {
	t.Parallel()

	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	c, _ := newTestClient(Config{})
	resp, err := c.Fetch(context.Background(), Request{
		URL:          srv.URL + "/jobs",
		ETag:         `"v123"`,
		LastModified: "Wed, 01 Jan 2025 00:00:00 GMT",
		Accept:       "text/html",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
	assert.Equal(t, "joblens-harvester/1.0", got.Get("User-Agent"))
	assert.Equal(t, "crawl@joblens.example", got.Get("From"))
	assert.Equal(t, `"v123"`, got.Get("If-None-Match"))
	assert.Equal(t, "Wed, 01 Jan 2025 00:00:00 GMT", got.Get("If-Modified-Since"))
	assert.Equal(t, "text/html", got.Get("Accept"))
}

func TestFetchTruncatesOversizedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	c, _ := newTestClient(Config{})
	resp, err := c.Fetch(context.Background(), Request{
		URL:    srv.URL,
		Policy: harvest.DomainPolicy{MaxPageBytes: 10},
	})
	require.NoError(t, err)

	assert.True(t, resp.Truncated)
	assert.Equal(t, int64(10), resp.Size)
	assert.Len(t, resp.Body, 10)
}

func TestFetchExactCapIsNotTruncated(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 10)))
	}))
	defer srv.Close()

	c, _ := newTestClient(Config{})
	resp, err := c.Fetch(context.Background(), Request{
		URL:    srv.URL,
		Policy: harvest.DomainPolicy{MaxPageBytes: 10},
	})
	require.NoError(t, err)

	assert.False(t, resp.Truncated)
	assert.Len(t, resp.Body, 10)
}

func TestFetchHonorsRetryAfterSeconds(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, slept := newTestClient(Config{})
	resp, err := c.Fetch(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, 30*time.Second, resp.RetrySlept)
	require.Len(t, *slept, 1)
	assert.Equal(t, 30*time.Second, (*slept)[0])
}

func TestFetchDoesNotRetryHTTPErrorStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := newTestClient(Config{MaxRetries: 2})
	resp, err := c.Fetch(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err, "an HTTP status is data, not an error")

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchRetriesTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c, slept := newTestClient(Config{
		MaxRetries:  2,
		BackoffBase: 10 * time.Millisecond,
		BackoffMax:  40 * time.Millisecond,
	})
	_, err := c.Fetch(context.Background(), Request{URL: srv.URL})
	require.Error(t, err)

	assert.True(t, IsTransport(err), "connection refused must surface as a transport error")
	assert.Len(t, *slept, 2, "one backoff sleep per retry")
}

func TestFetchBearerTokenFromOAuthCache(t *testing.T) {
	t.Parallel()

	var tokenCalls atomic.Int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		tokenCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	var auths []string
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auths = append(auths, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer apiSrv.Close()

	c, _ := newTestClient(Config{})
	creds := &harvest.OAuthCredentials{
		TokenURL:     tokenSrv.URL,
		ClientID:     "client",
		ClientSecret: "secret",
	}

	for i := 0; i < 2; i++ {
		_, err := c.Fetch(context.Background(), Request{URL: apiSrv.URL, OAuth: creds})
		require.NoError(t, err)
	}

	require.Len(t, auths, 2)
	assert.Equal(t, "Bearer tok-1", auths[0])
	assert.Equal(t, "Bearer tok-1", auths[1])
	assert.Equal(t, int32(1), tokenCalls.Load(), "token must be cached across requests")
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 30*time.Second, parseRetryAfter("30", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-5", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("garbage", now))

	at := now.Add(90 * time.Second).Format(http.TimeFormat)
	assert.Equal(t, 90*time.Second, parseRetryAfter(at, now))

	past := now.Add(-time.Minute).Format(http.TimeFormat)
	assert.Equal(t, time.Duration(0), parseRetryAfter(past, now))
}
