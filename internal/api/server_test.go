package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joblens/harvester/internal/api"
	"github.com/joblens/harvester/internal/harvest"
	"github.com/joblens/harvester/internal/metrics"
	"github.com/joblens/harvester/internal/storage/memory"
)

func newTestServer(t *testing.T, store *memory.Store) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(api.NewRouter(store, metrics.New(), zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, body
}

func post(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, memory.New())
	resp, body := get(t, srv.URL+"/healthz")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestListSources(t *testing.T) {
	t.Parallel()

	store := memory.New()
	store.PutSource(harvest.Source{
		ID: "s1", Name: "Relief Works", URL: "https://relief.example/jobs",
		Mode: harvest.ModePage, Status: harvest.SourceActive, FrequencyDays: 3,
	})
	store.PutSource(harvest.Source{ID: "gone", Name: "Old", Status: harvest.SourceDeleted})

	srv := newTestServer(t, store)
	resp, body := get(t, srv.URL+"/sources")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var views []map[string]any
	require.NoError(t, json.Unmarshal(body, &views))
	require.Len(t, views, 1, "deleted sources stay hidden")
	assert.Equal(t, "s1", views[0]["id"])
	assert.Equal(t, "active", views[0]["status"])
}

func TestGetSource(t *testing.T) {
	t.Parallel()

	store := memory.New()
	store.PutSource(harvest.Source{
		ID: "s1", Name: "Relief Works", Status: harvest.SourceActive,
		HealthScore: 91.5, Priority: 8, RecommendedFrequencyDays: 2,
	})

	srv := newTestServer(t, store)

	resp, body := get(t, srv.URL+"/sources/s1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view map[string]any
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, "Relief Works", view["name"])
	assert.Equal(t, 91.5, view["health_score"])
	assert.Equal(t, float64(8), view["priority"])
	assert.Equal(t, float64(2), view["recommended_frequency_days"])

	resp, _ = get(t, srv.URL+"/sources/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReactivateSource(t *testing.T) {
	t.Parallel()

	store := memory.New()
	store.PutSource(harvest.Source{ID: "p1", Status: harvest.SourcePaused, ConsecutiveFailures: 5})
	store.PutSource(harvest.Source{ID: "a1", Status: harvest.SourceActive})

	srv := newTestServer(t, store)

	resp := post(t, srv.URL+"/sources/p1/reactivate")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	src, err := store.GetSource(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, harvest.SourceActive, src.Status)
	assert.Zero(t, src.ConsecutiveFailures)

	// Reactivation only applies to paused sources.
	assert.Equal(t, http.StatusNotFound, post(t, srv.URL+"/sources/a1/reactivate").StatusCode)
	assert.Equal(t, http.StatusNotFound, post(t, srv.URL+"/sources/missing/reactivate").StatusCode)
}

func TestRecentOutcomes(t *testing.T) {
	t.Parallel()

	store := memory.New()
	require.NoError(t, store.AppendOutcome(context.Background(), harvest.Outcome{
		SourceID: "s1",
		Status:   harvest.CrawlSuccess,
		Found:    3,
		RanAt:    time.Now().UTC(),
	}))

	srv := newTestServer(t, store)
	resp, body := get(t, srv.URL+"/sources/s1/outcomes")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var outcomes []harvest.Outcome
	require.NoError(t, json.Unmarshal(body, &outcomes))
	require.Len(t, outcomes, 1)
	assert.Equal(t, 3, outcomes[0].Found)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.IncRobotsDenied()
	srv := httptest.NewServer(api.NewRouter(memory.New(), m, zap.NewNop()))
	t.Cleanup(srv.Close)

	resp, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "harvester_robots_denials_total 1"))
}
