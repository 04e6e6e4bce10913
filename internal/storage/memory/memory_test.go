package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joblens/harvester/internal/harvest"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func source(id string, next time.Time, status harvest.SourceStatus) harvest.Source {
	return harvest.Source{ID: id, Name: id, Status: status, NextRunAt: next}
}

func record(title, url string, score int) harvest.ExtractionRecord {
	return harvest.ExtractionRecord{
		Title:         harvest.StringField(title, harvest.ProvStructured, 0.9, ""),
		ApplyURL:      harvest.StringField(url, harvest.ProvStructured, 0.9, ""),
		QualityScore:  score,
		CanonicalHash: title + "|" + url,
	}
}

func TestClaimDueSourcesOrdersAndLeases(t *testing.T) {
	t.Parallel()

	s := New()
	s.PutSource(source("late", testNow.Add(-time.Hour), harvest.SourceActive))
	s.PutSource(source("later", testNow.Add(-2*time.Hour), harvest.SourceActive))
	s.PutSource(source("future", testNow.Add(time.Hour), harvest.SourceActive))
	s.PutSource(source("paused", testNow.Add(-time.Hour), harvest.SourcePaused))

	due, err := s.ClaimDueSources(context.Background(), testNow, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "later", due[0].ID, "oldest schedule first")
	assert.Equal(t, "late", due[1].ID)

	// Leased sources do not come back on an immediate second claim.
	again, err := s.ClaimDueSources(context.Background(), testNow, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestClaimDueSourcesHonorsLimit(t *testing.T) {
	t.Parallel()

	s := New()
	for _, id := range []string{"a", "b", "c"} {
		s.PutSource(source(id, testNow.Add(-time.Hour), harvest.SourceActive))
	}

	due, err := s.ClaimDueSources(context.Background(), testNow, 2)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestGetSourceNotFound(t *testing.T) {
	t.Parallel()

	_, err := New().GetSource(context.Background(), "nope")
	assert.ErrorIs(t, err, harvest.ErrNotFound)
}

func TestListSourcesExcludesDeleted(t *testing.T) {
	t.Parallel()

	s := New()
	s.PutSource(source("beta", testNow, harvest.SourceActive))
	s.PutSource(source("alpha", testNow, harvest.SourcePaused))
	s.PutSource(source("gone", testNow, harvest.SourceDeleted))

	out, err := s.ListSources(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "alpha", out[0].ID, "sorted by name")
	assert.Equal(t, "beta", out[1].ID)
}

func TestUpsertJobInsertUpdateSkip(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	first, err := s.UpsertJob(ctx, "src-1", record("Program Officer", "https://x.org/j/1", 90))
	require.NoError(t, err)
	assert.Equal(t, harvest.UpsertInserted, first.Outcome)
	assert.NotEmpty(t, first.JobID)

	// Same hash, same content.
	skip, err := s.UpsertJob(ctx, "src-1", record("Program Officer", "https://x.org/j/1", 90))
	require.NoError(t, err)
	assert.Equal(t, harvest.UpsertSkipped, skip.Outcome)
	assert.Equal(t, first.JobID, skip.JobID)

	// Same hash, changed content.
	changed := record("Program Officer", "https://x.org/j/1", 75)
	update, err := s.UpsertJob(ctx, "src-1", changed)
	require.NoError(t, err)
	assert.Equal(t, harvest.UpsertUpdated, update.Outcome)
	assert.Equal(t, first.JobID, update.JobID)

	assert.Equal(t, 1, s.JobCount())

	other, err := s.UpsertJob(ctx, "src-1", record("Grants Manager", "https://x.org/j/2", 90))
	require.NoError(t, err)
	assert.Equal(t, harvest.UpsertInserted, other.Outcome)
	assert.Equal(t, 2, s.JobCount())
}

func TestUpdateSourceAfterCrawl(t *testing.T) {
	t.Parallel()

	s := New()
	s.PutSource(source("s1", testNow, harvest.SourceActive))

	next := testNow.Add(48 * time.Hour)
	err := s.UpdateSourceAfterCrawl(context.Background(), harvest.SourceUpdate{
		SourceID:            "s1",
		NextRunAt:           next,
		Status:              harvest.SourceActive,
		ConsecutiveFailures: 1,
		LastStatus:          "failed",
		LastMessage:         "http status 503",
		ETag:                `"v9"`,
	})
	require.NoError(t, err)

	got, err := s.GetSource(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, next, got.NextRunAt)
	assert.Equal(t, 1, got.ConsecutiveFailures)
	assert.Equal(t, "failed", got.LastStatus)
	assert.Equal(t, `"v9"`, got.ETag)

	err = s.UpdateSourceAfterCrawl(context.Background(), harvest.SourceUpdate{SourceID: "missing"})
	assert.ErrorIs(t, err, harvest.ErrNotFound)
}

func TestReactivateOnlyPausedSources(t *testing.T) {
	t.Parallel()

	s := New()
	paused := source("p1", testNow, harvest.SourcePaused)
	paused.ConsecutiveFailures = 5
	s.PutSource(paused)
	s.PutSource(source("a1", testNow, harvest.SourceActive))

	require.NoError(t, s.ReactivateSource(context.Background(), "p1"))
	got, err := s.GetSource(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, harvest.SourceActive, got.Status)
	assert.Zero(t, got.ConsecutiveFailures)

	assert.ErrorIs(t, s.ReactivateSource(context.Background(), "a1"), harvest.ErrNotFound)
	assert.ErrorIs(t, s.ReactivateSource(context.Background(), "missing"), harvest.ErrNotFound)
}

func TestDomainPolicyLookup(t *testing.T) {
	t.Parallel()

	s := New()
	want := harvest.DomainPolicy{MaxConcurrency: 2, MinInterval: 500 * time.Millisecond}
	s.PutDomainPolicy("x.org", want)

	got, ok, err := s.DomainPolicyFor(context.Background(), "x.org")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok, err = s.DomainPolicyFor(context.Background(), "y.org")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecentOutcomesWindowAndOrder(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendOutcome(ctx, harvest.Outcome{
			SourceID: "s1",
			Status:   harvest.CrawlSuccess,
			RanAt:    testNow.Add(-time.Duration(i) * 24 * time.Hour),
		}))
	}
	require.NoError(t, s.AppendOutcome(ctx, harvest.Outcome{SourceID: "other", RanAt: testNow}))

	out, err := s.RecentOutcomes(ctx, "s1", 3, testNow.Add(-10*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, testNow, out[0].RanAt, "newest first")
	assert.True(t, out[1].RanAt.Before(out[0].RanAt))
}
