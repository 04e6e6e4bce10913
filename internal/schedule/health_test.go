package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/joblens/harvester/internal/harvest"
)

func outcomes(n int, status harvest.CrawlStatus, inserted, found, rejected int) []harvest.Outcome {
	out := make([]harvest.Outcome, n)
	for i := range out {
		out[i] = harvest.Outcome{
			SourceID: "s1",
			Status:   status,
			Inserted: inserted,
			Found:    found,
			Rejected: rejected,
			RanAt:    time.Now().Add(-time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestHealthEmptyHistoryIsNeutral(t *testing.T) {
	t.Parallel()

	h := ComputeHealthScore(harvest.Source{OrgType: "ngo"}, nil)

	assert.Equal(t, 50.0, h.Components.Reliability)
	assert.Equal(t, 50.0, h.Components.Activity)
	assert.Equal(t, 50.0, h.Components.Quality)
	assert.Equal(t, 50.0, h.Components.Engagement)
	assert.Equal(t, 50.0, h.Score)
	assert.Equal(t, 5, h.Priority)
}

func TestHealthPerfectHistory(t *testing.T) {
	t.Parallel()

	src := harvest.Source{OrgType: "un"}
	h := ComputeHealthScore(src, outcomes(10, harvest.CrawlSuccess, 12, 12, 0))

	assert.Equal(t, 100.0, h.Components.Reliability)
	assert.Equal(t, 100.0, h.Components.Activity)
	assert.Equal(t, 100.0, h.Components.Quality)
	assert.InDelta(t, 92.5, h.Score, 0.001, "engagement stays neutral at 50")

	// score>=80 gives +2, activity>=80 gives +1, UN orgs +1.
	assert.Equal(t, 9, h.Priority)
}

func TestHealthFailureStreakPenalizesReliability(t *testing.T) {
	t.Parallel()

	src := harvest.Source{ConsecutiveFailures: 3}
	h := ComputeHealthScore(src, outcomes(10, harvest.CrawlSuccess, 1, 1, 0))

	assert.Equal(t, 70.0, h.Components.Reliability, "10 points per consecutive failure")
}

func TestHealthReliabilityNeverNegative(t *testing.T) {
	t.Parallel()

	src := harvest.Source{ConsecutiveFailures: 20}
	h := ComputeHealthScore(src, outcomes(10, harvest.CrawlFailed, 0, 0, 0))

	assert.Equal(t, 0.0, h.Components.Reliability)
	assert.GreaterOrEqual(t, h.Score, 0.0)
}

func TestHealthActivityThresholds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		perCrawl int
		want     float64
	}{
		{perCrawl: 12, want: 100},
		{perCrawl: 10, want: 100},
		{perCrawl: 1, want: 50},
		{perCrawl: 0, want: 0},
	}
	for _, tc := range cases {
		got := activityScore(outcomes(10, harvest.CrawlSuccess, tc.perCrawl, tc.perCrawl, 0))
		assert.Equal(t, tc.want, got, "per-crawl changes %d", tc.perCrawl)
	}

	// Half a change per crawl sits on the lower linear segment.
	history := append(outcomes(5, harvest.CrawlSuccess, 1, 1, 0), outcomes(5, harvest.CrawlSuccess, 0, 0, 0)...)
	assert.Equal(t, 25.0, activityScore(history))
}

func TestHealthQualityTracksRejectedFraction(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 75.0, qualityScore(outcomes(1, harvest.CrawlSuccess, 0, 20, 5)))
	assert.Equal(t, 50.0, qualityScore(nil), "no records found is neutral")
	assert.Equal(t, 0.0, qualityScore(outcomes(1, harvest.CrawlSuccess, 0, 4, 4)))
}

func TestHealthNoChangeCountsAsReliable(t *testing.T) {
	t.Parallel()

	h := ComputeHealthScore(harvest.Source{}, outcomes(10, harvest.CrawlNoChange, 0, 0, 0))
	assert.Equal(t, 100.0, h.Components.Reliability)
}

func TestPriorityBounds(t *testing.T) {
	t.Parallel()

	// Worst case: low score, low activity, no org bonus.
	low := ComputeHealthScore(harvest.Source{OrgType: "private"}, outcomes(10, harvest.CrawlFailed, 0, 0, 0))
	assert.GreaterOrEqual(t, low.Priority, 1)
	assert.Equal(t, 3, low.Priority)

	high := ComputeHealthScore(harvest.Source{OrgType: "un"}, outcomes(10, harvest.CrawlSuccess, 15, 15, 0))
	assert.LessOrEqual(t, high.Priority, 10)
}

func TestRecommendedFrequencyByOrgType(t *testing.T) {
	t.Parallel()

	neutral := outcomes(10, harvest.CrawlSuccess, 1, 1, 0)

	assert.Equal(t, 2, ComputeHealthScore(harvest.Source{OrgType: "un"}, neutral).RecommendedFrequencyDays)
	assert.Equal(t, 3, ComputeHealthScore(harvest.Source{OrgType: "intergovernmental"}, neutral).RecommendedFrequencyDays)
	assert.Equal(t, 5, ComputeHealthScore(harvest.Source{OrgType: "government"}, neutral).RecommendedFrequencyDays)
	assert.Equal(t, 7, ComputeHealthScore(harvest.Source{OrgType: "ngo"}, neutral).RecommendedFrequencyDays)
	assert.Equal(t, 7, ComputeHealthScore(harvest.Source{OrgType: "something else"}, neutral).RecommendedFrequencyDays)
}

func TestRecommendedFrequencyTightensWhenHealthyAndActive(t *testing.T) {
	t.Parallel()

	busy := outcomes(10, harvest.CrawlSuccess, 12, 12, 0)
	h := ComputeHealthScore(harvest.Source{OrgType: "un"}, busy)
	assert.Equal(t, 1, h.RecommendedFrequencyDays)

	quiet := outcomes(10, harvest.CrawlFailed, 0, 0, 0)
	slow := ComputeHealthScore(harvest.Source{OrgType: "ngo"}, quiet)
	assert.Equal(t, 9, slow.RecommendedFrequencyDays)
}
