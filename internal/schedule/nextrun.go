package schedule

import (
	"math"
	"time"
)

// ComputeNextRun returns the delay before a source's next crawl. Repeated
// no-change outcomes and repeated failures each widen the interval
// geometrically; the larger of the two wins. Any real change snaps straight
// back to the base frequency. The result never exceeds MaxFrequencyDays.
func ComputeNextRun(baseFrequencyDays, inserted, updated, consecutiveFailures, consecutiveNoChange int) time.Duration {
	if baseFrequencyDays < 1 {
		baseFrequencyDays = 1
	}
	base := float64(baseFrequencyDays)

	days := base
	if inserted+updated == 0 {
		noChange := base * math.Pow(2, float64(consecutiveNoChange))
		failure := base * math.Pow(2, float64(consecutiveFailures))
		days = math.Max(noChange, failure)
	}
	if days > MaxFrequencyDays {
		days = MaxFrequencyDays
	}
	return time.Duration(days * float64(24*time.Hour))
}
