// Package schedule computes source health, next-run times and drives the
// crawl loop.
package schedule

import (
	"math"
	"strings"

	"github.com/joblens/harvester/internal/harvest"
)

// Component weights of the overall health score.
const (
	weightReliability = 0.35
	weightActivity    = 0.30
	weightQuality     = 0.20
	weightEngagement  = 0.15
)

// engagementNeutral is the placeholder engagement sub-score until real
// usage signals exist.
const engagementNeutral = 50.0

// failureStreakPenalty is deducted from reliability per consecutive
// failure.
const failureStreakPenalty = 10.0

// MaxFrequencyDays caps how far out any source can be scheduled.
const MaxFrequencyDays = 14

// HealthComponents are the weighted sub-scores, each in [0,100].
type HealthComponents struct {
	Reliability float64
	Activity    float64
	Quality     float64
	Engagement  float64
}

// Health is the derived per-source health. Recomputed after every crawl;
// the score, priority and recommended frequency are written back onto the
// source for operators.
type Health struct {
	Score                    float64
	Components               HealthComponents
	Priority                 int
	RecommendedFrequencyDays int
}

// orgFrequencyDays is the starting recommended frequency per organization
// type.
var orgFrequencyDays = map[string]int{
	"un":                2,
	"intergovernmental": 3,
	"government":        5,
	"ngo":               7,
	"private":           7,
}

// orgPriorityBonus nudges priority for organization types we track more
// closely.
var orgPriorityBonus = map[string]int{
	"un":                1,
	"intergovernmental": 1,
	"government":        1,
}

// ComputeHealthScore derives a source's health from its recent crawl
// history (the caller supplies the last crawls inside the scoring window,
// newest first). Every component and the overall score are clamped to
// [0,100].
func ComputeHealthScore(src harvest.Source, history []harvest.Outcome) Health {
	comps := HealthComponents{
		Reliability: reliabilityScore(src, history),
		Activity:    activityScore(history),
		Quality:     qualityScore(history),
		Engagement:  engagementNeutral,
	}
	score := clamp100(comps.Reliability*weightReliability +
		comps.Activity*weightActivity +
		comps.Quality*weightQuality +
		comps.Engagement*weightEngagement)

	return Health{
		Score:                    score,
		Components:               comps,
		Priority:                 priority(src, score, comps.Activity),
		RecommendedFrequencyDays: recommendedFrequency(src, score, comps.Activity),
	}
}

func reliabilityScore(src harvest.Source, history []harvest.Outcome) float64 {
	if len(history) == 0 {
		return engagementNeutral
	}
	successes := 0
	for _, out := range history {
		if out.Status == harvest.CrawlSuccess || out.Status == harvest.CrawlNoChange {
			successes++
		}
	}
	score := float64(successes) / float64(len(history)) * 100
	score -= float64(src.ConsecutiveFailures) * failureStreakPenalty
	return clamp100(score)
}

// activityScore scales inserted+updated per crawl: ten or more changes per
// crawl is fully active, at least one maps linearly onto 50-95, below one
// maps linearly onto 0-50.
func activityScore(history []harvest.Outcome) float64 {
	if len(history) == 0 {
		return engagementNeutral
	}
	changes := 0
	for _, out := range history {
		changes += out.Inserted + out.Updated
	}
	perCrawl := float64(changes) / float64(len(history))
	switch {
	case perCrawl >= 10:
		return 100
	case perCrawl >= 1:
		return clamp100(50 + (perCrawl-1)/9*45)
	default:
		return clamp100(perCrawl * 50)
	}
}

// qualityScore approximates URL quality as the accepted fraction of found
// records; rejections are dominated by missing or listing-shaped URLs.
func qualityScore(history []harvest.Outcome) float64 {
	found, rejected := 0, 0
	for _, out := range history {
		found += out.Found
		rejected += out.Rejected
	}
	if found == 0 {
		return engagementNeutral
	}
	return clamp100((1 - float64(rejected)/float64(found)) * 100)
}

func priority(src harvest.Source, score, activity float64) int {
	p := 5
	switch {
	case score >= 80:
		p += 2
	case score >= 60:
		p++
	case score < 40:
		p -= 2
	}
	if activity >= 80 {
		p++
	}
	p += orgPriorityBonus[strings.ToLower(src.OrgType)]
	if p < 1 {
		p = 1
	}
	if p > 10 {
		p = 10
	}
	return p
}

func recommendedFrequency(src harvest.Source, score, activity float64) int {
	days, ok := orgFrequencyDays[strings.ToLower(src.OrgType)]
	if !ok {
		days = 7
	}
	if score >= 75 && activity >= 70 {
		days--
	}
	if score < 40 || activity < 30 {
		days += 2
	}
	if days < 1 {
		days = 1
	}
	if days > MaxFrequencyDays {
		days = MaxFrequencyDays
	}
	return days
}

func clamp100(v float64) float64 {
	return math.Min(100, math.Max(0, v))
}
