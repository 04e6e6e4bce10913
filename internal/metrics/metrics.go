// Package metrics bundles Prometheus collectors for the harvester.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all collectors on a dedicated registry so tests never
// collide on the default registerer.
type Metrics struct {
	Registry         *prometheus.Registry
	CrawlsTotal      *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	RecordsTotal     *prometheus.CounterVec
	RateLimitDelay   prometheus.Histogram
	RobotsDenials    prometheus.Counter
	SourcesPaused    prometheus.Counter
	RetryAfterSleeps prometheus.Counter
}

// New constructs and registers all metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	crawls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_crawls_total",
			Help: "Crawl attempts by outcome status.",
		},
		[]string{"status"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_fetch_duration_seconds",
			Help:    "HTTP fetch latency including rate-limiter waits.",
			Buckets: prometheus.DefBuckets,
		},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_records_total",
			Help: "Extracted records by disposition.",
		},
		[]string{"disposition"},
	)
	rateDelay := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_rate_limit_delay_seconds",
			Help:    "Delay introduced by the per-host token bucket.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
	robotsDenials := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_robots_denials_total",
			Help: "Requests refused by robots.txt policy.",
		},
	)
	paused := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_sources_paused_total",
			Help: "Sources paused by the circuit breaker.",
		},
	)
	retryAfter := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_retry_after_sleeps_total",
			Help: "Advisory Retry-After sleeps honored by the fetcher.",
		},
	)

	registry.MustRegister(crawls, fetchDuration, records, rateDelay, robotsDenials, paused, retryAfter)

	return &Metrics{
		Registry:         registry,
		CrawlsTotal:      crawls,
		FetchDuration:    fetchDuration,
		RecordsTotal:     records,
		RateLimitDelay:   rateDelay,
		RobotsDenials:    robotsDenials,
		SourcesPaused:    paused,
		RetryAfterSleeps: retryAfter,
	}
}

// ObserveCrawl records one crawl attempt.
func (m *Metrics) ObserveCrawl(status string, _ time.Duration) {
	if m == nil {
		return
	}
	m.CrawlsTotal.WithLabelValues(status).Inc()
}

// ObserveFetch records one HTTP fetch latency.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// IncRecords bumps the record counter for a disposition label.
func (m *Metrics) IncRecords(disposition string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsTotal.WithLabelValues(disposition).Add(float64(n))
}

// ObserveRateDelay records a token-bucket wait.
func (m *Metrics) ObserveRateDelay(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.RateLimitDelay.Observe(d.Seconds())
}

// IncRobotsDenied counts a robots refusal.
func (m *Metrics) IncRobotsDenied() {
	if m == nil {
		return
	}
	m.RobotsDenials.Inc()
}

// IncPaused counts a circuit-breaker pause.
func (m *Metrics) IncPaused() {
	if m == nil {
		return
	}
	m.SourcesPaused.Inc()
}

// IncRetryAfter counts an honored Retry-After sleep.
func (m *Metrics) IncRetryAfter() {
	if m == nil {
		return
	}
	m.RetryAfterSleeps.Inc()
}
