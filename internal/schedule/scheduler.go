package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/joblens/harvester/internal/harvest"
	"github.com/joblens/harvester/internal/metrics"
)

// breakerThreshold pauses a source after this many consecutive failures.
// Pausing is a hard stop; only manual reactivation resumes the source.
const breakerThreshold = 5

// Health history window.
const (
	historyCrawls = 10
	historyWindow = 30 * 24 * time.Hour
)

// Runner executes one crawl attempt. Implemented by the pipeline.
type Runner interface {
	CrawlSource(ctx context.Context, src harvest.Source) harvest.CrawlResult
}

// Config controls the crawl loop.
type Config struct {
	TickSpec   string
	Workers    int
	ClaimLimit int
}

// Scheduler claims due sources on a cron tick and fans them out to a
// bounded worker pool.
type Scheduler struct {
	cfg       Config
	store     harvest.Store
	runner    Runner
	publisher harvest.Publisher
	clock     harvest.Clock
	metrics   *metrics.Metrics
	logger    *zap.Logger
	cron      *cron.Cron
}

// New creates a Scheduler.
func New(cfg Config, store harvest.Store, runner Runner, publisher harvest.Publisher, clock harvest.Clock, m *metrics.Metrics, logger *zap.Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ClaimLimit <= 0 {
		cfg.ClaimLimit = 20
	}
	return &Scheduler{
		cfg:       cfg,
		store:     store,
		runner:    runner,
		publisher: publisher,
		clock:     clock,
		metrics:   m,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start registers the tick and starts the cron loop. A first tick runs
// immediately so a restart does not wait out the tick interval.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.cfg.TickSpec, func() {
		s.Tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("register crawl tick: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("tick", s.cfg.TickSpec))
	go s.Tick(ctx)
	return nil
}

// Stop halts the cron loop and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Tick claims due sources and crawls them on the worker pool, blocking
// until the batch completes.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now()
	sources, err := s.store.ClaimDueSources(ctx, now, s.cfg.ClaimLimit)
	if err != nil {
		s.logger.Error("claiming due sources failed", zap.Error(err))
		return
	}
	if len(sources) == 0 {
		return
	}
	s.logger.Info("crawl tick", zap.Int("due", len(sources)))

	work := make(chan harvest.Source)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for src := range work {
				s.crawl(ctx, src)
			}
		}()
	}
	for _, src := range sources {
		select {
		case work <- src:
		case <-ctx.Done():
		}
	}
	close(work)
	wg.Wait()
}

// CrawlOne runs a single source immediately, outside the due-source claim.
func (s *Scheduler) CrawlOne(ctx context.Context, sourceID string) error {
	src, err := s.store.GetSource(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("load source %s: %w", sourceID, err)
	}
	s.crawl(ctx, src)
	return nil
}

func (s *Scheduler) crawl(ctx context.Context, src harvest.Source) {
	result := s.runner.CrawlSource(ctx, src)
	out := result.Outcome
	s.metrics.ObserveCrawl(string(out.Status), time.Duration(out.DurationMs)*time.Millisecond)

	if err := s.store.AppendOutcome(ctx, out); err != nil {
		s.logger.Error("appending crawl outcome failed",
			zap.String("source", src.ID), zap.Error(err))
	}
	if _, err := s.publisher.Publish(ctx, out); err != nil {
		s.logger.Warn("publishing crawl outcome failed",
			zap.String("source", src.ID), zap.Error(err))
	}

	upd := s.sourceUpdate(ctx, src, result)
	if err := s.store.UpdateSourceAfterCrawl(ctx, upd); err != nil {
		s.logger.Error("updating source after crawl failed",
			zap.String("source", src.ID), zap.Error(err))
		return
	}
	s.logger.Info("crawl finished",
		zap.String("source", src.ID),
		zap.String("status", string(out.Status)),
		zap.Int("found", out.Found),
		zap.Int("inserted", out.Inserted),
		zap.Int("updated", out.Updated),
		zap.Time("next_run", upd.NextRunAt),
	)
}

// sourceUpdate folds one crawl outcome into the source's schedule state:
// counters, circuit breaker, cache validators and next run time.
func (s *Scheduler) sourceUpdate(ctx context.Context, src harvest.Source, result harvest.CrawlResult) harvest.SourceUpdate {
	out := result.Outcome
	failures := src.ConsecutiveFailures
	noChange := src.ConsecutiveNoChange

	switch out.Status {
	case harvest.CrawlFailed:
		failures++
	case harvest.CrawlNoChange:
		failures = 0
		noChange++
	case harvest.CrawlSuccess:
		failures = 0
		if out.Inserted+out.Updated > 0 {
			noChange = 0
		} else {
			noChange++
		}
	}

	status := src.Status
	if failures >= breakerThreshold {
		status = harvest.SourcePaused
		s.metrics.IncPaused()
		s.logger.Warn("circuit breaker paused source",
			zap.String("source", src.ID),
			zap.Int("consecutive_failures", failures),
		)
	}

	now := s.clock.Now()
	history, err := s.store.RecentOutcomes(ctx, src.ID, historyCrawls, now.Add(-historyWindow))
	if err != nil {
		s.logger.Warn("loading crawl history failed",
			zap.String("source", src.ID), zap.Error(err))
	}
	health := ComputeHealthScore(src, history)

	delay := ComputeNextRun(src.FrequencyDays, out.Inserted, out.Updated, failures, noChange)

	etag := result.ETag
	if etag == "" {
		etag = src.ETag
	}
	lastModified := result.LastModified
	if lastModified == "" {
		lastModified = src.LastModified
	}

	return harvest.SourceUpdate{
		SourceID:            src.ID,
		NextRunAt:           now.Add(delay),
		Status:              status,
		ConsecutiveFailures: failures,
		ConsecutiveNoChange: noChange,
		LastStatus:          string(out.Status),
		LastMessage:         out.Message,
		ETag:                etag,
		LastModified:        lastModified,

		HealthScore:              health.Score,
		Priority:                 health.Priority,
		RecommendedFrequencyDays: health.RecommendedFrequencyDays,
	}
}
