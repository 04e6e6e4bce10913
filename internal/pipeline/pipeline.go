// Package pipeline runs one source through the full crawl path: robots
// gate, paced fetch, optional render, extraction, validation, dedup and
// storage.
package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/joblens/harvester/internal/dedup"
	"github.com/joblens/harvester/internal/extract"
	"github.com/joblens/harvester/internal/fetch"
	"github.com/joblens/harvester/internal/harvest"
	"github.com/joblens/harvester/internal/metrics"
	"github.com/joblens/harvester/internal/quality"
	"github.com/joblens/harvester/internal/robots"
)

// Pipeline owns the per-crawl collaborators. Failures are folded into the
// returned outcome; a crawl never panics the worker.
type Pipeline struct {
	fetcher   *fetch.Client
	robots    *robots.Policy
	extractor *extract.Extractor
	validator *quality.Validator
	store     harvest.Store
	blobs     harvest.BlobStore
	renderer  harvest.Renderer
	clock     harvest.Clock
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// New assembles a Pipeline. renderer may be nil when JS rendering is
// disabled.
func New(
	fetcher *fetch.Client,
	robotsPolicy *robots.Policy,
	extractor *extract.Extractor,
	validator *quality.Validator,
	store harvest.Store,
	blobs harvest.BlobStore,
	renderer harvest.Renderer,
	clock harvest.Clock,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		fetcher:   fetcher,
		robots:    robotsPolicy,
		extractor: extractor,
		validator: validator,
		store:     store,
		blobs:     blobs,
		renderer:  renderer,
		clock:     clock,
		metrics:   m,
		logger:    logger,
	}
}

// CrawlSource runs one crawl attempt end to end and reports the outcome.
func (p *Pipeline) CrawlSource(ctx context.Context, src harvest.Source) harvest.CrawlResult {
	start := p.clock.Now()

	parsed, err := url.Parse(src.URL)
	if err != nil {
		return p.failed(src, start, fmt.Sprintf("invalid source url: %v", err))
	}

	policy := p.domainPolicy(ctx, parsed.Host)

	decision, err := p.robots.Check(ctx, src.URL)
	if err != nil {
		return p.failed(src, start, fmt.Sprintf("robots check: %v", err))
	}
	if !decision.Allowed {
		p.metrics.IncRobotsDenied()
		return p.skipped(src, start, "robots.txt disallows path")
	}
	// Crawl-delay acts as a floor under the host's minimum interval.
	if decision.CrawlDelay > policy.MinInterval {
		policy.MinInterval = decision.CrawlDelay
	}

	resp, err := p.fetcher.Fetch(ctx, fetch.Request{
		URL:          src.URL,
		Method:       http.MethodGet,
		ETag:         src.ETag,
		LastModified: src.LastModified,
		Accept:       acceptFor(src.Mode),
		Policy:       policy,
		Throttled:    true,
		OAuth:        src.OAuth,
	})
	if err != nil {
		return p.failed(src, start, fmt.Sprintf("fetch: %v", err))
	}
	p.metrics.ObserveFetch(resp.Duration)

	if resp.StatusCode == http.StatusNotModified {
		result := p.outcome(src, start, harvest.CrawlNoChange, "not modified", nil)
		result.ETag = src.ETag
		result.LastModified = src.LastModified
		return result
	}
	if resp.StatusCode >= 400 {
		return p.failed(src, start, fmt.Sprintf("http status %d", resp.StatusCode))
	}

	p.archive(ctx, src, resp.Body)

	records := p.extractRecords(ctx, src, policy, resp.Body)
	counts := p.persist(ctx, src, records)

	msg := fmt.Sprintf("found %d, inserted %d, updated %d, skipped %d, rejected %d",
		counts.found, counts.inserted, counts.updated, counts.skipped, counts.rejected)
	result := p.outcome(src, start, harvest.CrawlSuccess, msg, &counts)
	result.ETag = resp.Headers.Get("ETag")
	result.LastModified = resp.Headers.Get("Last-Modified")
	return result
}

func (p *Pipeline) domainPolicy(ctx context.Context, host string) harvest.DomainPolicy {
	policy, ok, err := p.store.DomainPolicyFor(ctx, host)
	if err != nil {
		p.logger.Warn("domain policy lookup failed",
			zap.String("host", host), zap.Error(err))
	}
	if !ok || err != nil {
		return harvest.DefaultDomainPolicy()
	}
	return policy
}

// extractRecords runs extraction over the fetched body, falling back to a
// rendered DOM when the raw HTML yields nothing and the host allows JS.
func (p *Pipeline) extractRecords(ctx context.Context, src harvest.Source, policy harvest.DomainPolicy, body []byte) []harvest.ExtractionRecord {
	records, sel := p.runExtractor(ctx, src, body)
	if len(records) > 0 || !policy.AllowJSRender || p.renderer == nil {
		p.logger.Debug("extraction finished",
			zap.String("source", src.ID),
			zap.String("strategy", string(sel.Kind)),
			zap.Int("records", len(records)),
		)
		return records
	}

	rendered, err := p.renderer.Render(ctx, src.URL)
	if err != nil {
		p.logger.Debug("render fallback skipped",
			zap.String("source", src.ID), zap.Error(err))
		return records
	}
	records, sel = p.runExtractor(ctx, src, rendered)
	p.logger.Debug("extraction finished after render",
		zap.String("source", src.ID),
		zap.String("strategy", string(sel.Kind)),
		zap.Int("records", len(records)),
	)
	return records
}

func (p *Pipeline) runExtractor(ctx context.Context, src harvest.Source, body []byte) ([]harvest.ExtractionRecord, extract.Selection) {
	doc, err := extract.NewDocument(body, src.URL)
	if err != nil {
		p.logger.Warn("parsing fetched document failed",
			zap.String("source", src.ID), zap.Error(err))
		return nil, extract.Selection{}
	}
	return p.extractor.Extract(ctx, doc)
}

type crawlCounts struct {
	found, inserted, updated, skipped, rejected int
}

// persist validates, hashes and upserts each record. Per-record rejections
// never abort the batch.
func (p *Pipeline) persist(ctx context.Context, src harvest.Source, records []harvest.ExtractionRecord) crawlCounts {
	counts := crawlCounts{found: len(records)}
	for i := range records {
		rec := &records[i]
		verdict := p.validator.Validate(rec, src)
		if !verdict.Valid {
			counts.rejected++
			p.metrics.IncRecords("rejected", 1)
			p.logger.Debug("record rejected",
				zap.String("source", src.ID),
				zap.String("reason", verdict.RejectedReason),
			)
			continue
		}
		rec.QualityScore = verdict.Score
		rec.Issues = verdict.Issues
		rec.Warnings = verdict.Warnings
		rec.CanonicalHash = dedup.CanonicalHash(
			rec.Title.Text(), rec.ApplyURL.Text(), rec.Reference.Text())

		result, err := p.store.UpsertJob(ctx, src.ID, *rec)
		if err != nil {
			// Logged with the payload hash for later replay; the rest of
			// the batch proceeds.
			counts.skipped++
			p.logger.Error("storing record failed",
				zap.String("source", src.ID),
				zap.String("hash", rec.CanonicalHash),
				zap.Error(err),
			)
			continue
		}
		switch result.Outcome {
		case harvest.UpsertInserted:
			counts.inserted++
		case harvest.UpsertUpdated:
			counts.updated++
		case harvest.UpsertSkipped:
			counts.skipped++
		}
		p.metrics.IncRecords(string(result.Outcome), 1)
	}
	return counts
}

func (p *Pipeline) archive(ctx context.Context, src harvest.Source, body []byte) {
	if p.blobs == nil || len(body) == 0 {
		return
	}
	key := fmt.Sprintf("%s/%s.html", src.ID, p.clock.Now().Format("20060102T150405Z"))
	uri, err := p.blobs.Put(ctx, key, "text/html", body)
	if err != nil {
		p.logger.Warn("archiving page failed",
			zap.String("source", src.ID), zap.Error(err))
		return
	}
	if uri != "" {
		p.logger.Debug("page archived",
			zap.String("source", src.ID), zap.String("uri", uri))
	}
}

func (p *Pipeline) outcome(src harvest.Source, start time.Time, status harvest.CrawlStatus, msg string, counts *crawlCounts) harvest.CrawlResult {
	out := harvest.Outcome{
		SourceID:   src.ID,
		Status:     status,
		Message:    msg,
		DurationMs: p.clock.Now().Sub(start).Milliseconds(),
		RanAt:      start,
	}
	if counts != nil {
		out.Found = counts.found
		out.Inserted = counts.inserted
		out.Updated = counts.updated
		out.Skipped = counts.skipped
		out.Rejected = counts.rejected
	}
	return harvest.CrawlResult{Outcome: out}
}

func (p *Pipeline) failed(src harvest.Source, start time.Time, msg string) harvest.CrawlResult {
	return p.outcome(src, start, harvest.CrawlFailed, msg, nil)
}

func (p *Pipeline) skipped(src harvest.Source, start time.Time, msg string) harvest.CrawlResult {
	return p.outcome(src, start, harvest.CrawlSkipped, msg, nil)
}

func acceptFor(mode harvest.FetchMode) string {
	switch mode {
	case harvest.ModeFeed:
		return "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8"
	case harvest.ModeAPI:
		return "application/json"
	default:
		return "text/html, application/xhtml+xml, */*;q=0.8"
	}
}
