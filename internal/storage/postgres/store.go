// Package postgres provides the Postgres-backed persistence implementation.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joblens/harvester/internal/harvest"
)

// claimLease is how far a claimed source's next run is pushed while its
// crawl is in flight, so a concurrent tick cannot pick it up again. The
// post-crawl update overwrites it with the real schedule.
const claimLease = 15 * time.Minute

// Config controls the connection pool.
type Config struct {
	DSN      string
	MaxConns int32
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store implements harvest.Store on Postgres.
type Store struct {
	pool pgxPool
}

// New connects a pool and returns a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a Store from an existing pool (primarily for
// testing).
func NewWithPool(pool pgxPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

const sourceColumns = `id, name, url, mode, org_type, headquarters, frequency_days,
	next_run_at, status, consecutive_failures, consecutive_no_change,
	last_status, last_message, etag, last_modified,
	health_score, priority, recommended_frequency_days,
	oauth_token_url, oauth_client_id, oauth_client_secret, oauth_scopes`

// ClaimDueSources selects due active sources and leases them inside one
// transaction. SKIP LOCKED keeps concurrent claimers from double-crawling.
func (s *Store) ClaimDueSources(ctx context.Context, now time.Time, limit int) ([]harvest.Source, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT ` + sourceColumns + `
		FROM sources
		WHERE status = 'active' AND next_run_at <= $1
		ORDER BY next_run_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED;
	`
	rows, err := tx.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due sources: %w", err)
	}
	sources, err := scanSources(rows)
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		if _, err := tx.Exec(ctx,
			`UPDATE sources SET next_run_at = $1 WHERE id = $2;`,
			now.Add(claimLease), src.ID,
		); err != nil {
			return nil, fmt.Errorf("lease source %s: %w", src.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return sources, nil
}

// GetSource fetches a single source by ID.
func (s *Store) GetSource(ctx context.Context, id string) (harvest.Source, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = $1;`, id)
	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return harvest.Source{}, harvest.ErrNotFound
		}
		return harvest.Source{}, fmt.Errorf("get source: %w", err)
	}
	return src, nil
}

// ListSources returns every non-deleted source.
func (s *Store) ListSources(ctx context.Context) ([]harvest.Source, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE status <> 'deleted' ORDER BY name;`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return scanSources(rows)
}

// UpdateSourceAfterCrawl applies the scheduler's post-crawl bookkeeping.
func (s *Store) UpdateSourceAfterCrawl(ctx context.Context, upd harvest.SourceUpdate) error {
	query := `
		UPDATE sources
		SET next_run_at = $1, status = $2,
			consecutive_failures = $3, consecutive_no_change = $4,
			last_status = $5, last_message = $6,
			etag = $7, last_modified = $8,
			health_score = $9, priority = $10, recommended_frequency_days = $11
		WHERE id = $12;
	`
	tag, err := s.pool.Exec(ctx, query,
		upd.NextRunAt, upd.Status,
		upd.ConsecutiveFailures, upd.ConsecutiveNoChange,
		upd.LastStatus, upd.LastMessage,
		upd.ETag, upd.LastModified,
		upd.HealthScore, upd.Priority, upd.RecommendedFrequencyDays,
		upd.SourceID,
	)
	if err != nil {
		return fmt.Errorf("update source after crawl: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return harvest.ErrNotFound
	}
	return nil
}

// ReactivateSource clears the failure breaker and makes the source due
// immediately. Only paused sources transition.
func (s *Store) ReactivateSource(ctx context.Context, id string) error {
	query := `
		UPDATE sources
		SET status = 'active', consecutive_failures = 0, next_run_at = NOW()
		WHERE id = $1 AND status = 'paused';
	`
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("reactivate source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return harvest.ErrNotFound
	}
	return nil
}

// DomainPolicyFor looks up the per-host crawl policy. The second return is
// false when no row exists; callers fall back to the default policy.
func (s *Store) DomainPolicyFor(ctx context.Context, host string) (harvest.DomainPolicy, bool, error) {
	query := `
		SELECT max_concurrency, min_interval_ms, max_pages, max_page_bytes, allow_js_render
		FROM domain_policies WHERE host = $1;
	`
	var policy harvest.DomainPolicy
	var intervalMs int64
	err := s.pool.QueryRow(ctx, query, host).Scan(
		&policy.MaxConcurrency,
		&intervalMs,
		&policy.MaxPages,
		&policy.MaxPageBytes,
		&policy.AllowJSRender,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return harvest.DomainPolicy{}, false, nil
		}
		return harvest.DomainPolicy{}, false, fmt.Errorf("domain policy for %s: %w", host, err)
	}
	policy.MinInterval = time.Duration(intervalMs) * time.Millisecond
	return policy, true, nil
}

// UpsertJob inserts or refreshes a job row keyed by canonical hash. The
// update only fires when the visible content actually changed, so an
// unchanged re-crawl reports skipped.
func (s *Store) UpsertJob(ctx context.Context, sourceID string, rec harvest.ExtractionRecord) (harvest.UpsertResult, error) {
	prov, err := provenanceJSON(rec)
	if err != nil {
		return harvest.UpsertResult{}, err
	}
	query := `
		INSERT INTO jobs (
			id, source_id, canonical_hash,
			title, employer, location, deadline, description, apply_url, reference,
			job_score, quality_score, provenance, first_seen_at, last_seen_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		ON CONFLICT (canonical_hash) DO UPDATE
		SET title = EXCLUDED.title,
			employer = EXCLUDED.employer,
			location = EXCLUDED.location,
			deadline = EXCLUDED.deadline,
			description = EXCLUDED.description,
			apply_url = EXCLUDED.apply_url,
			reference = EXCLUDED.reference,
			job_score = EXCLUDED.job_score,
			quality_score = EXCLUDED.quality_score,
			provenance = EXCLUDED.provenance,
			last_seen_at = NOW()
		WHERE (jobs.title, jobs.employer, jobs.location, jobs.deadline,
			jobs.description, jobs.apply_url, jobs.reference, jobs.quality_score)
			IS DISTINCT FROM
			(EXCLUDED.title, EXCLUDED.employer, EXCLUDED.location, EXCLUDED.deadline,
			EXCLUDED.description, EXCLUDED.apply_url, EXCLUDED.reference, EXCLUDED.quality_score)
		RETURNING id, (xmax = 0) AS inserted;
	`
	var jobID string
	var inserted bool
	err = s.pool.QueryRow(ctx, query,
		uuid.NewString(), sourceID, rec.CanonicalHash,
		rec.Title.Text(), nullable(rec.Employer), nullable(rec.Location),
		nullable(rec.Deadline), nullable(rec.Description),
		rec.ApplyURL.Text(), nullable(rec.Reference),
		rec.JobScore, rec.QualityScore, prov,
	).Scan(&jobID, &inserted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Conflict with nothing to update: unchanged content.
			return s.skippedJob(ctx, rec.CanonicalHash)
		}
		return harvest.UpsertResult{}, fmt.Errorf("upsert job: %w", err)
	}
	outcome := harvest.UpsertUpdated
	if inserted {
		outcome = harvest.UpsertInserted
	}
	return harvest.UpsertResult{Outcome: outcome, JobID: jobID}, nil
}

func (s *Store) skippedJob(ctx context.Context, hash string) (harvest.UpsertResult, error) {
	var jobID string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM jobs WHERE canonical_hash = $1;`, hash).Scan(&jobID)
	if err != nil {
		return harvest.UpsertResult{}, fmt.Errorf("resolve skipped job: %w", err)
	}
	return harvest.UpsertResult{Outcome: harvest.UpsertSkipped, JobID: jobID}, nil
}

// AppendOutcome records one crawl attempt in the append-only log.
func (s *Store) AppendOutcome(ctx context.Context, out harvest.Outcome) error {
	query := `
		INSERT INTO crawl_outcomes (
			source_id, found, inserted, updated, skipped, rejected,
			status, message, duration_ms, ran_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	_, err := s.pool.Exec(ctx, query,
		out.SourceID, out.Found, out.Inserted, out.Updated, out.Skipped,
		out.Rejected, out.Status, out.Message, out.DurationMs, out.RanAt,
	)
	if err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return nil
}

// RecentOutcomes returns the newest outcomes for a source since a cutoff.
func (s *Store) RecentOutcomes(ctx context.Context, sourceID string, limit int, since time.Time) ([]harvest.Outcome, error) {
	query := `
		SELECT source_id, found, inserted, updated, skipped, rejected,
			status, message, duration_ms, ran_at
		FROM crawl_outcomes
		WHERE source_id = $1 AND ran_at >= $2
		ORDER BY ran_at DESC
		LIMIT $3;
	`
	rows, err := s.pool.Query(ctx, query, sourceID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("recent outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []harvest.Outcome
	for rows.Next() {
		var out harvest.Outcome
		if err := rows.Scan(
			&out.SourceID, &out.Found, &out.Inserted, &out.Updated,
			&out.Skipped, &out.Rejected, &out.Status, &out.Message,
			&out.DurationMs, &out.RanAt,
		); err != nil {
			return nil, fmt.Errorf("scan outcome row: %w", err)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, rows.Err()
}

func scanSources(rows pgx.Rows) ([]harvest.Source, error) {
	defer rows.Close()
	var sources []harvest.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func scanSource(row pgx.Row) (harvest.Source, error) {
	var src harvest.Source
	var tokenURL, clientID, clientSecret *string
	var scopes []string
	err := row.Scan(
		&src.ID, &src.Name, &src.URL, &src.Mode, &src.OrgType,
		&src.Headquarters, &src.FrequencyDays, &src.NextRunAt, &src.Status,
		&src.ConsecutiveFailures, &src.ConsecutiveNoChange,
		&src.LastStatus, &src.LastMessage, &src.ETag, &src.LastModified,
		&src.HealthScore, &src.Priority, &src.RecommendedFrequencyDays,
		&tokenURL, &clientID, &clientSecret, &scopes,
	)
	if err != nil {
		return harvest.Source{}, err
	}
	if tokenURL != nil && *tokenURL != "" {
		src.OAuth = &harvest.OAuthCredentials{
			TokenURL: *tokenURL,
			Scopes:   scopes,
		}
		if clientID != nil {
			src.OAuth.ClientID = *clientID
		}
		if clientSecret != nil {
			src.OAuth.ClientSecret = *clientSecret
		}
	}
	return src, nil
}

func nullable(f harvest.FieldResult) *string {
	if !f.Set() {
		return nil
	}
	v := f.Text()
	return &v
}

type fieldProvenance struct {
	Provenance harvest.Provenance `json:"provenance"`
	Confidence float64            `json:"confidence"`
}

func provenanceJSON(rec harvest.ExtractionRecord) ([]byte, error) {
	prov := make(map[harvest.FieldKey]fieldProvenance)
	for _, key := range harvest.TrackedFields {
		if f := rec.Field(key); f.Set() {
			prov[key] = fieldProvenance{Provenance: f.Provenance, Confidence: f.Confidence}
		}
	}
	data, err := json.Marshal(prov)
	if err != nil {
		return nil, fmt.Errorf("marshal provenance: %w", err)
	}
	return data, nil
}
