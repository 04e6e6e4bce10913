// Package memory provides an in-memory Store for tests and dry runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joblens/harvester/internal/harvest"
)

type jobRow struct {
	id  string
	rec harvest.ExtractionRecord
}

// Store implements harvest.Store with maps. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	sources  map[string]harvest.Source
	policies map[string]harvest.DomainPolicy
	jobs     map[string]jobRow
	outcomes []harvest.Outcome
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		sources:  make(map[string]harvest.Source),
		policies: make(map[string]harvest.DomainPolicy),
		jobs:     make(map[string]jobRow),
	}
}

// PutSource seeds or replaces a source.
func (s *Store) PutSource(src harvest.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[src.ID] = src
}

// PutDomainPolicy seeds a per-host policy.
func (s *Store) PutDomainPolicy(host string, policy harvest.DomainPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[host] = policy
}

// ClaimDueSources returns due active sources, oldest schedule first.
func (s *Store) ClaimDueSources(_ context.Context, now time.Time, limit int) ([]harvest.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []harvest.Source
	for _, src := range s.sources {
		if src.Status == harvest.SourceActive && !src.NextRunAt.After(now) {
			due = append(due, src)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunAt.Before(due[j].NextRunAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for _, src := range due {
		src.NextRunAt = now.Add(15 * time.Minute)
		s.sources[src.ID] = src
	}
	return due, nil
}

// GetSource fetches a source by ID.
func (s *Store) GetSource(_ context.Context, id string) (harvest.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return harvest.Source{}, harvest.ErrNotFound
	}
	return src, nil
}

// ListSources returns every non-deleted source sorted by name.
func (s *Store) ListSources(_ context.Context) ([]harvest.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []harvest.Source
	for _, src := range s.sources {
		if src.Status != harvest.SourceDeleted {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpdateSourceAfterCrawl applies post-crawl bookkeeping.
func (s *Store) UpdateSourceAfterCrawl(_ context.Context, upd harvest.SourceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[upd.SourceID]
	if !ok {
		return harvest.ErrNotFound
	}
	src.NextRunAt = upd.NextRunAt
	src.Status = upd.Status
	src.ConsecutiveFailures = upd.ConsecutiveFailures
	src.ConsecutiveNoChange = upd.ConsecutiveNoChange
	src.LastStatus = upd.LastStatus
	src.LastMessage = upd.LastMessage
	src.ETag = upd.ETag
	src.LastModified = upd.LastModified
	src.HealthScore = upd.HealthScore
	src.Priority = upd.Priority
	src.RecommendedFrequencyDays = upd.RecommendedFrequencyDays
	s.sources[upd.SourceID] = src
	return nil
}

// ReactivateSource resets a paused source's breaker.
func (s *Store) ReactivateSource(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok || src.Status != harvest.SourcePaused {
		return harvest.ErrNotFound
	}
	src.Status = harvest.SourceActive
	src.ConsecutiveFailures = 0
	src.NextRunAt = time.Now().UTC()
	s.sources[id] = src
	return nil
}

// DomainPolicyFor looks up a seeded policy.
func (s *Store) DomainPolicyFor(_ context.Context, host string) (harvest.DomainPolicy, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	policy, ok := s.policies[host]
	return policy, ok, nil
}

// UpsertJob keys rows by canonical hash, mirroring the Postgres semantics:
// new hash inserts, changed content updates, identical content skips.
func (s *Store) UpsertJob(_ context.Context, _ string, rec harvest.ExtractionRecord) (harvest.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.jobs[rec.CanonicalHash]
	if !ok {
		row := jobRow{id: uuid.NewString(), rec: rec}
		s.jobs[rec.CanonicalHash] = row
		return harvest.UpsertResult{Outcome: harvest.UpsertInserted, JobID: row.id}, nil
	}
	if sameContent(existing.rec, rec) {
		return harvest.UpsertResult{Outcome: harvest.UpsertSkipped, JobID: existing.id}, nil
	}
	existing.rec = rec
	s.jobs[rec.CanonicalHash] = existing
	return harvest.UpsertResult{Outcome: harvest.UpsertUpdated, JobID: existing.id}, nil
}

// JobCount reports stored jobs; test helper.
func (s *Store) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// AppendOutcome records one crawl attempt.
func (s *Store) AppendOutcome(_ context.Context, out harvest.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, out)
	return nil
}

// RecentOutcomes returns outcomes for sourceID since the cutoff, newest
// first.
func (s *Store) RecentOutcomes(_ context.Context, sourceID string, limit int, since time.Time) ([]harvest.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []harvest.Outcome
	for _, o := range s.outcomes {
		if o.SourceID == sourceID && !o.RanAt.Before(since) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RanAt.After(out[j].RanAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sameContent(a, b harvest.ExtractionRecord) bool {
	for _, key := range harvest.TrackedFields {
		if a.Field(key).Text() != b.Field(key).Text() {
			return false
		}
	}
	return a.QualityScore == b.QualityScore
}
