// Package harvest defines the core types shared across the crawl and
// extraction subsystems.
package harvest

import "time"

// SourceStatus is the lifecycle state of a configured source.
type SourceStatus string

// Source lifecycle values persisted in the source table. Sources are never
// physically deleted, only flagged.
const (
	SourceActive  SourceStatus = "active"
	SourcePaused  SourceStatus = "paused"
	SourceDeleted SourceStatus = "deleted"
)

// FetchMode selects how a source is retrieved.
type FetchMode string

// Supported fetch modes.
const (
	ModePage FetchMode = "page"
	ModeFeed FetchMode = "feed"
	ModeAPI  FetchMode = "api"
)

// OAuthCredentials configures client-credentials auth for API sources.
type OAuthCredentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Source is one external job listing origin. It is created by an admin
// action and mutated only by the scheduler after each crawl attempt.
type Source struct {
	ID                  string
	Name                string
	URL                 string
	Mode                FetchMode
	OrgType             string
	Headquarters        string
	FrequencyDays       int
	NextRunAt           time.Time
	Status              SourceStatus
	ConsecutiveFailures int
	ConsecutiveNoChange int
	LastStatus          string
	LastMessage         string
	ETag                string
	LastModified        string

	// Derived after each crawl and persisted for operators; the scheduler
	// itself keys off FrequencyDays and the failure counters.
	HealthScore              float64
	Priority                 int
	RecommendedFrequencyDays int

	OAuth *OAuthCredentials
}

// DomainPolicy is per-host throttling configuration. Read-only from the
// crawler's perspective.
type DomainPolicy struct {
	MaxConcurrency int
	MinInterval    time.Duration
	MaxPages       int
	MaxPageBytes   int64
	AllowJSRender  bool
}

// DefaultDomainPolicy is the conservative fallback used when no policy row
// exists for a host: one request in flight, two seconds apart.
func DefaultDomainPolicy() DomainPolicy {
	return DomainPolicy{
		MaxConcurrency: 1,
		MinInterval:    2 * time.Second,
		MaxPages:       50,
		MaxPageBytes:   2 << 20,
		AllowJSRender:  false,
	}
}

// Provenance identifies the extraction path that produced a field value.
type Provenance string

// Provenance values, most structured first.
const (
	ProvStructured Provenance = "structured"
	ProvMetadata   Provenance = "metadata"
	ProvHeuristic  Provenance = "heuristic"
	ProvAI         Provenance = "ai"
)

// provenanceRank orders provenance for confidence tie-breaks.
var provenanceRank = map[Provenance]int{
	ProvStructured: 4,
	ProvMetadata:   3,
	ProvHeuristic:  2,
	ProvAI:         1,
}

// Rank returns the structural trust order of p; higher is more structured.
func (p Provenance) Rank() int { return provenanceRank[p] }

// FieldKey names one tracked job attribute.
type FieldKey string

// Tracked fields.
const (
	FieldTitle       FieldKey = "title"
	FieldEmployer    FieldKey = "employer"
	FieldLocation    FieldKey = "location"
	FieldDeadline    FieldKey = "deadline"
	FieldDescription FieldKey = "description"
	FieldApplyURL    FieldKey = "apply_url"
	FieldReference   FieldKey = "reference"
)

// TrackedFields lists every field the extractor attempts, in output order.
var TrackedFields = []FieldKey{
	FieldTitle, FieldEmployer, FieldLocation, FieldDeadline,
	FieldDescription, FieldApplyURL, FieldReference,
}

// FieldResult is one extracted attribute with its audit trail. Immutable
// once constructed; a nil Value means the field was not found.
type FieldResult struct {
	Value      *string
	Provenance Provenance
	Confidence float64
	Snippet    string
}

// Set reports whether the field carries a non-empty value.
func (f FieldResult) Set() bool {
	return f.Value != nil && *f.Value != ""
}

// Text returns the value or "" when unset.
func (f FieldResult) Text() string {
	if f.Value == nil {
		return ""
	}
	return *f.Value
}

// StringField builds a FieldResult from a literal value.
func StringField(v string, prov Provenance, confidence float64, snippet string) FieldResult {
	return FieldResult{Value: &v, Provenance: prov, Confidence: confidence, Snippet: snippet}
}

// ExtractionRecord is one candidate job produced by a single fetch.
// Consumed once by the storage collaborator and never mutated after
// hand-off; a re-crawl produces a new record compared by canonical hash.
type ExtractionRecord struct {
	Title       FieldResult
	Employer    FieldResult
	Location    FieldResult
	Deadline    FieldResult
	Description FieldResult
	ApplyURL    FieldResult
	Reference   FieldResult

	JobScore      float64
	QualityScore  int
	Issues        []string
	Warnings      []string
	CanonicalHash string
}

// Field returns the FieldResult for key.
func (r *ExtractionRecord) Field(key FieldKey) FieldResult {
	switch key {
	case FieldTitle:
		return r.Title
	case FieldEmployer:
		return r.Employer
	case FieldLocation:
		return r.Location
	case FieldDeadline:
		return r.Deadline
	case FieldDescription:
		return r.Description
	case FieldApplyURL:
		return r.ApplyURL
	case FieldReference:
		return r.Reference
	}
	return FieldResult{}
}

// SetField stores result under key.
func (r *ExtractionRecord) SetField(key FieldKey, result FieldResult) {
	switch key {
	case FieldTitle:
		r.Title = result
	case FieldEmployer:
		r.Employer = result
	case FieldLocation:
		r.Location = result
	case FieldDeadline:
		r.Deadline = result
	case FieldDescription:
		r.Description = result
	case FieldApplyURL:
		r.ApplyURL = result
	case FieldReference:
		r.Reference = result
	}
}

// CrawlStatus summarizes one crawl attempt.
type CrawlStatus string

// Crawl outcome status values.
const (
	CrawlSuccess  CrawlStatus = "success"
	CrawlNoChange CrawlStatus = "no_change"
	CrawlFailed   CrawlStatus = "failed"
	CrawlSkipped  CrawlStatus = "skipped"
)

// Outcome is one crawl outcome log entry. The log is append-only; the
// scheduler reads recent entries back for health computation.
type Outcome struct {
	SourceID   string      `json:"source_id"`
	Found      int         `json:"found"`
	Inserted   int         `json:"inserted"`
	Updated    int         `json:"updated"`
	Skipped    int         `json:"skipped"`
	Rejected   int         `json:"rejected"`
	Status     CrawlStatus `json:"status"`
	Message    string      `json:"message"`
	DurationMs int64       `json:"duration_ms"`
	RanAt      time.Time   `json:"ran_at"`
}

// UpsertOutcome is the storage collaborator's decision for one record.
type UpsertOutcome string

// Upsert decisions.
const (
	UpsertInserted UpsertOutcome = "inserted"
	UpsertUpdated  UpsertOutcome = "updated"
	UpsertSkipped  UpsertOutcome = "skipped"
)

// UpsertResult is returned by Store.UpsertJob.
type UpsertResult struct {
	Outcome UpsertOutcome
	JobID   string
}

// CrawlResult is what one crawl attempt hands back to the scheduler: the
// outcome log entry plus refreshed cache validators for the next
// conditional fetch.
type CrawlResult struct {
	Outcome      Outcome
	ETag         string
	LastModified string
}

// SourceUpdate carries the scheduler's post-crawl mutation of a source.
type SourceUpdate struct {
	SourceID            string
	NextRunAt           time.Time
	Status              SourceStatus
	ConsecutiveFailures int
	ConsecutiveNoChange int
	LastStatus          string
	LastMessage         string
	ETag                string
	LastModified        string

	HealthScore              float64
	Priority                 int
	RecommendedFrequencyDays int
}
