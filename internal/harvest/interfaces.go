package harvest

import (
	"context"
	"time"
)

// Store is the persistence contract. The pipeline only requires idempotent
// upsert-by-hash plus source bookkeeping; SQL and transaction semantics stay
// behind this interface.
type Store interface {
	ClaimDueSources(ctx context.Context, now time.Time, limit int) ([]Source, error)
	GetSource(ctx context.Context, id string) (Source, error)
	ListSources(ctx context.Context) ([]Source, error)
	UpdateSourceAfterCrawl(ctx context.Context, upd SourceUpdate) error
	ReactivateSource(ctx context.Context, id string) error
	DomainPolicyFor(ctx context.Context, host string) (DomainPolicy, bool, error)
	UpsertJob(ctx context.Context, sourceID string, rec ExtractionRecord) (UpsertResult, error)
	AppendOutcome(ctx context.Context, out Outcome) error
	RecentOutcomes(ctx context.Context, sourceID string, limit int, since time.Time) ([]Outcome, error)
}

// BlobStore archives raw fetched documents and returns a URI.
type BlobStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) (string, error)
}

// Publisher pushes crawl outcome events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, out Outcome) (string, error)
}

// FieldGuesser is the optional AI extraction collaborator. Implementations
// must return quickly-skippable errors; the pipeline treats any failure as
// "no candidates".
type FieldGuesser interface {
	GuessFields(ctx context.Context, html string, fields []FieldKey) (map[FieldKey]FieldResult, error)
}

// Renderer executes an optional JS rendering step for script-only pages.
type Renderer interface {
	Render(ctx context.Context, url string) ([]byte, error)
}

// Clock returns the current time; injectable for tests.
type Clock interface {
	Now() time.Time
}
