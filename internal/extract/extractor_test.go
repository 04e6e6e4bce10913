package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joblens/harvester/internal/harvest"
)

const structuredPage = `<!DOCTYPE html>
<html><head>
<title>Program Officer | Relief Works</title>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "JobPosting",
  "title": "Program Officer",
  "description": "Coordinate field programs across the region.",
  "url": "https://relief.example/jobs/program-officer",
  "validThrough": "2025-07-01",
  "hiringOrganization": {"@type": "Organization", "name": "Relief Works"},
  "jobLocation": {"@type": "Place", "address": {"addressLocality": "Geneva", "addressCountry": "CH"}},
  "identifier": {"@type": "PropertyValue", "value": "RW-2025-17"}
}
</script>
</head><body><h1>Program Officer</h1></body></html>`

const tablePage = `<!DOCTYPE html>
<html><body>
<table>
<tr><th>Title</th><th>Location</th><th>Closing Date</th></tr>
<tr><td><a href="/jobs/1">Field Coordinator</a></td><td>Nairobi</td><td>2025-07-10</td></tr>
<tr><td><a href="/jobs/2">Logistics Officer</a></td><td>Amman</td><td>2025-07-12</td></tr>
</table>
</body></html>`

const linkPage = `<!DOCTYPE html>
<html><body>
<p>Openings this month:</p>
<a href="/vacancy/101">Senior Protection Officer vacancy</a>
<a href="/vacancy/102">Grants Manager position open</a>
<a href="/about">About us</a>
</body></html>`

func newExtractor(guesser harvest.FieldGuesser) *Extractor {
	return New(guesser, zap.NewNop())
}

func mustDocument(t *testing.T, body, rawURL string) *Document {
	t.Helper()
	doc, err := NewDocument([]byte(body), rawURL)
	require.NoError(t, err)
	return doc
}

func TestExtractStructuredData(t *testing.T) {
	t.Parallel()

	doc := mustDocument(t, structuredPage, "https://relief.example/jobs/program-officer")
	records, sel := newExtractor(nil).Extract(context.Background(), doc)

	require.Len(t, records, 1)
	assert.Equal(t, KindStructured, sel.Kind)

	rec := records[0]
	assert.Equal(t, "Program Officer", rec.Title.Text())
	assert.Equal(t, harvest.ProvStructured, rec.Title.Provenance)
	assert.InDelta(t, 0.9, rec.Title.Confidence, 0.001)
	assert.Equal(t, "Relief Works", rec.Employer.Text())
	assert.Equal(t, "Geneva, CH", rec.Location.Text())
	assert.Equal(t, "2025-07-01", rec.Deadline.Text())
	assert.Equal(t, "RW-2025-17", rec.Reference.Text())
	assert.Equal(t, "https://relief.example/jobs/program-officer", rec.ApplyURL.Text())
}

func TestExtractTableRows(t *testing.T) {
	t.Parallel()

	doc := mustDocument(t, tablePage, "https://relief.example/vacancies")
	records, sel := newExtractor(nil).Extract(context.Background(), doc)

	require.Len(t, records, 2)
	assert.Equal(t, KindTable, sel.Kind)

	assert.Equal(t, "Field Coordinator", records[0].Title.Text())
	assert.Equal(t, "Nairobi", records[0].Location.Text())
	assert.Equal(t, "2025-07-10", records[0].Deadline.Text())
	assert.Equal(t, "https://relief.example/jobs/1", records[0].ApplyURL.Text())
	assert.Equal(t, harvest.ProvHeuristic, records[0].Title.Provenance)

	assert.Equal(t, "Logistics Officer", records[1].Title.Text())
}

func TestExtractLinkFallback(t *testing.T) {
	t.Parallel()

	doc := mustDocument(t, linkPage, "https://relief.example/jobs")
	records, sel := newExtractor(nil).Extract(context.Background(), doc)

	require.Len(t, records, 2)
	assert.Equal(t, KindLink, sel.Kind)
	assert.Equal(t, "Senior Protection Officer vacancy", records[0].Title.Text())
	assert.Equal(t, "https://relief.example/vacancy/101", records[0].ApplyURL.Text())
}

func TestExtractFallsThroughWhenSelectedYieldsNothing(t *testing.T) {
	t.Parallel()

	// A table with job-like headers but no data rows scores for the table
	// strategy yet extracts nothing; link extraction must still run.
	body := `<html><body>
<table><tr><th>Title</th><th>Location</th></tr></table>
<a href="/vacancy/7">Senior Protection Officer vacancy</a>
</body></html>`
	doc := mustDocument(t, body, "https://relief.example/jobs")
	records, sel := newExtractor(nil).Extract(context.Background(), doc)

	require.Len(t, records, 1)
	assert.Equal(t, KindLink, sel.Kind)
}

func TestExtractEmptyPageYieldsNothing(t *testing.T) {
	t.Parallel()

	doc := mustDocument(t, "<html><body><p>hello</p></body></html>", "https://example.org/")
	records, _ := newExtractor(nil).Extract(context.Background(), doc)
	assert.Empty(t, records)
}

func TestFusionPrefersHighestConfidenceThenProvenance(t *testing.T) {
	t.Parallel()

	c := NewCandidate()
	c.AddString(harvest.FieldTitle, "heuristic title", harvest.ProvHeuristic, 0.6, "")
	c.AddString(harvest.FieldTitle, "structured title", harvest.ProvStructured, 0.9, "")
	c.AddString(harvest.FieldLocation, "ai location", harvest.ProvAI, 0.5, "")
	c.AddString(harvest.FieldLocation, "metadata location", harvest.ProvMetadata, 0.5, "")

	rec := c.Fuse()
	assert.Equal(t, "structured title", rec.Title.Text())
	assert.Equal(t, "metadata location", rec.Location.Text(), "ties favor the more structured source")
}

type stubGuesser struct {
	calls  int
	fields map[harvest.FieldKey]harvest.FieldResult
}

func (g *stubGuesser) GuessFields(_ context.Context, _ string, _ []harvest.FieldKey) (map[harvest.FieldKey]harvest.FieldResult, error) {
	g.calls++
	return g.fields, nil
}

func TestGuesserFillsMissingFieldsOnly(t *testing.T) {
	t.Parallel()

	guesser := &stubGuesser{fields: map[harvest.FieldKey]harvest.FieldResult{
		harvest.FieldTitle:    harvest.StringField("AI Title", harvest.ProvAI, 0.9, ""),
		harvest.FieldLocation: harvest.StringField("Geneva", harvest.ProvAI, 0.9, ""),
	}}

	doc := mustDocument(t, structuredPage, "https://relief.example/jobs/program-officer")
	records, _ := newExtractor(guesser).Extract(context.Background(), doc)

	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "Program Officer", rec.Title.Text(),
		"a high-confidence deterministic field is never overridden")
	assert.Equal(t, "Geneva, CH", rec.Location.Text())
}

func TestGuesserConfidenceIsCapped(t *testing.T) {
	t.Parallel()

	guesser := &stubGuesser{fields: map[harvest.FieldKey]harvest.FieldResult{
		harvest.FieldTitle:    harvest.StringField("Guessed Officer Role", harvest.ProvAI, 0.99, ""),
		harvest.FieldApplyURL: harvest.StringField("https://x.org/jobs/1", harvest.ProvAI, 0.99, ""),
	}}

	doc := mustDocument(t, "<html><body><p>nothing here</p></body></html>", "https://x.org/")
	records, _ := newExtractor(guesser).Extract(context.Background(), doc)

	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "Guessed Officer Role", rec.Title.Text())
	assert.LessOrEqual(t, rec.Title.Confidence, aiConfidenceCeiling)
	assert.Equal(t, harvest.ProvAI, rec.Title.Provenance)
}

func TestClassifyJobPageBounds(t *testing.T) {
	t.Parallel()

	doc := mustDocument(t, structuredPage, "https://relief.example/jobs/program-officer")
	records, _ := newExtractor(nil).Extract(context.Background(), doc)
	require.Len(t, records, 1)

	assert.GreaterOrEqual(t, records[0].JobScore, 0.0)
	assert.LessOrEqual(t, records[0].JobScore, 1.0)
	assert.Greater(t, records[0].JobScore, 0.2, "an obvious posting should score above noise")
}
