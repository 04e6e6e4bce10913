package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/joblens/harvester/internal/harvest"
)

// Page-classifier vocabulary: words that rarely appear outside job
// postings.
var jobVocabulary = []string{
	"apply", "applicant", "deadline", "vacancy", "qualifications",
	"responsibilities", "salary", "full-time", "part-time", "remote",
	"experience required", "job description", "closing date",
}

var jobURLTokens = []string{"job", "career", "vacanc", "position", "recruit", "opening"}

// ClassifyJobPage scores how job-like the page is, in [0,1]. The score is
// consumed as a frozen heuristic: it informs is_job on the record but
// never gates individual field extraction.
func ClassifyJobPage(doc *Document, rec *harvest.ExtractionRecord) float64 {
	var score, weight float64

	// Vocabulary hits across the visible text.
	text := strings.ToLower(doc.Doc.Find("body").Text())
	hits := 0
	for _, word := range jobVocabulary {
		if strings.Contains(text, word) {
			hits++
		}
	}
	score += clamp01(float64(hits)/6) * 0.4
	weight += 0.4

	// URL shape.
	if containsAnyFold(doc.URL.Path, jobURLTokens) {
		score += 0.25
	}
	weight += 0.25

	// Anchor density: listing hubs are anchor-heavy, postings are not,
	// but a page with zero job-keyword anchors is unlikely to be either.
	total := doc.Doc.Find("a[href]").Length()
	jobAnchors := 0
	doc.Doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if containsAnyFold(a.Text(), anchorKeywords) || containsAnyFold(href, anchorKeywords) {
			jobAnchors++
		}
	})
	if total > 0 {
		score += clamp01(float64(jobAnchors)/float64(total)*4) * 0.2
	}
	weight += 0.2

	// A resolved title with job shape is its own signal.
	if rec != nil && rec.Title.Set() {
		score += 0.15
	}
	weight += 0.15

	if weight == 0 {
		return 0
	}
	return clamp01(score / weight)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
