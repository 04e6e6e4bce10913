package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selection is the scored outcome of structural inspection.
type Selection struct {
	Kind   Kind
	Scores map[Kind]float64
}

// Select inspects the document's structure and picks the extraction
// strategy with the strongest signal. Ties favor the more structured kind;
// a page with no signal at all falls to the generic strategy.
func Select(doc *Document) Selection {
	scores := map[Kind]float64{
		KindStructured: scoreStructured(doc),
		KindTable:      scoreTables(doc),
		KindDiv:        scoreDivs(doc),
		KindLink:       scoreLinks(doc),
		KindGeneric:    0,
	}

	best := KindGeneric
	bestScore := 0.0
	// Walk in priority order so equal scores resolve to the more
	// structured strategy.
	for _, kind := range fallthroughOrder {
		if scores[kind] > bestScore {
			best = kind
			bestScore = scores[kind]
		}
	}
	return Selection{Kind: best, Scores: scores}
}

// scoreStructured weighs schema.org JobPosting presence heavily; it is
// near-authoritative when present.
func scoreStructured(doc *Document) float64 {
	score := float64(len(jsonLDPostings(doc))) * 10
	doc.Doc.Find(`[itemtype*="JobPosting"]`).Each(func(_ int, _ *goquery.Selection) {
		score += 8
	})
	return score
}

// scoreTables counts data rows under job-like header tokens.
func scoreTables(doc *Document) float64 {
	var score float64
	doc.Doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		if headerColumns(table) == nil {
			return
		}
		rows := table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
			return tr.Find("td").Length() > 0
		}).Length()
		score += 5 + float64(rows)
	})
	return score
}

// scoreDivs counts innermost job-hinted containers.
func scoreDivs(doc *Document) float64 {
	var count int
	doc.Doc.Find("div, li, article, section").Each(func(_ int, s *goquery.Selection) {
		if !jobHinted(s) {
			return
		}
		if s.Find("div, li, article, section").FilterFunction(func(_ int, inner *goquery.Selection) bool {
			return jobHinted(inner)
		}).Length() > 0 {
			return
		}
		count++
	})
	return float64(count) * 2
}

// scoreLinks counts anchors whose text or href carries job vocabulary.
func scoreLinks(doc *Document) float64 {
	var count int
	doc.Doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		text := strings.TrimSpace(a.Text())
		if len(text) < 10 {
			return
		}
		if containsAnyFold(text, anchorKeywords) || containsAnyFold(href, anchorKeywords) {
			count++
		}
	})
	return float64(count)
}
