package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/joblens/harvester/internal/harvest"
)

const confLink = 0.55

// linkStrategy treats each job-keyword anchor as one candidate: anchor
// text is the title, the href is the application URL. The weakest layout
// heuristic, used when nothing better matches.
type linkStrategy struct{}

func (linkStrategy) Kind() Kind { return KindLink }

func (linkStrategy) Extract(doc *Document) []*Candidate {
	var out []*Candidate
	seen := make(map[string]bool)
	doc.Doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		text := strings.TrimSpace(a.Text())
		href, _ := a.Attr("href")
		if text == "" || href == "" {
			return
		}
		if !containsAnyFold(text, anchorKeywords) && !containsAnyFold(href, anchorKeywords) {
			return
		}
		// Navigation chrome: "All jobs", "Careers" etc.
		if len(text) < 10 {
			return
		}
		abs := doc.AbsoluteURL(href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true

		c := NewCandidate()
		c.AddString(harvest.FieldTitle, text, harvest.ProvHeuristic, confLink, snippet(text))
		c.AddString(harvest.FieldApplyURL, abs, harvest.ProvHeuristic, confLink, snippet(href))
		out = append(out, c)
	})
	return out
}

// genericStrategy is the last resort: treat the whole page as a single
// posting, pulling whatever the page-level signals give.
type genericStrategy struct{}

func (genericStrategy) Kind() Kind { return KindGeneric }

func (genericStrategy) Extract(doc *Document) []*Candidate {
	c := NewCandidate()

	if h1 := strings.TrimSpace(doc.Doc.Find("h1").First().Text()); h1 != "" {
		c.AddString(harvest.FieldTitle, h1, harvest.ProvHeuristic, 0.5, snippet(h1))
	} else if title := strings.TrimSpace(doc.Doc.Find("title").First().Text()); title != "" {
		c.AddString(harvest.FieldTitle, title, harvest.ProvHeuristic, 0.45, snippet(title))
	}

	c.AddString(harvest.FieldApplyURL, doc.URL.String(), harvest.ProvHeuristic, 0.5, "")

	if body := strings.TrimSpace(doc.Doc.Find("main, article, body").First().Text()); body != "" {
		c.AddString(harvest.FieldDescription, snippetLong(body), harvest.ProvHeuristic, 0.4, snippet(body))
		addLabelPairs(c, body)
	}

	if !c.Has(harvest.FieldTitle) {
		return nil
	}
	return []*Candidate{c}
}

func snippetLong(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	const max = 4000
	if len(s) > max {
		return s[:max]
	}
	return s
}
