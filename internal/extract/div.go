package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/joblens/harvester/internal/harvest"
)

// divStrategy walks div/list/article containers whose class or id hints at
// a job block, pulling a title from the first heading or anchor and
// label/value pairs from the body text.
type divStrategy struct{}

func (divStrategy) Kind() Kind { return KindDiv }

func (divStrategy) Extract(doc *Document) []*Candidate {
	var out []*Candidate
	doc.Doc.Find("div, li, article, section").Each(func(_ int, container *goquery.Selection) {
		if !jobHinted(container) {
			return
		}
		// Skip outer wrappers that just contain hinted children; the
		// innermost hinted container is the job block.
		if container.Find("div, li, article, section").FilterFunction(func(_ int, inner *goquery.Selection) bool {
			return jobHinted(inner)
		}).Length() > 0 {
			return
		}

		if c := candidateFromContainer(doc, container); c != nil {
			out = append(out, c)
		}
	})
	return out
}

func jobHinted(s *goquery.Selection) bool {
	class, _ := s.Attr("class")
	id, _ := s.Attr("id")
	return containsAnyFold(class+" "+id, containerHintTokens)
}

func candidateFromContainer(doc *Document, container *goquery.Selection) *Candidate {
	c := NewCandidate()

	title := container.Find("h1, h2, h3, h4").First()
	if title.Length() == 0 {
		title = container.Find("a[href]").First()
	}
	text := strings.TrimSpace(title.Text())
	if text == "" {
		return nil
	}
	c.AddString(harvest.FieldTitle, text, harvest.ProvHeuristic, confLabelPair, snippet(text))

	link := title.Closest("a")
	if link.Length() == 0 {
		link = container.Find("a[href]").First()
	}
	if href, ok := link.Attr("href"); ok {
		c.AddString(harvest.FieldApplyURL, doc.AbsoluteURL(href), harvest.ProvHeuristic, confLabelPair, snippet(href))
	}

	addLabelPairs(c, container.Text())
	return c
}

// addLabelPairs scans "Label: value" lines for tracked fields.
func addLabelPairs(c *Candidate, text string) {
	for _, line := range strings.Split(text, "\n") {
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		field := labelField(label)
		if field == "" || field == "title" {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		c.AddString(harvest.FieldKey(field), value, harvest.ProvHeuristic, confLabelPair, snippet(line))
	}
}
