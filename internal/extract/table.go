package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/joblens/harvester/internal/harvest"
)

// Layout-heuristic confidences. Header-mapped table cells are trusted a
// notch above free-form label/value pairs.
const (
	confTableCell = 0.7
	confLabelPair = 0.6
)

// tableStrategy maps job-listing tables through their header row: each
// header cell that names a tracked field binds that column for every data
// row beneath it.
type tableStrategy struct{}

func (tableStrategy) Kind() Kind { return KindTable }

func (tableStrategy) Extract(doc *Document) []*Candidate {
	var out []*Candidate
	doc.Doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		columns := headerColumns(table)
		if len(columns) == 0 {
			return
		}
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() == 0 {
				return
			}
			c := NewCandidate()
			cells.Each(func(i int, cell *goquery.Selection) {
				field, ok := columns[i]
				if !ok {
					return
				}
				text := strings.TrimSpace(cell.Text())
				if text == "" {
					return
				}
				c.AddString(harvest.FieldKey(field), text, harvest.ProvHeuristic, confTableCell, snippet(text))
				if field == "title" {
					if href, ok := cell.Find("a[href]").First().Attr("href"); ok {
						c.AddString(harvest.FieldApplyURL, doc.AbsoluteURL(href), harvest.ProvHeuristic, confTableCell, snippet(href))
					}
				}
			})
			// A row without a title cell is a spacer or a nested layout row.
			if c.Has(harvest.FieldTitle) {
				if !c.Has(harvest.FieldApplyURL) {
					if href, ok := row.Find("a[href]").First().Attr("href"); ok {
						c.AddString(harvest.FieldApplyURL, doc.AbsoluteURL(href), harvest.ProvHeuristic, confLabelPair, snippet(href))
					}
				}
				out = append(out, c)
			}
		})
	})
	return out
}

// headerColumns maps column index -> tracked field name for tables whose
// header row names at least one job field.
func headerColumns(table *goquery.Selection) map[int]string {
	columns := make(map[int]string)
	headers := table.Find("th")
	if headers.Length() == 0 {
		// Some sites style the first row as a header without th cells.
		headers = table.Find("tr").First().Find("td")
	}
	headers.Each(func(i int, h *goquery.Selection) {
		if field := labelField(h.Text()); field != "" {
			columns[i] = field
		}
	})
	if _, ok := firstValue(columns, "title"); !ok {
		return nil
	}
	return columns
}

func firstValue(columns map[int]string, want string) (int, bool) {
	for i, field := range columns {
		if field == want {
			return i, true
		}
	}
	return 0, false
}
