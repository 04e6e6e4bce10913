package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/joblens/harvester/internal/harvest"
)

// confStructured is the trust attached to schema.org structured data.
const confStructured = 0.9

// structuredStrategy reads JSON-LD JobPosting blocks and JobPosting
// microdata. It is the most reliable path and wins selector ties.
type structuredStrategy struct{}

func (structuredStrategy) Kind() Kind { return KindStructured }

func (structuredStrategy) Extract(doc *Document) []*Candidate {
	var out []*Candidate
	for _, posting := range jsonLDPostings(doc) {
		out = append(out, posting.candidate(doc))
	}
	out = append(out, microdataPostings(doc)...)
	return out
}

// jsonLDPosting mirrors the subset of schema.org JobPosting we consume.
type jsonLDPosting struct {
	Type         any             `json:"@type"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	URL          string          `json:"url"`
	ValidThrough string          `json:"validThrough"`
	Identifier   json.RawMessage `json:"identifier"`
	HiringOrg    json.RawMessage `json:"hiringOrganization"`
	JobLocation  json.RawMessage `json:"jobLocation"`
}

func (p jsonLDPosting) isJobPosting() bool {
	switch t := p.Type.(type) {
	case string:
		return strings.EqualFold(t, "JobPosting")
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && strings.EqualFold(s, "JobPosting") {
				return true
			}
		}
	}
	return false
}

func (p jsonLDPosting) candidate(doc *Document) *Candidate {
	c := NewCandidate()
	c.AddString(harvest.FieldTitle, strings.TrimSpace(p.Title), harvest.ProvStructured, confStructured, snippet(p.Title))
	if p.Description != "" {
		c.AddString(harvest.FieldDescription, strings.TrimSpace(p.Description), harvest.ProvStructured, confStructured, snippet(p.Description))
	}
	if p.URL != "" {
		c.AddString(harvest.FieldApplyURL, doc.AbsoluteURL(p.URL), harvest.ProvStructured, confStructured, snippet(p.URL))
	}
	if p.ValidThrough != "" {
		c.AddString(harvest.FieldDeadline, strings.TrimSpace(p.ValidThrough), harvest.ProvStructured, confStructured, snippet(p.ValidThrough))
	}
	if name := nestedName(p.HiringOrg); name != "" {
		c.AddString(harvest.FieldEmployer, name, harvest.ProvStructured, confStructured, snippet(name))
	}
	if loc := locationName(p.JobLocation); loc != "" {
		c.AddString(harvest.FieldLocation, loc, harvest.ProvStructured, confStructured, snippet(loc))
	}
	if ref := identifierValue(p.Identifier); ref != "" {
		c.AddString(harvest.FieldReference, ref, harvest.ProvStructured, confStructured, snippet(ref))
	}
	return c
}

// nestedName handles `"x"`, `{"name": "x"}` and single-element arrays.
func nestedName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Name != "" {
		return strings.TrimSpace(obj.Name)
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		return nestedName(arr[0])
	}
	return ""
}

func locationName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Name    string `json:"name"`
		Address json.RawMessage
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if addr := addressLocality(obj.Address); addr != "" {
			return addr
		}
		if obj.Name != "" {
			return strings.TrimSpace(obj.Name)
		}
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		return locationName(arr[0])
	}
	return ""
}

func addressLocality(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Locality string `json:"addressLocality"`
		Country  string `json:"addressCountry"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	switch {
	case obj.Locality != "" && obj.Country != "":
		return obj.Locality + ", " + obj.Country
	case obj.Locality != "":
		return obj.Locality
	default:
		return obj.Country
	}
}

func identifierValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Value)
	}
	return ""
}

// jsonLDPostings collects every JobPosting found in ld+json script blocks,
// unwrapping top-level arrays and @graph containers.
func jsonLDPostings(doc *Document) []jsonLDPosting {
	var out []jsonLDPosting
	doc.Doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		out = append(out, decodePostings([]byte(raw))...)
	})
	return out
}

func decodePostings(raw []byte) []jsonLDPosting {
	var one jsonLDPosting
	if err := json.Unmarshal(raw, &one); err == nil {
		if one.isJobPosting() {
			return []jsonLDPosting{one}
		}
		var graph struct {
			Graph []json.RawMessage `json:"@graph"`
		}
		if err := json.Unmarshal(raw, &graph); err == nil && len(graph.Graph) > 0 {
			var out []jsonLDPosting
			for _, item := range graph.Graph {
				out = append(out, decodePostings(item)...)
			}
			return out
		}
		return nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		var out []jsonLDPosting
		for _, item := range arr {
			out = append(out, decodePostings(item)...)
		}
		return out
	}
	return nil
}

// microdataPostings extracts itemscope JobPosting blocks.
func microdataPostings(doc *Document) []*Candidate {
	var out []*Candidate
	doc.Doc.Find(`[itemtype*="JobPosting"]`).Each(func(_ int, scope *goquery.Selection) {
		c := NewCandidate()
		prop := func(name string) string {
			sel := scope.Find(`[itemprop="` + name + `"]`).First()
			if sel.Length() == 0 {
				return ""
			}
			if content, ok := sel.Attr("content"); ok && content != "" {
				return strings.TrimSpace(content)
			}
			if href, ok := sel.Attr("href"); ok && href != "" {
				return doc.AbsoluteURL(href)
			}
			return strings.TrimSpace(sel.Text())
		}
		c.AddString(harvest.FieldTitle, prop("title"), harvest.ProvStructured, confStructured, snippet(prop("title")))
		c.AddString(harvest.FieldEmployer, prop("hiringOrganization"), harvest.ProvStructured, confStructured, "")
		c.AddString(harvest.FieldLocation, prop("jobLocation"), harvest.ProvStructured, confStructured, "")
		c.AddString(harvest.FieldDeadline, prop("validThrough"), harvest.ProvStructured, confStructured, "")
		c.AddString(harvest.FieldApplyURL, prop("url"), harvest.ProvStructured, confStructured, "")
		if c.Has(harvest.FieldTitle) {
			out = append(out, c)
		}
	})
	return out
}
