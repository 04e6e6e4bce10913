package extract

import (
	"strings"

	"github.com/joblens/harvester/internal/harvest"
)

const confMetadata = 0.8

// metadataCandidates reads page-level metadata (OpenGraph, standard meta
// tags, <title>). These describe the page as a whole, so they only enrich
// single-posting pages, never listing rows.
func metadataCandidates(doc *Document, c *Candidate) {
	meta := func(names ...string) string {
		for _, name := range names {
			sel := doc.Doc.Find(`meta[property="` + name + `"], meta[name="` + name + `"]`).First()
			if content, ok := sel.Attr("content"); ok {
				if trimmed := strings.TrimSpace(content); trimmed != "" {
					return trimmed
				}
			}
		}
		return ""
	}

	if title := meta("og:title", "twitter:title"); title != "" {
		c.AddString(harvest.FieldTitle, stripSiteSuffix(title), harvest.ProvMetadata, confMetadata, snippet(title))
	}
	if desc := meta("og:description", "description"); desc != "" {
		c.AddString(harvest.FieldDescription, desc, harvest.ProvMetadata, confMetadata, snippet(desc))
	}
	if site := meta("og:site_name"); site != "" {
		c.AddString(harvest.FieldEmployer, site, harvest.ProvMetadata, confMetadata, snippet(site))
	}
	if canonical := meta("og:url"); canonical != "" {
		c.AddString(harvest.FieldApplyURL, doc.AbsoluteURL(canonical), harvest.ProvMetadata, confMetadata, snippet(canonical))
	}
}

// stripSiteSuffix drops " | Acme Corp" style tails that sites append to
// shared titles.
func stripSiteSuffix(title string) string {
	for _, sep := range []string{" | ", " – ", " - "} {
		if i := strings.Index(title, sep); i > 0 {
			return strings.TrimSpace(title[:i])
		}
	}
	return strings.TrimSpace(title)
}
