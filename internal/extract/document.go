// Package extract turns fetched documents into candidate job records via a
// closed set of structural strategies and multi-source field fusion.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document wraps a fetched page with its parsed DOM and final URL.
type Document struct {
	URL  *url.URL
	Body string
	Doc  *goquery.Document
}

// NewDocument parses body into a Document rooted at rawURL.
func NewDocument(body []byte, rawURL string) (*Document, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse document url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{URL: parsed, Body: string(body), Doc: doc}, nil
}

// AbsoluteURL resolves href against the document location.
func (d *Document) AbsoluteURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return d.URL.ResolveReference(ref).String()
}

// snippet clips s for the audit trail.
func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	const max = 160
	if len(s) > max {
		return s[:max]
	}
	return s
}
