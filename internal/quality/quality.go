// Package quality scores, repairs or rejects extracted records before they
// reach storage.
package quality

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/joblens/harvester/internal/dedup"
	"github.com/joblens/harvester/internal/harvest"
)

// Verdict is the validator's decision for one record.
type Verdict struct {
	Valid          bool
	Score          int
	Issues         []string
	Warnings       []string
	RejectedReason string
}

// Rejection reasons surfaced to operators.
const (
	ReasonUnusableTitle          = "unusable_title"
	ReasonUnusableApplyURL       = "unusable_apply_url"
	ReasonIdenticalTitleLocation = "identical_title_location"
)

// Soft penalties deducted from the starting 100.
const (
	penaltyMissingLocation = 15
	penaltyMissingDeadline = 10
	penaltyBadDeadline     = 5
	penaltyListingURL      = 10
	penaltyDirtyLocation   = 10
)

// DefaultLeadTime is assumed when a posting with a solid title and URL
// carries no deadline at all.
const DefaultLeadTime = 30 * 24 * time.Hour

var (
	labelOnlyRe = regexp.MustCompile(`(?i)^(job\s*)?(title|position|vacancy|location|deadline|description|employer|organi[sz]ation|reference)\s*:?\s*$`)
	dateOnlyRe  = regexp.MustCompile(`^\s*\d{1,2}[./-]\d{1,2}[./-]\d{2,4}\s*$`)

	// dateFragmentRe matches date shapes that leak into location cells on
	// badly aligned layouts.
	dateFragmentRe = regexp.MustCompile(`(?i)\b(\d{1,2}[./-]\d{1,2}[./-]\d{2,4}|\d{4}-\d{2}-\d{2}|(january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2},?\s+\d{4}|\d{1,2}\s+(january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{4})\b`)

	listingPathRe = regexp.MustCompile(`(?i)/(jobs?|careers?|vacanc(y|ies)|openings?)/?$`)
)

// Validator applies the two-pass validation and repair design.
type Validator struct {
	clock harvest.Clock
}

// New builds a Validator.
func New(clock harvest.Clock) *Validator {
	return &Validator{clock: clock}
}

// Validate inspects rec, repairing what it can. Pass 1 failures mean
// extraction found nothing worth keeping and reject outright; pass 2
// failures only cost score. Repairs mutate rec in place; rec is not yet
// handed off at this point.
func (v *Validator) Validate(rec *harvest.ExtractionRecord, src harvest.Source) Verdict {
	verdict := Verdict{Score: 100}

	title := strings.TrimSpace(rec.Title.Text())
	if !usableTitle(title) {
		return reject(ReasonUnusableTitle)
	}
	if !usableApplyURL(rec.ApplyURL.Text()) {
		return reject(ReasonUnusableApplyURL)
	}

	// The single most severe contamination signal: the layout fed the
	// same cell into both fields. No repair can be trusted after that.
	if locationEqualsTitle(rec, title) {
		return reject(ReasonIdenticalTitleLocation)
	}

	v.repairLocation(rec, src, &verdict)
	// Stripping a date fragment can leave the bare title behind in the
	// location cell; the identical pair is rejected after repairs too.
	if locationEqualsTitle(rec, title) {
		return reject(ReasonIdenticalTitleLocation)
	}
	v.repairDeadline(rec, &verdict)
	v.scoreApplyURL(rec, src, &verdict)

	if !rec.Location.Set() {
		verdict.Score -= penaltyMissingLocation
		verdict.Warnings = append(verdict.Warnings, "location missing")
	}
	if !rec.Deadline.Set() {
		verdict.Score -= penaltyMissingDeadline
		verdict.Warnings = append(verdict.Warnings, "deadline missing")
	}

	if verdict.Score < 0 {
		verdict.Score = 0
	}
	if verdict.Score > 100 {
		verdict.Score = 100
	}
	verdict.Valid = true
	return verdict
}

func locationEqualsTitle(rec *harvest.ExtractionRecord, title string) bool {
	loc := strings.TrimSpace(rec.Location.Text())
	return loc != "" && dedup.NormalizeTitle(loc) == dedup.NormalizeTitle(title)
}

func reject(reason string) Verdict {
	return Verdict{
		Valid:          false,
		Score:          0,
		Issues:         []string{reason},
		RejectedReason: reason,
	}
}

func usableTitle(title string) bool {
	if len(title) < 5 {
		return false
	}
	if labelOnlyRe.MatchString(title) {
		return false
	}
	if dateOnlyRe.MatchString(title) {
		return false
	}
	return true
}

func usableApplyURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "#" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(raw), "javascript:") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// repairLocation recovers a contaminated or missing location.
func (v *Validator) repairLocation(rec *harvest.ExtractionRecord, src harvest.Source, verdict *Verdict) {
	title := strings.TrimSpace(rec.Title.Text())
	loc := strings.TrimSpace(rec.Location.Text())

	if loc != "" {
		// Date fragments bleeding into the location cell.
		if dateFragmentRe.MatchString(loc) {
			cleaned := strings.TrimSpace(strings.Trim(dateFragmentRe.ReplaceAllString(loc, ""), " ,;-"))
			verdict.Issues = append(verdict.Issues, "location contained date fragment")
			verdict.Score -= penaltyDirtyLocation
			if cleaned == "" {
				rec.Location = harvest.FieldResult{}
			} else {
				rec.Location = harvest.StringField(cleaned, rec.Location.Provenance, rec.Location.Confidence, rec.Location.Snippet)
			}
			loc = cleaned
		}

		// Title leaked into the location: a strict substring can be
		// stripped, anything fuzzier is untrustworthy and nulled.
		if loc != "" && title != "" {
			normLoc, normTitle := dedup.NormalizeTitle(loc), dedup.NormalizeTitle(title)
			if strings.Contains(normLoc, normTitle) && normLoc != normTitle {
				idx := strings.Index(strings.ToLower(loc), strings.ToLower(title))
				stripped := strings.TrimSpace(strings.Trim(loc[:idx]+loc[idx+len(title):], " ,;-"))
				verdict.Issues = append(verdict.Issues, "location contained title text")
				verdict.Score -= penaltyDirtyLocation
				if stripped == "" {
					rec.Location = harvest.FieldResult{}
				} else {
					rec.Location = harvest.StringField(stripped, rec.Location.Provenance, rec.Location.Confidence, rec.Location.Snippet)
				}
			}
		}
	}

	if rec.Location.Set() {
		return
	}

	// Inference chain: description label, then the organization's HQ.
	if inferred := labeledValue(rec.Description.Text(), "location", "duty station", "based in"); inferred != "" {
		rec.Location = harvest.StringField(inferred, harvest.ProvHeuristic, 0.4, "inferred from description")
		verdict.Warnings = append(verdict.Warnings, "location inferred from description")
		return
	}
	if src.Headquarters != "" {
		rec.Location = harvest.StringField(src.Headquarters, harvest.ProvHeuristic, 0.3, "organization headquarters")
		verdict.Warnings = append(verdict.Warnings, "location defaulted to organization headquarters")
	}
}

// repairDeadline parses or infers a missing deadline.
func (v *Validator) repairDeadline(rec *harvest.ExtractionRecord, verdict *Verdict) {
	if raw := strings.TrimSpace(rec.Deadline.Text()); raw != "" {
		if _, ok := ParseDeadline(raw); ok {
			return
		}
		verdict.Issues = append(verdict.Issues, "deadline not parseable")
		verdict.Score -= penaltyBadDeadline
		rec.Deadline = harvest.FieldResult{}
	}

	if inferred := labeledValue(rec.Description.Text(), "deadline", "closing date", "apply by"); inferred != "" {
		if _, ok := ParseDeadline(inferred); ok {
			rec.Deadline = harvest.StringField(inferred, harvest.ProvHeuristic, 0.4, "inferred from description")
			verdict.Warnings = append(verdict.Warnings, "deadline inferred from description")
			return
		}
	}

	// With a solid title and URL the posting is real; assume the common
	// lead time rather than dropping it.
	if rec.Title.Set() && rec.ApplyURL.Set() {
		fallback := v.clock.Now().Add(DefaultLeadTime).Format("2006-01-02")
		rec.Deadline = harvest.StringField(fallback, harvest.ProvHeuristic, 0.2, "default lead time")
		verdict.Warnings = append(verdict.Warnings, fmt.Sprintf("deadline defaulted to %s", fallback))
	}
}

// scoreApplyURL penalizes listing-page-shaped URLs, which usually mean the
// row link pointed back at the index.
func (v *Validator) scoreApplyURL(rec *harvest.ExtractionRecord, src harvest.Source, verdict *Verdict) {
	raw := rec.ApplyURL.Text()
	u, err := url.Parse(raw)
	if err != nil {
		return
	}
	if listingPathRe.MatchString(u.Path) || raw == src.URL {
		verdict.Issues = append(verdict.Issues, "apply url is listing-shaped")
		verdict.Score -= penaltyListingURL
	}
}

// labeledValue finds "Label: value" in free text for any of the labels.
func labeledValue(text string, labels ...string) string {
	if text == "" {
		return ""
	}
	lowered := strings.ToLower(text)
	for _, label := range labels {
		idx := strings.Index(lowered, label)
		if idx < 0 {
			continue
		}
		rest := text[idx+len(label):]
		rest = strings.TrimLeft(rest, ": \t")
		if end := strings.IndexAny(rest, "\n.;|"); end > 0 {
			rest = rest[:end]
		}
		rest = strings.TrimSpace(rest)
		if rest != "" && len(rest) < 120 {
			return rest
		}
	}
	return ""
}
