// Package dedup computes the canonical identity of a job across re-crawls.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// trackingParams are query parameters stripped during URL normalization.
// Everything else is preserved; prefix entries match utm_* style families.
var trackingParamPrefixes = []string{"utm_"}

var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"msclkid": {},
	"mc_eid":  {},
	"igshid":  {},
	"ref_src": {},
}

func isTrackingParam(name string) bool {
	lowered := strings.ToLower(name)
	if _, ok := trackingParams[lowered]; ok {
		return true
	}
	for _, p := range trackingParamPrefixes {
		if strings.HasPrefix(lowered, p) {
			return true
		}
	}
	return false
}

// NormalizeURL standardizes a URL so semantically irrelevant variations
// collide: lowercased scheme/host, default ports and fragment removed,
// tracking parameters stripped, remaining query sorted, trailing slash
// dropped. Idempotent.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	q := u.Query()
	for name := range q {
		if isTrackingParam(name) {
			q.Del(name)
		}
	}
	u.RawQuery = q.Encode()

	if strings.HasSuffix(u.Path, "/") && u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	if u.Path == "/" {
		u.Path = ""
	}

	return u.String(), nil
}

// NormalizeTitle trims and lowercases.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// CanonicalHash fingerprints a job by its normalized title, apply URL and
// optional source reference. Two fetches of the same underlying job must
// collide here; whether a collision means update or skip belongs to the
// storage collaborator.
func CanonicalHash(title, applyURL, reference string) string {
	normURL, err := NormalizeURL(applyURL)
	if err != nil {
		normURL = strings.ToLower(strings.TrimSpace(applyURL))
	}
	joined := NormalizeTitle(title) + "|" + normURL + "|" + NormalizeTitle(reference)
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])
}
