package extract

import (
	"github.com/joblens/harvester/internal/harvest"
)

// Candidate accumulates competing FieldResults for one prospective job.
// Several sub-extractors may propose values for the same logical field;
// Fuse keeps only the winners.
type Candidate struct {
	fields map[harvest.FieldKey][]harvest.FieldResult
}

// NewCandidate builds an empty candidate.
func NewCandidate() *Candidate {
	return &Candidate{fields: make(map[harvest.FieldKey][]harvest.FieldResult)}
}

// Add proposes a value for key. Empty values are dropped at the door.
func (c *Candidate) Add(key harvest.FieldKey, fr harvest.FieldResult) {
	if !fr.Set() {
		return
	}
	c.fields[key] = append(c.fields[key], fr)
}

// AddString is shorthand for Add with a literal value.
func (c *Candidate) AddString(key harvest.FieldKey, value string, prov harvest.Provenance, confidence float64, snip string) {
	c.Add(key, harvest.StringField(value, prov, confidence, snip))
}

// Best returns the current winning proposal for key.
func (c *Candidate) Best(key harvest.FieldKey) harvest.FieldResult {
	var best harvest.FieldResult
	for _, fr := range c.fields[key] {
		if better(fr, best) {
			best = fr
		}
	}
	return best
}

// Has reports whether any proposal exists for key.
func (c *Candidate) Has(key harvest.FieldKey) bool {
	return len(c.fields[key]) > 0
}

// better implements the fusion rule: highest confidence wins, ties favor
// the more structured provenance.
func better(a, b harvest.FieldResult) bool {
	if !a.Set() {
		return false
	}
	if !b.Set() {
		return true
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.Provenance.Rank() > b.Provenance.Rank()
}

// Fuse resolves every tracked field into an ExtractionRecord.
func (c *Candidate) Fuse() harvest.ExtractionRecord {
	var rec harvest.ExtractionRecord
	for _, key := range harvest.TrackedFields {
		rec.SetField(key, c.Best(key))
	}
	return rec
}
