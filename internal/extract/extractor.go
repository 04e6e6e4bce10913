package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/joblens/harvester/internal/harvest"
)

// aiConfidenceCeiling keeps AI guesses below every deterministic
// extractor, whatever confidence the collaborator claims.
const aiConfidenceCeiling = 0.5

// lowConfidence marks a fused field as worth a second opinion.
const lowConfidence = 0.6

// Extractor runs strategy selection, field fusion and the optional AI
// fallback over one document.
type Extractor struct {
	strategies map[Kind]Strategy
	guesser    harvest.FieldGuesser
	logger     *zap.Logger
}

// New builds an Extractor. guesser may be nil; the AI path is then skipped
// entirely.
func New(guesser harvest.FieldGuesser, logger *zap.Logger) *Extractor {
	return &Extractor{
		strategies: strategies(),
		guesser:    guesser,
		logger:     logger,
	}
}

// Extract produces candidate records from doc. The returned Selection
// reports the strategy that actually yielded records, which may be later
// in the fall-through order than the scored pick.
func (e *Extractor) Extract(ctx context.Context, doc *Document) ([]harvest.ExtractionRecord, Selection) {
	sel := Select(doc)

	candidates, used := e.runStrategies(doc, sel.Kind)
	sel.Kind = used

	if len(candidates) == 0 {
		if c := e.guessWholePage(ctx, doc); c != nil {
			candidates = []*Candidate{c}
		} else {
			return nil, sel
		}
	}

	// Page-level metadata describes the page, not listing rows; it only
	// enriches a lone posting.
	if len(candidates) == 1 {
		metadataCandidates(doc, candidates[0])
		e.maybeGuess(ctx, doc, candidates[0])
	}

	records := make([]harvest.ExtractionRecord, 0, len(candidates))
	for _, c := range candidates {
		rec := c.Fuse()
		rec.JobScore = ClassifyJobPage(doc, &rec)
		records = append(records, rec)
	}
	return records, sel
}

// runStrategies tries the selected strategy first, then falls through the
// remaining kinds in fixed priority order so a wrong first guess never
// causes total extraction failure.
func (e *Extractor) runStrategies(doc *Document, first Kind) ([]*Candidate, Kind) {
	tried := make(map[Kind]bool, len(fallthroughOrder))
	order := append([]Kind{first}, fallthroughOrder...)
	for _, kind := range order {
		if tried[kind] {
			continue
		}
		tried[kind] = true
		if candidates := e.strategies[kind].Extract(doc); len(candidates) > 0 {
			if kind != first {
				e.logger.Debug("strategy fell through",
					zap.String("selected", string(first)),
					zap.String("used", string(kind)),
				)
			}
			return candidates, kind
		}
	}
	return nil, first
}

// maybeGuess asks the AI collaborator only for fields that are missing or
// low-confidence after deterministic extraction. It must never run for
// fields already resolved with high confidence.
func (e *Extractor) maybeGuess(ctx context.Context, doc *Document, c *Candidate) {
	if e.guesser == nil {
		return
	}
	var wanted []harvest.FieldKey
	for _, key := range harvest.TrackedFields {
		if best := c.Best(key); !best.Set() || best.Confidence < lowConfidence {
			wanted = append(wanted, key)
		}
	}
	if len(wanted) == 0 {
		return
	}
	guesses, err := e.guesser.GuessFields(ctx, doc.Body, wanted)
	if err != nil {
		e.logger.Debug("ai guess skipped", zap.Error(err))
		return
	}
	mergeGuesses(c, guesses)
}

// guessWholePage is the final fallback when every strategy yields nothing.
func (e *Extractor) guessWholePage(ctx context.Context, doc *Document) *Candidate {
	if e.guesser == nil {
		return nil
	}
	guesses, err := e.guesser.GuessFields(ctx, doc.Body, harvest.TrackedFields)
	if err != nil {
		e.logger.Debug("ai guess skipped", zap.Error(err))
		return nil
	}
	c := NewCandidate()
	mergeGuesses(c, guesses)
	if !c.Has(harvest.FieldTitle) {
		return nil
	}
	return c
}

func mergeGuesses(c *Candidate, guesses map[harvest.FieldKey]harvest.FieldResult) {
	for key, fr := range guesses {
		if !fr.Set() {
			continue
		}
		if fr.Confidence > aiConfidenceCeiling {
			fr.Confidence = aiConfidenceCeiling
		}
		fr.Provenance = harvest.ProvAI
		c.Add(key, fr)
	}
}
