package pipeline

import (
	"github.com/meridian-gems/gemscan/internal/config"
	"github.com/meridian-gems/gemscan/internal/model"
)

// candidate is one raw reading for a property before consolidation.
type candidate struct {
	Value     string
	Reading   model.SourceReading
	Reasoning string
}

// consolidateProperty merges every reading for one property into a single
// FieldExtraction. The highest-confidence reading wins. When two confident
// readings disagree (both at or above the disagreement threshold), all
// sources are kept and the resolved confidence is discounted, so the
// conflict stays visible downstream instead of being silently resolved.
//
// MatchesDeclared is set only when a declared value exists; comparison is
// normalized (case-folded, trimmed, NFC).
func consolidateProperty(property string, cands []candidate, declared string, hasDeclared bool, th config.ThresholdsConfig) *model.FieldExtraction {
	if len(cands) == 0 {
		return nil
	}

	best := cands[0]
	for _, c := range cands[1:] {
		if c.Reading.Confidence > best.Reading.Confidence {
			best = c
		}
	}

	fe := &model.FieldExtraction{
		Property:   property,
		Value:      best.Value,
		Confidence: best.Reading.Confidence,
		Reasoning:  best.Reasoning,
	}
	for _, c := range cands {
		fe.Sources = append(fe.Sources, c.Reading)
	}

	if hasConfidentDisagreement(cands, th.Disagreement) {
		fe.Confidence *= th.DisagreementDiscount
	}

	if hasDeclared {
		match := model.ValuesMatch(fe.Value, declared)
		fe.MatchesDeclared = &match
	}
	return fe
}

// hasConfidentDisagreement reports whether any two readings both meet the
// disagreement threshold yet disagree on the value.
func hasConfidentDisagreement(cands []candidate, threshold float64) bool {
	for i := 0; i < len(cands); i++ {
		if cands[i].Reading.Confidence < threshold {
			continue
		}
		for j := i + 1; j < len(cands); j++ {
			if cands[j].Reading.Confidence < threshold {
				continue
			}
			if !model.ValuesMatch(cands[i].Value, cands[j].Value) {
				return true
			}
		}
	}
	return false
}

// consolidate merges all task outputs into per-property extractions,
// ordered by the canonical property list so output is deterministic.
func consolidate(byProperty map[string][]candidate, declared model.DeclaredMetadata, th config.ThresholdsConfig) []model.FieldExtraction {
	var out []model.FieldExtraction
	for _, property := range model.AllProperties {
		cands, ok := byProperty[property]
		if !ok {
			continue
		}
		dv, hasDeclared := declared.Value(property)
		if fe := consolidateProperty(property, cands, dv, hasDeclared, th); fe != nil {
			out = append(out, *fe)
		}
	}
	return out
}
