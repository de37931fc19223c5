package pipeline

import (
	"strings"

	"github.com/meridian-gems/gemscan/internal/config"
	"github.com/meridian-gems/gemscan/internal/model"
)

// placeholderPatterns are fragments that indicate the model emitted template
// text instead of a real description. Matched case-insensitively against
// generated prose.
var placeholderPatterns = []string{
	"lorem ipsum",
	"placeholder",
	"[insert",
	"to be determined",
	"your text here",
	"description goes here",
}

// containsPlaceholder reports whether any generated prose matches a known
// placeholder pattern.
func containsPlaceholder(texts []string) bool {
	for _, t := range texts {
		lower := strings.ToLower(t)
		for _, p := range placeholderPatterns {
			if strings.Contains(lower, p) {
				return true
			}
		}
	}
	return false
}

// reviewRecord applies every review rule to a consolidated record and
// returns the accumulated reasons. Rules are independent: each fires on its
// own evidence, and all firing reasons are kept.
func reviewRecord(rec *model.AnalysisRecord, declared model.DeclaredMetadata, required []string, th config.ThresholdsConfig, ceilingMS int64) []model.ReviewReason {
	var reasons []model.ReviewReason

	// Detected value disagrees with declared metadata: one reason per property.
	for _, fe := range rec.Extractions {
		if fe.MatchesDeclared != nil && !*fe.MatchesDeclared {
			reasons = append(reasons, model.MismatchReason(fe.Property))
		}
	}

	// Low confidence on a property the seller declared.
	lowConfidence := false
	for _, fe := range rec.Extractions {
		if _, hasDeclared := declared.Value(fe.Property); hasDeclared && fe.Confidence < th.LowConfidence {
			lowConfidence = true
			break
		}
	}
	if lowConfidence {
		reasons = append(reasons, model.ReasonLowConfidence)
	}

	// Required properties must have a non-empty consolidated value.
	for _, property := range required {
		fe := rec.Extraction(property)
		if fe == nil || strings.TrimSpace(fe.Value) == "" {
			reasons = append(reasons, model.ReasonMissingRequired)
			break
		}
	}

	if ceilingMS > 0 && rec.Telemetry.WallClockMS > ceilingMS {
		reasons = append(reasons, model.ReasonSlowPipeline)
	}

	var prose []string
	for _, fe := range rec.Extractions {
		prose = append(prose, fe.Reasoning)
	}
	if rec.Primary != nil {
		prose = append(prose, rec.Primary.Rationale)
	}
	if containsPlaceholder(prose) {
		reasons = append(reasons, model.ReasonPlaceholderText)
	}

	return reasons
}
