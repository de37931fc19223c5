package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// ReviewReason is one enumerated trigger that marked an analysis for
// human review.
type ReviewReason string

const (
	ReasonLowConfidence   ReviewReason = "low_confidence"
	ReasonMissingRequired ReviewReason = "missing_required_field"
	ReasonSlowPipeline    ReviewReason = "slow_pipeline"
	ReasonPlaceholderText ReviewReason = "placeholder_text"
	ReasonPrimaryFlag     ReviewReason = "primary_flag_failed"
)

// MismatchReason builds the per-property mismatch reason, e.g. "cut_mismatch".
func MismatchReason(property string) ReviewReason {
	return ReviewReason(property + "_mismatch")
}

// ImageScore is the engine's per-image assessment for primary selection,
// plus the deterministic classification adjustment applied during
// consolidation.
type ImageScore struct {
	AssetID        string  `json:"asset_id"`
	Ordinal        int     `json:"ordinal"`
	Quality        float64 `json:"quality"`
	Composition    float64 `json:"composition"`
	Clarity        float64 `json:"clarity"`
	Professional   float64 `json:"professional_presentation"`
	Overall        float64 `json:"overall"`
	Classification string  `json:"classification"`
	Adjusted       float64 `json:"adjusted"`
}

// PrimaryRecommendation is the winning primary-image candidate with its
// score breakdown and natural-language rationale.
type PrimaryRecommendation struct {
	AssetID   string       `json:"asset_id"`
	Ordinal   int          `json:"ordinal"`
	Score     float64      `json:"score"`
	Rationale string       `json:"rationale"`
	Breakdown []ImageScore `json:"breakdown,omitempty"`
}

// MediaFailure records one media file that could not be normalized.
type MediaFailure struct {
	AssetID string `json:"asset_id"`
	Locator string `json:"locator"`
	Reason  string `json:"reason"`
}

// RunTelemetry captures per-run cost and timing observations.
type RunTelemetry struct {
	WallClockMS   int64            `json:"wall_clock_ms"`
	MediaAnalyzed map[TaskKind]int `json:"media_analyzed,omitempty"`
	VisionCalls   int              `json:"vision_calls"`
	CostUSD       float64          `json:"cost_usd"`
	Failures      []MediaFailure   `json:"failures,omitempty"`
	Tasks         []AnalysisTask   `json:"tasks,omitempty"`
}

// AnalysisRecord is the consolidated, persisted result for one gemstone for
// one pipeline version. At most one current record exists per gemstone per
// version, enforced by upsert at the storage layer.
type AnalysisRecord struct {
	GemstoneID      string                 `json:"gemstone_id"`
	PipelineVersion int                    `json:"pipeline_version"`
	Extractions     []FieldExtraction      `json:"extractions"`
	Primary         *PrimaryRecommendation `json:"primary,omitempty"`
	Telemetry       RunTelemetry           `json:"telemetry"`
	NeedsReview     bool                   `json:"needs_review"`
	ReviewReasons   []ReviewReason         `json:"review_reasons,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// Extraction returns the record's extraction for a property, or nil.
func (r *AnalysisRecord) Extraction(property string) *FieldExtraction {
	for i := range r.Extractions {
		if r.Extractions[i].Property == property {
			return &r.Extractions[i]
		}
	}
	return nil
}

// Validate enforces the record invariants: confidence bounds on every
// extraction and the needs_review ⇔ non-empty reasons equivalence.
func (r *AnalysisRecord) Validate() error {
	if r.GemstoneID == "" {
		return eris.New("model: analysis record missing gemstone id")
	}
	for _, fe := range r.Extractions {
		if fe.Confidence < 0 || fe.Confidence > 1 {
			return eris.Errorf("model: extraction %q confidence %.3f out of [0,1]", fe.Property, fe.Confidence)
		}
		for _, src := range fe.Sources {
			if src.Confidence < 0 || src.Confidence > 1 {
				return eris.Errorf("model: extraction %q source %s confidence %.3f out of [0,1]", fe.Property, src.Source, src.Confidence)
			}
		}
	}
	if r.NeedsReview != (len(r.ReviewReasons) > 0) {
		return eris.Errorf("model: needs_review=%v inconsistent with %d review reasons", r.NeedsReview, len(r.ReviewReasons))
	}
	return nil
}
