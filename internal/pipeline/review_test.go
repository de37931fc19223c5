package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-gems/gemscan/internal/model"
)

func boolPtr(b bool) *bool { return &b }

func TestReviewRecord_CleanRecord(t *testing.T) {
	rec := &model.AnalysisRecord{
		Extractions: []model.FieldExtraction{
			{Property: model.PropertyCut, Value: "round", Confidence: 0.9, MatchesDeclared: boolPtr(true)},
			{Property: model.PropertyColor, Value: "blue", Confidence: 0.8},
		},
		Telemetry: model.RunTelemetry{WallClockMS: 5000},
	}
	declared := model.DeclaredMetadata{Cut: "round"}

	reasons := reviewRecord(rec, declared, []string{model.PropertyCut}, testThresholds(), 30000)
	assert.Empty(t, reasons)
}

func TestReviewRecord_MismatchPerProperty(t *testing.T) {
	rec := &model.AnalysisRecord{
		Extractions: []model.FieldExtraction{
			{Property: model.PropertyCut, Value: "oval", Confidence: 0.9, MatchesDeclared: boolPtr(false)},
			{Property: model.PropertyColor, Value: "green", Confidence: 0.9, MatchesDeclared: boolPtr(false)},
		},
	}
	declared := model.DeclaredMetadata{Cut: "round", Color: "blue"}

	reasons := reviewRecord(rec, declared, nil, testThresholds(), 0)
	assert.Contains(t, reasons, model.ReviewReason("cut_mismatch"))
	assert.Contains(t, reasons, model.ReviewReason("color_mismatch"))
}

func TestReviewRecord_LowConfidenceOnlyForDeclaredProperties(t *testing.T) {
	rec := &model.AnalysisRecord{
		Extractions: []model.FieldExtraction{
			{Property: model.PropertyColor, Value: "blue", Confidence: 0.3},
		},
	}

	// Color was never declared, so low confidence on it is not a flag.
	reasons := reviewRecord(rec, model.DeclaredMetadata{}, nil, testThresholds(), 0)
	assert.NotContains(t, reasons, model.ReasonLowConfidence)

	declared := model.DeclaredMetadata{Color: "blue"}
	reasons = reviewRecord(rec, declared, nil, testThresholds(), 0)
	assert.Contains(t, reasons, model.ReasonLowConfidence)
}

func TestReviewRecord_LowConfidenceReportedOnce(t *testing.T) {
	rec := &model.AnalysisRecord{
		Extractions: []model.FieldExtraction{
			{Property: model.PropertyCut, Value: "round", Confidence: 0.2, MatchesDeclared: boolPtr(true)},
			{Property: model.PropertyColor, Value: "blue", Confidence: 0.3, MatchesDeclared: boolPtr(true)},
		},
	}
	declared := model.DeclaredMetadata{Cut: "round", Color: "blue"}

	reasons := reviewRecord(rec, declared, nil, testThresholds(), 0)
	count := 0
	for _, r := range reasons {
		if r == model.ReasonLowConfidence {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestReviewRecord_MissingRequired(t *testing.T) {
	rec := &model.AnalysisRecord{
		Extractions: []model.FieldExtraction{
			{Property: model.PropertyCut, Value: "round", Confidence: 0.9},
		},
	}

	required := []string{model.PropertyCut, model.PropertyColor, model.PropertyWeight}
	reasons := reviewRecord(rec, model.DeclaredMetadata{}, required, testThresholds(), 0)

	count := 0
	for _, r := range reasons {
		if r == model.ReasonMissingRequired {
			count++
		}
	}
	assert.Equal(t, 1, count, "multiple missing properties still flag once")
}

func TestReviewRecord_SlowPipeline(t *testing.T) {
	rec := &model.AnalysisRecord{Telemetry: model.RunTelemetry{WallClockMS: 30001}}
	reasons := reviewRecord(rec, model.DeclaredMetadata{}, nil, testThresholds(), 30000)
	assert.Contains(t, reasons, model.ReasonSlowPipeline)

	rec.Telemetry.WallClockMS = 30000
	reasons = reviewRecord(rec, model.DeclaredMetadata{}, nil, testThresholds(), 30000)
	assert.NotContains(t, reasons, model.ReasonSlowPipeline)
}

func TestReviewRecord_PlaceholderText(t *testing.T) {
	rec := &model.AnalysisRecord{
		Extractions: []model.FieldExtraction{
			{Property: model.PropertyCut, Value: "round", Confidence: 0.9, Reasoning: "Lorem ipsum dolor sit amet"},
		},
	}
	reasons := reviewRecord(rec, model.DeclaredMetadata{}, nil, testThresholds(), 0)
	assert.Contains(t, reasons, model.ReasonPlaceholderText)

	rec = &model.AnalysisRecord{
		Primary: &model.PrimaryRecommendation{AssetID: "a0", Rationale: "[insert rationale here]"},
	}
	reasons = reviewRecord(rec, model.DeclaredMetadata{}, nil, testThresholds(), 0)
	assert.Contains(t, reasons, model.ReasonPlaceholderText)
}

func TestContainsPlaceholder(t *testing.T) {
	assert.True(t, containsPlaceholder([]string{"ok", "Your Text Here"}))
	assert.False(t, containsPlaceholder([]string{"sharp facets, even saturation"}))
	assert.False(t, containsPlaceholder(nil))
}
