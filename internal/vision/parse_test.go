package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCuts = []string{"round", "oval", "pear", "emerald", "cushion"}
var testColors = []string{"red", "blue", "green", "pink", "yellow", "colorless"}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose wrapped", `Here is the result: {"a": 1} as requested.`, `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cleanJSON(tt.input))
		})
	}
}

func TestParseCut(t *testing.T) {
	res, err := parseCut(`{"detected_cut": "Round", "confidence": 0.93, "reasoning": "symmetric circular outline", "matches_metadata": true}`, testCuts)
	require.NoError(t, err)
	assert.Equal(t, "round", res.DetectedCut)
	assert.InDelta(t, 0.93, res.Confidence, 1e-9)
	require.NotNil(t, res.MatchesMetadata)
	assert.True(t, *res.MatchesMetadata)
}

func TestParseCut_NullMatches(t *testing.T) {
	res, err := parseCut(`{"detected_cut": "pear", "confidence": 0.7, "reasoning": "", "matches_metadata": null}`, testCuts)
	require.NoError(t, err)
	assert.Nil(t, res.MatchesMetadata)
}

func TestParseCut_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", "the stone looks round to me"},
		{"missing cut", `{"confidence": 0.9}`},
		{"out of vocabulary", `{"detected_cut": "trillion", "confidence": 0.9}`},
		{"confidence too high", `{"detected_cut": "round", "confidence": 1.2}`},
		{"negative confidence", `{"detected_cut": "round", "confidence": -0.1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseCut(tt.input, testCuts)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestParseColor(t *testing.T) {
	res, err := parseColor(`{"detected_color": "Blue", "confidence": 0.85, "color_description": "deep saturated blue", "matches_metadata": false, "reasoning": "dominant hue"}`, testColors)
	require.NoError(t, err)
	assert.Equal(t, "blue", res.DetectedColor)
	assert.Equal(t, "deep saturated blue", res.ColorDescription)
	require.NotNil(t, res.MatchesMetadata)
	assert.False(t, *res.MatchesMetadata)
}

func TestParseColor_OutOfPalette(t *testing.T) {
	_, err := parseColor(`{"detected_color": "chartreuse", "confidence": 0.8}`, testColors)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
}

func validPrimaryJSON() string {
	return `{"selected_index": 1, "reasoning": "best lighting", "images": [
		{"index": 0, "quality": 0.5, "composition": 0.6, "clarity": 0.7, "professional_presentation": 0.4, "overall": 0.55, "classification": "acceptable"},
		{"index": 1, "quality": 0.9, "composition": 0.8, "clarity": 0.9, "professional_presentation": 0.85, "overall": 0.88, "classification": "clean_subject"}
	]}`
}

func TestParsePrimary(t *testing.T) {
	res, err := parsePrimary(validPrimaryJSON(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, res.SelectedIndex)
	require.Len(t, res.Assessments, 2)
	assert.Equal(t, ClassCleanSubject, res.Assessments[1].Classification)
}

func TestParsePrimary_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		imageCount int
	}{
		{"index out of range", validPrimaryJSON(), 0},
		{"assessment count mismatch", validPrimaryJSON(), 3},
		{"duplicate index", `{"selected_index": 0, "images": [
			{"index": 0, "overall": 0.5, "classification": "acceptable"},
			{"index": 0, "overall": 0.6, "classification": "acceptable"}]}`, 2},
		{"unknown classification", `{"selected_index": 0, "images": [
			{"index": 0, "overall": 0.5, "classification": "selfie"}]}`, 1},
		{"score out of bounds", `{"selected_index": 0, "images": [
			{"index": 0, "quality": 1.5, "overall": 0.5, "classification": "acceptable"}]}`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parsePrimary(tt.input, tt.imageCount)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestParseOCR(t *testing.T) {
	res, err := parseOCR(`{"raw_text": "2.15ct ラウンド", "translated_text": "2.15ct Round", "fields": [
		{"name": "weight_carats", "value": "2.15", "confidence": 0.9, "source": "label"},
		{"name": "cut", "value": "round", "confidence": 0.8, "source": "label"}
	]}`)
	require.NoError(t, err)
	assert.Equal(t, "2.15ct Round", res.TranslatedText)
	require.Len(t, res.Fields, 2)
	assert.Equal(t, "label", res.Fields[0].Source)
}

func TestParseOCR_EmptyFields(t *testing.T) {
	res, err := parseOCR(`{"raw_text": "", "translated_text": "", "fields": []}`)
	require.NoError(t, err)
	assert.Empty(t, res.Fields)
}

func TestParseOCR_UnknownSource(t *testing.T) {
	_, err := parseOCR(`{"raw_text": "x", "fields": [{"name": "cut", "value": "round", "confidence": 0.9, "source": "certificate"}]}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
}
