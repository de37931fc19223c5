package vision

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/meridian-gems/gemscan/internal/model"
)

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

func inVocabulary(value string, vocab []string) bool {
	for _, v := range vocab {
		if model.ValuesMatch(value, v) {
			return true
		}
	}
	return false
}

func confidenceInBounds(c float64) bool {
	return c >= 0 && c <= 1
}

// parseCut validates a cut detection response against the cut vocabulary.
func parseCut(text string, cuts []string) (*CutResult, error) {
	var res CutResult
	if err := json.Unmarshal([]byte(cleanJSON(text)), &res); err != nil {
		return nil, eris.Wrapf(ErrParse, "cut detection: %v", err)
	}
	if res.DetectedCut == "" {
		return nil, eris.Wrap(ErrParse, "cut detection: missing detected_cut")
	}
	if !inVocabulary(res.DetectedCut, cuts) {
		return nil, eris.Wrapf(ErrParse, "cut detection: %q not in vocabulary", res.DetectedCut)
	}
	if !confidenceInBounds(res.Confidence) {
		return nil, eris.Wrapf(ErrParse, "cut detection: confidence %.3f out of [0,1]", res.Confidence)
	}
	res.DetectedCut = model.NormalizeValue(res.DetectedCut)
	return &res, nil
}

// parseColor validates a color detection response against the palette.
func parseColor(text string, colors []string) (*ColorResult, error) {
	var res ColorResult
	if err := json.Unmarshal([]byte(cleanJSON(text)), &res); err != nil {
		return nil, eris.Wrapf(ErrParse, "color detection: %v", err)
	}
	if res.DetectedColor == "" {
		return nil, eris.Wrap(ErrParse, "color detection: missing detected_color")
	}
	if !inVocabulary(res.DetectedColor, colors) {
		return nil, eris.Wrapf(ErrParse, "color detection: %q not in palette", res.DetectedColor)
	}
	if !confidenceInBounds(res.Confidence) {
		return nil, eris.Wrapf(ErrParse, "color detection: confidence %.3f out of [0,1]", res.Confidence)
	}
	res.DetectedColor = model.NormalizeValue(res.DetectedColor)
	return &res, nil
}

var knownClassifications = map[string]bool{
	ClassCleanSubject: true,
	ClassAcceptable:   true,
	ClassCertificate:  true,
	ClassLabel:        true,
	ClassTool:         true,
	ClassPackaging:    true,
}

// parsePrimary validates a primary-selection response: the selected index
// must address a request image and every image must be assessed exactly once
// with in-bounds scores.
func parsePrimary(text string, imageCount int) (*PrimaryResult, error) {
	var res PrimaryResult
	if err := json.Unmarshal([]byte(cleanJSON(text)), &res); err != nil {
		return nil, eris.Wrapf(ErrParse, "primary selection: %v", err)
	}
	if res.SelectedIndex < 0 || res.SelectedIndex >= imageCount {
		return nil, eris.Wrapf(ErrParse, "primary selection: selected_index %d out of range [0,%d)", res.SelectedIndex, imageCount)
	}
	if len(res.Assessments) != imageCount {
		return nil, eris.Wrapf(ErrParse, "primary selection: %d assessments for %d images", len(res.Assessments), imageCount)
	}

	seen := make(map[int]bool, imageCount)
	for _, a := range res.Assessments {
		if a.Index < 0 || a.Index >= imageCount {
			return nil, eris.Wrapf(ErrParse, "primary selection: image index %d out of range", a.Index)
		}
		if seen[a.Index] {
			return nil, eris.Wrapf(ErrParse, "primary selection: duplicate assessment for index %d", a.Index)
		}
		seen[a.Index] = true

		for _, score := range []float64{a.Quality, a.Composition, a.Clarity, a.Professional, a.Overall} {
			if !confidenceInBounds(score) {
				return nil, eris.Wrapf(ErrParse, "primary selection: score %.3f out of [0,1] for index %d", score, a.Index)
			}
		}
		if !knownClassifications[a.Classification] {
			return nil, eris.Wrapf(ErrParse, "primary selection: unknown classification %q", a.Classification)
		}
	}
	return &res, nil
}

var knownOCRSources = map[string]model.ReadingSource{
	"label": model.SourceLabel,
	"gauge": model.SourceGauge,
	"scale": model.SourceScale,
}

// parseOCR validates a label or measurement extraction response.
func parseOCR(text string) (*OCRResult, error) {
	var res OCRResult
	if err := json.Unmarshal([]byte(cleanJSON(text)), &res); err != nil {
		return nil, eris.Wrapf(ErrParse, "ocr extraction: %v", err)
	}
	for _, f := range res.Fields {
		if f.Name == "" {
			return nil, eris.Wrap(ErrParse, "ocr extraction: field with empty name")
		}
		if !confidenceInBounds(f.Confidence) {
			return nil, eris.Wrapf(ErrParse, "ocr extraction: field %q confidence %.3f out of [0,1]", f.Name, f.Confidence)
		}
		if _, ok := knownOCRSources[f.Source]; !ok {
			return nil, eris.Wrapf(ErrParse, "ocr extraction: field %q has unknown source %q", f.Name, f.Source)
		}
	}
	return &res, nil
}
