package model

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ReadingSource tags where a raw reading for a property came from.
type ReadingSource string

const (
	SourceLabel            ReadingSource = "label"
	SourceGauge            ReadingSource = "gauge"
	SourceScale            ReadingSource = "scale"
	SourceCertificate      ReadingSource = "certificate"
	SourceVisualEstimate   ReadingSource = "visual_estimate"
	SourceExistingMetadata ReadingSource = "existing_metadata"
)

// SourceReading is one raw per-source reading contributing to a consolidated
// field value.
type SourceReading struct {
	Source     ReadingSource `json:"source"`
	Raw        string        `json:"raw"`
	Confidence float64       `json:"confidence"`
}

// FieldExtraction is one cross-validated property value. Immutable once
// written for a given run; superseded, not mutated, by the next run.
//
// MatchesDeclared is nil when no declared value existed to compare against —
// distinct from false, which means a declared value existed and disagreed.
type FieldExtraction struct {
	Property        string          `json:"property"`
	Value           string          `json:"value"`
	Confidence      float64         `json:"confidence"`
	Sources         []SourceReading `json:"sources"`
	MatchesDeclared *bool           `json:"matches_declared,omitempty"`
	Reasoning       string          `json:"reasoning,omitempty"`
}

// NormalizeValue canonicalizes a detected or declared value for comparison:
// unicode NFC, case-folded, whitespace-trimmed.
func NormalizeValue(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// ValuesMatch reports whether two property values are equal under
// normalized comparison.
func ValuesMatch(a, b string) bool {
	return NormalizeValue(a) == NormalizeValue(b)
}

func formatMM(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
