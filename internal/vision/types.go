package vision

// Image classifications recognized by primary selection. Clean subject
// shots and acceptable shots earn deterministic score boosts downstream;
// paperwork and tooling shots earn none.
const (
	ClassCleanSubject = "clean_subject"
	ClassAcceptable   = "acceptable"
	ClassCertificate  = "certificate"
	ClassLabel        = "label"
	ClassTool         = "tool"
	ClassPackaging    = "packaging"
)

// CutResult is cut detection's structured output.
type CutResult struct {
	DetectedCut     string  `json:"detected_cut"`
	Confidence      float64 `json:"confidence"`
	Reasoning       string  `json:"reasoning"`
	MatchesMetadata *bool   `json:"matches_metadata"`
}

// ColorResult is color detection's structured output.
type ColorResult struct {
	DetectedColor    string  `json:"detected_color"`
	Confidence       float64 `json:"confidence"`
	ColorDescription string  `json:"color_description"`
	MatchesMetadata  *bool   `json:"matches_metadata"`
	Reasoning        string  `json:"reasoning"`
}

// ImageAssessment is one image's scores from primary selection. Index refers
// to the position of the image in the request, in the order given.
type ImageAssessment struct {
	Index          int     `json:"index"`
	Quality        float64 `json:"quality"`
	Composition    float64 `json:"composition"`
	Clarity        float64 `json:"clarity"`
	Professional   float64 `json:"professional_presentation"`
	Overall        float64 `json:"overall"`
	Classification string  `json:"classification"`
}

// PrimaryResult is primary selection's structured output.
type PrimaryResult struct {
	SelectedIndex int               `json:"selected_index"`
	Reasoning     string            `json:"reasoning"`
	Assessments   []ImageAssessment `json:"images"`
}

// OCRField is one labeled value read off packaging, a gauge or a scale.
type OCRField struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source"` // label | gauge | scale
}

// OCRResult is the structured output of label and measurement extraction.
type OCRResult struct {
	RawText        string     `json:"raw_text"`
	TranslatedText string     `json:"translated_text"`
	Fields         []OCRField `json:"fields"`
}
