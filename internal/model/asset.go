package model

import "sort"

// AssetKind distinguishes the two media types a gemstone can carry.
type AssetKind string

const (
	AssetImage AssetKind = "image"
	AssetVideo AssetKind = "video"
)

// GemstoneAsset is a reference to one media file belonging to a gemstone.
// The primary flag is the only field mutated after ingestion; everything
// else is written once.
type GemstoneAsset struct {
	ID               string    `json:"id"`
	GemstoneID       string    `json:"gemstone_id"`
	Kind             AssetKind `json:"kind"`
	Locator          string    `json:"locator"`
	Ordinal          int       `json:"ordinal"`
	IsPrimary        bool      `json:"is_primary"`
	OriginalPath     string    `json:"original_path,omitempty"`
	ThumbnailLocator string    `json:"thumbnail_locator,omitempty"`
	DurationSecs     float64   `json:"duration_secs,omitempty"`
}

// Gemstone is the catalog item the pipeline analyzes. Only the identifier
// and the previously declared metadata snapshot are relevant here; the
// surrounding application owns everything else.
type Gemstone struct {
	ID       string           `json:"id"`
	Declared DeclaredMetadata `json:"declared"`
}

// DeclaredMetadata is the metadata snapshot entered when the gemstone was
// listed, used for cross-validation against detected values. Zero values
// mean "not declared".
type DeclaredMetadata struct {
	Cut          string  `json:"cut,omitempty"`
	Color        string  `json:"color,omitempty"`
	WeightCarats float64 `json:"weight_carats,omitempty"`
	LengthMM     float64 `json:"length_mm,omitempty"`
	WidthMM      float64 `json:"width_mm,omitempty"`
	DepthMM      float64 `json:"depth_mm,omitempty"`
}

// Property names used across extractions, declared metadata and review rules.
const (
	PropertyCut    = "cut"
	PropertyColor  = "color"
	PropertyWeight = "weight_carats"
	PropertyLength = "length_mm"
	PropertyWidth  = "width_mm"
	PropertyDepth  = "depth_mm"
)

// AllProperties lists every known property in canonical order.
var AllProperties = []string{
	PropertyCut,
	PropertyColor,
	PropertyWeight,
	PropertyLength,
	PropertyWidth,
	PropertyDepth,
}

// Value returns the declared value for a property as a string, and whether
// a value was declared at all. Numeric properties are formatted with two
// decimals so comparisons against OCR readings are stable.
func (m DeclaredMetadata) Value(property string) (string, bool) {
	switch property {
	case PropertyCut:
		return m.Cut, m.Cut != ""
	case PropertyColor:
		return m.Color, m.Color != ""
	case PropertyWeight:
		return formatMM(m.WeightCarats), m.WeightCarats > 0
	case PropertyLength:
		return formatMM(m.LengthMM), m.LengthMM > 0
	case PropertyWidth:
		return formatMM(m.WidthMM), m.WidthMM > 0
	case PropertyDepth:
		return formatMM(m.DepthMM), m.DepthMM > 0
	default:
		return "", false
	}
}

// SortAssets orders assets by ordinal, stably, in place.
func SortAssets(assets []GemstoneAsset) {
	sort.SliceStable(assets, func(i, j int) bool {
		return assets[i].Ordinal < assets[j].Ordinal
	})
}
