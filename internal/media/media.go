// Package media normalizes gemstone photos and videos into consistent
// artifacts the vision engine can consume: EXIF-corrected bounded JPEGs and
// streaming-friendly MP4s with a poster thumbnail.
//
// Normalization of one file never aborts the batch. Each asset either
// becomes a ready Artifact or a recorded failure.
package media

import (
	"errors"

	"github.com/meridian-gems/gemscan/internal/model"
)

// Sentinel errors for per-file normalization outcomes.
var (
	// ErrUnsupportedFormat marks a file whose container or codec could not
	// be decoded.
	ErrUnsupportedFormat = errors.New("media: unsupported format")

	// ErrTooLarge marks a file that still exceeds the size ceiling after
	// normalization.
	ErrTooLarge = errors.New("media: file exceeds size ceiling")
)

// Artifact is one normalized media file ready for vision analysis.
// For images JPEG holds the normalized frame; for videos it holds the
// poster thumbnail extracted near the start of the clip.
type Artifact struct {
	Asset        model.GemstoneAsset
	Kind         model.AssetKind
	JPEG         []byte
	Path         string // normalized file on disk ("" when JPEG-only)
	Width        int
	Height       int
	DurationSecs float64 // videos only
}

// Result partitions a normalization pass: artifacts that are ready for
// analysis and per-file failures that the pipeline records but tolerates.
type Result struct {
	Ready  []Artifact
	Failed []model.MediaFailure
}
