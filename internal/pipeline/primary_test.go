package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-gems/gemscan/internal/media"
	"github.com/meridian-gems/gemscan/internal/model"
	"github.com/meridian-gems/gemscan/internal/vision"
)

func testArtifacts(n int) []media.Artifact {
	arts := make([]media.Artifact, n)
	for i := range arts {
		arts[i] = media.Artifact{
			Asset: model.GemstoneAsset{
				ID:         fmt.Sprintf("a%d", i),
				GemstoneID: "g1",
				Kind:       model.AssetImage,
				Locator:    fmt.Sprintf("media/g1/%d.jpg", i),
				Ordinal:    i,
			},
			Kind: model.AssetImage,
			JPEG: []byte{0xff, 0xd8, 0xff},
		}
	}
	return arts
}

func TestFirstAssetPolicy_LowestOrdinal(t *testing.T) {
	arts := testArtifacts(3)
	// Shuffle so the policy has to look at ordinals, not positions.
	arts[0], arts[2] = arts[2], arts[0]

	rec := FirstAssetPolicy{}.Select(arts)
	require.NotNil(t, rec)
	assert.Equal(t, "a0", rec.AssetID)
	assert.Equal(t, 0, rec.Ordinal)
	assert.Contains(t, rec.Rationale, "first image")
}

func TestFirstAssetPolicy_NoImages(t *testing.T) {
	assert.Nil(t, FirstAssetPolicy{}.Select(nil))

	video := []media.Artifact{{
		Asset: model.GemstoneAsset{ID: "v0", Kind: model.AssetVideo},
		Kind:  model.AssetVideo,
	}}
	assert.Nil(t, FirstAssetPolicy{}.Select(video))
}

func TestConsolidatePrimary_ClassificationBoostDecides(t *testing.T) {
	arts := testArtifacts(2)
	res := &vision.PrimaryResult{
		SelectedIndex: 1,
		Reasoning:     "well lit close-up",
		Assessments: []vision.ImageAssessment{
			{Index: 0, Overall: 0.70, Classification: vision.ClassCleanSubject},
			{Index: 1, Overall: 0.80, Classification: vision.ClassCertificate},
		},
	}

	rec := consolidatePrimary(res, arts, testThresholds())
	require.NotNil(t, rec)
	// 0.70+0.20 beats 0.80+0: paperwork loses to the clean shot.
	assert.Equal(t, "a0", rec.AssetID)
	assert.InDelta(t, 0.90, rec.Score, 1e-9)
	assert.Equal(t, "well lit close-up", rec.Rationale)
	require.Len(t, rec.Breakdown, 2)
	assert.InDelta(t, 0.90, rec.Breakdown[0].Adjusted, 1e-9)
	assert.InDelta(t, 0.80, rec.Breakdown[1].Adjusted, 1e-9)
}

func TestConsolidatePrimary_AdjustedClamped(t *testing.T) {
	arts := testArtifacts(1)
	res := &vision.PrimaryResult{
		Assessments: []vision.ImageAssessment{
			{Index: 0, Overall: 0.95, Classification: vision.ClassCleanSubject},
		},
	}

	rec := consolidatePrimary(res, arts, testThresholds())
	require.NotNil(t, rec)
	assert.Equal(t, 1.0, rec.Score)
}

func TestConsolidatePrimary_TieBreaksToLowestOrdinal(t *testing.T) {
	arts := testArtifacts(3)
	res := &vision.PrimaryResult{
		Assessments: []vision.ImageAssessment{
			{Index: 2, Overall: 0.80, Classification: vision.ClassAcceptable},
			{Index: 1, Overall: 0.80, Classification: vision.ClassAcceptable},
		},
	}

	rec := consolidatePrimary(res, arts, testThresholds())
	require.NotNil(t, rec)
	assert.Equal(t, "a1", rec.AssetID)
}

func TestConsolidatePrimary_BelowMinimum(t *testing.T) {
	arts := testArtifacts(1)
	res := &vision.PrimaryResult{
		Assessments: []vision.ImageAssessment{
			{Index: 0, Overall: 0.30, Classification: vision.ClassAcceptable},
		},
	}

	assert.Nil(t, consolidatePrimary(res, arts, testThresholds()))
}

func TestConsolidatePrimary_OutOfRangeIndexSkipped(t *testing.T) {
	arts := testArtifacts(1)
	res := &vision.PrimaryResult{
		Assessments: []vision.ImageAssessment{
			{Index: 5, Overall: 0.95, Classification: vision.ClassCleanSubject},
			{Index: 0, Overall: 0.70, Classification: vision.ClassAcceptable},
		},
	}

	rec := consolidatePrimary(res, arts, testThresholds())
	require.NotNil(t, rec)
	assert.Equal(t, "a0", rec.AssetID)
	assert.Len(t, rec.Breakdown, 1)
}

func TestConsolidatePrimary_NilResult(t *testing.T) {
	assert.Nil(t, consolidatePrimary(nil, testArtifacts(1), testThresholds()))
	assert.Nil(t, consolidatePrimary(&vision.PrimaryResult{}, testArtifacts(1), testThresholds()))
}

func TestConsolidatePrimary_RationaleFallback(t *testing.T) {
	arts := testArtifacts(1)
	res := &vision.PrimaryResult{
		Reasoning: "  ",
		Assessments: []vision.ImageAssessment{
			{Index: 0, Overall: 0.80, Classification: vision.ClassCleanSubject},
		},
	}

	rec := consolidatePrimary(res, arts, testThresholds())
	require.NotNil(t, rec)
	assert.Contains(t, rec.Rationale, "highest adjusted score")
}
