package pipeline

import (
	"fmt"

	"github.com/meridian-gems/gemscan/internal/config"
	"github.com/meridian-gems/gemscan/internal/media"
	"github.com/meridian-gems/gemscan/internal/model"
	"github.com/meridian-gems/gemscan/internal/vision"
)

// SelectionPolicy picks a default primary image when scoring produced no
// recommendation.
type SelectionPolicy interface {
	Select(images []media.Artifact) *model.PrimaryRecommendation
}

// FirstAssetPolicy selects the lowest-ordinal image asset. It is the
// default fallback policy and is applied only when scoring emitted no
// recommendation, never on top of one.
type FirstAssetPolicy struct{}

func (FirstAssetPolicy) Select(images []media.Artifact) *model.PrimaryRecommendation {
	var best *media.Artifact
	for i := range images {
		if images[i].Kind != model.AssetImage {
			continue
		}
		if best == nil || images[i].Asset.Ordinal < best.Asset.Ordinal {
			best = &images[i]
		}
	}
	if best == nil {
		return nil
	}
	return &model.PrimaryRecommendation{
		AssetID:   best.Asset.ID,
		Ordinal:   best.Asset.Ordinal,
		Rationale: "default selection: first image by capture order",
	}
}

// classificationBoost returns the deterministic score adjustment for an
// image classification. Paperwork and tooling shots get no boost, keeping
// them out of the catalog slot unless nothing better exists.
func classificationBoost(class string, th config.ThresholdsConfig) float64 {
	switch class {
	case vision.ClassCleanSubject:
		return th.CleanSubjectBoost
	case vision.ClassAcceptable:
		return th.AcceptableBoost
	default:
		return 0
	}
}

// consolidatePrimary converts the engine's per-image assessments into a
// recommendation. Adjusted score = overall + classification boost, clamped
// to [0,1]. The highest adjusted score wins; ties break to the lowest
// ordinal, which makes reruns deterministic. A best score below the minimum
// threshold yields no recommendation.
func consolidatePrimary(res *vision.PrimaryResult, artifacts []media.Artifact, th config.ThresholdsConfig) *model.PrimaryRecommendation {
	if res == nil || len(res.Assessments) == 0 {
		return nil
	}

	breakdown := make([]model.ImageScore, 0, len(res.Assessments))
	bestIdx := -1
	var best model.ImageScore

	for _, a := range res.Assessments {
		if a.Index < 0 || a.Index >= len(artifacts) {
			continue
		}
		asset := artifacts[a.Index].Asset

		adjusted := a.Overall + classificationBoost(a.Classification, th)
		if adjusted > 1 {
			adjusted = 1
		}
		if adjusted < 0 {
			adjusted = 0
		}

		score := model.ImageScore{
			AssetID:        asset.ID,
			Ordinal:        asset.Ordinal,
			Quality:        a.Quality,
			Composition:    a.Composition,
			Clarity:        a.Clarity,
			Professional:   a.Professional,
			Overall:        a.Overall,
			Classification: a.Classification,
			Adjusted:       adjusted,
		}
		breakdown = append(breakdown, score)

		if bestIdx == -1 ||
			score.Adjusted > best.Adjusted ||
			(score.Adjusted == best.Adjusted && score.Ordinal < best.Ordinal) {
			bestIdx = a.Index
			best = score
		}
	}

	if bestIdx == -1 || best.Adjusted < th.PrimaryMinScore {
		return nil
	}

	rationale := res.Reasoning
	if model.NormalizeValue(rationale) == "" {
		rationale = fmt.Sprintf("highest adjusted score %.2f (%s)", best.Adjusted, best.Classification)
	}

	return &model.PrimaryRecommendation{
		AssetID:   best.AssetID,
		Ordinal:   best.Ordinal,
		Score:     best.Adjusted,
		Rationale: rationale,
		Breakdown: breakdown,
	}
}
