// Package pipeline orchestrates one gemstone's analysis run: resolve media,
// normalize it, fan out vision tasks, consolidate readings into
// cross-validated extractions, flag records for review and persist.
package pipeline

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-gems/gemscan/internal/catalog"
	"github.com/meridian-gems/gemscan/internal/config"
	"github.com/meridian-gems/gemscan/internal/cost"
	"github.com/meridian-gems/gemscan/internal/model"
	"github.com/meridian-gems/gemscan/internal/resilience"
	"github.com/meridian-gems/gemscan/internal/store"
	"github.com/meridian-gems/gemscan/internal/vision"
)

// ErrPersistence marks an analysis record that could not be stored after
// retries. Extraction results are already computed when it surfaces, so
// callers retry persistence, not the whole run.
var ErrPersistence = errors.New("pipeline: persistence failed")

// Pipeline runs the full analysis for single gemstones.
type Pipeline struct {
	cfg          *config.Config
	store        store.Store
	resolver     *catalog.Resolver
	normalizer   Normalizer
	engine       VisionEngine
	costCalc     *cost.Calculator
	policy       SelectionPolicy
	persistRetry resilience.RetryConfig
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, st store.Store, normalizer Normalizer, engine VisionEngine) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		store:        st,
		resolver:     catalog.NewResolver(st),
		normalizer:   normalizer,
		engine:       engine,
		costCalc:     cost.NewCalculator(cfg.Pricing),
		policy:       FirstAssetPolicy{},
		persistRetry: persistRetryConfig(),
	}
}

// persistRetryConfig returns the storage-write retry policy. Validation runs
// before the retry loop, so every error reaching it is worth retrying.
func persistRetryConfig() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.ShouldRetry = func(error) bool { return true }
	cfg.OnRetry = resilience.RetryLogger("store", "upsert analysis")
	return cfg
}

// Run analyzes one gemstone end to end and returns the persisted record.
// Per-file and per-task failures degrade the record; only an unknown
// gemstone, context cancellation or exhausted persistence retries fail the
// run.
func (p *Pipeline) Run(ctx context.Context, gemstoneID string) (*model.AnalysisRecord, error) {
	log := zap.L().With(zap.String("gemstone_id", gemstoneID))
	log.Info("pipeline: starting analysis")
	start := time.Now()

	res, err := p.resolver.Resolve(ctx, gemstoneID)
	if err != nil {
		return nil, err
	}

	norm, err := p.normalizer.NormalizeAll(ctx, res.Assets)
	if err != nil {
		return nil, err
	}
	artifacts := norm.ReadyImages()
	if len(artifacts) == 0 {
		log.Warn("pipeline: no analyzable media, proceeding metadata-only",
			zap.Int("assets", len(res.Assets)),
			zap.Int("failed", len(norm.Failed)))
	}

	declared := res.Gemstone.Declared
	out := p.runTasks(ctx, declared, artifacts)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: cancelled")
	}
	logSelfReportDisagreements(log, out, declared)

	rec := &model.AnalysisRecord{
		GemstoneID:      gemstoneID,
		PipelineVersion: p.cfg.Pipeline.Version,
		Extractions:     consolidate(buildCandidates(out), declared, p.cfg.Thresholds),
		Primary:         consolidatePrimary(out.Primary, out.PrimaryImgs, p.cfg.Thresholds),
		Telemetry: model.RunTelemetry{
			MediaAnalyzed: out.MediaAnalyzed,
			VisionCalls:   out.VisionCalls,
			CostUSD:       out.CostUSD,
			Failures:      norm.Failed,
			Tasks:         out.Tasks,
		},
	}

	// Default selection applies only when no scoring result exists at all.
	// Scored-but-below-minimum deliberately emits no recommendation, leaving
	// any curated primary flag in place.
	if rec.Primary == nil && out.Primary == nil {
		rec.Primary = p.policy.Select(artifacts)
	}

	rec.Telemetry.WallClockMS = time.Since(start).Milliseconds()
	rec.ReviewReasons = reviewRecord(rec, declared, p.cfg.Pipeline.RequiredProperties, p.cfg.Thresholds, p.cfg.Pipeline.WallClockCeilingMS)
	rec.NeedsReview = len(rec.ReviewReasons) > 0

	if err := p.persist(ctx, rec); err != nil {
		return nil, err
	}

	if rec.Primary != nil {
		if err := p.store.SetPrimaryAsset(ctx, gemstoneID, rec.Primary.AssetID); err != nil {
			// The record is already durable; surface the inconsistent flag
			// through review instead of rolling back.
			log.Warn("pipeline: failed to set primary asset flag", zap.Error(err))
			rec.ReviewReasons = append(rec.ReviewReasons, model.ReasonPrimaryFlag)
			rec.NeedsReview = true
			if err := p.store.UpsertAnalysis(ctx, rec); err != nil {
				log.Error("pipeline: failed to record primary flag failure", zap.Error(err))
			}
		}
	}

	log.Info("pipeline: analysis complete",
		zap.Int("extractions", len(rec.Extractions)),
		zap.Bool("needs_review", rec.NeedsReview),
		zap.Int64("wall_clock_ms", rec.Telemetry.WallClockMS),
		zap.Float64("cost_usd", rec.Telemetry.CostUSD))
	return rec, nil
}

// persist upserts the record with retry; storage failures are transient more
// often than not, and the upsert is idempotent so retrying is safe.
func (p *Pipeline) persist(ctx context.Context, rec *model.AnalysisRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	err := resilience.Do(ctx, p.persistRetry, func(ctx context.Context) error {
		return p.store.UpsertAnalysis(ctx, rec)
	})
	if err != nil {
		return eris.Wrapf(ErrPersistence, "gemstone %s: %v", rec.GemstoneID, err)
	}
	return nil
}

// logSelfReportDisagreements compares the model's own matches_metadata claims
// against the normalized comparison consolidation trusts. The computed
// comparison is authoritative; a disagreement is telemetry only.
func logSelfReportDisagreements(log *zap.Logger, out *taskOutputs, declared model.DeclaredMetadata) {
	check := func(property, detected, declaredVal string, claimed *bool) {
		if claimed == nil || declaredVal == "" {
			return
		}
		if computed := model.ValuesMatch(detected, declaredVal); computed != *claimed {
			log.Debug("model metadata self-report disagrees with computed comparison",
				zap.String("property", property),
				zap.String("detected", detected),
				zap.Bool("claimed", *claimed),
				zap.Bool("computed", computed))
		}
	}
	if out.Cut != nil {
		check(model.PropertyCut, out.Cut.DetectedCut, declared.Cut, out.Cut.MatchesMetadata)
	}
	if out.Color != nil {
		check(model.PropertyColor, out.Color.DetectedColor, declared.Color, out.Color.MatchesMetadata)
	}
}

// ocrSources maps the engine's field source tags onto reading sources.
var ocrSources = map[string]model.ReadingSource{
	"label": model.SourceLabel,
	"gauge": model.SourceGauge,
	"scale": model.SourceScale,
}

// numericProperties are canonicalized to two decimals before consolidation
// so OCR readings compare cleanly against declared metadata.
var numericProperties = map[string]bool{
	model.PropertyWeight: true,
	model.PropertyLength: true,
	model.PropertyWidth:  true,
	model.PropertyDepth:  true,
}

func canonicalValue(property, value string) string {
	value = model.NormalizeValue(value)
	if numericProperties[property] {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return strconv.FormatFloat(f, 'f', 2, 64)
		}
	}
	return value
}

// buildCandidates collects every per-source reading keyed by property.
func buildCandidates(out *taskOutputs) map[string][]candidate {
	byProp := make(map[string][]candidate)

	if out.Cut != nil {
		byProp[model.PropertyCut] = append(byProp[model.PropertyCut], candidate{
			Value: out.Cut.DetectedCut,
			Reading: model.SourceReading{
				Source:     model.SourceVisualEstimate,
				Raw:        out.Cut.DetectedCut,
				Confidence: out.Cut.Confidence,
			},
			Reasoning: out.Cut.Reasoning,
		})
	}

	if out.Color != nil {
		reasoning := out.Color.Reasoning
		if reasoning == "" {
			reasoning = out.Color.ColorDescription
		}
		byProp[model.PropertyColor] = append(byProp[model.PropertyColor], candidate{
			Value: out.Color.DetectedColor,
			Reading: model.SourceReading{
				Source:     model.SourceVisualEstimate,
				Raw:        out.Color.DetectedColor,
				Confidence: out.Color.Confidence,
			},
			Reasoning: reasoning,
		})
	}

	addOCRFields(byProp, out.Labels)
	addOCRFields(byProp, out.Measurements)

	// Canonicalize values once all candidates are gathered.
	for prop, cands := range byProp {
		for i := range cands {
			cands[i].Value = canonicalValue(prop, cands[i].Value)
		}
		byProp[prop] = cands
	}
	return byProp
}

// fieldProperties maps OCR field names, including common short forms, onto
// canonical property names. Unknown fields are dropped.
var fieldProperties = map[string]string{
	model.PropertyCut:    model.PropertyCut,
	model.PropertyColor:  model.PropertyColor,
	model.PropertyWeight: model.PropertyWeight,
	model.PropertyLength: model.PropertyLength,
	model.PropertyWidth:  model.PropertyWidth,
	model.PropertyDepth:  model.PropertyDepth,
	"weight":             model.PropertyWeight,
	"carats":             model.PropertyWeight,
	"length":             model.PropertyLength,
	"width":              model.PropertyWidth,
	"depth":              model.PropertyDepth,
}

func addOCRFields(byProp map[string][]candidate, res *vision.OCRResult) {
	if res == nil {
		return
	}
	for _, f := range res.Fields {
		prop, ok := fieldProperties[model.NormalizeValue(f.Name)]
		if !ok {
			zap.L().Debug("pipeline: dropping unrecognized ocr field", zap.String("field", f.Name))
			continue
		}
		source, ok := ocrSources[f.Source]
		if !ok {
			continue
		}
		byProp[prop] = append(byProp[prop], candidate{
			Value: f.Value,
			Reading: model.SourceReading{
				Source:     source,
				Raw:        f.Value,
				Confidence: f.Confidence,
			},
		})
	}
}
