package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-gems/gemscan/internal/media"
	"github.com/meridian-gems/gemscan/internal/model"
	"github.com/meridian-gems/gemscan/internal/resilience"
	"github.com/meridian-gems/gemscan/internal/vision"
	"github.com/meridian-gems/gemscan/pkg/anthropic"
)

// VisionEngine is the subset of the vision engine the orchestrator uses.
// Satisfied by *vision.Engine; mocked in tests.
type VisionEngine interface {
	DetectCut(ctx context.Context, images []anthropic.Image, declaredCut string) (*vision.CutResult, anthropic.TokenUsage, error)
	DetectColor(ctx context.Context, images []anthropic.Image, declaredColor string) (*vision.ColorResult, anthropic.TokenUsage, error)
	SelectPrimary(ctx context.Context, images []anthropic.Image) (*vision.PrimaryResult, anthropic.TokenUsage, error)
	ExtractLabels(ctx context.Context, images []anthropic.Image) (*vision.OCRResult, anthropic.TokenUsage, error)
	ExtractMeasurements(ctx context.Context, images []anthropic.Image) (*vision.OCRResult, anthropic.TokenUsage, error)
}

// Normalizer is the media normalization dependency. Satisfied by
// *media.Normalizer.
type Normalizer interface {
	NormalizeAll(ctx context.Context, assets []model.GemstoneAsset) (*media.Result, error)
}

// taskOutputs aggregates everything the concurrent task phase produced.
// A nil result field means that task failed or was skipped; the audit entry
// in Tasks tells which.
type taskOutputs struct {
	mu sync.Mutex

	Cut          *vision.CutResult
	Color        *vision.ColorResult
	Primary      *vision.PrimaryResult
	PrimaryImgs  []media.Artifact
	Labels       *vision.OCRResult
	Measurements *vision.OCRResult

	Tasks         []model.AnalysisTask
	VisionCalls   int
	CostUSD       float64
	MediaAnalyzed map[model.TaskKind]int
}

// shouldRetryTask bounds per-task recovery: timeouts, parse failures and
// API unavailability each earn exactly one more attempt.
func shouldRetryTask(err error) bool {
	return errors.Is(err, vision.ErrTimeout) ||
		errors.Is(err, vision.ErrUnavailable) ||
		errors.Is(err, vision.ErrParse)
}

// toImages converts artifacts to request images, capped at budget.
// The orchestrator selects; the engine only verifies.
func toImages(artifacts []media.Artifact, budget int) ([]anthropic.Image, []media.Artifact) {
	n := len(artifacts)
	if budget > 0 && n > budget {
		n = budget
	}
	imgs := make([]anthropic.Image, 0, n)
	for _, a := range artifacts[:n] {
		imgs = append(imgs, anthropic.Image{MediaType: "image/jpeg", Data: a.JPEG})
	}
	return imgs, artifacts[:n]
}

// runTask wraps one task invocation with bounded retry, duration and audit
// accounting. fn performs the actual engine call and stores its result.
func (p *Pipeline) runTask(ctx context.Context, out *taskOutputs, kind model.TaskKind, selected []media.Artifact, fn func(ctx context.Context) (anthropic.TokenUsage, error)) {
	cfg := p.cfg.Tasks.ByKind(string(kind))

	task := model.AnalysisTask{
		Kind:    kind,
		Model:   cfg.Model,
		Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
	}
	for _, a := range selected {
		task.AssetIDs = append(task.AssetIDs, a.Asset.ID)
	}

	var totalUsage anthropic.TokenUsage
	attempts := 0
	start := time.Now()

	retryCfg := resilience.SingleRetry(shouldRetryTask)
	retryCfg.OnRetry = resilience.RetryLogger("vision", string(kind))

	err := resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
		attempts++
		usage, callErr := fn(ctx)
		totalUsage.Add(usage)
		return callErr
	})

	task.Attempts = attempts
	task.DurationMS = time.Since(start).Milliseconds()
	switch {
	case err == nil:
		task.Status = model.TaskSucceeded
	case errors.Is(err, vision.ErrTimeout):
		task.Status = model.TaskTimedOut
		task.Error = err.Error()
	default:
		task.Status = model.TaskFailed
		task.Error = err.Error()
	}

	cost := p.costCalc.Vision(cfg.Model,
		totalUsage.InputTokens, totalUsage.OutputTokens,
		totalUsage.CacheCreationInputTokens, totalUsage.CacheReadInputTokens)

	out.mu.Lock()
	out.Tasks = append(out.Tasks, task)
	out.VisionCalls += attempts
	out.CostUSD += cost
	out.MediaAnalyzed[kind] = len(selected)
	out.mu.Unlock()

	if err != nil {
		zap.L().Warn("vision task failed",
			zap.String("task", string(kind)),
			zap.Int("attempts", attempts),
			zap.Error(err))
	}
}

// runTasks dispatches every applicable vision task concurrently. Task
// failures never abort the run; only parent-context cancellation does.
func (p *Pipeline) runTasks(ctx context.Context, declared model.DeclaredMetadata, artifacts []media.Artifact) *taskOutputs {
	out := &taskOutputs{MediaAnalyzed: make(map[model.TaskKind]int)}
	if len(artifacts) == 0 {
		return out
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		imgs, selected := toImages(artifacts, p.cfg.Tasks.Cut.MaxImages)
		p.runTask(gCtx, out, model.TaskCutDetection, selected, func(ctx context.Context) (anthropic.TokenUsage, error) {
			res, usage, err := p.engine.DetectCut(ctx, imgs, declared.Cut)
			if err == nil {
				out.mu.Lock()
				out.Cut = res
				out.mu.Unlock()
			}
			return usage, err
		})
		return nil
	})

	g.Go(func() error {
		imgs, selected := toImages(artifacts, p.cfg.Tasks.Color.MaxImages)
		p.runTask(gCtx, out, model.TaskColorDetection, selected, func(ctx context.Context) (anthropic.TokenUsage, error) {
			res, usage, err := p.engine.DetectColor(ctx, imgs, declared.Color)
			if err == nil {
				out.mu.Lock()
				out.Color = res
				out.mu.Unlock()
			}
			return usage, err
		})
		return nil
	})

	g.Go(func() error {
		imgs, selected := toImages(artifacts, p.cfg.Tasks.Primary.MaxImages)
		out.mu.Lock()
		out.PrimaryImgs = selected
		out.mu.Unlock()
		p.runTask(gCtx, out, model.TaskPrimarySelection, selected, func(ctx context.Context) (anthropic.TokenUsage, error) {
			res, usage, err := p.engine.SelectPrimary(ctx, imgs)
			if err == nil {
				out.mu.Lock()
				out.Primary = res
				out.mu.Unlock()
			}
			return usage, err
		})
		return nil
	})

	g.Go(func() error {
		imgs, selected := toImages(artifacts, p.cfg.Tasks.Label.MaxImages)
		p.runTask(gCtx, out, model.TaskLabelExtraction, selected, func(ctx context.Context) (anthropic.TokenUsage, error) {
			res, usage, err := p.engine.ExtractLabels(ctx, imgs)
			if err == nil {
				out.mu.Lock()
				out.Labels = res
				out.mu.Unlock()
			}
			return usage, err
		})
		return nil
	})

	g.Go(func() error {
		imgs, selected := toImages(artifacts, p.cfg.Tasks.Measurement.MaxImages)
		p.runTask(gCtx, out, model.TaskMeasurementExtraction, selected, func(ctx context.Context) (anthropic.TokenUsage, error) {
			res, usage, err := p.engine.ExtractMeasurements(ctx, imgs)
			if err == nil {
				out.mu.Lock()
				out.Measurements = res
				out.mu.Unlock()
			}
			return usage, err
		})
		return nil
	})

	_ = g.Wait()
	return out
}
