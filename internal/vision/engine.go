// Package vision issues one structured model request per analysis task and
// parses the response at a strict boundary: a response either conforms to
// the task schema or the task fails with ErrParse. The engine never
// truncates image sets to fit a budget; over-budget requests are caller
// errors.
package vision

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/meridian-gems/gemscan/internal/config"
	"github.com/meridian-gems/gemscan/internal/model"
	"github.com/meridian-gems/gemscan/internal/resilience"
	"github.com/meridian-gems/gemscan/pkg/anthropic"
)

// Engine runs vision tasks against the Anthropic API.
type Engine struct {
	client  anthropic.Client
	tasks   config.TasksConfig
	cuts    []string
	colors  []string
	limiter *rate.Limiter
}

// NewEngine creates an Engine. callsPerSec bounds the request rate across
// all tasks sharing this engine; zero disables limiting.
func NewEngine(client anthropic.Client, tasks config.TasksConfig, vocab config.VocabConfig, callsPerSec float64) *Engine {
	limit := rate.Inf
	if callsPerSec > 0 {
		limit = rate.Limit(callsPerSec)
	}
	return &Engine{
		client:  client,
		tasks:   tasks,
		cuts:    vocab.Cuts,
		colors:  vocab.Colors,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// DetectCut identifies the gemstone's cut from up to the task budget of
// images. declaredCut, when non-empty, is included for the model to compare.
func (e *Engine) DetectCut(ctx context.Context, images []anthropic.Image, declaredCut string) (*CutResult, anthropic.TokenUsage, error) {
	cfg := e.tasks.ByKind(string(model.TaskCutDetection))
	text, usage, err := e.call(ctx, model.TaskCutDetection, cfg, cutSystemText, buildCutPrompt(e.cuts, declaredCut), images)
	if err != nil {
		return nil, usage, err
	}
	res, err := parseCut(text, e.cuts)
	return res, usage, err
}

// DetectColor identifies the gemstone's dominant color against the palette.
func (e *Engine) DetectColor(ctx context.Context, images []anthropic.Image, declaredColor string) (*ColorResult, anthropic.TokenUsage, error) {
	cfg := e.tasks.ByKind(string(model.TaskColorDetection))
	text, usage, err := e.call(ctx, model.TaskColorDetection, cfg, colorSystemText, buildColorPrompt(e.colors, declaredColor), images)
	if err != nil {
		return nil, usage, err
	}
	res, err := parseColor(text, e.colors)
	return res, usage, err
}

// SelectPrimary scores every image and picks the best catalog shot. The
// returned indices refer to positions in the images slice.
func (e *Engine) SelectPrimary(ctx context.Context, images []anthropic.Image) (*PrimaryResult, anthropic.TokenUsage, error) {
	cfg := e.tasks.ByKind(string(model.TaskPrimarySelection))
	text, usage, err := e.call(ctx, model.TaskPrimarySelection, cfg, primarySystemText, buildPrimaryPrompt(len(images)), images)
	if err != nil {
		return nil, usage, err
	}
	res, err := parsePrimary(text, len(images))
	return res, usage, err
}

// ExtractLabels transcribes packaging and label text with per-field values.
func (e *Engine) ExtractLabels(ctx context.Context, images []anthropic.Image) (*OCRResult, anthropic.TokenUsage, error) {
	cfg := e.tasks.ByKind(string(model.TaskLabelExtraction))
	text, usage, err := e.call(ctx, model.TaskLabelExtraction, cfg, ocrSystemText, labelPrompt, images)
	if err != nil {
		return nil, usage, err
	}
	res, err := parseOCR(text)
	return res, usage, err
}

// ExtractMeasurements reads gauges and scales visible in the images.
func (e *Engine) ExtractMeasurements(ctx context.Context, images []anthropic.Image) (*OCRResult, anthropic.TokenUsage, error) {
	cfg := e.tasks.ByKind(string(model.TaskMeasurementExtraction))
	text, usage, err := e.call(ctx, model.TaskMeasurementExtraction, cfg, ocrSystemText, measurementPrompt, images)
	if err != nil {
		return nil, usage, err
	}
	res, err := parseOCR(text)
	return res, usage, err
}

// call runs one rate-limited, deadline-bounded model request and returns the
// response text. API failures are classified into the task error taxonomy.
func (e *Engine) call(ctx context.Context, kind model.TaskKind, cfg config.TaskConfig, system, prompt string, images []anthropic.Image) (string, anthropic.TokenUsage, error) {
	var usage anthropic.TokenUsage

	if len(images) == 0 {
		return "", usage, eris.Wrapf(ErrImageBudget, "%s: no images", kind)
	}
	if cfg.MaxImages > 0 && len(images) > cfg.MaxImages {
		return "", usage, eris.Wrapf(ErrImageBudget, "%s: %d images exceeds budget %d", kind, len(images), cfg.MaxImages)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return "", usage, eris.Wrapf(err, "vision: rate limit wait for %s", kind)
	}

	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	start := time.Now()
	resp, err := e.client.CreateMessage(callCtx, anthropic.MessageRequest{
		Model:     cfg.Model,
		MaxTokens: maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(system),
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt, Images: images},
		},
	})
	if err != nil {
		// Distinguish our deadline from the parent's cancellation: only the
		// former counts as a task timeout.
		if callCtx.Err() != nil && ctx.Err() == nil {
			return "", usage, eris.Wrapf(ErrTimeout, "%s after %s", kind, timeout)
		}
		if errors.Is(err, context.Canceled) {
			return "", usage, err
		}
		if resilience.IsTransient(err) {
			return "", usage, eris.Wrapf(ErrUnavailable, "%s: %v", kind, err)
		}
		// Auth and validation failures won't heal on a retry.
		return "", usage, eris.Wrapf(err, "vision: %s request rejected", kind)
	}

	usage = resp.Usage
	usage.LogUsage(cfg.Model, string(kind))
	zap.L().Debug("vision task complete",
		zap.String("task", string(kind)),
		zap.Int("images", len(images)),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Text(), usage, nil
}
