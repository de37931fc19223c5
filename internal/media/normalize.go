package media

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-gems/gemscan/internal/config"
	"github.com/meridian-gems/gemscan/internal/model"
)

// Normalizer converts catalog assets into analysis-ready artifacts.
type Normalizer struct {
	cfg         config.MediaConfig
	ffmpegPath  string
	ffprobePath string
	workDir     string
}

// NewNormalizer creates a Normalizer. The work directory holds transcoded
// videos and extracted thumbnails; when unset a per-process temp dir is used.
func NewNormalizer(cfg config.MediaConfig) (*Normalizer, error) {
	ffmpeg := cfg.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	ffprobe := cfg.FFprobePath
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		dir, err := os.MkdirTemp("", "gemscan-media-*")
		if err != nil {
			return nil, eris.Wrap(err, "media: create work dir")
		}
		workDir = dir
	} else if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "media: create work dir %s", workDir)
	}

	return &Normalizer{
		cfg:         cfg,
		ffmpegPath:  ffmpeg,
		ffprobePath: ffprobe,
		workDir:     workDir,
	}, nil
}

// NormalizeAll normalizes every asset, partitioning into ready artifacts and
// per-file failures. One broken file never fails the pass; only context
// cancellation stops it early.
func (n *Normalizer) NormalizeAll(ctx context.Context, assets []model.GemstoneAsset) (*Result, error) {
	res := &Result{}

	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "media: normalize all")
		}

		var art *Artifact
		var err error
		switch asset.Kind {
		case model.AssetImage:
			art, err = n.NormalizeImage(asset)
		case model.AssetVideo:
			art, err = n.NormalizeVideo(ctx, asset)
		default:
			err = eris.Wrapf(ErrUnsupportedFormat, "media: unknown asset kind %q", asset.Kind)
		}

		if err != nil {
			zap.L().Warn("media normalization failed",
				zap.String("asset_id", asset.ID),
				zap.String("locator", asset.Locator),
				zap.Error(err))
			res.Failed = append(res.Failed, model.MediaFailure{
				AssetID: asset.ID,
				Locator: asset.Locator,
				Reason:  eris.Cause(err).Error(),
			})
			continue
		}
		res.Ready = append(res.Ready, *art)
	}

	zap.L().Debug("media normalization complete",
		zap.Int("ready", len(res.Ready)),
		zap.Int("failed", len(res.Failed)))
	return res, nil
}

// ReadyImages returns the image artifacts (including video thumbnails,
// which carry a usable JPEG frame) in original asset order.
func (r *Result) ReadyImages() []Artifact {
	var out []Artifact
	for _, a := range r.Ready {
		if len(a.JPEG) > 0 {
			out = append(out, a)
		}
	}
	return out
}
