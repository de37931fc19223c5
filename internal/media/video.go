package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/meridian-gems/gemscan/internal/model"
)

// probeResult holds the subset of ffprobe JSON output we care about.
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
		Size     string `json:"size"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// probe runs ffprobe and parses duration, bitrate and frame size.
func (n *Normalizer) probe(ctx context.Context, path string) (*probeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, n.transcodeTimeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, n.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, eris.Wrapf(ErrUnsupportedFormat, "media: ffprobe %s: %v", path, err)
	}

	var pr probeResult
	if err := json.Unmarshal(out, &pr); err != nil {
		return nil, eris.Wrapf(err, "media: parse ffprobe output for %s", path)
	}
	return &pr, nil
}

// NormalizeVideo probes a video and, when its bitrate exceeds the target,
// re-encodes it bounded at the target with faststart for streaming. A poster
// thumbnail is extracted near the start of the clip for vision analysis.
// A transcode that outlives its timeout counts as a normalization failure.
func (n *Normalizer) NormalizeVideo(ctx context.Context, asset model.GemstoneAsset) (*Artifact, error) {
	if _, err := os.Stat(asset.Locator); err != nil {
		return nil, eris.Wrapf(err, "media: stat %s", asset.Locator)
	}

	pr, err := n.probe(ctx, asset.Locator)
	if err != nil {
		return nil, err
	}

	duration, _ := strconv.ParseFloat(pr.Format.Duration, 64)
	bitrate, _ := strconv.ParseInt(pr.Format.BitRate, 10, 64)
	var w, h int
	for _, s := range pr.Streams {
		if s.CodecType == "video" {
			w, h = s.Width, s.Height
			break
		}
	}
	if w == 0 && h == 0 {
		return nil, eris.Wrapf(ErrUnsupportedFormat, "media: no video stream in %s", asset.Locator)
	}

	outPath := asset.Locator
	targetBps := int64(n.cfg.TargetVideoKbps) * 1000
	if targetBps > 0 && bitrate > targetBps {
		outPath = filepath.Join(n.workDir, fmt.Sprintf("%s_norm.mp4", asset.ID))
		if err := n.transcode(ctx, asset.Locator, outPath); err != nil {
			return nil, err
		}
	}

	if n.cfg.MaxFileBytes > 0 {
		fi, err := os.Stat(outPath)
		if err != nil {
			return nil, eris.Wrapf(err, "media: stat normalized %s", outPath)
		}
		if fi.Size() > n.cfg.MaxFileBytes {
			return nil, eris.Wrapf(ErrTooLarge, "media: %s is %d bytes after normalization", outPath, fi.Size())
		}
	}

	thumb, err := n.thumbnail(ctx, outPath, asset.ID, duration)
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Asset:        asset,
		Kind:         model.AssetVideo,
		JPEG:         thumb,
		Path:         outPath,
		Width:        w,
		Height:       h,
		DurationSecs: duration,
	}, nil
}

// transcode re-encodes a video bounded at the target bitrate.
// ffmpeg -y -i in.mov -b:v 4000k -maxrate 4000k -bufsize 8000k -movflags +faststart out.mp4
func (n *Normalizer) transcode(ctx context.Context, inPath, outPath string) error {
	ctx, cancel := context.WithTimeout(ctx, n.transcodeTimeout())
	defer cancel()

	kbps := n.cfg.TargetVideoKbps
	args := []string{
		"-y",
		"-i", inPath,
		"-b:v", fmt.Sprintf("%dk", kbps),
		"-maxrate", fmt.Sprintf("%dk", kbps),
		"-bufsize", fmt.Sprintf("%dk", kbps*2),
		"-movflags", "+faststart",
		outPath,
	}

	cmd := exec.CommandContext(ctx, n.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return eris.Wrapf(ctx.Err(), "media: transcode %s timed out", inPath)
	}
	if err != nil {
		return eris.Wrapf(err, "media: ffmpeg transcode %s failed: %s", inPath, string(out))
	}

	if _, err := os.Stat(outPath); err != nil {
		return eris.Wrapf(err, "media: transcode output missing at %s", outPath)
	}
	return nil
}

// thumbnail extracts one poster frame as JPEG. The seek offset is clamped
// to the clip duration for very short videos.
func (n *Normalizer) thumbnail(ctx context.Context, videoPath, assetID string, duration float64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, n.transcodeTimeout())
	defer cancel()

	offset := n.cfg.ThumbnailOffsetSecs
	if offset <= 0 {
		offset = 1.0
	}
	if duration > 0 && offset >= duration {
		offset = 0
	}

	thumbPath := filepath.Join(n.workDir, fmt.Sprintf("%s_thumb.jpg", assetID))
	// ffmpeg -ss 1.0 -i in.mp4 -frames:v 1 -q:v 2 thumb.jpg
	cmd := exec.CommandContext(ctx, n.ffmpegPath,
		"-y",
		"-ss", strconv.FormatFloat(offset, 'f', 2, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		thumbPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, eris.Wrapf(err, "media: ffmpeg thumbnail %s failed: %s", videoPath, string(out))
	}

	data, err := os.ReadFile(thumbPath)
	if err != nil {
		return nil, eris.Wrapf(err, "media: read thumbnail %s", thumbPath)
	}
	return data, nil
}

func (n *Normalizer) transcodeTimeout() time.Duration {
	secs := n.cfg.TranscodeTimeoutSecs
	if secs <= 0 {
		secs = 120
	}
	return time.Duration(secs) * time.Second
}
