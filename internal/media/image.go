package media

import (
	"bytes"
	"image/jpeg"
	"os"

	"github.com/disintegration/imaging"
	"github.com/rotisserie/eris"

	"github.com/meridian-gems/gemscan/internal/model"
)

// NormalizeImage decodes an image file, applies EXIF orientation, caps the
// long edge and re-encodes as JPEG. Undecodable files return
// ErrUnsupportedFormat.
func (n *Normalizer) NormalizeImage(asset model.GemstoneAsset) (*Artifact, error) {
	if _, err := os.Stat(asset.Locator); err != nil {
		return nil, eris.Wrapf(err, "media: stat %s", asset.Locator)
	}

	img, err := imaging.Open(asset.Locator, imaging.AutoOrientation(true))
	if err != nil {
		return nil, eris.Wrapf(ErrUnsupportedFormat, "media: decode %s: %v", asset.Locator, err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	maxEdge := n.cfg.MaxLongEdge
	if maxEdge > 0 && (w > maxEdge || h > maxEdge) {
		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
		bounds = img.Bounds()
		w, h = bounds.Dx(), bounds.Dy()
	}

	quality := n.cfg.JPEGQuality
	if quality <= 0 {
		quality = 85
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, eris.Wrapf(err, "media: encode %s", asset.Locator)
	}

	if n.cfg.MaxFileBytes > 0 && int64(buf.Len()) > n.cfg.MaxFileBytes {
		return nil, eris.Wrapf(ErrTooLarge, "media: %s is %d bytes after normalization", asset.Locator, buf.Len())
	}

	return &Artifact{
		Asset:  asset,
		Kind:   model.AssetImage,
		JPEG:   buf.Bytes(),
		Width:  w,
		Height: h,
	}, nil
}
