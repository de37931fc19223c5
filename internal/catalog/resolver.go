// Package catalog resolves a gemstone's declared metadata and ordered media
// assets from the store. Resolution is read-only: the pipeline decides what
// to do with a stone that has no media.
package catalog

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-gems/gemscan/internal/model"
	"github.com/meridian-gems/gemscan/internal/store"
)

// Resolution is the resolver's snapshot of one gemstone: its declared
// metadata and its assets in capture order.
type Resolution struct {
	Gemstone *model.Gemstone
	Assets   []model.GemstoneAsset
}

// HasImages reports whether any resolved asset is a still image.
func (r *Resolution) HasImages() bool {
	for _, a := range r.Assets {
		if a.Kind == model.AssetImage {
			return true
		}
	}
	return false
}

// Images returns the image assets in ordinal order.
func (r *Resolution) Images() []model.GemstoneAsset {
	var out []model.GemstoneAsset
	for _, a := range r.Assets {
		if a.Kind == model.AssetImage {
			out = append(out, a)
		}
	}
	return out
}

// Videos returns the video assets in ordinal order.
func (r *Resolution) Videos() []model.GemstoneAsset {
	var out []model.GemstoneAsset
	for _, a := range r.Assets {
		if a.Kind == model.AssetVideo {
			out = append(out, a)
		}
	}
	return out
}

// Resolver loads gemstones and their assets for analysis.
type Resolver struct {
	store store.Store
}

// NewResolver creates a Resolver over the given store.
func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st}
}

// Resolve returns the gemstone and its assets ordered by ordinal.
// A gemstone with zero assets resolves successfully; an unknown gemstone
// returns store.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, gemstoneID string) (*Resolution, error) {
	g, err := r.store.GetGemstone(ctx, gemstoneID)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: resolve %s", gemstoneID)
	}

	assets, err := r.store.ListAssets(ctx, gemstoneID)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: list assets for %s", gemstoneID)
	}
	model.SortAssets(assets)

	zap.L().Debug("resolved gemstone",
		zap.String("gemstone_id", gemstoneID),
		zap.Int("assets", len(assets)))

	return &Resolution{Gemstone: g, Assets: assets}, nil
}
