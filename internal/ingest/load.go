package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-gems/gemscan/internal/db"
	"github.com/meridian-gems/gemscan/internal/store"
)

// Load writes an inventory into the store. Against Postgres it bulk-upserts
// through a temp table so re-importing the same spreadsheet is idempotent;
// other stores get row-by-row inserts.
func Load(ctx context.Context, st store.Store, inv *Inventory) error {
	if pg, ok := st.(*store.PostgresStore); ok {
		return loadBulk(ctx, pg.Pool(), inv)
	}
	return loadRows(ctx, st, inv)
}

func loadBulk(ctx context.Context, pool db.Pool, inv *Inventory) error {
	gemRows := make([][]any, 0, len(inv.Gemstones))
	for _, g := range inv.Gemstones {
		gemRows = append(gemRows, []any{
			g.ID, g.Declared.Cut, g.Declared.Color,
			g.Declared.WeightCarats, g.Declared.LengthMM,
			g.Declared.WidthMM, g.Declared.DepthMM,
		})
	}
	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        "gemstones",
		Columns:      []string{"id", "cut", "color", "weight_carats", "length_mm", "width_mm", "depth_mm"},
		ConflictKeys: []string{"id"},
	}, gemRows)
	if err != nil {
		return err
	}

	assetRows := make([][]any, 0, len(inv.Assets))
	for _, a := range inv.Assets {
		assetRows = append(assetRows, []any{
			a.ID, a.GemstoneID, string(a.Kind), a.Locator, a.Ordinal,
		})
	}
	m, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        "gemstone_assets",
		Columns:      []string{"id", "gemstone_id", "kind", "locator", "ordinal"},
		ConflictKeys: []string{"id"},
	}, assetRows)
	if err != nil {
		return err
	}

	zap.L().Info("ingest: catalog loaded",
		zap.Int64("gemstones", n),
		zap.Int64("assets", m))
	return nil
}

func loadRows(ctx context.Context, st store.Store, inv *Inventory) error {
	for i := range inv.Gemstones {
		if err := st.CreateGemstone(ctx, &inv.Gemstones[i]); err != nil {
			return eris.Wrapf(err, "ingest: gemstone %s", inv.Gemstones[i].ID)
		}
	}
	for i := range inv.Assets {
		if err := st.CreateAsset(ctx, &inv.Assets[i]); err != nil {
			return eris.Wrapf(err, "ingest: asset %s", inv.Assets[i].ID)
		}
	}
	zap.L().Info("ingest: catalog loaded",
		zap.Int("gemstones", len(inv.Gemstones)),
		zap.Int("assets", len(inv.Assets)))
	return nil
}
