// Package ingest loads gemstone catalogs from inventory spreadsheets into
// the store, so batch analysis can sweep a freshly imported collection.
package ingest

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/meridian-gems/gemscan/internal/model"
)

// Inventory is the parsed content of one spreadsheet: gemstones from the
// first sheet, assets from the optional "assets" sheet.
type Inventory struct {
	Gemstones []model.Gemstone
	Assets    []model.GemstoneAsset
}

// IDs returns the gemstone IDs in sheet order.
func (inv *Inventory) IDs() []string {
	ids := make([]string, 0, len(inv.Gemstones))
	for _, g := range inv.Gemstones {
		ids = append(ids, g.ID)
	}
	return ids
}

// Gemstone sheet columns, by position. The header row is skipped when its
// first cell is not a usable ID (i.e. it says "id").
// id | cut | color | weight_carats | length_mm | width_mm | depth_mm
const gemstoneCols = 7

// Asset sheet columns:
// id | gemstone_id | kind | locator | ordinal
const assetCols = 5

// ReadInventory parses an inventory spreadsheet.
func ReadInventory(path string) (*Inventory, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("ingest: %s has no sheets", path)
	}

	inv := &Inventory{}
	if err := parseGemstones(f.Sheets[0], inv); err != nil {
		return nil, err
	}

	if assets, ok := f.Sheet["assets"]; ok {
		if err := parseAssets(assets, inv); err != nil {
			return nil, err
		}
	}

	return inv, nil
}

func parseGemstones(sheet *xlsx.Sheet, inv *Inventory) error {
	for i, row := range sheet.Rows {
		cells := rowStrings(row, gemstoneCols)
		id := cells[0]
		if id == "" || (i == 0 && strings.EqualFold(id, "id")) {
			continue
		}

		g := model.Gemstone{
			ID: id,
			Declared: model.DeclaredMetadata{
				Cut:   cells[1],
				Color: cells[2],
			},
		}
		var err error
		if g.Declared.WeightCarats, err = parseOptionalFloat(cells[3]); err != nil {
			return eris.Wrapf(err, "ingest: row %d: weight_carats", i+1)
		}
		if g.Declared.LengthMM, err = parseOptionalFloat(cells[4]); err != nil {
			return eris.Wrapf(err, "ingest: row %d: length_mm", i+1)
		}
		if g.Declared.WidthMM, err = parseOptionalFloat(cells[5]); err != nil {
			return eris.Wrapf(err, "ingest: row %d: width_mm", i+1)
		}
		if g.Declared.DepthMM, err = parseOptionalFloat(cells[6]); err != nil {
			return eris.Wrapf(err, "ingest: row %d: depth_mm", i+1)
		}

		inv.Gemstones = append(inv.Gemstones, g)
	}
	return nil
}

func parseAssets(sheet *xlsx.Sheet, inv *Inventory) error {
	for i, row := range sheet.Rows {
		cells := rowStrings(row, assetCols)
		id := cells[0]
		if i == 0 && strings.EqualFold(id, "id") {
			continue
		}
		if cells[1] == "" && cells[3] == "" {
			continue
		}
		// Exports frequently leave the asset ID column blank.
		if id == "" {
			id = uuid.NewString()
		}

		kind := model.AssetKind(strings.ToLower(cells[2]))
		if kind != model.AssetImage && kind != model.AssetVideo {
			return eris.Errorf("ingest: assets row %d: unknown kind %q", i+1, cells[2])
		}

		ordinal := 0
		if cells[4] != "" {
			n, err := strconv.Atoi(cells[4])
			if err != nil {
				return eris.Wrapf(err, "ingest: assets row %d: ordinal", i+1)
			}
			ordinal = n
		}

		inv.Assets = append(inv.Assets, model.GemstoneAsset{
			ID:         id,
			GemstoneID: cells[1],
			Kind:       kind,
			Locator:    cells[3],
			Ordinal:    ordinal,
		})
	}
	return nil
}

func rowStrings(row *xlsx.Row, n int) []string {
	out := make([]string, n)
	for i := 0; i < n && i < len(row.Cells); i++ {
		out[i] = strings.TrimSpace(row.Cells[i].String())
	}
	return out
}

func parseOptionalFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
