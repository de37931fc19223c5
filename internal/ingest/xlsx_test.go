package ingest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/meridian-gems/gemscan/internal/model"
)

type sheetData struct {
	name string
	rows [][]string
}

func createInventoryXLSX(t *testing.T, sheets []sheetData) string {
	t.Helper()
	f := xlsx.NewFile()
	for _, s := range sheets {
		sheet, err := f.AddSheet(s.name)
		require.NoError(t, err)
		for _, rowData := range s.rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "inventory.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadInventory_GemstonesAndAssets(t *testing.T) {
	path := createInventoryXLSX(t, []sheetData{
		{name: "gemstones", rows: [][]string{
			{"id", "cut", "color", "weight_carats", "length_mm", "width_mm", "depth_mm"},
			{"g1", "round", "blue", "2.15", "8.1", "8.0", "5.2"},
			{"g2", "oval", "", "", "", "", ""},
		}},
		{name: "assets", rows: [][]string{
			{"id", "gemstone_id", "kind", "locator", "ordinal"},
			{"a1", "g1", "image", "media/g1/front.jpg", "0"},
			{"a2", "g1", "Video", "media/g1/rotation.mp4", "1"},
		}},
	})

	inv, err := ReadInventory(path)
	require.NoError(t, err)

	require.Len(t, inv.Gemstones, 2)
	g1 := inv.Gemstones[0]
	assert.Equal(t, "g1", g1.ID)
	assert.Equal(t, "round", g1.Declared.Cut)
	assert.Equal(t, "blue", g1.Declared.Color)
	assert.Equal(t, 2.15, g1.Declared.WeightCarats)
	assert.Equal(t, 8.1, g1.Declared.LengthMM)

	g2 := inv.Gemstones[1]
	assert.Equal(t, "oval", g2.Declared.Cut)
	assert.Zero(t, g2.Declared.WeightCarats, "blank cells mean not declared")

	require.Len(t, inv.Assets, 2)
	assert.Equal(t, model.AssetImage, inv.Assets[0].Kind)
	assert.Equal(t, model.AssetVideo, inv.Assets[1].Kind)
	assert.Equal(t, 1, inv.Assets[1].Ordinal)

	assert.Equal(t, []string{"g1", "g2"}, inv.IDs())
}

func TestReadInventory_GeneratesMissingAssetIDs(t *testing.T) {
	path := createInventoryXLSX(t, []sheetData{
		{name: "gemstones", rows: [][]string{{"g1", "", "", "", "", "", ""}}},
		{name: "assets", rows: [][]string{
			{"", "g1", "image", "media/g1/0.jpg", "0"},
		}},
	})

	inv, err := ReadInventory(path)
	require.NoError(t, err)
	require.Len(t, inv.Assets, 1)
	assert.NotEmpty(t, inv.Assets[0].ID)
	assert.Equal(t, "g1", inv.Assets[0].GemstoneID)
}

func TestReadInventory_NoAssetsSheet(t *testing.T) {
	path := createInventoryXLSX(t, []sheetData{
		{name: "gemstones", rows: [][]string{
			{"g1", "round", "blue", "", "", "", ""},
		}},
	})

	inv, err := ReadInventory(path)
	require.NoError(t, err)
	assert.Len(t, inv.Gemstones, 1)
	assert.Empty(t, inv.Assets)
}

func TestReadInventory_BadWeight(t *testing.T) {
	path := createInventoryXLSX(t, []sheetData{
		{name: "gemstones", rows: [][]string{
			{"g1", "round", "blue", "two carats", "", "", ""},
		}},
	})

	_, err := ReadInventory(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weight_carats")
}

func TestReadInventory_UnknownAssetKind(t *testing.T) {
	path := createInventoryXLSX(t, []sheetData{
		{name: "gemstones", rows: [][]string{{"g1", "", "", "", "", "", ""}}},
		{name: "assets", rows: [][]string{
			{"a1", "g1", "hologram", "media/g1/h.bin", "0"},
		}},
	})

	_, err := ReadInventory(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestReadInventory_MissingFile(t *testing.T) {
	_, err := ReadInventory(filepath.Join(t.TempDir(), "nope.xlsx"))
	require.Error(t, err)
}
