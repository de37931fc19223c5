package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-gems/gemscan/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetGemstone_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, cut, color, weight_carats, length_mm, width_mm, depth_mm FROM gemstones WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetGemstone(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetGemstone(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"id", "cut", "color", "weight_carats", "length_mm", "width_mm", "depth_mm"}).
		AddRow("GS-1", "emerald", "green", 3.4, 9.1, 7.2, 5.0)
	mock.ExpectQuery(`SELECT id, cut, color, weight_carats, length_mm, width_mm, depth_mm FROM gemstones WHERE id = \$1`).
		WithArgs("GS-1").
		WillReturnRows(rows)

	g, err := s.GetGemstone(context.Background(), "GS-1")
	require.NoError(t, err)
	assert.Equal(t, "emerald", g.Declared.Cut)
	assert.InDelta(t, 3.4, g.Declared.WeightCarats, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListAssets(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"id", "gemstone_id", "kind", "locator", "ordinal", "is_primary", "original_path", "thumbnail_locator", "duration_secs"}).
		AddRow("a-1", "GS-1", "image", "/media/GS-1/front.jpg", 0, true, "/raw/front.heic", "", 0.0).
		AddRow("a-2", "GS-1", "video", "/media/GS-1/spin.mp4", 1, false, "/raw/spin.mov", "/media/GS-1/spin_thumb.jpg", 12.5)
	mock.ExpectQuery(`SELECT .+ FROM gemstone_assets WHERE gemstone_id = \$1 ORDER BY ordinal`).
		WithArgs("GS-1").
		WillReturnRows(rows)

	assets, err := s.ListAssets(context.Background(), "GS-1")
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, model.AssetVideo, assets[1].Kind)
	assert.InDelta(t, 12.5, assets[1].DurationSecs, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertAnalysis(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rec := testRecord("GS-1")
	mock.ExpectExec(`INSERT INTO analysis_records .* ON CONFLICT \(gemstone_id, pipeline_version\) DO UPDATE SET`).
		WithArgs("GS-1", rec.PipelineVersion, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			rec.NeedsReview, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertAnalysis(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertAnalysis_RejectsInvalid(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	rec := testRecord("GS-1")
	rec.Extractions[0].Confidence = 1.4
	err := s.UpsertAnalysis(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of [0,1]")
}

func TestPostgresStore_SetPrimaryAsset(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE gemstone_assets SET is_primary = false WHERE gemstone_id = \$1`).
		WithArgs("GS-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))
	mock.ExpectExec(`UPDATE gemstone_assets SET is_primary = true WHERE id = \$1 AND gemstone_id = \$2`).
		WithArgs("a-2", "GS-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, s.SetPrimaryAsset(context.Background(), "GS-1", "a-2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetPrimaryAsset_UnknownAsset(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE gemstone_assets SET is_primary = false WHERE gemstone_id = \$1`).
		WithArgs("GS-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec(`UPDATE gemstone_assets SET is_primary = true WHERE id = \$1 AND gemstone_id = \$2`).
		WithArgs("nope", "GS-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.SetPrimaryAsset(context.Background(), "GS-1", "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteAsset_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM gemstone_assets WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteAsset(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAnalysis(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"gemstone_id", "pipeline_version", "extractions", "primary_rec", "telemetry", "needs_review", "review_reasons", "created_at", "updated_at"}).
		AddRow("GS-1", 1,
			[]byte(`[{"property":"cut","value":"round","confidence":0.9,"sources":[]}]`),
			[]byte(nil),
			[]byte(`{"wall_clock_ms":1000,"vision_calls":3,"cost_usd":0.01}`),
			false, []byte(`[]`), now, now)
	mock.ExpectQuery(`SELECT .+ FROM analysis_records WHERE gemstone_id = \$1 AND pipeline_version = \$2`).
		WithArgs("GS-1", 1).
		WillReturnRows(rows)

	rec, err := s.GetAnalysis(context.Background(), "GS-1", 1)
	require.NoError(t, err)
	assert.Equal(t, "round", rec.Extraction(model.PropertyCut).Value)
	assert.Nil(t, rec.Primary)
	assert.Equal(t, 3, rec.Telemetry.VisionCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAnalysis_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM analysis_records WHERE gemstone_id = \$1 AND pipeline_version = \$2`).
		WithArgs("missing", 1).
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetAnalysis(context.Background(), "missing", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
