package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/meridian-gems/gemscan/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS gemstones (
	id            TEXT PRIMARY KEY,
	cut           TEXT NOT NULL DEFAULT '',
	color         TEXT NOT NULL DEFAULT '',
	weight_carats REAL NOT NULL DEFAULT 0,
	length_mm     REAL NOT NULL DEFAULT 0,
	width_mm      REAL NOT NULL DEFAULT 0,
	depth_mm      REAL NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS gemstone_assets (
	id                TEXT PRIMARY KEY,
	gemstone_id       TEXT NOT NULL REFERENCES gemstones(id),
	kind              TEXT NOT NULL,
	locator           TEXT NOT NULL,
	ordinal           INTEGER NOT NULL DEFAULT 0,
	is_primary        INTEGER NOT NULL DEFAULT 0,
	original_path     TEXT NOT NULL DEFAULT '',
	thumbnail_locator TEXT NOT NULL DEFAULT '',
	duration_secs     REAL NOT NULL DEFAULT 0,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS analysis_records (
	gemstone_id      TEXT NOT NULL REFERENCES gemstones(id),
	pipeline_version INTEGER NOT NULL,
	extractions      TEXT NOT NULL,
	primary_rec      TEXT,
	telemetry        TEXT NOT NULL,
	needs_review     INTEGER NOT NULL DEFAULT 0,
	review_reasons   TEXT NOT NULL DEFAULT '[]',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (gemstone_id, pipeline_version)
);

CREATE INDEX IF NOT EXISTS idx_assets_gemstone ON gemstone_assets(gemstone_id, ordinal);
CREATE INDEX IF NOT EXISTS idx_records_review ON analysis_records(needs_review);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetGemstone(ctx context.Context, id string) (*model.Gemstone, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, cut, color, weight_carats, length_mm, width_mm, depth_mm FROM gemstones WHERE id = ?`,
		id,
	)

	var g model.Gemstone
	err := row.Scan(&g.ID, &g.Declared.Cut, &g.Declared.Color, &g.Declared.WeightCarats,
		&g.Declared.LengthMM, &g.Declared.WidthMM, &g.Declared.DepthMM)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: gemstone %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get gemstone")
	}
	return &g, nil
}

func (s *SQLiteStore) ListAssets(ctx context.Context, gemstoneID string) ([]model.GemstoneAsset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, gemstone_id, kind, locator, ordinal, is_primary, original_path, thumbnail_locator, duration_secs
		 FROM gemstone_assets WHERE gemstone_id = ? ORDER BY ordinal`,
		gemstoneID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assets")
	}
	defer rows.Close()

	var assets []model.GemstoneAsset
	for rows.Next() {
		var a model.GemstoneAsset
		if err := rows.Scan(&a.ID, &a.GemstoneID, &a.Kind, &a.Locator, &a.Ordinal,
			&a.IsPrimary, &a.OriginalPath, &a.ThumbnailLocator, &a.DurationSecs); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan asset")
		}
		assets = append(assets, a)
	}
	return assets, eris.Wrap(rows.Err(), "sqlite: list assets iterate")
}

func (s *SQLiteStore) CreateGemstone(ctx context.Context, g *model.Gemstone) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gemstones (id, cut, color, weight_carats, length_mm, width_mm, depth_mm) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Declared.Cut, g.Declared.Color, g.Declared.WeightCarats,
		g.Declared.LengthMM, g.Declared.WidthMM, g.Declared.DepthMM,
	)
	return eris.Wrap(err, "sqlite: insert gemstone")
}

func (s *SQLiteStore) CreateAsset(ctx context.Context, a *model.GemstoneAsset) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gemstone_assets (id, gemstone_id, kind, locator, ordinal, is_primary, original_path, thumbnail_locator, duration_secs)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.GemstoneID, string(a.Kind), a.Locator, a.Ordinal, a.IsPrimary,
		a.OriginalPath, a.ThumbnailLocator, a.DurationSecs,
	)
	return eris.Wrap(err, "sqlite: insert asset")
}

func (s *SQLiteStore) DeleteAsset(ctx context.Context, assetID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM gemstone_assets WHERE id = ?`, assetID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete asset %s", assetID)
	}
	return checkRowsAffected(res, "asset", assetID)
}

// SetPrimaryAsset marks one asset as primary and unsets any sibling primary
// for the same gemstone, in a single transaction. Idempotent.
func (s *SQLiteStore) SetPrimaryAsset(ctx context.Context, gemstoneID, assetID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin set primary")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE gemstone_assets SET is_primary = 0 WHERE gemstone_id = ?`, gemstoneID,
	); err != nil {
		return eris.Wrap(err, "sqlite: unset primaries")
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE gemstone_assets SET is_primary = 1 WHERE id = ? AND gemstone_id = ?`,
		assetID, gemstoneID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: set primary")
	}
	if err := checkRowsAffected(res, "asset", assetID); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit set primary")
}

func (s *SQLiteStore) UpsertAnalysis(ctx context.Context, rec *model.AnalysisRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	extractions, primaryRec, telemetry, reasons, err := marshalRecord(rec)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analysis_records
		   (gemstone_id, pipeline_version, extractions, primary_rec, telemetry, needs_review, review_reasons, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (gemstone_id, pipeline_version) DO UPDATE SET
		   extractions    = excluded.extractions,
		   primary_rec    = excluded.primary_rec,
		   telemetry      = excluded.telemetry,
		   needs_review   = excluded.needs_review,
		   review_reasons = excluded.review_reasons,
		   updated_at     = excluded.updated_at`,
		rec.GemstoneID, rec.PipelineVersion, extractions, primaryRec, telemetry,
		rec.NeedsReview, reasons, now, now,
	)
	return eris.Wrapf(err, "sqlite: upsert analysis for %s", rec.GemstoneID)
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, gemstoneID string, pipelineVersion int) (*model.AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT gemstone_id, pipeline_version, extractions, primary_rec, telemetry, needs_review, review_reasons, created_at, updated_at
		 FROM analysis_records WHERE gemstone_id = ? AND pipeline_version = ?`,
		gemstoneID, pipelineVersion,
	)
	return scanRecord(row)
}

func (s *SQLiteStore) ListAnalyses(ctx context.Context, filter RecordFilter) ([]model.AnalysisRecord, error) {
	query := `SELECT gemstone_id, pipeline_version, extractions, primary_rec, telemetry, needs_review, review_reasons, created_at, updated_at
	          FROM analysis_records WHERE 1=1`
	var args []any

	if filter.NeedsReview != nil {
		query += ` AND needs_review = ?`
		args = append(args, *filter.NeedsReview)
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analyses")
	}
	defer rows.Close()

	var records []model.AnalysisRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list analyses iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func marshalRecord(rec *model.AnalysisRecord) (extractions, primaryRec, telemetry, reasons []byte, err error) {
	if extractions, err = json.Marshal(rec.Extractions); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "store: marshal extractions")
	}
	if rec.Primary != nil {
		if primaryRec, err = json.Marshal(rec.Primary); err != nil {
			return nil, nil, nil, nil, eris.Wrap(err, "store: marshal primary")
		}
	}
	if telemetry, err = json.Marshal(rec.Telemetry); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "store: marshal telemetry")
	}
	if rec.ReviewReasons == nil {
		reasons = []byte("[]")
	} else if reasons, err = json.Marshal(rec.ReviewReasons); err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "store: marshal review reasons")
	}
	return extractions, primaryRec, telemetry, reasons, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.AnalysisRecord, error) {
	var r model.AnalysisRecord
	var extractions, telemetry, reasons []byte
	var primaryRec sql.Null[[]byte]

	err := row.Scan(&r.GemstoneID, &r.PipelineVersion, &extractions, &primaryRec,
		&telemetry, &r.NeedsReview, &reasons, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "analysis record")
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan analysis record")
	}

	var primary []byte
	if primaryRec.Valid {
		primary = primaryRec.V
	}
	return unmarshalRecord(&r, extractions, primary, telemetry, reasons)
}

func unmarshalRecord(r *model.AnalysisRecord, extractions, primaryRec, telemetry, reasons []byte) (*model.AnalysisRecord, error) {
	if err := json.Unmarshal(extractions, &r.Extractions); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal extractions")
	}
	if len(primaryRec) > 0 {
		r.Primary = &model.PrimaryRecommendation{}
		if err := json.Unmarshal(primaryRec, r.Primary); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal primary")
		}
	}
	if err := json.Unmarshal(telemetry, &r.Telemetry); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal telemetry")
	}
	if err := json.Unmarshal(reasons, &r.ReviewReasons); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal review reasons")
	}
	return r, nil
}
