package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/meridian-gems/gemscan/internal/db"
	"github.com/meridian-gems/gemscan/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_gemstone": `SELECT id, cut, color, weight_carats, length_mm, width_mm, depth_mm FROM gemstones WHERE id = $1`,
	"list_assets": `SELECT id, gemstone_id, kind, locator, ordinal, is_primary, original_path, thumbnail_locator, duration_secs
		FROM gemstone_assets WHERE gemstone_id = $1 ORDER BY ordinal`,
	"get_analysis": `SELECT gemstone_id, pipeline_version, extractions, primary_rec, telemetry, needs_review, review_reasons, created_at, updated_at
		FROM analysis_records WHERE gemstone_id = $1 AND pipeline_version = $2`,
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS gemstones (
	id            TEXT PRIMARY KEY,
	cut           TEXT NOT NULL DEFAULT '',
	color         TEXT NOT NULL DEFAULT '',
	weight_carats DOUBLE PRECISION NOT NULL DEFAULT 0,
	length_mm     DOUBLE PRECISION NOT NULL DEFAULT 0,
	width_mm      DOUBLE PRECISION NOT NULL DEFAULT 0,
	depth_mm      DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS gemstone_assets (
	id                TEXT PRIMARY KEY,
	gemstone_id       TEXT NOT NULL REFERENCES gemstones(id),
	kind              TEXT NOT NULL,
	locator           TEXT NOT NULL,
	ordinal           INTEGER NOT NULL DEFAULT 0,
	is_primary        BOOLEAN NOT NULL DEFAULT false,
	original_path     TEXT NOT NULL DEFAULT '',
	thumbnail_locator TEXT NOT NULL DEFAULT '',
	duration_secs     DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS analysis_records (
	gemstone_id      TEXT NOT NULL REFERENCES gemstones(id),
	pipeline_version INTEGER NOT NULL,
	extractions      JSONB NOT NULL,
	primary_rec      JSONB,
	telemetry        JSONB NOT NULL,
	needs_review     BOOLEAN NOT NULL DEFAULT false,
	review_reasons   JSONB NOT NULL DEFAULT '[]',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (gemstone_id, pipeline_version)
);

CREATE INDEX IF NOT EXISTS idx_assets_gemstone ON gemstone_assets(gemstone_id, ordinal);
CREATE INDEX IF NOT EXISTS idx_records_review ON analysis_records(needs_review);
`

// upsertAnalysisSQL keeps exactly one current record per gemstone per
// pipeline version: a rerun replaces, never appends.
const upsertAnalysisSQL = `INSERT INTO analysis_records
  (gemstone_id, pipeline_version, extractions, primary_rec, telemetry, needs_review, review_reasons, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (gemstone_id, pipeline_version) DO UPDATE SET
  extractions    = EXCLUDED.extractions,
  primary_rec    = EXCLUDED.primary_rec,
  telemetry      = EXCLUDED.telemetry,
  needs_review   = EXCLUDED.needs_review,
  review_reasons = EXCLUDED.review_reasons,
  updated_at     = EXCLUDED.updated_at`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for use by subsystems that
// need bulk operations, such as batch catalog ingest.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetGemstone(ctx context.Context, id string) (*model.Gemstone, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, cut, color, weight_carats, length_mm, width_mm, depth_mm FROM gemstones WHERE id = $1`,
		id,
	)

	var g model.Gemstone
	err := row.Scan(&g.ID, &g.Declared.Cut, &g.Declared.Color, &g.Declared.WeightCarats,
		&g.Declared.LengthMM, &g.Declared.WidthMM, &g.Declared.DepthMM)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: gemstone %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get gemstone")
	}
	return &g, nil
}

func (s *PostgresStore) ListAssets(ctx context.Context, gemstoneID string) ([]model.GemstoneAsset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, gemstone_id, kind, locator, ordinal, is_primary, original_path, thumbnail_locator, duration_secs
		 FROM gemstone_assets WHERE gemstone_id = $1 ORDER BY ordinal`,
		gemstoneID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assets")
	}
	defer rows.Close()

	var assets []model.GemstoneAsset
	for rows.Next() {
		var a model.GemstoneAsset
		if err := rows.Scan(&a.ID, &a.GemstoneID, &a.Kind, &a.Locator, &a.Ordinal,
			&a.IsPrimary, &a.OriginalPath, &a.ThumbnailLocator, &a.DurationSecs); err != nil {
			return nil, eris.Wrap(err, "postgres: scan asset")
		}
		assets = append(assets, a)
	}
	return assets, eris.Wrap(rows.Err(), "postgres: list assets iterate")
}

func (s *PostgresStore) CreateGemstone(ctx context.Context, g *model.Gemstone) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO gemstones (id, cut, color, weight_carats, length_mm, width_mm, depth_mm) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.ID, g.Declared.Cut, g.Declared.Color, g.Declared.WeightCarats,
		g.Declared.LengthMM, g.Declared.WidthMM, g.Declared.DepthMM,
	)
	return eris.Wrap(err, "postgres: insert gemstone")
}

func (s *PostgresStore) CreateAsset(ctx context.Context, a *model.GemstoneAsset) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO gemstone_assets (id, gemstone_id, kind, locator, ordinal, is_primary, original_path, thumbnail_locator, duration_secs)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.GemstoneID, string(a.Kind), a.Locator, a.Ordinal, a.IsPrimary,
		a.OriginalPath, a.ThumbnailLocator, a.DurationSecs,
	)
	return eris.Wrap(err, "postgres: insert asset")
}

func (s *PostgresStore) DeleteAsset(ctx context.Context, assetID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM gemstone_assets WHERE id = $1`, assetID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete asset %s", assetID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "asset %s", assetID)
	}
	return nil
}

// SetPrimaryAsset marks one asset as primary and unsets any sibling primary
// for the same gemstone, in a single transaction. Idempotent.
func (s *PostgresStore) SetPrimaryAsset(ctx context.Context, gemstoneID, assetID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin set primary")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE gemstone_assets SET is_primary = false WHERE gemstone_id = $1`, gemstoneID,
	); err != nil {
		return eris.Wrap(err, "postgres: unset primaries")
	}

	tag, err := tx.Exec(ctx,
		`UPDATE gemstone_assets SET is_primary = true WHERE id = $1 AND gemstone_id = $2`,
		assetID, gemstoneID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: set primary")
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "asset %s", assetID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit set primary")
}

func (s *PostgresStore) UpsertAnalysis(ctx context.Context, rec *model.AnalysisRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	extractions, primaryRec, telemetry, reasons, err := marshalRecord(rec)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx, upsertAnalysisSQL,
		rec.GemstoneID, rec.PipelineVersion, extractions, primaryRec, telemetry,
		rec.NeedsReview, reasons, now,
	)
	return eris.Wrapf(err, "postgres: upsert analysis for %s", rec.GemstoneID)
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, gemstoneID string, pipelineVersion int) (*model.AnalysisRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT gemstone_id, pipeline_version, extractions, primary_rec, telemetry, needs_review, review_reasons, created_at, updated_at
		 FROM analysis_records WHERE gemstone_id = $1 AND pipeline_version = $2`,
		gemstoneID, pipelineVersion,
	)
	rec, err := scanPGRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "analysis record for %s", gemstoneID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get analysis")
	}
	return rec, nil
}

func (s *PostgresStore) ListAnalyses(ctx context.Context, filter RecordFilter) ([]model.AnalysisRecord, error) {
	query := `SELECT gemstone_id, pipeline_version, extractions, primary_rec, telemetry, needs_review, review_reasons, created_at, updated_at
	          FROM analysis_records`
	var args []any

	if filter.NeedsReview != nil {
		query += ` WHERE needs_review = $1`
		args = append(args, *filter.NeedsReview)
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analyses")
	}
	defer rows.Close()

	var records []model.AnalysisRecord
	for rows.Next() {
		r, err := scanPGRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis")
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list analyses iterate")
}

func scanPGRecord(row pgx.Row) (*model.AnalysisRecord, error) {
	var r model.AnalysisRecord
	var extractions, primaryRec, telemetry, reasons []byte

	err := row.Scan(&r.GemstoneID, &r.PipelineVersion, &extractions, &primaryRec,
		&telemetry, &r.NeedsReview, &reasons, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return unmarshalRecord(&r, extractions, primaryRec, telemetry, reasons)
}
