package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/meridian-gems/gemscan/internal/model"
)

// ErrNotFound indicates the requested gemstone, asset, or record is unknown.
var ErrNotFound = eris.New("store: not found")

// RecordFilter specifies criteria for listing analysis records.
type RecordFilter struct {
	NeedsReview *bool `json:"needs_review,omitempty"`
	Limit       int   `json:"limit,omitempty"`
	Offset      int   `json:"offset,omitempty"`
}

// Store defines the persistence interface for the analysis pipeline.
// Writes are scoped to a single gemstone at a time; the analysis upsert is
// keyed by (gemstone_id, pipeline_version) so concurrent reruns resolve
// last-writer-wins without cross-gemstone locking.
type Store interface {
	// Catalog reads
	GetGemstone(ctx context.Context, id string) (*model.Gemstone, error)
	ListAssets(ctx context.Context, gemstoneID string) ([]model.GemstoneAsset, error)

	// Catalog writes (ingestion / admin)
	CreateGemstone(ctx context.Context, g *model.Gemstone) error
	CreateAsset(ctx context.Context, a *model.GemstoneAsset) error
	DeleteAsset(ctx context.Context, assetID string) error
	SetPrimaryAsset(ctx context.Context, gemstoneID, assetID string) error

	// Analysis records
	UpsertAnalysis(ctx context.Context, rec *model.AnalysisRecord) error
	GetAnalysis(ctx context.Context, gemstoneID string, pipelineVersion int) (*model.AnalysisRecord, error)
	ListAnalyses(ctx context.Context, filter RecordFilter) ([]model.AnalysisRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
