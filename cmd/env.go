package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/meridian-gems/gemscan/internal/media"
	"github.com/meridian-gems/gemscan/internal/pipeline"
	"github.com/meridian-gems/gemscan/internal/store"
	"github.com/meridian-gems/gemscan/internal/vision"
	anthropicpkg "github.com/meridian-gems/gemscan/pkg/anthropic"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "gemscan.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// env bundles everything a pipeline run needs, built once per invocation.
type env struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

func (e *env) Close() {
	_ = e.Store.Close()
}

func initPipeline(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	normalizer, err := media.NewNormalizer(cfg.Media)
	if err != nil {
		st.Close()
		return nil, err
	}

	engine := vision.NewEngine(
		anthropicpkg.NewClient(cfg.Anthropic.Key),
		cfg.Tasks, cfg.Vocab, cfg.Batch.VisionCallsPerSec,
	)

	return &env{
		Store:    st,
		Pipeline: pipeline.New(cfg, st, normalizer, engine),
	}, nil
}
