package store

import (
	"context"
	"fmt"
	"log/slog"

	"docqa/config"
)

// Open connects to the configured backend and makes sure its schema exists.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (DBStorer, error) {
	switch cfg.Store.Backend {
	case config.StoreBolt:
		s, err := NewBoltStore(cfg.Store.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("open bolt store: %w", err)
		}
		logger.Info("store ready", "backend", config.StoreBolt, "path", cfg.Store.BoltPath)
		return s, nil
	case config.StorePostgres:
		pg, err := NewPostgresStore(ctx, cfg.PostgresConnString(), cfg.Store.Postgres.VectorDim, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pg.Init(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
		logger.Info("store ready", "backend", config.StorePostgres, "host", cfg.Store.Postgres.Host, "db", cfg.Store.Postgres.Database)
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
