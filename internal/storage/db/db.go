// Package db opens the configured ledger store backend.
package db

import (
	"context"
	"fmt"

	"github.com/payment-scanner/internal/config"
	"github.com/payment-scanner/internal/storage"
	"github.com/payment-scanner/internal/storage/mongo"
	"github.com/payment-scanner/internal/storage/sqlite"
)

// Open returns a Store for cfg.Driver. Postgres schema is managed by
// cmd/migrate; the SQLite schema is embedded and applied here.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pg, err := storage.NewPostgresDB(ctx, &cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return storage.NewPostgresStore(pg), nil
	case config.DriverMongo:
		return mongo.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	case config.DriverSQLite:
		return sqlite.Open(ctx, cfg.SQLite.Path)
	}

	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}
