package store

import (
	"context"
	"fmt"
	"os"
	"strings"

	"innomatch/api/internal/config"
)

// Open builds the backend named by cfg.StoreDriver.
func Open(ctx context.Context, cfg config.Config) (Store, error) {
	idx := ParseIndexes(cfg.IndexedPairs)
	switch strings.ToLower(cfg.StoreDriver) {
	case "", "memory":
		return NewMemoryStore(idx), nil
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath, idx)
	case "postgres":
		db, err := OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := ApplyMigrations(ctx, db, os.DirFS(cfg.MigrationsDir)); err != nil {
			_ = db.Close()
			return nil, err
		}
		return NewPostgresStore(db, idx), nil
	case "mongo":
		return NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase, idx)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
