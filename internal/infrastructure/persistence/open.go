// Package persistence selects and opens the configured profile store.
package persistence

import (
	"context"
	"fmt"

	"github.com/cardquest/progression/config"
	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/internal/infrastructure/persistence/memory"
	"github.com/cardquest/progression/internal/infrastructure/persistence/postgres"
	"github.com/cardquest/progression/internal/infrastructure/persistence/sqlite"
	"github.com/cardquest/progression/pkg/logger"
)

// Store is an opened repository together with its release function.
type Store struct {
	Repo   progression.Repository
	Driver config.StorageDriver
	close  func()
}

// Close releases the underlying connections.
func (s *Store) Close() {
	if s.close != nil {
		s.close()
	}
}

// Open connects to the backend named by cfg.Storage.Driver. Postgres runs
// the embedded migrations first when DB_AUTO_MIGRATE is set.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Store, error) {
	log = log.With(logger.Component("storage"), logger.String("driver", string(cfg.Storage.Driver)))

	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, postgres.PoolOptions{
			MaxConns:        int32(cfg.Database.MaxOpenConns),
			MinConns:        int32(cfg.Database.MaxIdleConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
			QueryTimeout:    cfg.Database.QueryTimeout,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
				conn.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			log.Info("database schema is up to date")
		}
		log.Info("storage opened")
		return &Store{Repo: postgres.NewProfileRepository(conn), Driver: cfg.Storage.Driver, close: conn.Close}, nil

	case config.StorageSQLite:
		repo, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		log.Info("storage opened", logger.String("path", cfg.SQLite.Path))
		return &Store{Repo: repo, Driver: cfg.Storage.Driver, close: func() {
			if err := repo.Close(); err != nil {
				log.Warn("close sqlite", logger.Err(err))
			}
		}}, nil

	case config.StorageMemory:
		log.Warn("using in-memory storage, profiles are lost on restart")
		return &Store{Repo: memory.NewProfileRepository(), Driver: cfg.Storage.Driver}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
