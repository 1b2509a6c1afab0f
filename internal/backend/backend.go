// Package backend opens the document store selected by DATA_BACKEND.
package backend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/pgstore"
	"fintrack/internal/storage"
	"fintrack/internal/store"
	"fintrack/internal/store/memory"
)

// Store is everything the web process needs from a document store.
type Store interface {
	store.TransactionStore
	store.UserStore
	store.Pinger
}

// ChangeListener streams change notifications written by other processes.
type ChangeListener interface {
	Listen(ctx context.Context, retry time.Duration, onChange func(ctx context.Context, userID string)) error
}

type Kind string

const (
	SQLite   Kind = "sqlite"
	Postgres Kind = "postgres"
	Memory   Kind = "memory"
)

var Kinds = []Kind{SQLite, Postgres, Memory}

func (k Kind) Valid() bool { return slices.Contains(Kinds, k) }

type Config struct {
	Kind        Kind
	SQLitePath  string
	DatabaseURL string
}

func FromAppConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, errors.New("backend: nil app config")
	}
	c := Config{Kind: Kind(cfg.DataBackend), SQLitePath: cfg.SQLiteDBPath, DatabaseURL: cfg.DatabaseURL}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch c.Kind {
	case SQLite:
		if c.SQLitePath == "" {
			return errors.New("backend: sqlite needs SQLITE_DB_PATH")
		}
	case Postgres:
		if c.DatabaseURL == "" {
			return errors.New("backend: postgres needs DATABASE_URL")
		}
	case Memory:
	default:
		return fmt.Errorf("backend: unknown kind %q (want one of %v)", c.Kind, Kinds)
	}
	return nil
}

// Opened is a ready store. Changes is nil unless the store has a native
// change feed. Close releases the store.
type Opened struct {
	Store   Store
	Changes ChangeListener
	Close   func() error
}

func Open(ctx context.Context, cfg Config, logger *log.Logger) (*Opened, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentBackend)

	switch cfg.Kind {
	case SQLite:
		repo, err := storage.NewSQLiteRepository(cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("Opened SQLite store", "db_path", cfg.SQLitePath)
		return &Opened{Store: repo, Close: repo.Close}, nil
	case Postgres:
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		logger.Info("Opened PostgreSQL store")
		return &Opened{Store: pg, Changes: pg, Close: pg.Close}, nil
	default:
		logger.Warn("Using the in-memory store; data is lost on restart")
		return &Opened{Store: memory.New(), Close: func() error { return nil }}, nil
	}
}
