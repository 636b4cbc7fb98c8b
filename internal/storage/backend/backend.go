// Package backend opens the configured storage.Store implementation.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/haskel/quorum/internal/logger"
	"github.com/haskel/quorum/internal/storage"
	"github.com/haskel/quorum/internal/storage/badgerstore"
	"github.com/haskel/quorum/internal/storage/sqlitestore"
)

// Kind names a storage backend.
type Kind string

const (
	KindMemory Kind = "memory"
	KindFile   Kind = "file"
	KindBadger Kind = "badger"
	KindSQLite Kind = "sqlite"
)

// IsValid checks if the backend kind is valid.
func (k Kind) IsValid() bool {
	switch k {
	case KindMemory, KindFile, KindBadger, KindSQLite:
		return true
	}
	return false
}

// String returns string representation.
func (k Kind) String() string {
	return string(k)
}

const (
	badgerDir  = "badger"
	sqliteFile = "quorum.db"
)

// Config selects and configures a backend.
type Config struct {
	Kind          Kind
	DataDir       string
	FlushInterval time.Duration
}

// Open opens the store described by cfg. File stores load existing data and
// start their flush loop under ctx.
func Open(ctx context.Context, cfg Config, l *slog.Logger) (storage.Store, error) {
	l = logger.Component(l, "storage")

	if cfg.Kind != KindMemory && cfg.DataDir == "" {
		return nil, fmt.Errorf("%s backend requires a data directory", cfg.Kind)
	}

	switch cfg.Kind {
	case KindMemory:
		return storage.NewMemoryStore(), nil

	case KindFile:
		fs := storage.NewFileStore(cfg.DataDir, cfg.FlushInterval, l)
		if err := fs.Load(); err != nil {
			return nil, fmt.Errorf("load file store: %w", err)
		}
		fs.Start(ctx)
		return fs, nil

	case KindBadger:
		bc := badgerstore.DefaultConfig()
		bc.Path = filepath.Join(cfg.DataDir, badgerDir)
		bc.Logger = l
		return badgerstore.Open(bc)

	case KindSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
		}
		return sqlitestore.Open(filepath.Join(cfg.DataDir, sqliteFile))

	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Kind)
	}
}
