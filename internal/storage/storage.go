// Package storage selects and instruments the queue store backends.
package storage

import (
	"context"
	"fmt"

	"github.com/comicaholic/genai-studio/internal/queue"
	"github.com/comicaholic/genai-studio/internal/storage/jsonfile"
	"github.com/comicaholic/genai-studio/internal/storage/sqlite"
	"github.com/comicaholic/genai-studio/internal/telemetry"
)

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config selects a backend and its location.
type Config struct {
	Backend   string
	QueueFile string
	DBPath    string
}

// Open builds the configured store. The returned close func releases backend resources and
// is never nil.
func Open(ctx context.Context, cfg Config) (queue.Store, func() error, error) {
	switch cfg.Backend {
	case BackendJSON, "":
		return jsonfile.New(cfg.QueueFile), func() error { return nil }, nil
	case BackendSQLite:
		db, err := sqlite.InitDB(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}

		return sqlite.NewDownloadRepository(db), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// InstrumentedStore wraps a queue.Store with telemetry.
type InstrumentedStore struct {
	store     queue.Store
	backend   string
	telemetry *telemetry.Telemetry
}

// NewInstrumentedStore creates a new instrumented store.
func NewInstrumentedStore(store queue.Store, backend string, tel *telemetry.Telemetry) *InstrumentedStore {
	return &InstrumentedStore{
		store:     store,
		backend:   backend,
		telemetry: tel,
	}
}

// Save persists items with telemetry.
func (s *InstrumentedStore) Save(ctx context.Context, items []queue.Item) error {
	return s.telemetry.InstrumentStoreOperation(ctx, s.backend, "save", func(ctx context.Context) error {
		return s.store.Save(ctx, items)
	})
}

// Load reads items with telemetry.
func (s *InstrumentedStore) Load(ctx context.Context) ([]queue.Item, error) {
	var result []queue.Item

	err := s.telemetry.InstrumentStoreOperation(ctx, s.backend, "load", func(ctx context.Context) error {
		var err error
		result, err = s.store.Load(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
