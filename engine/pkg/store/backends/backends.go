// Package backends builds a store.Store from its configured backend name.
package backends

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ihtsdo/rf2release/engine/pkg/store"
	"github.com/ihtsdo/rf2release/engine/pkg/store/memory"
	"github.com/ihtsdo/rf2release/engine/pkg/store/sqlstore"
)

type Backend string

const (
	Memory   Backend = "memory"
	DuckDB   Backend = "duckdb"
	Postgres Backend = "postgres"
)

type Config struct {
	Logger  *slog.Logger
	Backend Backend
	// DSN is passed to the relational backends.
	DSN       string
	BatchSize int
	// WorkbenchDataFixes and CustomRefsetCompositeKeys only apply to the
	// memory backend.
	WorkbenchDataFixes        bool
	CustomRefsetCompositeKeys map[string][]int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	switch cfg.Backend {
	case "":
		cfg.Backend = Memory
	case Memory, DuckDB, Postgres:
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
	return nil
}

// Factory opens one store per RF2 file being built.
type Factory struct {
	cfg Config
}

func NewFactory(cfg Config) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Factory{cfg: cfg}, nil
}

func (f *Factory) Backend() Backend { return f.cfg.Backend }

func (f *Factory) New(ctx context.Context) (store.Store, error) {
	switch f.cfg.Backend {
	case DuckDB, Postgres:
		s, err := sqlstore.New(ctx, sqlstore.Config{
			Logger:    f.cfg.Logger,
			Dialect:   sqlstore.Dialect(f.cfg.Backend),
			DSN:       f.cfg.DSN,
			BatchSize: f.cfg.BatchSize,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := memory.New(memory.Config{
			Logger:                    f.cfg.Logger,
			WorkbenchDataFixes:        f.cfg.WorkbenchDataFixes,
			CustomRefsetCompositeKeys: f.cfg.CustomRefsetCompositeKeys,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
