// Package build turns a set of RF2 delta files into release Delta, Full and
// Snapshot files.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/ihtsdo/rf2release/engine/pkg/artifact"
	"github.com/ihtsdo/rf2release/engine/pkg/idgen"
	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
	"github.com/ihtsdo/rf2release/engine/pkg/store"
	"github.com/ihtsdo/rf2release/engine/pkg/transform"
	"github.com/ihtsdo/rf2release/engine/pkg/writer"
)

const (
	DefaultConcurrency = 4
	DefaultMaxRetries  = 2
)

// StoreFactory opens a fresh store for each file being built.
type StoreFactory interface {
	New(ctx context.Context) (store.Store, error)
}

type Config struct {
	Logger *slog.Logger
	Stores StoreFactory
	Writer *writer.Writer
	// Transforms is nil when the input deltas are already transformed.
	Transforms *transform.Factory
	// Identifiers is required for legacy id assignment.
	Identifiers *idgen.CachedFactory

	Input  artifact.Source
	Output artifact.Sink
	// Previous is the last published release. Required unless
	// FirstTimeRelease is set.
	Previous artifact.Source
	// Dependency is the international release an edition is built on. Its
	// deltas are merged into the edition's files when set.
	Dependency artifact.Source
	// PreviousDependencyEffectiveTime is the dependency release the previous
	// edition was built on. When the dependency has no Delta for a file, its
	// Full rows dated after this stand in for it. Required with Dependency.
	PreviousDependencyEffectiveTime string

	EffectiveTime    string
	FirstTimeRelease bool
	// NewFiles names delta files published for the first time in this
	// release. They are built without previous release data.
	NewFiles []string
	// IncludedFiles maps a delta file to previously published files whose
	// Full content is merged into it, for content moved into a new file.
	IncludedFiles map[string][]string
	// SnapshotFiles names input Snapshot files, such as classifier output,
	// that the Delta and Full are derived from.
	SnapshotFiles []string
	// EmptyFirstTimeDelta writes a header-only Delta for files released for
	// the first time.
	EmptyFirstTimeDelta bool
	Beta                bool

	WorkbenchDataFixes bool
	// LegacyIDs requests CTV3IDs for new concepts and adds them to the
	// SimpleMap delta. SNOMEDIDs additionally requests SNOMED RT ids.
	LegacyIDs bool
	SNOMEDIDs bool

	Concurrency int
	// MaxRetries bounds re-runs of a file build after network failures.
	MaxRetries int
	// StagingDir holds transformed files; a temporary directory is used
	// when empty.
	StagingDir string
	Clock      clockwork.Clock
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Stores == nil {
		return errors.New("store factory is required")
	}
	if cfg.Writer == nil {
		return errors.New("writer is required")
	}
	if cfg.Input == nil {
		return errors.New("input source is required")
	}
	if cfg.Output == nil {
		return errors.New("output sink is required")
	}
	if _, err := rf2.ParseDate(cfg.EffectiveTime); err != nil {
		return fmt.Errorf("invalid effective time: %w", err)
	}
	if !cfg.FirstTimeRelease && cfg.Previous == nil {
		return errors.New("previous release is required unless this is a first time release")
	}
	if len(cfg.IncludedFiles) > 0 && cfg.Previous == nil {
		return errors.New("included files require a previous release")
	}
	if cfg.Dependency != nil {
		if _, err := rf2.ParseDate(cfg.PreviousDependencyEffectiveTime); err != nil {
			return fmt.Errorf("invalid previous dependency effective time: %w", err)
		}
	}
	if cfg.LegacyIDs && (cfg.Transforms == nil || cfg.Identifiers == nil) {
		return errors.New("legacy ids require transformations and an identifier factory")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxRetries < 0 {
		return errors.New("max retries must not be negative")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}
