package store

import (
	"context"
	"errors"
	"io"

	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
)

var (
	// ErrSchemaRecognition wraps rf2.ErrFileRecognition and header mismatches.
	ErrSchemaRecognition = errors.New("schema recognition failed")
	// ErrEmptyInput is returned when an RF2 stream has no header line.
	ErrEmptyInput = errors.New("rf2 input is empty")
	// ErrUnsupported is returned by backends that do not implement an
	// operation. Callers should treat it as a configuration error.
	ErrUnsupported = errors.New("operation not supported by this backend")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store is closed")
	// ErrNoTable is returned when querying before CreateTable.
	ErrNoTable = errors.New("table has not been created")
)

// Store holds the rows of one RF2 file for the duration of one build.
//
// Rows are always returned in ascending (identity, effectiveTime) order and a
// later ingest of the same pair overwrites the earlier one. A Store is used by
// a single goroutine.
type Store interface {
	// CreateTable reads the header from r, recognises the schema from the file
	// name in sourcePath and ingests the remaining lines.
	CreateTable(ctx context.Context, sourcePath string, r io.Reader) (*rf2.TableSchema, error)
	// AppendData discards the header of r and ingests the remaining lines.
	AppendData(ctx context.Context, schema *rf2.TableSchema, r io.Reader) error
	// AppendDataAfter is AppendData skipping rows dated on or before
	// previousEffectiveTime.
	AppendDataAfter(ctx context.Context, schema *rf2.TableSchema, r io.Reader, previousEffectiveTime string) error

	SelectAllOrdered(ctx context.Context, schema *rf2.TableSchema) (RowCursor, error)
	SelectWithEffectiveDateOrdered(ctx context.Context, schema *rf2.TableSchema, effectiveTime string) (RowCursor, error)
	SelectNone(ctx context.Context, schema *rf2.TableSchema) (RowCursor, error)

	// FindAlreadyPublishedDeltaKeys returns the stored keys whose identity is
	// present in the previous snapshot with an effective time on or after the
	// stored one.
	FindAlreadyPublishedDeltaKeys(ctx context.Context, schema *rf2.TableSchema, previousSnapshot io.Reader) (KeySet, error)
	// DiscardAlreadyPublishedDeltaStates removes rows stamped effectiveTime
	// whose content equals the previous snapshot row with the same identity.
	DiscardAlreadyPublishedDeltaStates(ctx context.Context, previousSnapshot io.Reader, currentFilename, effectiveTime string) error
	// ReconcileRefsetMemberIds moves refset members ingested under a new
	// member id back to the id the previous snapshot used for the same
	// composite key.
	ReconcileRefsetMemberIds(ctx context.Context, previousSnapshot io.Reader, currentFilename, effectiveTime string) (*WorkaroundReport, error)
	// ResolveEmptyValueId backfills inactive rows whose trailing value column
	// is blank with the value of the previously active member.
	ResolveEmptyValueId(ctx context.Context, previousFile io.Reader, effectiveTime string) (*WorkaroundReport, error)

	Close() error
}

// WorkaroundReport summarises one historical-data workaround.
type WorkaroundReport struct {
	Matched int
	Updated int
	Removed int
	// Problems lists logical mismatches found against the previous release.
	Problems []string
}

// KeySet is a set of stored row keys.
type KeySet map[Key]struct{}

func (s KeySet) Contains(k Key) bool {
	_, ok := s[k]
	return ok
}
