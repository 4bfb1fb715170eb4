package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	duckdb "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
	"github.com/ihtsdo/rf2release/engine/pkg/store"
)

type Dialect string

const (
	DialectDuckDB   Dialect = "duckdb"
	DialectPostgres Dialect = "postgres"
)

const (
	DefaultBatchSize = 10_000
	MaxBatchSize     = 100_000

	seqColumn = "rf2_seq"

	// maxTableNameLen keeps physical names within PostgreSQL's 63 byte limit.
	maxTableNameLen = 48
)

type Config struct {
	Logger  *slog.Logger
	Dialect Dialect
	// DSN is a DuckDB database path, empty for an in-memory database, or a
	// PostgreSQL connection string.
	DSN string
	// BatchSize is the number of rows written per insert batch.
	BatchSize int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	switch cfg.Dialect {
	case "":
		cfg.Dialect = DialectDuckDB
	case DialectDuckDB:
	case DialectPostgres:
		if cfg.DSN == "" {
			return errors.New("postgres dsn is required")
		}
	default:
		return fmt.Errorf("unknown dialect %q", cfg.Dialect)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		return fmt.Errorf("batch size %d exceeds maximum of %d", cfg.BatchSize, MaxBatchSize)
	}
	return nil
}

// Store keeps each ingested RF2 file in its own relational table.
type Store struct {
	log       *slog.Logger
	cfg       Config
	db        *sql.DB
	connector *duckdb.Connector
	factory   *rf2.SchemaFactory

	// tables maps schema table names to physical table names.
	tables map[string]string
	suffix string
	seq    int64
	closed bool
}

var _ store.Store = (*Store)(nil)

func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		log:     cfg.Logger,
		cfg:     cfg,
		factory: rf2.NewSchemaFactory(),
		tables:  make(map[string]string),
		suffix:  strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
	}

	switch cfg.Dialect {
	case DialectDuckDB:
		connector, err := duckdb.NewConnector(cfg.DSN, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
		}
		s.connector = connector
		s.db = sql.OpenDB(connector)
	case DialectPostgres:
		db, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
		}
		s.db = db
	}

	if err := s.db.PingContext(ctx); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Dialect, err)
	}
	return s, nil
}

func (s *Store) backend() string { return string(s.cfg.Dialect) }

func (s *Store) CreateTable(ctx context.Context, sourcePath string, r io.Reader) (*rf2.TableSchema, error) {
	if s.closed {
		return nil, store.ErrClosed
	}
	lr := store.NewLineReader(r)
	schema, err := store.ReadSchema(s.factory, sourcePath, lr)
	if err != nil {
		return nil, err
	}
	s.log.Info("sqlstore: creating table", "file", schema.Filename, "dialect", s.cfg.Dialect)

	table := s.physicalName(schema)
	if _, err := s.db.ExecContext(ctx, createTableSQL(table, schema)); err != nil {
		return nil, fmt.Errorf("failed to create table for %s: %w", schema.Filename, err)
	}
	s.tables[schema.TableName] = table

	if err := s.insert(ctx, schema, table, lr, ""); err != nil {
		return nil, err
	}
	return schema, nil
}

func (s *Store) AppendData(ctx context.Context, schema *rf2.TableSchema, r io.Reader) error {
	return s.appendData(ctx, schema, r, "")
}

func (s *Store) AppendDataAfter(ctx context.Context, schema *rf2.TableSchema, r io.Reader, previousEffectiveTime string) error {
	return s.appendData(ctx, schema, r, previousEffectiveTime)
}

func (s *Store) appendData(ctx context.Context, schema *rf2.TableSchema, r io.Reader, after string) error {
	table, err := s.table(schema)
	if err != nil {
		return err
	}
	lr := store.NewLineReader(r)
	if _, err := lr.Header(); err != nil {
		if errors.Is(err, store.ErrEmptyInput) {
			return nil
		}
		return err
	}
	return s.insert(ctx, schema, table, lr, after)
}

func (s *Store) insert(ctx context.Context, schema *rf2.TableSchema, table string, lr *store.LineReader, after string) error {
	w, err := s.newBatchWriter(ctx, schema, table)
	if err != nil {
		return err
	}
	opts := store.ScanOptions{Backend: s.backend(), After: after}
	n, err := store.ScanRows(ctx, s.log, schema, lr, opts, func(_ store.Key, cols []string) error {
		s.seq++
		return w.add(ctx, cols, s.seq)
	})
	if err != nil {
		w.abort()
		return fmt.Errorf("failed to insert into %s: %w", schema.Filename, err)
	}
	if err := w.close(ctx); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", schema.Filename, err)
	}
	if _, err := s.db.ExecContext(ctx, dedupeSQL(table, schema)); err != nil {
		return fmt.Errorf("failed to remove overwritten rows of %s: %w", schema.Filename, err)
	}
	s.log.Debug("sqlstore: rows inserted", "file", schema.Filename, "rows", n)
	return nil
}

func (s *Store) SelectAllOrdered(ctx context.Context, schema *rf2.TableSchema) (store.RowCursor, error) {
	table, err := s.table(schema)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, schema, selectSQL(s.cfg.Dialect, table, schema, false, false))
}

func (s *Store) SelectWithEffectiveDateOrdered(ctx context.Context, schema *rf2.TableSchema, effectiveTime string) (store.RowCursor, error) {
	table, err := s.table(schema)
	if err != nil {
		return nil, err
	}
	t, err := rf2.ParseDate(effectiveTime)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, schema, selectSQL(s.cfg.Dialect, table, schema, true, false), t)
}

func (s *Store) SelectNone(ctx context.Context, schema *rf2.TableSchema) (store.RowCursor, error) {
	table, err := s.table(schema)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, schema, selectSQL(s.cfg.Dialect, table, schema, false, true))
}

func (s *Store) query(ctx context.Context, schema *rf2.TableSchema, query string, args ...any) (store.RowCursor, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", schema.Filename, err)
	}
	return newCursor(rows, schema), nil
}

func (s *Store) FindAlreadyPublishedDeltaKeys(context.Context, *rf2.TableSchema, io.Reader) (store.KeySet, error) {
	return nil, s.unsupported("FindAlreadyPublishedDeltaKeys")
}

func (s *Store) DiscardAlreadyPublishedDeltaStates(context.Context, io.Reader, string, string) error {
	return s.unsupported("DiscardAlreadyPublishedDeltaStates")
}

func (s *Store) ReconcileRefsetMemberIds(context.Context, io.Reader, string, string) (*store.WorkaroundReport, error) {
	return nil, s.unsupported("ReconcileRefsetMemberIds")
}

func (s *Store) ResolveEmptyValueId(context.Context, io.Reader, string) (*store.WorkaroundReport, error) {
	return nil, s.unsupported("ResolveEmptyValueId")
}

func (s *Store) unsupported(op string) error {
	if s.closed {
		return store.ErrClosed
	}
	return fmt.Errorf("%w: %s on %s", store.ErrUnsupported, op, s.cfg.Dialect)
}

// Close drops the tables this store created and releases the database.
func (s *Store) Close() error {
	if s.closed {
		return store.ErrClosed
	}
	s.closed = true
	var errs []error
	if s.cfg.Dialect == DialectPostgres {
		for _, table := range s.tables {
			if _, err := s.db.Exec("DROP TABLE IF EXISTS " + quote(table)); err != nil {
				errs = append(errs, fmt.Errorf("failed to drop table %s: %w", table, err))
			}
		}
	}
	s.tables = nil
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Store) table(schema *rf2.TableSchema) (string, error) {
	if s.closed {
		return "", store.ErrClosed
	}
	if schema == nil {
		return "", store.ErrNoTable
	}
	table, ok := s.tables[schema.TableName]
	if !ok {
		return "", fmt.Errorf("%w: %s", store.ErrNoTable, schema.TableName)
	}
	return table, nil
}

var unsafeIdentChars = regexp.MustCompile(`[^a-z0-9_]+`)

// physicalName is unique per store so stores sharing a PostgreSQL database
// do not collide.
func (s *Store) physicalName(schema *rf2.TableSchema) string {
	name := unsafeIdentChars.ReplaceAllString(strings.ToLower(schema.TableName), "_")
	if len(name) > maxTableNameLen {
		name = name[:maxTableNameLen]
	}
	return fmt.Sprintf("rf2_%s_%s", name, s.suffix)
}
