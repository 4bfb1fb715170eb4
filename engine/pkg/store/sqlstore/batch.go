package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"

	duckdb "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"

	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
)

// batchWriter writes normalized rows in batches of Config.BatchSize.
type batchWriter interface {
	add(ctx context.Context, cols []string, seq int64) error
	close(ctx context.Context) error
	abort()
}

func (s *Store) newBatchWriter(ctx context.Context, schema *rf2.TableSchema, table string) (batchWriter, error) {
	if s.cfg.Dialect == DialectDuckDB {
		return newAppenderWriter(ctx, s, schema, table)
	}
	return newTxWriter(ctx, s, schema, table)
}

// appenderWriter uses the DuckDB appender on a dedicated native connection.
type appenderWriter struct {
	s        *Store
	schema   *rf2.TableSchema
	conn     driver.Conn
	appender *duckdb.Appender
	pending  int
	values   []driver.Value
}

func newAppenderWriter(ctx context.Context, s *Store, schema *rf2.TableSchema, table string) (*appenderWriter, error) {
	conn, err := s.connector.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get native DuckDB connection: %w", err)
	}
	duckConn, ok := conn.(*duckdb.Conn)
	if !ok {
		conn.Close()
		return nil, errors.New("failed to cast to *duckdb.Conn")
	}
	appender, err := duckdb.NewAppenderFromConn(duckConn, "", table)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create appender for %s: %w", table, err)
	}
	return &appenderWriter{
		s:        s,
		schema:   schema,
		conn:     conn,
		appender: appender,
		values:   make([]driver.Value, len(schema.Fields)+1),
	}, nil
}

func (w *appenderWriter) add(ctx context.Context, cols []string, seq int64) error {
	for i, f := range w.schema.Fields {
		v, err := duckValue(f.Type, cols[i])
		if err != nil {
			return fmt.Errorf("column %s: %w", f.Name, err)
		}
		w.values[i] = v
	}
	w.values[len(cols)] = seq
	if err := w.appender.AppendRow(w.values...); err != nil {
		return fmt.Errorf("failed to append row: %w", err)
	}
	w.pending++
	if w.pending >= w.s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.appender.Flush(); err != nil {
			return fmt.Errorf("failed to flush batch: %w", err)
		}
		w.s.log.Debug("sqlstore: batch flushed", "file", w.schema.Filename, "rows", w.pending)
		w.pending = 0
	}
	return nil
}

func (w *appenderWriter) close(context.Context) error {
	err := w.appender.Close()
	if cerr := w.conn.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to close appender: %w", err)
	}
	return nil
}

func (w *appenderWriter) abort() {
	_ = w.appender.Close()
	_ = w.conn.Close()
}

// txWriter runs a prepared insert inside a transaction committed per batch.
type txWriter struct {
	s       *Store
	schema  *rf2.TableSchema
	query   string
	tx      *sql.Tx
	stmt    *sql.Stmt
	pending int
	args    []any
}

func newTxWriter(ctx context.Context, s *Store, schema *rf2.TableSchema, table string) (*txWriter, error) {
	w := &txWriter{
		s:      s,
		schema: schema,
		query:  insertSQL(table, schema),
		args:   make([]any, len(schema.Fields)+1),
	}
	if err := w.begin(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *txWriter) begin(ctx context.Context) error {
	tx, err := w.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, w.query)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	w.tx, w.stmt = tx, stmt
	return nil
}

func (w *txWriter) commit() error {
	_ = w.stmt.Close()
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	w.tx, w.stmt = nil, nil
	return nil
}

func (w *txWriter) add(ctx context.Context, cols []string, seq int64) error {
	for i, f := range w.schema.Fields {
		v, err := sqlValue(f.Type, cols[i])
		if err != nil {
			return fmt.Errorf("column %s: %w", f.Name, err)
		}
		w.args[i] = v
	}
	w.args[len(cols)] = seq
	if _, err := w.stmt.ExecContext(ctx, w.args...); err != nil {
		return fmt.Errorf("failed to insert row: %w", err)
	}
	w.pending++
	if w.pending >= w.s.cfg.BatchSize {
		if err := w.commit(); err != nil {
			return err
		}
		w.s.log.Debug("sqlstore: batch committed", "file", w.schema.Filename, "rows", w.pending)
		w.pending = 0
		return w.begin(ctx)
	}
	return nil
}

func (w *txWriter) close(context.Context) error {
	return w.commit()
}

func (w *txWriter) abort() {
	if w.tx != nil {
		_ = w.stmt.Close()
		_ = w.tx.Rollback()
	}
}

// sqlValue converts a normalized column value to a database/sql argument.
func sqlValue(t rf2.DataType, v string) (any, error) {
	if v == "" {
		return nil, nil
	}
	switch t {
	case rf2.SCTID:
		return strconv.ParseInt(v, 10, 64)
	case rf2.Integer:
		n, err := strconv.ParseInt(v, 10, 32)
		return int32(n), err
	case rf2.Boolean:
		return rf2.ParseBool(v)
	case rf2.Time:
		return rf2.ParseDate(v)
	default:
		return v, nil
	}
}

// duckValue is sqlValue with the native types the DuckDB appender expects.
func duckValue(t rf2.DataType, v string) (driver.Value, error) {
	if t == rf2.UUID && v != "" {
		u, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		return duckdb.UUID(u), nil
	}
	return sqlValue(t, v)
}
