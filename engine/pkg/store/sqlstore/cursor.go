package sqlstore

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
	"github.com/ihtsdo/rf2release/engine/pkg/store"
)

// cursor formats typed query results back into canonical RF2 text.
type cursor struct {
	rows   *sql.Rows
	schema *rf2.TableSchema
	dest   []any
	cols   []string
	row    string
	err    error
	closed bool
}

func newCursor(rows *sql.Rows, schema *rf2.TableSchema) store.RowCursor {
	c := &cursor{
		rows:   rows,
		schema: schema,
		dest:   make([]any, len(schema.Fields)),
		cols:   make([]string, len(schema.Fields)),
	}
	for i, f := range schema.Fields {
		switch f.Type {
		case rf2.SCTID, rf2.Integer:
			c.dest[i] = new(sql.NullInt64)
		case rf2.Boolean:
			c.dest[i] = new(sql.NullBool)
		case rf2.Time:
			c.dest[i] = new(sql.NullTime)
		default:
			c.dest[i] = new(sql.NullString)
		}
	}
	return c
}

func (c *cursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		c.Close()
		return false
	}
	if err := c.rows.Scan(c.dest...); err != nil {
		c.err = fmt.Errorf("failed to scan row of %s: %w", c.schema.Filename, err)
		c.Close()
		return false
	}
	for i, d := range c.dest {
		c.cols[i] = format(d)
	}
	c.row = strings.Join(c.cols, rf2.ColumnSeparator)
	return true
}

func format(d any) string {
	switch v := d.(type) {
	case *sql.NullInt64:
		if v.Valid {
			return strconv.FormatInt(v.Int64, 10)
		}
	case *sql.NullBool:
		if v.Valid {
			return rf2.FormatBool(v.Bool)
		}
	case *sql.NullTime:
		if v.Valid {
			return rf2.FormatDate(v.Time)
		}
	case *sql.NullString:
		if v.Valid {
			return v.String
		}
	}
	return ""
}

func (c *cursor) Row() string { return c.row }

func (c *cursor) Err() error { return c.err }

func (c *cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}
