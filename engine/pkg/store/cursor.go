package store

// RowCursor is a forward-only, lazily produced sequence of formatted rows.
// It is not restartable.
//
//	for cur.Next() {
//		line := cur.Row()
//	}
//	if err := cur.Err(); err != nil { ... }
type RowCursor interface {
	// Next advances to the next row, returning false when the rows are
	// exhausted or an error occurred.
	Next() bool
	// Row returns the current row: column values joined by the column
	// separator, without a line ending.
	Row() string
	Err() error
	Close() error
}

type emptyCursor struct{}

// EmptyCursor returns a cursor with no rows.
func EmptyCursor() RowCursor { return emptyCursor{} }

func (emptyCursor) Next() bool   { return false }
func (emptyCursor) Row() string  { return "" }
func (emptyCursor) Err() error   { return nil }
func (emptyCursor) Close() error { return nil }

// Collect drains a cursor into memory and closes it. Intended for tests and
// small tables.
func Collect(cur RowCursor) ([]string, error) {
	defer cur.Close()
	var rows []string
	for cur.Next() {
		rows = append(rows, cur.Row())
	}
	return rows, cur.Err()
}
