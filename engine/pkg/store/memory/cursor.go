package memory

import (
	"context"

	"github.com/ihtsdo/rf2release/engine/pkg/store"
)

const cursorCtxCheckInterval = 1000

// cursor walks the sorted map through its iteration channel, so rows are
// produced one at a time in key order.
type cursor struct {
	ctx     context.Context
	next    func() (row, bool)
	stop    func() error
	filter  string
	current string
	seen    int
	err     error
	done    bool
	stopped bool
}

func (s *Store) iterate(ctx context.Context, effectiveTime string) (store.RowCursor, error) {
	if s.table.Len() == 0 {
		return store.EmptyCursor(), nil
	}
	iter, err := s.table.IterCh()
	if err != nil {
		return nil, err
	}
	records := iter.Records()
	return &cursor{
		ctx: ctx,
		next: func() (row, bool) {
			rec, ok := <-records
			return rec.Val, ok
		},
		stop:   iter.Close,
		filter: effectiveTime,
	}, nil
}

func (c *cursor) Next() bool {
	if c.done {
		return false
	}
	for {
		r, ok := c.next()
		if !ok {
			c.finish()
			return false
		}
		c.seen++
		if c.seen%cursorCtxCheckInterval == 0 {
			if err := c.ctx.Err(); err != nil {
				c.err = err
				c.finish()
				_ = c.Close()
				return false
			}
		}
		if c.filter != "" && r.key.EffectiveTime != c.filter {
			continue
		}
		c.current = r.line()
		return true
	}
}

func (c *cursor) Row() string { return c.current }

func (c *cursor) Err() error { return c.err }

func (c *cursor) Close() error {
	c.done = true
	if c.stopped {
		return nil
	}
	c.stopped = true
	return c.stop()
}

func (c *cursor) finish() {
	c.done = true
	c.current = ""
}
