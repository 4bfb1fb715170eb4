// Package transform rewrites incoming RF2 delta lines before they are stored:
// it mints identifiers, stamps effective times and fixes module ids.
package transform

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
)

// ErrTransformation marks a failure to transform a single line or batch.
// Such failures are reported, not fatal for the file.
var ErrTransformation = errors.New("transformation failed")

// LineTransformation rewrites the columns of one line in place.
type LineTransformation interface {
	TransformLine(ctx context.Context, cols []string) error
}

// BatchTransformation rewrites a buffered batch of lines in place.
type BatchTransformation interface {
	TransformLines(ctx context.Context, rows [][]string) error
}

// LineFunc adapts a function to LineTransformation.
type LineFunc func(ctx context.Context, cols []string) error

func (f LineFunc) TransformLine(ctx context.Context, cols []string) error { return f(ctx, cols) }

func column(cols []string, idx int) error {
	if idx < 0 || idx >= len(cols) {
		return fmt.Errorf("%w: column %d out of range for line with %d columns", ErrTransformation, idx, len(cols))
	}
	return nil
}

// ReplaceValue sets a column to a fixed value. With OnlyIfEmpty it only
// replaces sentinel values.
type ReplaceValue struct {
	Column      int
	Value       string
	OnlyIfEmpty bool
}

func (t ReplaceValue) TransformLine(_ context.Context, cols []string) error {
	if err := column(cols, t.Column); err != nil {
		return err
	}
	if t.OnlyIfEmpty && !rf2.IsSentinel(cols[t.Column]) {
		return nil
	}
	cols[t.Column] = t.Value
	return nil
}

// RandomUUID fills a sentinel column with a new random UUID.
type RandomUUID struct {
	Column int
	// NewUUID defaults to uuid.New.
	NewUUID func() uuid.UUID
}

func (t RandomUUID) TransformLine(_ context.Context, cols []string) error {
	if err := column(cols, t.Column); err != nil {
		return err
	}
	if !rf2.IsSentinel(cols[t.Column]) {
		return nil
	}
	gen := t.NewUUID
	if gen == nil {
		gen = uuid.New
	}
	cols[t.Column] = gen().String()
	return nil
}

// ReplaceFromMap swaps a column value for its mapped replacement, e.g. a
// relationship UUID for the SCTID it was published with.
type ReplaceFromMap struct {
	Column int
	Values map[string]string
}

func (t ReplaceFromMap) TransformLine(_ context.Context, cols []string) error {
	if err := column(cols, t.Column); err != nil {
		return err
	}
	if v, ok := t.Values[cols[t.Column]]; ok {
		cols[t.Column] = v
	}
	return nil
}

// Condition is a predicate over a split line.
type Condition func(cols []string) bool

func ColumnEquals(idx int, value string) Condition {
	return func(cols []string) bool {
		return idx < len(cols) && cols[idx] == value
	}
}

func ColumnIn(idx int, values map[string]struct{}) Condition {
	return func(cols []string) bool {
		if idx >= len(cols) {
			return false
		}
		_, ok := values[cols[idx]]
		return ok
	}
}

// Conditional applies Then when all conditions hold and Otherwise when not.
// Either branch may be nil.
type Conditional struct {
	Conditions []Condition
	Then       LineTransformation
	Otherwise  LineTransformation
}

func (t Conditional) TransformLine(ctx context.Context, cols []string) error {
	next := t.Then
	for _, cond := range t.Conditions {
		if !cond(cols) {
			next = t.Otherwise
			break
		}
	}
	if next == nil {
		return nil
	}
	return next.TransformLine(ctx, cols)
}
