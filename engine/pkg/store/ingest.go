package store

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ihtsdo/rf2release/engine/pkg/metrics"
	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
)

const (
	// maxLineSize bounds a single RF2 line; OWL expression rows can be long.
	maxLineSize = 16 << 20

	ctxCheckInterval = 1000
)

// LineReader reads an RF2 stream line by line, tracking 1-based line
// numbers with the header as line 1.
type LineReader struct {
	sc   *bufio.Scanner
	line int
}

func NewLineReader(r io.Reader) *LineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &LineReader{sc: sc}
}

// Header returns the first line of the stream, or ErrEmptyInput.
func (lr *LineReader) Header() (string, error) {
	line, ok := lr.Next()
	if !ok {
		if err := lr.Err(); err != nil {
			return "", err
		}
		return "", ErrEmptyInput
	}
	return line, nil
}

// Next returns the next line without its line ending.
func (lr *LineReader) Next() (string, bool) {
	if !lr.sc.Scan() {
		return "", false
	}
	lr.line++
	line := lr.sc.Text()
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, true
}

func (lr *LineReader) LineNumber() int { return lr.line }

func (lr *LineReader) Err() error {
	if err := lr.sc.Err(); err != nil {
		return fmt.Errorf("failed to read line %d: %w", lr.line+1, err)
	}
	return nil
}

// ReadSchema recognises the schema for sourcePath and names its fields from
// the header of lr.
func ReadSchema(factory *rf2.SchemaFactory, sourcePath string, lr *LineReader) (*rf2.TableSchema, error) {
	schema, err := factory.Recognize(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaRecognition, err)
	}
	header, err := lr.Header()
	if err != nil {
		return nil, fmt.Errorf("rf2 file %s: %w", schema.Filename, err)
	}
	if err := factory.PopulateExtendedFields(schema, header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaRecognition, err)
	}
	return schema, nil
}

// ScanOptions tunes ScanRows.
type ScanOptions struct {
	// Backend labels metrics and logs.
	Backend string
	// After skips rows dated on or before it when set.
	After string
}

// ScanRows parses the remaining lines of lr against schema and hands every
// valid, normalized row to fn. Lines with the wrong column count or values
// that do not fit their column type are logged and skipped.
func ScanRows(ctx context.Context, log *slog.Logger, schema *rf2.TableSchema, lr *LineReader, opts ScanOptions, fn func(key Key, cols []string) error) (int, error) {
	expected := len(schema.Fields)
	etIdx := schema.EffectiveTimeIndex()
	stored := 0
	for {
		line, ok := lr.Next()
		if !ok {
			break
		}
		if lr.LineNumber()%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return stored, err
			}
		}
		if line == "" {
			continue
		}

		cols := rf2.SplitLine(line)
		if len(cols) != expected {
			log.Warn("line has wrong column count, skipped",
				"file", schema.Filename, "line", lr.LineNumber(), "expected", expected, "got", len(cols))
			metrics.RowsSkippedTotal.WithLabelValues(opts.Backend, "column_count").Inc()
			continue
		}
		if opts.After != "" && cols[etIdx] <= opts.After {
			continue
		}
		if err := rf2.NormalizeRow(schema, cols); err != nil {
			log.Warn("line has invalid value, skipped",
				"file", schema.Filename, "line", lr.LineNumber(), "error", err)
			metrics.RowsSkippedTotal.WithLabelValues(opts.Backend, "format").Inc()
			continue
		}
		key, err := KeyOf(schema, cols)
		if err != nil {
			log.Warn("line has invalid identity, skipped",
				"file", schema.Filename, "line", lr.LineNumber(), "error", err)
			metrics.RowsSkippedTotal.WithLabelValues(opts.Backend, "format").Inc()
			continue
		}
		if err := fn(key, cols); err != nil {
			return stored, err
		}
		stored++
	}
	if err := lr.Err(); err != nil {
		return stored, err
	}
	metrics.RowsIngestedTotal.WithLabelValues(opts.Backend).Add(float64(stored))
	return stored, nil
}

// ScanPrevious reads a previously published RF2 file, handing every split
// data line to fn. A file without a header is ErrEmptyInput.
func ScanPrevious(ctx context.Context, r io.Reader, name string, fn func(line int, cols []string) error) error {
	lr := NewLineReader(r)
	if _, err := lr.Header(); err != nil {
		return fmt.Errorf("previous file %s: %w", name, err)
	}
	for {
		line, ok := lr.Next()
		if !ok {
			break
		}
		if lr.LineNumber()%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if line == "" {
			continue
		}
		if err := fn(lr.LineNumber(), rf2.SplitLine(line)); err != nil {
			return err
		}
	}
	return lr.Err()
}
