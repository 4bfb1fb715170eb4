package writer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ihtsdo/rf2release/engine/pkg/metrics"
	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
	"github.com/ihtsdo/rf2release/engine/pkg/store"
)

const (
	OutputDelta    = "delta"
	OutputFull     = "full"
	OutputSnapshot = "snapshot"

	ctxCheckInterval = 1000
)

type Config struct {
	Logger *slog.Logger
	// ExcludeRefsetDescriptorMembers drops refset descriptor rows by member id.
	ExcludeRefsetDescriptorMembers []string
	// ExcludeLanguageRefsetIDs drops language refset rows by refset id.
	ExcludeLanguageRefsetIDs []string
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Writer streams ordered store rows into RF2 Delta, Full and Snapshot files.
type Writer struct {
	log                 *slog.Logger
	descriptorExclusion map[string]struct{}
	languageExclusion   map[string]struct{}
}

func New(cfg Config) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Writer{
		log:                 cfg.Logger,
		descriptorExclusion: toSet(cfg.ExcludeRefsetDescriptorMembers),
		languageExclusion:   toSet(cfg.ExcludeLanguageRefsetIDs),
	}, nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

// ExportDelta writes the header and every row of cur that is neither
// excluded nor in discard.
func (w *Writer) ExportDelta(ctx context.Context, schema *rf2.TableSchema, cur store.RowCursor, out io.Writer, discard store.KeySet) error {
	return w.copyRows(ctx, schema, cur, out, OutputDelta, discard)
}

// ExportFull writes the header and every non-excluded row of cur.
func (w *Writer) ExportFull(ctx context.Context, schema *rf2.TableSchema, cur store.RowCursor, out io.Writer) error {
	return w.copyRows(ctx, schema, cur, out, OutputFull, nil)
}

func (w *Writer) copyRows(ctx context.Context, schema *rf2.TableSchema, cur store.RowCursor, out io.Writer, output string, discard store.KeySet) error {
	defer cur.Close()
	rw := newRowWriter(out, schema, output)
	filter := w.exclusionFilter(schema)
	n := 0
	for cur.Next() {
		n++
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		line := cur.Row()
		cols := rf2.SplitLine(line)
		if filter(cols) {
			continue
		}
		if len(discard) > 0 {
			key, err := store.KeyOf(schema, cols)
			if err != nil {
				return fmt.Errorf("invalid row in %s: %w", schema.Filename, err)
			}
			if discard.Contains(key) {
				continue
			}
		}
		if err := rw.write(line); err != nil {
			return err
		}
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("failed to read rows of %s: %w", schema.Filename, err)
	}
	if err := rw.flush(); err != nil {
		return err
	}
	w.log.Debug("writer: exported", "file", schema.Filename, "output", output, "rows", rw.rows)
	return nil
}

// ExportFullAndSnapshot copies every non-excluded row to full and, per
// identity, the latest row dated on or before targetEffectiveTime to snapshot.
func (w *Writer) ExportFullAndSnapshot(ctx context.Context, schema *rf2.TableSchema, cur store.RowCursor, full, snapshot io.Writer, targetEffectiveTime string) error {
	defer cur.Close()
	if _, err := rf2.ParseDate(targetEffectiveTime); err != nil {
		return fmt.Errorf("target effective time: %w", err)
	}
	fw := newRowWriter(full, schema, OutputFull)
	sw := newRowWriter(snapshot, schema, OutputSnapshot)
	filter := w.exclusionFilter(schema)

	var (
		lastIdentity string
		validLine    string
		started      bool
		pending      bool
		n            int
	)
	flush := func() error {
		if !pending {
			return nil
		}
		pending = false
		return sw.write(validLine)
	}

	for cur.Next() {
		n++
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		line := cur.Row()
		cols := rf2.SplitLine(line)
		if filter(cols) {
			continue
		}
		identity, effectiveTime, err := schema.Identity(cols)
		if err != nil {
			return fmt.Errorf("invalid row in %s: %w", schema.Filename, err)
		}
		if err := fw.write(line); err != nil {
			return err
		}

		passedTarget := effectiveTime > targetEffectiveTime
		if (started && identity != lastIdentity) || passedTarget {
			if err := flush(); err != nil {
				return err
			}
		}
		if !passedTarget {
			validLine = line
			pending = true
		}
		lastIdentity = identity
		started = true
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("failed to read rows of %s: %w", schema.Filename, err)
	}
	if err := flush(); err != nil {
		return err
	}
	if err := fw.flush(); err != nil {
		return err
	}
	if err := sw.flush(); err != nil {
		return err
	}
	w.log.Debug("writer: exported full and snapshot", "file", schema.Filename, "full", fw.rows, "snapshot", sw.rows)
	return nil
}

// exclusionFilter reports whether a split row must be left out of every
// output. Identifier files are never filtered.
func (w *Writer) exclusionFilter(schema *rf2.TableSchema) func(cols []string) bool {
	if schema.ComponentType == rf2.ComponentIdentifier {
		return func([]string) bool { return false }
	}
	descriptor := len(w.descriptorExclusion) > 0 && schema.FileIs(rf2.RefsetDescriptorFileIdentifier)
	language := len(w.languageExclusion) > 0 && schema.IsRefset() && schema.FileIs(rf2.LanguageFileIdentifier)
	if !descriptor && !language {
		return func([]string) bool { return false }
	}
	return func(cols []string) bool {
		excluded := false
		if descriptor {
			_, excluded = w.descriptorExclusion[cols[0]]
		}
		if !excluded && language && len(cols) > 4 {
			_, excluded = w.languageExclusion[cols[4]]
		}
		if excluded {
			metrics.RowsExcludedTotal.Inc()
		}
		return excluded
	}
}

// rowWriter buffers one output and writes the header before the first row.
type rowWriter struct {
	bw     *bufio.Writer
	output string
	rows   int
}

func newRowWriter(out io.Writer, schema *rf2.TableSchema, output string) *rowWriter {
	rw := &rowWriter{bw: bufio.NewWriterSize(out, 64*1024), output: output}
	// Header write errors surface on the first flush.
	_, _ = rw.bw.WriteString(schema.Header() + rf2.LineEnding)
	return rw
}

func (rw *rowWriter) write(line string) error {
	if _, err := rw.bw.WriteString(line); err != nil {
		return fmt.Errorf("failed to write %s row: %w", rw.output, err)
	}
	if _, err := rw.bw.WriteString(rf2.LineEnding); err != nil {
		return fmt.Errorf("failed to write %s row: %w", rw.output, err)
	}
	rw.rows++
	return nil
}

func (rw *rowWriter) flush() error {
	if err := rw.bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s output: %w", rw.output, err)
	}
	metrics.RowsExportedTotal.WithLabelValues(rw.output).Add(float64(rw.rows))
	return nil
}
