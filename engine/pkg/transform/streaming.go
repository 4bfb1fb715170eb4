package transform

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ihtsdo/rf2release/engine/pkg/metrics"
	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
	"github.com/ihtsdo/rf2release/engine/pkg/store"
)

const DefaultBufferSize = 10_000

// Problem is a line or batch that could not be transformed.
type Problem struct {
	File    string
	Line    int
	Message string
}

// Report collects transformation problems across files. It is safe for
// concurrent use.
type Report struct {
	mu       sync.Mutex
	problems []Problem
}

func (r *Report) Add(p Problem) {
	r.mu.Lock()
	r.problems = append(r.problems, p)
	r.mu.Unlock()
	metrics.TransformErrorsTotal.Inc()
}

func (r *Report) Problems() []Problem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Problem(nil), r.problems...)
}

func (r *Report) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.problems)
}

type step struct {
	line  LineTransformation
	batch BatchTransformation
}

// StreamingFileTransformation applies an ordered list of transformations to
// an RF2 file, buffering BufferSize lines at a time so batch transformations
// can resolve identifiers in bulk.
type StreamingFileTransformation struct {
	log        *slog.Logger
	bufferSize int
	steps      []step
}

func NewStreamingFileTransformation(log *slog.Logger, bufferSize int) *StreamingFileTransformation {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &StreamingFileTransformation{log: log, bufferSize: bufferSize}
}

func (s *StreamingFileTransformation) Add(t LineTransformation) *StreamingFileTransformation {
	s.steps = append(s.steps, step{line: t})
	return s
}

// AddBatch adds a transformation that sees the whole buffer at once.
func (s *StreamingFileTransformation) AddBatch(t BatchTransformation) *StreamingFileTransformation {
	s.steps = append(s.steps, step{batch: t})
	return s
}

// Prepend adds a line transformation that runs before all others.
func (s *StreamingFileTransformation) Prepend(t LineTransformation) *StreamingFileTransformation {
	s.steps = append([]step{{line: t}}, s.steps...)
	return s
}

func (s *StreamingFileTransformation) Len() int { return len(s.steps) }

// Transform copies r to w with every data line transformed. The header is
// passed through and lines are written with CRLF endings. Transformation
// failures are added to report; read, write and context errors end the run.
func (s *StreamingFileTransformation) Transform(ctx context.Context, r io.Reader, w io.Writer, fileName string, report *Report) error {
	s.log.Info("transform: starting", "file", fileName, "buffer_size", s.bufferSize)

	lr := store.NewLineReader(r)
	bw := bufio.NewWriterSize(w, 64*1024)

	header, err := lr.Header()
	if err != nil {
		return fmt.Errorf("failed to read header of %s: %w", fileName, err)
	}
	if _, err := bw.WriteString(header + rf2.LineEnding); err != nil {
		return fmt.Errorf("failed to write %s: %w", fileName, err)
	}

	buf := make([][]string, 0, s.bufferSize)
	lines := 0
	for {
		line, ok := lr.Next()
		if !ok {
			break
		}
		if line == "" {
			continue
		}
		buf = append(buf, rf2.SplitLine(line))
		if len(buf) == s.bufferSize {
			if err := s.flush(ctx, bw, buf, fileName, lr.LineNumber(), report); err != nil {
				return err
			}
			lines += len(buf)
			buf = buf[:0]
		}
	}
	if err := lr.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", fileName, err)
	}
	if len(buf) > 0 {
		if err := s.flush(ctx, bw, buf, fileName, lr.LineNumber(), report); err != nil {
			return err
		}
		lines += len(buf)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", fileName, err)
	}
	s.log.Info("transform: finished", "file", fileName, "lines", lines)
	return nil
}

func (s *StreamingFileTransformation) flush(ctx context.Context, w *bufio.Writer, rows [][]string, fileName string, lastLine int, report *Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	firstLine := lastLine - len(rows) + 1
	for _, st := range s.steps {
		if st.batch != nil {
			if err := st.batch.TransformLines(ctx, rows); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.log.Warn("transform: batch failed", "file", fileName, "first_line", firstLine, "last_line", lastLine, "error", err)
				report.Add(Problem{File: fileName, Line: lastLine, Message: err.Error()})
			}
			continue
		}
		for i, cols := range rows {
			if err := st.line.TransformLine(ctx, cols); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				s.log.Warn("transform: line failed", "file", fileName, "line", firstLine+i, "error", err)
				report.Add(Problem{File: fileName, Line: firstLine + i, Message: err.Error()})
			}
		}
	}
	for _, cols := range rows {
		if _, err := w.WriteString(rf2.JoinLine(cols) + rf2.LineEnding); err != nil {
			return fmt.Errorf("failed to write %s: %w", fileName, err)
		}
	}
	return nil
}
