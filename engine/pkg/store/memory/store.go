package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
	"github.com/ihtsdo/rf2release/engine/pkg/store"
	sorted "github.com/tobshub/go-sortedmap"
)

const backendName = "memory"

type Config struct {
	Logger *slog.Logger
	// WorkbenchDataFixes discards logically duplicate refset members during
	// CreateTable and remembers their composite keys for
	// ReconcileRefsetMemberIds.
	WorkbenchDataFixes bool
	// CustomRefsetCompositeKeys overrides composite key columns by refset id.
	CustomRefsetCompositeKeys map[string][]int
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

type row struct {
	key store.Key
	// value holds the columns after the effective time, pre-joined.
	value string
}

func (r row) line() string {
	return r.key.Identity + rf2.ColumnSeparator + r.key.EffectiveTime + rf2.ColumnSeparator + r.value
}

// Store keeps one table in a sorted map ordered by store.Key.
type Store struct {
	log         *slog.Logger
	cfg         Config
	factory     *rf2.SchemaFactory
	keyPatterns *rf2.CompositeKeyPatternFactory

	schema       *rf2.TableSchema
	table        *sorted.SortedMap[store.Key, row]
	dirtyKeys    map[string]store.Key
	patternCache map[string]*rf2.CompositeKeyPattern
	closed       bool
}

var _ store.Store = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		log:          cfg.Logger,
		cfg:          cfg,
		factory:      rf2.NewSchemaFactory(),
		keyPatterns:  rf2.NewCompositeKeyPatternFactory(cfg.CustomRefsetCompositeKeys),
		table:        newTable(),
		dirtyKeys:    make(map[string]store.Key),
		patternCache: make(map[string]*rf2.CompositeKeyPattern),
	}, nil
}

func newTable() *sorted.SortedMap[store.Key, row] {
	return sorted.New[store.Key, row](0, func(a, b row) bool {
		return a.key.Less(b.key)
	})
}

func (s *Store) put(r row) {
	if !s.table.Insert(r.key, r) {
		s.table.Replace(r.key, r)
	}
}

func (s *Store) CreateTable(ctx context.Context, sourcePath string, r io.Reader) (*rf2.TableSchema, error) {
	if s.closed {
		return nil, store.ErrClosed
	}
	lr := store.NewLineReader(r)
	schema, err := store.ReadSchema(s.factory, sourcePath, lr)
	if err != nil {
		return nil, err
	}
	s.log.Info("memory/store: creating table", "file", schema.Filename)

	s.schema = schema
	s.table = newTable()
	s.dirtyKeys = make(map[string]store.Key)
	s.patternCache = make(map[string]*rf2.CompositeKeyPattern)

	fixes := s.cfg.WorkbenchDataFixes && schema.IsRefset()
	n, err := store.ScanRows(ctx, s.log, schema, lr, store.ScanOptions{Backend: backendName}, func(key store.Key, cols []string) error {
		if fixes {
			if err := s.trackDirtyKey(key, cols); err != nil {
				return err
			}
		}
		s.put(row{key: key, value: valueOf(schema, cols)})
		return nil
	})
	if err != nil {
		s.schema = nil
		return nil, fmt.Errorf("failed to ingest %s: %w", schema.Filename, err)
	}
	s.log.Debug("memory/store: table created", "file", schema.Filename, "rows", n)
	return schema, nil
}

// trackDirtyKey records the composite key of a freshly ingested member. Of two
// logically equivalent members the first is discarded.
func (s *Store) trackDirtyKey(key store.Key, cols []string) error {
	pattern, err := s.compositeKeyPattern(cols[4])
	if err != nil {
		return err
	}
	composite := pattern.Key(cols)
	if prev, ok := s.dirtyKeys[composite]; ok {
		if existing, found := s.table.Get(prev); found {
			s.log.Info("memory/store: duplicate refset member found, discarding the first",
				"first", existing.line(), "second", rf2.JoinLine(cols))
		}
		s.table.Delete(prev)
	}
	s.dirtyKeys[composite] = key
	return nil
}

func (s *Store) compositeKeyPattern(refsetID string) (*rf2.CompositeKeyPattern, error) {
	if p, ok := s.patternCache[refsetID]; ok {
		return p, nil
	}
	p, err := s.keyPatterns.Pattern(s.schema, refsetID)
	if err != nil {
		return nil, err
	}
	s.log.Debug("memory/store: refset composite key", "refset", refsetID, "file", s.schema.Filename, "columns", p.Indexes, "custom", p.Custom)
	s.patternCache[refsetID] = p
	return p, nil
}

func (s *Store) AppendData(ctx context.Context, schema *rf2.TableSchema, r io.Reader) error {
	return s.appendData(ctx, schema, r, "")
}

func (s *Store) AppendDataAfter(ctx context.Context, schema *rf2.TableSchema, r io.Reader, previousEffectiveTime string) error {
	return s.appendData(ctx, schema, r, previousEffectiveTime)
}

func (s *Store) appendData(ctx context.Context, schema *rf2.TableSchema, r io.Reader, after string) error {
	if err := s.check(schema); err != nil {
		return err
	}
	lr := store.NewLineReader(r)
	if _, err := lr.Header(); err != nil {
		if errors.Is(err, store.ErrEmptyInput) {
			return nil
		}
		return err
	}
	n, err := store.ScanRows(ctx, s.log, schema, lr, store.ScanOptions{Backend: backendName, After: after}, func(key store.Key, cols []string) error {
		s.put(row{key: key, value: valueOf(schema, cols)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append to %s: %w", schema.Filename, err)
	}
	s.log.Debug("memory/store: data appended", "file", schema.Filename, "rows", n)
	return nil
}

func (s *Store) SelectAllOrdered(ctx context.Context, schema *rf2.TableSchema) (store.RowCursor, error) {
	if err := s.check(schema); err != nil {
		return nil, err
	}
	return s.iterate(ctx, "")
}

func (s *Store) SelectWithEffectiveDateOrdered(ctx context.Context, schema *rf2.TableSchema, effectiveTime string) (store.RowCursor, error) {
	if err := s.check(schema); err != nil {
		return nil, err
	}
	if effectiveTime == "" {
		return nil, errors.New("effective time is required")
	}
	return s.iterate(ctx, effectiveTime)
}

func (s *Store) SelectNone(ctx context.Context, schema *rf2.TableSchema) (store.RowCursor, error) {
	if err := s.check(schema); err != nil {
		return nil, err
	}
	return store.EmptyCursor(), nil
}

func (s *Store) FindAlreadyPublishedDeltaKeys(ctx context.Context, schema *rf2.TableSchema, previousSnapshot io.Reader) (store.KeySet, error) {
	if err := s.check(schema); err != nil {
		return nil, err
	}
	keys := make(store.KeySet)
	if s.table.Len() == 0 {
		return keys, nil
	}
	byIdentity := make(map[string][]store.Key)
	for _, k := range s.table.Keys() {
		byIdentity[k.Identity] = append(byIdentity[k.Identity], k)
	}
	err := store.ScanPrevious(ctx, previousSnapshot, schema.Filename, func(_ int, cols []string) error {
		normalizeBestEffort(schema, cols)
		identity, et, err := schema.Identity(cols)
		if err != nil {
			return nil
		}
		for _, k := range byIdentity[identity] {
			if et >= k.EffectiveTime {
				keys[k] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) DiscardAlreadyPublishedDeltaStates(ctx context.Context, previousSnapshot io.Reader, currentFilename, effectiveTime string) error {
	if err := s.check(s.schema); err != nil {
		return err
	}
	schema := s.schema
	removed := 0
	err := store.ScanPrevious(ctx, previousSnapshot, currentFilename, func(_ int, cols []string) error {
		if len(cols) != len(schema.Fields) {
			return nil
		}
		normalizeBestEffort(schema, cols)
		identity, _, err := schema.Identity(cols)
		if err != nil {
			return nil
		}
		key, err := store.NewKey(schema, identity, effectiveTime)
		if err != nil {
			return nil
		}
		current, ok := s.table.Get(key)
		if ok && current.value == valueOf(schema, cols) {
			s.log.Debug("memory/store: removing already published delta state", "file", currentFilename, "row", current.line())
			s.table.Delete(key)
			removed++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to discard published delta states of %s: %w", currentFilename, err)
	}
	s.log.Info("memory/store: discarded already published delta states", "file", currentFilename, "rows", removed)
	return nil
}

func (s *Store) ReconcileRefsetMemberIds(ctx context.Context, previousSnapshot io.Reader, currentFilename, effectiveTime string) (*store.WorkaroundReport, error) {
	if err := s.check(s.schema); err != nil {
		return nil, err
	}
	schema := s.schema
	if !schema.IsRefset() {
		return nil, fmt.Errorf("%s is not a reference set file", schema.Filename)
	}
	s.log.Info("memory/store: reconciling refset member ids with previous release", "file", currentFilename)

	report := &store.WorkaroundReport{}
	err := store.ScanPrevious(ctx, previousSnapshot, currentFilename, func(line int, cols []string) error {
		if len(cols) <= 4 {
			return fmt.Errorf("line %d has no refsetId column", line)
		}
		normalizeBestEffort(schema, cols)
		pattern, err := s.compositeKeyPattern(cols[4])
		if err != nil {
			return err
		}
		composite := pattern.Key(cols)
		dirty, ok := s.dirtyKeys[composite]
		if !ok {
			return nil
		}
		report.Matched++
		current, ok := s.table.Get(dirty)
		if !ok {
			report.Problems = append(report.Problems, fmt.Sprintf("no stored member for composite key %q of previous member %s", composite, cols[0]))
			delete(s.dirtyKeys, composite)
			return nil
		}
		key, err := store.NewKey(schema, cols[0], effectiveTime)
		if err != nil {
			report.Problems = append(report.Problems, fmt.Sprintf("line %d: %v", line, err))
			return nil
		}
		s.table.Delete(dirty)
		s.put(row{key: key, value: current.value})
		delete(s.dirtyKeys, composite)
		if key.Identity != dirty.Identity {
			report.Updated++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile member ids of %s: %w", currentFilename, err)
	}
	s.log.Info("memory/store: reconciled refset member ids", "file", currentFilename, "matched", report.Matched, "updated", report.Updated, "problems", len(report.Problems))
	return report, nil
}

func (s *Store) ResolveEmptyValueId(ctx context.Context, previousFile io.Reader, effectiveTime string) (*store.WorkaroundReport, error) {
	if err := s.check(s.schema); err != nil {
		return nil, err
	}
	schema := s.schema
	report := &store.WorkaroundReport{}

	empty := make(map[store.Key]struct{})
	for _, k := range s.table.Keys() {
		r, _ := s.table.Get(k)
		if strings.HasSuffix(r.value, rf2.ColumnSeparator) || r.value == "" {
			empty[k] = struct{}{}
		}
	}
	s.log.Info("memory/store: rows with empty value id", "file", schema.Filename, "count", len(empty))
	if len(empty) == 0 {
		return report, nil
	}

	err := store.ScanPrevious(ctx, previousFile, schema.Filename, func(line int, cols []string) error {
		if len(cols) < 7 {
			return fmt.Errorf("line %d has %d columns, expected at least 7", line, len(cols))
		}
		normalizeBestEffort(schema, cols)
		key, err := store.NewKey(schema, cols[0], effectiveTime)
		if err != nil {
			return nil
		}
		if _, ok := empty[key]; !ok {
			return nil
		}
		delete(empty, key)
		report.Matched++

		current, _ := s.table.Get(key)
		if strings.HasPrefix(current.value, rf2.BooleanTrue+rf2.ColumnSeparator) {
			return nil
		}
		if cols[2] == rf2.BooleanTrue {
			current.value += cols[6]
			s.put(current)
			report.Updated++
		} else {
			s.table.Delete(key)
			report.Removed++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve empty value ids of %s: %w", schema.Filename, err)
	}

	for k := range empty {
		report.Problems = append(report.Problems, fmt.Sprintf("member %s has an empty value id and no previous state", k))
	}
	if len(report.Problems) > 0 {
		s.log.Info("memory/store: rows with empty value id missing from previous release", "file", schema.Filename, "count", len(report.Problems))
	}
	return report, nil
}

func (s *Store) Close() error {
	if s.closed {
		return store.ErrClosed
	}
	s.closed = true
	s.table = nil
	s.dirtyKeys = nil
	s.patternCache = nil
	s.schema = nil
	return nil
}

func (s *Store) check(schema *rf2.TableSchema) error {
	if s.closed {
		return store.ErrClosed
	}
	if schema == nil || s.schema == nil {
		return store.ErrNoTable
	}
	return nil
}

func valueOf(schema *rf2.TableSchema, cols []string) string {
	return rf2.JoinLine(cols[schema.EffectiveTimeIndex()+1:])
}

// normalizeBestEffort normalizes a previous-release row so it compares with
// stored rows. Rows that do not fit the schema are left as they are.
func normalizeBestEffort(schema *rf2.TableSchema, cols []string) {
	if len(cols) != len(schema.Fields) {
		return
	}
	normalized := make([]string, len(cols))
	copy(normalized, cols)
	if rf2.NormalizeRow(schema, normalized) == nil {
		copy(cols, normalized)
	}
}
