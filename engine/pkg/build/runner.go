package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ihtsdo/rf2release/engine/pkg/artifact"
	"github.com/ihtsdo/rf2release/engine/pkg/metrics"
	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
	"github.com/ihtsdo/rf2release/engine/pkg/store"
	"github.com/ihtsdo/rf2release/engine/pkg/transform"
	"github.com/ihtsdo/rf2release/utils/pkg/retry"
)

var ErrNoDeltaFiles = errors.New("no delta files to build")

// FileResult describes the outputs written for one delta file.
type FileResult struct {
	Delta    string
	Full     string
	Snapshot string
	Duration time.Duration
	// Workarounds holds reports of the historical-data fixes applied.
	Workarounds map[string]*store.WorkaroundReport
}

type Result struct {
	Files []FileResult
	// Problems lists lines that could not be transformed.
	Problems []transform.Problem
	// LegacyIDs is the number of legacy id map rows added.
	LegacyIDs int
}

type Runner struct {
	log *slog.Logger
	cfg Config
}

func NewRunner(cfg Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Runner{log: cfg.Logger, cfg: cfg}, nil
}

// Run builds every delta file of the input. Files are independent and are
// built concurrently, each in its own store.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	names, snapshots, err := r.inputFiles(ctx)
	if err != nil {
		return nil, err
	}
	r.log.Info("build: starting", "files", len(names), "snapshots", len(snapshots), "effective_time", r.cfg.EffectiveTime, "first_time_release", r.cfg.FirstTimeRelease)

	result := &Result{}
	var src artifact.Source = r.cfg.Input
	deltas := names
	if r.cfg.Transforms != nil && len(names) > 0 {
		staging, cleanup, err := r.staging()
		if err != nil {
			return nil, err
		}
		defer cleanup()

		report := &transform.Report{}
		deltas, err = r.transform(ctx, names, staging, report)
		if err != nil {
			return nil, err
		}
		if r.cfg.LegacyIDs {
			name, n, err := r.assignLegacyIDs(ctx, staging, deltas)
			if err != nil {
				return nil, err
			}
			if n > 0 && !slices.Contains(deltas, name) {
				deltas = append(deltas, name)
			}
			result.LegacyIDs = n
		}
		result.Problems = report.Problems()
		src = staging
	}

	jobs := make([]job, 0, len(deltas)+len(snapshots))
	for _, name := range deltas {
		jobs = append(jobs, job{src: src, name: name, build: r.buildFile})
	}
	for _, name := range snapshots {
		jobs = append(jobs, job{src: r.cfg.Input, name: name, build: r.buildFromSnapshot})
	}
	files, err := r.export(ctx, jobs)
	if err != nil {
		return nil, err
	}
	result.Files = files
	r.log.Info("build: finished", "files", len(files), "problems", len(result.Problems), "legacy_ids", result.LegacyIDs)
	return result, nil
}

// inputFiles lists the delta files of the input and the configured
// snapshot inputs.
func (r *Runner) inputFiles(ctx context.Context) (deltas, snapshots []string, err error) {
	all, err := r.cfg.Input.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list input files: %w", err)
	}
	wanted := make(map[string]bool, len(r.cfg.SnapshotFiles))
	for _, n := range r.cfg.SnapshotFiles {
		wanted[artifact.ReleaseKey(n)] = false
	}
	for _, n := range all {
		key := artifact.ReleaseKey(n)
		if _, ok := wanted[key]; ok && strings.HasSuffix(n, rf2.TxtFileExtension) {
			wanted[key] = true
			snapshots = append(snapshots, n)
			continue
		}
		if isDeltaFile(n) {
			deltas = append(deltas, n)
		}
	}
	for key, found := range wanted {
		if !found {
			return nil, nil, fmt.Errorf("%w: snapshot input %s", artifact.ErrNotFound, key)
		}
	}
	if len(deltas) == 0 && len(snapshots) == 0 {
		return nil, nil, ErrNoDeltaFiles
	}
	return deltas, snapshots, nil
}

func (r *Runner) staging() (*artifact.Dir, func(), error) {
	if r.cfg.StagingDir != "" {
		d, err := artifact.NewDir(r.cfg.StagingDir)
		return d, func() {}, err
	}
	dir, err := os.MkdirTemp("", "rf2-build-*")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	d, err := artifact.NewDir(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, err
	}
	return d, func() { os.RemoveAll(dir) }, nil
}

// job is one input file and the way its release files are built.
type job struct {
	src   artifact.Source
	name  string
	build func(ctx context.Context, src artifact.Source, name string) (FileResult, error)
}

// export builds the release files of each job.
func (r *Runner) export(ctx context.Context, jobs []job) ([]FileResult, error) {
	results := make([]FileResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, j := range jobs {
		g.Go(func() error {
			res, err := r.buildWithRetry(gctx, j)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Runner) buildWithRetry(ctx context.Context, j job) (FileResult, error) {
	cfg := retry.Immediate(r.cfg.MaxRetries + 1)
	cfg.OnRetry = func(attempt int, err error) {
		r.log.Warn("build: file failed, retrying", "file", j.name, "attempt", attempt, "error", err)
	}
	return retry.DoValue(ctx, cfg, func() (FileResult, error) {
		start := r.cfg.Clock.Now()
		res, err := j.build(ctx, j.src, j.name)
		metrics.FileBuildDuration.Observe(r.cfg.Clock.Since(start).Seconds())
		if err != nil {
			metrics.FileBuildsTotal.WithLabelValues("error").Inc()
			return res, fmt.Errorf("failed to build %s: %w", j.name, err)
		}
		metrics.FileBuildsTotal.WithLabelValues("ok").Inc()
		res.Duration = r.cfg.Clock.Since(start)
		return res, nil
	})
}

func (r *Runner) firstTimeRelease(name string) bool {
	if r.cfg.FirstTimeRelease {
		return true
	}
	key := artifact.ReleaseKey(name)
	for _, n := range r.cfg.NewFiles {
		if artifact.ReleaseKey(n) == key {
			return true
		}
	}
	return false
}

func (r *Runner) buildFile(ctx context.Context, src artifact.Source, name string) (res FileResult, err error) {
	deltaName := betaName(path.Base(name), r.cfg.Beta)
	res = FileResult{
		Delta:       deltaName,
		Full:        fullOrSnapshotName(deltaName, rf2.Full),
		Snapshot:    fullOrSnapshotName(deltaName, rf2.Snapshot),
		Workarounds: map[string]*store.WorkaroundReport{},
	}
	firstTime := r.firstTimeRelease(deltaName)
	r.log.Info("build: generating release file", "file", deltaName, "first_time_release", firstTime)

	st, err := r.cfg.Stores.New(ctx)
	if err != nil {
		return res, err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			r.log.Error("build: failed to close store", "file", deltaName, "error", cerr)
		}
	}()

	in, err := src.Open(ctx, name)
	if err != nil {
		return res, err
	}
	schema, err := st.CreateTable(ctx, deltaName, in)
	in.Close()
	if err != nil {
		return res, err
	}

	if r.cfg.Dependency != nil {
		if err := r.appendDependency(ctx, st, schema, deltaName); err != nil {
			return res, err
		}
	}

	var published store.KeySet
	switch {
	case firstTime:
	case r.cfg.WorkbenchDataFixes:
		if err := r.applyWorkarounds(ctx, st, schema, res); err != nil {
			if errors.Is(err, store.ErrUnsupported) {
				return res, fmt.Errorf("workbench data fixes need the memory store: %w", err)
			}
			return res, err
		}
	default:
		if published, err = r.publishedDeltaKeys(ctx, st, schema, res.Snapshot); err != nil {
			return res, err
		}
	}

	err = r.write(ctx, r.cfg.Output, res.Delta, func(w io.Writer) error {
		var cur store.RowCursor
		var err error
		if firstTime && r.cfg.EmptyFirstTimeDelta {
			cur, err = st.SelectNone(ctx, schema)
		} else {
			cur, err = st.SelectAllOrdered(ctx, schema)
		}
		if err != nil {
			return err
		}
		return r.cfg.Writer.ExportDelta(ctx, schema, cur, w, published)
	})
	if err != nil {
		return res, err
	}

	if !firstTime {
		if err := r.appendPrevious(ctx, st, schema, res.Full); err != nil {
			return res, err
		}
	}
	for _, included := range r.includedFiles(deltaName) {
		full := fullOrSnapshotName(path.Base(included), rf2.Full)
		r.log.Info("build: including previous release file", "file", deltaName, "included", full)
		if err := r.appendPrevious(ctx, st, schema, full); err != nil {
			return res, err
		}
	}

	err = r.write(ctx, r.cfg.Output, res.Full, func(full io.Writer) error {
		return r.write(ctx, r.cfg.Output, res.Snapshot, func(snapshot io.Writer) error {
			cur, err := st.SelectAllOrdered(ctx, schema)
			if err != nil {
				return err
			}
			return r.cfg.Writer.ExportFullAndSnapshot(ctx, schema, cur, full, snapshot, r.cfg.EffectiveTime)
		})
	})
	return res, err
}

// write creates name in sink and closes it after fn, keeping the
// first error.
func (r *Runner) write(ctx context.Context, sink artifact.Sink, name string, fn func(w io.Writer) error) error {
	w, err := sink.Create(ctx, name)
	if err != nil {
		return err
	}
	err = fn(w)
	if cerr := w.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("failed to store %s: %w", name, cerr)
	}
	return err
}

// buildFromSnapshot derives the Delta and Full of a Snapshot input. The
// Delta holds the rows stamped with the release date.
func (r *Runner) buildFromSnapshot(ctx context.Context, src artifact.Source, name string) (res FileResult, err error) {
	snapshotName := betaName(path.Base(name), r.cfg.Beta)
	res = FileResult{
		Delta:    renameContentType(snapshotName, rf2.Snapshot, rf2.Delta),
		Full:     renameContentType(snapshotName, rf2.Snapshot, rf2.Full),
		Snapshot: snapshotName,
	}
	firstTime := r.firstTimeRelease(res.Delta)
	r.log.Info("build: generating delta and full from snapshot", "file", snapshotName, "first_time_release", firstTime)

	st, err := r.cfg.Stores.New(ctx)
	if err != nil {
		return res, err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			r.log.Error("build: failed to close store", "file", snapshotName, "error", cerr)
		}
	}()

	in, err := src.Open(ctx, name)
	if err != nil {
		return res, err
	}
	schema, err := st.CreateTable(ctx, snapshotName, in)
	in.Close()
	if err != nil {
		return res, err
	}

	err = r.write(ctx, r.cfg.Output, res.Delta, func(w io.Writer) error {
		cur, err := st.SelectWithEffectiveDateOrdered(ctx, schema, r.cfg.EffectiveTime)
		if err != nil {
			return err
		}
		return r.cfg.Writer.ExportDelta(ctx, schema, cur, w, nil)
	})
	if err != nil {
		return res, err
	}
	if err := r.exportFull(ctx, st, schema, res.Snapshot); err != nil {
		return res, err
	}

	if !firstTime {
		if err := r.appendPrevious(ctx, st, schema, res.Full); err != nil {
			return res, err
		}
	}
	return res, r.exportFull(ctx, st, schema, res.Full)
}

func (r *Runner) exportFull(ctx context.Context, st store.Store, schema *rf2.TableSchema, name string) error {
	return r.write(ctx, r.cfg.Output, name, func(w io.Writer) error {
		cur, err := st.SelectAllOrdered(ctx, schema)
		if err != nil {
			return err
		}
		return r.cfg.Writer.ExportFull(ctx, schema, cur, w)
	})
}

// appendDependency merges the dependency release's equivalent of a file.
// Without a dependency Delta, the Full rows published since the previous
// edition's dependency are used.
func (r *Runner) appendDependency(ctx context.Context, st store.Store, schema *rf2.TableSchema, deltaName string) error {
	equivalent := dependencyDeltaName(deltaName)
	rc, found, err := artifact.FindEquivalent(ctx, r.cfg.Dependency, equivalent)
	if err == nil {
		defer rc.Close()
		r.log.Info("build: appending dependency delta", "file", deltaName, "from", found)
		return st.AppendData(ctx, schema, rc)
	}
	if !errors.Is(err, artifact.ErrNotFound) {
		return err
	}

	rc, found, err = artifact.FindEquivalent(ctx, r.cfg.Dependency, fullOrSnapshotName(equivalent, rf2.Full))
	if errors.Is(err, artifact.ErrNotFound) {
		// Extension refsets have no equivalent in the dependency.
		r.log.Info("build: no equivalent file in the dependency release", "file", deltaName)
		return nil
	}
	if err != nil {
		return err
	}
	defer rc.Close()
	start := r.cfg.Clock.Now()
	if err := st.AppendDataAfter(ctx, schema, rc, r.cfg.PreviousDependencyEffectiveTime); err != nil {
		return err
	}
	r.log.Info("build: appended dependency full rows", "file", deltaName, "from", found, "after", r.cfg.PreviousDependencyEffectiveTime, "duration", r.cfg.Clock.Since(start))
	return nil
}

func (r *Runner) includedFiles(deltaName string) []string {
	key := artifact.ReleaseKey(deltaName)
	for name, included := range r.cfg.IncludedFiles {
		if artifact.ReleaseKey(name) == key {
			return included
		}
	}
	return nil
}

// publishedDeltaKeys finds input rows the previous snapshot already
// published at the same or a later date. Backends that cannot tell keep
// every row.
func (r *Runner) publishedDeltaKeys(ctx context.Context, st store.Store, schema *rf2.TableSchema, snapshotName string) (store.KeySet, error) {
	rc, _, err := artifact.FindEquivalent(ctx, r.cfg.Previous, snapshotName)
	if err != nil {
		return nil, fmt.Errorf("previous release: %w", err)
	}
	defer rc.Close()
	keys, err := st.FindAlreadyPublishedDeltaKeys(ctx, schema, rc)
	if errors.Is(err, store.ErrUnsupported) {
		r.log.Debug("build: store cannot find published delta rows", "file", schema.Filename)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(keys) > 0 {
		r.log.Info("build: leaving published rows out of the delta", "file", schema.Filename, "rows", len(keys))
	}
	return keys, nil
}

func (r *Runner) appendPrevious(ctx context.Context, st store.Store, schema *rf2.TableSchema, fullName string) error {
	rc, found, err := artifact.FindEquivalent(ctx, r.cfg.Previous, fullName)
	if err != nil {
		return fmt.Errorf("previous release: %w", err)
	}
	defer rc.Close()
	r.log.Debug("build: appending previous full", "file", fullName, "from", found)
	return st.AppendData(ctx, schema, rc)
}

// applyWorkarounds corrects data authored in the workbench against the
// previous snapshot. Each fix re-reads the snapshot.
func (r *Runner) applyWorkarounds(ctx context.Context, st store.Store, schema *rf2.TableSchema, res FileResult) error {
	withSnapshot := func(fn func(io.Reader) error) error {
		rc, _, err := artifact.FindEquivalent(ctx, r.cfg.Previous, res.Snapshot)
		if err != nil {
			return fmt.Errorf("previous release: %w", err)
		}
		defer rc.Close()
		return fn(rc)
	}
	et := r.cfg.EffectiveTime

	if schema.IsRefset() {
		err := withSnapshot(func(prev io.Reader) error {
			rep, err := st.ReconcileRefsetMemberIds(ctx, prev, res.Delta, et)
			res.Workarounds["reconcile_refset_member_ids"] = rep
			return err
		})
		if err != nil {
			return err
		}
	}
	if schema.FileIs(rf2.AttributeValueFileIdentifier) {
		err := withSnapshot(func(prev io.Reader) error {
			rep, err := st.ResolveEmptyValueId(ctx, prev, et)
			res.Workarounds["resolve_empty_value_id"] = rep
			return err
		})
		if err != nil {
			return err
		}
	}
	return withSnapshot(func(prev io.Reader) error {
		return st.DiscardAlreadyPublishedDeltaStates(ctx, prev, res.Delta, et)
	})
}
