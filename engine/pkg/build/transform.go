package build

import (
	"context"
	"fmt"
	"io"
	"path"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/ihtsdo/rf2release/engine/pkg/artifact"
	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
	"github.com/ihtsdo/rf2release/engine/pkg/transform"
)

const preProcessDir = "pre"

// preProcessOrder ranks the files whose identifiers other files refer to.
var preProcessOrder = map[rf2.ComponentType]int{
	rf2.ComponentConcept:            0,
	rf2.ComponentDescription:        1,
	rf2.ComponentStatedRelationship: 2,
}

type stagedFile struct {
	input  string
	src    artifact.Source
	schema *rf2.TableSchema
}

// transform stages every input delta in staging with identifiers minted and
// references resolved, returning the staged names. Concepts, descriptions
// and stated relationships are minted first, one file at a time, so the
// concurrent main pass finds their ids in the identifier cache.
func (r *Runner) transform(ctx context.Context, names []string, staging *artifact.Dir, report *transform.Report) ([]string, error) {
	factory := rf2.NewSchemaFactory()
	files := make([]*stagedFile, 0, len(names))
	for _, name := range names {
		schema, err := factory.Recognize(name)
		if err != nil {
			return nil, err
		}
		files = append(files, &stagedFile{input: name, src: r.cfg.Input, schema: schema})
	}

	pre := slices.Clone(files)
	pre = slices.DeleteFunc(pre, func(f *stagedFile) bool {
		_, ok := preProcessOrder[f.schema.ComponentType]
		return !ok
	})
	slices.SortStableFunc(pre, func(a, b *stagedFile) int {
		return preProcessOrder[a.schema.ComponentType] - preProcessOrder[b.schema.ComponentType]
	})
	for _, f := range pre {
		t, _ := r.cfg.Transforms.PreProcess(f.schema)
		out := path.Join(preProcessDir, path.Base(f.input))
		if err := r.transformFile(ctx, t, f.src, f.input, staging, out, report); err != nil {
			return nil, err
		}
		f.input, f.src = out, staging
	}

	staged := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, f := range files {
		g.Go(func() error {
			t, err := r.cfg.Transforms.ForSchema(f.schema)
			if err != nil {
				return err
			}
			out := betaName(path.Base(f.input), r.cfg.Beta)
			if err := r.transformFile(gctx, t, f.src, f.input, staging, out, report); err != nil {
				return err
			}
			staged[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	r.log.Info("build: transformed input files", "files", len(staged), "pre_processed", len(pre), "problems", report.Len())
	return staged, nil
}

func (r *Runner) transformFile(ctx context.Context, t *transform.StreamingFileTransformation, src artifact.Source, in string, dst artifact.Sink, out string, report *transform.Report) error {
	rc, err := src.Open(ctx, in)
	if err != nil {
		return err
	}
	defer rc.Close()
	return r.write(ctx, dst, out, func(w io.Writer) error {
		if err := t.Transform(ctx, rc, w, path.Base(in), report); err != nil {
			return fmt.Errorf("failed to transform %s: %w", in, err)
		}
		return nil
	})
}
