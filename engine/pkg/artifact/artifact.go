// Package artifact reads build inputs and writes build outputs to a local
// directory or an S3 bucket.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
)

var ErrNotFound = errors.New("artifact not found")

// Source lists and opens named files.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Sink creates named files. Content is only guaranteed to be stored once
// the returned writer is closed without error.
type Sink interface {
	Create(ctx context.Context, name string) (io.WriteCloser, error)
}

// ReleaseKey identifies an RF2 file independently of its release date and
// beta prefix, e.g. sct2_Concept_Full_INT.
func ReleaseKey(name string) string {
	name = strings.TrimPrefix(path.Base(name), rf2.BetaPrefix)
	name = strings.TrimSuffix(name, rf2.TxtFileExtension)
	if i := strings.LastIndex(name, rf2.FileNameSeparator); i >= 0 {
		name = name[:i]
	}
	return name
}

// FindEquivalent opens the file in src that has the same release key as
// name, regardless of its date.
func FindEquivalent(ctx context.Context, src Source, name string) (io.ReadCloser, string, error) {
	names, err := src.List(ctx)
	if err != nil {
		return nil, "", err
	}
	key := ReleaseKey(name)
	for _, n := range names {
		if strings.HasSuffix(n, rf2.TxtFileExtension) && ReleaseKey(n) == key {
			rc, err := src.Open(ctx, n)
			if err != nil {
				return nil, "", err
			}
			return rc, n, nil
		}
	}
	return nil, "", fmt.Errorf("%w: no equivalent of %s", ErrNotFound, name)
}
