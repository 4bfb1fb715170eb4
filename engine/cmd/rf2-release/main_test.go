package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ihtsdo/rf2release/engine/pkg/artifact"
)

func TestRF2_CLI_ParseS3URL(t *testing.T) {
	t.Parallel()

	bucket, prefix, ok := parseS3URL("s3://releases/int/20140731/")
	require.True(t, ok)
	require.Equal(t, "releases", bucket)
	require.Equal(t, "int/20140731", prefix)

	bucket, prefix, ok = parseS3URL("s3://releases")
	require.True(t, ok)
	require.Equal(t, "releases", bucket)
	require.Empty(t, prefix)

	for _, loc := range []string{"/tmp/release", "s3://", "S3:/bucket"} {
		_, _, ok := parseS3URL(loc)
		require.False(t, ok, loc)
	}
}

func TestRF2_CLI_OpenLocalDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l := &locations{}
	loc, err := l.open(t.Context(), dir)
	require.NoError(t, err)
	names, err := loc.List(t.Context())
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestRF2_CLI_MissingInputDirectory(t *testing.T) {
	t.Parallel()

	l := &locations{}
	missing := filepath.Join(t.TempDir(), "inptu")
	_, err := l.open(t.Context(), missing)
	require.ErrorIs(t, err, artifact.ErrNotFound)

	out, err := l.create(t.Context(), filepath.Join(t.TempDir(), "release"))
	require.NoError(t, err)
	names, err := out.List(t.Context())
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestRF2_CLI_ParseIncludedFiles(t *testing.T) {
	t.Parallel()

	files, err := parseIncludedFiles([]string{
		"der2_Refset_OrderedDelta_INT_20140731.txt=der2_Refset_SimpleDelta_INT_20140731.txt, der2_Refset_OtherDelta_INT_20140731.txt",
	})
	require.NoError(t, err)
	require.Equal(t, map[string][]string{
		"der2_Refset_OrderedDelta_INT_20140731.txt": {"der2_Refset_SimpleDelta_INT_20140731.txt", "der2_Refset_OtherDelta_INT_20140731.txt"},
	}, files)

	files, err = parseIncludedFiles(nil)
	require.NoError(t, err)
	require.Nil(t, files)

	for _, bad := range []string{"der2_Refset_OrderedDelta_INT_20140731.txt", "=x.txt", "a.txt= , "} {
		_, err := parseIncludedFiles([]string{bad})
		require.Error(t, err, bad)
	}
}
