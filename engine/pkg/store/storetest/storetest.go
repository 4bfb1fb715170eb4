// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ihtsdo/rf2release/engine/pkg/rf2"
	"github.com/ihtsdo/rf2release/engine/pkg/store"
)

// Opener returns a fresh, empty store. The suite closes it.
type Opener func(t *testing.T) store.Store

const (
	ConceptFile    = "sct2_Concept_Delta_INT_20140731.txt"
	ConceptHeader  = "id\teffectiveTime\tactive\tmoduleId\tdefinitionStatusId"
	RefsetFile     = "der2_Refset_SimpleDelta_INT_20140731.txt"
	RefsetHeader   = "id\teffectiveTime\tactive\tmoduleId\trefsetId\treferencedComponentId"
	IdentifierFile = "sct2_Identifier_Delta_INT_20140731.txt"
	IdentifierHdr  = "identifierSchemeId\talternateIdentifier\teffectiveTime\tactive\tmoduleId\treferencedComponentId"
)

// File builds an RF2 file body with CRLF line endings.
func File(header string, lines ...string) *strings.Reader {
	return strings.NewReader(strings.Join(append([]string{header}, lines...), rf2.LineEnding) + rf2.LineEnding)
}

// Run exercises the shared store contract against the backend open returns.
func Run(t *testing.T, open Opener) {
	t.Run("orders by identity then effective time", func(t *testing.T) {
		t.Parallel()
		s := open(t)
		schema, err := s.CreateTable(t.Context(), "/in/"+ConceptFile, File(ConceptHeader,
			"100005\t20140731\t1\t900000000000207008\t900000000000074008",
			"99999\t20140131\ttrue\t900000000000207008\t900000000000074008",
			"100005\t20140131\t0\t900000000000207008\t900000000000074008",
		))
		require.NoError(t, err)
		require.Equal(t, "sct2_Concept_Delta_INT_20140731", schema.TableName)

		rows := selectAll(t, s, schema)
		require.Equal(t, []string{
			"99999\t20140131\t1\t900000000000207008\t900000000000074008",
			"100005\t20140131\t0\t900000000000207008\t900000000000074008",
			"100005\t20140731\t1\t900000000000207008\t900000000000074008",
		}, rows)
	})

	t.Run("later ingest overwrites the same key", func(t *testing.T) {
		t.Parallel()
		s := open(t)
		schema, err := s.CreateTable(t.Context(), ConceptFile, File(ConceptHeader,
			"100005\t20140731\t1\t900000000000207008\t900000000000074008",
			"100005\t20140731\t1\t900000000000207008\t900000000000073002",
		))
		require.NoError(t, err)
		require.Equal(t, []string{
			"100005\t20140731\t1\t900000000000207008\t900000000000073002",
		}, selectAll(t, s, schema))

		require.NoError(t, s.AppendData(t.Context(), schema, File(ConceptHeader,
			"100005\t20140731\t0\t900000000000207008\t900000000000074008",
			"200001\t20140731\t1\t900000000000207008\t900000000000074008",
		)))
		require.Equal(t, []string{
			"100005\t20140731\t0\t900000000000207008\t900000000000074008",
			"200001\t20140731\t1\t900000000000207008\t900000000000074008",
		}, selectAll(t, s, schema))
	})

	t.Run("malformed rows are skipped", func(t *testing.T) {
		t.Parallel()
		s := open(t)
		schema, err := s.CreateTable(t.Context(), ConceptFile, File(ConceptHeader,
			"100005\t20140731\t1\t900000000000207008",
			"notanid\t20140731\t1\t900000000000207008\t900000000000074008",
			"100005\t2014-07-31\t1\t900000000000207008\t900000000000074008",
			"",
			"100005\t20140731\t1\t900000000000207008\t900000000000074008",
		))
		require.NoError(t, err)
		require.Equal(t, []string{
			"100005\t20140731\t1\t900000000000207008\t900000000000074008",
		}, selectAll(t, s, schema))
	})

	t.Run("append after previous effective time", func(t *testing.T) {
		t.Parallel()
		s := open(t)
		schema, err := s.CreateTable(t.Context(), ConceptFile, File(ConceptHeader))
		require.NoError(t, err)
		require.NoError(t, s.AppendDataAfter(t.Context(), schema, File(ConceptHeader,
			"100005\t20140131\t1\t900000000000207008\t900000000000074008",
			"100005\t20140731\t0\t900000000000207008\t900000000000074008",
			"200001\t20130731\t1\t900000000000207008\t900000000000074008",
		), "20140131"))
		require.Equal(t, []string{
			"100005\t20140731\t0\t900000000000207008\t900000000000074008",
		}, selectAll(t, s, schema))
	})

	t.Run("append of empty input is a no-op", func(t *testing.T) {
		t.Parallel()
		s := open(t)
		schema, err := s.CreateTable(t.Context(), ConceptFile, File(ConceptHeader,
			"100005\t20140731\t1\t900000000000207008\t900000000000074008",
		))
		require.NoError(t, err)
		require.NoError(t, s.AppendData(t.Context(), schema, strings.NewReader("")))
		require.Len(t, selectAll(t, s, schema), 1)
	})

	t.Run("select by effective date", func(t *testing.T) {
		t.Parallel()
		s := open(t)
		schema, err := s.CreateTable(t.Context(), ConceptFile, File(ConceptHeader,
			"100005\t20140131\t1\t900000000000207008\t900000000000074008",
			"100005\t20140731\t0\t900000000000207008\t900000000000074008",
			"200001\t20140731\t1\t900000000000207008\t900000000000074008",
		))
		require.NoError(t, err)
		cur, err := s.SelectWithEffectiveDateOrdered(t.Context(), schema, "20140731")
		require.NoError(t, err)
		rows, err := store.Collect(cur)
		require.NoError(t, err)
		require.Equal(t, []string{
			"100005\t20140731\t0\t900000000000207008\t900000000000074008",
			"200001\t20140731\t1\t900000000000207008\t900000000000074008",
		}, rows)
	})

	t.Run("select none", func(t *testing.T) {
		t.Parallel()
		s := open(t)
		schema, err := s.CreateTable(t.Context(), ConceptFile, File(ConceptHeader,
			"100005\t20140131\t1\t900000000000207008\t900000000000074008",
		))
		require.NoError(t, err)
		cur, err := s.SelectNone(t.Context(), schema)
		require.NoError(t, err)
		rows, err := store.Collect(cur)
		require.NoError(t, err)
		require.Empty(t, rows)
	})

	t.Run("refset members canonicalised and ordered by uuid", func(t *testing.T) {
		t.Parallel()
		s := open(t)
		schema, err := s.CreateTable(t.Context(), RefsetFile, File(RefsetHeader,
			"C5C20346-62D2-5FB1-8DF4-82FBDBB4CC49\t20140731\t1\t900000000000207008\t446609009\t100005",
			"81342da0-c3df-5ce2-900a-95fd6be13885\t20140731\t0\t900000000000207008\t446609009\t200001",
		))
		require.NoError(t, err)
		require.Equal(t, []string{
			"81342da0-c3df-5ce2-900a-95fd6be13885\t20140731\t0\t900000000000207008\t446609009\t200001",
			"c5c20346-62d2-5fb1-8df4-82fbdbb4cc49\t20140731\t1\t900000000000207008\t446609009\t100005",
		}, selectAll(t, s, schema))
	})

	t.Run("uuid order is unsigned across the sign bit", func(t *testing.T) {
		t.Parallel()
		s := open(t)
		schema, err := s.CreateTable(t.Context(), RefsetFile, File(RefsetHeader,
			"81000000-0000-4000-8000-000000000000	20140731	1	900000000000207008	446609009	100005",
			"ffffffff-ffff-4fff-bfff-ffffffffffff	20140731	1	900000000000207008	446609009	100005",
			"7fffffff-ffff-4fff-bfff-ffffffffffff	20140731	1	900000000000207008	446609009	100005",
			"00000000-0000-4000-8000-000000000001	20140731	1	900000000000207008	446609009	100005",
			"80000000-0000-4000-8000-000000000000	20140731	1	900000000000207008	446609009	100005",
			"7f000000-0000-4000-8000-00000000007f	20140731	1	900000000000207008	446609009	100005",
			"7f000000-0000-4000-8000-00000000007f	20140131	1	900000000000207008	446609009	100005",
			"7f000000-0000-4000-8000-000000000081	20140731	1	900000000000207008	446609009	100005",
		))
		require.NoError(t, err)
		require.Equal(t, []string{
			"00000000-0000-4000-8000-000000000001	20140731	1	900000000000207008	446609009	100005",
			"7f000000-0000-4000-8000-00000000007f	20140131	1	900000000000207008	446609009	100005",
			"7f000000-0000-4000-8000-00000000007f	20140731	1	900000000000207008	446609009	100005",
			"7f000000-0000-4000-8000-000000000081	20140731	1	900000000000207008	446609009	100005",
			"7fffffff-ffff-4fff-bfff-ffffffffffff	20140731	1	900000000000207008	446609009	100005",
			"80000000-0000-4000-8000-000000000000	20140731	1	900000000000207008	446609009	100005",
			"81000000-0000-4000-8000-000000000000	20140731	1	900000000000207008	446609009	100005",
			"ffffffff-ffff-4fff-bfff-ffffffffffff	20140731	1	900000000000207008	446609009	100005",
		}, selectAll(t, s, schema))
	})

	t.Run("identifier rows keyed by two columns", func(t *testing.T) {
		t.Parallel()
		s := open(t)
		schema, err := s.CreateTable(t.Context(), IdentifierFile, File(IdentifierHdr,
			"900000000000294009\tXU000\t20140731\t1\t900000000000207008\t100005",
			"900000000000294009\tX9000\t20140731\t1\t900000000000207008\t200001",
			"900000000000118003\tZ0000\t20140731\t1\t900000000000207008\t100005",
			"900000000000294009\tX9000\t20140731\t0\t900000000000207008\t200001",
		))
		require.NoError(t, err)
		require.Equal(t, []string{
			"900000000000118003\tZ0000\t20140731\t1\t900000000000207008\t100005",
			"900000000000294009\tX9000\t20140731\t0\t900000000000207008\t200001",
			"900000000000294009\tXU000\t20140731\t1\t900000000000207008\t100005",
		}, selectAll(t, s, schema))
	})

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		s := open(t)
		_, err := s.CreateTable(t.Context(), ConceptFile, strings.NewReader(""))
		require.ErrorIs(t, err, store.ErrEmptyInput)
	})

	t.Run("unrecognised file name", func(t *testing.T) {
		t.Parallel()
		s := open(t)
		_, err := s.CreateTable(t.Context(), "readme.txt", File(ConceptHeader))
		require.ErrorIs(t, err, store.ErrSchemaRecognition)
		require.ErrorIs(t, err, rf2.ErrFileRecognition)
	})

	t.Run("query before create", func(t *testing.T) {
		t.Parallel()
		s := open(t)
		schema, err := rf2.NewSchemaFactory().Recognize(ConceptFile)
		require.NoError(t, err)
		_, err = s.SelectAllOrdered(t.Context(), schema)
		require.ErrorIs(t, err, store.ErrNoTable)
	})

	t.Run("closed store", func(t *testing.T) {
		t.Parallel()
		s := open(t)
		schema, err := s.CreateTable(t.Context(), ConceptFile, File(ConceptHeader))
		require.NoError(t, err)
		require.NoError(t, s.Close())
		_, err = s.SelectAllOrdered(t.Context(), schema)
		require.ErrorIs(t, err, store.ErrClosed)
		_, err = s.CreateTable(t.Context(), ConceptFile, File(ConceptHeader))
		require.ErrorIs(t, err, store.ErrClosed)
		require.ErrorIs(t, s.Close(), store.ErrClosed)
	})

	t.Run("cursor closed early", func(t *testing.T) {
		t.Parallel()
		s := open(t)
		schema, err := s.CreateTable(t.Context(), ConceptFile, File(ConceptHeader,
			"100005\t20140131\t1\t900000000000207008\t900000000000074008",
			"200001\t20140131\t1\t900000000000207008\t900000000000074008",
		))
		require.NoError(t, err)
		cur, err := s.SelectAllOrdered(t.Context(), schema)
		require.NoError(t, err)
		require.True(t, cur.Next())
		require.NoError(t, cur.Close())
		require.False(t, cur.Next())
		require.NoError(t, cur.Close())
	})
}

func selectAll(t *testing.T, s store.Store, schema *rf2.TableSchema) []string {
	t.Helper()
	cur, err := s.SelectAllOrdered(t.Context(), schema)
	require.NoError(t, err)
	rows, err := store.Collect(cur)
	require.NoError(t, err)
	return rows
}
