package backends_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ihtsdo/rf2release/engine/pkg/store/backends"
	"github.com/ihtsdo/rf2release/engine/pkg/store/memory"
	"github.com/ihtsdo/rf2release/engine/pkg/store/sqlstore"
	rf2testing "github.com/ihtsdo/rf2release/utils/pkg/testing"
)

func TestRF2_Backends_Factory(t *testing.T) {
	t.Parallel()

	t.Run("defaults to memory", func(t *testing.T) {
		t.Parallel()
		f, err := backends.NewFactory(backends.Config{Logger: rf2testing.NewLogger()})
		require.NoError(t, err)
		require.Equal(t, backends.Memory, f.Backend())
		s, err := f.New(t.Context())
		require.NoError(t, err)
		require.IsType(t, &memory.Store{}, s)
		require.NoError(t, s.Close())
	})

	t.Run("duckdb", func(t *testing.T) {
		t.Parallel()
		f, err := backends.NewFactory(backends.Config{Logger: rf2testing.NewLogger(), Backend: backends.DuckDB})
		require.NoError(t, err)
		s, err := f.New(t.Context())
		require.NoError(t, err)
		require.IsType(t, &sqlstore.Store{}, s)
		require.NoError(t, s.Close())
	})

	t.Run("unknown backend", func(t *testing.T) {
		t.Parallel()
		_, err := backends.NewFactory(backends.Config{Logger: rf2testing.NewLogger(), Backend: "mysql"})
		require.Error(t, err)
	})
}
