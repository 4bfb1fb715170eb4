package build

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ihtsdo/rf2release/engine/pkg/artifact"
	"github.com/ihtsdo/rf2release/engine/pkg/idgen"
	"github.com/ihtsdo/rf2release/engine/pkg/store"
	"github.com/ihtsdo/rf2release/engine/pkg/store/memory"
	"github.com/ihtsdo/rf2release/engine/pkg/transform"
	"github.com/ihtsdo/rf2release/engine/pkg/writer"
	rf2testing "github.com/ihtsdo/rf2release/utils/pkg/testing"
)

const (
	conceptHeader      = "id\teffectiveTime\tactive\tmoduleId\tdefinitionStatusId"
	relationshipHeader = "id\teffectiveTime\tactive\tmoduleId\tsourceId\tdestinationId\trelationshipGroup\ttypeId\tcharacteristicTypeId\tmodifierId"
	simpleHeader       = "id\teffectiveTime\tactive\tmoduleId\trefsetId\treferencedComponentId"

	parentUUID = "aaaaaaaa-0000-4000-8000-000000000001"
	childUUID  = "aaaaaaaa-0000-4000-8000-000000000002"
)

type memoryStores struct {
	log *slog.Logger
	// failures makes the first New calls fail with err.
	failures int
	err      error
	opened   int
}

func (f *memoryStores) New(context.Context) (store.Store, error) {
	f.opened++
	if f.failures > 0 {
		f.failures--
		return nil, f.err
	}
	return memory.New(memory.Config{Logger: f.log})
}

func newDir(t *testing.T, files map[string][]string) *artifact.Dir {
	t.Helper()
	d, err := artifact.NewDir(t.TempDir())
	require.NoError(t, err)
	for name, lines := range files {
		require.NoError(t, os.WriteFile(filepath.Join(d.Root(), name), []byte(strings.Join(lines, "\r\n")+"\r\n"), 0o644))
	}
	return d
}

// readRows returns the data rows of an output file, split into columns.
func readRows(t *testing.T, d *artifact.Dir, name string) [][]string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(d.Root(), name))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\r\n"), "\r\n")
	require.NotEmpty(t, lines)
	rows := make([][]string, 0, len(lines)-1)
	for _, l := range lines[1:] {
		rows = append(rows, strings.Split(l, "\t"))
	}
	return rows
}

func newWriter(t *testing.T) *writer.Writer {
	t.Helper()
	w, err := writer.New(writer.Config{Logger: rf2testing.NewLogger()})
	require.NoError(t, err)
	return w
}

func sctidOf(t *testing.T, ids *idgen.CachedFactory, id string) string {
	t.Helper()
	sctid, ok := ids.GetSCTIDFromCache(id)
	require.True(t, ok, id)
	return strconv.FormatInt(sctid, 10)
}

func TestRF2_Build_Runner_FirstTimeRelease(t *testing.T) {
	t.Parallel()

	log := rf2testing.NewLogger()
	ids, err := idgen.NewCachedFactory(idgen.Config{
		Logger:      log,
		Client:      idgen.NewOfflineClient(),
		ReleaseID:   "20140731",
		ExecutionID: "test",
	})
	require.NoError(t, err)
	transforms, err := transform.NewFactory(transform.Config{
		Logger:        log,
		EffectiveTime: "20140731",
		Identifiers:   ids,
	})
	require.NoError(t, err)

	input := newDir(t, map[string][]string{
		"sct2_Concept_Delta_INT_20140731.txt": {
			conceptHeader,
			childUUID + "\t\t1\t900000000000207008\t900000000000074008",
			parentUUID + "\t\t1\t900000000000207008\t900000000000074008",
		},
		"sct2_StatedRelationship_Delta_INT_20140731.txt": {
			relationshipHeader,
			"\t\t1\t900000000000207008\t" + childUUID + "\t" + parentUUID + "\t0\t116680003\t900000000000010007\t900000000000451002",
		},
		"der2_Refset_SimpleDelta_INT_20140731.txt": {
			simpleHeader,
			"\t\t1\t900000000000207008\t723264001\t" + childUUID,
		},
		"readme.md": {"not an rf2 file"},
	})
	output := newDir(t, nil)

	r, err := NewRunner(Config{
		Logger:           log,
		Stores:           &memoryStores{log: log},
		Writer:           newWriter(t),
		Transforms:       transforms,
		Identifiers:      ids,
		Input:            input,
		Output:           output,
		EffectiveTime:    "20140731",
		FirstTimeRelease: true,
		LegacyIDs:        true,
	})
	require.NoError(t, err)
	res, err := r.Run(t.Context())
	require.NoError(t, err)
	require.Empty(t, res.Problems)
	require.Len(t, res.Files, 4)
	require.Equal(t, 2, res.LegacyIDs)

	names, err := output.List(t.Context())
	require.NoError(t, err)
	require.Len(t, names, 12)
	require.Contains(t, names, "sct2_Concept_Full_INT_20140731.txt")
	require.Contains(t, names, "der2_sRefset_SimpleMapSnapshot_INT_20140731.txt")

	parent := sctidOf(t, ids, parentUUID)
	child := sctidOf(t, ids, childUUID)

	t.Run("concepts get sctids and the release date", func(t *testing.T) {
		t.Parallel()
		rows := readRows(t, output, "sct2_Concept_Snapshot_INT_20140731.txt")
		require.Len(t, rows, 2)
		got := []string{rows[0][0], rows[1][0]}
		require.ElementsMatch(t, []string{parent, child}, got)
		for _, row := range rows {
			require.Equal(t, "20140731", row[1])
			require.True(t, strings.HasSuffix(row[0], "001"), row[0])
		}
	})

	t.Run("relationship references resolve to concept sctids", func(t *testing.T) {
		t.Parallel()
		rows := readRows(t, output, "sct2_StatedRelationship_Delta_INT_20140731.txt")
		require.Len(t, rows, 1)
		require.True(t, strings.HasSuffix(rows[0][0], "021"), rows[0][0])
		require.Equal(t, child, rows[0][4])
		require.Equal(t, parent, rows[0][5])
	})

	t.Run("refset members get uuids and resolved components", func(t *testing.T) {
		t.Parallel()
		rows := readRows(t, output, "der2_Refset_SimpleFull_INT_20140731.txt")
		require.Len(t, rows, 1)
		require.Len(t, rows[0][0], 36)
		require.Equal(t, child, rows[0][5])
	})

	t.Run("legacy ids are assigned parents first", func(t *testing.T) {
		t.Parallel()
		rows := readRows(t, output, "der2_sRefset_SimpleMapDelta_INT_20140731.txt")
		require.Len(t, rows, 2)
		targets := map[string]string{}
		for _, row := range rows {
			require.Len(t, row, 7)
			require.Equal(t, "900000000000497000", row[4])
			targets[row[5]] = row[6]
		}
		require.Equal(t, map[string]string{parent: "XUsWA", child: "XUsWB"}, targets)
	})
}

func TestRF2_Build_Runner_SubsequentRelease(t *testing.T) {
	t.Parallel()

	log := rf2testing.NewLogger()
	previousRows := []string{
		conceptHeader,
		"100005\t20140131\t1\t900000000000207008\t900000000000074008",
		"101009\t20140131\t1\t900000000000207008\t900000000000074008",
	}
	previous := newDir(t, map[string][]string{
		"sct2_Concept_Full_INT_20140131.txt":     previousRows,
		"sct2_Concept_Snapshot_INT_20140131.txt": previousRows,
	})
	input := newDir(t, map[string][]string{
		"sct2_Concept_Delta_INT_20140731.txt": {
			conceptHeader,
			"100005\t20140731\t0\t900000000000207008\t900000000000074008",
			"101009\t20140731\t1\t900000000000207008\t900000000000074008",
		},
	})

	build := func(t *testing.T, beta bool) *artifact.Dir {
		output := newDir(t, nil)
		r, err := NewRunner(Config{
			Logger:             log,
			Stores:             &memoryStores{log: log},
			Writer:             newWriter(t),
			Input:              input,
			Output:             output,
			Previous:           previous,
			EffectiveTime:      "20140731",
			WorkbenchDataFixes: true,
			Beta:               beta,
		})
		require.NoError(t, err)
		res, err := r.Run(t.Context())
		require.NoError(t, err)
		require.Len(t, res.Files, 1)
		return output
	}

	t.Run("published states are discarded from the delta", func(t *testing.T) {
		t.Parallel()
		output := build(t, false)

		delta := readRows(t, output, "sct2_Concept_Delta_INT_20140731.txt")
		require.Len(t, delta, 1)
		require.Equal(t, []string{"100005", "20140731", "0", "900000000000207008", "900000000000074008"}, delta[0])

		full := readRows(t, output, "sct2_Concept_Full_INT_20140731.txt")
		require.Len(t, full, 3)

		snapshot := readRows(t, output, "sct2_Concept_Snapshot_INT_20140731.txt")
		require.Equal(t, [][]string{
			{"100005", "20140731", "0", "900000000000207008", "900000000000074008"},
			{"101009", "20140131", "1", "900000000000207008", "900000000000074008"},
		}, snapshot)
	})

	t.Run("beta names", func(t *testing.T) {
		t.Parallel()
		output := build(t, true)
		names, err := output.List(t.Context())
		require.NoError(t, err)
		require.Equal(t, []string{
			"xsct2_Concept_Delta_INT_20140731.txt",
			"xsct2_Concept_Full_INT_20140731.txt",
			"xsct2_Concept_Snapshot_INT_20140731.txt",
		}, names)
	})
}

func TestRF2_Build_Runner_Edition(t *testing.T) {
	t.Parallel()

	log := rf2testing.NewLogger()
	dependency := newDir(t, map[string][]string{
		"sct2_Concept_Delta_INT_20140731.txt": {
			conceptHeader,
			"100005\t20140731\t1\t900000000000207008\t900000000000074008",
		},
	})
	input := newDir(t, map[string][]string{
		"sct2_Concept_Delta_SE1000052_20140731.txt": {
			conceptHeader,
			"45991000052106\t20140731\t1\t45991000052102\t900000000000074008",
		},
		"sct2_Description_Delta-sv_SE1000052_20140731.txt": {
			"id\teffectiveTime\tactive\tmoduleId\tconceptId\tlanguageCode\ttypeId\tterm\tcaseSignificanceId",
			"45991000052118\t20140731\t1\t45991000052102\t45991000052106\tsv\t900000000000013009\tterm\t900000000000448009",
		},
	})
	output := newDir(t, nil)

	r, err := NewRunner(Config{
		Logger:           log,
		Stores:           &memoryStores{log: log},
		Writer:           newWriter(t),
		Input:            input,
		Output:           output,
		Dependency:       dependency,
		EffectiveTime:    "20140731",
		FirstTimeRelease: true,

		PreviousDependencyEffectiveTime: "20140131",
	})
	require.NoError(t, err)
	res, err := r.Run(t.Context())
	require.NoError(t, err)
	require.Len(t, res.Files, 2)

	rows := readRows(t, output, "sct2_Concept_Snapshot_SE1000052_20140731.txt")
	require.Len(t, rows, 2)
	require.Equal(t, "100005", rows[0][0])
	require.Equal(t, "45991000052106", rows[1][0])

	names, err := output.List(t.Context())
	require.NoError(t, err)
	require.Contains(t, names, "sct2_Description_Full-sv_SE1000052_20140731.txt")
	require.Len(t, readRows(t, output, "sct2_Description_Snapshot-sv_SE1000052_20140731.txt"), 1)
}

func TestRF2_Build_Runner_EditionDependencyFull(t *testing.T) {
	t.Parallel()

	log := rf2testing.NewLogger()
	dependency := newDir(t, map[string][]string{
		"sct2_Concept_Full_INT_20140731.txt": {
			conceptHeader,
			"100005\t20130731\t1\t900000000000207008\t900000000000074008",
			"100005\t20140131\t0\t900000000000207008\t900000000000074008",
			"101009\t20140731\t1\t900000000000207008\t900000000000074008",
		},
	})
	input := newDir(t, map[string][]string{
		"sct2_Concept_Delta_SE1000052_20140731.txt": {
			conceptHeader,
			"45991000052106\t20140731\t1\t45991000052102\t900000000000074008",
		},
	})
	output := newDir(t, nil)

	r, err := NewRunner(Config{
		Logger:           log,
		Stores:           &memoryStores{log: log},
		Writer:           newWriter(t),
		Input:            input,
		Output:           output,
		Dependency:       dependency,
		EffectiveTime:    "20140731",
		FirstTimeRelease: true,

		PreviousDependencyEffectiveTime: "20140131",
	})
	require.NoError(t, err)
	_, err = r.Run(t.Context())
	require.NoError(t, err)

	rows := readRows(t, output, "sct2_Concept_Delta_SE1000052_20140731.txt")
	require.Equal(t, [][]string{
		{"101009", "20140731", "1", "900000000000207008", "900000000000074008"},
		{"45991000052106", "20140731", "1", "45991000052102", "900000000000074008"},
	}, rows)
}

func TestRF2_Build_Runner_IncludedFiles(t *testing.T) {
	t.Parallel()

	log := rf2testing.NewLogger()
	previous := newDir(t, map[string][]string{
		"der2_Refset_SimpleFull_INT_20140131.txt": {
			simpleHeader,
			"800aa109-431f-4407-a431-6fe65e9db160\t20140131\t1\t900000000000207008\t723264001\t100005",
		},
	})
	input := newDir(t, map[string][]string{
		"der2_Refset_OrderedDelta_INT_20140731.txt": {
			simpleHeader,
			"c2ffa2b2-1b36-4d8a-9a3a-1c6f9cf5ac4e\t20140731\t1\t900000000000207008\t723264001\t101009",
		},
	})
	output := newDir(t, nil)

	r, err := NewRunner(Config{
		Logger:        log,
		Stores:        &memoryStores{log: log},
		Writer:        newWriter(t),
		Input:         input,
		Output:        output,
		Previous:      previous,
		EffectiveTime: "20140731",
		NewFiles:      []string{"der2_Refset_OrderedDelta_INT_20140731.txt"},
		IncludedFiles: map[string][]string{
			"der2_Refset_OrderedDelta_INT_20140731.txt": {"der2_Refset_SimpleDelta_INT_20140731.txt"},
		},
	})
	require.NoError(t, err)
	_, err = r.Run(t.Context())
	require.NoError(t, err)

	require.Len(t, readRows(t, output, "der2_Refset_OrderedDelta_INT_20140731.txt"), 1)
	full := readRows(t, output, "der2_Refset_OrderedFull_INT_20140731.txt")
	require.Len(t, full, 2)
	require.Equal(t, "800aa109-431f-4407-a431-6fe65e9db160", full[0][0])
	require.Len(t, readRows(t, output, "der2_Refset_OrderedSnapshot_INT_20140731.txt"), 2)
}

func TestRF2_Build_Runner_DeltaSelection(t *testing.T) {
	t.Parallel()

	log := rf2testing.NewLogger()
	input := newDir(t, map[string][]string{
		"sct2_Concept_Delta_INT_20140731.txt": {
			conceptHeader,
			"100005\t20140131\t1\t900000000000207008\t900000000000074008",
			"101009\t20140731\t1\t900000000000207008\t900000000000074008",
		},
	})
	previous := newDir(t, map[string][]string{
		"sct2_Concept_Full_INT_20140131.txt": {
			conceptHeader,
			"100005\t20140131\t1\t900000000000207008\t900000000000074008",
		},
		"sct2_Concept_Snapshot_INT_20140131.txt": {
			conceptHeader,
			"100005\t20140131\t1\t900000000000207008\t900000000000074008",
		},
	})

	t.Run("first time delta can be left empty", func(t *testing.T) {
		t.Parallel()
		output := newDir(t, nil)
		r, err := NewRunner(Config{
			Logger:              log,
			Stores:              &memoryStores{log: log},
			Writer:              newWriter(t),
			Input:               input,
			Output:              output,
			EffectiveTime:       "20140731",
			FirstTimeRelease:    true,
			EmptyFirstTimeDelta: true,
		})
		require.NoError(t, err)
		_, err = r.Run(t.Context())
		require.NoError(t, err)
		require.Empty(t, readRows(t, output, "sct2_Concept_Delta_INT_20140731.txt"))
		require.Len(t, readRows(t, output, "sct2_Concept_Full_INT_20140731.txt"), 2)
	})

	t.Run("rows published in the previous snapshot leave the delta", func(t *testing.T) {
		t.Parallel()
		output := newDir(t, nil)
		r, err := NewRunner(Config{
			Logger:        log,
			Stores:        &memoryStores{log: log},
			Writer:        newWriter(t),
			Input:         input,
			Output:        output,
			Previous:      previous,
			EffectiveTime: "20140731",
		})
		require.NoError(t, err)
		_, err = r.Run(t.Context())
		require.NoError(t, err)

		delta := readRows(t, output, "sct2_Concept_Delta_INT_20140731.txt")
		require.Equal(t, [][]string{{"101009", "20140731", "1", "900000000000207008", "900000000000074008"}}, delta)
		require.Len(t, readRows(t, output, "sct2_Concept_Full_INT_20140731.txt"), 2)
	})
}

func TestRF2_Build_Runner_SnapshotInput(t *testing.T) {
	t.Parallel()

	log := rf2testing.NewLogger()
	snapshot := []string{
		relationshipHeader,
		"200007\t20140131\t1\t900000000000207008\t100005\t138875005\t0\t116680003\t900000000000011006\t900000000000451002",
		"201001\t20140731\t1\t900000000000207008\t101009\t100005\t0\t116680003\t900000000000011006\t900000000000451002",
	}
	previous := newDir(t, map[string][]string{
		"sct2_Relationship_Full_INT_20140131.txt": {
			relationshipHeader,
			"200007\t20140131\t1\t900000000000207008\t100005\t138875005\t0\t116680003\t900000000000011006\t900000000000451002",
		},
	})
	input := newDir(t, map[string][]string{
		"sct2_Relationship_Snapshot_INT_20140731.txt": snapshot,
		"sct2_Concept_Snapshot_INT_20140731.txt":      {conceptHeader},
	})
	output := newDir(t, nil)

	r, err := NewRunner(Config{
		Logger:        log,
		Stores:        &memoryStores{log: log},
		Writer:        newWriter(t),
		Input:         input,
		Output:        output,
		Previous:      previous,
		EffectiveTime: "20140731",
		SnapshotFiles: []string{"sct2_Relationship_Snapshot_INT_20140731.txt"},
	})
	require.NoError(t, err)
	res, err := r.Run(t.Context())
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	require.Equal(t, "sct2_Relationship_Delta_INT_20140731.txt", res.Files[0].Delta)

	delta := readRows(t, output, "sct2_Relationship_Delta_INT_20140731.txt")
	require.Len(t, delta, 1)
	require.Equal(t, "201001", delta[0][0])
	require.Len(t, readRows(t, output, "sct2_Relationship_Snapshot_INT_20140731.txt"), 2)
	require.Len(t, readRows(t, output, "sct2_Relationship_Full_INT_20140731.txt"), 2)

	t.Run("missing snapshot input", func(t *testing.T) {
		t.Parallel()
		r, err := NewRunner(Config{
			Logger:           log,
			Stores:           &memoryStores{log: log},
			Writer:           newWriter(t),
			Input:            input,
			Output:           newDir(t, nil),
			EffectiveTime:    "20140731",
			FirstTimeRelease: true,
			SnapshotFiles:    []string{"sct2_StatedRelationship_Snapshot_INT_20140731.txt"},
		})
		require.NoError(t, err)
		_, err = r.Run(t.Context())
		require.ErrorIs(t, err, artifact.ErrNotFound)
	})
}

func TestRF2_Build_Runner_Retry(t *testing.T) {
	t.Parallel()

	log := rf2testing.NewLogger()
	input := newDir(t, map[string][]string{
		"sct2_Concept_Delta_INT_20140731.txt": {
			conceptHeader,
			"100005\t20140731\t1\t900000000000207008\t900000000000074008",
		},
	})
	run := func(stores *memoryStores) error {
		r, err := NewRunner(Config{
			Logger:           log,
			Stores:           stores,
			Writer:           newWriter(t),
			Input:            input,
			Output:           newDir(t, nil),
			EffectiveTime:    "20140731",
			FirstTimeRelease: true,
			MaxRetries:       2,
		})
		require.NoError(t, err)
		_, err = r.Run(t.Context())
		return err
	}

	t.Run("network failures are retried", func(t *testing.T) {
		t.Parallel()
		stores := &memoryStores{log: log, failures: 2, err: errors.New("connection reset by peer")}
		require.NoError(t, run(stores))
		require.Equal(t, 3, stores.opened)
	})

	t.Run("retries are bounded", func(t *testing.T) {
		t.Parallel()
		stores := &memoryStores{log: log, failures: 3, err: errors.New("connection reset by peer")}
		require.ErrorContains(t, run(stores), "connection reset")
		require.Equal(t, 3, stores.opened)
	})

	t.Run("other failures are not retried", func(t *testing.T) {
		t.Parallel()
		stores := &memoryStores{log: log, failures: 1, err: errors.New("disk full")}
		require.ErrorContains(t, run(stores), "disk full")
		require.Equal(t, 1, stores.opened)
	})
}

func TestRF2_Build_Runner_Errors(t *testing.T) {
	t.Parallel()

	log := rf2testing.NewLogger()
	base := func(input *artifact.Dir) Config {
		return Config{
			Logger:        log,
			Stores:        &memoryStores{log: log},
			Writer:        newWriter(t),
			Input:         input,
			Output:        newDir(t, nil),
			Previous:      newDir(t, nil),
			EffectiveTime: "20140731",
		}
	}

	t.Run("no delta files", func(t *testing.T) {
		t.Parallel()
		r, err := NewRunner(base(newDir(t, map[string][]string{"notes.txt": {"x"}})))
		require.NoError(t, err)
		_, err = r.Run(t.Context())
		require.ErrorIs(t, err, ErrNoDeltaFiles)
	})

	t.Run("missing previous release file", func(t *testing.T) {
		t.Parallel()
		r, err := NewRunner(base(newDir(t, map[string][]string{
			"sct2_Concept_Delta_INT_20140731.txt": {conceptHeader},
		})))
		require.NoError(t, err)
		_, err = r.Run(t.Context())
		require.ErrorIs(t, err, artifact.ErrNotFound)
	})

	t.Run("new files skip the previous release", func(t *testing.T) {
		t.Parallel()
		cfg := base(newDir(t, map[string][]string{
			"sct2_Concept_Delta_INT_20140731.txt": {conceptHeader},
		}))
		cfg.NewFiles = []string{"sct2_Concept_Delta_INT_20140131.txt"}
		r, err := NewRunner(cfg)
		require.NoError(t, err)
		res, err := r.Run(t.Context())
		require.NoError(t, err)
		require.Len(t, res.Files, 1)
	})
}

func TestRF2_Build_Config(t *testing.T) {
	t.Parallel()

	log := rf2testing.NewLogger()
	valid := func() Config {
		return Config{
			Logger:           log,
			Stores:           &memoryStores{log: log},
			Writer:           newWriter(t),
			Input:            newDir(t, nil),
			Output:           newDir(t, nil),
			EffectiveTime:    "20140731",
			FirstTimeRelease: true,
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())
	require.Equal(t, DefaultConcurrency, cfg.Concurrency)
	require.NotNil(t, cfg.Clock)

	for name, mutate := range map[string]func(*Config){
		"no logger":        func(c *Config) { c.Logger = nil },
		"no stores":        func(c *Config) { c.Stores = nil },
		"no writer":        func(c *Config) { c.Writer = nil },
		"no input":         func(c *Config) { c.Input = nil },
		"no output":        func(c *Config) { c.Output = nil },
		"bad date":         func(c *Config) { c.EffectiveTime = "2014-07-31" },
		"no previous":      func(c *Config) { c.FirstTimeRelease = false },
		"legacy ids alone": func(c *Config) { c.LegacyIDs = true },
		"negative retries": func(c *Config) { c.MaxRetries = -1 },
		"dependency without previous dependency date": func(c *Config) { c.Dependency = newDir(t, nil) },
		"included files without previous": func(c *Config) {
			c.IncludedFiles = map[string][]string{"der2_Refset_OrderedDelta_INT_20140731.txt": {"der2_Refset_SimpleDelta_INT_20140731.txt"}}
		},
	} {
		cfg := valid()
		mutate(&cfg)
		require.Error(t, cfg.Validate(), name)
	}
}

func TestRF2_Build_Names(t *testing.T) {
	t.Parallel()

	require.True(t, isDeltaFile("in/sct2_Concept_Delta_INT_20140731.txt"))
	require.False(t, isDeltaFile("sct2_Concept_Full_INT_20140731.txt"))
	require.False(t, isDeltaFile("Delta.zip"))

	require.Equal(t, "sct2_Concept_Full_INT_20140731.txt", fullOrSnapshotName("sct2_Concept_Delta_INT_20140731.txt", "Full"))
	require.Equal(t, "sct2_Description_Snapshot-en_INT_20140731.txt", fullOrSnapshotName("sct2_Description_Delta-en_INT_20140731.txt", "Snapshot"))
	require.Equal(t, "der2_cRefset_AttributeValueFull_INT_20140731.txt", fullOrSnapshotName("der2_cRefset_AttributeValueDelta_INT_20140731.txt", "Full"))

	require.Equal(t, "xsct2_Concept_Delta_INT_20140731.txt", betaName("sct2_Concept_Delta_INT_20140731.txt", true))
	require.Equal(t, "xsct2_Concept_Delta_INT_20140731.txt", betaName("xsct2_Concept_Delta_INT_20140731.txt", true))
	require.Equal(t, "sct2_Concept_Delta_INT_20140731.txt", betaName("sct2_Concept_Delta_INT_20140731.txt", false))

	require.Equal(t, "sct2_Concept_Delta_INT_00000000.txt", dependencyDeltaName("xsct2_Concept_Delta_SE1000052_20140731.txt"))
	require.Equal(t, "odd.txt", dependencyDeltaName("odd.txt"))

	require.Equal(t, "sct2_Relationship_Delta_INT_20140731.txt", renameContentType("sct2_Relationship_Snapshot_INT_20140731.txt", "Snapshot", "Delta"))
	require.Equal(t, "sct2_Concept_Full_INT_00000000.txt", fullOrSnapshotName(dependencyDeltaName("sct2_Concept_Delta_SE1000052_20140731.txt"), "Full"))
}
