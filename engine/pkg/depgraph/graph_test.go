package depgraph

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRF2_DepGraph_TopologicalSort(t *testing.T) {
	t.Parallel()

	t.Run("fixture chain", func(t *testing.T) {
		t.Parallel()
		g := New()
		// Added out of order so only the edges can produce the chain.
		g.AddNodes("uuid5", "uuid3", "uuid1", "sct1", "uuid4", "uuid2")
		chain := []string{"sct1", "uuid1", "uuid2", "uuid3", "uuid4", "uuid5"}
		for i := 1; i < len(chain); i++ {
			require.NoError(t, g.AddEdge(chain[i-1], chain[i]))
		}
		got, err := TopologicalSort(g)
		require.NoError(t, err)
		require.Equal(t, chain, got)
	})

	t.Run("ties broken by insertion order", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddNodes("c", "a", "b", "d")
		require.NoError(t, g.AddEdge("b", "d"))
		require.NoError(t, g.AddEdge("c", "d"))
		got, err := TopologicalSort(g)
		require.NoError(t, err)
		require.Equal(t, []string{"c", "a", "b", "d"}, got)
	})

	t.Run("random dag respects every edge", func(t *testing.T) {
		t.Parallel()
		r := rand.New(rand.NewPCG(42, 7))
		for round := range 20 {
			g := New()
			n := 50 + r.IntN(50)
			nodes := make([]string, n)
			for i := range nodes {
				nodes[i] = fmt.Sprintf("n%d", i)
			}
			// Insert in shuffled order; edges only go from lower to higher
			// index so the graph stays acyclic.
			perm := r.Perm(n)
			for _, i := range perm {
				g.AddNode(nodes[i])
			}
			type edge struct{ from, to string }
			var edges []edge
			for i := 0; i < n; i++ {
				for j := i + 1; j < n; j++ {
					if r.IntN(10) == 0 {
						require.NoError(t, g.AddEdge(nodes[i], nodes[j]))
						edges = append(edges, edge{nodes[i], nodes[j]})
					}
				}
			}

			got, err := TopologicalSort(g)
			require.NoError(t, err, "round %d", round)
			require.Len(t, got, n)
			pos := make(map[string]int, n)
			for i, node := range got {
				pos[node] = i
			}
			for _, e := range edges {
				require.Less(t, pos[e.from], pos[e.to], "round %d: %s must precede %s", round, e.from, e.to)
			}
		}
	})

	t.Run("cycle", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddNodes("root", "a", "b")
		require.NoError(t, g.AddEdge("root", "a"))
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "a"))
		_, err := TopologicalSort(g)
		require.ErrorIs(t, err, ErrCycle)
		require.ErrorContains(t, err, "a, b")
	})

	t.Run("empty graph", func(t *testing.T) {
		t.Parallel()
		got, err := TopologicalSort(New())
		require.NoError(t, err)
		require.Empty(t, got)
	})
}

func TestRF2_DepGraph_Graph(t *testing.T) {
	t.Parallel()

	g := New()
	require.True(t, g.AddNode("a"))
	require.False(t, g.AddNode("a"))
	g.AddNode("b")

	require.ErrorIs(t, g.AddEdge("a", "missing"), ErrNoNode)
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("a", "b"))
	edges, err := g.EdgesFrom("a")
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, edges)
	require.True(t, g.EdgeExists("a", "b"))

	require.NoError(t, g.RemoveEdge("a", "b"))
	require.False(t, g.EdgeExists("a", "b"))
	_, err = g.EdgesFrom("missing")
	require.ErrorIs(t, err, ErrNoNode)
	require.Equal(t, []string{"a", "b"}, g.Nodes())
	require.Equal(t, 2, g.Len())
}
