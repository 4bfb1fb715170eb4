// Package depgraph orders identifier requests so that every node is assigned
// after the nodes it is derived from.
package depgraph

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrCycle is returned by TopologicalSort when the graph is not acyclic.
	ErrCycle = errors.New("dependency cycle")
	// ErrNoNode is returned when an edge references a node not in the graph.
	ErrNoNode = errors.New("node does not exist")
)

// Graph is a directed graph of string labels. An edge parent -> child means
// the child must come after the parent. Nodes and edges remember the order
// they were added in.
type Graph struct {
	order []string
	index map[string]int
	edges map[string][]string
}

func New() *Graph {
	return &Graph{
		index: make(map[string]int),
		edges: make(map[string][]string),
	}
}

// AddNode adds a node, returning false if it was already present.
func (g *Graph) AddNode(node string) bool {
	if _, ok := g.index[node]; ok {
		return false
	}
	g.index[node] = len(g.order)
	g.order = append(g.order, node)
	return true
}

func (g *Graph) AddNodes(nodes ...string) {
	for _, n := range nodes {
		g.AddNode(n)
	}
}

func (g *Graph) AddEdge(parent, child string) error {
	if err := g.check(parent, child); err != nil {
		return err
	}
	if !slices.Contains(g.edges[parent], child) {
		g.edges[parent] = append(g.edges[parent], child)
	}
	return nil
}

func (g *Graph) RemoveEdge(parent, child string) error {
	if err := g.check(parent, child); err != nil {
		return err
	}
	g.edges[parent] = slices.DeleteFunc(g.edges[parent], func(n string) bool { return n == child })
	return nil
}

func (g *Graph) EdgeExists(parent, child string) bool {
	return slices.Contains(g.edges[parent], child)
}

// EdgesFrom returns the children of node in the order their edges were added.
func (g *Graph) EdgesFrom(node string) ([]string, error) {
	if _, ok := g.index[node]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoNode, node)
	}
	return slices.Clone(g.edges[node]), nil
}

// Nodes returns every node in insertion order.
func (g *Graph) Nodes() []string { return slices.Clone(g.order) }

func (g *Graph) Len() int { return len(g.order) }

func (g *Graph) check(parent, child string) error {
	for _, n := range []string{parent, child} {
		if _, ok := g.index[n]; !ok {
			return fmt.Errorf("%w: %q", ErrNoNode, n)
		}
	}
	return nil
}

// TopologicalSort returns the nodes of g so that every node follows all of
// its ancestors. Among nodes that are ready at the same time the earliest
// added comes first. A cycle yields ErrCycle naming the nodes left unsorted.
func TopologicalSort(g *Graph) ([]string, error) {
	inDegree := make([]int, len(g.order))
	for _, children := range g.edges {
		for _, c := range children {
			inDegree[g.index[c]]++
		}
	}

	// ready holds insertion indexes in ascending order.
	ready := make([]int, 0, len(g.order))
	for i, d := range inDegree {
		if d == 0 {
			ready = append(ready, i)
		}
	}

	result := make([]string, 0, len(g.order))
	for len(ready) > 0 {
		i := ready[0]
		ready = ready[1:]
		node := g.order[i]
		result = append(result, node)
		for _, c := range g.edges[node] {
			ci := g.index[c]
			inDegree[ci]--
			if inDegree[ci] == 0 {
				pos, _ := slices.BinarySearch(ready, ci)
				ready = slices.Insert(ready, pos, ci)
			}
		}
	}

	if len(result) < len(g.order) {
		var remaining []string
		for i, d := range inDegree {
			if d > 0 {
				remaining = append(remaining, g.order[i])
			}
		}
		return nil, fmt.Errorf("%w between %s", ErrCycle, strings.Join(remaining, ", "))
	}
	return result, nil
}
