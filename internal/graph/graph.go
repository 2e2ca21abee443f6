// Package graph implements the directed dependency graph used to
// order unit-of-work writes, with topological sort via Kahn's
// algorithm and first-class cycle detection.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCycle is returned by TopoSort when the graph contains a cycle.
var ErrCycle = errors.New("dependency cycle")

// CycleError lists the nodes involved in a dependency cycle. It
// unwraps to ErrCycle.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle among: %s", strings.Join(e.Nodes, ", "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// Graph is a directed graph over string node IDs. An edge (a, b)
// means a must be ordered before b.
type Graph struct {
	nodes map[string]bool
	succ  map[string]map[string]bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]bool),
		succ:  make(map[string]map[string]bool),
	}
}

// AddNode ensures the node exists. Idempotent.
func (g *Graph) AddNode(id string) {
	g.nodes[id] = true
}

// AddEdge records that before must precede after, adding both nodes.
// Self-edges are a cycle of length one and surface in TopoSort.
func (g *Graph) AddEdge(before, after string) {
	g.AddNode(before)
	g.AddNode(after)
	if g.succ[before] == nil {
		g.succ[before] = make(map[string]bool)
	}
	g.succ[before][after] = true
}

// TopoSort returns the nodes in dependency order. Nodes with no
// ordering constraint between them come out in lexical order, so the
// result is deterministic. Returns a *CycleError when no valid order
// exists.
func (g *Graph) TopoSort() ([]string, error) {
	indeg := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indeg[id] = 0
	}
	for _, succs := range g.succ {
		for to := range succs {
			indeg[to]++
		}
	}

	var ready []string
	for id, d := range indeg {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		unlocked := make([]string, 0, len(g.succ[id]))
		for to := range g.succ[id] {
			indeg[to]--
			if indeg[to] == 0 {
				unlocked = append(unlocked, to)
			}
		}
		sort.Strings(unlocked)
		ready = mergeSorted(ready, unlocked)
	}

	if len(order) != len(g.nodes) {
		var stuck []string
		for id, d := range indeg {
			if d > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, &CycleError{Nodes: stuck}
	}
	return order, nil
}

// mergeSorted merges two sorted slices, preserving order.
func mergeSorted(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
