// Package resolver turns a registry's declared inputs into a directed
// dependency graph, orders it into topological layers, and detects
// cycles. Layers are the unit of parallelism: every formula in a layer
// has all of its dependencies in strictly earlier layers, so one layer
// can execute concurrently while later layers wait on the barrier.
package resolver

import (
	"fmt"
	"sort"
	"strings"

	"formulagraph/internal/registry"
	"formulagraph/internal/types"
)

// CyclicDependencyError reports a dependency cycle. Cycle holds one
// minimal cycle rotated so its lowest id comes first, which keeps the
// message stable across runs.
type CyclicDependencyError struct {
	Cycle []types.ID
}

func (e *CyclicDependencyError) Error() string {
	parts := make([]string, 0, len(e.Cycle)+1)
	for _, id := range e.Cycle {
		parts = append(parts, string(id))
	}
	if len(e.Cycle) > 0 {
		parts = append(parts, string(e.Cycle[0]))
	}
	return fmt.Sprintf("cyclic dependency: %s", strings.Join(parts, " -> "))
}

// Graph is the resolved dependency graph: topological layers for
// execution plus adjacency maps for invalidation traversal.
type Graph struct {
	layers     [][]types.ID
	downstream map[types.ID][]types.ID // dependency -> dependents
	upstream   map[types.ID][]types.ID // dependent -> dependencies
}

// Resolve builds the graph from the registry's inputs relation and
// computes a Kahn-style topological layering. Ids within a layer are
// sorted ascending for reproducibility. A residual cycle fails with
// CyclicDependencyError before any layer is returned.
func Resolve(reg *registry.Registry) (*Graph, error) {
	g := &Graph{
		downstream: make(map[types.ID][]types.ID),
		upstream:   make(map[types.ID][]types.ID),
	}

	pending := make(map[types.ID]int, reg.Len()) // unresolved input count per formula
	for _, def := range reg.All() {
		pending[def.ID] = len(def.Inputs)
		for _, in := range def.Inputs {
			g.downstream[in] = append(g.downstream[in], def.ID)
			g.upstream[def.ID] = append(g.upstream[def.ID], in)
		}
	}

	// Repeatedly peel off the zero-in-degree frontier.
	remaining := reg.Len()
	resolved := make(map[types.ID]bool, reg.Len())
	for remaining > 0 {
		var layer []types.ID
		for id, n := range pending {
			if n == 0 && !resolved[id] {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			return nil, &CyclicDependencyError{Cycle: g.findCycle(pending, resolved)}
		}
		sort.Slice(layer, func(i, j int) bool { return layer[i] < layer[j] })
		for _, id := range layer {
			resolved[id] = true
			for _, dep := range g.downstream[id] {
				pending[dep]--
			}
		}
		remaining -= len(layer)
		g.layers = append(g.layers, layer)
	}
	return g, nil
}

// Layers returns the topological layering. Callers must not mutate it.
func (g *Graph) Layers() [][]types.ID { return g.layers }

// DirectDependents returns the formulas that list id as an input.
func (g *Graph) DirectDependents(id types.ID) []types.ID {
	deps := g.downstream[id]
	out := make([]types.ID, len(deps))
	copy(out, deps)
	return out
}

// Dependents returns every formula that transitively depends on any of
// the start ids, excluding the starts themselves. Traversal is
// iterative with an explicit stack so deep chains cannot overflow.
func (g *Graph) Dependents(start ...types.ID) []types.ID {
	stack := make([]types.ID, 0, 32)
	visited := make(map[types.ID]bool, 32)
	starts := make(map[types.ID]bool, len(start))
	for _, id := range start {
		stack = append(stack, id)
		starts[id] = true
	}

	var dependents []types.ID
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[current] {
			continue
		}
		visited[current] = true
		if !starts[current] {
			dependents = append(dependents, current)
		}
		for _, dep := range g.downstream[current] {
			if !visited[dep] {
				stack = append(stack, dep)
			}
		}
	}
	sort.Slice(dependents, func(i, j int) bool { return dependents[i] < dependents[j] })
	return dependents
}

// findCycle extracts one cycle from the residual graph left behind by
// an exhausted Kahn pass. Starting from the lowest residual id, it
// walks the lowest unresolved input at each step until a node repeats;
// the repeated segment is the cycle, rotated so its lowest id leads.
func (g *Graph) findCycle(pending map[types.ID]int, resolved map[types.ID]bool) []types.ID {
	var residual []types.ID
	for id, n := range pending {
		if n > 0 && !resolved[id] {
			residual = append(residual, id)
		}
	}
	sort.Slice(residual, func(i, j int) bool { return residual[i] < residual[j] })
	if len(residual) == 0 {
		return nil
	}
	isResidual := make(map[types.ID]bool, len(residual))
	for _, id := range residual {
		isResidual[id] = true
	}

	// Every residual node has at least one residual input, so this walk
	// must revisit a node within len(residual) steps.
	pos := make(map[types.ID]int)
	var path []types.ID
	current := residual[0]
	for {
		if at, seen := pos[current]; seen {
			cycle := append([]types.ID(nil), path[at:]...)
			return rotateLowestFirst(cycle)
		}
		pos[current] = len(path)
		path = append(path, current)

		next := types.ID("")
		for _, in := range g.upstream[current] {
			if isResidual[in] && !resolved[in] && (next == "" || in < next) {
				next = in
			}
		}
		current = next
	}
}

func rotateLowestFirst(cycle []types.ID) []types.ID {
	if len(cycle) == 0 {
		return cycle
	}
	lowest := 0
	for i, id := range cycle {
		if id < cycle[lowest] {
			lowest = i
		}
	}
	out := make([]types.ID, 0, len(cycle))
	out = append(out, cycle[lowest:]...)
	out = append(out, cycle[:lowest]...)
	return out
}
