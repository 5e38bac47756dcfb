// Package result owns computed values. The Store keeps the single live
// ComputedValue per formula id for the current run and drives
// incremental recomputation: invalidate a changed id and its transitive
// dependents, re-execute exactly that subgraph in layer order, and
// leave every untouched cache entry byte-identical. A SQLite-backed
// archive persists values across runs keyed by registry version.
package result

import (
	"context"
	"sort"
	"sync"

	"formulagraph/internal/executor"
	"formulagraph/internal/registry"
	"formulagraph/internal/resolver"
	"formulagraph/internal/types"
)

// Store holds the current computed value per formula id. It is the only
// shared mutable structure in a run; writes are keyed by id, so
// concurrent writes to different ids never conflict, and the mutex
// linearizes the rare same-id overwrite during recomputation.
type Store struct {
	mu     sync.RWMutex
	values map[types.ID]types.ComputedValue
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{values: make(map[types.ID]types.ComputedValue)}
}

// Put stores the current value for its formula id, superseding any
// previous instance.
func (s *Store) Put(cv types.ComputedValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[cv.FormulaID] = cv
}

// Get returns the current value for id, if any.
func (s *Store) Get(id types.ID) (types.ComputedValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cv, ok := s.values[id]
	return cv, ok
}

// All returns every stored value sorted by formula id.
func (s *Store) All() []types.ComputedValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.ComputedValue, 0, len(s.values))
	for _, cv := range s.values {
		out = append(out, cv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FormulaID < out[j].FormulaID })
	return out
}

// Invalidate marks the stored value for id Stale without deleting it,
// so the superseded value stays inspectable for diagnostics. Unknown
// ids are ignored.
func (s *Store) Invalidate(id types.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cv, ok := s.values[id]
	if !ok {
		return
	}
	cv.Status = types.StatusStale
	s.values[id] = cv
}

// Counts tallies stored values per status.
func (s *Store) Counts() map[types.Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[types.Status]int)
	for _, cv := range s.values {
		counts[cv.Status]++
	}
	return counts
}

// lookup adapts the store to the executor's dependency resolution.
func (s *Store) lookup(id types.ID) (types.ComputedValue, bool) {
	return s.Get(id)
}

// VerifyFingerprints checks every Ok value's fingerprint against the
// fingerprint of its inputs' current values. Mismatches are marked
// Stale and returned sorted; a stale value cannot be consumed or
// exported until recomputed.
func (s *Store) VerifyFingerprints(reg *registry.Registry) []types.ID {
	var stale []types.ID
	for _, def := range reg.All() {
		cv, ok := s.Get(def.ID)
		if !ok || cv.Status != types.StatusOk {
			continue
		}
		inputs := make(map[types.ID]types.Value, len(def.Inputs))
		complete := true
		for _, in := range def.Inputs {
			dep, ok := s.Get(in)
			if !ok || dep.Status != types.StatusOk {
				complete = false
				break
			}
			inputs[in] = dep.Value
		}
		if !complete || types.FingerprintInputs(inputs) != cv.InputsFingerprint {
			s.Invalidate(def.ID)
			stale = append(stale, def.ID)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })
	return stale
}

// RecomputeFrom invalidates changedIDs and every transitive dependent,
// then re-executes exactly the invalidated subgraph layer by layer.
// Formulas outside the subgraph keep their cached values and
// fingerprints untouched. Returns the recomputed ids in execution
// order.
func (s *Store) RecomputeFrom(ctx context.Context, changedIDs []types.ID, reg *registry.Registry, graph *resolver.Graph, exec *executor.Executor) ([]types.ID, error) {
	invalidated := make(map[types.ID]bool, len(changedIDs))
	for _, id := range changedIDs {
		invalidated[id] = true
		s.Invalidate(id)
	}
	for _, id := range graph.Dependents(changedIDs...) {
		invalidated[id] = true
		s.Invalidate(id)
	}

	var recomputed []types.ID
	for _, layer := range graph.Layers() {
		if err := ctx.Err(); err != nil {
			return recomputed, err
		}
		var defs []*registry.FormulaDefinition
		for _, id := range layer {
			if !invalidated[id] {
				continue
			}
			def, err := reg.Get(id)
			if err != nil {
				return recomputed, err
			}
			defs = append(defs, def)
		}
		if len(defs) == 0 {
			continue
		}
		for _, cv := range exec.ExecuteLayer(ctx, defs, s.lookup) {
			s.Put(cv)
			recomputed = append(recomputed, cv.FormulaID)
		}
	}
	return recomputed, nil
}

// ComputeAll executes the whole graph from scratch, invalidating any
// cached values first. Equivalent to RecomputeFrom over every id.
func (s *Store) ComputeAll(ctx context.Context, reg *registry.Registry, graph *resolver.Graph, exec *executor.Executor) ([]types.ID, error) {
	return s.RecomputeFrom(ctx, reg.IDs(), reg, graph, exec)
}
