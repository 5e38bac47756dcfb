// Package registry holds the static catalog of formula definitions.
// A Registry is loaded once, validated (unique ids, no dangling input
// references), and read-only for the rest of the run. It performs no
// computation itself; ordering and execution live in the resolver and
// executor packages.
package registry

import (
	"fmt"

	"formulagraph/internal/types"
)

// Proc is a formula's numeric procedure. It must be a pure function of
// the supplied input map: same inputs, bit-identical result. Procedures
// that read files, globals, or clocks are defects.
type Proc func(inputs map[types.ID]types.Value) (types.Value, error)

// FormulaDefinition describes one named physical quantity.
type FormulaDefinition struct {
	ID     types.ID   // unique symbolic name, e.g. "alpha.FINE_STRUCTURE"
	Units  string     // descriptive only, carried through to export
	Inputs []types.ID // formulas this one depends on; empty for axiomatic formulas
	Proc   Proc

	// ExperimentalValue, when set, is compared against the computed
	// scalar after each successful execution; an out-of-tolerance
	// result yields a validation warning, never a failure.
	ExperimentalValue *float64

	// Tolerance is a relative error bound. It scopes both the
	// experimental comparison above and artifact auditing. Nil means
	// the auditor's default tolerance applies.
	Tolerance *float64
}

// Registry is the immutable catalog of formula definitions for a run.
type Registry struct {
	byID  map[types.ID]*FormulaDefinition
	order []types.ID // registration order, for deterministic iteration
}

// DuplicateIDError reports two definitions sharing an id.
type DuplicateIDError struct {
	ID types.ID
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate formula id %q", e.ID)
}

// DanglingInputError reports a definition whose input references an id
// absent from the catalog.
type DanglingInputError struct {
	ID    types.ID // the dependent formula
	Input types.ID // the missing reference
}

func (e *DanglingInputError) Error() string {
	return fmt.Sprintf("formula %q references unknown input %q", e.ID, e.Input)
}

// NotFoundError reports a lookup of an unregistered id.
type NotFoundError struct {
	ID types.ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("formula %q not found in registry", e.ID)
}

// Load validates the definitions and builds a Registry. It fails on the
// first duplicate id or dangling input reference; a partially valid
// catalog is never returned.
func Load(defs []FormulaDefinition) (*Registry, error) {
	r := &Registry{
		byID:  make(map[types.ID]*FormulaDefinition, len(defs)),
		order: make([]types.ID, 0, len(defs)),
	}
	for i := range defs {
		def := defs[i]
		if _, exists := r.byID[def.ID]; exists {
			return nil, &DuplicateIDError{ID: def.ID}
		}
		r.byID[def.ID] = &def
		r.order = append(r.order, def.ID)
	}
	for _, id := range r.order {
		for _, in := range r.byID[id].Inputs {
			if _, ok := r.byID[in]; !ok {
				return nil, &DanglingInputError{ID: id, Input: in}
			}
		}
	}
	return r, nil
}

// Get returns the definition for id.
func (r *Registry) Get(id types.ID) (*FormulaDefinition, error) {
	def, ok := r.byID[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return def, nil
}

// All returns every definition in registration order. The order is for
// deterministic iteration only; computation order comes from the
// resolver.
func (r *Registry) All() []*FormulaDefinition {
	out := make([]*FormulaDefinition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// IDs returns every registered id in registration order.
func (r *Registry) IDs() []types.ID {
	out := make([]types.ID, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered formulas.
func (r *Registry) Len() int { return len(r.order) }
