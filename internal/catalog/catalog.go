// Package catalog loads formula definitions from a YAML catalog file
// and binds each to a numeric procedure from a named procedure table.
// This is the bridge from the declarative configuration source to the
// in-memory registry; the engine itself never touches YAML. Procedures
// are built as closures over the entry's declared constants only, so
// every procedure is a pure function of its inputs map.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"formulagraph/internal/registry"
	"formulagraph/internal/types"
)

// Entry is one formula declaration in the catalog file.
type Entry struct {
	ID     string   `yaml:"id"`
	Units  string   `yaml:"units"`
	Inputs []string `yaml:"inputs"`

	// Proc names a builder in the procedure table.
	Proc string `yaml:"proc"`

	// Value is the constant for proc "const".
	Value *float64 `yaml:"value"`

	// Args holds named constants for parameterized procedures,
	// e.g. {factor: 3} for "scale" or {exponent: 2} for "pow".
	Args map[string]float64 `yaml:"args"`

	Experimental *float64 `yaml:"experimental"`
	Tolerance    *float64 `yaml:"tolerance"`
}

// File is the root of a catalog YAML document.
type File struct {
	Formulas []Entry `yaml:"formulas"`
}

// Builder turns a catalog entry into a pure procedure. Builders must
// close over the entry's constants only; anything else would reintroduce
// hidden state into the derivation graph.
type Builder func(e Entry) (registry.Proc, error)

// Table maps procedure names to builders. A Table starts with the
// built-in arithmetic set; callers register domain-specific procedures
// on top.
type Table struct {
	builders map[string]Builder
}

// NewTable returns a Table preloaded with the built-in procedures.
func NewTable() *Table {
	t := &Table{builders: make(map[string]Builder)}
	for name, b := range builtins {
		t.builders[name] = b
	}
	return t
}

// Register adds or replaces a named builder.
func (t *Table) Register(name string, b Builder) {
	t.builders[name] = b
}

// Build resolves every entry's procedure and returns definitions ready
// for registry.Load.
func (t *Table) Build(entries []Entry) ([]registry.FormulaDefinition, error) {
	defs := make([]registry.FormulaDefinition, 0, len(entries))
	for _, e := range entries {
		builder, ok := t.builders[e.Proc]
		if !ok {
			return nil, fmt.Errorf("formula %q: unknown procedure %q", e.ID, e.Proc)
		}
		proc, err := builder(e)
		if err != nil {
			return nil, fmt.Errorf("formula %q: %w", e.ID, err)
		}
		inputs := make([]types.ID, len(e.Inputs))
		for i, in := range e.Inputs {
			inputs[i] = types.ID(in)
		}
		defs = append(defs, registry.FormulaDefinition{
			ID:                types.ID(e.ID),
			Units:             e.Units,
			Inputs:            inputs,
			Proc:              proc,
			ExperimentalValue: e.Experimental,
			Tolerance:         e.Tolerance,
		})
	}
	return defs, nil
}

// LoadFile reads a catalog YAML file and builds a validated registry
// using the table.
func (t *Table) LoadFile(path string) (*registry.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	defs, err := t.Build(file.Formulas)
	if err != nil {
		return nil, err
	}
	return registry.Load(defs)
}

// LoadAuditPatterns reads an id -> regexp mapping from a YAML file for
// the auditor. The mapping is opaque to the engine; the presentation
// layer owns which literals echo which formulas.
func LoadAuditPatterns(path string) (map[types.ID]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading audit patterns: %w", err)
	}
	raw := make(map[string]string)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing audit patterns: %w", err)
	}
	patterns := make(map[types.ID]string, len(raw))
	for id, p := range raw {
		patterns[types.ID(id)] = p
	}
	return patterns, nil
}
