package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formulagraph/internal/registry"
	"formulagraph/internal/types"
)

func f64(f float64) *float64 { return &f }

func TestBuildConstAndScale(t *testing.T) {
	table := NewTable()
	defs, err := table.Build([]Entry{
		{ID: "A", Proc: "const", Value: f64(2.0)},
		{ID: "B", Proc: "scale", Inputs: []string{"A"}, Args: map[string]float64{"factor": 3}},
	})
	require.NoError(t, err)
	require.Len(t, defs, 2)

	v, err := defs[1].Proc(map[types.ID]types.Value{"A": types.Scalar(2.0)})
	require.NoError(t, err)
	got, _ := v.AsScalar()
	assert.Equal(t, 6.0, got)
}

func TestBuildValidation(t *testing.T) {
	table := NewTable()
	tests := []struct {
		name  string
		entry Entry
	}{
		{"unknown proc", Entry{ID: "X", Proc: "fft"}},
		{"const without value", Entry{ID: "X", Proc: "const"}},
		{"const with inputs", Entry{ID: "X", Proc: "const", Value: f64(1), Inputs: []string{"A"}}},
		{"ratio arity", Entry{ID: "X", Proc: "ratio", Inputs: []string{"A"}}},
		{"scale without factor", Entry{ID: "X", Proc: "scale", Inputs: []string{"A"}}},
		{"pow without exponent", Entry{ID: "X", Proc: "pow", Inputs: []string{"A"}}},
		{"sum without inputs", Entry{ID: "X", Proc: "sum"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := table.Build([]Entry{tt.entry})
			assert.Error(t, err)
		})
	}
}

func TestRatioDivisionByZero(t *testing.T) {
	table := NewTable()
	defs, err := table.Build([]Entry{
		{ID: "R", Proc: "ratio", Inputs: []string{"N", "D"}},
	})
	require.NoError(t, err)

	_, err = defs[0].Proc(map[types.ID]types.Value{
		"N": types.Scalar(1), "D": types.Scalar(0),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "division by zero")
}

func TestSqrtDomainError(t *testing.T) {
	table := NewTable()
	defs, err := table.Build([]Entry{
		{ID: "S", Proc: "sqrt", Inputs: []string{"A"}},
	})
	require.NoError(t, err)

	_, err = defs[0].Proc(map[types.ID]types.Value{"A": types.Scalar(-4)})
	assert.Error(t, err)
}

func TestVectorPreservesInputOrder(t *testing.T) {
	table := NewTable()
	defs, err := table.Build([]Entry{
		{ID: "V", Proc: "vector", Inputs: []string{"z", "a"}},
	})
	require.NoError(t, err)

	v, err := defs[0].Proc(map[types.ID]types.Value{
		"a": types.Scalar(1), "z": types.Scalar(2),
	})
	require.NoError(t, err)
	assert.Equal(t, types.Value{2, 1}, v, "components follow declared input order, not id order")
}

func TestRegisterCustomProc(t *testing.T) {
	table := NewTable()
	table.Register("double", func(e Entry) (registry.Proc, error) {
		in := types.ID(e.Inputs[0])
		return func(inputs map[types.ID]types.Value) (types.Value, error) {
			f, _ := inputs[in].AsScalar()
			return types.Scalar(f * 2), nil
		}, nil
	})

	defs, err := table.Build([]Entry{
		{ID: "D", Proc: "double", Inputs: []string{"A"}},
	})
	require.NoError(t, err)
	v, err := defs[0].Proc(map[types.ID]types.Value{"A": types.Scalar(5)})
	require.NoError(t, err)
	got, _ := v.AsScalar()
	assert.Equal(t, 10.0, got)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formulas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
formulas:
  - id: planck.H
    units: "J*s"
    proc: const
    value: 6.62607015e-34
  - id: planck.HBAR
    units: "J*s"
    proc: scale
    inputs: [planck.H]
    args: {factor: 0.15915494309189535}
    experimental: 1.054571817e-34
    tolerance: 0.001
`), 0o644))

	reg, err := NewTable().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	def, err := reg.Get("planck.HBAR")
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"planck.H"}, def.Inputs)
	require.NotNil(t, def.Tolerance)
	assert.Equal(t, 0.001, *def.Tolerance)
}

func TestLoadFileDanglingInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formulas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
formulas:
  - id: lonely.X
    proc: negate
    inputs: [ghost.Y]
`), 0o644))

	_, err := NewTable().LoadFile(path)
	var dangling *registry.DanglingInputError
	require.ErrorAs(t, err, &dangling)
}

func TestLoadAuditPatterns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
alpha.FINE_STRUCTURE: 'fine-structure constant of ([0-9.e-]+)'
planck.H: 'h = ([0-9.e-]+) J'
`), 0o644))

	patterns, err := LoadAuditPatterns(path)
	require.NoError(t, err)
	assert.Len(t, patterns, 2)
	assert.Contains(t, patterns[types.ID("planck.H")], "J")
}
