package result

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formulagraph/internal/executor"
	"formulagraph/internal/registry"
	"formulagraph/internal/resolver"
	"formulagraph/internal/types"
)

func constProc(f float64) registry.Proc {
	return func(map[types.ID]types.Value) (types.Value, error) {
		return types.Scalar(f), nil
	}
}

func scaleProc(input types.ID, factor float64) registry.Proc {
	return func(inputs map[types.ID]types.Value) (types.Value, error) {
		v, ok := inputs[input].AsScalar()
		if !ok {
			return nil, errors.New("expected scalar input")
		}
		return types.Scalar(v * factor), nil
	}
}

// A / B / C chain plus an unrelated D, used across the recompute tests.
func chainRegistry(t *testing.T, aConst float64) (*registry.Registry, *resolver.Graph) {
	t.Helper()
	reg, err := registry.Load([]registry.FormulaDefinition{
		{ID: "A", Proc: constProc(aConst)},
		{ID: "B", Inputs: []types.ID{"A"}, Proc: scaleProc("A", 3)},
		{ID: "C", Inputs: []types.ID{"B"}, Proc: scaleProc("B", 10)},
		{ID: "D", Proc: constProc(42)},
	})
	require.NoError(t, err)
	graph, err := resolver.Resolve(reg)
	require.NoError(t, err)
	return reg, graph
}

func TestPutGetSupersedes(t *testing.T) {
	s := NewStore()
	s.Put(types.ComputedValue{FormulaID: "A", Status: types.StatusOk, Value: types.Scalar(1)})
	s.Put(types.ComputedValue{FormulaID: "A", Status: types.StatusOk, Value: types.Scalar(2)})

	cv, ok := s.Get("A")
	require.True(t, ok)
	got, _ := cv.Value.AsScalar()
	assert.Equal(t, 2.0, got, "second Put must supersede the first")
}

func TestInvalidateKeepsValueInspectable(t *testing.T) {
	s := NewStore()
	s.Put(types.ComputedValue{FormulaID: "A", Status: types.StatusOk, Value: types.Scalar(7)})
	s.Invalidate("A")

	cv, ok := s.Get("A")
	require.True(t, ok, "stale values must stay readable for diagnostics")
	assert.Equal(t, types.StatusStale, cv.Status)
	got, _ := cv.Value.AsScalar()
	assert.Equal(t, 7.0, got)

	// Invalidating an unknown id is a no-op.
	s.Invalidate("nope")
	_, ok = s.Get("nope")
	assert.False(t, ok)
}

func TestComputeAll(t *testing.T) {
	reg, graph := chainRegistry(t, 2.0)
	s := NewStore()
	exec := executor.New(0, 2, nil)

	ids, err := s.ComputeAll(context.Background(), reg, graph, exec)
	require.NoError(t, err)
	assert.Len(t, ids, 4)

	b, ok := s.Get("B")
	require.True(t, ok)
	assert.Equal(t, types.StatusOk, b.Status)
	got, _ := b.Value.AsScalar()
	assert.Equal(t, 6.0, got)

	c, _ := s.Get("C")
	got, _ = c.Value.AsScalar()
	assert.Equal(t, 60.0, got)
}

func TestRecomputeFromTouchesOnlyDependents(t *testing.T) {
	reg, graph := chainRegistry(t, 2.0)
	s := NewStore()
	exec := executor.New(0, 2, nil)
	_, err := s.ComputeAll(context.Background(), reg, graph, exec)
	require.NoError(t, err)

	dBefore, _ := s.Get("D")

	// Swap A's constant from 2.0 to 3.0, as a changed upstream value.
	reg2, graph2 := chainRegistry(t, 3.0)
	recomputed, err := s.RecomputeFrom(context.Background(), []types.ID{"A"}, reg2, graph2, exec)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"A", "B", "C"}, recomputed)

	b, _ := s.Get("B")
	got, _ := b.Value.AsScalar()
	assert.Equal(t, 9.0, got, "B must pick up A's new value")

	dAfter, _ := s.Get("D")
	if diff := cmp.Diff(dBefore, dAfter); diff != "" {
		t.Errorf("unrelated D changed during localized recompute (-before +after):\n%s", diff)
	}
	assert.Equal(t, dBefore.InputsFingerprint, dAfter.InputsFingerprint,
		"unrelated fingerprints must be byte-identical")
}

func TestRecomputeFromFingerprintsChangeOnlyInSubgraph(t *testing.T) {
	reg, graph := chainRegistry(t, 2.0)
	s := NewStore()
	exec := executor.New(0, 1, nil)
	_, err := s.ComputeAll(context.Background(), reg, graph, exec)
	require.NoError(t, err)

	before := map[types.ID]string{}
	for _, cv := range s.All() {
		before[cv.FormulaID] = cv.InputsFingerprint
	}

	reg2, graph2 := chainRegistry(t, 3.0)
	_, err = s.RecomputeFrom(context.Background(), []types.ID{"A"}, reg2, graph2, exec)
	require.NoError(t, err)

	for _, cv := range s.All() {
		switch cv.FormulaID {
		case "B", "C":
			assert.NotEqual(t, before[cv.FormulaID], cv.InputsFingerprint,
				"%s feeds from the changed subgraph, fingerprint must move", cv.FormulaID)
		case "D":
			assert.Equal(t, before[cv.FormulaID], cv.InputsFingerprint)
		}
	}
}

func TestVerifyFingerprintsMarksStale(t *testing.T) {
	reg, graph := chainRegistry(t, 2.0)
	s := NewStore()
	exec := executor.New(0, 1, nil)
	_, err := s.ComputeAll(context.Background(), reg, graph, exec)
	require.NoError(t, err)

	assert.Empty(t, s.VerifyFingerprints(reg), "freshly computed store has no mismatches")

	// Tamper with A's value behind the store's back; B's fingerprint no
	// longer matches its input.
	a, _ := s.Get("A")
	a.Value = types.Scalar(99)
	s.Put(a)

	// B's fingerprint no longer matches A; C is then marked stale too,
	// since its input B is no longer Ok.
	stale := s.VerifyFingerprints(reg)
	assert.Equal(t, []types.ID{"B", "C"}, stale)
	b, _ := s.Get("B")
	assert.Equal(t, types.StatusStale, b.Status)
}

func TestRecomputePropagatesFailure(t *testing.T) {
	reg, err := registry.Load([]registry.FormulaDefinition{
		{ID: "A", Proc: func(map[types.ID]types.Value) (types.Value, error) {
			return nil, errors.New("domain error")
		}},
		{ID: "C", Inputs: []types.ID{"A"}, Proc: scaleProc("A", 2)},
	})
	require.NoError(t, err)
	graph, err := resolver.Resolve(reg)
	require.NoError(t, err)

	s := NewStore()
	_, err = s.ComputeAll(context.Background(), reg, graph, executor.New(0, 1, nil))
	require.NoError(t, err)

	a, _ := s.Get("A")
	assert.Equal(t, types.StatusFailed, a.Status)
	c, _ := s.Get("C")
	assert.Equal(t, types.StatusBlocked, c.Status)

	counts := s.Counts()
	assert.Equal(t, 1, counts[types.StatusFailed])
	assert.Equal(t, 1, counts[types.StatusBlocked])
}
