package result

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formulagraph/internal/types"
)

func tempArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := OpenArchive(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestArchiveEmptyLatest(t *testing.T) {
	a := tempArchive(t)
	v, err := a.LatestVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	store, version, err := a.LoadLatest()
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)
	assert.Empty(t, store.All())
}

func TestArchiveSaveLoadRoundtrip(t *testing.T) {
	a := tempArchive(t)

	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	values := []types.ComputedValue{
		{
			FormulaID:         "alpha.FINE_STRUCTURE",
			Value:             types.Scalar(0.0072973525693),
			InputsFingerprint: "abc123",
			Status:            types.StatusOk,
			ComputedAt:        at,
		},
		{
			FormulaID:         "mass.ELECTRON_VECTOR",
			Value:             types.Value{1.5, -2.5, 0},
			InputsFingerprint: "def456",
			Status:            types.StatusOk,
			ComputedAt:        at,
		},
		{
			FormulaID:         "broken.RATIO",
			InputsFingerprint: "fff",
			Status:            types.StatusFailed,
			Error:             "division by zero",
			ComputedAt:        at,
		},
	}
	require.NoError(t, a.SaveVersion(1, values))

	store, version, err := a.LoadLatest()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	cv, ok := store.Get("alpha.FINE_STRUCTURE")
	require.True(t, ok)
	assert.Equal(t, types.Scalar(0.0072973525693), cv.Value)
	assert.Equal(t, "abc123", cv.InputsFingerprint)
	assert.Equal(t, at, cv.ComputedAt)

	vec, ok := store.Get("mass.ELECTRON_VECTOR")
	require.True(t, ok)
	assert.Equal(t, types.Value{1.5, -2.5, 0}, vec.Value)

	failed, ok := store.Get("broken.RATIO")
	require.True(t, ok)
	assert.Equal(t, types.StatusFailed, failed.Status)
	assert.Equal(t, "division by zero", failed.Error)
	assert.Nil(t, failed.Value)
}

func TestArchiveVersionMonotonic(t *testing.T) {
	a := tempArchive(t)
	cv := []types.ComputedValue{{FormulaID: "A", Status: types.StatusOk, InputsFingerprint: "x", ComputedAt: time.Now()}}

	require.NoError(t, a.SaveVersion(3, cv))

	err := a.SaveVersion(3, cv)
	assert.Error(t, err, "saving the same version again must fail")
	err = a.SaveVersion(2, cv)
	assert.Error(t, err, "saving an older version must fail")

	require.NoError(t, a.SaveVersion(4, cv))
	v, err := a.LatestVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)
}

func TestArchiveLoadSpecificVersion(t *testing.T) {
	a := tempArchive(t)
	now := time.Now().UTC()
	require.NoError(t, a.SaveVersion(1, []types.ComputedValue{
		{FormulaID: "A", Value: types.Scalar(1), Status: types.StatusOk, InputsFingerprint: "v1", ComputedAt: now},
	}))
	require.NoError(t, a.SaveVersion(2, []types.ComputedValue{
		{FormulaID: "A", Value: types.Scalar(2), Status: types.StatusOk, InputsFingerprint: "v2", ComputedAt: now},
	}))

	old, err := a.LoadVersion(1)
	require.NoError(t, err)
	cv, ok := old.Get("A")
	require.True(t, ok)
	got, _ := cv.Value.AsScalar()
	assert.Equal(t, 1.0, got, "older versions stay addressable")
}
