// Package types holds the shared data model of the derivation graph:
// formula identifiers, numeric values, computation statuses, and the
// ComputedValue record produced by the executor and held by the result
// store. It sits below every other internal package to avoid import
// cycles.
package types

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"
	"time"
)

// ID is the stable symbolic name of a formula, e.g. "alpha.FINE_STRUCTURE".
// IDs are unique within a registry and never change between runs.
type ID string

// Value is the numeric result of a formula. Most formulas are scalar
// (one component); multi-component formulas (vectors, complex pairs)
// carry one entry per component.
type Value []float64

// Scalar wraps a single float as a Value.
func Scalar(f float64) Value { return Value{f} }

// AsScalar returns the single component of a scalar value.
// ok is false for empty or multi-component values.
func (v Value) AsScalar() (f float64, ok bool) {
	if len(v) != 1 {
		return 0, false
	}
	return v[0], true
}

// IsFinite reports whether every component is a finite number.
// NaN or infinity anywhere makes the whole value non-finite.
func (v Value) IsFinite() bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Status is the lifecycle state of a computed value.
type Status string

const (
	StatusOk      Status = "ok"      // computed successfully from current inputs
	StatusFailed  Status = "failed"  // procedure errored, timed out, or produced a non-finite value
	StatusBlocked Status = "blocked" // a direct or transitive dependency is Failed or Blocked
	StatusStale   Status = "stale"   // cached value no longer matches current inputs
)

// ValidationWarning records an out-of-tolerance comparison between a
// computed value and the formula's declared experimental value. It is
// informational only; the computed value stays Ok.
type ValidationWarning struct {
	FormulaID ID      `json:"formula_id"`
	Computed  float64 `json:"computed"`
	Expected  float64 `json:"expected"`
	Delta     float64 `json:"delta"`
	Tolerance float64 `json:"tolerance"`
}

// ComputedValue is the result of running one formula's procedure.
// The store keeps exactly one live instance per formula id; a
// recomputation supersedes the previous instance.
type ComputedValue struct {
	FormulaID         ID                  `json:"formula_id"`
	Value             Value               `json:"value,omitempty"`
	InputsFingerprint string              `json:"inputs_fingerprint"`
	Status            Status              `json:"status"`
	Error             string              `json:"error,omitempty"` // set iff Failed or Blocked
	Warnings          []ValidationWarning `json:"warnings,omitempty"`
	ComputedAt        time.Time           `json:"computed_at"`
}

// FingerprintInputs hashes a resolved input map into a stable hex
// digest. Dependency ids are visited in ascending order and each
// component contributes its exact IEEE-754 bit pattern, so the
// fingerprint is bit-sensitive: any change to any input value, or to
// the set of inputs, changes the digest.
func FingerprintInputs(inputs map[ID]Value) string {
	ids := make([]ID, 0, len(inputs))
	for id := range inputs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	h := sha256.New()
	var buf [8]byte
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
		v := inputs[id]
		binary.BigEndian.PutUint64(buf[:], uint64(len(v)))
		h.Write(buf[:])
		for _, c := range v {
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(c))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
