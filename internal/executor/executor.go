// Package executor invokes formula procedures. It assembles the input
// map from dependency results, runs the procedure under an optional
// per-invocation timeout, classifies the outcome (Ok, Failed, Blocked),
// fingerprints the inputs that produced it, and attaches experimental
// validation warnings. Whole layers execute concurrently on a bounded
// worker pool; procedures never share mutable state, so no locking
// happens below the store.
package executor

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"formulagraph/internal/registry"
	"formulagraph/internal/types"
)

// Lookup resolves a dependency id to its current computed value.
// The second return is false when nothing has been computed for id.
type Lookup func(id types.ID) (types.ComputedValue, bool)

// Executor runs formula procedures.
type Executor struct {
	// ProcTimeout bounds a single procedure invocation. Zero disables
	// the bound. A timed-out formula is Failed, never process-fatal.
	ProcTimeout time.Duration

	// Workers caps intra-layer parallelism. Zero or negative means
	// one worker per CPU.
	Workers int

	logger *zap.Logger
}

// New returns an Executor. A nil logger is replaced with a no-op one.
func New(procTimeout time.Duration, workers int, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{ProcTimeout: procTimeout, Workers: workers, logger: logger}
}

// Execute runs one formula. Dependency results are fetched through
// lookup; if any dependency is Failed or Blocked the procedure is not
// invoked and the result is Blocked naming the first blocking id in
// ascending order. Procedure errors, panics, timeouts, and non-finite
// results all yield Failed. Out-of-tolerance experimental comparison
// yields an Ok result carrying a validation warning.
func (e *Executor) Execute(ctx context.Context, def *registry.FormulaDefinition, lookup Lookup) types.ComputedValue {
	now := time.Now().UTC()
	cv := types.ComputedValue{FormulaID: def.ID, ComputedAt: now}

	inputs := make(map[types.ID]types.Value, len(def.Inputs))
	blockers := make([]types.ID, 0)
	for _, in := range def.Inputs {
		dep, ok := lookup(in)
		if !ok {
			blockers = append(blockers, in)
			continue
		}
		switch dep.Status {
		case types.StatusOk:
			inputs[in] = dep.Value
		default:
			blockers = append(blockers, in)
		}
	}
	if len(blockers) > 0 {
		sort.Slice(blockers, func(i, j int) bool { return blockers[i] < blockers[j] })
		cv.Status = types.StatusBlocked
		cv.Error = fmt.Sprintf("blocked by dependency %q", blockers[0])
		return cv
	}

	cv.InputsFingerprint = types.FingerprintInputs(inputs)

	value, err := e.invoke(ctx, def, inputs)
	if err != nil {
		cv.Status = types.StatusFailed
		cv.Error = err.Error()
		e.logger.Warn("procedure failed",
			zap.String("formula", string(def.ID)),
			zap.Error(err))
		return cv
	}
	if !value.IsFinite() {
		cv.Status = types.StatusFailed
		cv.Error = "procedure produced a non-finite value"
		return cv
	}

	cv.Status = types.StatusOk
	cv.Value = value
	cv.Warnings = validate(def, value)
	return cv
}

// invoke runs the procedure in its own goroutine so a pathological
// non-terminating routine can be abandoned at the timeout. Panics are
// converted to errors; they must not take down sibling formulas.
func (e *Executor) invoke(ctx context.Context, def *registry.FormulaDefinition, inputs map[types.ID]types.Value) (types.Value, error) {
	if e.ProcTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.ProcTimeout)
		defer cancel()
	}

	type outcome struct {
		value types.Value
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("procedure panic: %v", r)}
			}
		}()
		v, err := def.Proc(inputs)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, fmt.Errorf("procedure error: %w", out.err)
		}
		return out.value, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("procedure timed out after %s", e.ProcTimeout)
	}
}

// ExecuteLayer runs one topological layer on the worker pool. Formulas
// within a layer have no dependency relationship, so results are
// written to distinct slots and never conflict. The barrier is the
// return: callers only move to the next layer once every result is in.
func (e *Executor) ExecuteLayer(ctx context.Context, defs []*registry.FormulaDefinition, lookup Lookup) []types.ComputedValue {
	results := make([]types.ComputedValue, len(defs))

	g, ctx := errgroup.WithContext(ctx)
	workers := e.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g.SetLimit(workers)

	for i, def := range defs {
		i, def := i, def
		g.Go(func() error {
			results[i] = e.Execute(ctx, def, lookup)
			return nil
		})
	}
	// Workers never return errors; failures live inside each result.
	_ = g.Wait()
	return results
}

// validate compares a computed scalar against the declared experimental
// value. Out of tolerance is a warning, not a failure: the engine makes
// no physics judgment, it only reports the divergence.
func validate(def *registry.FormulaDefinition, value types.Value) []types.ValidationWarning {
	if def.ExperimentalValue == nil || def.Tolerance == nil {
		return nil
	}
	computed, ok := value.AsScalar()
	if !ok {
		return nil
	}
	expected := *def.ExperimentalValue
	delta := computed - expected
	if delta < 0 {
		delta = -delta
	}
	bound := *def.Tolerance * abs(expected)
	if abs(expected) == 0 {
		bound = *def.Tolerance
	}
	if delta <= bound {
		return nil
	}
	return []types.ValidationWarning{{
		FormulaID: def.ID,
		Computed:  computed,
		Expected:  expected,
		Delta:     delta,
		Tolerance: *def.Tolerance,
	}}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
