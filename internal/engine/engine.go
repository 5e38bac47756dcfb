// Package engine orchestrates a derivation run: resolve the graph,
// abort on configuration errors before any procedure runs, execute
// layer by layer through the result store, and summarize the outcome.
// A run always completes and always yields a report; individual formula
// failures never abort siblings.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"formulagraph/internal/executor"
	"formulagraph/internal/registry"
	"formulagraph/internal/resolver"
	"formulagraph/internal/result"
	"formulagraph/internal/types"
)

// ConfigurationError wraps a fatal catalog problem (duplicate id,
// dangling input, dependency cycle). When a run fails with it, no
// procedure was invoked.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Report summarizes one run.
type Report struct {
	RunID      string                    `json:"run_id"`
	StartedAt  time.Time                 `json:"started_at"`
	Duration   time.Duration             `json:"duration"`
	Counts     map[types.Status]int      `json:"counts"`
	Recomputed []types.ID                `json:"recomputed,omitempty"`
	Stale      []types.ID                `json:"stale,omitempty"` // fingerprint mismatches found before execution
	Warnings   []types.ValidationWarning `json:"warnings,omitempty"`
}

// Engine wires registry, store, and executor into runs.
type Engine struct {
	reg    *registry.Registry
	store  *result.Store
	exec   *executor.Executor
	logger *zap.Logger
}

// New builds an Engine. A nil logger is replaced with a no-op one.
func New(reg *registry.Registry, store *result.Store, exec *executor.Executor, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{reg: reg, store: store, exec: exec, logger: logger}
}

// Store exposes the engine's result store for auditing and export.
func (e *Engine) Store() *result.Store { return e.store }

// Registry exposes the engine's registry.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Run executes the whole graph from scratch. Resolution happens first;
// a cycle aborts with ConfigurationError before anything executes.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	return e.run(ctx, nil, true)
}

// RunIncremental recomputes changedIDs and their transitive dependents,
// plus anything whose cached fingerprint no longer matches its inputs.
// Untouched formulas keep their cached values.
func (e *Engine) RunIncremental(ctx context.Context, changedIDs []types.ID) (*Report, error) {
	for _, id := range changedIDs {
		if _, err := e.reg.Get(id); err != nil {
			return nil, &ConfigurationError{Err: err}
		}
	}
	return e.run(ctx, changedIDs, false)
}

func (e *Engine) run(ctx context.Context, changedIDs []types.ID, full bool) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	graph, err := resolver.Resolve(e.reg)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}

	var recomputed []types.ID
	if full {
		e.logger.Info("starting full run",
			zap.String("run_id", report.RunID),
			zap.Int("formulas", e.reg.Len()),
			zap.Int("layers", len(graph.Layers())))
		recomputed, err = e.store.ComputeAll(ctx, e.reg, graph, e.exec)
	} else {
		report.Stale = e.store.VerifyFingerprints(e.reg)
		changed := append(append([]types.ID{}, changedIDs...), report.Stale...)
		e.logger.Info("starting incremental run",
			zap.String("run_id", report.RunID),
			zap.Int("changed", len(changedIDs)),
			zap.Int("stale", len(report.Stale)))
		recomputed, err = e.store.RecomputeFrom(ctx, changed, e.reg, graph, e.exec)
	}
	if err != nil {
		return nil, err
	}

	report.Recomputed = recomputed
	report.Duration = time.Since(report.StartedAt)
	report.Counts = e.store.Counts()
	for _, cv := range e.store.All() {
		report.Warnings = append(report.Warnings, cv.Warnings...)
	}

	e.logger.Info("run complete",
		zap.String("run_id", report.RunID),
		zap.Duration("duration", report.Duration),
		zap.Int("ok", report.Counts[types.StatusOk]),
		zap.Int("failed", report.Counts[types.StatusFailed]),
		zap.Int("blocked", report.Counts[types.StatusBlocked]),
		zap.Int("stale", report.Counts[types.StatusStale]))
	return report, nil
}
