package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"formulagraph/internal/engine"
	"formulagraph/internal/executor"
	"formulagraph/internal/types"
)

var changedIDs []string

// runCmd computes the derivation graph
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute the formula derivation graph",
	Long: `Resolves the catalog into dependency layers and computes every formula,
persisting results to the archive under the next registry version.

With --changed, only the named formulas and their transitive dependents
are recomputed; everything else keeps its cached value.

Examples:
  fgraph run
  fgraph run --changed alpha.FINE_STRUCTURE,planck.H`,
	RunE: runGraph,
}

func init() {
	runCmd.Flags().StringSliceVar(&changedIDs, "changed", nil, "recompute only these ids and their dependents")
}

func runGraph(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	archive, err := openArchive()
	if err != nil {
		return err
	}
	if archive != nil {
		defer archive.Close()
	}
	store, version, err := loadStore(archive)
	if err != nil {
		return err
	}

	exec := executor.New(cfg.GetProcTimeout(), cfg.Execution.Workers, logger)
	eng := engine.New(reg, store, exec, logger)

	var report *engine.Report
	if len(changedIDs) > 0 {
		ids := make([]types.ID, len(changedIDs))
		for i, id := range changedIDs {
			ids[i] = types.ID(id)
		}
		report, err = eng.RunIncremental(cmd.Context(), ids)
	} else {
		report, err = eng.Run(cmd.Context())
	}
	if err != nil {
		return err
	}

	if archive != nil {
		next := version + 1
		if err := archive.SaveVersion(next, store.All()); err != nil {
			return fmt.Errorf("persisting results: %w", err)
		}
		logger.Info("results persisted", zap.Int64("version", next))
	}

	printReport(report)
	return nil
}

func printReport(report *engine.Report) {
	fmt.Printf("run %s finished in %s\n", report.RunID, report.Duration.Round(time.Millisecond))
	fmt.Printf("  ok: %d  failed: %d  blocked: %d  stale: %d\n",
		report.Counts[types.StatusOk],
		report.Counts[types.StatusFailed],
		report.Counts[types.StatusBlocked],
		report.Counts[types.StatusStale])
	if len(report.Recomputed) > 0 {
		fmt.Printf("  recomputed %d formula(s)\n", len(report.Recomputed))
	}
	for _, w := range report.Warnings {
		fmt.Printf("  warning: %s computed %g, experimental %g (delta %g, tolerance %g)\n",
			w.FormulaID, w.Computed, w.Expected, w.Delta, w.Tolerance)
	}
}
