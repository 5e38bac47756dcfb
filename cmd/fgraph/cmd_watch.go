package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"formulagraph/internal/audit"
)

// watchCmd re-audits artifacts as they change on disk
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch artifacts and re-audit on change",
	Long: `Watches the configured artifact directory and re-runs the consistency
audit over changed files after a debounce interval. Runs until
interrupted.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	auditor, store, reg, err := buildAuditor()
	if err != nil {
		return err
	}

	watcher, err := audit.NewWatcher(
		cfg.Audit.ArtifactDir,
		cfg.Audit.ArtifactExts,
		cfg.GetDebounce(),
		func(changed []audit.Artifact) {
			report := auditor.Run(store, reg, changed)
			if len(report.Mismatches) == 0 {
				fmt.Printf("audit: %d file(s) changed, no mismatches\n", len(changed))
				return
			}
			printAuditReport(report)
		},
		logger,
	)
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Printf("watching %s (ctrl-c to stop)\n", cfg.Audit.ArtifactDir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-cmd.Context().Done():
	}
	return nil
}
