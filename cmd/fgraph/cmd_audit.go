package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"formulagraph/internal/audit"
	"formulagraph/internal/catalog"
	"formulagraph/internal/registry"
	"formulagraph/internal/result"
)

// auditCmd checks published artifacts against authoritative values
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit published artifacts for drifted formula values",
	Long: `Scans the configured artifact directory for literal occurrences of
formula values (per the audit patterns file) and reports every literal
that diverges from the authoritative computed value beyond tolerance.

Auditing is informational: findings never fail the engine and never
block export.`,
	RunE: runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	auditor, store, reg, err := buildAuditor()
	if err != nil {
		return err
	}

	artifacts, err := audit.ReadArtifacts(cfg.Audit.ArtifactDir, cfg.Audit.ArtifactExts)
	if err != nil {
		return fmt.Errorf("reading artifacts: %w", err)
	}

	report := auditor.Run(store, reg, artifacts)
	printAuditReport(report)
	return nil
}

// buildAuditor assembles the auditor plus the store snapshot and
// registry it compares against. The archive handle is closed before
// returning; the loaded store is an in-memory copy.
func buildAuditor() (*audit.Auditor, *result.Store, *registry.Registry, error) {
	reg, err := loadRegistry()
	if err != nil {
		return nil, nil, nil, err
	}

	archive, err := openArchive()
	if err != nil {
		return nil, nil, nil, err
	}
	if archive != nil {
		defer archive.Close()
	}
	store, _, err := loadStore(archive)
	if err != nil {
		return nil, nil, nil, err
	}

	patterns, err := catalog.LoadAuditPatterns(cfg.Audit.PatternsFile)
	if err != nil {
		return nil, nil, nil, err
	}

	auditor, err := audit.New(patterns, cfg.Audit.DefaultTolerance, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return auditor, store, reg, nil
}

func printAuditReport(report *audit.Report) {
	fmt.Printf("audit: %d occurrence(s), %d mismatch(es)\n",
		report.TotalOccurrences, len(report.Mismatches))
	for _, f := range report.Mismatches {
		fmt.Printf("  %s:%d:%d %s found %g, expected %g (delta %g)\n",
			f.Artifact, f.Line, f.Column, f.FormulaID, f.Found, f.Expected, f.Delta)
	}
	for _, id := range report.Coverage {
		fmt.Printf("  coverage: %s has a pattern but no occurrences\n", id)
	}
}
