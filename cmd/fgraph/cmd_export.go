package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"formulagraph/internal/export"
)

var (
	exportOut    string
	exportStrict bool
)

// exportCmd writes the consistent snapshot for the presentation layer
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the snapshot of Ok formula values",
	Long: `Serializes every Ok formula (value, units, input fingerprint) into a
flat JSON snapshot for downstream consumers. Non-Ok formulas are listed
under "skipped"; with --strict, any non-Ok formula fails the export
instead.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output path (default from config)")
	exportCmd.Flags().BoolVar(&exportStrict, "strict", false, "fail if any formula is not Ok")
}

func runExport(cmd *cobra.Command, args []string) error {
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

	// Stale values must never reach consumers; anything whose
	// fingerprint drifted is demoted before the snapshot is built.
	if stale := store.VerifyFingerprints(reg); len(stale) > 0 {
		logger.Warn("stale values excluded from export", zap.Int("count", len(stale)))
	}

	strict := exportStrict || cfg.Export.Strict
	snap, err := export.Build(store, reg, strict)
	if err != nil {
		return err
	}

	out := exportOut
	if out == "" {
		out = cfg.Export.Path
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := snap.WriteJSON(f); err != nil {
		return err
	}

	fmt.Printf("exported %d formula(s) (version %d) to %s\n", len(snap.Records), version, out)
	if len(snap.Skipped) > 0 {
		fmt.Printf("  skipped %d non-Ok formula(s): %v\n", len(snap.Skipped), snap.Skipped)
	}
	return nil
}
