package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"formulagraph/internal/types"
)

// statusCmd inspects the persisted result archive
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted result store status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	archive, err := openArchive()
	if err != nil {
		return err
	}
	if archive == nil {
		fmt.Println("persistence disabled (no database_path configured)")
		return nil
	}
	defer archive.Close()

	store, version, err := archive.LoadLatest()
	if err != nil {
		return err
	}
	if version == 0 {
		fmt.Println("archive is empty; run `fgraph run` first")
		return nil
	}

	counts := store.Counts()
	fmt.Printf("version %d: ok %d, failed %d, blocked %d, stale %d\n",
		version,
		counts[types.StatusOk],
		counts[types.StatusFailed],
		counts[types.StatusBlocked],
		counts[types.StatusStale])

	for _, cv := range store.All() {
		if cv.Status == types.StatusOk {
			continue
		}
		fmt.Printf("  %s: %s", cv.FormulaID, cv.Status)
		if cv.Error != "" {
			fmt.Printf(" (%s)", cv.Error)
		}
		fmt.Println()
	}
	return nil
}
