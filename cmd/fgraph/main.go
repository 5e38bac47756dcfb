// fgraph is the derivation-graph engine CLI for the formula registry:
// it computes the registry's values in dependency order, audits
// published artifacts for drifted copies of those values, and exports
// consistent snapshots for the presentation layer.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"formulagraph/internal/catalog"
	"formulagraph/internal/config"
	"formulagraph/internal/registry"
	"formulagraph/internal/result"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "fgraph",
	Short: "formulagraph - formula derivation graph engine",
	Long: `formulagraph resolves a registry of physical-quantity formulas into a
dependency graph, computes every value in topological layers, caches
results by input fingerprint for incremental recomputation, audits
published artifacts for stale copies of computed values, and exports
consistent snapshots for the site's presentation layer.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg = zap.NewDevelopmentConfig()
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else if lvl, perr := zapcore.ParseLevel(cfg.Logging.Level); perr == nil {
			zcfg.Level = zap.NewAtomicLevelAt(lvl)
		}
		logger, err = zcfg.Build()
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "fgraph.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
}

// loadRegistry builds the registry from the configured catalog file.
func loadRegistry() (*registry.Registry, error) {
	reg, err := catalog.NewTable().LoadFile(cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("loading catalog %s: %w", cfg.Catalog, err)
	}
	return reg, nil
}

// openArchive opens the configured result archive, or returns nil when
// persistence is disabled.
func openArchive() (*result.Archive, error) {
	if cfg.Store.DatabasePath == "" {
		return nil, nil
	}
	return result.OpenArchive(cfg.Store.DatabasePath)
}

// loadStore restores the latest persisted store, or starts empty.
func loadStore(archive *result.Archive) (*result.Store, int64, error) {
	if archive == nil {
		return result.NewStore(), 0, nil
	}
	return archive.LoadLatest()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
