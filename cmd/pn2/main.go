// pn2 is the rule validation and persistence engine CLI: it loads a
// predicate manifest, validates extractor batches of Horn rules, and
// persists the accepted artifacts with their provenance.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	dbPath       string
	manifestPath string
	verbose      bool

	// Logger
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pn2",
	Short: "pn2 - rule validation and persistence engine",
	Long: `pn2 validates Horn-clause rule batches produced by an upstream
extractor against a predicate manifest, checks safety and stratification,
and persists accepted rules with their provenance and assumptions.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "pn2.db", "path to the SQLite database")
	rootCmd.PersistentFlags().StringVar(&manifestPath, "manifest", "manifest.yaml", "path to the predicate manifest")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
