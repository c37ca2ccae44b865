package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/49nn/ProveNuance2/internal/manifest"
	"github.com/49nn/ProveNuance2/internal/store"
)

// seedCmd loads the manifest file and persists it, so later runs can
// validate against the stored copy without the file present.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the predicate manifest and persist it to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manifest.Load(manifestPath)
		if err != nil {
			return fmt.Errorf("failed to load manifest %s: %w", manifestPath, err)
		}

		st, err := store.Open(dbPath, store.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to open store %s: %w", dbPath, err)
		}
		defer st.Close()

		if err := st.SaveManifest(cmd.Context(), m); err != nil {
			return err
		}
		logger.Info("manifest seeded",
			zap.String("version", m.Version()),
			zap.Int("predicates", m.Len()),
			zap.String("db", dbPath))
		fmt.Printf("Seeded manifest %s (%d predicates) into %s\n", m.Version(), m.Len(), dbPath)
		return nil
	},
}
