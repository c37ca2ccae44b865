package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/49nn/ProveNuance2/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render the stored rule set as a Mangle program",
	Long: `Renders every persisted rule as Mangle source and round-checks the
output through the Mangle parser before emitting it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		program, err := export.New(st).Program(cmd.Context())
		if err != nil {
			return err
		}

		if exportOut == "" {
			fmt.Print(program)
			return nil
		}
		if err := os.WriteFile(exportOut, []byte(program), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", exportOut, err)
		}
		logger.Info("program exported", zap.String("path", exportOut))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "write the program to a file instead of stdout")
}
