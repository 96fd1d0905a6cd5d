package cmd

import (
	"fmt"
	"github.com/FrostKing4567/Slavie/slavie"
	"github.com/spf13/cobra"
	"log/slog"
	"os"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every marriage, adoption and pending request as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		slavie.SetLogOutput(cmd.ErrOrStderr())
		store := slavie.NewStore(cfg, slog.Default())
		if err := store.Connect(ctx); err != nil {
			return fmt.Errorf("error connecting to database: %w", err)
		}
		defer func() {
			_ = store.Close()
		}()

		export, err := store.Export(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if exportOutput != "" && exportOutput != "-" {
			f, e := os.Create(exportOutput)
			if e != nil {
				return fmt.Errorf("error creating %s: %w", exportOutput, e)
			}
			defer func() {
				_ = f.Close()
			}()
			out = f
		}
		return export.WriteYAML(out)
	},
}

//nolint:gochecknoinits
func init() {
	exportCmd.Flags().StringVarP(
		&exportOutput,
		"output",
		"o",
		"-",
		"File to write the export to ('-' for stdout)",
	)
	rootCmd.AddCommand(exportCmd)
}
