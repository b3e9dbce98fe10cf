// cmd/tunings.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/stringtuner/internal/catalog"
	"github.com/ColonelBlimp/stringtuner/internal/cli/tune"
)

var tuningsCmd = &cobra.Command{
	Use:   "tunings",
	Short: "List the tunings in the catalog",
	Long: `Lists every tuning and its strings from the configured catalog source.
With --export the catalog is written to a .json, .yaml or .csv file instead.`,
	Args: cobra.NoArgs,
	RunE: runTunings,
}

func init() {
	tuningsCmd.Flags().StringP("export", "o", "", "write the catalog to this file")
	rootCmd.AddCommand(tuningsCmd)
}

func runTunings(cmd *cobra.Command, _ []string) error {
	s, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	provider, err := tune.NewProvider(s)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cat, err := tune.LoadCatalog(cmd.Context(), provider, logger)
	if err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("export"); path != "" {
		if err := catalog.Save(path, cat); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d tunings to %s\n", len(cat.Tunings), path)
		return nil
	}

	out := cmd.OutOrStdout()
	for _, t := range cat.Tunings {
		fmt.Fprintln(out, t.Name)
		for i, n := range t.Notes {
			fmt.Fprintf(out, "  %d. %s\n", i+1, n)
		}
	}
	return nil
}
