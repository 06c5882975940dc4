package commands

import (
	"context"

	"dealcatalog/internal/catalog"
	"dealcatalog/internal/pipeline"

	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert the Steam deals export (steamspy_deals_<date>.csv) into the base catalog.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		summary := current.summary(catalog.PlatformSteam)
		err := convert(cmd.Context(), summary)
		printSummary(summary)
		return err
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)
}

func convert(ctx context.Context, summary *pipeline.Summary) error {
	platform := catalog.PlatformSteam
	return current.runner.Convert(ctx, platform, current.cfg.Currency(platform), summary)
}
