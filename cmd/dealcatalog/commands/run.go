package commands

import (
	"dealcatalog/internal/catalog"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the base catalog of a platform (scrape or convert) and enrich it.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, err := platformFlag(cmd)
		if err != nil {
			return err
		}
		summary := current.summary(platform)
		defer printSummary(summary)

		ctx := cmd.Context()
		switch platform {
		case catalog.PlatformSteam:
			err = convert(ctx, summary)
		default:
			err = scrape(ctx, summary)
		}
		if err != nil {
			return err
		}
		return enrichCatalog(ctx, platform, summary)
	},
}

func init() {
	runCmd.Flags().String("platform", string(catalog.PlatformNintendo), "Platform to build the catalog of (nintendo, steam).")
	rootCmd.AddCommand(runCmd)
}
