package commands

import (
	"context"

	"dealcatalog/internal/catalog"
	"dealcatalog/internal/fetch"
	"dealcatalog/internal/pipeline"

	"github.com/spf13/cobra"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Crawl the Nintendo eShop current offers and write the base catalog.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		summary := current.summary(catalog.PlatformNintendo)
		err := scrape(cmd.Context(), summary)
		printSummary(summary)
		return err
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
}

func scrape(ctx context.Context, summary *pipeline.Summary) error {
	fetcher, err := fetch.New(current.cfg.FetchConfig(), current.tel)
	if err != nil {
		return err
	}
	crawler := pipeline.NewCrawler(fetcher, current.cfg.CrawlerConfig(), current.tel)
	return current.runner.Scrape(ctx, crawler, summary)
}
