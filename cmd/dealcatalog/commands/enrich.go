package commands

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"dealcatalog/internal/cache"
	"dealcatalog/internal/catalog"
	"dealcatalog/internal/chrono"
	"dealcatalog/internal/enrich"
	"dealcatalog/internal/fetch"
	"dealcatalog/internal/pipeline"

	"github.com/spf13/cobra"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Look up review metadata for every listing of a base catalog and write the enriched catalog.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, err := platformFlag(cmd)
		if err != nil {
			return err
		}
		summary := current.summary(platform)
		err = enrichCatalog(cmd.Context(), platform, summary)
		printSummary(summary)
		return err
	},
}

func init() {
	enrichCmd.Flags().String("platform", string(catalog.PlatformNintendo), "Platform of the base catalog to enrich (nintendo, steam).")
	rootCmd.AddCommand(enrichCmd)
}

// openCache returns a nil cache when no database is configured.
func openCache(ctx context.Context) (*cache.Cache, *sql.DB, error) {
	dbConfig := current.cfg.Cache.DB
	if !dbConfig.Enabled() {
		return nil, nil, nil
	}
	db, err := dbConfig.OpenDB()
	if err != nil {
		return nil, nil, fmt.Errorf("open lookup cache: %w", err)
	}
	lookupCache, err := cache.Open(ctx, db, current.cfg.CacheTTL(), chrono.NewStandardTime(nil))
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	pruned, err := lookupCache.Prune(ctx)
	if err != nil {
		slog.Warn("prune lookup cache", "err", err)
	} else if pruned > 0 {
		slog.Debug("pruned lookup cache", "entries", pruned)
	}
	return lookupCache, db, nil
}

func enrichCatalog(ctx context.Context, platform catalog.Platform, summary *pipeline.Summary) error {
	fetcher, err := fetch.New(current.cfg.FetchConfig(), current.tel)
	if err != nil {
		return err
	}
	lookupCache, db, err := openCache(ctx)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	enricher := enrich.New(fetcher, lookupCache, current.cfg.EnricherConfig(), current.tel)
	return current.runner.Enrich(ctx, enricher, platform, current.cfg.EnrichOptions(), summary)
}
