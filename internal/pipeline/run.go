package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"dealcatalog/internal/catalog"
	"dealcatalog/internal/normalize"
	"dealcatalog/internal/output"
	"dealcatalog/lib/telemetry"
)

const (
	report_stage_written = "stage.written"
	report_stage_partial = "stage.partial"
)

// Runner binds the stages of a run to a directory and a date, the file names it reads
// and writes follow the output naming contract.
type Runner struct {
	Dir  string
	Date time.Time
	Tel  telemetry.API
}

func (r Runner) path(name string) string {
	return filepath.Join(r.Dir, name)
}

func (r Runner) writeCatalog(platform catalog.Platform, listings []catalog.Listing, summary *Summary) error {
	path := r.path(output.CatalogName(platform, r.Date))
	err := output.WriteFile(path, func(w io.Writer) error {
		return output.WriteCatalog(w, listings)
	})
	if err != nil {
		return err
	}
	summary.Outputs = append(summary.Outputs, path)
	r.Tel.ReportDebug(report_stage_written, path, len(listings))
	return nil
}

// Scrape crawls a storefront and writes its base catalog. The catalog is written even
// when the crawl stopped early, only a crawl without a single page fails.
func (r Runner) Scrape(ctx context.Context, crawler *Crawler, summary *Summary) error {
	ctx, span := tracer.Start(ctx, "Runner.Scrape")
	defer span.End()

	crawl, err := CollectListings(ctx, crawler)
	summary.Requests += crawl.Requests
	if err != nil {
		return err
	}
	summary.Pages += crawl.Pages
	summary.Drift += crawl.Drift
	summary.Count(crawl.Anomalies)
	if crawl.Stopped != nil {
		summary.Partial = true
		r.Tel.ReportWarning(report_stage_partial, "scrape", crawl.Stopped)
	}

	normalized := normalize.Normalize(crawl.Listings)
	summary.Listings = len(normalized.Listings)
	summary.Duplicates += normalized.Duplicates
	summary.Count(normalized.Anomalies)

	return r.writeCatalog(crawler.cfg.Platform, normalized.Listings, summary)
}

// Convert reads the tabular export of a storefront and writes its base catalog.
func (r Runner) Convert(ctx context.Context, platform catalog.Platform, currency string, summary *Summary) error {
	_, span := tracer.Start(ctx, "Runner.Convert")
	defer span.End()

	path := r.path(output.TableName(r.Date))
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open tabular input: %w", err)
	}
	defer f.Close()

	table, err := normalize.ReadTable(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	normalized := normalize.FromRows(table, platform, currency)
	summary.Listings = len(normalized.Listings)
	summary.Duplicates += normalized.Duplicates
	summary.Count(normalized.Anomalies)

	return r.writeCatalog(platform, normalized.Listings, summary)
}

// ReadCatalog reads the base catalog of a platform written earlier on the same date.
func (r Runner) ReadCatalog(platform catalog.Platform) ([]catalog.Listing, error) {
	path := r.path(output.CatalogName(platform, r.Date))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open base catalog: %w", err)
	}
	defer f.Close()

	listings, err := output.ReadCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return listings, nil
}

// Enrich looks up every listing of a platform's base catalog and writes the merged
// catalog as json and csv. Lookups that did not finish in time are written as nulls.
func (r Runner) Enrich(ctx context.Context, lookuper Lookuper, platform catalog.Platform, opts EnrichOptions, summary *Summary) error {
	ctx, span := tracer.Start(ctx, "Runner.Enrich")
	defer span.End()

	listings, err := r.ReadCatalog(platform)
	if err != nil {
		return err
	}
	normalized := normalize.Normalize(listings)
	summary.Listings = len(normalized.Listings)

	enriched := EnrichAll(ctx, lookuper, normalized.Listings, opts, r.Tel)
	summary.Lookups += enriched.Keys
	summary.Enriched += enriched.Matched
	summary.Cached += enriched.Cached
	summary.NotFound += enriched.NotFound
	summary.Unattempted += enriched.Unattempted
	summary.Anomalies[catalog.CategoryNotFound] += enriched.NotFound
	summary.Count(enriched.Anomalies)
	if enriched.Partial {
		summary.Partial = true
		r.Tel.ReportWarning(report_stage_partial, "enrich", enriched.Unattempted)
	}

	records := output.Merge(normalized.Listings, enriched.Records)
	writers := []struct {
		ext   string
		write func(io.Writer, []output.Record) error
	}{
		{ext: "json", write: output.WriteJSON},
		{ext: "csv", write: output.WriteCSV},
	}
	for _, writer := range writers {
		path := r.path(output.EnrichedName(platform, r.Date, writer.ext))
		err := output.WriteFile(path, func(w io.Writer) error {
			return writer.write(w, records)
		})
		if err != nil {
			return err
		}
		summary.Outputs = append(summary.Outputs, path)
		r.Tel.ReportDebug(report_stage_written, path, len(records))
	}
	return nil
}
