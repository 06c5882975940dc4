// Package pipeline connects the stages of a run: crawl, normalize, enrich and write.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dealcatalog/internal/catalog"
	"dealcatalog/internal/extract"
	"dealcatalog/internal/fetch"
	"dealcatalog/lib/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("dealcatalog/internal/pipeline")

const (
	report_crawler_fetch_page  = "crawler.fetch-page"
	report_crawler_empty_page  = "crawler.empty-page"
	report_crawler_repeat_page = "crawler.repeated-page"
	report_crawler_max_pages   = "crawler.max-pages"
	report_markup_drift        = "markup_drift"
)

// ErrEndOfPages is returned by Crawler.Next once the listing is exhausted.
var ErrEndOfPages = errors.New("end of pages")

// ErrNoPages aborts a run in which not a single listing page could be fetched.
var ErrNoPages = errors.New("no listing page could be fetched")

type PageFetcher interface {
	FetchPage(ctx context.Context, src fetch.Source, index int) ([]byte, error)
}

type CrawlerConfig struct {
	Source   fetch.Source
	Schema   extract.ListingSchema
	Platform catalog.Platform
	Currency string
	// MaxPages is a ceiling in case a storefront never answers with an empty page,
	// 0 or a negative value is unlimited.
	MaxPages int
}

// Crawler walks a paginated storefront one page at a time. It is a finite sequence,
// Reset starts it over.
type Crawler struct {
	fetcher PageFetcher
	cfg     CrawlerConfig
	tel     telemetry.API

	next        int
	done        bool
	requests    int
	fingerprint string
}

func NewCrawler(fetcher PageFetcher, cfg CrawlerConfig, tel telemetry.API) *Crawler {
	c := &Crawler{fetcher: fetcher, cfg: cfg, tel: tel}
	c.Reset()
	return c
}

func (c *Crawler) Reset() {
	c.next = 1
	c.done = false
	c.requests = 0
	c.fingerprint = ""
}

// Requests is the number of pages requested since the last Reset.
func (c *Crawler) Requests() int {
	return c.requests
}

func fingerprint(listings []catalog.Listing) string {
	keys := make([]string, len(listings))
	for i, l := range listings {
		keys[i] = fmt.Sprintf("%s|%d|%d", l.Title, l.OriginalPrice, l.SpecialPrice)
	}
	return strings.Join(keys, "\n")
}

// Next fetches and extracts the next page. It returns ErrEndOfPages on the first page
// without listings, and stops with the fetch error once a page failed after retries.
func (c *Crawler) Next(ctx context.Context) (extract.ListingPage, error) {
	if c.done {
		return extract.ListingPage{}, ErrEndOfPages
	}
	if c.cfg.MaxPages > 0 && c.next > c.cfg.MaxPages {
		c.tel.ReportWarning(report_crawler_max_pages, c.cfg.Source.Name, c.cfg.MaxPages)
		c.done = true
		return extract.ListingPage{}, ErrEndOfPages
	}

	ctx, span := tracer.Start(ctx, "Crawler.Next")
	defer span.End()
	index := c.next
	span.SetAttributes(attribute.Int("page", index))

	c.requests++
	raw, err := c.fetcher.FetchPage(ctx, c.cfg.Source, index)
	if err != nil {
		c.done = true
		if ctx.Err() == nil {
			c.tel.ReportBroken(report_crawler_fetch_page, c.cfg.Source.Name, index, err)
		}
		return extract.ListingPage{}, fmt.Errorf("page %d: %w", index, err)
	}

	page, err := extract.ExtractListings(ctx, raw, c.cfg.Schema, c.cfg.Platform, c.cfg.Currency)
	if err != nil {
		c.done = true
		return extract.ListingPage{}, fmt.Errorf("page %d: %w", index, err)
	}
	if page.Drift > 0 {
		c.tel.ReportWarning(report_markup_drift, c.cfg.Source.Name, index, page.Drift)
	}

	if len(page.Listings) == 0 {
		if page.Blocks > 0 {
			// every block on the page was unreadable, the markup most likely changed.
			c.tel.ReportWarning(report_crawler_empty_page, c.cfg.Source.Name, index, page.Blocks)
		}
		c.done = true
		return page, ErrEndOfPages
	}

	current := fingerprint(page.Listings)
	if current == c.fingerprint {
		// some storefronts answer past-the-end page numbers with the last page.
		c.tel.ReportWarning(report_crawler_repeat_page, c.cfg.Source.Name, index)
		c.done = true
		return extract.ListingPage{}, ErrEndOfPages
	}
	c.fingerprint = current
	c.next++
	return page, nil
}

// CrawlResult is everything collected from a storefront, possibly partial.
type CrawlResult struct {
	Listings  []catalog.Listing
	Anomalies []catalog.Anomaly
	// Pages counts pages that yielded listings.
	Pages    int
	Requests int
	Drift    int
	// Stopped is the error that ended the crawl early, the listings collected before it
	// are still valid.
	Stopped error
}

// CollectListings drains a crawler. Only a crawl that could not fetch a single page
// fails, with ErrNoPages, any later failure or cancellation keeps what was collected.
func CollectListings(ctx context.Context, crawler *Crawler) (CrawlResult, error) {
	var result CrawlResult
	fetched := 0
	for {
		page, err := crawler.Next(ctx)
		result.Requests = crawler.Requests()
		result.Anomalies = append(result.Anomalies, page.Anomalies...)
		result.Drift += page.Drift

		if errors.Is(err, ErrEndOfPages) {
			// the terminating page was still fetched successfully.
			if crawler.Requests() > fetched {
				fetched++
			}
			break
		}
		if err != nil {
			if fetched == 0 {
				return result, fmt.Errorf("%w: %w", ErrNoPages, err)
			}
			result.Stopped = err
			if ctx.Err() == nil {
				result.Anomalies = append(result.Anomalies, catalog.NewAnomaly(crawler.cfg.Source.Name, err))
			}
			break
		}

		fetched++
		result.Pages++
		result.Listings = append(result.Listings, page.Listings...)
	}
	return result, nil
}
