package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dealcatalog/internal/catalog"
	"dealcatalog/internal/enrich"
	"dealcatalog/internal/extract"
	"dealcatalog/internal/fetch"
	"dealcatalog/internal/output"
	"dealcatalog/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func listingPage(titles ...string) string {
	var sb strings.Builder
	sb.WriteString(`<html><body><ol class="products list items product-items">`)
	for i, title := range titles {
		fmt.Fprintf(&sb, `<li class="item product product-item">
			<strong class="product name product-item-name">%s</strong>
			<span class="special-price"><span class="price">$%d.00</span></span>
			<span class="old-price"><span class="price">$%d.00</span></span>
		</li>`, title, 5+i, 20+i)
	}
	sb.WriteString(`</ol></body></html>`)
	return sb.String()
}

type fakePages struct {
	mutex sync.Mutex
	pages map[int]string
	errs  map[int]error
	calls []int
}

func (f *fakePages) FetchPage(ctx context.Context, src fetch.Source, index int) ([]byte, error) {
	f.mutex.Lock()
	f.calls = append(f.calls, index)
	f.mutex.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.errs[index]; ok {
		return nil, err
	}
	page, ok := f.pages[index]
	if !ok {
		return []byte(listingPage()), nil
	}
	return []byte(page), nil
}

func newTestCrawler(pages *fakePages, maxPages int) (*Crawler, *telemetry.Recorder) {
	rec := &telemetry.Recorder{}
	return NewCrawler(pages, CrawlerConfig{
		Source:   fetch.Source{Name: "test", URLTemplate: "https://example.com/offers?p=%d"},
		Schema:   extract.NintendoSchema(),
		Platform: catalog.PlatformNintendo,
		Currency: "AUD",
		MaxPages: maxPages,
	}, rec), rec
}

func TestCrawlStopsAtEmptyPage(t *testing.T) {
	pages := &fakePages{pages: map[int]string{
		1: listingPage("Page One A", "Page One B"),
		2: listingPage("Page Two"),
		3: listingPage("Page Three"),
		4: listingPage("Page Four A", "Page Four B"),
		5: listingPage(),
		6: listingPage("Never Requested"),
	}}
	crawler, _ := newTestCrawler(pages, 0)

	result, err := CollectListings(context.Background(), crawler)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4, 5}, pages.calls)
	require.Equal(t, 5, result.Requests)
	require.Equal(t, 4, result.Pages)
	require.Nil(t, result.Stopped)

	var titles []string
	for _, l := range result.Listings {
		titles = append(titles, l.Title)
	}
	require.Equal(t, []string{"Page One A", "Page One B", "Page Two", "Page Three", "Page Four A", "Page Four B"}, titles)

	// the sequence is finished until it is reset.
	_, err = crawler.Next(context.Background())
	require.ErrorIs(t, err, ErrEndOfPages)
	require.Len(t, pages.calls, 5)

	crawler.Reset()
	page, err := crawler.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, page.Listings, 2)
	require.Equal(t, 1, crawler.Requests())
}

func TestCrawlRepeatedPage(t *testing.T) {
	pages := &fakePages{pages: map[int]string{
		1: listingPage("A"),
		2: listingPage("B"),
		3: listingPage("B"),
	}}
	crawler, rec := newTestCrawler(pages, 0)

	result, err := CollectListings(context.Background(), crawler)
	require.NoError(t, err)
	require.Equal(t, 2, result.Pages)
	require.Equal(t, 3, result.Requests)
	require.Equal(t, 1, rec.Count("warning", report_crawler_repeat_page))
}

func TestCrawlMaxPages(t *testing.T) {
	pages := &fakePages{pages: map[int]string{
		1: listingPage("A"),
		2: listingPage("B"),
		3: listingPage("C"),
	}}
	crawler, rec := newTestCrawler(pages, 2)

	result, err := CollectListings(context.Background(), crawler)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, pages.calls)
	require.Len(t, result.Listings, 2)
	require.Equal(t, 1, rec.Count("warning", report_crawler_max_pages))
}

func TestCrawlNegativeMaxPagesIsUnlimited(t *testing.T) {
	pages := &fakePages{pages: map[int]string{
		1: listingPage("A"),
		2: listingPage("B"),
		3: listingPage("C"),
		4: listingPage(),
	}}
	crawler, rec := newTestCrawler(pages, -1)

	result, err := CollectListings(context.Background(), crawler)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4}, pages.calls)
	require.Len(t, result.Listings, 3)
	require.Zero(t, rec.Count("warning", report_crawler_max_pages))
}

func TestCrawlFailureKeepsPartialResults(t *testing.T) {
	pages := &fakePages{
		pages: map[int]string{
			1: listingPage("A"),
			2: listingPage("B"),
		},
		errs: map[int]error{3: &catalog.NetworkError{Url: "page 3", Status: 503, Retryable: true}},
	}
	crawler, rec := newTestCrawler(pages, 0)

	result, err := CollectListings(context.Background(), crawler)
	require.NoError(t, err)
	require.Len(t, result.Listings, 2)
	require.Error(t, result.Stopped)
	require.Equal(t, catalog.CategoryNetwork, catalog.CategoryOf(result.Stopped))
	require.Len(t, result.Anomalies, 1)
	require.Equal(t, 1, rec.Count("broken", report_crawler_fetch_page))
}

func TestCrawlNoPages(t *testing.T) {
	pages := &fakePages{errs: map[int]error{1: &catalog.NetworkError{Url: "page 1", Status: 500, Retryable: true}}}
	crawler, _ := newTestCrawler(pages, 0)

	_, err := CollectListings(context.Background(), crawler)
	require.ErrorIs(t, err, ErrNoPages)
	require.Equal(t, catalog.CategoryNetwork, catalog.CategoryOf(err))
}

// fakeLookuper matches titles that start with "Found".
type fakeLookuper struct {
	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64
	delay    time.Duration
}

func (f *fakeLookuper) Lookup(ctx context.Context, title string) (enrich.Lookup, error) {
	f.calls.Add(1)
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if current <= seen || f.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return enrich.Lookup{}, ctx.Err()
		}
	}

	switch {
	case strings.HasPrefix(title, "Found"):
		score := len(title)
		return enrich.Lookup{Record: catalog.Enrichment{MatchedTitle: title, MetaScore: &score}}, nil
	case strings.HasPrefix(title, "Broken"):
		return enrich.Lookup{}, &catalog.NetworkError{Url: title, Status: 500, Retryable: true}
	default:
		return enrich.Lookup{}, fmt.Errorf("lookup %q: %w", title, catalog.ErrNotFound)
	}
}

func testCatalog(n int) []catalog.Listing {
	var listings []catalog.Listing
	for i := 0; i < n; i++ {
		prefix := []string{"Found", "Missing", "Broken"}[i%3]
		listings = append(listings, catalog.NewListing(
			fmt.Sprintf("%s Game %d", prefix, i),
			catalog.PlatformNintendo,
			"AUD",
			1000,
			500,
		))
	}
	return listings
}

func TestEnrichAllSequential(t *testing.T) {
	listings := testCatalog(9)
	// a listing sharing a title key is looked up once.
	listings = append(listings, catalog.NewListing("FOUND game 0", catalog.PlatformNintendo, "AUD", 10, 5))

	lookuper := &fakeLookuper{}
	result := EnrichAll(context.Background(), lookuper, listings, EnrichOptions{}, &telemetry.Recorder{})

	require.EqualValues(t, 9, lookuper.calls.Load())
	require.EqualValues(t, 1, lookuper.maxSeen.Load())
	require.Equal(t, 9, result.Keys)
	require.Equal(t, 3, result.Matched)
	require.Equal(t, 3, result.NotFound)
	require.Equal(t, 3, result.Failed)
	require.Equal(t, 0, result.Unattempted)
	require.False(t, result.Partial)
	require.Len(t, result.Anomalies, 3)

	records := output.Merge(listings, result.Records)
	require.Len(t, records, len(listings))
	for i, r := range records {
		if strings.HasPrefix(strings.ToLower(listings[i].Title), "found") {
			require.NotNil(t, r.MetaScore, r.Title)
			continue
		}
		require.Nil(t, r.MetaScore, r.Title)
		require.Nil(t, r.Genre, r.Title)
	}
}

func TestEnrichAllPool(t *testing.T) {
	listings := testCatalog(30)
	lookuper := &fakeLookuper{delay: 5 * time.Millisecond}
	rec := &telemetry.Recorder{}

	result := EnrichAll(context.Background(), lookuper, listings, EnrichOptions{Concurrency: 4}, rec)
	require.EqualValues(t, 30, lookuper.calls.Load())
	require.LessOrEqual(t, lookuper.maxSeen.Load(), int64(4))
	require.Equal(t, 10, result.Matched)
	require.Equal(t, 10, result.NotFound)
	require.Equal(t, 10, result.Failed)
	require.Equal(t, 30, rec.Count("count", report_enrich_progress))
}

func TestEnrichAllTimeoutKeepsFinishedLookups(t *testing.T) {
	listings := testCatalog(12)
	lookuper := &fakeLookuper{delay: 30 * time.Millisecond}

	result := EnrichAll(context.Background(), lookuper, listings, EnrichOptions{
		Concurrency: 2,
		Timeout:     100 * time.Millisecond,
	}, &telemetry.Recorder{})

	require.True(t, result.Partial)
	require.Greater(t, result.Unattempted, 0)
	require.Equal(t, 12, result.Matched+result.NotFound+result.Failed+result.Unattempted)
	require.Len(t, result.Records, result.Matched)

	records := output.Merge(listings, result.Records)
	require.Len(t, records, 12)
}

func TestEnrichAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lookuper := &fakeLookuper{}
	result := EnrichAll(ctx, lookuper, testCatalog(6), EnrichOptions{Concurrency: 3}, &telemetry.Recorder{})
	require.True(t, result.Partial)
	require.Equal(t, 6, result.Unattempted)
	require.Zero(t, lookuper.calls.Load())
}

func TestRunnerStages(t *testing.T) {
	dir := t.TempDir()
	date := time.Date(2024, time.August, 5, 0, 0, 0, 0, time.UTC)
	rec := &telemetry.Recorder{}
	runner := Runner{Dir: dir, Date: date, Tel: rec}
	ctx := context.Background()

	pages := &fakePages{pages: map[int]string{
		1: listingPage("Found Mario", "Missing Zelda", "Found Mario"),
		2: listingPage("Broken Metroid"),
	}}
	crawler, _ := newTestCrawler(pages, 0)

	scrape := NewSummary("run", catalog.PlatformNintendo)
	require.NoError(t, runner.Scrape(ctx, crawler, scrape))
	require.Equal(t, 3, scrape.Listings)
	require.Equal(t, 1, scrape.Duplicates)
	require.Equal(t, 3, scrape.Requests)
	require.Equal(t, []string{filepath.Join(dir, "nintendo_discount_catalogue_05-08-2024.json")}, scrape.Outputs)

	enrichSummary := NewSummary("run", catalog.PlatformNintendo)
	require.NoError(t, runner.Enrich(ctx, &fakeLookuper{}, catalog.PlatformNintendo, EnrichOptions{Concurrency: 2}, enrichSummary))
	require.Equal(t, 1, enrichSummary.Enriched)
	require.Equal(t, 1, enrichSummary.NotFound)
	require.Equal(t, 1, enrichSummary.Anomalies[catalog.CategoryNetwork])
	require.Equal(t, []string{
		filepath.Join(dir, "nintendo_discount_catalogue_with_info_05-08-2024.json"),
		filepath.Join(dir, "nintendo_discount_catalogue_with_info_05-08-2024.csv"),
	}, enrichSummary.Outputs)

	f, err := os.Open(enrichSummary.Outputs[0])
	require.NoError(t, err)
	defer f.Close()
	listings, err := output.ReadCatalog(f)
	require.NoError(t, err)
	require.Len(t, listings, 3)

	// a missing base catalog for another platform is a run-level error.
	err = runner.Enrich(ctx, &fakeLookuper{}, catalog.PlatformSteam, EnrichOptions{}, NewSummary("run", catalog.PlatformSteam))
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRunnerConvert(t *testing.T) {
	dir := t.TempDir()
	date := time.Date(2024, time.August, 5, 0, 0, 0, 0, time.UTC)
	runner := Runner{Dir: dir, Date: date, Tel: &telemetry.Recorder{}}

	err := runner.Convert(context.Background(), catalog.PlatformSteam, "USD", NewSummary("run", catalog.PlatformSteam))
	require.True(t, errors.Is(err, os.ErrNotExist))

	table := "Game,Price\nHollow Knight,$7.49 ($14.99)\nTerraria,US$ 3.74\nBad,free-ish ($x)\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, output.TableName(date)), []byte(table), 0644))

	summary := NewSummary("run", catalog.PlatformSteam)
	require.NoError(t, runner.Convert(context.Background(), catalog.PlatformSteam, "USD", summary))
	require.Equal(t, 2, summary.Listings)
	require.Equal(t, 1, summary.Skipped())

	listings, err := runner.ReadCatalog(catalog.PlatformSteam)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	require.EqualValues(t, 374, listings[1].SpecialPrice)
}
