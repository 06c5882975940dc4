package enrich

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"dealcatalog/internal/cache"
	"dealcatalog/internal/catalog"
	"dealcatalog/internal/chrono"
	"dealcatalog/lib/telemetry"
	"dealcatalog/lib/testutil"

	"github.com/stretchr/testify/require"
)

const hollowKnightPage = `<html><body>
<div class="c-productHero_title"><h1>Hollow Knight</h1></div>
<div class="c-productScoreInfo u-clearfix g-inner-spacing-bottom-medium">
  <div class="c-siteReviewScore_background c-siteReviewScore_background-critic_medium"><span>87</span></div>
  <span class="c-productScoreInfo_reviewsTotal u-block"><span>Based on 32 Critic Reviews</span></span>
</div>
<div class="c-gameDetails">
  <div class="c-gameDetails_Distributor"><span class="g-color-gray70">Team Cherry</span></div>
</div>
</body></html>`

const searchPage = `<html><body><div class="c-pageSiteSearch">No results</div></body></html>`

// fakeFetcher answers from a fixed table of pages, unknown urls are a 404.
type fakeFetcher struct {
	mutex sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mutex.Lock()
	f.calls = append(f.calls, url)
	f.mutex.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	page, ok := f.pages[url]
	if !ok {
		return nil, &catalog.NetworkError{Url: url, Status: 404}
	}
	return []byte(page), nil
}

func TestLookupFallsBackToTruncatedTitle(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		DefaultBaseURL + "hollow-knight/": hollowKnightPage,
	}}
	rec := &telemetry.Recorder{}
	enricher := New(fetcher, nil, Config{WeakMatchThreshold: 0.5}, rec)

	lookup, err := enricher.Lookup(context.Background(), "Hollow Knight: Voidheart Edition")
	require.NoError(t, err)

	require.Equal(t, []string{
		DefaultBaseURL + "hollow-knight-voidheart-edition/",
		DefaultBaseURL + "hollow-knight/",
	}, fetcher.calls)
	require.Equal(t, 2, lookup.Fetched)
	require.Equal(t, "hollow-knight", lookup.Candidate.LookupIdentifier)
	require.Equal(t, 1, lookup.Candidate.Priority)
	require.Equal(t, "Hollow Knight", lookup.Record.MatchedTitle)
	require.Equal(t, 87, *lookup.Record.MetaScore)
	require.Equal(t, 32, *lookup.Record.MetaReviews)
	require.Nil(t, lookup.Record.UserScore)
	require.Equal(t, 0, rec.Count("warning", report_weak_match))
}

func TestLookupNotFound(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		// a search page answered with 200 is not a match.
		DefaultBaseURL + "overcooked-2-gourmet-edition/": searchPage,
	}}
	enricher := New(fetcher, nil, Config{}, &telemetry.Recorder{})

	_, err := enricher.Lookup(context.Background(), "Overcooked! 2 - Gourmet Edition")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.Equal(t, catalog.CategoryNotFound, catalog.CategoryOf(err))
	require.Len(t, fetcher.calls, 2)
}

func TestLookupNetworkFailure(t *testing.T) {
	fetcher := &fakeFetcher{errs: map[string]error{
		DefaultBaseURL + "celeste/": &catalog.NetworkError{Url: "celeste", Status: 503, Retryable: true},
	}}
	enricher := New(fetcher, nil, Config{}, &telemetry.Recorder{})

	_, err := enricher.Lookup(context.Background(), "Celeste")
	require.Error(t, err)
	require.Equal(t, catalog.CategoryNetwork, catalog.CategoryOf(err))
}

func TestLookupCancelled(t *testing.T) {
	fetcher := &fakeFetcher{}
	enricher := New(fetcher, nil, Config{}, &telemetry.Recorder{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := enricher.Lookup(ctx, "Celeste")
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, fetcher.calls)
}

func TestLookupWeakMatch(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		DefaultBaseURL + "hk/": hollowKnightPage,
	}}
	rec := &telemetry.Recorder{}
	enricher := New(fetcher, nil, Config{WeakMatchThreshold: 0.9}, rec)

	lookup, err := enricher.Lookup(context.Background(), "HK")
	require.NoError(t, err)
	require.Less(t, lookup.Similarity, 0.9)
	require.Equal(t, 1, rec.Count("warning", report_weak_match))
}

func TestLookupUsesCache(t *testing.T) {
	ctx := context.Background()
	clock := chrono.FixedTime{Time: time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC)}
	lookupCache, err := cache.Open(ctx, testutil.OpenMemoryDB(t, ""), time.Hour, clock)
	require.NoError(t, err)

	fetcher := &fakeFetcher{pages: map[string]string{
		DefaultBaseURL + "hollow-knight/": hollowKnightPage,
	}}
	enricher := New(fetcher, lookupCache, Config{}, &telemetry.Recorder{})

	first, err := enricher.Lookup(ctx, "Hollow Knight: Voidheart Edition")
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Len(t, fetcher.calls, 2)

	// both the miss and the hit are remembered, nothing is fetched again.
	second, err := enricher.Lookup(ctx, "Hollow Knight: Voidheart Edition")
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.Equal(t, 0, second.Fetched)
	require.Len(t, fetcher.calls, 2)
	require.Equal(t, first.Record.MatchedTitle, second.Record.MatchedTitle)
	require.Equal(t, *first.Record.MetaScore, *second.Record.MetaScore)

	_, err = enricher.Lookup(ctx, "Unknown Game")
	require.True(t, errors.Is(err, catalog.ErrNotFound))
	calls := len(fetcher.calls)
	_, err = enricher.Lookup(ctx, "Unknown Game")
	require.True(t, errors.Is(err, catalog.ErrNotFound))
	require.Len(t, fetcher.calls, calls)
}

func TestLookupDoesNotCacheNonGamePages(t *testing.T) {
	ctx := context.Background()
	clock := chrono.FixedTime{Time: time.Date(2024, time.August, 1, 0, 0, 0, 0, time.UTC)}
	lookupCache, err := cache.Open(ctx, testutil.OpenMemoryDB(t, ""), time.Hour, clock)
	require.NoError(t, err)

	searchURL := DefaultBaseURL + "overcooked-2-gourmet-edition/"
	fetcher := &fakeFetcher{pages: map[string]string{searchURL: searchPage}}
	rec := &telemetry.Recorder{}
	enricher := New(fetcher, lookupCache, Config{}, rec)

	_, err = enricher.Lookup(ctx, "Overcooked! 2 - Gourmet Edition")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.Equal(t, 1, rec.Count("warning", report_not_game))

	_, found, err := lookupCache.Get(ctx, "overcooked-2-gourmet-edition")
	require.NoError(t, err)
	require.False(t, found)
	// the 404 candidate is remembered.
	_, found, err = lookupCache.Get(ctx, "overcooked-2")
	require.NoError(t, err)
	require.True(t, found)

	// once the page carries the markers again it is picked up without waiting for a ttl.
	fetcher.pages[searchURL] = strings.Replace(hollowKnightPage, "Hollow Knight", "Overcooked! 2 - Gourmet Edition", -1)
	lookup, err := enricher.Lookup(ctx, "Overcooked! 2 - Gourmet Edition")
	require.NoError(t, err)
	require.Equal(t, "overcooked-2-gourmet-edition", lookup.Candidate.LookupIdentifier)
	require.Equal(t, 1, lookup.Fetched)
}
