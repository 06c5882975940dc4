// Package enrich looks titles up on the review source and reads their metadata.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dealcatalog/internal/cache"
	"dealcatalog/internal/catalog"
	"dealcatalog/internal/extract"
	"dealcatalog/internal/matcher"
	"dealcatalog/lib/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("dealcatalog/internal/enrich")

const (
	report_cache_get    = "cache.get"
	report_cache_put    = "cache.put"
	report_weak_match   = "weak_match"
	report_markup_drift = "markup_drift"
	report_candidate    = "candidate"
	report_not_game     = "not_game_page"
)

const DefaultBaseURL = "https://www.metacritic.com/game/"

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Config struct {
	// BaseURL is joined with a lookup identifier and a trailing slash.
	BaseURL string
	Schema  extract.EnrichmentSchema
	// WeakMatchThreshold is the similarity under which an accepted match is reported.
	WeakMatchThreshold float64
}

type Enricher struct {
	fetcher Fetcher
	// cache is optional.
	cache *cache.Cache
	cfg   Config
	tel   telemetry.API
}

func New(fetcher Fetcher, lookupCache *cache.Cache, cfg Config, tel telemetry.API) *Enricher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if len(cfg.Schema.Markers) == 0 {
		cfg.Schema = extract.MetacriticSchema()
	}
	return &Enricher{
		fetcher: fetcher,
		cache:   lookupCache,
		cfg:     cfg,
		tel:     tel,
	}
}

// URL is the address a lookup identifier is fetched from.
func (e *Enricher) URL(lookupId string) string {
	return strings.TrimSuffix(e.cfg.BaseURL, "/") + "/" + lookupId + "/"
}

// Lookup is a title that resolved to a game page.
type Lookup struct {
	Record    catalog.Enrichment
	Candidate catalog.MatchCandidate
	// Fetched is the number of candidates requested from the source.
	Fetched    int
	Cached     bool
	Similarity float64
	// Anomalies are fields of the page that were present but unusable.
	Anomalies []catalog.Anomaly
}

type outcome int

const (
	outcomeMissing outcome = iota
	// a page was served but without the game markers, either a search/redirect page or
	// markers that drifted. It is not cached so drift does not outlive the run.
	outcomeNotGame
	outcomeFound
	outcomeFailed
)

func (e *Enricher) fromCache(ctx context.Context, lookupId string) (cache.Entry, bool) {
	if e.cache == nil {
		return cache.Entry{}, false
	}
	entry, ok, err := e.cache.Get(ctx, lookupId)
	if err != nil {
		e.tel.ReportWarning(report_cache_get, lookupId, err)
		return cache.Entry{}, false
	}
	return entry, ok
}

func (e *Enricher) store(ctx context.Context, lookupId string, record *catalog.Enrichment) {
	if e.cache == nil {
		return
	}
	var err error
	if record == nil {
		err = e.cache.PutMissing(ctx, lookupId)
	} else {
		err = e.cache.PutFound(ctx, lookupId, *record)
	}
	if err != nil {
		e.tel.ReportWarning(report_cache_put, lookupId, err)
	}
}

// try fetches a single candidate, a failed outcome carries the error that should be
// surfaced when no other candidate matches.
func (e *Enricher) try(ctx context.Context, candidate catalog.MatchCandidate) (extract.EnrichmentResult, outcome, error) {
	raw, err := e.fetcher.Fetch(ctx, e.URL(candidate.LookupIdentifier))
	if err != nil {
		var netErr *catalog.NetworkError
		if errors.As(err, &netErr) && netErr.NotFound() {
			return extract.EnrichmentResult{}, outcomeMissing, nil
		}
		return extract.EnrichmentResult{}, outcomeFailed, err
	}
	if !extract.IsGamePage(raw, e.cfg.Schema) {
		return extract.EnrichmentResult{}, outcomeNotGame, nil
	}
	result, err := extract.ExtractEnrichment(ctx, raw, e.cfg.Schema)
	if err != nil {
		return extract.EnrichmentResult{}, outcomeFailed, err
	}
	return result, outcomeFound, nil
}

// Lookup tries every candidate of a title in priority order and stops at the first
// game page. When every candidate was missing the error is catalog.ErrNotFound, when
// a candidate could not be fetched at all its error is returned instead.
func (e *Enricher) Lookup(ctx context.Context, title string) (Lookup, error) {
	ctx, span := tracer.Start(ctx, "Lookup")
	defer span.End()
	span.SetAttributes(attribute.String("title", title))

	var lookup Lookup
	var failure error
	for _, candidate := range matcher.Candidates(title) {
		if err := ctx.Err(); err != nil {
			return lookup, err
		}

		entry, cached := e.fromCache(ctx, candidate.LookupIdentifier)
		if cached && !entry.Found {
			continue
		}
		if cached {
			lookup.Record = entry.Record
			lookup.Candidate = candidate
			lookup.Cached = true
			lookup.Similarity = e.similarity(title, entry.Record)
			return lookup, nil
		}

		lookup.Fetched++
		result, status, err := e.try(ctx, candidate)
		e.tel.ReportDebug(report_candidate, title, candidate.Priority, candidate.LookupIdentifier, status == outcomeFound)
		switch status {
		case outcomeMissing:
			e.store(ctx, candidate.LookupIdentifier, nil)
			continue
		case outcomeNotGame:
			e.tel.ReportWarning(report_not_game, e.URL(candidate.LookupIdentifier))
			continue
		case outcomeFailed:
			if ctx.Err() != nil {
				return lookup, ctx.Err()
			}
			if failure == nil {
				failure = err
			}
			continue
		}

		if result.Drift > 0 {
			e.tel.ReportWarning(report_markup_drift, e.URL(candidate.LookupIdentifier), result.Drift)
		}
		e.store(ctx, candidate.LookupIdentifier, &result.Record)

		lookup.Record = result.Record
		lookup.Candidate = candidate
		lookup.Anomalies = result.Anomalies
		lookup.Similarity = e.similarity(title, result.Record)
		span.SetAttributes(attribute.String("lookup_id", candidate.LookupIdentifier))
		return lookup, nil
	}

	if failure != nil {
		span.SetStatus(codes.Error, "lookup failed")
		return lookup, fmt.Errorf("lookup %q: %w", title, failure)
	}
	return lookup, fmt.Errorf("lookup %q: %w", title, catalog.ErrNotFound)
}

func (e *Enricher) similarity(title string, record catalog.Enrichment) float64 {
	if record.MatchedTitle == "" {
		return 0
	}
	similarity := matcher.Similarity(title, record.MatchedTitle)
	if similarity < e.cfg.WeakMatchThreshold {
		e.tel.ReportWarning(report_weak_match, title, record.MatchedTitle, similarity)
	}
	return similarity
}
