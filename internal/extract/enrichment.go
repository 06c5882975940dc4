package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"dealcatalog/internal/catalog"
	"dealcatalog/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
)

// EnrichmentSchema describes where review metadata lives on a game page.
type EnrichmentSchema struct {
	// Markers must match at least once for a page to count as a game page,
	// search and error pages do not carry them.
	Markers     []string
	Title       Rules
	MetaScore   Rules
	MetaReviews Rules
	UserScore   Rules
	UserReviews Rules
	ReleaseDate Rules
	Publisher   Rules
	Genre       Rules
}

var countPattern = regexp.MustCompile(`(?i)\d[\d.,\s]*(?:[km]\b)?`)

// MetacriticSchema reads a metacritic.com game page.
func MetacriticSchema() EnrichmentSchema {
	return EnrichmentSchema{
		Markers: []string{
			"div.c-productHero_title",
			"div.c-productScoreInfo",
			"div.c-gameDetails",
		},
		Title: Rules{
			{Name: "primary", Selector: "div.c-productHero_title h1"},
			{Name: "hero", Selector: "div.c-productHero_title"},
			{Name: "og-title", Selector: "meta[property='og:title']", Attr: "content"},
		},
		MetaScore: Rules{
			{Name: "primary", Selector: "div.c-productScoreInfo.g-inner-spacing-bottom-medium div.c-siteReviewScore_background-critic_medium span"},
			{Name: "critic-background", Selector: "div.c-siteReviewScore_background-critic_medium span"},
			{Name: "test-id", Selector: "[data-testid=critic-score-info] div.c-siteReviewScore span"},
		},
		MetaReviews: Rules{
			{Name: "primary", Selector: "div.c-productScoreInfo.g-inner-spacing-bottom-medium span.c-productScoreInfo_reviewsTotal span", Pattern: countPattern},
			{Name: "test-id", Selector: "[data-testid=critic-score-info] span.c-productScoreInfo_reviewsTotal", Pattern: countPattern},
		},
		UserScore: Rules{
			{Name: "primary", Selector: "div.c-siteReviewScore_background-user span"},
			{Name: "test-id", Selector: "[data-testid=user-score-info] div.c-siteReviewScore span"},
		},
		UserReviews: Rules{
			{Name: "primary", Selector: "div.c-productScoreInfo:not(.g-inner-spacing-bottom-medium) span.c-productScoreInfo_reviewsTotal span", Pattern: countPattern},
			{Name: "test-id", Selector: "[data-testid=user-score-info] span.c-productScoreInfo_reviewsTotal", Pattern: countPattern},
		},
		ReleaseDate: Rules{
			{Name: "primary", Selector: "div.c-gameDetails_ReleaseDate span.g-color-gray70"},
			{Name: "last-span", Selector: "div.c-gameDetails_ReleaseDate span:last-child"},
			{Name: "hero", Selector: "div.c-productHero_score-container div.g-text-xsmall span.u-text-uppercase"},
		},
		Publisher: Rules{
			{Name: "primary", Selector: "div.c-gameDetails_Distributor span.g-color-gray70"},
			{Name: "link", Selector: "div.c-gameDetails_Distributor a"},
		},
		Genre: Rules{
			{Name: "primary", Selector: "li.c-genreList_item span.c-globalButton_label"},
			{Name: "link", Selector: "li.c-genreList_item a"},
		},
	}
}

func parseDocument(raw []byte) (*goquery.Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &catalog.ParseError{Field: "enrichment page", Err: errors.New("empty document")}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, &catalog.ParseError{Field: "enrichment page", Err: err}
	}
	return doc, nil
}

func isGamePage(doc *goquery.Document, schema EnrichmentSchema) bool {
	for _, m := range schema.Markers {
		if doc.Find(m).Length() > 0 {
			return true
		}
	}
	return false
}

// IsGamePage reports whether a page carries any of the schema's content markers.
func IsGamePage(raw []byte, schema EnrichmentSchema) bool {
	doc, err := parseDocument(raw)
	if err != nil {
		return false
	}
	return isGamePage(doc, schema)
}

// EnrichmentResult is the record read from a page, along with the fields
// that were present but unusable.
type EnrichmentResult struct {
	Record    catalog.Enrichment
	Anomalies []catalog.Anomaly
	Drift     int
}

// ExtractEnrichment parses every field independently, a missing or invalid field is
// left nil and never invalidates the rest of the record.
func ExtractEnrichment(ctx context.Context, raw []byte, schema EnrichmentSchema) (EnrichmentResult, error) {
	_, span := tracer.Start(ctx, "ExtractEnrichment")
	defer span.End()

	doc, err := parseDocument(raw)
	if err != nil {
		return EnrichmentResult{}, err
	}
	if !isGamePage(doc, schema) {
		return EnrichmentResult{}, &catalog.ParseError{
			Field: "enrichment page",
			Err:   errors.New("no game page markers"),
		}
	}

	var result EnrichmentResult
	sel := doc.Selection
	lookup := func(rules Rules) (string, bool) {
		m, ok := rules.Apply(sel)
		if ok && m.Fallback {
			result.Drift++
		}
		return m.Value, ok
	}
	report := func(err error) {
		result.Anomalies = append(result.Anomalies, catalog.NewAnomaly(result.Record.MatchedTitle, err))
	}

	if title, ok := lookup(schema.Title); ok {
		result.Record.MatchedTitle = title
	}
	if text, ok := lookup(schema.MetaScore); ok {
		score, err := ParseMetaScore(text)
		if err != nil {
			report(err)
		}
		result.Record.MetaScore = score
	}
	if text, ok := lookup(schema.MetaReviews); ok {
		count, err := ParseCount(text)
		if err != nil {
			report(err)
		} else {
			result.Record.MetaReviews = &count
		}
	}
	if text, ok := lookup(schema.UserScore); ok {
		score, err := ParseUserScore(text)
		if err != nil {
			report(err)
		}
		result.Record.UserScore = score
	}
	if text, ok := lookup(schema.UserReviews); ok {
		count, err := ParseCount(text)
		if err != nil {
			report(err)
		} else {
			result.Record.UserReviews = &count
		}
	}
	if text, ok := lookup(schema.ReleaseDate); ok {
		date, err := ParseReleaseDate(text)
		if err != nil {
			report(err)
		} else {
			result.Record.ReleaseDate = &date
		}
	}
	if text, ok := lookup(schema.Publisher); ok {
		publisher := strings.TrimSpace(strings.TrimSuffix(text, ","))
		result.Record.Publisher = &publisher
	}

	genres, m, ok := schema.Genre.ApplyAll(sel)
	if ok && m.Fallback {
		result.Drift++
	}
	result.Record.Genre = genreSet(genres)

	span.SetAttributes(
		attribute.String("matched_title", result.Record.MatchedTitle),
		attribute.Int("anomalies", len(result.Anomalies)),
	)
	return result, nil
}

func genreSet(genres []string) []string {
	seen := map[string]struct{}{}
	out := []string{}
	for _, g := range genres {
		g = htmlutil.CleanText(g)
		if g == "" {
			continue
		}
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

func isTBD(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), "tbd")
}

// ParseMetaScore reads a critic score in 0-100, "tbd" is nil without an error.
func ParseMetaScore(text string) (*int, error) {
	if isTBD(text) {
		return nil, nil
	}
	score, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return nil, &catalog.ValidationError{Field: "meta score", Value: text, Reason: "not an integer"}
	}
	if score < 0 || score > 100 {
		return nil, &catalog.ValidationError{Field: "meta score", Value: text, Reason: "outside 0-100"}
	}
	return &score, nil
}

// ParseUserScore reads a user score in 0-10, "tbd" is nil without an error.
func ParseUserScore(text string) (*float64, error) {
	if isTBD(text) {
		return nil, nil
	}
	score, err := strconv.ParseFloat(strings.Replace(strings.TrimSpace(text), ",", ".", 1), 64)
	if err != nil {
		return nil, &catalog.ValidationError{Field: "user score", Value: text, Reason: "not a number"}
	}
	if score < 0 || score > 10 {
		return nil, &catalog.ValidationError{Field: "user score", Value: text, Reason: "outside 0-10"}
	}
	return &score, nil
}

var countRegex = regexp.MustCompile(`(?i)(\d[\d.,\s\x{00a0}]*)([km]\b)?`)

// ParseCount reads review counts such as "1,234", "1.234", "1.2K" or "Based on 3M Ratings".
func ParseCount(text string) (int, error) {
	invalid := func(reason string) (int, error) {
		return 0, &catalog.ValidationError{Field: "review count", Value: text, Reason: reason}
	}

	groups := countRegex.FindStringSubmatch(text)
	if groups == nil {
		return invalid("no digits")
	}
	digits := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' || r == '\t' || r == '\n' {
			return -1
		}
		return r
	}, groups[1])
	digits = strings.TrimRight(digits, ".,")
	suffix := strings.ToLower(groups[2])

	if suffix == "" {
		plain := strings.NewReplacer(",", "", ".", "").Replace(digits)
		n, err := strconv.Atoi(plain)
		if err != nil {
			return invalid("not an integer")
		}
		return n, nil
	}

	// with a magnitude suffix a single separator is a decimal point ("1,2K" == "1.2K").
	if strings.Count(digits, ",")+strings.Count(digits, ".") == 1 {
		digits = strings.Replace(digits, ",", ".", 1)
	} else {
		digits = strings.ReplaceAll(digits, ",", "")
	}
	value, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return invalid("not a number")
	}
	multiplier := 1_000.0
	if suffix == "m" {
		multiplier = 1_000_000.0
	}
	count := value*multiplier + 0.5
	// float64(math.MaxInt) rounds up to 2^63, which no int holds.
	if math.IsNaN(count) || count >= float64(math.MaxInt) {
		return invalid("out of range")
	}
	return int(count), nil
}

var releaseDateLayouts = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02",
	"02-01-2006",
	"Jan 2 2006",
}

// ParseReleaseDate accepts the date forms used across metacritic page revisions.
func ParseReleaseDate(text string) (catalog.Date, error) {
	text = htmlutil.CleanText(strings.TrimPrefix(strings.TrimSpace(text), "Released On:"))
	for _, layout := range releaseDateLayouts {
		parsed, err := time.Parse(layout, text)
		if err == nil {
			return catalog.Date{Time: parsed}, nil
		}
	}
	return catalog.Date{}, &catalog.ValidationError{
		Field:  "release date",
		Value:  text,
		Reason: fmt.Sprintf("expected one of %v", releaseDateLayouts),
	}
}
