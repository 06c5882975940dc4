// Package normalize reconciles listings from tabular and html sources into one catalog.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"dealcatalog/internal/catalog"
	"dealcatalog/internal/price"
	"dealcatalog/lib/textutil"
)

// Result is a normalized catalog and everything that was skipped or flagged on the way.
type Result struct {
	Listings []catalog.Listing
	// Anomalies holds skipped rows and flagged (but kept) listings.
	Anomalies  []catalog.Anomaly
	Duplicates int
}

func (r Result) Skipped() int {
	n := 0
	for _, a := range r.Anomalies {
		if a.Category != catalog.CategoryAnomaly {
			n++
		}
	}
	return n
}

var combinedRegex = regexp.MustCompile(`^\s*(.*?)\s*\(\s*(.+?)\s*\)\s*$`)

// SplitCombined splits a SteamSpy price cell such as "$3.74 ($14.99)" into the special
// and original prices. A cell without a parenthesized price is not discounted, both
// prices are the same.
func SplitCombined(cell string) (special string, original string) {
	groups := combinedRegex.FindStringSubmatch(cell)
	if groups == nil || groups[1] == "" {
		cell = strings.TrimSpace(cell)
		return cell, cell
	}
	return groups[1], groups[2]
}

func rowItem(row Row) string {
	if title := row.Fields[ColumnTitle]; title != "" {
		return title
	}
	return fmt.Sprintf("line %d", row.Line)
}

// FromRows coerces table rows into listings, a row that cannot be read is skipped with
// an anomaly. The result is already normalized.
func FromRows(table Table, platform catalog.Platform, currency string) Result {
	var result Result
	for _, line := range table.Malformed {
		result.Anomalies = append(result.Anomalies, catalog.NewAnomaly(
			fmt.Sprintf("line %d", line),
			&catalog.ParseError{Field: "row", Err: errors.New("field count does not match header")},
		))
	}

	combined := table.Combined()
	listings := make([]catalog.Listing, 0, len(table.Rows))
	for _, row := range table.Rows {
		originalText := row.Fields[ColumnOriginal]
		specialText := row.Fields[ColumnSpecial]
		if combined {
			specialText, originalText = SplitCombined(row.Fields[ColumnPrice])
		}

		original, err := price.Parse(originalText, currency)
		if err != nil {
			result.Anomalies = append(result.Anomalies, catalog.NewAnomaly(rowItem(row), err))
			continue
		}
		special, err := price.Parse(specialText, original.Currency)
		if err != nil {
			result.Anomalies = append(result.Anomalies, catalog.NewAnomaly(rowItem(row), err))
			continue
		}
		if special.Currency != original.Currency {
			result.Anomalies = append(result.Anomalies, catalog.NewAnomaly(rowItem(row), &catalog.ValidationError{
				Field:  "currency",
				Value:  fmt.Sprintf("%s/%s", original.Currency, special.Currency),
				Reason: "prices are in different currencies",
			}))
			continue
		}

		listings = append(listings, catalog.NewListing(
			row.Fields[ColumnTitle],
			platform,
			original.Currency,
			original.Minor,
			special.Minor,
		))
	}

	normalized := Normalize(listings)
	normalized.Anomalies = append(result.Anomalies, normalized.Anomalies...)
	return normalized
}

// Normalize cleans titles, tags currencies, recomputes discounts and drops duplicates by
// platform and title key, the first listing of a key wins. Listings with a special price
// above the original price are kept and flagged. Normalize(Normalize(x).Listings)
// returns the same listings.
func Normalize(listings []catalog.Listing) Result {
	result := Result{Listings: make([]catalog.Listing, 0, len(listings))}
	seen := map[string]struct{}{}

	for _, l := range listings {
		title := textutil.CollapseWhitespace(l.Title)
		if title == "" {
			result.Anomalies = append(result.Anomalies, catalog.NewAnomaly(
				"untitled listing",
				&catalog.ParseError{Field: "title", Err: errors.New("empty title")},
			))
			continue
		}
		if !l.Platform.Valid() {
			result.Anomalies = append(result.Anomalies, catalog.NewAnomaly(title, &catalog.ValidationError{
				Field:  "platform",
				Value:  string(l.Platform),
				Reason: "unknown platform",
			}))
			continue
		}
		if l.OriginalPrice < 0 || l.SpecialPrice < 0 {
			result.Anomalies = append(result.Anomalies, catalog.NewAnomaly(title, &catalog.ValidationError{
				Field:  "price",
				Value:  fmt.Sprintf("%d/%d", l.OriginalPrice, l.SpecialPrice),
				Reason: "negative amount",
			}))
			continue
		}

		key := string(l.Platform) + "/" + catalog.TitleKey(title)
		if _, dup := seen[key]; dup {
			result.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		normalized := catalog.NewListing(
			title,
			l.Platform,
			strings.ToUpper(strings.TrimSpace(l.Currency)),
			l.OriginalPrice,
			l.SpecialPrice,
		)
		if normalized.Anomalous() {
			result.Anomalies = append(result.Anomalies, catalog.NewAnomaly(title, catalog.ErrPriceInversion))
		}
		result.Listings = append(result.Listings, normalized)
	}
	return result
}
