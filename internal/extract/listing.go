package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"dealcatalog/internal/catalog"
	"dealcatalog/internal/price"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("dealcatalog/internal/extract")

// ListingSchema describes where listings live on a storefront page.
type ListingSchema struct {
	// Blocks are the selectors of a single listing, the first selector that matches is used.
	Blocks        []string
	Title         Rules
	OriginalPrice Rules
	SpecialPrice  Rules
}

// NintendoSchema reads the eShop "current offers" product grid.
func NintendoSchema() ListingSchema {
	return ListingSchema{
		Blocks: []string{
			"li.item.product.product-item",
			"li.product-item",
			"div.product-item-info",
		},
		Title: Rules{
			{Name: "primary", Selector: "strong.product.name.product-item-name"},
			{Name: "link", Selector: "a.product-item-link"},
			{Name: "image-alt", Selector: "img.product-image-photo", Attr: "alt"},
		},
		OriginalPrice: Rules{
			{Name: "primary", Selector: "span.old-price span.price"},
			{Name: "container", Selector: "span.old-price"},
			{Name: "data-attr", Selector: "[data-price-type=oldPrice]", Attr: "data-price-amount"},
		},
		SpecialPrice: Rules{
			{Name: "primary", Selector: "span.special-price span.price"},
			{Name: "container", Selector: "span.special-price"},
			{Name: "data-attr", Selector: "[data-price-type=finalPrice]", Attr: "data-price-amount"},
		},
	}
}

// ListingPage is everything read out of one storefront page.
type ListingPage struct {
	// Blocks is the number of listing blocks found, including the ones that were skipped.
	// A page with zero blocks marks the end of pagination.
	Blocks    int
	Listings  []catalog.Listing
	Anomalies []catalog.Anomaly
	// Drift counts fields that were only found through a fallback rule.
	Drift int
}

// ExtractListings reads every listing block of a page. Blocks missing a title or a
// price are skipped and recorded as anomalies, they never fail the page.
func ExtractListings(ctx context.Context, raw []byte, schema ListingSchema, platform catalog.Platform, currency string) (ListingPage, error) {
	_, span := tracer.Start(ctx, "ExtractListings")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return ListingPage{}, &catalog.ParseError{Field: "listing page", Err: err}
	}

	var page ListingPage
	blocks := Blocks(doc.Selection, schema.Blocks)
	page.Blocks = blocks.Length()

	blocks.Each(func(i int, block *goquery.Selection) {
		title, ok := schema.Title.Apply(block)
		if !ok {
			page.Anomalies = append(page.Anomalies, catalog.NewAnomaly(
				fmt.Sprintf("block %d", i),
				&catalog.ParseError{Field: "title", Err: errors.New("no rule matched")},
			))
			return
		}
		original, ok := schema.OriginalPrice.Apply(block)
		if !ok {
			page.Anomalies = append(page.Anomalies, catalog.NewAnomaly(
				title.Value,
				&catalog.ParseError{Field: "original price", Err: errors.New("no rule matched")},
			))
			return
		}
		special, ok := schema.SpecialPrice.Apply(block)
		if !ok {
			page.Anomalies = append(page.Anomalies, catalog.NewAnomaly(
				title.Value,
				&catalog.ParseError{Field: "special price", Err: errors.New("no rule matched")},
			))
			return
		}
		for _, m := range []Match{title, original, special} {
			if m.Fallback {
				page.Drift++
			}
		}

		originalAmount, err := price.Parse(original.Value, currency)
		if err != nil {
			page.Anomalies = append(page.Anomalies, catalog.NewAnomaly(title.Value, err))
			return
		}
		specialAmount, err := price.Parse(special.Value, originalAmount.Currency)
		if err != nil {
			page.Anomalies = append(page.Anomalies, catalog.NewAnomaly(title.Value, err))
			return
		}

		page.Listings = append(page.Listings, catalog.NewListing(
			title.Value,
			platform,
			originalAmount.Currency,
			originalAmount.Minor,
			specialAmount.Minor,
		))
	})

	span.SetAttributes(
		attribute.Int("blocks", page.Blocks),
		attribute.Int("listings", len(page.Listings)),
		attribute.Int("anomalies", len(page.Anomalies)),
	)
	return page, nil
}
