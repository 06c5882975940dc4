package catalog

import (
	"fmt"
	"math"

	"dealcatalog/lib/textutil"
)

type Platform string

const (
	// PlatformNintendo is the paginated html storefront.
	PlatformNintendo Platform = "nintendo"
	// PlatformSteam is the tabular storefront export.
	PlatformSteam Platform = "steam"
)

func (p Platform) Valid() bool {
	return p == PlatformNintendo || p == PlatformSteam
}

func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown platform %q (expected %q or %q)", s, PlatformNintendo, PlatformSteam)
	}
	return p, nil
}

// Listing is a single discounted game, prices are in minor units of Currency.
type Listing struct {
	Title           string   `json:"title"`
	Platform        Platform `json:"platform"`
	Currency        string   `json:"currency"`
	OriginalPrice   int64    `json:"original_price"`
	SpecialPrice    int64    `json:"special_price"`
	DiscountPercent float64  `json:"discount_percent"`
}

// NewListing builds a listing and derives its discount.
func NewListing(title string, platform Platform, currency string, original, special int64) Listing {
	return Listing{
		Title:           title,
		Platform:        platform,
		Currency:        currency,
		OriginalPrice:   original,
		SpecialPrice:    special,
		DiscountPercent: DiscountPercent(original, special),
	}
}

// DiscountPercent is (original - special) / original as a percentage rounded to
// two decimal places, 0 when the original price is 0.
func DiscountPercent(original, special int64) float64 {
	if original == 0 {
		return 0
	}
	percent := float64(original-special) / float64(original) * 100
	return math.Round(percent*100) / 100
}

// Anomalous is true when the special price is above the original price.
func (l Listing) Anomalous() bool {
	return l.SpecialPrice > l.OriginalPrice
}

// Key is the title key used to merge enrichment records into listings.
func (l Listing) Key() string {
	return TitleKey(l.Title)
}

func TitleKey(title string) string {
	return textutil.NormalizeName(title)
}
