// Package price converts storefront price text into integer minor units.
package price

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"dealcatalog/internal/catalog"

	"github.com/shopspring/decimal"
)

// Amount is a price in minor units (ex. cents) of an ISO-4217 currency.
type Amount struct {
	Minor    int64
	Currency string
}

var maxMinor = decimal.NewFromInt(math.MaxInt64)

var zeroExponent = map[string]bool{
	"JPY": true,
	"KRW": true,
}

// Exponent is the number of minor-unit digits of a currency.
func Exponent(currency string) int32 {
	if zeroExponent[currency] {
		return 0
	}
	return 2
}

// markers are checked in order, a marker comes before any marker it contains ("CA$" before "A$").
var markers = []struct {
	marker   string
	currency string
}{
	{"US$", "USD"},
	{"AU$", "AUD"},
	{"NZ$", "NZD"},
	{"CA$", "CAD"},
	{"A$", "AUD"},
	{"C$", "CAD"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₩", "KRW"},
}

var isoCode = regexp.MustCompile(`\b(USD|AUD|NZD|CAD|EUR|GBP|JPY|KRW)\b`)

// detectCurrency returns the currency marked in the text, or "" if there is none.
func detectCurrency(text string) string {
	upper := strings.ToUpper(text)
	if code := isoCode.FindString(upper); code != "" {
		return code
	}
	for _, m := range markers {
		if strings.Contains(upper, m.marker) {
			return m.currency
		}
	}
	return ""
}

var (
	labels      = regexp.MustCompile(`(?i)(regular|special|sale|original|was|now|from)\s*price|price`)
	numberRegex = regexp.MustCompile(`\d[\d.,' \x{00a0}\x{202f}]*`)
	freeRegex   = regexp.MustCompile(`(?i)^\s*free\s*$`)
	grouping    = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "", "'", "")
)

// Parse reads a price such as "$89.95", "US$ 3.74", "1.234,56 €" or "Free".
// A currency found in the text wins over defaultCurrency. Empty, negative or
// non-numeric text is a *catalog.ValidationError.
func Parse(text string, defaultCurrency string) (Amount, error) {
	invalid := func(reason string) (Amount, error) {
		return Amount{}, &catalog.ValidationError{Field: "price", Value: text, Reason: reason}
	}

	currency := detectCurrency(text)
	if currency == "" {
		currency = defaultCurrency
	}

	stripped := labels.ReplaceAllString(text, "")
	if freeRegex.MatchString(stripped) {
		return Amount{Minor: 0, Currency: currency}, nil
	}

	loc := numberRegex.FindStringIndex(stripped)
	if loc == nil {
		return invalid("no digits")
	}
	if strings.Contains(stripped[:loc[0]], "-") {
		return invalid("negative amount")
	}
	if strings.ContainsAny(strings.TrimSpace(stripped[loc[1]:]), "0123456789") {
		return invalid("more than one amount")
	}

	number := strings.TrimRight(grouping.Replace(stripped[loc[0]:loc[1]]), ".,")
	normalized, err := normalizeSeparators(number)
	if err != nil {
		return invalid(err.Error())
	}

	value, err := decimal.NewFromString(normalized)
	if err != nil {
		return invalid("not a number")
	}
	exp := Exponent(currency)
	minor := value.Shift(exp).Round(0)
	if minor.GreaterThan(maxMinor) {
		return invalid("amount out of range")
	}
	return Amount{Minor: minor.IntPart(), Currency: currency}, nil
}

// normalizeSeparators turns a grouped number into plain "1234.56" form.
// When both "," and "." appear the last one is the decimal separator. A lone separator
// followed by exactly three digits (that repeats, or stands alone for ",") groups thousands.
func normalizeSeparators(number string) (string, error) {
	lastComma := strings.LastIndex(number, ",")
	lastDot := strings.LastIndex(number, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			number = strings.ReplaceAll(number, ".", "")
			number = strings.Replace(number, ",", ".", 1)
		} else {
			number = strings.ReplaceAll(number, ",", "")
		}
	case lastComma >= 0:
		number = resolveLone(number, ",")
	case lastDot >= 0:
		number = resolveLone(number, ".")
	}

	if strings.Count(number, ".") > 1 {
		return "", fmt.Errorf("ambiguous separators")
	}
	return number, nil
}

func resolveLone(number, sep string) string {
	parts := strings.Split(number, sep)
	if len(parts) > 2 {
		return strings.Join(parts, "")
	}
	fraction := parts[1]
	if sep == "," && len(fraction) == 3 {
		return parts[0] + fraction
	}
	if sep == "," {
		return parts[0] + "." + fraction
	}
	return number
}

// Format renders an amount as "<ISO> <major>.<minor>", Parse(Format(a)) == a.
func Format(a Amount) string {
	value := decimal.New(a.Minor, -Exponent(a.Currency))
	return fmt.Sprintf("%s %s", a.Currency, value.StringFixed(Exponent(a.Currency)))
}
