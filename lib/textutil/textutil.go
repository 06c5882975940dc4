package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// CollapseWhitespace trims a string and replaces every run of whitespace with a single space.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// StripDiacritics decomposes a string and removes combining marks, "Pokémon" becomes "Pokemon".
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

var (
	trademarkRegex   = regexp.MustCompile(`[™®©℠]`)
	punctuationRegex = regexp.MustCompile(`[^\p{L}\p{N}\s-]`)
	spacedDashRegex  = regexp.MustCompile(`\s+-+\s+|^-+|-+$|\s-+|-+\s`)
	separatorRegex   = regexp.MustCompile(`[\s-]+`)
)

// Slug is the lookup form of a name: diacritics and trademark marks removed, lowercased,
// "+" spelled as "plus", remaining punctuation dropped, intra-word hyphens
// kept and whitespace collapsed to single "-" separators.
func Slug(name string) string {
	name = trademarkRegex.ReplaceAllString(name, "")
	name = StripDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "+", " plus ")
	name = punctuationRegex.ReplaceAllString(name, "")
	name = spacedDashRegex.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	name = separatorRegex.ReplaceAllString(name, "-")
	return name
}

// NormalizeName is the key used to decide if two titles refer to the same game.
func NormalizeName(name string) string {
	return Slug(name)
}

func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}
