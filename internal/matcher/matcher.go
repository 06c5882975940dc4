// Package matcher derives the lookup identifiers a title is tried under on the
// enrichment source.
package matcher

import (
	"regexp"
	"strings"

	"dealcatalog/internal/catalog"
	"dealcatalog/lib/textutil"

	"github.com/antzucaro/matchr"
)

var (
	bracketRegex = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|\{[^}]*\}`)
	gotyRegex    = regexp.MustCompile(`-game-of-the-year(?:-edition)?$`)
	// platformSuffixRegex matches the platform naming some storefronts append to a title.
	platformSuffixRegex = regexp.MustCompile(`(?:-for)?(?:-nintendo)?-switch(?:-\d+)?(?:-edition)?$|-for-pc$|-pc-edition$`)
	subtitleDelimiters  = []string{":", " - ", " – ", " — "}
)

// editionTokens are words that only qualify which release of a game is sold.
var editionTokens = map[string]bool{
	"anniversary": true,
	"bundle":      true,
	"collectors":  true,
	"complete":    true,
	"definitive":  true,
	"deluxe":      true,
	"digital":     true,
	"enhanced":    true,
	"gold":        true,
	"goty":        true,
	"premium":     true,
	"special":     true,
	"standard":    true,
	"ultimate":    true,
}

// stripEdition removes a trailing "<word> edition" and any edition tokens before it.
func stripEdition(slug string) string {
	slug = gotyRegex.ReplaceAllString(slug, "")
	words := strings.Split(slug, "-")
	if n := len(words); n > 2 && words[n-1] == "edition" {
		words = words[:n-2]
	}
	for len(words) > 1 && editionTokens[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, "-")
}

// truncateSubtitle cuts a title at its first subtitle delimiter, ok is false when
// there is none or nothing would be left.
func truncateSubtitle(title string) (string, bool) {
	cut := -1
	for _, d := range subtitleDelimiters {
		i := strings.Index(title, d)
		if i > 0 && (cut < 0 || i < cut) {
			cut = i
		}
	}
	if cut < 0 {
		return "", false
	}
	head := strings.TrimSpace(title[:cut])
	return head, head != ""
}

// Candidates returns the lookup identifiers of a title in the order they should be tried:
//
//  0. the full title
//  1. bracketed segments removed
//  2. a trailing "<word> edition" and edition tokens removed
//  3. truncated at the first subtitle delimiter
//  4. truncated, then edition tokens removed
//  5. platform suffixes removed
//
// Duplicates and empty identifiers are dropped and priorities renumbered, so the
// result for a given title never changes.
func Candidates(title string) []catalog.MatchCandidate {
	unbracketed := textutil.CollapseWhitespace(bracketRegex.ReplaceAllString(title, " "))
	base := textutil.Slug(unbracketed)

	variants := []string{
		textutil.Slug(title),
		base,
		stripEdition(base),
	}
	if head, ok := truncateSubtitle(unbracketed); ok {
		truncated := textutil.Slug(head)
		variants = append(variants, truncated, stripEdition(truncated))
	}
	variants = append(variants, platformSuffixRegex.ReplaceAllString(base, ""))

	seen := map[string]bool{}
	candidates := make([]catalog.MatchCandidate, 0, len(variants))
	for _, id := range variants {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		candidates = append(candidates, catalog.MatchCandidate{
			NormalizedTitle:  strings.ReplaceAll(id, "-", " "),
			LookupIdentifier: id,
			Priority:         len(candidates),
		})
	}
	return candidates
}

// Similarity is the Jaro-Winkler similarity of two titles after normalization,
// 1 means they normalize to the same name.
func Similarity(a, b string) float64 {
	left := strings.ReplaceAll(textutil.Slug(a), "-", " ")
	right := strings.ReplaceAll(textutil.Slug(b), "-", " ")
	if left == right {
		return 1
	}
	if left == "" || right == "" {
		return 0
	}
	return matchr.JaroWinkler(left, right, false)
}
