// Package extract turns storefront and review pages into structured records.
// Every field is read through an ordered list of rules so that a page whose markup
// drifted can still be read through a fallback selector.
package extract

import (
	"regexp"
	"strings"

	"dealcatalog/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// Rule reads one value out of a selection.
type Rule struct {
	// Name tags the rule in reports, ex. "primary" or "data-attr".
	Name     string
	Selector string
	// Attr reads an attribute instead of the text content when set.
	Attr string
	// Pattern, when set, must match the value, its first capture group (or the whole
	// match) becomes the value.
	Pattern *regexp.Regexp
}

func (r Rule) apply(sel *goquery.Selection) (string, bool) {
	found := sel
	if r.Selector != "" {
		found = sel.Find(r.Selector)
	}
	if found.Length() == 0 {
		return "", false
	}

	var value string
	if r.Attr != "" {
		attr, exists := found.First().Attr(r.Attr)
		if !exists {
			return "", false
		}
		value = htmlutil.CleanText(attr)
	} else {
		value = htmlutil.NodeText(found)
	}

	if r.Pattern != nil {
		groups := r.Pattern.FindStringSubmatch(value)
		if groups == nil {
			return "", false
		}
		value = groups[0]
		if len(groups) > 1 {
			value = groups[1]
		}
		value = strings.TrimSpace(value)
	}
	return value, value != ""
}

func (r Rule) applyAll(sel *goquery.Selection) []string {
	found := sel
	if r.Selector != "" {
		found = sel.Find(r.Selector)
	}
	var values []string
	found.Each(func(_ int, item *goquery.Selection) {
		value, ok := Rule{Attr: r.Attr, Pattern: r.Pattern}.apply(item)
		if ok {
			values = append(values, value)
		}
	})
	return values
}

// Rules are evaluated in order, the first rule that yields a non-empty value wins.
type Rules []Rule

// Match is the value a field resolved to and the rule that produced it.
type Match struct {
	Value string
	Rule  string
	// Fallback is true when the value did not come from the first rule.
	Fallback bool
}

// Apply returns the first non-empty value among the rules.
func (rules Rules) Apply(sel *goquery.Selection) (Match, bool) {
	for i, r := range rules {
		value, ok := r.apply(sel)
		if ok {
			return Match{Value: value, Rule: r.Name, Fallback: i > 0}, true
		}
	}
	return Match{}, false
}

// ApplyAll returns every value of the first rule that yields any values.
func (rules Rules) ApplyAll(sel *goquery.Selection) ([]string, Match, bool) {
	for i, r := range rules {
		values := r.applyAll(sel)
		if len(values) > 0 {
			return values, Match{Rule: r.Name, Fallback: i > 0}, true
		}
	}
	return nil, Match{}, false
}

// Blocks returns the selection of the first selector that matches anything.
func Blocks(doc *goquery.Selection, selectors []string) *goquery.Selection {
	for _, s := range selectors {
		found := doc.Find(s)
		if found.Length() > 0 {
			return found
		}
	}
	return doc.Slice(0, 0)
}
