package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/review-scraper/internal/rules"
)

var textSteps = map[rules.TransformKind]func(string) string{
	rules.TransformTrim:               strings.TrimSpace,
	rules.TransformLower:              Lower,
	rules.TransformUpper:              Upper,
	rules.TransformCasefold:           Casefold,
	rules.TransformCollapseWhitespace: CollapseWhitespace,
	rules.TransformDeaccent:           Deaccent,
	rules.TransformStripPunctuation:   StripPunctuation,
}

// Lower lower-cases s using Unicode rules.
func Lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// Upper upper-cases s using Unicode rules.
func Upper(s string) string {
	return cases.Upper(language.Und).String(s)
}

// Casefold maps s to its case-folded form for caseless comparison.
func Casefold(s string) string {
	return cases.Fold().String(s)
}

// CollapseWhitespace trims s and replaces every whitespace run with one space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Deaccent removes combining marks ("Chloé" becomes "Chloe").
func Deaccent(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// StripPunctuation removes Unicode punctuation characters.
func StripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, s)
}
