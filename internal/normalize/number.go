package normalize

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/review-scraper/internal/scraper"
)

var (
	// grouped thousands ("1,234.5") win over a decimal comma ("3,5")
	numberPattern = regexp.MustCompile(`([-+]?\d{1,3}(?:,\d{3})+(?:\.\d+)?)\b|([-+]?\d+(?:[.,]\d+)?)`)
	errPanicked   = errors.New("parser panicked")
)

// Number reads the first decimal number in text ("4.2 out of 5" is 4.2, "3,5" is 3.5,
// "1,234 reviews" is 1234).
func Number(text string) scraper.Value {
	groups := numberPattern.FindStringSubmatch(text)
	if groups == nil {
		return scraper.Value{Kind: scraper.KindNumber, Unparsed: true, Raw: text}
	}
	var literal string
	if groups[1] != "" {
		literal = strings.ReplaceAll(groups[1], ",", "")
	} else {
		literal = strings.Replace(groups[2], ",", ".", 1)
	}
	f, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return scraper.Value{Kind: scraper.KindNumber, Unparsed: true, Raw: text}
	}
	return scraper.Value{Kind: scraper.KindNumber, Number: f, Raw: text}
}
