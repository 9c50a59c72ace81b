package normalize

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/JakeFAU/review-scraper/internal/rules"
	"github.com/JakeFAU/review-scraper/internal/scraper"
)

// Date parses text with each layout in order. The layout "auto" hands the text
// to a free-form parser. When nothing matches the result is the unparsed
// sentinel carrying the raw text.
func Date(text string, layouts []string) scraper.Value {
	trimmed := CollapseWhitespace(text)
	unparsed := scraper.Value{Kind: scraper.KindDate, Unparsed: true, Raw: text}
	if trimmed == "" {
		return unparsed
	}
	for _, layout := range layouts {
		var (
			t   time.Time
			err error
		)
		if strings.EqualFold(layout, rules.DateAuto) {
			t, err = parseAuto(trimmed)
		} else {
			t, err = time.Parse(layout, trimmed)
		}
		if err == nil {
			y, m, d := t.Date()
			return scraper.Value{
				Kind: scraper.KindDate,
				Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
				Raw:  text,
			}
		}
	}
	return unparsed
}

// parseAuto guards the free-form parser, which can panic on some inputs.
func parseAuto(s string) (t time.Time, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errPanicked
		}
	}()
	return dateparse.ParseAny(s)
}
