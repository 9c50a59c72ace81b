// Package normalize cleans raw extracted fields into typed values. Every
// function here is pure and total: malformed input yields a sentinel value,
// never an error or a panic.
package normalize

import (
	"slices"

	"github.com/JakeFAU/review-scraper/internal/rules"
	"github.com/JakeFAU/review-scraper/internal/scraper"
)

// Normalize applies fieldRules to every field of record. Fields without rules
// pass through as text; missing fields become the absent sentinel.
func Normalize(record scraper.Record, fieldRules map[string][]rules.Transform) scraper.NormalizedRecord {
	out := scraper.NormalizedRecord{
		Target: record.Target,
		Index:  record.Index,
		Fields: make(map[string]scraper.Value, len(record.Fields)),
	}
	for name, raw := range record.Fields {
		out.Fields[name] = Field(raw, fieldRules[name])
	}
	return out
}

// Field runs one raw value through steps in order.
func Field(raw scraper.RawValue, steps []rules.Transform) scraper.Value {
	if !raw.Present {
		return scraper.Absent()
	}
	v := scraper.Value{Kind: scraper.KindText, Text: raw.Text, Raw: raw.Text}
	for _, step := range steps {
		v = apply(v, step)
	}
	return v
}

func apply(v scraper.Value, step rules.Transform) scraper.Value {
	text := currentText(v)
	switch step.Kind {
	case rules.TransformDate:
		return Date(text, step.Formats)
	case rules.TransformNumber:
		return Number(text)
	case rules.TransformMatch:
		return textValue(v, Match(text, step.Vocabulary, step.MinScore))
	case rules.TransformTokenize:
		stop := StopwordSet(step.Stopwords, step.ExtraStopwords)
		return scraper.Value{
			Kind:   scraper.KindTokens,
			Text:   text,
			Tokens: slices.Collect(Words(text, stop)),
			Raw:    v.Raw,
		}
	}
	fn, ok := textSteps[step.Kind]
	if !ok {
		return v
	}
	return textValue(v, fn(text))
}

// currentText is the textual form a step operates on. Unparsed typed values
// fall back to their raw source.
func currentText(v scraper.Value) string {
	switch v.Kind {
	case scraper.KindText, scraper.KindTokens:
		return v.Text
	default:
		return v.String()
	}
}

func textValue(prev scraper.Value, text string) scraper.Value {
	return scraper.Value{Kind: scraper.KindText, Text: text, Raw: prev.Raw}
}
