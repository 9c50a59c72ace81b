package normalize

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/review-scraper/internal/rules"
	"github.com/JakeFAU/review-scraper/internal/scraper"
)

var layouts = []string{"January 2, 2006", "2006-01-02", rules.DateAuto}

func TestDateParsesKnownLayouts(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"March 5, 2024", "  March 05,   2024 ", "2024-03-05", "03/05/2024"} {
		v := Date(in, layouts)
		require.False(t, v.Unparsed, in)
		require.Equal(t, want, v.Date, in)
		require.Equal(t, in, v.Raw)
	}
}

func TestDateMalformedYieldsSentinel(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "yesterday-ish", "????", "2024-13-45", "\x00\xff"} {
		v := Date(in, layouts)
		require.Equal(t, scraper.KindDate, v.Kind, in)
		require.True(t, v.Unparsed, in)
		require.Equal(t, in, v.Raw, in)
		require.Equal(t, in, v.String(), in)
	}
}

func TestNumber(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 4.2, Number("Rated 4.2/5").Number, 1e-9)
	require.InDelta(t, 3.5, Number("3,5 étoiles").Number, 1e-9)
	require.InDelta(t, 5, Number("5").Number, 1e-9)
	require.InDelta(t, 1234.5, Number("1,234.5").Number, 1e-9)
	require.InDelta(t, 1234, Number("1,234 reviews").Number, 1e-9)
	require.InDelta(t, 1234567, Number("1,234,567").Number, 1e-9)
	require.InDelta(t, -2500, Number("-2,500").Number, 1e-9)
	require.InDelta(t, 1.2345, Number("1,2345").Number, 1e-9)
	require.False(t, Number("1,234 reviews").Unparsed)
	v := Number("no rating")
	require.True(t, v.Unparsed)
	require.Equal(t, "no rating", v.String())
}

func TestTextSteps(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a b c", CollapseWhitespace("  a \n\t b   c "))
	require.Equal(t, "Chloe cafe", Deaccent("Chloé café"))
	require.Equal(t, "Hello world", StripPunctuation("Hello, world!"))
	require.Equal(t, "strasse", Casefold("STRASSE"))
	require.Equal(t, "ÉTÉ", Upper("été"))
	require.Equal(t, "été", Lower("ÉTÉ"))
}

func TestMatchSnapsToVocabulary(t *testing.T) {
	t.Parallel()

	vocab := []string{"Samsung", "Apple", "Google"}
	require.Equal(t, "Samsung", Match(" samsnug ", vocab, 0.85))
	require.Equal(t, "Apple", Match("APPLE", vocab, 0.85))
	require.Equal(t, "Nokia", Match("Nokia", vocab, 0.85))
	require.Equal(t, "", Match("", vocab, 0.85))
}

func TestWordsIsLazyAndRestartable(t *testing.T) {
	t.Parallel()

	seq := Words("The battery is GREAT, isn't it? 10/10", StopwordSet("english", []string{"isn't"}))
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	require.Equal(t, []string{"battery", "great", "10", "10"}, first)
	require.Equal(t, first, second)

	var taken []string
	for w := range Words("one two three", nil) {
		taken = append(taken, w)
		if len(taken) == 2 {
			break
		}
	}
	require.Equal(t, []string{"one", "two"}, taken)
	require.Empty(t, slices.Collect(Words("  ,,, ''  ", nil)))
}

func TestNormalizeRecordIsTotal(t *testing.T) {
	t.Parallel()

	record := scraper.Record{
		Target: scraper.Target{ID: "https://shop.test/p"},
		Index:  1,
		Fields: map[string]scraper.RawValue{
			"author": {Text: "  Chloé  ", Present: true},
			"date":   {},
			"posted": {Text: "not a date", Present: true},
			"rating": {Text: "4.5 out of 5", Present: true},
			"body":   {Text: "Loved the screen, hated the battery.", Present: true},
			"plain":  {Text: " as is ", Present: true},
		},
	}
	fieldRules := map[string][]rules.Transform{
		"author": {{Kind: rules.TransformTrim}, {Kind: rules.TransformDeaccent}, {Kind: rules.TransformLower}},
		"date":   {{Kind: rules.TransformDate, Formats: layouts}},
		"posted": {{Kind: rules.TransformDate, Formats: layouts}},
		"rating": {{Kind: rules.TransformNumber}},
		"body":   {{Kind: rules.TransformTokenize, Stopwords: "english"}},
	}

	out := Normalize(record, fieldRules)
	require.Equal(t, 1, out.Index)
	require.Equal(t, "https://shop.test/p", out.Target.ID)
	require.Len(t, out.Fields, 6)

	require.Equal(t, "chloe", out.Field("author").Text)
	require.True(t, out.Field("date").IsAbsent())
	require.True(t, out.Field("posted").Unparsed)
	require.Equal(t, "not a date", out.Field("posted").Raw)
	require.InDelta(t, 4.5, out.Field("rating").Number, 1e-9)
	require.Equal(t, []string{"loved", "screen", "hated", "battery"}, out.Field("body").Tokens)
	require.Equal(t, " as is ", out.Field("plain").Text)
}

func TestTextStepAfterTypedStepUsesRendering(t *testing.T) {
	t.Parallel()

	v := Field(scraper.RawValue{Text: "Rated 4/5", Present: true}, []rules.Transform{
		{Kind: rules.TransformNumber},
		{Kind: rules.TransformTrim},
	})
	require.Equal(t, scraper.KindText, v.Kind)
	require.Equal(t, "4", v.Text)
	require.Equal(t, "Rated 4/5", v.Raw)
}
