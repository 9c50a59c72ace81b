package rules

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/review-scraper/internal/scraper"
)

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	cfg, err := Load("testdata/reviews.yaml")
	require.NoError(t, err)

	require.Equal(t, 4, cfg.MaxRetries)
	require.Equal(t, 250*time.Millisecond, cfg.BaseBackoff())
	require.Equal(t, 4*time.Second, cfg.MaxBackoff())
	require.Equal(t, 1500*time.Millisecond, cfg.HostSpacing())
	require.Equal(t, 300*time.Millisecond, cfg.Jitter())
	require.Equal(t, scraper.WaitCondition{Kind: scraper.WaitElement, Selector: "#reviews"}, cfg.Wait())

	require.Len(t, cfg.Items, 1)
	fields := cfg.Items[0].Fields
	require.Equal(t, Source{Kind: SourceCount}, fields[1].Source)
	require.Equal(t, Source{Kind: SourceAttr, Arg: "href"}, fields[4].Source)
	require.Equal(t, Source{Kind: SourceOpenGraph, Arg: "title"}, fields[5].Source)
	require.True(t, fields[5].Source.IsPageLevel())

	// date steps inherit the rule set's formats
	require.Equal(t, []string{"January 2, 2006", "auto"}, cfg.Fields["date"][0].Formats)
	require.Equal(t, []string{"author", "date"}, cfg.KeyFields)

	want := []string{"author", "rating", "date", "body", "link", "product"}
	if diff := cmp.Diff(want, cfg.OutputColumns()); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{"date"}, cfg.TypedFields())
}

func TestLoadJSON5(t *testing.T) {
	t.Parallel()

	cfg, err := Load("testdata/reviews.json5")
	require.NoError(t, err)
	require.Equal(t, 2, cfg.MaxRetries)
	require.Equal(t, DefaultBaseBackoffMS, cfg.BaseBackoffMS)
	require.Equal(t, scraper.WaitNetworkIdle, cfg.WaitCondition)
	require.Equal(t, Source{Kind: SourceReadability}, cfg.Items[0].Fields[2].Source)
	require.Equal(t, TransformNumber, cfg.Fields["score"][0].Kind)
	require.Equal(t, DefaultDateFormats, cfg.DateFormats)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	t.Parallel()

	_, err := Load("rules.toml")
	require.ErrorContains(t, err, "unsupported")
}

func TestParseSource(t *testing.T) {
	t.Parallel()

	cases := map[string]Source{
		"":                    {Kind: SourceText},
		"text":                {Kind: SourceText},
		"HTML":                {Kind: SourceHTML},
		"attr: data-rating":   {Kind: SourceAttr, Arg: "data-rating"},
		"opengraph:site_name": {Kind: SourceOpenGraph, Arg: "site_name"},
	}
	for in, want := range cases {
		got, err := ParseSource(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, bad := range []string{"attr", "count:3", "xpath://div"} {
		_, err := ParseSource(bad)
		require.Error(t, err, bad)
	}
}

func TestValidateReportsProblems(t *testing.T) {
	t.Parallel()

	yamlDoc := []byte(`
wait_condition: element
items:
  - name: review
    selector: "div[["
    fields:
      - name: author
        selector: ".author"
      - name: author
        selector: ".by"
fields:
  missing:
    - kind: trim
  author:
    - kind: shout
key_fields: [nope]
`)
	_, err := Parse(yamlDoc, FormatYAML)
	require.Error(t, err)
	msg := err.Error()
	require.Contains(t, msg, "wait_selector")
	require.Contains(t, msg, `item "review" selector`)
	require.Contains(t, msg, `duplicate field "author"`)
	require.Contains(t, msg, `undeclared field "missing"`)
	require.Contains(t, msg, `unknown step "shout"`)
	require.Contains(t, msg, `key field "nope"`)
}

func TestLoadMoreRule(t *testing.T) {
	t.Parallel()

	base := `
items:
  - name: review
    selector: div.review
    fields:
      - name: body
`
	cfg, err := Parse([]byte(base+`
load_more:
  selector: button.show-more
  item_selector: div.review
  max_items: 200
`), FormatYAML)
	require.NoError(t, err)
	require.Equal(t, scraper.LoadMore{
		Selector:     "button.show-more",
		ItemSelector: "div.review",
		MaxClicks:    DefaultMaxClicks,
		MaxItems:     200,
		Settle:       2 * time.Second,
	}, cfg.Expansion())

	cfg, err = Parse([]byte(base), FormatYAML)
	require.NoError(t, err)
	require.True(t, cfg.Expansion().IsZero())

	_, err = Parse([]byte(base+`
load_more:
  item_selector: "div[["
  max_clicks: -1
`), FormatYAML)
	require.Error(t, err)
	require.Contains(t, err.Error(), "load_more.selector")
	require.Contains(t, err.Error(), "load_more.item_selector")
	require.Contains(t, err.Error(), "must not be negative")
}

func TestParseRejectsUnknownYAMLKeys(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("max_retrys: 3\n"), FormatYAML)
	require.Error(t, err)
}

func TestApplyDefaultsMatchScore(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Items: []ItemRule{{Name: "i", Selector: "li", Fields: []FieldRule{{Name: "brand", Selector: "b"}}}},
		Fields: map[string][]Transform{
			"brand": {{Kind: TransformMatch, Vocabulary: []string{"Samsung"}}},
		},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	require.InDelta(t, DefaultMatchScore, cfg.Fields["brand"][0].MinScore, 1e-9)
	require.Equal(t, scraper.WaitCondition{Kind: scraper.WaitNone}, cfg.Wait())
}
