// Package rules defines the declarative rule configuration that drives extraction,
// normalization, pacing and retries. Rules are plain data so rule sets can be
// validated, tested and swapped without touching the pipeline.
package rules

import (
	"time"

	"github.com/JakeFAU/review-scraper/internal/scraper"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultMaxRetries    = 3
	DefaultBaseBackoffMS = 500
	DefaultMaxBackoffMS  = 30_000
	DefaultHostSpacingMS = 1_000
	DefaultMatchScore    = 0.85
	DefaultMaxClicks     = 5
	DefaultSettleMS      = 2_000
)

// DefaultDateFormats are tried when a rule set declares none.
var DefaultDateFormats = []string{"January 2, 2006", "Jan 2, 2006", "2006-01-02", "02/01/2006", DateAuto}

// DateAuto is the date format token that defers to free-form date parsing.
const DateAuto = "auto"

// Config is a complete rule set.
type Config struct {
	MaxRetries    int                    `yaml:"max_retries" json:"max_retries"`
	BaseBackoffMS int                    `yaml:"base_backoff_ms" json:"base_backoff_ms"`
	MaxBackoffMS  int                    `yaml:"max_backoff_ms" json:"max_backoff_ms"`
	HostSpacingMS int                    `yaml:"host_spacing_ms" json:"host_spacing_ms"`
	JitterMS      int                    `yaml:"jitter_ms" json:"jitter_ms"`
	WaitCondition scraper.WaitKind       `yaml:"wait_condition" json:"wait_condition"`
	WaitSelector  string                 `yaml:"wait_selector" json:"wait_selector"`
	WaitDelayMS   int                    `yaml:"wait_delay_ms" json:"wait_delay_ms"`
	DateFormats   []string               `yaml:"date_formats" json:"date_formats"`
	Items         []ItemRule             `yaml:"items" json:"items"`
	Fields        map[string][]Transform `yaml:"fields" json:"fields"`
	KeyFields     []string               `yaml:"key_fields" json:"key_fields"`
	Columns       []string               `yaml:"columns" json:"columns"`
	LoadMore      *LoadMoreRule          `yaml:"load_more" json:"load_more"`
}

// LoadMoreRule clicks a "show more" control after the page is ready until the
// item count stops growing. Plain HTTP fetching ignores it.
type LoadMoreRule struct {
	Selector     string `yaml:"selector" json:"selector"`
	ItemSelector string `yaml:"item_selector" json:"item_selector"`
	MaxClicks    int    `yaml:"max_clicks" json:"max_clicks"`
	MaxItems     int    `yaml:"max_items" json:"max_items"`
	SettleMS     int    `yaml:"settle_ms" json:"settle_ms"`
}

// ItemRule selects repeated nodes and reads fields inside each of them.
type ItemRule struct {
	Name     string      `yaml:"name" json:"name"`
	Selector string      `yaml:"selector" json:"selector"`
	Fields   []FieldRule `yaml:"fields" json:"fields"`
}

// FieldRule reads one value relative to an item node. An empty selector reads
// the item node itself.
type FieldRule struct {
	Name     string `yaml:"name" json:"name"`
	Selector string `yaml:"selector" json:"selector"`
	Source   Source `yaml:"source" json:"source"`
}

// TransformKind tags a normalization step.
type TransformKind string

// Normalization steps.
const (
	TransformTrim               TransformKind = "trim"
	TransformLower              TransformKind = "lower"
	TransformUpper              TransformKind = "upper"
	TransformCasefold           TransformKind = "casefold"
	TransformCollapseWhitespace TransformKind = "collapse_whitespace"
	TransformDeaccent           TransformKind = "deaccent"
	TransformStripPunctuation   TransformKind = "strip_punctuation"
	TransformDate               TransformKind = "date"
	TransformNumber             TransformKind = "number"
	TransformMatch              TransformKind = "match"
	TransformTokenize           TransformKind = "tokenize"
)

// Transform is one normalization step applied to a field. Only the options of
// the step's kind are read.
type Transform struct {
	Kind TransformKind `yaml:"kind" json:"kind"`

	// date
	Formats []string `yaml:"formats,omitempty" json:"formats,omitempty"`

	// match
	Vocabulary []string `yaml:"vocabulary,omitempty" json:"vocabulary,omitempty"`
	MinScore   float64  `yaml:"min_score,omitempty" json:"min_score,omitempty"`

	// tokenize
	Stopwords      string   `yaml:"stopwords,omitempty" json:"stopwords,omitempty"`
	ExtraStopwords []string `yaml:"extra_stopwords,omitempty" json:"extra_stopwords,omitempty"`
}

// Wait returns the default wait condition for targets.
func (c *Config) Wait() scraper.WaitCondition {
	kind := c.WaitCondition
	if kind == "" {
		kind = scraper.WaitNone
	}
	return scraper.WaitCondition{
		Kind:     kind,
		Selector: c.WaitSelector,
		Delay:    ms(c.WaitDelayMS),
	}
}

// BaseBackoff returns the first retry delay.
func (c *Config) BaseBackoff() time.Duration { return ms(c.BaseBackoffMS) }

// MaxBackoff returns the retry delay cap.
func (c *Config) MaxBackoff() time.Duration { return ms(c.MaxBackoffMS) }

// HostSpacing returns the minimum interval between fetches to one host.
func (c *Config) HostSpacing() time.Duration { return ms(c.HostSpacingMS) }

// Expansion returns the load-more behavior, zero when none is configured.
func (c *Config) Expansion() scraper.LoadMore {
	if c.LoadMore == nil {
		return scraper.LoadMore{}
	}
	return scraper.LoadMore{
		Selector:     c.LoadMore.Selector,
		ItemSelector: c.LoadMore.ItemSelector,
		MaxClicks:    c.LoadMore.MaxClicks,
		MaxItems:     c.LoadMore.MaxItems,
		Settle:       ms(c.LoadMore.SettleMS),
	}
}

// Jitter returns the upper bound of the random delay added before each fetch.
func (c *Config) Jitter() time.Duration { return ms(c.JitterMS) }

// FieldNames returns every declared field name in declaration order.
func (c *Config) FieldNames() []string {
	var names []string
	seen := make(map[string]struct{})
	for _, item := range c.Items {
		for _, f := range item.Fields {
			if _, ok := seen[f.Name]; ok {
				continue
			}
			seen[f.Name] = struct{}{}
			names = append(names, f.Name)
		}
	}
	return names
}

// OutputColumns returns the data columns written by destinations.
func (c *Config) OutputColumns() []string {
	if len(c.Columns) > 0 {
		return append([]string(nil), c.Columns...)
	}
	return c.FieldNames()
}

// TypedFields returns the output columns whose steps include a date or number
// step, in column order.
func (c *Config) TypedFields() []string {
	var typed []string
	for _, name := range c.OutputColumns() {
		for _, step := range c.Fields[name] {
			if step.Kind == TransformDate || step.Kind == TransformNumber {
				typed = append(typed, name)
				break
			}
		}
	}
	return typed
}

// ApplyDefaults fills unset options. Date steps without formats inherit the
// rule set's date formats.
func (c *Config) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseBackoffMS == 0 {
		c.BaseBackoffMS = DefaultBaseBackoffMS
	}
	if c.MaxBackoffMS == 0 {
		c.MaxBackoffMS = DefaultMaxBackoffMS
	}
	if c.HostSpacingMS == 0 {
		c.HostSpacingMS = DefaultHostSpacingMS
	}
	if c.WaitCondition == "" {
		c.WaitCondition = scraper.WaitNone
	}
	if len(c.DateFormats) == 0 {
		c.DateFormats = append([]string(nil), DefaultDateFormats...)
	}
	if c.LoadMore != nil {
		if c.LoadMore.MaxClicks == 0 {
			c.LoadMore.MaxClicks = DefaultMaxClicks
		}
		if c.LoadMore.SettleMS == 0 {
			c.LoadMore.SettleMS = DefaultSettleMS
		}
	}
	for name, steps := range c.Fields {
		for i := range steps {
			switch steps[i].Kind {
			case TransformDate:
				if len(steps[i].Formats) == 0 {
					steps[i].Formats = append([]string(nil), c.DateFormats...)
				}
			case TransformMatch:
				if steps[i].MinScore == 0 {
					steps[i].MinScore = DefaultMatchScore
				}
			}
		}
		c.Fields[name] = steps
	}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}
