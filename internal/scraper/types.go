package scraper

import (
	"net/http"
	"time"
)

// WaitKind selects how a fetch decides that a page is ready.
type WaitKind string

// Supported wait conditions.
const (
	WaitNone        WaitKind = "none"
	WaitElement     WaitKind = "element"
	WaitDelay       WaitKind = "delay"
	WaitNetworkIdle WaitKind = "network_idle"
)

// WaitCondition describes the readiness condition a fetch waits for after navigation.
type WaitCondition struct {
	Kind     WaitKind      `json:"kind" yaml:"kind"`
	Selector string        `json:"selector,omitempty" yaml:"selector,omitempty"`
	Delay    time.Duration `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// IsZero reports whether no condition has been set.
func (w WaitCondition) IsZero() bool {
	return w.Kind == "" && w.Selector == "" && w.Delay == 0
}

// LoadMore describes in-page expansion after the wait condition holds: the
// first visible Selector match is clicked until the number of ItemSelector
// matches stops growing, MaxClicks clicks were made, or MaxItems items are on
// the page. Settle bounds how long each click may take to add items.
type LoadMore struct {
	Selector     string        `json:"selector,omitempty" yaml:"selector,omitempty"`
	ItemSelector string        `json:"item_selector,omitempty" yaml:"item_selector,omitempty"`
	MaxClicks    int           `json:"max_clicks,omitempty" yaml:"max_clicks,omitempty"`
	MaxItems     int           `json:"max_items,omitempty" yaml:"max_items,omitempty"`
	Settle       time.Duration `json:"settle,omitempty" yaml:"settle,omitempty"`
}

// IsZero reports whether no expansion is configured.
func (l LoadMore) IsZero() bool {
	return l.Selector == ""
}

// Target is a unique fetch request descriptor. ID is the normalized URL and is the
// deduplication identifier used by the frontier.
type Target struct {
	ID       string
	URL      string
	Headers  http.Header
	Wait     WaitCondition
	Priority int
}

// Host returns the lower-cased host of the target URL, or "unknown".
func (t Target) Host() string {
	return hostOf(t.URL)
}

// Identity is the browser persona presented for one fetch.
type Identity struct {
	UserAgent      string `json:"user_agent"`
	AcceptLanguage string `json:"accept_language"`
	ViewportWidth  int64  `json:"viewport_width"`
	ViewportHeight int64  `json:"viewport_height"`
}

// FetchResult is the raw outcome of a successful fetch. It is owned by the worker
// that produced it and is discarded after extraction.
type FetchResult struct {
	Target     Target
	Content    []byte
	StatusCode int
	FinalURL   string
	Headers    http.Header
	FetchedAt  time.Time
	Duration   time.Duration
	Identity   Identity
}

// RawValue is a single extracted field. Present is false when the field selector
// matched nothing inside the item node.
type RawValue struct {
	Text    string
	Present bool
}

// Record is the raw field mapping extracted from one item of one page.
type Record struct {
	Target Target
	Index  int
	Fields map[string]RawValue
}

// Field returns the raw value for name; missing names are reported as absent.
func (r Record) Field(name string) RawValue {
	if r.Fields == nil {
		return RawValue{}
	}
	return r.Fields[name]
}

// ValueKind tags a normalized value.
type ValueKind string

// Normalized value kinds.
const (
	KindAbsent ValueKind = "absent"
	KindText   ValueKind = "text"
	KindDate   ValueKind = "date"
	KindNumber ValueKind = "number"
	KindTokens ValueKind = "tokens"
)

// Value is a normalized field value. Absent and unparsed values are sentinels, never errors.
type Value struct {
	Kind     ValueKind
	Text     string
	Date     time.Time
	Number   float64
	Tokens   []string
	Raw      string
	Unparsed bool
}

// Absent is the sentinel for a field that was missing from the source item.
func Absent() Value {
	return Value{Kind: KindAbsent}
}

// IsAbsent reports whether v is the absent sentinel.
func (v Value) IsAbsent() bool {
	return v.Kind == KindAbsent || v.Kind == ""
}

// String renders the value for tabular output. Unparsed values render their raw text.
func (v Value) String() string {
	switch v.Kind {
	case KindDate:
		if v.Unparsed {
			return v.Raw
		}
		return v.Date.Format("2006-01-02")
	case KindNumber:
		if v.Unparsed {
			return v.Raw
		}
		return formatNumber(v.Number)
	case KindTokens:
		return joinTokens(v.Tokens)
	case KindText:
		return v.Text
	default:
		return ""
	}
}

// NormalizedRecord is a Record after every field passed through its normalization rules.
type NormalizedRecord struct {
	Target Target
	Index  int
	Fields map[string]Value
}

// Field returns the value for name or the absent sentinel.
func (r NormalizedRecord) Field(name string) Value {
	if v, ok := r.Fields[name]; ok {
		return v
	}
	return Absent()
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID            string        `json:"run_id"`
	TargetsEnqueued  int64         `json:"targets_enqueued"`
	TargetsFetched   int64         `json:"targets_fetched"`
	TargetsFailed    int64         `json:"targets_failed"`
	TargetsSkipped   int64         `json:"targets_skipped"`
	FetchAttempts    int64         `json:"fetch_attempts"`
	RecordsExtracted int64         `json:"records_extracted"`
	RecordsAdded     int64         `json:"records_added"`
	Duration         time.Duration `json:"duration"`
}
