// Package config loads and validates scraper service configuration via Viper.
// Rule sets (what to extract) live in internal/rules; this package covers how
// a run is executed and where its output goes.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/review-scraper/internal/policy"
)

// Fetcher modes.
const (
	ModeHeadless = "headless"
	ModeColly    = "colly"
)

// Notifier modes.
const (
	NotifyNone   = "none"
	NotifyMemory = "memory"
	NotifyPubSub = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Rules    string         `mapstructure:"rules"`
	Targets  []string       `mapstructure:"targets"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Identity IdentityConfig `mapstructure:"identity"`
	Robots   RobotsConfig   `mapstructure:"robots"`
	Output   OutputConfig   `mapstructure:"output"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Progress ProgressConfig `mapstructure:"progress"`
	Status   StatusConfig   `mapstructure:"status"`
	Report   ReportConfig   `mapstructure:"report"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// PipelineConfig sizes the worker pool.
type PipelineConfig struct {
	Workers      int           `mapstructure:"workers"`
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
}

// FetcherConfig selects and tunes the browser implementation.
type FetcherConfig struct {
	Mode             string        `mapstructure:"mode"`
	Timeout          time.Duration `mapstructure:"timeout"`
	ChromePath       string        `mapstructure:"chrome_path"`
	Headful          bool          `mapstructure:"headful"`
	NoSandbox        bool          `mapstructure:"no_sandbox"`
	MaxParallel      int           `mapstructure:"max_parallel"`
	CloudflareBypass bool          `mapstructure:"cloudflare_bypass"`
	BlockStatuses    []int         `mapstructure:"block_statuses"`
	BlockPhrases     []string      `mapstructure:"block_phrases"`
	CaptchaSelectors []string      `mapstructure:"captcha_selectors"`
}

// IdentityConfig holds the pools identities are drawn from. Empty pools use
// the built-in defaults.
type IdentityConfig struct {
	Rotation        string            `mapstructure:"rotation"`
	UserAgents      []string          `mapstructure:"user_agents"`
	AcceptLanguages []string          `mapstructure:"accept_languages"`
	Viewports       []policy.Viewport `mapstructure:"viewports"`
	DeniedHosts     []string          `mapstructure:"denied_hosts"`
}

// RobotsConfig controls robots.txt admission.
type RobotsConfig struct {
	Respect   bool          `mapstructure:"respect"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// OutputConfig lists the destinations. Each destination is enabled by setting
// its location.
type OutputConfig struct {
	CSV           string         `mapstructure:"csv"`
	SQLite        SQLiteConfig   `mapstructure:"sqlite"`
	Postgres      PostgresConfig `mapstructure:"postgres"`
	GCS           GCSConfig      `mapstructure:"gcs"`
	Mongo         MongoConfig    `mapstructure:"mongo"`
	FlushSchedule string         `mapstructure:"flush_schedule"`
}

// SQLiteConfig names a database file and table.
type SQLiteConfig struct {
	Path  string `mapstructure:"path"`
	Table string `mapstructure:"table"`
}

// PostgresConfig names a connection and table.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// GCSConfig names a bucket and object.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Object string `mapstructure:"object"`
}

// MongoConfig names a deployment, database and collection.
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// NotifyConfig selects where flush notices are published.
type NotifyConfig struct {
	Mode      string `mapstructure:"mode"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ProgressConfig controls the progress sinks.
type ProgressConfig struct {
	Bar         bool   `mapstructure:"bar"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	RunsTable   string `mapstructure:"runs_table"`
	HostsTable  string `mapstructure:"hosts_table"`
}

// StatusConfig enables the status server when Addr is set.
type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// ReportConfig controls the end-of-run report.
type ReportConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Path        string   `mapstructure:"path"`
	RatingField string   `mapstructure:"rating_field"`
	TextField   string   `mapstructure:"text_field"`
	TitleField  string   `mapstructure:"title_field"`
	Sentiment   bool     `mapstructure:"sentiment"`
	TopWords    int      `mapstructure:"top_words"`
	Stopwords   string   `mapstructure:"stopwords"`
	ExtraStop   []string `mapstructure:"extra_stopwords"`
}

// Load unmarshals v, after applying defaults, into a validated Config.
func Load(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults registers the default for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("rules", "rules.yaml")
	v.SetDefault("targets", []string{})
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.flush_timeout", "2m")
	v.SetDefault("fetcher.mode", ModeHeadless)
	v.SetDefault("fetcher.timeout", "45s")
	v.SetDefault("fetcher.max_parallel", 4)
	v.SetDefault("fetcher.cloudflare_bypass", false)
	v.SetDefault("identity.rotation", string(policy.RotationRandom))
	v.SetDefault("robots.respect", true)
	v.SetDefault("robots.user_agent", "review-scraper")
	v.SetDefault("robots.timeout", "10s")
	v.SetDefault("output.sqlite.table", "records")
	v.SetDefault("output.postgres.table", "records")
	v.SetDefault("output.mongo.database", "scraper")
	v.SetDefault("output.mongo.collection", "records")
	v.SetDefault("notify.mode", NotifyNone)
	v.SetDefault("progress.bar", true)
	v.SetDefault("progress.runs_table", "scrape_runs")
	v.SetDefault("progress.hosts_table", "scrape_run_hosts")
	v.SetDefault("report.enabled", true)
	v.SetDefault("report.top_words", 10)
	v.SetDefault("report.sentiment", true)
	v.SetDefault("report.stopwords", "english")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Rules == "" {
		errs = append(errs, errors.New("rules must name a rule file"))
	}
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, errors.New("pipeline.workers must be > 0"))
	}
	if c.Fetcher.Timeout <= 0 {
		errs = append(errs, errors.New("fetcher.timeout must be > 0"))
	}
	switch c.Fetcher.Mode {
	case ModeHeadless:
		if c.Fetcher.MaxParallel < 0 {
			errs = append(errs, errors.New("fetcher.max_parallel must be >= 0"))
		}
	case ModeColly:
	default:
		errs = append(errs, fmt.Errorf("fetcher.mode %q must be %q or %q", c.Fetcher.Mode, ModeHeadless, ModeColly))
	}
	switch policy.RotationMode(c.Identity.Rotation) {
	case policy.RotationRoundRobin, policy.RotationRandom:
	default:
		errs = append(errs, fmt.Errorf("identity.rotation %q is not supported", c.Identity.Rotation))
	}
	if (c.Output.GCS.Bucket == "") != (c.Output.GCS.Object == "") {
		errs = append(errs, errors.New("output.gcs requires both bucket and object"))
	}
	switch c.Notify.Mode {
	case NotifyNone, NotifyMemory:
	case NotifyPubSub:
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			errs = append(errs, errors.New("notify.project_id and notify.topic must be set for pubsub"))
		}
	default:
		errs = append(errs, fmt.Errorf("notify.mode %q is not supported", c.Notify.Mode))
	}
	if c.Report.TopWords < 0 {
		errs = append(errs, errors.New("report.top_words must be >= 0"))
	}
	switch c.Report.Stopwords {
	case "", "english", "none":
	default:
		errs = append(errs, fmt.Errorf("report.stopwords %q must be english or none", c.Report.Stopwords))
	}
	return errors.Join(errs...)
}

// HasDestination reports whether at least one output is configured.
func (c Config) HasDestination() bool {
	o := c.Output
	return o.CSV != "" || o.SQLite.Path != "" || o.Postgres.DSN != "" || o.GCS.Bucket != "" || o.Mongo.URI != ""
}

// LogSummary renders the effective destinations for startup logging.
func (c Config) LogSummary() string {
	var parts []string
	o := c.Output
	if o.CSV != "" {
		parts = append(parts, "csv="+o.CSV)
	}
	if o.SQLite.Path != "" {
		parts = append(parts, "sqlite="+o.SQLite.Path)
	}
	if o.Postgres.DSN != "" {
		parts = append(parts, "postgres="+o.Postgres.Table)
	}
	if o.GCS.Bucket != "" {
		parts = append(parts, "gcs=gs://"+o.GCS.Bucket+"/"+o.GCS.Object)
	}
	if o.Mongo.URI != "" {
		parts = append(parts, "mongo="+o.Mongo.Database+"."+o.Mongo.Collection)
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}
