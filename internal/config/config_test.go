package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/review-scraper/internal/policy"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	configYAML := `
rules: rules/reviews.yaml
targets: ["https://shop.test/p/1"]
logging:
  development: true
  level: debug
pipeline:
  workers: 8
fetcher:
  mode: colly
  timeout: 20s
  cloudflare_bypass: true
  block_statuses: [403, 429, 503]
identity:
  rotation: round_robin
  user_agents: ["agent-a", "agent-b"]
  viewports:
    - {width: 800, height: 600}
output:
  csv: out/reviews.csv
  gcs:
    bucket: bucket
    object: reviews.csv
  flush_schedule: "@every 30s"
notify:
  mode: pubsub
  project_id: proj
  topic: flushes
status:
  addr: ":9090"
report:
  rating_field: rating
  text_field: body
`
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(configYAML)))

	cfg, err := Load(v)
	require.NoError(t, err)

	require.Equal(t, "rules/reviews.yaml", cfg.Rules)
	require.Equal(t, []string{"https://shop.test/p/1"}, cfg.Targets)
	require.Equal(t, 8, cfg.Pipeline.Workers)
	require.Equal(t, 2*time.Minute, cfg.Pipeline.FlushTimeout)
	require.Equal(t, ModeColly, cfg.Fetcher.Mode)
	require.Equal(t, 20*time.Second, cfg.Fetcher.Timeout)
	require.Equal(t, []int{403, 429, 503}, cfg.Fetcher.BlockStatuses)
	require.Equal(t, []policy.Viewport{{Width: 800, Height: 600}}, cfg.Identity.Viewports)
	require.True(t, cfg.Robots.Respect)
	require.Equal(t, "records", cfg.Output.SQLite.Table)
	require.Equal(t, 10, cfg.Report.TopWords)
	require.True(t, cfg.Report.Sentiment)
	require.True(t, cfg.HasDestination())
	require.Equal(t, "csv=out/reviews.csv,gcs=gs://bucket/reviews.csv", cfg.LogSummary())
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	require.Equal(t, ModeHeadless, cfg.Fetcher.Mode)
	require.Equal(t, 45*time.Second, cfg.Fetcher.Timeout)
	require.Equal(t, NotifyNone, cfg.Notify.Mode)
	require.False(t, cfg.HasDestination())
	require.Equal(t, "none", cfg.LogSummary())
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	v := viper.New()
	base, err := Load(v)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing rules", func(c *Config) { c.Rules = "" }, "rules must name"},
		{"no workers", func(c *Config) { c.Pipeline.Workers = 0 }, "pipeline.workers"},
		{"no timeout", func(c *Config) { c.Fetcher.Timeout = 0 }, "fetcher.timeout"},
		{"unknown mode", func(c *Config) { c.Fetcher.Mode = "curl" }, "fetcher.mode"},
		{"negative parallel", func(c *Config) { c.Fetcher.MaxParallel = -1 }, "fetcher.max_parallel"},
		{"unknown rotation", func(c *Config) { c.Identity.Rotation = "sticky" }, "identity.rotation"},
		{"half gcs", func(c *Config) { c.Output.GCS.Bucket = "b" }, "output.gcs"},
		{"pubsub without topic", func(c *Config) { c.Notify.Mode = NotifyPubSub }, "notify.project_id"},
		{"unknown notify", func(c *Config) { c.Notify.Mode = "email" }, "notify.mode"},
		{"negative top words", func(c *Config) { c.Report.TopWords = -1 }, "report.top_words"},
		{"unknown stopwords", func(c *Config) { c.Report.Stopwords = "klingon" }, "report.stopwords"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
