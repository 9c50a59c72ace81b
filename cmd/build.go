package cmd

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-scraper/internal/config"
	"github.com/JakeFAU/review-scraper/internal/dataset"
	"github.com/JakeFAU/review-scraper/internal/dataset/sinks"
	"github.com/JakeFAU/review-scraper/internal/fetcher"
	collyfetcher "github.com/JakeFAU/review-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/review-scraper/internal/fetcher/headless"
	"github.com/JakeFAU/review-scraper/internal/policy"
	"github.com/JakeFAU/review-scraper/internal/progress"
	progresssinks "github.com/JakeFAU/review-scraper/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/review-scraper/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/review-scraper/internal/publisher/pubsub"
	"github.com/JakeFAU/review-scraper/internal/rules"
	"github.com/JakeFAU/review-scraper/internal/scraper"
	"github.com/JakeFAU/review-scraper/internal/storage/postgres"
)

// closers releases run resources in reverse acquisition order.
type closers struct {
	fns    []func(context.Context) error
	logger *zap.Logger
}

func (c *closers) add(fn func(context.Context) error) {
	c.fns = append(c.fns, fn)
}

func (c *closers) closeAll(ctx context.Context) {
	for i := len(c.fns) - 1; i >= 0; i-- {
		if err := c.fns[i](ctx); err != nil {
			c.logger.Warn("release resource failed", zap.Error(err))
		}
	}
	c.fns = nil
}

func buildPolicy(cfg config.Config, rs *rules.Config, logger *zap.Logger) (*policy.Policy, error) {
	return policy.New(policy.Config{
		MaxRetries:      rs.MaxRetries,
		BaseBackoff:     rs.BaseBackoff(),
		MaxBackoff:      rs.MaxBackoff(),
		HostSpacing:     rs.HostSpacing(),
		Jitter:          rs.Jitter(),
		Rotation:        policy.RotationMode(cfg.Identity.Rotation),
		UserAgents:      cfg.Identity.UserAgents,
		AcceptLanguages: cfg.Identity.AcceptLanguages,
		Viewports:       cfg.Identity.Viewports,
		RespectRobots:   cfg.Robots.Respect,
		RobotsUserAgent: cfg.Robots.UserAgent,
		RobotsTimeout:   cfg.Robots.Timeout,
		DeniedHosts:     cfg.Identity.DeniedHosts,
	}, logger.Named("policy"))
}

func buildBrowser(cfg config.FetcherConfig) (scraper.Browser, error) {
	switch cfg.Mode {
	case config.ModeColly:
		return collyfetcher.New(collyfetcher.Config{
			Timeout:          cfg.Timeout,
			CloudflareBypass: cfg.CloudflareBypass,
		}), nil
	case config.ModeHeadless:
		b, err := headless.New(headless.Config{
			ExecPath:    cfg.ChromePath,
			Headful:     cfg.Headful,
			NoSandbox:   cfg.NoSandbox,
			MaxParallel: cfg.MaxParallel,
		})
		if err != nil {
			return nil, fmt.Errorf("init headless browser: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown fetcher mode %q", cfg.Mode)
	}
}

func buildFetcher(browser scraper.Browser, cfg config.FetcherConfig, rs *rules.Config, logger *zap.Logger) (*fetcher.Fetcher, error) {
	return fetcher.New(browser, fetcher.Config{
		DefaultWait: rs.Wait(),
		LoadMore:    rs.Expansion(),
		Detector:    fetcher.NewBlockDetector(cfg.BlockStatuses, cfg.BlockPhrases, cfg.CaptchaSelectors),
	}, logger.Named("fetcher"))
}

// buildDestinations opens every configured output. Opened destinations are
// registered with cl even when a later one fails.
func buildDestinations(ctx context.Context, out config.OutputConfig, cl *closers) ([]dataset.Destination, error) {
	var dests []dataset.Destination
	if out.CSV != "" {
		csv, err := sinks.NewCSV(out.CSV)
		if err != nil {
			return nil, err
		}
		dests = append(dests, csv)
	}
	if out.SQLite.Path != "" {
		db, err := sinks.OpenSQLite(ctx, out.SQLite.Path, out.SQLite.Table)
		if err != nil {
			return nil, err
		}
		cl.add(func(context.Context) error { return db.Close() })
		dests = append(dests, db)
	}
	if out.Postgres.DSN != "" {
		pg, err := sinks.NewPostgres(ctx, out.Postgres.DSN, out.Postgres.Table)
		if err != nil {
			return nil, err
		}
		cl.add(func(context.Context) error { pg.Close(); return nil })
		dests = append(dests, pg)
	}
	if out.GCS.Bucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		cl.add(func(context.Context) error { return client.Close() })
		g, err := sinks.NewGCS(client, out.GCS.Bucket, out.GCS.Object)
		if err != nil {
			return nil, err
		}
		dests = append(dests, g)
	}
	if out.Mongo.URI != "" {
		m, err := sinks.ConnectMongo(ctx, out.Mongo.URI, out.Mongo.Database, out.Mongo.Collection)
		if err != nil {
			return nil, err
		}
		cl.add(m.Close)
		dests = append(dests, m)
	}
	return dests, nil
}

func buildNotifier(ctx context.Context, cfg config.NotifyConfig, cl *closers) (dataset.Notifier, error) {
	switch cfg.Mode {
	case config.NotifyNone, "":
		return nil, nil
	case config.NotifyMemory:
		return memorypublisher.New(), nil
	case config.NotifyPubSub:
		client, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		n := pubsubpublisher.New(client.Topic(cfg.Topic))
		cl.add(func(context.Context) error {
			n.Stop()
			return client.Close()
		})
		return n, nil
	default:
		return nil, fmt.Errorf("unknown notify mode %q", cfg.Mode)
	}
}

// progressStack is the hub plus the sinks other components read from.
type progressStack struct {
	hub      *progress.Hub
	counters *progresssinks.CounterSink
	registry *prometheus.Registry
}

func buildProgress(ctx context.Context, cfg config.ProgressConfig, bar io.Writer, logger *zap.Logger, cl *closers) (*progressStack, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("progress metrics: %w", err)
	}
	counters := progresssinks.NewCounterSink()
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(logger.Named("progress")),
		promSink,
		counters,
	}
	if cfg.Bar && bar != nil {
		sinkList = append(sinkList, progresssinks.NewBarSink(bar))
	}
	if cfg.PostgresDSN != "" {
		runStore, err := postgres.NewRunStore(ctx, postgres.RunStoreConfig{
			DSN:        cfg.PostgresDSN,
			RunsTable:  cfg.RunsTable,
			HostsTable: cfg.HostsTable,
		})
		if err != nil {
			return nil, fmt.Errorf("progress store: %w", err)
		}
		cl.add(func(context.Context) error { runStore.Close(); return nil })
		sinkList = append(sinkList, progresssinks.NewStoreSink(runStore, logger.Named("progress_store")))
	}

	hub := progress.NewHub(progress.Config{Logger: logger.Named("progress_hub")}, sinkList...)
	cl.add(func(ctx context.Context) error {
		return hub.Close(ctx)
	})
	return &progressStack{hub: hub, counters: counters, registry: reg}, nil
}
