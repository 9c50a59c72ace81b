package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-scraper/internal/api"
	"github.com/JakeFAU/review-scraper/internal/config"
	"github.com/JakeFAU/review-scraper/internal/dataset"
	"github.com/JakeFAU/review-scraper/internal/extract"
	"github.com/JakeFAU/review-scraper/internal/frontier"
	"github.com/JakeFAU/review-scraper/internal/id/uuid"
	"github.com/JakeFAU/review-scraper/internal/normalize"
	"github.com/JakeFAU/review-scraper/internal/pipeline"
	"github.com/JakeFAU/review-scraper/internal/report"
	"github.com/JakeFAU/review-scraper/internal/rules"
	"github.com/JakeFAU/review-scraper/internal/scraper"
)

const releaseTimeout = 30 * time.Second

func newScrapeCmd() *cobra.Command {
	var targetsFile, runID string
	cmd := &cobra.Command{
		Use:   "scrape [url...]",
		Short: "Run one scrape over the given targets",
		Long: `Fetches every target once (with retries), extracts records with the rule
file and flushes the dataset to the configured destinations. Targets come from
arguments, --targets-file (one URL per line, # comments) and the "targets"
configuration key.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd.Context())
			if err != nil {
				return err
			}
			seeds, err := collectSeeds(e.cfg.Targets, args, targetsFile)
			if err != nil {
				return err
			}
			return runScrape(cmd.Context(), e, runID, seeds)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&targetsFile, "targets-file", "", "file with one target URL per line")
	fs.StringVar(&runID, "run-id", "", "use this run ID instead of minting one")
	fs.Int("workers", 0, "concurrent workers")
	fs.String("mode", "", "fetcher: headless or colly")
	fs.String("csv", "", "write the dataset to this CSV file")
	fs.String("status-addr", "", "serve /healthz, /metrics and /progress on this address")
	fs.String("report-file", "", "also write the run report to this file")
	fs.Bool("progress-bar", true, "render a progress bar on stderr")
	bindFlag(fs, "workers", "pipeline.workers")
	bindFlag(fs, "mode", "fetcher.mode")
	bindFlag(fs, "csv", "output.csv")
	bindFlag(fs, "status-addr", "status.addr")
	bindFlag(fs, "report-file", "report.path")
	bindFlag(fs, "progress-bar", "progress.bar")
	return cmd
}

// collectSeeds merges configured, argument and file targets, in that order.
func collectSeeds(configured, args []string, path string) ([]scraper.Target, error) {
	raw := append(append([]string(nil), configured...), args...)
	if path != "" {
		lines, err := readTargetsFile(path)
		if err != nil {
			return nil, err
		}
		raw = append(raw, lines...)
	}
	if len(raw) == 0 {
		return nil, errors.New("no targets: pass URLs, --targets-file or set targets")
	}
	seeds := make([]scraper.Target, 0, len(raw))
	var errs []error
	for _, u := range raw {
		t, err := scraper.NewTarget(u)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		seeds = append(seeds, t)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid targets: %w", err)
	}
	return seeds, nil
}

func readTargetsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets file: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	return out, nil
}

func runScrape(parent context.Context, e *env, rawRunID string, seeds []scraper.Target) error {
	cfg, logger := e.cfg, e.logger
	ruleSet, err := rules.Load(cfg.Rules)
	if err != nil {
		return err
	}
	if !cfg.HasDestination() {
		logger.Warn("no output destination configured; records are kept in memory only")
	}

	runID, err := uuid.ResolveRunID(rawRunID)
	if err != nil {
		return err
	}
	logger = logger.With(zap.Stringer("run_id", runID))

	ctx, stop := signalContext(parent)
	defer stop()

	cl := &closers{logger: logger}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(parent), releaseTimeout)
		defer cancel()
		cl.closeAll(releaseCtx)
	}()

	prog, err := buildProgress(ctx, cfg.Progress, e.errOut, logger, cl)
	if err != nil {
		return err
	}
	dests, err := buildDestinations(ctx, cfg.Output, cl)
	if err != nil {
		return err
	}
	notifier, err := buildNotifier(ctx, cfg.Notify, cl)
	if err != nil {
		return err
	}
	pol, err := buildPolicy(cfg, ruleSet, logger)
	if err != nil {
		return err
	}
	browser, err := buildBrowser(cfg.Fetcher)
	if err != nil {
		return err
	}
	cl.add(func(context.Context) error { return browser.Close() })
	fetch, err := buildFetcher(browser, cfg.Fetcher, ruleSet, logger)
	if err != nil {
		return err
	}
	ds, err := dataset.New(dataset.Config{
		RunID:     runID.String(),
		Fields:    ruleSet.OutputColumns(),
		KeyFields: ruleSet.KeyFields,
		RawFields: ruleSet.TypedFields(),
		Notifier:  notifier,
		Logger:    logger.Named("dataset"),
	})
	if err != nil {
		return err
	}

	if cfg.Output.FlushSchedule != "" && len(dests) > 0 {
		sched, err := ds.FlushEvery(ctx, cfg.Output.FlushSchedule, dests...)
		if err != nil {
			return err
		}
		cl.add(sched.Stop)
	}

	if cfg.Status.Addr != "" {
		srv, err := api.NewServer(prog.counters, prog.registry, logger.Named("status"))
		if err != nil {
			return err
		}
		srvCtx, srvCancel := context.WithCancel(context.WithoutCancel(ctx))
		srvDone := make(chan error, 1)
		go func() { srvDone <- srv.ListenAndServe(srvCtx, cfg.Status.Addr) }()
		cl.add(func(context.Context) error {
			srvCancel()
			return <-srvDone
		})
	}

	p, err := pipeline.New(pipeline.Config{
		Workers:      cfg.Pipeline.Workers,
		FetchTimeout: cfg.Fetcher.Timeout,
		FlushTimeout: cfg.Pipeline.FlushTimeout,
	}, pipeline.Deps{
		Rules:        ruleSet,
		Frontier:     frontier.New(),
		Policy:       pol,
		Fetcher:      fetch,
		Extractor:    extract.New(logger.Named("extract")),
		Dataset:      ds,
		Destinations: dests,
		Events:       prog.hub,
		Logger:       logger.Named("pipeline"),
	})
	if err != nil {
		return err
	}

	summary, runErr := p.Run(ctx, runID, seeds)

	// The bar must finish before the report is printed below it.
	hubCtx, hubCancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	if err := prog.hub.Close(hubCtx); err != nil {
		logger.Warn("progress hub did not drain", zap.Error(err))
	}
	hubCancel()

	if cfg.Report.Enabled {
		if err := writeReport(e.out, cfg.Report, summary, ds.Snapshot()); err != nil {
			logger.Warn("write report failed", zap.Error(err))
		}
	}
	if dropped := prog.hub.Dropped(); dropped > 0 {
		logger.Warn("progress events dropped", zap.Int64("dropped", dropped))
	}
	return runErr
}

func writeReport(stdout io.Writer, cfg config.ReportConfig, summary scraper.Summary, records []scraper.NormalizedRecord) error {
	opts := report.Options{
		RatingField: cfg.RatingField,
		TextField:   cfg.TextField,
		TitleField:  cfg.TitleField,
		TopN:        cfg.TopWords,
		Stopwords:   normalize.StopwordSet(cfg.Stopwords, cfg.ExtraStop),
	}
	if cfg.Sentiment {
		opts.Scorer = report.NewVader()
	}
	insights := report.Compute(records, opts)
	w := stdout
	if cfg.Path != "" {
		f, err := os.Create(cfg.Path)
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer f.Close()
		w = io.MultiWriter(stdout, f)
	}
	return report.Write(w, summary, insights)
}
