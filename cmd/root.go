// Package cmd defines the review-scraper command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-scraper/internal/config"
	"github.com/JakeFAU/review-scraper/internal/logging"
	pkgconfig "github.com/JakeFAU/review-scraper/pkg/config"
)

// viperKeyAnnotation marks flags that override a configuration key.
const viperKeyAnnotation = "viper_key"

type envKeyType struct{}

var envKey envKeyType

// env is what every subcommand receives from the root pre-run hook.
type env struct {
	cfg        config.Config
	logger     *zap.Logger
	configFile string
	out        io.Writer
	errOut     io.Writer
}

func envFrom(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("command environment not initialized")
	}
	return e, nil
}

// bindFlag ties flag name on fs to configuration key.
func bindFlag(fs *pflag.FlagSet, name, key string) {
	if err := fs.SetAnnotation(name, viperKeyAnnotation, []string{key}); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "review-scraper",
		Short: "Extract structured reviews from web pages into tabular datasets.",
		Long: `review-scraper fetches review pages through a headless browser or a plain
HTTP collector, extracts records with declarative rules, normalizes them and
writes a deduplicated dataset to CSV, SQLite, Postgres, GCS or MongoDB.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v, used, err := pkgconfig.NewViper(cfgFile)
			if err != nil {
				return err
			}
			var bindErr error
			cmd.Flags().VisitAll(func(f *pflag.Flag) {
				if keys, ok := f.Annotations[viperKeyAnnotation]; ok && bindErr == nil {
					bindErr = v.BindPFlag(keys[0], f)
				}
			})
			if bindErr != nil {
				return fmt.Errorf("bind flags: %w", bindErr)
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)
			if used != "" {
				logger.Debug("using config file", zap.String("path", used))
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &env{
				cfg:        cfg,
				logger:     logger,
				configFile: used,
				out:        cmd.OutOrStdout(),
				errOut:     cmd.ErrOrStderr(),
			}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, err := envFrom(cmd.Context()); err == nil {
				_ = e.logger.Sync()
			}
		},
	}

	fs := cmd.PersistentFlags()
	fs.StringVar(&cfgFile, "config", "", "config file (default ./scraper.yaml, $HOME/.review-scraper/scraper.yaml)")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.Bool("dev", false, "human-readable development logging")
	fs.String("rules", "", "rule file (.yaml, .yml, .json5)")
	bindFlag(fs, "log-level", "logging.level")
	bindFlag(fs, "dev", "logging.development")
	bindFlag(fs, "rules", "rules")

	cmd.AddCommand(newScrapeCmd(), newRulesCmd())
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
