// Package cmd defines the listingcrawler command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/app"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/config"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/logging"
)

type appKeyType string

const appKey appKeyType = "app"

type rootOptions struct {
	configFile string
	envFile    string

	app *app.App
}

// closeApp releases the App built by the pre-run hook, if any.
func (o *rootOptions) closeApp() {
	if o.app == nil {
		return
	}
	o.app.Close(context.Background())
	o.app = nil
}

// newApp loads the env file and configuration, applies flag overrides and
// builds the App.
func newApp(opts *rootOptions, cmd *cobra.Command) (*app.App, error) {
	if err := config.LoadEnvFile(opts.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := applyFlagOverrides(cmd, &cfg); err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return app.New(cfg, logger)
}

func newRootCmd() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "listingcrawler",
		Short: "Resumable crawl-and-extract pipeline for vehicle listings.",
		Long: `listingcrawler walks paginated vehicle searches in a real browser, records
every detail page URL it finds, and then visits each detail page once to
extract price, mileage, registration and power into an append-only CSV file.

Every discovered URL and every record is written to disk before the next
step, so an interrupted run picks up where it stopped.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts, cmd)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			opts.app = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")

	cmd.AddCommand(
		newCrawlCmd("crawl", "Discover detail URLs, then extract records", modeFull),
		newCrawlCmd("discover", "Only walk the searches and record detail URLs", modeDiscover),
		newCrawlCmd("extract", "Only extract records for discovered URLs", modeExtract),
		newSplitCmd(),
		newStatusCmd(),
	)
	return cmd, opts
}

// applyFlagOverrides copies explicitly set subcommand flags over the loaded
// configuration.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Lookup("headless") != nil && flags.Changed("headless") {
		v, err := flags.GetBool("headless")
		if err != nil {
			return fmt.Errorf("read --headless: %w", err)
		}
		cfg.Browser.Headless = v
	}
	if flags.Lookup("max-pages") != nil && flags.Changed("max-pages") {
		v, err := flags.GetInt("max-pages")
		if err != nil {
			return fmt.Errorf("read --max-pages: %w", err)
		}
		cfg.Discovery.MaxPages = v
	}
	if flags.Lookup("max-links") != nil && flags.Changed("max-links") {
		v, err := flags.GetInt("max-links")
		if err != nil {
			return fmt.Errorf("read --max-links: %w", err)
		}
		cfg.Discovery.MaxLinks = v
		cfg.Extraction.MaxLinks = v
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func resolveApp(ctx context.Context) (*app.App, error) {
	a, ok := ctx.Value(appKey).(*app.App)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// run executes root and then closes the App, whether or not the command
// succeeded. Cobra skips post-run hooks when RunE fails.
func run(ctx context.Context, root *cobra.Command, opts *rootOptions) error {
	defer opts.closeApp()
	return root.ExecuteContext(ctx)
}

// Execute runs the root command until it finishes or the process receives
// SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, opts := newRootCmd()
	if err := run(ctx, root, opts); err != nil {
		zap.L().Error("Command execution failed", zap.Error(err))
		stop()
		os.Exit(1)
	}
}
