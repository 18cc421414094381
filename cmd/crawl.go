package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/api"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/app"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/pipeline"
)

const (
	modeFull     = pipeline.ModeFull
	modeDiscover = pipeline.ModeDiscover
	modeExtract  = pipeline.ModeExtract
)

func newCrawlCmd(use, short string, mode pipeline.Mode) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd.Context(), mode)
		},
	}
	cmd.Flags().Bool("headless", true, "run the browser without a window")
	cmd.Flags().Int("max-pages", 0, "page cap per search")
	cmd.Flags().Int("max-links", 0, "cap on discovered links and on the extraction frontier")
	return cmd
}

func runCrawl(ctx context.Context, mode pipeline.Mode) error {
	a, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	logger := a.Logger()

	stopStatus := startStatusServer(ctx, a)
	defer stopStatus()

	pacer := a.Pacer()
	driver := a.NewDriver(pacer)

	var searches []string
	if mode != pipeline.ModeExtract {
		if searches, err = a.Searches(ctx, driver); err != nil {
			return err
		}
	}

	runner, err := a.Runner(ctx, driver, pacer, searches)
	if err != nil {
		return err
	}
	rep, err := runner.Run(ctx, mode)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Run interrupted; progress is saved and the next run resumes from it",
				zap.Int("discovered", a.State().Counts().Discovered),
				zap.Int("extracted", a.State().Counts().Extracted),
			)
			return nil
		}
		return fmt.Errorf("run %s: %w", mode, err)
	}
	logger.Info("Crawl command finished",
		zap.Int("searches", rep.Discovery.Searches),
		zap.Int("pages", rep.Discovery.Pages),
		zap.Int("extracted", rep.Extraction.Processed),
		zap.Int("session_recreations", driver.Recreations()),
	)
	return nil
}

// startStatusServer serves the status API when status.addr is set. The
// returned func stops it.
func startStatusServer(ctx context.Context, a *app.App) func() {
	addr := a.Config().Status.Addr
	if addr == "" {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	server := api.NewServer(
		api.NewProgressHandler(a.Tracker(), a.State(), a.Logger()),
		api.Options{
			APIKey:   a.Config().Status.APIKey,
			Gatherer: a.Registry(),
			Metrics:  a.Metrics(),
			Ready:    a.State().Ready,
		},
		a.Logger().Named("api"),
	)
	go func() {
		defer close(done)
		if err := server.Run(ctx, addr); err != nil {
			a.Logger().Error("Status server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
