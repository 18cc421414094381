// Package app builds the long-lived services of a crawl from its
// configuration and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/browser"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/config"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/discovery"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/extract"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/extraction"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/fetcher/headless"
	runid "github.com/JakeFAU/vehicle-listing-crawler/internal/id/uuid"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/metrics"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/pacing"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/pipeline"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/progress"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/vehicle-listing-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/sitemap"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/state"
	gcsstorage "github.com/JakeFAU/vehicle-listing-crawler/internal/storage/gcs"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/storage/local"
	pgstore "github.com/JakeFAU/vehicle-listing-crawler/internal/storage/postgres"
)

// App holds the services shared by every command of one process.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	runID    uuid.UUID
	registry *prometheus.Registry
	metrics  *metrics.Recorder
	tracker  *progress.Tracker
	urls     *local.URLList
	records  *local.RecordFile
	state    *LoadedState

	closers []func(context.Context) error
}

// LoadedState is the durable state plus a flag set once Load succeeds.
type LoadedState struct {
	*state.State
	loaded atomic.Bool
}

// Load reads the durable files and marks the state ready.
func (s *LoadedState) Load(ctx context.Context) error {
	if err := s.State.Load(ctx); err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	s.loaded.Store(true)
	return nil
}

// Ready reports nil once Load has succeeded.
func (s *LoadedState) Ready() error {
	if !s.loaded.Load() {
		return errors.New("state not loaded")
	}
	return nil
}

// New builds the App. Network-facing services are created lazily by the
// commands that need them.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	id, err := runid.New().NewRawID()
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("run_id", id.String()))

	reg := metrics.NewRegistry()
	rec, err := metrics.NewRecorder(reg)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("init progress metrics: %w", err)
	}
	tracker := progress.NewTracker(id, logger, sinks.NewLogSink(logger.Named("progress")), promSink)

	urls := local.NewURLList(cfg.Paths.URLs)
	records := local.NewRecordFile(cfg.Paths.Records, logger.Named("records"))
	a := &App{
		cfg:      cfg,
		logger:   logger,
		runID:    id,
		registry: reg,
		metrics:  rec,
		tracker:  tracker,
		urls:     urls,
		records:  records,
		state:    &LoadedState{State: state.New(urls, records)},
	}
	a.closers = append(a.closers, tracker.Close)
	return a, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// RunID identifies this process's run.
func (a *App) RunID() uuid.UUID { return a.runID }

// Registry is the Prometheus registry served on /metrics.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Metrics returns the navigation and status API collectors.
func (a *App) Metrics() *metrics.Recorder { return a.metrics }

// Tracker returns the live run counters.
func (a *App) Tracker() *progress.Tracker { return a.tracker }

// State returns the durable set state.
func (a *App) State() *LoadedState { return a.state }

// Records returns the CSV record file.
func (a *App) Records() *local.RecordFile { return a.records }

// Pacer builds the rate and backoff controller.
func (a *App) Pacer() *pacing.Controller {
	p := a.cfg.Pacing
	return pacing.New(pacing.Config{
		Enabled:             p.Enabled,
		PageMin:             p.PageMin,
		PageMax:             p.PageMax,
		ItemMin:             p.ItemMin,
		ItemMax:             p.ItemMax,
		RestEvery:           p.RestEvery,
		RestDelay:           p.RestDelay,
		MinInterval:         p.MinInterval,
		BlockBackoffInitial: p.BlockBackoffInitial,
		BlockBackoffMax:     p.BlockBackoffMax,
	}, a.metrics, a.logger.Named("pacing"))
}

// SessionConfig translates the browser section for the chromedp session.
func (a *App) SessionConfig() headless.Config {
	b := a.cfg.Browser
	return headless.Config{
		Headless:          b.Headless,
		UserAgent:         b.UserAgent,
		Locale:            b.Locale,
		ViewportWidth:     b.ViewportWidth,
		ViewportHeight:    b.ViewportHeight,
		NavigationTimeout: b.NavTimeout,
		ActionTimeout:     b.ActionTimeout,
		ExecPath:          b.ExecPath,
	}
}

// DriverConfig translates the recovery delays.
func (a *App) DriverConfig() browser.DriverConfig {
	b := a.cfg.Browser
	dc := browser.DefaultDriverConfig()
	dc.RetryDelay = b.RetryDelay
	dc.RecreateDelay = b.RecreateDelay
	dc.SettleDelay = b.SettleDelay
	dc.TitleTimeout = b.TitleTimeout
	dc.MinTitleLen = b.MinTitleLen
	dc.PostReadyDelay = b.PostReadyDelay
	return dc
}

// NewDriver builds the navigation driver over chromedp sessions. The first
// session is launched on the first navigation. The driver is closed with
// the App.
func (a *App) NewDriver(pacer browser.Pacer) *browser.Driver {
	return a.newDriver(headless.Factory(a.SessionConfig()), pacer)
}

func (a *App) newDriver(factory browser.Factory, pacer browser.Pacer) *browser.Driver {
	d := browser.NewDriver(factory, a.DriverConfig(), pacer, a.metrics, a.logger.Named("browser"))
	a.closers = append(a.closers, func(context.Context) error { return d.Close() })
	return d
}

// DiscoveryConfig translates the discovery section.
func (a *App) DiscoveryConfig() discovery.Config {
	d := a.cfg.Discovery
	cfg := discovery.Config{
		MaxPages:      d.MaxPages,
		MaxLinks:      d.MaxLinks,
		Pagination:    d.Pagination,
		PageParam:     d.PageParam,
		LinkSelectors: d.LinkSelectors,
		AllowedHosts:  d.AllowedHosts,
		ConsentLabels: d.ConsentLabels,
		ClickSettle:   d.ClickSettle,
	}
	if len(cfg.ConsentLabels) == 0 {
		cfg.ConsentLabels = discovery.DefaultConsentLabels
	}
	if len(d.NextSelectors) > 0 || len(d.NextLabels) > 0 {
		cfg.Next = browser.Control{Name: "next", Selectors: d.NextSelectors, Labels: d.NextLabels}
	}
	return cfg
}

// ExtractionConfig translates the extraction and rules sections.
func (a *App) ExtractionConfig() extraction.Config {
	e := a.cfg.Extraction
	r := a.cfg.Rules
	return extraction.Config{
		MaxLinks:       e.MaxLinks,
		SoftRetryDelay: e.SoftRetryDelay,
		BodySelector:   e.BodySelector,
		DenialPhrases:  e.DenialPhrases,
		TitleSeparator: e.TitleSeparator,
		Thresholds: extract.Thresholds{
			MinYear:         r.MinYear,
			MaxKM:           r.MaxKM,
			MaxPrice:        r.MaxPrice,
			MinDealerRating: r.MinDealerRating,
		},
	}
}

// SearchURL translates the search section.
func (a *App) SearchURL() discovery.SearchURL {
	s := a.cfg.Search
	params := url.Values{}
	for k, v := range s.Params {
		params.Set(k, v)
	}
	return discovery.SearchURL{
		Base:      s.Base,
		Params:    params,
		Repeated:  s.Repeated,
		FromParam: s.FromParam,
		ToParam:   s.ToParam,
	}
}

// Splitter builds the year-range splitter probing through nav.
func (a *App) Splitter(nav discovery.Navigator) discovery.Splitter {
	return discovery.Splitter{
		Prober: discovery.BrowserProber{
			Nav:           nav,
			Search:        a.SearchURL(),
			ConsentLabels: a.DiscoveryConfig().ConsentLabels,
		},
		Ceiling:  a.cfg.Search.Split.Ceiling,
		PageSize: a.cfg.Search.Split.PageSize,
		Logger:   a.logger.Named("split"),
	}
}

// SplitSearches bisects the configured year span and returns one search URL
// per resulting range.
func (a *App) SplitSearches(ctx context.Context, nav discovery.Navigator) ([]string, error) {
	sp := a.cfg.Search.Split
	ranges, err := a.Splitter(nav).Split(ctx, sp.FromYear, sp.ToYear)
	if err != nil {
		return nil, fmt.Errorf("split year ranges: %w", err)
	}
	search := a.SearchURL()
	urls := make([]string, 0, len(ranges))
	for _, r := range ranges {
		u, err := search.ForRange(r)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, nil
}

// Searches returns the searches to traverse: split ranges when splitting is
// enabled, the search list file otherwise.
func (a *App) Searches(ctx context.Context, nav discovery.Navigator) ([]string, error) {
	if a.cfg.Search.Split.Enabled {
		return a.SplitSearches(ctx, nav)
	}
	searches, err := discovery.ReadSearchList(ctx, a.cfg.Paths.SearchList)
	if err != nil {
		return nil, err
	}
	if len(searches) == 0 {
		a.logger.Warn("Search list is empty", zap.String("path", a.cfg.Paths.SearchList))
	}
	return searches, nil
}

// Mirrors opens every configured record mirror. Each is closed with the App.
func (a *App) Mirrors(ctx context.Context) ([]pipeline.Mirror, error) {
	var mirrors []pipeline.Mirror
	if a.cfg.DB.DSN != "" {
		store, err := pgstore.NewRecordStore(ctx, pgstore.RecordStoreConfig{
			DSN:          a.cfg.DB.DSN,
			Table:        a.cfg.DB.Table,
			MaxConns:     a.cfg.DB.MaxConns,
			EnsureSchema: a.cfg.DB.EnsureSchema,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres mirror: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { store.Close(); return nil })
		mirrors = append(mirrors, store)
		a.logger.Info("Postgres mirror enabled", zap.String("table", a.cfg.DB.Table))
	}
	if a.cfg.PubSub.ProjectID != "" {
		pub, err := gcppublisher.New(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.Topic)
		if err != nil {
			return nil, fmt.Errorf("init pubsub mirror: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return pub.Close() })
		mirrors = append(mirrors, pub)
		a.logger.Info("Pubsub mirror enabled", zap.String("topic", a.cfg.PubSub.Topic))
	}
	return mirrors, nil
}

// Exporter opens the snapshot destination, or returns nil when export is off.
func (a *App) Exporter(ctx context.Context) (pipeline.ObjectStore, error) {
	e := a.cfg.Export
	switch {
	case e.GCSBucket != "":
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: e.GCSBucket, Prefix: e.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs export: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return store, nil
	case e.LocalDir != "":
		store, err := local.NewSnapshotStore(local.SnapshotConfig{BaseDir: filepath.Join(e.LocalDir, e.Prefix)})
		if err != nil {
			return nil, fmt.Errorf("init local export: %w", err)
		}
		return store, nil
	default:
		return nil, nil
	}
}

// Artifacts lists the durable files copied by the exporter.
func (a *App) Artifacts() []pipeline.Artifact {
	return []pipeline.Artifact{
		{Name: "urls.txt", Path: a.cfg.Paths.URLs, ContentType: "text/plain; charset=utf-8"},
		{Name: "records.csv", Path: a.cfg.Paths.Records, ContentType: "text/csv; charset=utf-8"},
	}
}

// Runner wires both phases over one driver. Sitemap seeding is enabled when
// sitemaps are configured.
func (a *App) Runner(ctx context.Context, driver *browser.Driver, pacer *pacing.Controller, searches []string) (*pipeline.Runner, error) {
	mirrors, err := a.Mirrors(ctx)
	if err != nil {
		return nil, err
	}
	exporter, err := a.Exporter(ctx)
	if err != nil {
		return nil, err
	}
	fanout := pipeline.NewFanout(a.runID.String(), a.logger.Named("mirror"), mirrors...)
	a.logger.Info("Record mirrors ready", zap.Int("mirrors", fanout.Len()), zap.Bool("export", exporter != nil))

	disc := discovery.NewPhase(a.DiscoveryConfig(), driver, a.state, pacer, a.tracker, a.logger.Named("discovery"))
	ext := extraction.NewPhase(a.ExtractionConfig(), driver, a.state, pacer, fanout, a.tracker, a.logger.Named("extraction"))

	opts := []pipeline.Option{pipeline.WithTracker(a.tracker)}
	if exporter != nil {
		opts = append(opts, pipeline.WithExporter(exporter))
	}
	if len(a.cfg.Discovery.Sitemaps) > 0 {
		opts = append(opts, pipeline.WithSeeder(sitemap.New(sitemap.Config{
			UserAgent: a.cfg.Browser.UserAgent,
			MaxURLs:   a.cfg.Discovery.SitemapMaxURLs,
		}, a.logger.Named("sitemap"))))
	}
	return pipeline.NewRunner(pipeline.Config{
		RunID:     a.runID.String(),
		Searches:  searches,
		Sitemaps:  a.cfg.Discovery.Sitemaps,
		Artifacts: a.Artifacts(),
	}, a.state, disc, ext, a.logger, opts...), nil
}

// Close releases services in reverse order of creation and flushes the
// logger.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("Error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}
