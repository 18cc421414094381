// Package pipeline runs the crawl phases in order against one set of durable
// files and reports what each phase changed.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/discovery"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/extraction"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/progress"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/state"
)

// Mode selects which phases a run executes.
type Mode string

// Run modes.
const (
	ModeFull     Mode = "full"
	ModeDiscover Mode = "discover"
	ModeExtract  Mode = "extract"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeFull, ModeDiscover, ModeExtract:
		return m, nil
	case "":
		return ModeFull, nil
	default:
		return "", fmt.Errorf("unknown run mode %q", s)
	}
}

func (m Mode) discovers() bool { return m == ModeFull || m == ModeDiscover }
func (m Mode) extracts() bool  { return m == ModeFull || m == ModeExtract }

// State is the durable set state shared by the phases.
type State interface {
	Load(ctx context.Context) error
	AddDiscovered(urls []string) ([]string, error)
	Counts() state.Counts
}

// Discoverer runs the link discovery phase.
type Discoverer interface {
	Run(ctx context.Context, searches []string) (discovery.Summary, error)
}

// Extractor runs the detail extraction phase.
type Extractor interface {
	Run(ctx context.Context) (extraction.Summary, error)
}

// Seeder lists detail URLs published in a sitemap.
type Seeder interface {
	Collect(ctx context.Context, sitemapURL string) ([]string, error)
}

// Config lists the inputs of a run.
type Config struct {
	RunID     string
	Searches  []string
	Sitemaps  []string
	Artifacts []Artifact
}

// Report is the outcome of a run.
type Report struct {
	RunID      string
	Mode       Mode
	Seeded     int
	Discovery  discovery.Summary
	Extraction extraction.Summary
	Counts     state.Counts
	Exported   []string
	Elapsed    time.Duration
}

// Runner sequences loading, seeding, discovery, extraction and export.
type Runner struct {
	cfg      Config
	state    State
	discover Discoverer
	extract  Extractor
	seeder   Seeder
	exporter ObjectStore
	progress *progress.Tracker
	logger   *zap.Logger
	now      func() time.Time
}

// Option customizes a Runner.
type Option func(*Runner)

// WithSeeder enables sitemap seeding before discovery.
func WithSeeder(s Seeder) Option {
	return func(r *Runner) { r.seeder = s }
}

// WithExporter uploads the durable files when the run ends cleanly.
func WithExporter(store ObjectStore) Option {
	return func(r *Runner) { r.exporter = store }
}

// WithTracker reports phase boundaries and set sizes to t.
func WithTracker(t *progress.Tracker) Option {
	return func(r *Runner) { r.progress = t }
}

// NewRunner wires a Runner. discover or extract may be nil when the modes
// that need them are not used.
func NewRunner(cfg Config, st State, discover Discoverer, extract Extractor, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		cfg:      cfg,
		state:    st,
		discover: discover,
		extract:  extract,
		logger:   logger.With(zap.String("run_id", cfg.RunID)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the phases selected by mode. Every record and URL is already
// durable when Run returns, including on error or cancellation.
func (r *Runner) Run(ctx context.Context, mode Mode) (Report, error) {
	start := r.now()
	rep := Report{RunID: r.cfg.RunID, Mode: mode}

	if err := r.state.Load(ctx); err != nil {
		return rep, fmt.Errorf("load state: %w", err)
	}
	r.logCounts("loaded")

	if mode.discovers() {
		if r.discover == nil {
			return rep, fmt.Errorf("mode %s requires a discovery phase", mode)
		}
		seeded, err := r.seed(ctx)
		rep.Seeded = seeded
		if err != nil {
			return rep, err
		}
		if err := r.phase(ctx, "discovery", func(ctx context.Context) error {
			sum, err := r.discover.Run(ctx, r.cfg.Searches)
			rep.Discovery = sum
			return err
		}); err != nil {
			return rep, err
		}
		r.logCounts("after discovery")
	}

	if mode.extracts() {
		if r.extract == nil {
			return rep, fmt.Errorf("mode %s requires an extraction phase", mode)
		}
		if err := r.phase(ctx, "extraction", func(ctx context.Context) error {
			sum, err := r.extract.Run(ctx)
			rep.Extraction = sum
			return err
		}); err != nil {
			return rep, err
		}
		r.logCounts("after extraction")
	}

	rep.Counts = r.state.Counts()
	uris, err := Export(ctx, r.exporter, r.cfg.RunID, r.cfg.Artifacts)
	rep.Exported = uris
	if err != nil {
		r.logger.Warn("Snapshot export failed", zap.Error(err))
	} else if len(uris) > 0 {
		r.logger.Info("Snapshot exported", zap.Strings("objects", uris))
	}

	rep.Elapsed = r.now().Sub(start)
	r.logger.Info("Run finished",
		zap.String("mode", string(mode)),
		zap.Int("urls_total", rep.Counts.Discovered),
		zap.Int("links_added", rep.Discovery.Added+rep.Seeded),
		zap.Int("extracted_this_run", rep.Extraction.Processed),
		zap.Int("accepted", rep.Extraction.Accepted),
		zap.Int("blocked", rep.Extraction.Blocked),
		zap.Int("skipped", rep.Extraction.Skipped),
		zap.Int("failed", rep.Extraction.Failed),
		zap.Duration("elapsed", rep.Elapsed),
	)
	return rep, nil
}

func (r *Runner) phase(ctx context.Context, name string, fn func(context.Context) error) error {
	r.progress.PhaseStarted(name)
	start := r.now()
	err := fn(ctx)
	r.progress.PhaseDone(name, r.now().Sub(start))
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// seed adds sitemap URLs to the discovered set. A sitemap that cannot be read
// is logged and skipped; storage failures stop the run.
func (r *Runner) seed(ctx context.Context) (int, error) {
	if r.seeder == nil || len(r.cfg.Sitemaps) == 0 {
		return 0, nil
	}
	total := 0
	for _, sm := range r.cfg.Sitemaps {
		urls, err := r.seeder.Collect(ctx, sm)
		if err != nil {
			if ctx.Err() != nil {
				return total, fmt.Errorf("seed %s: %w", sm, ctx.Err())
			}
			r.logger.Warn("Sitemap skipped", zap.String("sitemap", sm), zap.Error(err))
			continue
		}
		added, err := r.state.AddDiscovered(urls)
		if err != nil {
			return total, fmt.Errorf("seed %s: %w", sm, err)
		}
		total += len(added)
		r.logger.Info("Sitemap seeded",
			zap.String("sitemap", sm),
			zap.Int("found", len(urls)),
			zap.Int("added", len(added)),
		)
	}
	return total, nil
}

func (r *Runner) logCounts(stage string) {
	c := r.state.Counts()
	r.progress.SetTotals(c.Discovered, c.Extracted, c.Pending)
	r.logger.Info("State "+stage,
		zap.Int("discovered", c.Discovered),
		zap.Int("extracted", c.Extracted),
		zap.Int("pending", c.Pending),
	)
}
