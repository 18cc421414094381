// Package extraction visits discovered detail pages and appends one record
// per visit to the record store.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/browser"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/extract"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/listing"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/progress"
)

// Config controls the extraction phase.
type Config struct {
	// MaxLinks caps the frontier taken from the sorted discovered set.
	MaxLinks       int
	SoftRetryDelay time.Duration
	BodySelector   string
	DenialPhrases  []string
	TitleSeparator string
	Thresholds     extract.Thresholds
}

// Browser is the part of the navigation driver extraction uses.
type Browser interface {
	Goto(ctx context.Context, url string) error
	Title(ctx context.Context) string
	Text(ctx context.Context, selector string) (string, error)
}

// State is the frontier and the record sink.
type State interface {
	Pending(limit int) []string
	IsExtracted(id string) bool
	RecordExtracted(rec listing.Record) error
}

// Pacer inserts pauses after items and around denial pages.
type Pacer interface {
	Wait(ctx context.Context, kind string, d time.Duration) error
	ItemPause(ctx context.Context, processed int) error
	ObserveOutcome(ctx context.Context, blocked bool) error
}

// Observer is told about every record after it has been written.
// Observers must not fail the run.
type Observer interface {
	Observe(ctx context.Context, rec listing.Record)
}

// Summary totals an extraction run.
type Summary struct {
	Frontier  int
	Processed int
	Accepted  int
	Skipped   int
	Blocked   int
	Failed    int
	Retried   int
}

// Phase is the detail extraction loop.
type Phase struct {
	cfg       Config
	browser   Browser
	state     State
	pacer     Pacer
	extractor *extract.Extractor
	observer  Observer
	progress  *progress.Tracker
	logger    *zap.Logger
}

// NewPhase wires an extraction phase. observer and tracker may be nil.
func NewPhase(cfg Config, b Browser, st State, pacer Pacer, observer Observer, tracker *progress.Tracker, logger *zap.Logger) *Phase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BodySelector == "" {
		cfg.BodySelector = "body"
	}
	if len(cfg.DenialPhrases) == 0 {
		cfg.DenialPhrases = extract.DefaultDenialPhrases
	}
	return &Phase{
		cfg:       cfg,
		browser:   b,
		state:     st,
		pacer:     pacer,
		extractor: extract.NewExtractor(cfg.TitleSeparator),
		observer:  observer,
		progress:  tracker,
		logger:    logger,
	}
}

// Run visits the pending URLs in ascending order. Each record is written
// before the next URL is visited. Only storage failures and cancellation
// stop the run early.
func (p *Phase) Run(ctx context.Context) (Summary, error) {
	frontier := p.state.Pending(p.cfg.MaxLinks)
	sum := Summary{Frontier: len(frontier)}
	p.logger.Info("Extraction frontier", zap.Int("pending", len(frontier)))

	for i, u := range frontier {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("extraction interrupted: %w", err)
		}
		if id := listing.ExtractID(u); id != "" && p.state.IsExtracted(id) {
			continue
		}
		rec, retried, err := p.process(ctx, u)
		if err != nil {
			return sum, err
		}
		if retried {
			sum.Retried++
		}
		if err := p.state.RecordExtracted(rec); err != nil {
			return sum, err
		}
		sum.Processed++
		outcome := progress.Classify(rec)
		sum.count(outcome)
		p.progress.Record(u, outcome)
		if p.observer != nil {
			p.observer.Observe(ctx, rec)
		}
		p.logger.Info("Recorded listing",
			zap.Int("n", i+1),
			zap.Int("of", len(frontier)),
			zap.String("url", u),
			zap.String("outcome", string(outcome)),
			zap.String("skip_reason", rec.SkipReason))

		if err := p.pacer.ObserveOutcome(ctx, rec.Blocked); err != nil {
			return sum, err
		}
		if err := p.pacer.ItemPause(ctx, sum.Processed); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// process visits u, retrying once when the page was blocked, untitled or
// unreachable. The second result is kept whatever it is.
func (p *Phase) process(ctx context.Context, u string) (listing.Record, bool, error) {
	rec, again, err := p.visit(ctx, u)
	if err != nil || !again {
		return rec, false, err
	}
	p.logger.Warn("Soft retry",
		zap.String("url", u),
		zap.Bool("blocked", rec.Blocked),
		zap.String("skip_reason", rec.SkipReason),
		zap.Duration("delay", p.cfg.SoftRetryDelay))
	if err := p.pacer.Wait(ctx, "soft_retry", p.cfg.SoftRetryDelay); err != nil {
		return listing.Record{}, true, err
	}
	rec, _, err = p.visit(ctx, u)
	return rec, true, err
}

// visit builds the record for one attempt and reports whether the attempt
// deserves a retry.
func (p *Phase) visit(ctx context.Context, u string) (listing.Record, bool, error) {
	if err := p.browser.Goto(ctx, u); err != nil {
		if errors.Is(err, browser.ErrNavigationFailed) {
			p.logger.Warn("Navigation failed", zap.String("url", u), zap.Error(err))
			return listing.Placeholder(u, listing.ReasonNavigationFailed), true, nil
		}
		return listing.Record{}, false, err
	}

	title := p.browser.Title(ctx)
	if extract.IsBlocked(title, p.cfg.DenialPhrases) {
		return listing.Blocked(u, title), true, nil
	}

	body, err := p.browser.Text(ctx, p.cfg.BodySelector)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return listing.Record{}, false, fmt.Errorf("read %s: %w", u, ctxErr)
		}
		p.logger.Warn("Could not read page text", zap.String("url", u), zap.Error(err))
	}
	rec := p.extractor.Extract(u, extract.Document{Title: title, Body: body})
	return p.cfg.Thresholds.Apply(rec), title == "", nil
}

func (s *Summary) count(o progress.Outcome) {
	switch o {
	case progress.OutcomeAccepted:
		s.Accepted++
	case progress.OutcomeSkipped:
		s.Skipped++
	case progress.OutcomeBlocked:
		s.Blocked++
	case progress.OutcomeFailed:
		s.Failed++
	}
}
