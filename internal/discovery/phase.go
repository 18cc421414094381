// Package discovery walks paginated search results and records the detail
// URLs they link to.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/browser"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/progress"
)

// Pagination modes.
const (
	PaginateClick = "click"
	PaginateURL   = "url"
)

// DefaultNext is the "next page" control of the result listing.
var DefaultNext = browser.Control{
	Name: "next",
	Selectors: []string{
		"a[rel='next']",
		"[data-testid*='next'] a",
		"button[aria-label*='Siguiente']",
		"a[aria-label*='Siguiente']",
	},
	Labels: []string{"Siguiente", "Weiter", "Next"},
}

// DefaultConsentLabels are the button captions of the cookie banner.
var DefaultConsentLabels = []string{
	"Aceptar", "Accept", "Rechazar", "Reject", "Einverstanden", "Alle akzeptieren", "Akzeptieren",
}

// Config bounds a discovery run.
type Config struct {
	MaxPages      int
	MaxLinks      int
	Pagination    string
	PageParam     string
	LinkSelectors []string
	AllowedHosts  []string
	Next          browser.Control
	ConsentLabels []string
	ClickSettle   time.Duration
}

// Browser is the part of the navigation driver discovery uses.
type Browser interface {
	Navigator
	Click(ctx context.Context, control browser.Control) (bool, error)
}

// Store records discovered URLs durably.
type Store interface {
	AddDiscovered(urls []string) ([]string, error)
	DiscoveredCount() int
}

// Pacer inserts the pause between result pages.
type Pacer interface {
	PagePause(ctx context.Context) error
	Wait(ctx context.Context, kind string, d time.Duration) error
}

// Summary totals a discovery run.
type Summary struct {
	Searches int
	Pages    int
	Added    int
	Total    int
	Capped   bool
}

// Phase traverses searches one at a time, each from page 1.
type Phase struct {
	cfg      Config
	browser  Browser
	store    Store
	pacer    Pacer
	progress *progress.Tracker
	logger   *zap.Logger
}

// NewPhase wires a discovery phase.
func NewPhase(cfg Config, b Browser, store Store, pacer Pacer, tracker *progress.Tracker, logger *zap.Logger) *Phase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Pagination == "" {
		cfg.Pagination = PaginateClick
	}
	if cfg.PageParam == "" {
		cfg.PageParam = DefaultPageParam
	}
	if cfg.ClickSettle <= 0 {
		cfg.ClickSettle = 2 * time.Second
	}
	if len(cfg.Next.Selectors) == 0 && len(cfg.Next.Labels) == 0 {
		cfg.Next = DefaultNext
	}
	return &Phase{
		cfg:      cfg,
		browser:  b,
		store:    store,
		pacer:    pacer,
		progress: tracker,
		logger:   logger,
	}
}

// Run traverses every search in order. It stops early once the discovered
// set reaches MaxLinks. Storage failures abort the run; a search that cannot
// be opened is skipped.
func (p *Phase) Run(ctx context.Context, searches []string) (Summary, error) {
	var sum Summary
	for i, search := range searches {
		if p.linkCapReached() {
			sum.Capped = true
			p.logger.Info("Link cap reached, ending discovery",
				zap.Int("max_links", p.cfg.MaxLinks))
			break
		}
		p.logger.Info("Traversing search",
			zap.Int("search", i+1),
			zap.Int("of", len(searches)),
			zap.String("url", search))
		pages, added, err := p.traverse(ctx, search)
		sum.Searches++
		sum.Pages += pages
		sum.Added += added
		if err != nil {
			sum.Total = p.store.DiscoveredCount()
			return sum, err
		}
	}
	sum.Total = p.store.DiscoveredCount()
	if p.linkCapReached() {
		sum.Capped = true
	}
	return sum, nil
}

func (p *Phase) traverse(ctx context.Context, search string) (int, int, error) {
	if err := p.browser.Goto(ctx, search); err != nil {
		if errors.Is(err, browser.ErrNavigationFailed) {
			p.logger.Warn("Skipping search", zap.String("url", search), zap.Error(err))
			return 0, 0, nil
		}
		return 0, 0, err
	}
	p.browser.AcceptConsent(ctx, p.cfg.ConsentLabels)

	pages, added := 0, 0
	current := search
	for page := 1; ; page++ {
		links, err := p.harvest(ctx, current)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return pages, added, fmt.Errorf("discover %s: %w", search, ctxErr)
			}
			p.logger.Warn("Could not read result page",
				zap.String("url", current), zap.Int("page", page), zap.Error(err))
			return pages, added, nil
		}
		delta, err := p.store.AddDiscovered(links)
		if err != nil {
			return pages, added, err
		}
		pages++
		added += len(delta)
		p.progress.Page(current, len(delta))
		p.logger.Info("Harvested page",
			zap.Int("page", page),
			zap.Int("links", len(links)),
			zap.Int("new", len(delta)),
			zap.Int("total", p.store.DiscoveredCount()))

		if p.linkCapReached() || (p.cfg.MaxPages > 0 && page >= p.cfg.MaxPages) {
			return pages, added, nil
		}
		if p.cfg.Pagination == PaginateURL && len(links) == 0 {
			return pages, added, nil
		}

		next, ok, err := p.advance(ctx, search, page+1)
		if err != nil {
			return pages, added, err
		}
		if !ok {
			p.logger.Info("Pagination exhausted", zap.String("url", search), zap.Int("pages", page))
			return pages, added, nil
		}
		current = next
	}
}

func (p *Phase) harvest(ctx context.Context, pageURL string) ([]string, error) {
	html, err := p.browser.HTML(ctx)
	if err != nil {
		return nil, err
	}
	return Harvest(html, pageURL, p.cfg.LinkSelectors, p.cfg.AllowedHosts)
}

// advance moves to page n of search. It reports false when there is no next
// page to go to.
func (p *Phase) advance(ctx context.Context, search string, n int) (string, bool, error) {
	if p.cfg.Pagination == PaginateURL {
		if err := p.pacer.PagePause(ctx); err != nil {
			return "", false, err
		}
		target, err := WithPage(search, p.cfg.PageParam, n)
		if err != nil {
			return "", false, err
		}
		if err := p.browser.Goto(ctx, target); err != nil {
			if errors.Is(err, browser.ErrNavigationFailed) {
				p.logger.Warn("Next page failed to load", zap.String("url", target), zap.Error(err))
				return "", false, nil
			}
			return "", false, err
		}
		return target, true, nil
	}

	clicked, err := p.browser.Click(ctx, p.cfg.Next)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", false, fmt.Errorf("next page: %w", ctxErr)
		}
		p.logger.Warn("Next control failed", zap.Error(err))
		return "", false, nil
	}
	if !clicked {
		return "", false, nil
	}
	if err := p.pacer.Wait(ctx, "settle", p.cfg.ClickSettle); err != nil {
		return "", false, err
	}
	if err := p.pacer.PagePause(ctx); err != nil {
		return "", false, err
	}
	return search, true, nil
}

func (p *Phase) linkCapReached() bool {
	return p.cfg.MaxLinks > 0 && p.store.DiscoveredCount() >= p.cfg.MaxLinks
}
