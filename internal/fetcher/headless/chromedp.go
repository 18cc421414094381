// Package headless implements browser.Session on top of chromedp and a
// locally launched Chrome.
package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/browser"
)

// Config is the identity of a browser session. Every recreated session uses
// the same values.
type Config struct {
	Headless          bool
	UserAgent         string
	Locale            string
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	ActionTimeout     time.Duration
	ExecPath          string
}

const (
	defaultNavTimeout    = 60 * time.Second
	defaultActionTimeout = 15 * time.Second
	defaultWidth         = 1280
	defaultHeight        = 800
)

// Session is a single Chrome tab.
type Session struct {
	cfg         Config
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

var _ browser.Session = (*Session)(nil)

// NewSession launches Chrome and applies the locale, identity and viewport.
func NewSession(ctx context.Context, cfg Config) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	s := &Session{
		cfg:         cfg,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}
	// The first Run starts the browser, so it must use the tab context itself.
	if err := chromedp.Run(tabCtx, s.emulationAction()); err != nil {
		s.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

// Factory returns a browser.Factory that launches sessions with cfg.
func Factory(cfg Config) browser.Factory {
	return func(ctx context.Context) (browser.Session, error) {
		return NewSession(ctx, cfg)
	}
}

// Navigate loads url within the navigation timeout.
func (s *Session) Navigate(ctx context.Context, url string) error {
	err := s.run(ctx, s.navTimeout(), chromedp.Navigate(url))
	if err == nil {
		return nil
	}
	return &browser.NavigationError{Kind: s.classify(err), URL: url, Err: err}
}

// Title returns document.title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, s.actionTimeout(), chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return strings.TrimSpace(title), nil
}

// Text returns the innerText of the first element matching selector, or ""
// when nothing matches.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("encode selector: %w", err)
	}
	expr := fmt.Sprintf(`(function(){const el=document.querySelector(%s);return el?el.innerText:"";})()`, sel)
	var text string
	if err := s.run(ctx, s.actionTimeout(), chromedp.Evaluate(expr, &text)); err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return text, nil
}

// HTML returns the outer HTML of the document element.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, s.actionTimeout(), chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

// Click scrolls to and clicks the first visible, enabled element that
// matches control.
func (s *Session) Click(ctx context.Context, control browser.Control) (bool, error) {
	expr, err := clickScript(control)
	if err != nil {
		return false, err
	}
	var clicked bool
	if err := s.run(ctx, s.actionTimeout(), chromedp.Evaluate(expr, &clicked)); err != nil {
		return false, fmt.Errorf("click: %w", err)
	}
	return clicked, nil
}

// Alive reports whether the tab and the browser process are still up.
func (s *Session) Alive() bool {
	return s.tabCtx.Err() == nil && s.allocCtx.Err() == nil
}

// Close closes the tab and kills the browser.
func (s *Session) Close() error {
	s.tabCancel()
	s.allocCancel()
	return nil
}

// run executes actions on the tab with a timeout, also stopping when the
// caller's ctx is done.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return err //nolint:wrapcheck // callers classify the raw chromedp error
	}
	return nil
}

// classify maps a chromedp failure to a recovery kind. A dead tab or browser,
// or chromedp reporting that its target is gone, means the session is
// unusable; anything else is worth retrying in place.
func (s *Session) classify(err error) browser.ErrorKind {
	if !s.Alive() || isTerminal(err) {
		return browser.KindSessionTerminated
	}
	return browser.KindTransient
}

func isTerminal(err error) bool {
	return errors.Is(err, chromedp.ErrInvalidContext) ||
		errors.Is(err, chromedp.ErrInvalidTarget) ||
		errors.Is(err, chromedp.ErrChannelClosed)
}

func (s *Session) emulationAction() chromedp.Action {
	width, height := s.viewport()
	return chromedp.Tasks{
		chromedp.ActionFunc(func(ctx context.Context) error {
			ua := emulation.SetUserAgentOverride(s.userAgent())
			if s.cfg.Locale != "" {
				ua = ua.WithAcceptLanguage(s.cfg.Locale)
			}
			if err := ua.Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
			if s.cfg.Locale != "" {
				// Older Chrome builds reject locale overrides; Accept-Language still applies.
				_ = emulation.SetLocaleOverride().WithLocale(icuLocale(s.cfg.Locale)).Do(ctx)
			}
			return nil
		}),
		chromedp.EmulateViewport(int64(width), int64(height)),
	}
}

func (s *Session) userAgent() string {
	if s.cfg.UserAgent != "" {
		return s.cfg.UserAgent
	}
	return DefaultUserAgent
}

func (s *Session) viewport() (int, int) {
	return viewportOf(s.cfg)
}

func (s *Session) navTimeout() time.Duration {
	if s.cfg.NavigationTimeout > 0 {
		return s.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}

func (s *Session) actionTimeout() time.Duration {
	if s.cfg.ActionTimeout > 0 {
		return s.cfg.ActionTimeout
	}
	return defaultActionTimeout
}

// DefaultUserAgent is a desktop Chrome identity.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120 Safari/537.36"

func viewportOf(cfg Config) (int, int) {
	width, height := cfg.ViewportWidth, cfg.ViewportHeight
	if width <= 0 {
		width = defaultWidth
	}
	if height <= 0 {
		height = defaultHeight
	}
	return width, height
}

// flags returns the Chrome command-line switches for cfg. A false value
// removes a default switch.
func flags(cfg Config) map[string]any {
	headless := any(false)
	if cfg.Headless {
		headless = "new"
	}
	out := map[string]any{
		"headless":               headless,
		"disable-gpu":            true,
		"hide-scrollbars":        true,
		"enable-automation":      false,
		"disable-dev-shm-usage":  true,
		"no-sandbox":             true,
		"disable-blink-features": "AutomationControlled",
	}
	if cfg.Locale != "" {
		out["lang"] = cfg.Locale
	}
	return out
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range flags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	width, height := viewportOf(cfg)
	opts = append(opts,
		chromedp.WindowSize(width, height),
		chromedp.UserAgent(userAgentOf(cfg)),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

func userAgentOf(cfg Config) string {
	if cfg.UserAgent != "" {
		return cfg.UserAgent
	}
	return DefaultUserAgent
}

// icuLocale turns "es-ES" into the "es_ES" form the DevTools protocol expects.
func icuLocale(locale string) string {
	return strings.ReplaceAll(locale, "-", "_")
}

const clickTemplate = `(function(selectors, labels) {
  const norm = (s) => (s || "").replace(/\s+/g, " ").trim().toLowerCase();
  const wanted = labels.map(norm).filter((s) => s.length > 0);
  const usable = (el) => {
    if (!el || el.disabled || el.getAttribute("aria-disabled") === "true") return false;
    return !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
  };
  const hit = (el) => {
    if (!usable(el)) return false;
    el.scrollIntoView({block: "center"});
    el.click();
    return true;
  };
  for (const sel of selectors) {
    let nodes = [];
    try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
    for (const el of nodes) { if (hit(el)) return true; }
  }
  if (wanted.length === 0) return false;
  for (const el of document.querySelectorAll("a, button, [role=button], [role=link]")) {
    const text = norm(el.innerText || el.textContent);
    const aria = norm(el.getAttribute("aria-label"));
    if (wanted.some((w) => text === w || aria.includes(w)) && hit(el)) return true;
  }
  return false;
})(%s, %s)`

func clickScript(control browser.Control) (string, error) {
	selectors := control.Selectors
	if selectors == nil {
		selectors = []string{}
	}
	labels := control.Labels
	if labels == nil {
		labels = []string{}
	}
	sel, err := json.Marshal(selectors)
	if err != nil {
		return "", fmt.Errorf("encode selectors: %w", err)
	}
	lab, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("encode labels: %w", err)
	}
	return fmt.Sprintf(clickTemplate, sel, lab), nil
}
