package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/metrics"
)

// Pacer is the part of the rate controller the Driver needs.
type Pacer interface {
	BeforeNavigate(ctx context.Context) error
	Wait(ctx context.Context, kind string, d time.Duration) error
}

// DriverConfig holds the fixed delays of the recovery and readiness policy.
type DriverConfig struct {
	RetryDelay     time.Duration
	RecreateDelay  time.Duration
	SettleDelay    time.Duration
	TitleTimeout   time.Duration
	TitlePoll      time.Duration
	MinTitleLen    int
	PostReadyDelay time.Duration
	TitleAttempts  int
}

// DefaultDriverConfig returns the delays used against the live site.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		RetryDelay:     5 * time.Second,
		RecreateDelay:  1500 * time.Millisecond,
		SettleDelay:    1500 * time.Millisecond,
		TitleTimeout:   15 * time.Second,
		TitlePoll:      250 * time.Millisecond,
		MinTitleLen:    3,
		PostReadyDelay: 800 * time.Millisecond,
		TitleAttempts:  3,
	}
}

// Driver owns the single browser session of a run and rebuilds it when it
// dies. It is not safe for concurrent use.
type Driver struct {
	factory Factory
	cfg     DriverConfig
	pacer   Pacer
	metrics *metrics.Recorder
	logger  *zap.Logger

	session     Session
	dead        bool
	recreations int
}

// NewDriver returns a Driver that builds sessions with factory on demand.
func NewDriver(factory Factory, cfg DriverConfig, pacer Pacer, rec *metrics.Recorder, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TitleAttempts <= 0 {
		cfg.TitleAttempts = 1
	}
	return &Driver{
		factory: factory,
		cfg:     cfg,
		pacer:   pacer,
		metrics: rec,
		logger:  logger,
	}
}

// Goto navigates to url and waits for the page title to appear.
//
// A terminated session is discarded and rebuilt before the single retry;
// any other failure is retried once on the same session after RetryDelay.
// When the retry fails too, the error wraps ErrNavigationFailed.
func (d *Driver) Goto(ctx context.Context, url string) error {
	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		err := d.navigate(ctx, url)
		if err == nil {
			d.metrics.ObserveNavigation(url, "ok")
			return d.awaitReady(ctx)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("navigate %s: %w", url, ctxErr)
		}
		lastErr = err
		kind := KindOf(err)
		d.metrics.ObserveNavigation(url, kind.String())
		if kind == KindSessionTerminated {
			d.discard()
		}
		if attempt == 2 {
			break
		}

		d.metrics.ObserveNavigationRetry(kind.String())
		delay := d.cfg.RetryDelay
		if kind == KindSessionTerminated {
			delay = d.cfg.RecreateDelay
			d.logger.Warn("Browser session terminated, recreating",
				zap.String("url", url), zap.Error(err))
		} else {
			d.logger.Warn("Navigation failed, retrying",
				zap.String("url", url), zap.Duration("delay", delay), zap.Error(err))
		}
		if err := d.pacer.Wait(ctx, "retry", delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrNavigationFailed, url, lastErr)
}

func (d *Driver) navigate(ctx context.Context, url string) error {
	sess, err := d.ensureSession(ctx)
	if err != nil {
		return err
	}
	if err := d.pacer.BeforeNavigate(ctx); err != nil {
		return err
	}
	return sess.Navigate(ctx, url)
}

// awaitReady lets the page settle, then polls until the title is longer than
// MinTitleLen. Running out of polls is not an error.
func (d *Driver) awaitReady(ctx context.Context) error {
	if err := d.pacer.Wait(ctx, "settle", d.cfg.SettleDelay); err != nil {
		return err
	}
	polls := 1
	if d.cfg.TitlePoll > 0 {
		polls = int(d.cfg.TitleTimeout / d.cfg.TitlePoll)
	}
	for i := 0; i < polls; i++ {
		title, err := d.session.Title(ctx)
		if err == nil && len([]rune(title)) > d.cfg.MinTitleLen {
			break
		}
		if err := d.pacer.Wait(ctx, "settle", d.cfg.TitlePoll); err != nil {
			return err
		}
	}
	return d.pacer.Wait(ctx, "settle", d.cfg.PostReadyDelay)
}

// Title reads the document title, retrying reads that fail while the page is
// still swapping documents. It returns "" when every attempt fails.
func (d *Driver) Title(ctx context.Context) string {
	for attempt := 1; attempt <= d.cfg.TitleAttempts; attempt++ {
		sess, err := d.ensureSession(ctx)
		if err != nil {
			return ""
		}
		title, err := sess.Title(ctx)
		if err == nil {
			return title
		}
		d.logger.Debug("Title read failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < d.cfg.TitleAttempts {
			if err := d.pacer.Wait(ctx, "settle", d.cfg.PostReadyDelay); err != nil {
				return ""
			}
		}
	}
	return ""
}

// Text returns the rendered text of selector on the current page.
func (d *Driver) Text(ctx context.Context, selector string) (string, error) {
	sess, err := d.ensureSession(ctx)
	if err != nil {
		return "", err
	}
	text, err := sess.Text(ctx, selector)
	if err != nil {
		return "", fmt.Errorf("read text of %s: %w", selector, err)
	}
	return text, nil
}

// HTML returns the current DOM.
func (d *Driver) HTML(ctx context.Context) (string, error) {
	sess, err := d.ensureSession(ctx)
	if err != nil {
		return "", err
	}
	html, err := sess.HTML(ctx)
	if err != nil {
		return "", fmt.Errorf("read page html: %w", err)
	}
	return html, nil
}

// Click activates control on the current page.
func (d *Driver) Click(ctx context.Context, control Control) (bool, error) {
	sess, err := d.ensureSession(ctx)
	if err != nil {
		return false, err
	}
	ok, err := sess.Click(ctx, control)
	if err != nil {
		return false, fmt.Errorf("click %s: %w", control.Name, err)
	}
	return ok, nil
}

// AcceptConsent dismisses a cookie banner if one of labels is on the page.
func (d *Driver) AcceptConsent(ctx context.Context, labels []string) bool {
	if len(labels) == 0 {
		return false
	}
	ok, err := d.Click(ctx, Control{Name: "consent", Labels: labels})
	if err != nil {
		d.logger.Debug("Consent click failed", zap.Error(err))
		return false
	}
	if ok {
		d.logger.Info("Consent banner accepted")
		if err := d.pacer.Wait(ctx, "settle", d.cfg.PostReadyDelay); err != nil {
			return ok
		}
	}
	return ok
}

// Recreations returns how many sessions were rebuilt after termination.
func (d *Driver) Recreations() int {
	return d.recreations
}

// Close shuts down the current session.
func (d *Driver) Close() error {
	if d.session == nil {
		return nil
	}
	err := d.session.Close()
	d.session = nil
	if err != nil {
		return fmt.Errorf("close browser session: %w", err)
	}
	return nil
}

func (d *Driver) ensureSession(ctx context.Context) (Session, error) {
	if d.session != nil && d.session.Alive() {
		return d.session, nil
	}
	replacing := d.session != nil || d.dead
	d.discard()
	sess, err := d.factory(ctx)
	if err != nil {
		return nil, &NavigationError{Kind: KindTransient, Err: fmt.Errorf("start browser session: %w", err)}
	}
	if replacing {
		d.recreations++
		d.metrics.ObserveSessionRecreated()
	}
	d.session = sess
	d.dead = false
	return sess, nil
}

func (d *Driver) discard() {
	if d.session == nil {
		return
	}
	if err := d.session.Close(); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Debug("Closing dead session failed", zap.Error(err))
	}
	d.session = nil
	d.dead = true
}
