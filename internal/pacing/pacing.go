// Package pacing spaces out browser activity: a minimum interval between
// navigations, randomized pauses between pages and items, periodic rests and
// an exponential cool-down while the site keeps serving denial pages.
package pacing

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/metrics"
)

// Config bounds every delay the controller inserts. Human pauses only apply
// when Enabled is set; fixed waits and cool-downs always apply.
type Config struct {
	Enabled             bool
	PageMin             time.Duration
	PageMax             time.Duration
	ItemMin             time.Duration
	ItemMax             time.Duration
	RestEvery           int
	RestDelay           time.Duration
	MinInterval         time.Duration
	BlockBackoffInitial time.Duration
	BlockBackoffMax     time.Duration
}

// Sleeper blocks for a duration or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pause interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Option customizes a Controller.
type Option func(*Controller)

// WithSleeper replaces the timer-based sleeper.
func WithSleeper(s Sleeper) Option {
	return func(c *Controller) { c.sleeper = s }
}

// WithJitter replaces the random source; fn returns a value in [0, limit).
func WithJitter(fn func(limit time.Duration) time.Duration) Option {
	return func(c *Controller) { c.jitter = fn }
}

// Controller implements the rate and backoff policy for one session.
type Controller struct {
	cfg     Config
	sleeper Sleeper
	jitter  func(time.Duration) time.Duration
	limiter *rate.Limiter
	metrics *metrics.Recorder
	logger  *zap.Logger

	mu     sync.Mutex
	block  *backoff.ExponentialBackOff
	streak int
}

// New builds a Controller. rec and logger may be nil.
func New(cfg Config, rec *metrics.Recorder, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		cfg:     cfg,
		sleeper: timerSleeper{},
		jitter:  randomJitter,
		metrics: rec,
		logger:  logger,
	}
	if cfg.MinInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	if cfg.BlockBackoffInitial > 0 {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = cfg.BlockBackoffInitial
		b.MaxInterval = cfg.BlockBackoffMax
		if b.MaxInterval < b.InitialInterval {
			b.MaxInterval = b.InitialInterval
		}
		b.MaxElapsedTime = 0
		b.Reset()
		c.block = b
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BeforeNavigate blocks until the minimum navigation interval has passed.
func (c *Controller) BeforeNavigate(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("navigation rate limit: %w", err)
	}
	c.metrics.ObservePause("rate_limit", time.Since(start))
	return nil
}

// PagePause inserts a randomized pause between result pages.
func (c *Controller) PagePause(ctx context.Context) error {
	if !c.cfg.Enabled {
		return nil
	}
	return c.Wait(ctx, "page", c.between(c.cfg.PageMin, c.cfg.PageMax))
}

// ItemPause inserts a randomized pause after an extraction, plus a longer
// rest every RestEvery processed items.
func (c *Controller) ItemPause(ctx context.Context, processed int) error {
	if c.cfg.Enabled {
		if err := c.Wait(ctx, "item", c.between(c.cfg.ItemMin, c.cfg.ItemMax)); err != nil {
			return err
		}
	}
	if c.cfg.RestEvery > 0 && processed > 0 && processed%c.cfg.RestEvery == 0 {
		c.logger.Info("Resting", zap.Int("processed", processed), zap.Duration("delay", c.cfg.RestDelay))
		return c.Wait(ctx, "rest", c.cfg.RestDelay)
	}
	return nil
}

// ObserveOutcome feeds the block cool-down. Consecutive blocked outcomes
// wait on a growing backoff; a clean outcome resets it.
func (c *Controller) ObserveOutcome(ctx context.Context, blocked bool) error {
	if c.block == nil {
		return nil
	}
	c.mu.Lock()
	if !blocked {
		c.streak = 0
		c.block.Reset()
		c.mu.Unlock()
		return nil
	}
	c.streak++
	streak := c.streak
	d := c.block.NextBackOff()
	c.mu.Unlock()
	if streak < 2 || d == backoff.Stop {
		return nil
	}
	c.logger.Warn("Repeated denial pages, cooling down", zap.Int("streak", streak), zap.Duration("delay", d))
	return c.Wait(ctx, "cooldown", d)
}

// Wait sleeps for d, labelled kind in metrics.
func (c *Controller) Wait(ctx context.Context, kind string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if err := c.sleeper.Sleep(ctx, d); err != nil {
		return err
	}
	c.metrics.ObservePause(kind, d)
	return nil
}

func (c *Controller) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + c.jitter(hi-lo)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
