// Package sitemap seeds the discovered URL set from XML sitemaps.
package sitemap

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/listing"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxDepth bounds how many sitemap indexes deep the seeder follows.
	MaxDepth int
	// MaxURLs stops collection once this many listing URLs are known; 0 means no limit.
	MaxURLs int
}

// Seeder harvests canonical listing URLs from sitemaps and sitemap indexes.
type Seeder struct {
	cfg       Config
	transport http.RoundTripper
	logger    *zap.Logger
}

// New builds a Seeder.
func New(cfg Config, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Seeder{cfg: cfg, transport: newHTTPTransport(), logger: logger}
}

// Collect returns the sorted canonical listing URLs reachable from
// sitemapURL. Entries without a listing identifier are ignored.
func (s *Seeder) Collect(ctx context.Context, sitemapURL string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("sitemap fetch canceled: %w", err)
	}
	// A fresh collector per call keeps colly's visited set from leaking
	// between sitemaps.
	collector := colly.NewCollector(colly.Async(false), colly.MaxDepth(s.cfg.MaxDepth))
	collector.WithTransport(s.transport)
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}
	collector.SetRequestTimeout(s.cfg.Timeout)

	var (
		mu       sync.Mutex
		seen     = make(map[string]struct{})
		fetchErr error
	)
	full := func() bool {
		return s.cfg.MaxURLs > 0 && len(seen) >= s.cfg.MaxURLs
	}

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if full() {
			r.Abort()
		}
	})
	collector.OnXML("//sitemap/loc", func(e *colly.XMLElement) {
		loc := strings.TrimSpace(e.Text)
		if loc == "" {
			return
		}
		if err := e.Request.Visit(loc); err != nil {
			s.logger.Debug("Skipping nested sitemap", zap.String("url", loc), zap.Error(err))
		}
	})
	collector.OnXML("//url/loc", func(e *colly.XMLElement) {
		canonical, ok := listing.Normalize(e.Text)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if !full() {
			seen[canonical] = struct{}{}
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		if r != nil && r.Request != nil && r.Request.Depth > 1 {
			s.logger.Warn("Nested sitemap failed", zap.String("url", r.Request.URL.String()), zap.Error(err))
			return
		}
		fetchErr = err
	})

	if err := runCollector(ctx, collector, sitemapURL); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("sitemap fetch canceled: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if fetchErr != nil {
		return nil, fmt.Errorf("fetch sitemap %s: %w", sitemapURL, fetchErr)
	}
	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

func runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("sitemap fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit sitemap %s: %w", url, err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	}
}
