package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/browser"
)

// fakeBrowser serves result pages by index. Goto selects the page from the
// pageNumber parameter; Click on the next control advances by one.
type fakeBrowser struct {
	pages   []string
	body    string
	current int
	visits  []string
	failing map[string]bool
	clicks  int
	consent int
}

func pageHTML(ids ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for _, id := range ids {
		fmt.Fprintf(&b, `<li><a href="/es/veh%%C3%%ADculos/detalles.html?id=%s&searchId=abc&ref=srp">car %s</a></li>`, id, id)
	}
	b.WriteString("</ul></body></html>")
	return b.String()
}

func (f *fakeBrowser) Goto(_ context.Context, raw string) error {
	f.visits = append(f.visits, raw)
	if f.failing[raw] {
		return fmt.Errorf("%w: %s: %w", browser.ErrNavigationFailed, raw, errors.New("timeout"))
	}
	f.current = 0
	if u, err := url.Parse(raw); err == nil {
		if n, err := strconv.Atoi(u.Query().Get(DefaultPageParam)); err == nil {
			f.current = n - 1
		}
	}
	return nil
}

func (f *fakeBrowser) Text(context.Context, string) (string, error) {
	return f.body, nil
}

func (f *fakeBrowser) HTML(context.Context) (string, error) {
	if f.current < 0 || f.current >= len(f.pages) {
		return "<html><body></body></html>", nil
	}
	return f.pages[f.current], nil
}

func (f *fakeBrowser) AcceptConsent(context.Context, []string) bool {
	f.consent++
	return true
}

func (f *fakeBrowser) Click(_ context.Context, control browser.Control) (bool, error) {
	if control.Name != "next" {
		return false, nil
	}
	if f.current+1 >= len(f.pages) {
		return false, nil
	}
	f.clicks++
	f.current++
	return true, nil
}

type memStore struct {
	set map[string]struct{}
	err error
}

func newMemStore(urls ...string) *memStore {
	s := &memStore{set: make(map[string]struct{})}
	for _, u := range urls {
		s.set[u] = struct{}{}
	}
	return s
}

func (s *memStore) AddDiscovered(urls []string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	var delta []string
	for _, u := range urls {
		if _, ok := s.set[u]; ok {
			continue
		}
		s.set[u] = struct{}{}
		delta = append(delta, u)
	}
	sort.Strings(delta)
	return delta, nil
}

func (s *memStore) DiscoveredCount() int {
	return len(s.set)
}

type countingPacer struct {
	pauses int
	waits  []time.Duration
}

func (p *countingPacer) PagePause(ctx context.Context) error {
	p.pauses++
	return ctx.Err()
}

func (p *countingPacer) Wait(ctx context.Context, _ string, d time.Duration) error {
	p.waits = append(p.waits, d)
	return ctx.Err()
}
