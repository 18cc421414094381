package discovery

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Prober reports the size of the search restricted to a year range.
type Prober interface {
	Probe(ctx context.Context, r Range) (SearchInfo, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, r Range) (SearchInfo, error)

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, r Range) (SearchInfo, error) {
	return f(ctx, r)
}

// Splitter bisects year ranges until every piece fits under the site's page
// ceiling.
type Splitter struct {
	Prober   Prober
	Ceiling  int
	PageSize int
	Logger   *zap.Logger
}

// Split partitions [lo, hi] into ranges whose searches are not capped. Ranges
// are processed from an explicit stack; a capped single year cannot be split
// further and is kept as is. A range whose probe fails is kept unsplit. The
// result is sorted by From.
func (s Splitter) Split(ctx context.Context, lo, hi int) ([]Range, error) {
	if lo > hi {
		return nil, fmt.Errorf("invalid year range %d-%d", lo, hi)
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var out []Range
	stack := []Range{{From: lo, To: hi}}
	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		info, err := s.Prober.Probe(ctx, r)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("split ranges: %w", ctxErr)
			}
			logger.Warn("Probe failed, keeping range unsplit",
				zap.Stringer("range", r), zap.Error(err))
			out = append(out, r)
			continue
		}
		capped := info.Capped(s.Ceiling, s.PageSize)
		logger.Info("Probed range",
			zap.Stringer("range", r),
			zap.Int("total", info.Total),
			zap.Int("max_page", info.MaxPage),
			zap.Bool("capped", capped),
		)
		if capped && r.From < r.To {
			mid := (r.From + r.To) / 2
			stack = append(stack, Range{From: r.From, To: mid}, Range{From: mid + 1, To: r.To})
			continue
		}
		out = append(out, r)
	}
	sortRanges(out)
	return out, nil
}

// Navigator is the slice of the navigation driver that probing needs.
type Navigator interface {
	Goto(ctx context.Context, url string) error
	Text(ctx context.Context, selector string) (string, error)
	HTML(ctx context.Context) (string, error)
	AcceptConsent(ctx context.Context, labels []string) bool
}

// BrowserProber probes ranges by loading their first result page.
type BrowserProber struct {
	Nav           Navigator
	Search        SearchURL
	ConsentLabels []string
}

// Probe implements Prober.
func (p BrowserProber) Probe(ctx context.Context, r Range) (SearchInfo, error) {
	target, err := p.Search.ForRange(r)
	if err != nil {
		return SearchInfo{}, err
	}
	return ProbeSearch(ctx, p.Nav, target, p.ConsentLabels)
}

// ProbeSearch opens target and reads its result count and page count.
func ProbeSearch(ctx context.Context, nav Navigator, target string, consent []string) (SearchInfo, error) {
	if err := nav.Goto(ctx, target); err != nil {
		return SearchInfo{}, fmt.Errorf("probe %s: %w", target, err)
	}
	nav.AcceptConsent(ctx, consent)
	body, err := nav.Text(ctx, "body")
	if err != nil {
		return SearchInfo{}, fmt.Errorf("probe %s: %w", target, err)
	}
	html, err := nav.HTML(ctx)
	if err != nil {
		return SearchInfo{}, fmt.Errorf("probe %s: %w", target, err)
	}
	return ParseSearchInfo(body, html)
}
