package extraction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/browser"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/extract"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/listing"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/state"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/storage/local"
)

type page struct {
	title string
	body  string
	err   error
}

// fakeBrowser replays a sequence of pages per URL; the last entry repeats.
type fakeBrowser struct {
	pages   map[string][]page
	visits  map[string]int
	order   []string
	current page
}

func newFakeBrowser(pages map[string][]page) *fakeBrowser {
	return &fakeBrowser{pages: pages, visits: make(map[string]int)}
}

func (f *fakeBrowser) Goto(ctx context.Context, u string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := f.visits[u]
	f.visits[u]++
	f.order = append(f.order, u)
	seq := f.pages[u]
	f.current = page{title: "Coche " + u, body: ""}
	if len(seq) > 0 {
		if n >= len(seq) {
			n = len(seq) - 1
		}
		f.current = seq[n]
	}
	return f.current.err
}

func (f *fakeBrowser) Title(context.Context) string {
	return f.current.title
}

func (f *fakeBrowser) Text(context.Context, string) (string, error) {
	return f.current.body, nil
}

type fakePacer struct {
	waits    []string
	items    int
	outcomes []bool
	onItem   func(processed int)
}

func (p *fakePacer) Wait(ctx context.Context, kind string, _ time.Duration) error {
	p.waits = append(p.waits, kind)
	return ctx.Err()
}

func (p *fakePacer) ItemPause(ctx context.Context, processed int) error {
	p.items++
	if p.onItem != nil {
		p.onItem(processed)
	}
	return ctx.Err()
}

func (p *fakePacer) ObserveOutcome(ctx context.Context, blocked bool) error {
	p.outcomes = append(p.outcomes, blocked)
	return ctx.Err()
}

type recordingObserver struct {
	recs []listing.Record
}

func (o *recordingObserver) Observe(_ context.Context, rec listing.Record) {
	o.recs = append(o.recs, rec)
}

func detail(id string) string {
	return "https://www.mobile.de/es/veh%C3%ADculos/detalles.html?id=" + id
}

func newState(t *testing.T, dir string, discovered ...string) (*state.State, *local.RecordFile) {
	t.Helper()
	records := local.NewRecordFile(filepath.Join(dir, "records.csv"), nil)
	st := state.New(local.NewURLList(filepath.Join(dir, "urls.txt")), records)
	require.NoError(t, st.Load(context.Background()))
	if len(discovered) > 0 {
		_, err := st.AddDiscovered(discovered)
		require.NoError(t, err)
	}
	return st, records
}

func readRecords(t *testing.T, f *local.RecordFile) []listing.Record {
	t.Helper()
	var out []listing.Record
	require.NoError(t, f.Scan(context.Background(), func(rec listing.Record) error {
		out = append(out, rec)
		return nil
	}))
	return out
}

var thresholds = extract.Thresholds{MinYear: 2013, MaxKM: 150000, MaxPrice: 30000}

func TestRunExtractsInOrder(t *testing.T) {
	t.Parallel()

	st, records := newState(t, t.TempDir(), detail("2"), detail("1"))
	b := newFakeBrowser(map[string][]page{
		detail("1"): {{title: "Audi A4 para 18.500 €", body: "62.400 km\n07/2018\n110 kW (150 CV)\nDiésel"}},
		detail("2"): {{title: "BMW 320d para 35.000 €", body: "50.000 km\n03/2019"}},
	})
	pacer := &fakePacer{}
	obs := &recordingObserver{}
	phase := NewPhase(Config{Thresholds: thresholds}, b, st, pacer, obs, nil, nil)

	sum, err := phase.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Summary{Frontier: 2, Processed: 2, Accepted: 1, Skipped: 1}, sum)
	require.Equal(t, []string{detail("1"), detail("2")}, b.order)

	rows := readRecords(t, records)
	require.Len(t, rows, 2)
	require.Equal(t, "Audi", rows[0].Brand)
	require.Equal(t, 18500, *rows[0].PriceEUR)
	require.Equal(t, 2018, *rows[0].Year)
	require.False(t, rows[0].Skipped)
	require.True(t, rows[1].Skipped)
	require.Equal(t, "price>30000", rows[1].SkipReason)

	require.Len(t, obs.recs, 2)
	require.Equal(t, 2, pacer.items)
	require.Equal(t, []bool{false, false}, pacer.outcomes)
	require.True(t, st.IsExtracted("1"))
}

func TestRunSoftRetriesBlockedOnce(t *testing.T) {
	t.Parallel()

	st, records := newState(t, t.TempDir(), detail("1"), detail("2"))
	b := newFakeBrowser(map[string][]page{
		detail("1"): {{title: "Access Denied"}, {title: "Audi A4 para 18.500 €", body: "62.400 km\n07/2018"}},
		detail("2"): {{title: "Zugriff verweigert"}},
	})
	pacer := &fakePacer{}
	phase := NewPhase(Config{Thresholds: thresholds}, b, st, pacer, nil, nil, nil)

	sum, err := phase.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sum.Retried)
	require.Equal(t, 1, sum.Accepted)
	require.Equal(t, 1, sum.Blocked)
	require.Equal(t, 2, b.visits[detail("1")])
	require.Equal(t, 2, b.visits[detail("2")], "a page blocked twice is recorded, not retried again")
	require.Equal(t, []string{"soft_retry", "soft_retry"}, pacer.waits)

	rows := readRecords(t, records)
	require.Len(t, rows, 2)
	require.True(t, rows[1].Blocked)
	require.Nil(t, rows[1].PriceEUR)
	require.Equal(t, listing.ReasonBlocked, rows[1].SkipReason)
	require.Equal(t, []bool{false, true}, pacer.outcomes)
}

func TestRunRecordsPlaceholderAfterNavigationFailures(t *testing.T) {
	t.Parallel()

	st, records := newState(t, t.TempDir(), detail("1"))
	navErr := fmt.Errorf("%w: %s: %w", browser.ErrNavigationFailed, detail("1"), errors.New("timeout"))
	b := newFakeBrowser(map[string][]page{
		detail("1"): {{err: navErr}},
	})
	phase := NewPhase(Config{Thresholds: thresholds}, b, st, &fakePacer{}, nil, nil, nil)

	sum, err := phase.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, 2, b.visits[detail("1")])

	rows := readRecords(t, records)
	require.Len(t, rows, 1)
	require.True(t, rows[0].Skipped)
	require.Equal(t, listing.ReasonNavigationFailed, rows[0].SkipReason)
	require.True(t, st.IsExtracted("1"))
}

func TestRunRetriesEmptyTitle(t *testing.T) {
	t.Parallel()

	st, _ := newState(t, t.TempDir(), detail("1"))
	b := newFakeBrowser(map[string][]page{
		detail("1"): {{title: ""}, {title: ""}},
	})
	phase := NewPhase(Config{Thresholds: thresholds}, b, st, &fakePacer{}, nil, nil, nil)
	sum, err := phase.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Retried)
	require.Equal(t, 1, sum.Skipped)
	require.Equal(t, 2, b.visits[detail("1")])
}

func TestRunSkipsAlreadyExtracted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st, records := newState(t, dir, detail("1"), detail("2"))
	require.NoError(t, st.RecordExtracted(listing.Blocked(detail("1"), "Access Denied")))

	b := newFakeBrowser(nil)
	phase := NewPhase(Config{Thresholds: thresholds}, b, st, &fakePacer{}, nil, nil, nil)
	sum, err := phase.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Processed)
	require.Equal(t, []string{detail("2")}, b.order)
	require.Len(t, readRecords(t, records), 2)
}

func TestRunResumesAfterInterrupt(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ids := []string{"1", "2", "3", "4", "5"}
	urls := make([]string, 0, len(ids))
	for _, id := range ids {
		urls = append(urls, detail(id))
	}

	st, _ := newState(t, dir, urls...)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pacer := &fakePacer{onItem: func(processed int) {
		if processed == 2 {
			cancel()
		}
	}}
	first := NewPhase(Config{Thresholds: thresholds}, newFakeBrowser(nil), st, pacer, nil, nil, nil)
	sum, err := first.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 2, sum.Processed)

	// A new process reloads everything from disk.
	resumed, records := newState(t, dir)
	b := newFakeBrowser(nil)
	second := NewPhase(Config{Thresholds: thresholds}, b, resumed, &fakePacer{}, nil, nil, nil)
	sum, err = second.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, sum.Processed)
	require.Equal(t, []string{detail("3"), detail("4"), detail("5")}, b.order)

	seen := map[string]int{}
	for _, rec := range readRecords(t, records) {
		seen[rec.ID()]++
	}
	require.Len(t, seen, 5)
	for id, n := range seen {
		require.Equal(t, 1, n, "listing %s recorded more than once", id)
	}
}

func TestRunHonorsMaxLinks(t *testing.T) {
	t.Parallel()

	st, _ := newState(t, t.TempDir(), detail("1"), detail("2"), detail("3"))
	b := newFakeBrowser(nil)
	phase := NewPhase(Config{MaxLinks: 2, Thresholds: thresholds}, b, st, &fakePacer{}, nil, nil, nil)
	sum, err := phase.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sum.Frontier)
	require.Equal(t, []string{detail("1"), detail("2")}, b.order)
}
