package state_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/listing"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/state"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/storage/local"
)

func newFileState(t *testing.T, dir string) *state.State {
	t.Helper()
	st := state.New(
		local.NewURLList(filepath.Join(dir, "urls.txt")),
		local.NewRecordFile(filepath.Join(dir, "records.csv"), nil),
	)
	require.NoError(t, st.Load(context.Background()))
	return st
}

func TestAddDiscoveredIsMonotonicAndIdempotent(t *testing.T) {
	t.Parallel()

	st := newFileState(t, t.TempDir())
	batch := []string{
		"https://site/detalles.html?id=2&ref=srp",
		"https://site/detalles.html?id=1",
		"https://site/detalles.html?ref=x&id=2",
	}

	added, err := st.AddDiscovered(batch)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://site/detalles.html?id=1", "https://site/detalles.html?id=2"}, added)
	assert.Equal(t, 2, st.DiscoveredCount())

	added, err = st.AddDiscovered(batch)
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Equal(t, 2, st.DiscoveredCount())
}

func TestStateSurvivesReload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st := newFileState(t, dir)
	_, err := st.AddDiscovered([]string{
		"https://site/detalles.html?id=3",
		"https://site/detalles.html?id=1",
		"https://site/detalles.html?id=2",
	})
	require.NoError(t, err)
	require.NoError(t, st.RecordExtracted(listing.Blocked("https://site/detalles.html?id=2", "Access Denied")))

	reloaded := newFileState(t, dir)
	assert.Equal(t, state.Counts{Discovered: 3, Extracted: 1, Pending: 2}, reloaded.Counts())
	assert.True(t, reloaded.IsExtracted("2"))
	assert.Equal(t, []string{"https://site/detalles.html?id=1", "https://site/detalles.html?id=3"}, reloaded.Pending(0))
}

func TestPendingCapsBeforeFilteringExtracted(t *testing.T) {
	t.Parallel()

	st := newFileState(t, t.TempDir())
	_, err := st.AddDiscovered([]string{
		"https://site/detalles.html?id=1",
		"https://site/detalles.html?id=2",
		"https://site/detalles.html?id=3",
	})
	require.NoError(t, err)
	require.NoError(t, st.RecordExtracted(listing.Record{URL: "https://site/detalles.html?id=1"}))

	assert.Equal(t, []string{"https://site/detalles.html?id=2"}, st.Pending(2))
	assert.Equal(t, []string{"https://site/detalles.html?id=2", "https://site/detalles.html?id=3"}, st.Pending(0))
}

type failingURLs struct{}

func (failingURLs) Load(context.Context) ([]string, error) { return nil, nil }
func (failingURLs) Append([]string) error                 { return errors.New("disk full") }

func TestAddDiscoveredDoesNotUpdateMemoryOnFailure(t *testing.T) {
	t.Parallel()

	st := state.New(failingURLs{}, local.NewRecordFile(filepath.Join(t.TempDir(), "r.csv"), nil))
	require.NoError(t, st.Load(context.Background()))

	_, err := st.AddDiscovered([]string{"https://site/detalles.html?id=1"})
	require.Error(t, err)
	assert.Equal(t, 0, st.DiscoveredCount())
}
