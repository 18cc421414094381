package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/browser"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/config"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/discovery"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/pipeline"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/storage/local"
)

type stubSession struct{}

func (stubSession) Navigate(context.Context, string) error { return nil }
func (stubSession) Title(context.Context) (string, error) {
	return "Audi A4 Avant 2.0 TDI para 18.500 €", nil
}
func (stubSession) Text(context.Context, string) (string, error) {
	return "Kilometraje\n120.000 km\nPrimera matriculación\n03/2018\nDiésel", nil
}
func (stubSession) HTML(context.Context) (string, error)                 { return "<html></html>", nil }
func (stubSession) Click(context.Context, browser.Control) (bool, error) { return false, nil }
func (stubSession) Alive() bool                                          { return true }
func (stubSession) Close() error                                         { return nil }

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Paths.URLs = filepath.Join(dir, "urls.txt")
	cfg.Paths.Records = filepath.Join(dir, "records.csv")
	cfg.Paths.SearchList = filepath.Join(dir, "searches.txt")
	cfg.Browser.RetryDelay = 0
	cfg.Browser.RecreateDelay = 0
	cfg.Browser.SettleDelay = 0
	cfg.Browser.TitleTimeout = 0
	cfg.Browser.PostReadyDelay = 0
	cfg.Pacing = config.PacingConfig{}
	cfg.Extraction.SoftRetryDelay = 0
	return cfg
}

func TestConfigTranslation(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Discovery.NextSelectors = []string{"a.next"}
	cfg.Search.Base = "https://example.com/search.html"
	cfg.Search.Params = map[string]string{"ml": "150000"}
	a, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close(context.Background())

	dc := a.DiscoveryConfig()
	assert.Equal(t, 200, dc.MaxPages)
	assert.Equal(t, []string{"a.next"}, dc.Next.Selectors)
	assert.NotEmpty(t, dc.ConsentLabels)

	ec := a.ExtractionConfig()
	assert.Equal(t, 2013, ec.Thresholds.MinYear)
	assert.Equal(t, 30000, ec.Thresholds.MaxPrice)
	assert.Equal(t, "para", ec.TitleSeparator)

	sc := a.SessionConfig()
	assert.Equal(t, cfg.Browser.NavTimeout, sc.NavigationTimeout)
	assert.Equal(t, "es-ES", sc.Locale)

	u, err := a.SearchURL().ForRange(discovery.Range{From: 2015, To: 2016})
	require.NoError(t, err)
	assert.Contains(t, u, "ml=150000")
	assert.Contains(t, u, "fr=2015")
}

func TestSearchesFromList(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Paths.SearchList, []byte("# comment\n\"https://example.com/s?a=1\"\n\n"), 0o600))
	a, err := New(cfg, nil)
	require.NoError(t, err)
	defer a.Close(context.Background())

	searches, err := a.Searches(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/s?a=1"}, searches)
}

func TestMirrorsAndExporterOffByDefault(t *testing.T) {
	t.Parallel()

	a, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close(context.Background())

	mirrors, err := a.Mirrors(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mirrors)

	exp, err := a.Exporter(context.Background())
	require.NoError(t, err)
	assert.Nil(t, exp)
}

func TestLocalExporter(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Export.LocalDir = t.TempDir()
	a, err := New(cfg, nil)
	require.NoError(t, err)
	defer a.Close(context.Background())

	exp, err := a.Exporter(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &local.SnapshotStore{}, exp)
}

func TestRunnerExtractsPendingListings(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Paths.URLs, []byte(
		"https://example.com/d.html?id=2\nhttps://example.com/d.html?id=1&ref=x\n"), 0o600))
	a, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close(context.Background())

	require.Error(t, a.State().Ready())

	pacer := a.Pacer()
	driver := a.newDriver(func(context.Context) (browser.Session, error) { return stubSession{}, nil }, pacer)
	runner, err := a.Runner(context.Background(), driver, pacer, nil)
	require.NoError(t, err)

	rep, err := runner.Run(context.Background(), pipeline.ModeExtract)
	require.NoError(t, err)
	require.NoError(t, a.State().Ready())
	assert.Equal(t, 2, rep.Extraction.Processed)
	assert.Equal(t, 2, rep.Extraction.Accepted)
	assert.Equal(t, 2, rep.Counts.Extracted)

	data, err := os.ReadFile(cfg.Paths.Records)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "https://example.com/d.html?id=1,"), lines[1])
	assert.Contains(t, lines[1], "18500")

	snap := a.Tracker().Snapshot()
	assert.EqualValues(t, 2, snap.Accepted)
}
