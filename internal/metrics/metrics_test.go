package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://www.Mobile.de/es/detalles.html?id=1", "www.mobile.de"},
		{"no scheme", "mobile.de/path", "mobile.de"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestRecorderCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	rec, err := NewRecorder(reg)
	require.NoError(t, err)

	rec.ObserveNavigation("https://www.mobile.de/es/detalles.html?id=1", "ok")
	rec.ObserveNavigation("https://www.mobile.de/es/detalles.html?id=2", "ok")
	rec.ObserveNavigationRetry("session_terminated")
	rec.ObserveSessionRecreated()
	rec.ObservePause("item", 4*time.Second)
	rec.ObservePause("item", 0)
	rec.ObserveHTTPRequest(http.MethodGet, "/v1/progress", http.StatusOK, 20*time.Millisecond)

	assert.InDelta(t, 2.0, testutil.ToFloat64(rec.navigations.WithLabelValues("www.mobile.de", "ok")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(rec.navigationRetries.WithLabelValues("session_terminated")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(rec.sessionRecreations), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(rec.pauses, "listing_pause_seconds"))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.httpRequests, "listing_status_http_request_seconds"))

	_, err = NewRecorder(reg)
	assert.Error(t, err, "registering twice must fail")
}

func TestNilRecorderIsNoop(t *testing.T) {
	t.Parallel()

	var rec *Recorder
	rec.ObserveNavigation("u", "ok")
	rec.ObserveNavigationRetry("transient")
	rec.ObserveSessionRecreated()
	rec.ObservePause("page", time.Second)
	rec.ObserveHTTPRequest(http.MethodGet, "/healthz", http.StatusOK, time.Millisecond)
}

func TestHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	rec, err := NewRecorder(reg)
	require.NoError(t, err)
	rec.ObserveSessionRecreated()

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "listing_session_recreations_total 1"))
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://mobile.de", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, s string) {
		if SanitizeSite(s) == "" {
			t.Errorf("SanitizeSite(%q) returned empty string", s)
		}
	})
}
