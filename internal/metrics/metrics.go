// Package metrics exposes Prometheus collectors for navigation, pacing and the
// status API.
package metrics

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the navigation collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	navigations        *prometheus.CounterVec
	navigationRetries  *prometheus.CounterVec
	sessionRecreations prometheus.Counter
	pauses             *prometheus.HistogramVec
	httpRequests       *prometheus.HistogramVec
}

// NewRecorder registers the collectors against reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		navigations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listing_navigations_total",
			Help: "Navigations partitioned by site and result.",
		}, []string{"site", "result"}),
		navigationRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listing_navigation_retries_total",
			Help: "Navigation retries partitioned by failure kind.",
		}, []string{"kind"}),
		sessionRecreations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listing_session_recreations_total",
			Help: "Browser sessions rebuilt after termination.",
		}),
		pauses: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "listing_pause_seconds",
			Help:    "Time spent in pacing and retry waits.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 60, 300},
		}, []string{"kind"}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "listing_status_http_request_seconds",
			Help:    "Status API request latency by method, route and code.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
	for _, c := range []prometheus.Collector{
		r.navigations,
		r.navigationRetries,
		r.sessionRecreations,
		r.pauses,
		r.httpRequests,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register navigation collector: %w", err)
		}
	}
	return r, nil
}

// NewRegistry returns a registry with the Go and process collectors attached.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// SanitizeSite reduces a URL to a lowercase hostname label, or "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveNavigation counts one navigation attempt to rawURL.
func (r *Recorder) ObserveNavigation(rawURL, result string) {
	if r == nil {
		return
	}
	r.navigations.WithLabelValues(SanitizeSite(rawURL), result).Inc()
}

// ObserveNavigationRetry counts a retry caused by a failure of kind.
func (r *Recorder) ObserveNavigationRetry(kind string) {
	if r == nil {
		return
	}
	r.navigationRetries.WithLabelValues(kind).Inc()
}

// ObserveSessionRecreated counts a rebuilt browser session.
func (r *Recorder) ObserveSessionRecreated() {
	if r == nil {
		return
	}
	r.sessionRecreations.Inc()
}

// ObservePause records a wait of duration d.
func (r *Recorder) ObservePause(kind string, d time.Duration) {
	if r == nil || d <= 0 {
		return
	}
	r.pauses.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveHTTPRequest records one status API request.
func (r *Recorder) ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Observe(d.Seconds())
}
