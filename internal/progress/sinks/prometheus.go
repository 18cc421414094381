package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/progress"
)

// PrometheusSink exports pipeline progress as Prometheus collectors.
type PrometheusSink struct {
	pages         prometheus.Counter
	linksAdded    prometheus.Counter
	records       *prometheus.CounterVec
	phaseRuntime  *prometheus.HistogramVec
	phasesRunning prometheus.Gauge
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listing_result_pages_total",
			Help: "Result pages harvested during discovery.",
		}),
		linksAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "listing_links_discovered_total",
			Help: "New detail URLs added to the discovered set.",
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "listing_records_total",
			Help: "Records written partitioned by outcome.",
		}, []string{"outcome"}),
		phaseRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "listing_phase_runtime_seconds",
			Help:    "Wall time per completed phase.",
			Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200, 14400, 28800},
		}, []string{"phase"}),
		phasesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "listing_phases_running",
			Help: "Phases currently in progress.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.pages,
		s.linksAdded,
		s.records,
		s.phaseRuntime,
		s.phasesRunning,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StagePhaseStart:
			s.phasesRunning.Inc()
		case progress.StagePhaseDone:
			s.phasesRunning.Dec()
			if evt.Dur > 0 {
				s.phaseRuntime.WithLabelValues(evt.Phase).Observe(evt.Dur.Seconds())
			}
		case progress.StagePage:
			s.pages.Inc()
			if evt.Added > 0 {
				s.linksAdded.Add(float64(evt.Added))
			}
		case progress.StageRecord:
			s.records.WithLabelValues(string(evt.Outcome)).Inc()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
