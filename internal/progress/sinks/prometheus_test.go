package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms follow the event stream.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StagePhaseStart, Phase: "discovery"},
		{RunID: runID, TS: now, Stage: progress.StagePage, URL: "https://example.com/s", Added: 5},
		{RunID: runID, TS: now, Stage: progress.StagePage, URL: "https://example.com/s", Added: 0},
		{RunID: runID, TS: now, Stage: progress.StagePhaseDone, Phase: "discovery", Dur: 90 * time.Second},
		{RunID: runID, TS: now, Stage: progress.StageRecord, Outcome: progress.OutcomeBlocked},
		{RunID: runID, TS: now, Stage: progress.StageRecord, Outcome: progress.OutcomeAccepted},
		{RunID: runID, TS: now, Stage: progress.StageRecord, Outcome: progress.OutcomeAccepted},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.pages))
	require.Equal(t, 5.0, testutil.ToFloat64(sink.linksAdded))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.phasesRunning))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.records.WithLabelValues("accepted")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.records.WithLabelValues("blocked")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.phaseRuntime, "listing_phase_runtime_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(zap.New(core))
	runID := progress.UUIDToBytes(uuid.New())
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StagePhaseDone, Phase: "extraction", Dur: time.Minute},
		{RunID: runID, TS: time.Now(), Stage: progress.StageRecord, URL: "u", Outcome: progress.OutcomeSkipped},
	}))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zap.InfoLevel, entries[0].Level)
	require.Equal(t, "extraction", entries[0].ContextMap()["phase"])
	require.Equal(t, zap.DebugLevel, entries[1].Level)
	require.Equal(t, "skipped", entries[1].ContextMap()["outcome"])
}
