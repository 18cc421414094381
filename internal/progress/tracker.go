package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Snapshot is a point-in-time copy of the run counters.
type Snapshot struct {
	RunID      string    `json:"run_id"`
	Phase      string    `json:"phase"`
	StartedAt  time.Time `json:"started_at"`
	Discovered int       `json:"discovered"`
	Extracted  int       `json:"extracted"`
	Pending    int       `json:"pending"`
	Pages      int64     `json:"pages"`
	LinksAdded int64     `json:"links_added"`
	Records    int64     `json:"records"`
	Accepted   int64     `json:"accepted"`
	Skipped    int64     `json:"skipped"`
	Blocked    int64     `json:"blocked"`
	Failed     int64     `json:"failed"`
}

// Tracker counts pipeline progress and forwards each update to its sinks.
// A nil *Tracker ignores every call. Sinks are called synchronously on the
// caller's goroutine; a failing sink is logged and otherwise ignored.
type Tracker struct {
	runID   uuid.UUID
	sinks   []Sink
	logger  *zap.Logger
	now     func() time.Time
	started time.Time

	pages    atomic.Int64
	links    atomic.Int64
	records  atomic.Int64
	accepted atomic.Int64
	skipped  atomic.Int64
	blocked  atomic.Int64
	failed   atomic.Int64

	mu         sync.RWMutex
	phase      string
	discovered int
	extracted  int
	pending    int
}

// NewTracker returns a Tracker for runID.
func NewTracker(runID uuid.UUID, logger *zap.Logger, sinks ...Sink) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		runID:   runID,
		sinks:   append([]Sink(nil), sinks...),
		logger:  logger,
		now:     time.Now,
		started: time.Now().UTC(),
	}
}

// PhaseStarted marks the beginning of a named phase.
func (t *Tracker) PhaseStarted(phase string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.phase = phase
	t.mu.Unlock()
	t.emit(Event{Stage: StagePhaseStart, Phase: phase})
}

// PhaseDone marks the end of a named phase.
func (t *Tracker) PhaseDone(phase string, d time.Duration) {
	if t == nil {
		return
	}
	t.emit(Event{Stage: StagePhaseDone, Phase: phase, Dur: d})
}

// Page counts one harvested result page and the new links it added.
func (t *Tracker) Page(url string, added int) {
	if t == nil {
		return
	}
	t.pages.Add(1)
	t.links.Add(int64(added))
	t.emit(Event{Stage: StagePage, URL: url, Added: added})
}

// Record counts one written record.
func (t *Tracker) Record(url string, outcome Outcome) {
	if t == nil {
		return
	}
	t.records.Add(1)
	switch outcome {
	case OutcomeAccepted:
		t.accepted.Add(1)
	case OutcomeSkipped:
		t.skipped.Add(1)
	case OutcomeBlocked:
		t.blocked.Add(1)
	case OutcomeFailed:
		t.failed.Add(1)
	}
	t.emit(Event{Stage: StageRecord, URL: url, Outcome: outcome})
}

// SetTotals stores the durable set sizes.
func (t *Tracker) SetTotals(discovered, extracted, pending int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.discovered, t.extracted, t.pending = discovered, extracted, pending
	t.mu.Unlock()
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		RunID:      t.runID.String(),
		Phase:      t.phase,
		StartedAt:  t.started,
		Discovered: t.discovered,
		Extracted:  t.extracted,
		Pending:    t.pending,
		Pages:      t.pages.Load(),
		LinksAdded: t.links.Load(),
		Records:    t.records.Load(),
		Accepted:   t.accepted.Load(),
		Skipped:    t.skipped.Load(),
		Blocked:    t.blocked.Load(),
		Failed:     t.failed.Load(),
	}
}

// Close closes every sink.
func (t *Tracker) Close(ctx context.Context) error {
	if t == nil {
		return nil
	}
	for _, sink := range t.sinks {
		if err := sink.Close(ctx); err != nil {
			t.logger.Warn("Progress sink close failed", zap.Error(err))
		}
	}
	return nil
}

func (t *Tracker) emit(evt Event) {
	if len(t.sinks) == 0 {
		return
	}
	evt.RunID = UUIDToBytes(t.runID)
	evt.TS = t.now().UTC()
	if err := evt.Validate(); err != nil {
		t.logger.Debug("Discarding invalid progress event", zap.Error(err))
		return
	}
	batch := []Event{evt}
	for _, sink := range t.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Consume(context.Background(), batch); err != nil {
			t.logger.Warn("Progress sink consume failed", zap.Error(err))
		}
	}
}
