package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/progress"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/state"
)

// SnapshotSource returns the live run counters.
type SnapshotSource interface {
	Snapshot() progress.Snapshot
}

// CountSource returns the durable set sizes.
type CountSource interface {
	Counts() state.Counts
}

// ProgressHandler exposes the read-only progress endpoint.
type ProgressHandler struct {
	run    SnapshotSource
	counts CountSource
	logger *zap.Logger
}

// NewProgressHandler wires the tracker and state. Either may be nil.
func NewProgressHandler(run SnapshotSource, counts CountSource, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{run: run, counts: counts, logger: logger}
}

type progressResponse struct {
	Run   *progress.Snapshot `json:"run,omitempty"`
	State *state.Counts      `json:"state,omitempty"`
}

// Get handles GET /v1/progress. It returns 503 when neither source is wired.
func (h *ProgressHandler) Get(w http.ResponseWriter, _ *http.Request) {
	if h == nil || (h.run == nil && h.counts == nil) {
		writeError(w, http.StatusServiceUnavailable, "progress unavailable")
		return
	}
	var resp progressResponse
	if h.run != nil {
		snap := h.run.Snapshot()
		resp.Run = &snap
	}
	if h.counts != nil {
		c := h.counts.Counts()
		resp.State = &c
	}
	writeJSON(w, http.StatusOK, resp)
}
