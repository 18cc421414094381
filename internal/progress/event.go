package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/listing"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StagePhaseStart Stage = "PHASE_START"
	StagePhaseDone  Stage = "PHASE_DONE"
	StagePage       Stage = "PAGE"
	StageRecord     Stage = "RECORD"
)

// Outcome is the coarse result of one extraction attempt.
type Outcome string

// Record outcomes.
const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeBlocked  Outcome = "blocked"
	OutcomeFailed   Outcome = "failed"
)

// Classify maps a written record to its outcome.
func Classify(rec listing.Record) Outcome {
	switch {
	case rec.Blocked:
		return OutcomeBlocked
	case rec.SkipReason == listing.ReasonNavigationFailed:
		return OutcomeFailed
	case rec.Skipped:
		return OutcomeSkipped
	default:
		return OutcomeAccepted
	}
}

// Event captures a single step of pipeline progress.
type Event struct {
	// RunID identifies the process run in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the tracker.
	TS time.Time
	Stage Stage
	// Phase names the pipeline phase for phase events.
	Phase string
	// URL is the result page or detail page the event refers to.
	URL string
	// Added counts the new links a result page contributed.
	Added int
	// Outcome classifies record events.
	Outcome Outcome
	// Dur is the phase duration on PHASE_DONE.
	Dur time.Duration
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StagePhaseStart, StagePhaseDone:
		if e.Phase == "" {
			return errors.New("phase event requires phase")
		}
	case StagePage:
		if e.Added < 0 {
			return errors.New("added must be >= 0")
		}
	case StageRecord:
		if e.Outcome == "" {
			return errors.New("record event requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
