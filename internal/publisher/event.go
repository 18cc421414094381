// Package publisher defines the event emitted for every written record.
package publisher

import (
	"time"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/listing"
)

// RecordEvent is the payload mirrors publish for one record.
type RecordEvent struct {
	RunID      string         `json:"run_id"`
	ListingID  string         `json:"listing_id"`
	ObservedAt time.Time      `json:"observed_at"`
	Record     listing.Record `json:"record"`
}

// NewRecordEvent wraps rec for publication.
func NewRecordEvent(runID string, rec listing.Record, now time.Time) RecordEvent {
	return RecordEvent{
		RunID:      runID,
		ListingID:  rec.ID(),
		ObservedAt: now.UTC(),
		Record:     rec,
	}
}

// Attributes are the message attributes subscribers can filter on.
func (e RecordEvent) Attributes() map[string]string {
	return map[string]string{
		"run_id":     e.RunID,
		"listing_id": e.ListingID,
		"blocked":    boolString(e.Record.Blocked),
		"skipped":    boolString(e.Record.Skipped),
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
