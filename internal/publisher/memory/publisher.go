// Package memory keeps published record events in memory. It stands in for
// the Pub/Sub publisher in pipeline tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/listing"
	"github.com/JakeFAU/vehicle-listing-crawler/internal/publisher"
)

// Publisher stores published events for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []publisher.RecordEvent
	now    func() time.Time
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{now: time.Now}
}

// Mirror records the event for rec and returns a pseudo ID.
func (p *Publisher) Mirror(_ context.Context, runID string, rec listing.Record) error {
	_, err := p.Publish(publisher.NewRecordEvent(runID, rec, p.now()))
	return err
}

// Publish appends evt and returns a pseudo message ID.
func (p *Publisher) Publish(evt publisher.RecordEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return fmt.Sprintf("memory-%d", len(p.events)), nil
}

// Events returns the recorded events.
func (p *Publisher) Events() []publisher.RecordEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]publisher.RecordEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Name identifies the mirror in logs.
func (p *Publisher) Name() string {
	return "memory"
}
