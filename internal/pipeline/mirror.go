package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/listing"
)

// Mirror receives a copy of every record after the CSV row is durable.
type Mirror interface {
	Mirror(ctx context.Context, runID string, rec listing.Record) error
}

type named interface {
	Name() string
}

// Fanout forwards records to every mirror. Failures are logged and never
// reach the extraction loop.
type Fanout struct {
	runID   string
	mirrors []Mirror
	logger  *zap.Logger
}

// NewFanout returns a Fanout for runID. Nil mirrors are dropped.
func NewFanout(runID string, logger *zap.Logger, mirrors ...Mirror) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]Mirror, 0, len(mirrors))
	for _, m := range mirrors {
		if m != nil {
			kept = append(kept, m)
		}
	}
	return &Fanout{runID: runID, mirrors: kept, logger: logger}
}

// Len reports how many mirrors are attached.
func (f *Fanout) Len() int {
	return len(f.mirrors)
}

// Observe mirrors rec to every attached mirror.
func (f *Fanout) Observe(ctx context.Context, rec listing.Record) {
	for i, m := range f.mirrors {
		if err := m.Mirror(ctx, f.runID, rec); err != nil {
			f.logger.Warn("Record mirror failed",
				zap.String("mirror", mirrorName(i, m)),
				zap.String("url", rec.URL),
				zap.Error(err),
			)
		}
	}
}

func mirrorName(i int, m Mirror) string {
	if n, ok := m.(named); ok {
		return n.Name()
	}
	return fmt.Sprintf("mirror-%d", i)
}
