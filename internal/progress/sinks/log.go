package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/progress"
)

// LogSink writes phase milestones at info level and per-page and per-record
// events at debug level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StagePhaseStart, progress.StagePhaseDone:
			fields = append(fields, zap.String("phase", evt.Phase))
			if evt.Dur > 0 {
				fields = append(fields, zap.Duration("dur", evt.Dur))
			}
			s.logger.Info("Progress event", fields...)
		case progress.StagePage:
			fields = append(fields, zap.String("url", evt.URL), zap.Int("added", evt.Added))
			s.logger.Debug("Progress event", fields...)
		case progress.StageRecord:
			fields = append(fields, zap.String("url", evt.URL), zap.String("outcome", string(evt.Outcome)))
			s.logger.Debug("Progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
