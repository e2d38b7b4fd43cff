package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"commentary/api/internal/metrics"
	"commentary/api/internal/thread"
)

// Sink is a named notifier.
type Sink struct {
	Name     string
	Notifier thread.Notifier
}

// Fanout delivers each notification to every sink. A failing sink does not
// stop delivery to the others.
type Fanout struct {
	sinks  []Sink
	logger *zap.Logger
}

func NewFanout(logger *zap.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{sinks: sinks, logger: logger}
}

func (f *Fanout) Len() int {
	return len(f.sinks)
}

func (f *Fanout) Notify(ctx context.Context, n thread.Notification) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Notifier.Notify(ctx, n); err != nil {
			metrics.NotificationFailures.WithLabelValues(sink.Name).Inc()
			f.logger.Warn("notification sink failed",
				zap.String("sink", sink.Name),
				zap.String("thread_id", n.ThreadID),
				zap.String("kind", string(n.Kind)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name, err))
			continue
		}
		f.logger.Debug("notification delivered",
			zap.String("sink", sink.Name),
			zap.String("thread_id", n.ThreadID),
			zap.Int("recipients", len(n.Recipients)),
		)
	}
	return errors.Join(errs...)
}
