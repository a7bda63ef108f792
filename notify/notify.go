/*
Package notify delivers leave lifecycle events to the outside world.

PURPOSE:
  The leave service publishes an Event after every committed lifecycle
  change. This package provides the sinks: a Kafka producer for downstream
  consumers (email, calendar sync), a zap sink for local runs, and Fanout
  to combine them.

SEE ALSO:
  - leave/events.go: Event and the Notifier interface
*/
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

// LogNotifier writes each event to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, e leave.Event) error {
	n.logger.Info("leave event",
		zap.String("type", string(e.Type)),
		zap.String("request_id", e.RequestID),
		zap.String("user_id", e.UserID),
		zap.String("actor_id", e.ActorID),
		zap.String("start_date", e.StartDate),
		zap.String("end_date", e.EndDate),
		zap.Int("days", e.Days),
		zap.Int("remaining", e.Remaining),
	)
	return nil
}

// Fanout sends every event to all notifiers and joins their errors.
type Fanout []leave.Notifier

func (f Fanout) Notify(ctx context.Context, e leave.Event) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
