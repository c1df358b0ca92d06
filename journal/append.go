package journal

import (
	"context"

	"go.uber.org/zap"
)

// Append records ev on r after a remote mutation already succeeded. A nil r
// is a no-op. Failures are logged and swallowed: the remote change happened
// whether or not the local journal saw it.
func Append(ctx context.Context, r Recorder, logger *zap.Logger, ev Event) {
	if r == nil {
		return
	}
	if err := r.Record(ctx, ev); err != nil && logger != nil {
		logger.Error("journal write failed",
			zap.String("aggregate_type", ev.AggregateType),
			zap.String("aggregate_id", ev.AggregateID),
			zap.String("event", ev.Type),
			zap.Error(err),
		)
	}
}
