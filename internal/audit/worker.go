package audit

import (
	"context"
	"log/slog"
)

// Worker drains the recorder inbox and persists events off the request path.
// A store failure is logged and the worker keeps going: losing one
// diagnostic event is better than stalling the stream behind a retry loop.
type Worker struct {
	store   Store
	inbox   <-chan Event
	logger  *slog.Logger
	metrics *Metrics
}

func NewWorker(store Store, inbox <-chan Event, logger *slog.Logger, metrics *Metrics) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger, metrics: metrics}
}

// Run consumes until the context is cancelled. Call it on its own goroutine;
// the inbox channel hands events over with context already flattened into
// the event fields, so no request context crosses the goroutine boundary.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				if w.metrics != nil {
					w.metrics.IncWriteFailures()
				}
				if w.logger != nil {
					w.logger.Error("clinical audit write failed",
						"action", event.Action,
						"request_id", event.RequestID,
						"error", err,
					)
				}
				continue
			}
			if w.metrics != nil {
				w.metrics.IncRecorded()
			}
		}
	}
}
