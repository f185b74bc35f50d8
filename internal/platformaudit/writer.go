package platformaudit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	id "pagemd/pkg/domain"
	dErrors "pagemd/pkg/domain-errors"
	"pagemd/pkg/platform/sentinel"
	"pagemd/pkg/requestcontext"

	auditmetrics "pagemd/internal/platformaudit/metrics"
)

// maxAppendAttempts bounds retries when an optimistic store loses the tail
// race. Exhausting it surfaces a hard error; a platform action whose audit
// trail cannot be guaranteed must not silently succeed.
const maxAppendAttempts = 3

// Writer appends entries to the platform chain with fail-closed semantics.
// Callers block until the entry is durable; any failure is returned to the
// caller and must abort the business operation being audited.
type Writer struct {
	store   Store
	logger  *slog.Logger
	metrics *auditmetrics.Metrics
}

// Option configures the Writer.
type Option func(*Writer)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) { w.logger = logger }
}

func WithMetrics(m *auditmetrics.Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

func NewWriter(store Store, opts ...Option) *Writer {
	w := &Writer{store: store}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Append records a privileged platform action. The details value is
// serialized once at the call boundary, so call sites pass strongly-typed
// structs and the chain stores an opaque JSON blob.
func (w *Writer) Append(ctx context.Context, action string, targetClinicID *id.ClinicID, details any) (Entry, error) {
	if action == "" {
		return Entry{}, dErrors.New(dErrors.CodeInvalidInput, "platform audit action is required")
	}

	raw, err := json.Marshal(details)
	if err != nil {
		return Entry{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "platform audit details must serialize to JSON")
	}

	entry := Entry{
		Action:         action,
		TargetClinicID: targetClinicID,
		Details:        raw,
		CreatedAt:      requestcontext.Now(ctx),
	}

	for attempt := 1; ; attempt++ {
		err = w.store.AppendEntry(ctx, &entry)
		if err == nil {
			break
		}
		if errors.Is(err, sentinel.ErrStaleTail) && attempt < maxAppendAttempts {
			if w.metrics != nil {
				w.metrics.IncAppendRetries()
			}
			// Fresh timestamp for the retry; the losing entry was never
			// written so there is nothing to reconcile.
			entry.CreatedAt = time.Now()
			continue
		}
		if w.metrics != nil {
			w.metrics.IncAppendFailures()
		}
		if w.logger != nil {
			w.logger.ErrorContext(ctx, "CRITICAL: platform audit append failed",
				"action", action,
				"attempts", attempt,
				"error", err,
			)
		}
		return Entry{}, dErrors.Wrap(err, dErrors.CodeInternal, "platform audit append failed")
	}

	if w.metrics != nil {
		w.metrics.IncAppends()
	}
	if w.logger != nil {
		w.logger.InfoContext(ctx, "platform audit entry appended",
			"action", action,
			"seq", entry.Seq,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return entry, nil
}
