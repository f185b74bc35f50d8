package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"pagemd/pkg/requestcontext"
)

// Sink receives a copy of every recorded event for fan-out to external
// systems (SIEM, Kafka). Sinks must not block; failures are their own
// problem to log.
type Sink interface {
	Publish(event Event)
}

// Recorder stamps events with the ambient request context and persists them
// with fire-and-forget semantics: a failed audit write is logged and counted
// but never surfaces to the business operation being audited.
//
// Background jobs with no live request install a context snapshot via
// requestcontext.WithAudit before calling Record; that is the explicit
// override for actor and tenant attribution.
type Recorder struct {
	store   Store
	logger  *slog.Logger
	metrics *Metrics
	sink    Sink
	inbox   chan Event
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = logger }
}

func WithMetrics(m *Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithSink attaches a fan-out sink (e.g. the Kafka publisher).
func WithSink(sink Sink) RecorderOption {
	return func(r *Recorder) { r.sink = sink }
}

// WithInbox makes Record enqueue instead of writing synchronously; a Worker
// must drain the channel. When the inbox is full the event is dropped and
// counted, preserving the never-block contract.
func WithInbox(inbox chan Event) RecorderOption {
	return func(r *Recorder) { r.inbox = inbox }
}

func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends one clinical audit event. The caller fills Action, entity
// fields, and Details; everything else is stamped here from the context.
// Record never returns an error and never panics the request path.
func (r *Recorder) Record(ctx context.Context, event Event) {
	event = r.stamp(ctx, event)

	if r.sink != nil {
		r.sink.Publish(event)
	}

	if r.inbox != nil {
		select {
		case r.inbox <- event:
		default:
			if r.metrics != nil {
				r.metrics.IncDropped()
			}
			if r.logger != nil {
				r.logger.WarnContext(ctx, "clinical audit inbox full, event dropped",
					"action", event.Action,
					"request_id", event.RequestID,
				)
			}
		}
		return
	}

	r.persist(ctx, event)
}

// RecordDetails is a convenience wrapper that serializes a strongly-typed
// details value once at the call boundary.
func (r *Recorder) RecordDetails(ctx context.Context, event Event, details any) {
	raw, err := json.Marshal(details)
	if err != nil {
		if r.logger != nil {
			r.logger.WarnContext(ctx, "clinical audit details not serializable, recording without",
				"action", event.Action,
				"error", err,
			)
		}
		raw = nil
	}
	event.Details = raw
	r.Record(ctx, event)
}

func (r *Recorder) stamp(ctx context.Context, event Event) Event {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.Action = strings.ToUpper(strings.TrimSpace(event.Action))
	if event.EntityType == "" {
		event.EntityType = "General"
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = requestcontext.Now(ctx)
	}
	if event.ActorUserID.IsNil() {
		event.ActorUserID = requestcontext.ActorUserID(ctx)
	}
	if event.ActorRole == "" {
		event.ActorRole = requestcontext.ActorRole(ctx)
	}
	if event.ClinicID.IsNil() {
		event.ClinicID = requestcontext.ClinicID(ctx)
	}
	if event.IP == "" {
		event.IP = requestcontext.ClientIP(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = requestcontext.UserAgent(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	return event
}

func (r *Recorder) persist(ctx context.Context, event Event) {
	if err := r.store.Append(ctx, event); err != nil {
		if r.metrics != nil {
			r.metrics.IncWriteFailures()
		}
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "clinical audit write failed",
				"action", event.Action,
				"request_id", event.RequestID,
				"error", err,
			)
		}
		return
	}
	if r.metrics != nil {
		r.metrics.IncRecorded()
	}
}
