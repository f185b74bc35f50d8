package audit

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "pagemd/pkg/domain"
	"pagemd/pkg/requestcontext"
)

type RecorderSuite struct {
	suite.Suite
	store    *InMemory
	recorder *Recorder
}

func (s *RecorderSuite) SetupTest() {
	s.store = NewInMemory()
	s.recorder = NewRecorder(s.store, WithLogger(slog.Default()))
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}

func (s *RecorderSuite) requestContext(actorID id.UserID, clinicID id.ClinicID) context.Context {
	ctx := context.Background()
	ctx = requestcontext.WithRequestID(ctx, "req-abc123")
	ctx = requestcontext.WithActor(ctx, actorID, "physician")
	ctx = requestcontext.WithClinicID(ctx, clinicID)
	ctx = requestcontext.WithClientMetadata(ctx, "10.1.2.3", "Firefox 140.0 (Linux)")
	ctx = requestcontext.WithTime(ctx, time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))
	return ctx
}

// TestStampsAmbientContext verifies actor, tenant, and request metadata are
// pulled from the context instead of being threaded by the caller.
func (s *RecorderSuite) TestStampsAmbientContext() {
	actorID := id.UserID(uuid.New())
	clinicID := id.ClinicID(uuid.New())
	ctx := s.requestContext(actorID, clinicID)

	s.recorder.Record(ctx, Event{
		Action:     "chart_viewed",
		EntityType: "Patient",
		PatientID:  "pt-100",
	})

	events, err := s.store.ListRecent(context.Background(), 10)
	s.Require().NoError(err)
	s.Require().Len(events, 1)

	got := events[0]
	s.Equal("CHART_VIEWED", got.Action, "action is normalized to upper-snake")
	s.Equal(actorID, got.ActorUserID)
	s.Equal("physician", got.ActorRole)
	s.Equal(clinicID, got.ClinicID)
	s.Equal("10.1.2.3", got.IP)
	s.Equal("Firefox 140.0 (Linux)", got.UserAgent)
	s.Equal("req-abc123", got.RequestID)
	s.Equal(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC), got.CreatedAt)
	s.NotEqual(uuid.Nil, got.ID)
}

// TestBackgroundJobOverride verifies a worker goroutine can install a
// snapshot of the originating request's audit context.
func (s *RecorderSuite) TestBackgroundJobOverride() {
	actorID := id.UserID(uuid.New())
	clinicID := id.ClinicID(uuid.New())
	snapshot := requestcontext.Snapshot(s.requestContext(actorID, clinicID))

	jobCtx := requestcontext.WithAudit(context.Background(), snapshot)
	s.recorder.Record(jobCtx, Event{Action: ActionChartExported, EntityType: "Patient"})

	events, err := s.store.ListRecent(context.Background(), 1)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(actorID, events[0].ActorUserID)
	s.Equal(clinicID, events[0].ClinicID)
	s.Equal("req-abc123", events[0].RequestID)
}

// TestExplicitFieldsWin verifies explicitly set event fields are not
// overwritten by the ambient context.
func (s *RecorderSuite) TestExplicitFieldsWin() {
	explicitActor := id.UserID(uuid.New())
	ctx := s.requestContext(id.UserID(uuid.New()), id.ClinicID(uuid.New()))

	s.recorder.Record(ctx, Event{Action: ActionNoteSigned, ActorUserID: explicitActor})

	events, err := s.store.ListRecent(context.Background(), 1)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(explicitActor, events[0].ActorUserID)
}

// TestWriteFailureNeverRaises verifies the fire-and-forget contract: a store
// failure is swallowed, not propagated to the business operation.
func (s *RecorderSuite) TestWriteFailureNeverRaises() {
	failing := NewRecorder(failingStore{}, WithLogger(slog.Default()))

	s.NotPanics(func() {
		failing.Record(context.Background(), Event{Action: ActionUserLogin})
	})
}

// TestInboxOverflowDrops verifies a full inbox drops rather than blocks.
func (s *RecorderSuite) TestInboxOverflowDrops() {
	inbox := make(chan Event, 1)
	r := NewRecorder(s.store, WithInbox(inbox), WithLogger(slog.Default()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Record(context.Background(), Event{Action: ActionUserLogin})
		r.Record(context.Background(), Event{Action: ActionUserLogin})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("Record blocked on a full inbox")
	}
	s.Len(inbox, 1)
}

// TestWorkerDrainsInbox verifies events queued by the recorder are persisted
// by the worker.
func (s *RecorderSuite) TestWorkerDrainsInbox() {
	inbox := make(chan Event, 16)
	r := NewRecorder(s.store, WithInbox(inbox))
	worker := NewWorker(s.store, inbox, slog.Default(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	for i := 0; i < 5; i++ {
		r.Record(context.Background(), Event{Action: ActionOrderCreated, EntityID: "order-1"})
	}

	s.Eventually(func() bool {
		events, err := s.store.ListRecent(context.Background(), 10)
		return err == nil && len(events) == 5
	}, time.Second, 10*time.Millisecond)
}

type failingStore struct{}

func (failingStore) Append(context.Context, Event) error { return errors.New("db unreachable") }
func (failingStore) FindByID(context.Context, uuid.UUID) (Event, error) {
	return Event{}, errors.New("db unreachable")
}
func (failingStore) ListByPatient(context.Context, string, int) ([]Event, error) {
	return nil, errors.New("db unreachable")
}
func (failingStore) ListByClinic(context.Context, id.ClinicID, time.Time, int) ([]Event, error) {
	return nil, errors.New("db unreachable")
}
func (failingStore) ListRecent(context.Context, int) ([]Event, error) {
	return nil, errors.New("db unreachable")
}
