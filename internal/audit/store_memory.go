package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	id "pagemd/pkg/domain"
	"pagemd/pkg/platform/sentinel"
)

// InMemory is a thread-safe event store for unit tests and local development.
type InMemory struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, eventID uuid.UUID) (Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.events {
		if e.ID == eventID {
			return e, nil
		}
	}
	return Event{}, sentinel.ErrNotFound
}

func (s *InMemory) ListByPatient(ctx context.Context, patientID string, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if s.events[i].PatientID == patientID {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

func (s *InMemory) ListByClinic(ctx context.Context, clinicID id.ClinicID, since time.Time, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.events[i]
		if e.ClinicID == clinicID && !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *InMemory) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.events)
	if limit < n {
		n = limit
	}
	out := make([]Event, 0, n)
	for i := len(s.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}
