package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "pagemd/pkg/domain"
)

// Store persists clinical audit events. Events are never updated or deleted;
// the query methods exist for support and compliance review.
type Store interface {
	Append(ctx context.Context, event Event) error
	FindByID(ctx context.Context, eventID uuid.UUID) (Event, error)
	ListByPatient(ctx context.Context, patientID string, limit int) ([]Event, error)
	ListByClinic(ctx context.Context, clinicID id.ClinicID, since time.Time, limit int) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
