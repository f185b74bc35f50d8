package clinic

import (
	"context"

	id "pagemd/pkg/domain"
)

// Store persists the clinic directory in the control schema.
type Store interface {
	List(ctx context.Context) ([]Clinic, error)
	ListByStatus(ctx context.Context, status Status) ([]Clinic, error)
	FindByID(ctx context.Context, clinicID id.ClinicID) (Clinic, error)
	Create(ctx context.Context, c *Clinic) error
	// UpdateStatus moves the clinic to the given status; the service has
	// already validated the transition.
	UpdateStatus(ctx context.Context, clinicID id.ClinicID, status Status) error
	// InTx runs fn inside one transaction. The transaction rides the
	// context passed to fn, so clinic writes, grant writes and chain
	// appends made inside fn commit or roll back as one.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// GrantStore persists break-glass impersonation grants.
type GrantStore interface {
	CreateGrant(ctx context.Context, grant *ImpersonationGrant) error
	FindGrant(ctx context.Context, grantID id.GrantID) (ImpersonationGrant, error)
	// MarkUsed consumes a grant; sentinel.ErrConflict when it was already
	// consumed, so a replayed ticket loses the race exactly once.
	MarkUsed(ctx context.Context, grantID id.GrantID) error
}
