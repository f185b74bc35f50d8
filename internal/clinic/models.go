// Package clinic is the tenant directory: which clinics exist, which schema
// each one lives in, and whether the platform currently serves them.
// Lifecycle changes are privileged platform actions and land on the audit
// chain.
package clinic

import (
	"time"

	id "pagemd/pkg/domain"
)

// Status is a clinic's lifecycle state.
type Status string

const (
	// StatusActive clinics are served normally.
	StatusActive Status = "active"
	// StatusSuspended clinics are blocked at the edge but keep their data;
	// suspension is reversible.
	StatusSuspended Status = "suspended"
	// StatusDeactivated is terminal. The schema is retained for the
	// regulatory retention window but the clinic never comes back.
	StatusDeactivated Status = "deactivated"
)

// Clinic is one tenant.
type Clinic struct {
	ID         id.ClinicID
	Name       string
	SchemaName string
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CanTransition reports whether a status change is allowed. Deactivation is
// one-way: a deactivated clinic accepts no further transitions.
func (c Clinic) CanTransition(to Status) bool {
	if c.Status == StatusDeactivated {
		return false
	}
	if c.Status == to {
		return false
	}
	switch to {
	case StatusActive, StatusSuspended, StatusDeactivated:
		return true
	default:
		return false
	}
}

// ImpersonationGrant is a short-lived break-glass ticket letting a platform
// operator act inside a clinic as a specific user. The token itself is never
// stored; TokenHash is its bcrypt digest. A grant is single-use.
type ImpersonationGrant struct {
	ID           id.GrantID
	ClinicID     id.ClinicID
	TargetUserID id.UserID
	OperatorID   id.OperatorID
	TokenHash    []byte
	Reason       string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UsedAt       *time.Time
}
