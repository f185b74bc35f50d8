// Package domain defines the typed identifiers shared across modules.
//
// Every identifier is a distinct named type over uuid.UUID so the compiler
// rejects cross-type assignment (an OperatorID can never be passed where a
// ClinicID is expected). Parse functions enforce the invariant that IDs are
// valid, non-nil UUIDs at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "pagemd/pkg/domain-errors"
)

// OperatorID identifies a platform operator (super admin).
type OperatorID uuid.UUID

// UserID identifies a clinic-level user.
type UserID uuid.UUID

// ClinicID identifies a tenant clinic.
type ClinicID uuid.UUID

// TemplateID identifies a global role template.
type TemplateID uuid.UUID

// RoleID identifies a role inside a tenant schema.
type RoleID uuid.UUID

// GrantID identifies a break-glass impersonation grant.
type GrantID uuid.UUID

func (id OperatorID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ClinicID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id TemplateID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RoleID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id GrantID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id OperatorID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string     { return uuid.UUID(id).String() }
func (id ClinicID) String() string   { return uuid.UUID(id).String() }
func (id TemplateID) String() string { return uuid.UUID(id).String() }
func (id RoleID) String() string     { return uuid.UUID(id).String() }
func (id GrantID) String() string    { return uuid.UUID(id).String() }

// Named types do not inherit uuid.UUID's marshalers, so each ID wires text
// marshaling explicitly to keep its canonical string form in JSON.

func (id OperatorID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id UserID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id ClinicID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id TemplateID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id RoleID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id GrantID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }

func (id *OperatorID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *UserID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ClinicID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *TemplateID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *RoleID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *GrantID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }

// ParseOperatorID parses and validates an operator ID string.
func ParseOperatorID(s string) (OperatorID, error) {
	u, err := parseUUID(s)
	return OperatorID(u), err
}

// ParseUserID parses and validates a user ID string.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s)
	return UserID(u), err
}

// ParseClinicID parses and validates a clinic ID string.
func ParseClinicID(s string) (ClinicID, error) {
	u, err := parseUUID(s)
	return ClinicID(u), err
}

// ParseTemplateID parses and validates a template ID string.
func ParseTemplateID(s string) (TemplateID, error) {
	u, err := parseUUID(s)
	return TemplateID(u), err
}

// ParseRoleID parses and validates a role ID string.
func ParseRoleID(s string) (RoleID, error) {
	u, err := parseUUID(s)
	return RoleID(u), err
}

// ParseGrantID parses and validates an impersonation grant ID string.
func ParseGrantID(s string) (GrantID, error) {
	u, err := parseUUID(s)
	return GrantID(u), err
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return u, nil
}
