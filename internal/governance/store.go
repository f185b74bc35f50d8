package governance

import (
	"context"

	id "pagemd/pkg/domain"
)

// Tenant is the slice of a clinic that governance needs: identity plus the
// schema its roles live in. The clinic module provides the full directory.
type Tenant struct {
	ID         id.ClinicID
	SchemaName string
}

// ClinicDirectory resolves tenants for drift detection and sync. Returns
// sentinel.ErrNotFound for unknown or deactivated clinics.
type ClinicDirectory interface {
	Tenant(ctx context.Context, clinicID id.ClinicID) (Tenant, error)
	ActiveTenants(ctx context.Context) ([]Tenant, error)
}

// TemplateStore persists the global role template catalog in the control
// schema. Reads return templates with their privilege sets resolved. The
// service wraps every catalog mutation in InTx so the write and its chain
// entry commit together.
type TemplateStore interface {
	ListTemplates(ctx context.Context) ([]RoleTemplate, error)
	FindByKey(ctx context.Context, roleKey string) (RoleTemplate, error)
	// CreateTemplate inserts the template and its privileges; returns
	// sentinel.ErrConflict when the role key is taken.
	CreateTemplate(ctx context.Context, tpl *RoleTemplate) error
	// UpdateTemplate replaces mutable fields and the privilege set and
	// returns the stored version. The store bumps the version against the
	// privilege set it holds, not the caller's read, so concurrent updates
	// cannot lose a bump. RoleKey is the lookup key and is never rewritten.
	UpdateTemplate(ctx context.Context, tpl RoleTemplate) (int, error)
	// DeleteTemplate removes the template and its privilege rows. Tenant
	// roles keep their dangling source_template_id; orphaning is the
	// documented contract, cascading into tenant schemas is not.
	DeleteTemplate(ctx context.Context, roleKey string) error
	// InTx runs fn inside one transaction. The transaction rides the
	// context passed to fn, so store calls and chain appends made inside
	// fn commit or roll back as one.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RoleStore reads and reconciles roles inside a tenant schema. All methods
// take the Tenant so the postgres implementation can qualify table names;
// the memory implementation keys its maps the same way.
type RoleStore interface {
	ListRoles(ctx context.Context, tenant Tenant) ([]ClinicRole, error)
	// FindRoleByTemplate resolves the hard link; sentinel.ErrNotFound when
	// no role points at the template.
	FindRoleByTemplate(ctx context.Context, tenant Tenant, templateID id.TemplateID) (ClinicRole, error)
	// FindRoleByName is the soft-link fallback: first role whose name
	// matches any of the given names.
	FindRoleByName(ctx context.Context, tenant Tenant, names ...string) (ClinicRole, error)
	// CreateRole inserts a system role pre-linked to its template.
	CreateRole(ctx context.Context, tenant Tenant, name, description string, templateID id.TemplateID) (id.RoleID, error)
	// RelinkRole re-stamps the template link and the canonical display
	// name on an existing role.
	RelinkRole(ctx context.Context, tenant Tenant, roleID id.RoleID, templateID id.TemplateID, name string) error
	// ReplacePrivileges deletes the role's privilege grants and reinserts
	// the target set, creating privilege rows that the tenant schema does
	// not know yet.
	ReplacePrivileges(ctx context.Context, tenant Tenant, roleID id.RoleID, privileges []string) error
	// InSyncTx runs fn inside one transaction guarding the tenant against
	// concurrent syncs; returns sentinel.ErrLockHeld without waiting when
	// another sync holds the tenant. The transaction rides the context
	// passed to fn.
	InSyncTx(ctx context.Context, tenant Tenant, fn func(ctx context.Context) error) error
}
