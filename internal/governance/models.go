// Package governance manages the platform role template catalog and keeps
// every clinic's roles aligned with it.
//
// Templates live in the control schema and are the source of truth for role
// privileges. Each clinic carries its own roles in its tenant schema with a
// nullable source_template_id back-link. Drift detection compares the two and
// classifies each template per clinic; role sync forcibly reconciles a clinic
// role to its template under a per-tenant lock. Drift is computed on demand
// and never persisted.
package governance

import (
	"time"

	id "pagemd/pkg/domain"
)

// DriftStatus classifies one template for one clinic.
type DriftStatus string

const (
	// StatusSynced means the clinic role exists and its privilege set equals
	// the template's exactly, with no privileges outside the catalog.
	StatusSynced DriftStatus = "SYNCED"
	// StatusDrifted means the role exists but its privileges deviate.
	StatusDrifted DriftStatus = "DRIFTED"
	// StatusMissing means no clinic role matches the template by link or name.
	StatusMissing DriftStatus = "MISSING"
)

// RoleTemplate is one global role definition. RoleKey is the stable
// identifier and never changes after creation; DisplayName is what tenant
// roles are named after. Version is bumped whenever the privilege set
// changes so sync audit entries can record which revision was applied.
type RoleTemplate struct {
	ID          id.TemplateID
	RoleKey     string
	DisplayName string
	Description string
	Version     int
	Required    bool
	Privileges  []string
	UpdatedBy   id.OperatorID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ClinicRole is one role row from a tenant schema, with its resolved
// privilege names. SourceTemplateID is a weak link: it may be nil for
// hand-made roles and may dangle after a template is deleted.
type ClinicRole struct {
	ID               id.RoleID
	Name             string
	SourceTemplateID *id.TemplateID
	Privileges       []string
}

// DriftReport is the per-template comparison result for one clinic.
// Computed, never stored.
type DriftReport struct {
	RoleKey           string      `json:"roleKey"`
	DisplayName       string      `json:"displayName"`
	Status            DriftStatus `json:"status"`
	IsLinked          bool        `json:"isLinked"`
	MissingPrivileges []string    `json:"missingPrivileges"`
	ExtraPrivileges   []string    `json:"extraPrivileges"`
	UnknownPrivileges []string    `json:"unknownPrivileges"`
}

// SyncResult reports a completed role sync.
type SyncResult struct {
	RoleKey         string `json:"roleKey"`
	TemplateVersion int    `json:"templateVersion"`
	Created         bool   `json:"created"`
}

// SyncDiff captures the role's deviation from the template immediately
// before reconciliation, for the chain audit entry.
type SyncDiff struct {
	MissingBefore []string `json:"missingBefore"`
	ExtraBefore   []string `json:"extraBefore"`
}

// ClinicSyncOutcome is one clinic's slice of a platform-wide sync run.
type ClinicSyncOutcome struct {
	ClinicID id.ClinicID       `json:"clinicId"`
	Synced   []string          `json:"synced"`
	Failed   map[string]string `json:"failed,omitempty"`
}
