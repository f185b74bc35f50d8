// Package platformaudit implements the tamper-evident platform audit chain.
//
// Every privileged platform action (clinic suspension, role template edits,
// forced role syncs, impersonation) is recorded as an Entry whose hash covers
// the previous entry's hash, forming a chain where any retroactive edit is
// detectable by re-walking the chain. This stream is evidentiary: appends are
// serialized and fail closed. The per-request clinical stream lives in
// internal/audit and is intentionally a separate, unchained table.
package platformaudit

import (
	"encoding/json"
	"time"

	id "pagemd/pkg/domain"
)

// Action names recorded on the chain. Platform actions are low-frequency by
// nature; this list is closed on purpose so the compliance reviewers know the
// full vocabulary.
const (
	ActionClinicSuspended         = "clinic_suspended"
	ActionClinicReactivated       = "clinic_reactivated"
	ActionClinicDeactivated       = "clinic_deactivated"
	ActionClinicControlsUpdated   = "clinic_controls_updated"
	ActionRoleTemplateCreated     = "role_template_created"
	ActionRoleTemplateUpdated     = "role_template_updated"
	ActionRoleTemplateDeleted     = "role_template_deleted"
	ActionRoleForceSync           = "role_force_sync"
	ActionImpersonationInitiated  = "impersonation_initiated"
	ActionOperatorPasswordReset   = "operator_password_reset"
)

// GenesisHash is the fixed previous-hash value of the first chain entry.
const GenesisHash = "GENESIS_HASH"

// Entry is one immutable row of the platform audit chain. Seq is assigned by
// the store and defines the chain order; Hash and PreviousHash are computed
// inside the store's critical section so concurrent writers can never fork
// the chain.
type Entry struct {
	Seq            int64
	Action         string
	TargetClinicID *id.ClinicID
	Details        json.RawMessage
	CreatedAt      time.Time
	Hash           string
	PreviousHash   string
}
