// Package audit implements the per-request clinical audit event stream.
//
// Events are emitted from route handlers and background jobs to capture
// significant clinical and administrative actions. The stream is append-only
// and diagnostic: it optimizes for never blocking clinical workflows, so
// writes are fire-and-forget and carry no hash chain. Evidentiary
// platform-level actions go to internal/platformaudit instead; the two
// streams share no keys and must never be conflated.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	id "pagemd/pkg/domain"
)

// Clinical actions recorded on the stream. Actions are upper-snake by
// convention; the recorder normalizes whatever handlers pass.
const (
	ActionChartViewed       = "CHART_VIEWED"
	ActionChartExported     = "CHART_EXPORTED"
	ActionNoteCreated       = "NOTE_CREATED"
	ActionNoteSigned        = "NOTE_SIGNED"
	ActionOrderCreated      = "ORDER_CREATED"
	ActionRxCreated         = "RX_CREATED"
	ActionUserLogin         = "USER_LOGIN"
	ActionUserLoginFailed   = "USER_LOGIN_FAILED"
	ActionPermissionDenied  = "PERMISSION_DENIED"
	ActionRecordAmended     = "RECORD_AMENDED"
	ActionBreakGlassAccess  = "BREAK_GLASS_ACCESS"
)

// Event is one immutable clinical audit row. Callers fill the action and
// entity fields; actor, tenant, and request metadata are stamped from the
// request context by the Recorder. Details is an opaque JSON blob serialized
// once at the call boundary.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Action      string          `json:"action"`
	EntityType  string          `json:"entityType"`
	EntityID    string          `json:"entityId,omitempty"`
	PatientID   string          `json:"patientId,omitempty"`
	EncounterID string          `json:"encounterId,omitempty"`
	ActorUserID id.UserID       `json:"actorUserId"`
	ActorRole   string          `json:"actorRole,omitempty"`
	ClinicID    id.ClinicID     `json:"clinicId"`
	IP          string          `json:"ip,omitempty"`
	UserAgent   string          `json:"userAgent,omitempty"`
	RequestID   string          `json:"requestId,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}
