package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "pagemd/pkg/domain"
	"pagemd/pkg/platform/sentinel"
	txcontext "pagemd/pkg/platform/tx"
)

// PostgresStore persists clinical audit events in the audit_events table.
// Appends join an ambient transaction when one is present in the context so
// an audited mutation and its event commit atomically.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if txn, ok := txcontext.From(ctx); ok {
		return txn
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	details := event.Details
	if len(details) == 0 {
		details = []byte(`{}`)
	}

	var actorID, clinicID *uuid.UUID
	if !event.ActorUserID.IsNil() {
		u := uuid.UUID(event.ActorUserID)
		actorID = &u
	}
	if !event.ClinicID.IsNil() {
		u := uuid.UUID(event.ClinicID)
		clinicID = &u
	}

	query := `
		INSERT INTO audit_events (
			id, action, entity_type, entity_id, patient_id, encounter_id,
			actor_user_id, actor_role, tenant_id, ip_address, user_agent,
			request_id, details, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		event.ID,
		event.Action,
		event.EntityType,
		event.EntityID,
		event.PatientID,
		event.EncounterID,
		actorID,
		event.ActorRole,
		clinicID,
		event.IP,
		event.UserAgent,
		event.RequestID,
		details,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, eventID uuid.UUID) (Event, error) {
	row := s.db.QueryRowContext(ctx, selectEvent+` WHERE id = $1`, eventID)
	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return Event{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Event{}, fmt.Errorf("query audit event: %w", err)
	}
	return event, nil
}

func (s *PostgresStore) ListByPatient(ctx context.Context, patientID string, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		selectEvent+` WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2`,
		patientID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) ListByClinic(ctx context.Context, clinicID id.ClinicID, since time.Time, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		selectEvent+` WHERE tenant_id = $1 AND created_at >= $2 ORDER BY created_at DESC LIMIT $3`,
		uuid.UUID(clinicID), since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		selectEvent+` ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

const selectEvent = `
	SELECT id, action, entity_type, entity_id, patient_id, encounter_id,
	       actor_user_id, actor_role, tenant_id, ip_address, user_agent,
	       request_id, details, created_at
	FROM audit_events`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var (
		event    Event
		actorID  *uuid.UUID
		clinicID *uuid.UUID
	)
	err := row.Scan(
		&event.ID,
		&event.Action,
		&event.EntityType,
		&event.EntityID,
		&event.PatientID,
		&event.EncounterID,
		&actorID,
		&event.ActorRole,
		&clinicID,
		&event.IP,
		&event.UserAgent,
		&event.RequestID,
		&event.Details,
		&event.CreatedAt,
	)
	if err != nil {
		return Event{}, err
	}
	if actorID != nil {
		event.ActorUserID = id.UserID(*actorID)
	}
	if clinicID != nil {
		event.ClinicID = id.ClinicID(*clinicID)
	}
	return event, nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
