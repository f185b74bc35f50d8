package clinic

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "pagemd/pkg/domain"
	"pagemd/pkg/platform/sentinel"
	txcontext "pagemd/pkg/platform/tx"
)

// PostgresStore persists clinics and impersonation grants in the control
// schema.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) run(ctx context.Context) execer {
	if txn, ok := txcontext.From(ctx); ok {
		return txn
	}
	return s.db
}

// InTx opens a control-schema transaction. The transaction rides the context
// passed to fn, so every store call and chain append inside fn lands in it.
func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clinic tx: %w", err)
	}
	defer func() { _ = txn.Rollback() }()

	if err := fn(txcontext.WithTx(ctx, txn)); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit clinic tx: %w", err)
	}
	return nil
}

const selectClinic = `SELECT id, name, schema_name, status, created_at, updated_at FROM clinics`

func scanClinic(row interface{ Scan(...any) error }) (Clinic, error) {
	var (
		c        Clinic
		clinicID uuid.UUID
	)
	if err := row.Scan(&clinicID, &c.Name, &c.SchemaName, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Clinic{}, err
	}
	c.ID = id.ClinicID(clinicID)
	return c, nil
}

func (s *PostgresStore) queryClinics(ctx context.Context, query string, args ...any) ([]Clinic, error) {
	rows, err := s.run(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query clinics: %w", err)
	}
	defer rows.Close()

	var clinics []Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan clinic: %w", err)
		}
		clinics = append(clinics, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clinics: %w", err)
	}
	return clinics, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Clinic, error) {
	return s.queryClinics(ctx, selectClinic+` ORDER BY name`)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status) ([]Clinic, error) {
	return s.queryClinics(ctx, selectClinic+` WHERE status = $1 ORDER BY name`, status)
}

func (s *PostgresStore) FindByID(ctx context.Context, clinicID id.ClinicID) (Clinic, error) {
	c, err := scanClinic(s.run(ctx).QueryRowContext(ctx, selectClinic+` WHERE id = $1`, uuid.UUID(clinicID)))
	if err == sql.ErrNoRows {
		return Clinic{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Clinic{}, fmt.Errorf("find clinic %s: %w", clinicID, err)
	}
	return c, nil
}

func (s *PostgresStore) Create(ctx context.Context, c *Clinic) error {
	var clinicID uuid.UUID
	err := s.run(ctx).QueryRowContext(ctx, `
		INSERT INTO clinics (name, schema_name, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, c.Name, c.SchemaName, c.Status).Scan(&clinicID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert clinic %s: %w", c.Name, err)
	}
	c.ID = id.ClinicID(clinicID)
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, clinicID id.ClinicID, status Status) error {
	res, err := s.run(ctx).ExecContext(ctx, `
		UPDATE clinics SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1
	`, uuid.UUID(clinicID), status)
	if err != nil {
		return fmt.Errorf("update clinic status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update clinic status: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateGrant(ctx context.Context, grant *ImpersonationGrant) error {
	var grantID uuid.UUID
	err := s.run(ctx).QueryRowContext(ctx, `
		INSERT INTO impersonation_grants (clinic_id, target_user_id, operator_id, token_hash, reason, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, uuid.UUID(grant.ClinicID), uuid.UUID(grant.TargetUserID), uuid.UUID(grant.OperatorID),
		grant.TokenHash, grant.Reason, grant.ExpiresAt).Scan(&grantID, &grant.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert impersonation grant: %w", err)
	}
	grant.ID = id.GrantID(grantID)
	return nil
}

func (s *PostgresStore) FindGrant(ctx context.Context, grantID id.GrantID) (ImpersonationGrant, error) {
	var (
		g        ImpersonationGrant
		gID      uuid.UUID
		clinic   uuid.UUID
		target   uuid.UUID
		operator uuid.UUID
	)
	err := s.run(ctx).QueryRowContext(ctx, `
		SELECT id, clinic_id, target_user_id, operator_id, token_hash, reason, expires_at, created_at, used_at
		FROM impersonation_grants WHERE id = $1
	`, uuid.UUID(grantID)).Scan(&gID, &clinic, &target, &operator,
		&g.TokenHash, &g.Reason, &g.ExpiresAt, &g.CreatedAt, &g.UsedAt)
	if err == sql.ErrNoRows {
		return ImpersonationGrant{}, sentinel.ErrNotFound
	}
	if err != nil {
		return ImpersonationGrant{}, fmt.Errorf("find impersonation grant: %w", err)
	}
	g.ID = id.GrantID(gID)
	g.ClinicID = id.ClinicID(clinic)
	g.TargetUserID = id.UserID(target)
	g.OperatorID = id.OperatorID(operator)
	return g, nil
}

func (s *PostgresStore) MarkUsed(ctx context.Context, grantID id.GrantID) error {
	// used_at IS NULL makes consumption atomic: the second redeemer
	// matches zero rows.
	res, err := s.run(ctx).ExecContext(ctx, `
		UPDATE impersonation_grants SET used_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND used_at IS NULL
	`, uuid.UUID(grantID))
	if err != nil {
		return fmt.Errorf("consume impersonation grant: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume impersonation grant: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrConflict
	}
	return nil
}
