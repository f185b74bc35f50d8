package platformaudit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "pagemd/pkg/domain"
	txcontext "pagemd/pkg/platform/tx"
)

// chainLockKey is the advisory lock key for the platform chain. There is one
// chain per platform, so one fixed key serializes all appends. This is not a
// hot path: platform actions are operator-triggered and low-frequency.
const chainLockKey int64 = 0x70616765_6d644143 // "pagemdAC"

// PostgresStore persists chain entries in the control schema's
// platform_audit_log table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// AppendEntry runs the whole tail-read, hash, insert sequence inside one
// transaction holding the chain advisory lock. Because the lock covers the
// tail read, a stale-tail race cannot happen on this backend; a failure at
// any step rolls the transaction back so a partial write is never visible.
//
// When the context carries a transaction (txcontext.WithTx), the append joins
// it instead of opening its own: the chain entry then commits or rolls back
// atomically with the business write it records, and the advisory lock is
// held until that enclosing transaction ends.
func (s *PostgresStore) AppendEntry(ctx context.Context, e *Entry) error {
	txn, joined := txcontext.From(ctx)
	if !joined {
		var err error
		txn, err = s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin chain append: %w", err)
		}
		defer func() { _ = txn.Rollback() }()
	}

	if _, err := txn.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, chainLockKey); err != nil {
		return fmt.Errorf("acquire chain lock: %w", err)
	}

	previous := GenesisHash
	err := txn.QueryRowContext(ctx,
		`SELECT hash FROM platform_audit_log ORDER BY seq DESC LIMIT 1`,
	).Scan(&previous)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read chain tail: %w", err)
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = CanonicalTime(e.CreatedAt)
	e.PreviousHash = previous

	hash, err := ComputeHash(previous, *e)
	if err != nil {
		return err
	}
	e.Hash = hash

	var target *uuid.UUID
	if e.TargetClinicID != nil {
		u := uuid.UUID(*e.TargetClinicID)
		target = &u
	}
	details := e.Details
	if len(details) == 0 {
		details = []byte(`{}`)
	}

	err = txn.QueryRowContext(ctx, `
		INSERT INTO platform_audit_log (action, target_clinic_id, details, created_at, hash, previous_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq
	`, e.Action, target, details, e.CreatedAt, e.Hash, e.PreviousHash).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("insert chain entry: %w", err)
	}

	if !joined {
		if err := txn.Commit(); err != nil {
			return fmt.Errorf("commit chain append: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListInOrder(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, action, target_clinic_id, details, created_at, hash, previous_hash
		FROM platform_audit_log
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query chain entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			target *uuid.UUID
		)
		if err := rows.Scan(&e.Seq, &e.Action, &target, &e.Details, &e.CreatedAt, &e.Hash, &e.PreviousHash); err != nil {
			return nil, fmt.Errorf("scan chain entry: %w", err)
		}
		if target != nil {
			clinicID := id.ClinicID(*target)
			e.TargetClinicID = &clinicID
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chain entries: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM platform_audit_log`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count chain entries: %w", err)
	}
	return count, nil
}
