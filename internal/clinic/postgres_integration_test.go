//go:build integration

package clinic

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"pagemd/internal/platform/migrate"
	"pagemd/internal/platformaudit"
	id "pagemd/pkg/domain"
	dErrors "pagemd/pkg/domain-errors"
	"pagemd/pkg/platform/sentinel"
	"pagemd/pkg/testutil/containers"
)

type PostgresClinicSuite struct {
	suite.Suite
	db    *sql.DB
	store *PostgresStore
	ctx   context.Context
}

func TestPostgresClinicSuite(t *testing.T) {
	suite.Run(t, new(PostgresClinicSuite))
}

func (s *PostgresClinicSuite) SetupSuite() {
	pg := containers.NewPostgresContainer(s.T())
	s.db = pg.DB
	s.ctx = context.Background()

	mgr := migrate.NewManager(s.db, "../../migrations/control", "", "")
	s.Require().NoError(mgr.Up(s.ctx))
}

func (s *PostgresClinicSuite) SetupTest() {
	_, err := s.db.Exec(`TRUNCATE clinics CASCADE`)
	s.Require().NoError(err)
	_, err = s.db.Exec(`TRUNCATE platform_audit_log RESTART IDENTITY`)
	s.Require().NoError(err)
	s.store = NewPostgres(s.db)
}

func (s *PostgresClinicSuite) createClinic(name, schema string) Clinic {
	c := Clinic{Name: name, SchemaName: schema, Status: StatusActive}
	s.Require().NoError(s.store.Create(s.ctx, &c))
	return c
}

func (s *PostgresClinicSuite) TestCreateAndFind() {
	created := s.createClinic("Northside Family Medicine", "clinic_north")

	found, err := s.store.FindByID(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(created.Name, found.Name)
	s.Equal(StatusActive, found.Status)
	s.False(found.CreatedAt.IsZero())
}

func (s *PostgresClinicSuite) TestListByStatus() {
	s.createClinic("Active One", "clinic_a")
	suspended := s.createClinic("Suspended One", "clinic_b")
	s.Require().NoError(s.store.UpdateStatus(s.ctx, suspended.ID, StatusSuspended))

	active, err := s.store.ListByStatus(s.ctx, StatusActive)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal("Active One", active[0].Name)
}

func (s *PostgresClinicSuite) TestUpdateStatusUnknownClinic() {
	err := s.store.UpdateStatus(s.ctx, id.ClinicID(uuid.New()), StatusSuspended)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresClinicSuite) TestGrantSingleUse() {
	c := s.createClinic("Grant Clinic", "clinic_g")

	grant := ImpersonationGrant{
		ClinicID:     c.ID,
		TargetUserID: id.UserID(uuid.New()),
		OperatorID:   id.OperatorID(uuid.New()),
		TokenHash:    []byte("$2a$10$fakehashforintegration"),
		Reason:       "locked out during downtime",
		ExpiresAt:    time.Now().Add(5 * time.Minute),
	}
	s.Require().NoError(s.store.CreateGrant(s.ctx, &grant))
	s.False(grant.ID.IsNil())

	found, err := s.store.FindGrant(s.ctx, grant.ID)
	s.Require().NoError(err)
	s.Nil(found.UsedAt)
	s.Equal(grant.Reason, found.Reason)

	s.Require().NoError(s.store.MarkUsed(s.ctx, grant.ID))

	// Second consumption must fail: used_at is already set.
	s.ErrorIs(s.store.MarkUsed(s.ctx, grant.ID), sentinel.ErrConflict)

	found, err = s.store.FindGrant(s.ctx, grant.ID)
	s.Require().NoError(err)
	s.NotNil(found.UsedAt)
}

// unavailableChain stands in for a platform audit backend that is down.
type unavailableChain struct{}

func (unavailableChain) Append(ctx context.Context, action string, targetClinicID *id.ClinicID, details any) (platformaudit.Entry, error) {
	return platformaudit.Entry{}, dErrors.New(dErrors.CodeInternal, "platform audit append failed")
}

func (s *PostgresClinicSuite) TestStatusChangeRollsBackWhenAuditFails() {
	c := s.createClinic("Audited Clinic", "clinic_aud")
	broken := NewService(s.store, s.store, unavailableChain{})

	_, err := broken.SetStatus(s.ctx, id.OperatorID(uuid.New()), c.ID, StatusSuspended, "billing")
	s.Require().Error(err)

	found, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(StatusActive, found.Status, "an unauditable transition must not persist")
}

func (s *PostgresClinicSuite) TestImpersonationRollsBackWhenAuditFails() {
	c := s.createClinic("Audited Clinic", "clinic_aud")
	broken := NewService(s.store, s.store, unavailableChain{})

	_, err := broken.Impersonate(s.ctx, id.OperatorID(uuid.New()), c.ID, id.UserID(uuid.New()), "locked-out admin")
	s.Require().Error(err)

	var count int
	s.Require().NoError(s.db.QueryRow(`SELECT COUNT(*) FROM impersonation_grants`).Scan(&count))
	s.Zero(count, "an unaudited grant must never become redeemable")
}

func (s *PostgresClinicSuite) TestStatusChangeAndChainEntryCommitTogether() {
	c := s.createClinic("Chained Clinic", "clinic_ch")
	chainStore := platformaudit.NewPostgres(s.db)
	svc := NewService(s.store, s.store, platformaudit.NewWriter(chainStore))

	_, err := svc.SetStatus(s.ctx, id.OperatorID(uuid.New()), c.ID, StatusSuspended, "billing delinquency")
	s.Require().NoError(err)

	entries, err := chainStore.ListInOrder(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(platformaudit.ActionClinicSuspended, entries[0].Action)
	s.Require().NotNil(entries[0].TargetClinicID)
	s.Equal(c.ID, *entries[0].TargetClinicID)
}
