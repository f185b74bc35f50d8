package clinic

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"pagemd/internal/audit"
	"pagemd/internal/platformaudit"
	id "pagemd/pkg/domain"
	dErrors "pagemd/pkg/domain-errors"
)

type ClinicSuite struct {
	suite.Suite
	ctx        context.Context
	operatorID id.OperatorID
	store      *InMemory
	chainStore *platformaudit.InMemory
	events     *audit.InMemory
	service    *Service
	clinicID   id.ClinicID
}

func (s *ClinicSuite) SetupTest() {
	s.ctx = context.Background()
	s.operatorID = id.OperatorID(uuid.New())
	s.store = NewInMemory()
	s.chainStore = platformaudit.NewInMemory()
	s.events = audit.NewInMemory()

	recorder := audit.NewRecorder(s.events)
	s.service = NewService(s.store, s.store, platformaudit.NewWriter(s.chainStore),
		WithClinicalRecorder(recorder))

	c := Clinic{Name: "Lakeside Family Medicine", SchemaName: "clinic_lakeside", Status: StatusActive}
	s.Require().NoError(s.store.Create(s.ctx, &c))
	s.clinicID = c.ID
}

func TestClinicSuite(t *testing.T) {
	suite.Run(t, new(ClinicSuite))
}

func (s *ClinicSuite) TestSuspendAndReactivate() {
	c, err := s.service.SetStatus(s.ctx, s.operatorID, s.clinicID, StatusSuspended, "billing delinquency")
	s.Require().NoError(err)
	s.Equal(StatusSuspended, c.Status)

	c, err = s.service.SetStatus(s.ctx, s.operatorID, s.clinicID, StatusActive, "payment received")
	s.Require().NoError(err)
	s.Equal(StatusActive, c.Status)

	entries, err := s.chainStore.ListInOrder(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(platformaudit.ActionClinicSuspended, entries[0].Action)
	s.Equal(platformaudit.ActionClinicReactivated, entries[1].Action)

	var details statusAuditDetails
	s.Require().NoError(json.Unmarshal(entries[0].Details, &details))
	s.Equal(StatusActive, details.From)
	s.Equal(StatusSuspended, details.To)
	s.Equal("billing delinquency", details.Reason)
}

func (s *ClinicSuite) TestDeactivationIsTerminal() {
	_, err := s.service.SetStatus(s.ctx, s.operatorID, s.clinicID, StatusDeactivated, "contract ended")
	s.Require().NoError(err)

	_, err = s.service.SetStatus(s.ctx, s.operatorID, s.clinicID, StatusActive, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ClinicSuite) TestNoOpTransitionRejected() {
	_, err := s.service.SetStatus(s.ctx, s.operatorID, s.clinicID, StatusActive, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	count, err := s.chainStore.Count(s.ctx)
	s.Require().NoError(err)
	s.Zero(count, "a rejected transition leaves no chain entry")
}

func (s *ClinicSuite) TestImpersonationLifecycle() {
	targetUserID := id.UserID(uuid.New())

	ticket, err := s.service.Impersonate(s.ctx, s.operatorID, s.clinicID, targetUserID, "locked-out admin")
	s.Require().NoError(err)
	s.NotEmpty(ticket.Token)
	s.WithinDuration(time.Now().Add(impersonationTTL), ticket.ExpiresAt, 2*time.Second)

	s.Run("issuance lands on both audit streams", func() {
		entries, err := s.chainStore.ListInOrder(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(platformaudit.ActionImpersonationInitiated, entries[0].Action)

		events, err := s.events.ListRecent(s.ctx, 10)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(audit.ActionBreakGlassAccess, events[0].Action)
		s.Equal(s.clinicID, events[0].ClinicID)
	})

	s.Run("wrong token is rejected", func() {
		_, err := s.service.Redeem(s.ctx, ticket.GrantID, "forged")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("redeems once", func() {
		grant, err := s.service.Redeem(s.ctx, ticket.GrantID, ticket.Token)
		s.Require().NoError(err)
		s.Equal(targetUserID, grant.TargetUserID)
		s.Equal(s.operatorID, grant.OperatorID)

		_, err = s.service.Redeem(s.ctx, ticket.GrantID, ticket.Token)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), "a ticket is single-use")
	})
}

func (s *ClinicSuite) TestImpersonationRequiresActiveClinic() {
	_, err := s.service.SetStatus(s.ctx, s.operatorID, s.clinicID, StatusSuspended, "")
	s.Require().NoError(err)

	_, err = s.service.Impersonate(s.ctx, s.operatorID, s.clinicID, id.UserID(uuid.New()), "reason")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ClinicSuite) TestImpersonationRequiresReason() {
	_, err := s.service.Impersonate(s.ctx, s.operatorID, s.clinicID, id.UserID(uuid.New()), "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
