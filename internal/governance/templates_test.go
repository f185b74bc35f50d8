package governance

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"pagemd/internal/platformaudit"
	id "pagemd/pkg/domain"
	dErrors "pagemd/pkg/domain-errors"
)

type TemplateSuite struct {
	suite.Suite
	ctx        context.Context
	operatorID id.OperatorID
	chainStore *platformaudit.InMemory
	service    *Service
}

func (s *TemplateSuite) SetupTest() {
	s.ctx = context.Background()
	s.operatorID = id.OperatorID(uuid.New())
	s.chainStore = platformaudit.NewInMemory()

	chain := platformaudit.NewWriter(s.chainStore)
	s.service = NewService(NewInMemoryTemplates(), NewInMemoryRoles(), StaticDirectory{}, chain)
}

func TestTemplateSuite(t *testing.T) {
	suite.Run(t, new(TemplateSuite))
}

func (s *TemplateSuite) validInput() TemplateInput {
	return TemplateInput{
		RoleKey:     "READ_ONLY_AUDITOR",
		DisplayName: "Read-Only Auditor",
		Description: "Compliance review access",
		Privileges:  []string{"audit:view", "reports:view"},
	}
}

func (s *TemplateSuite) TestCreate() {
	tpl, err := s.service.CreateTemplate(s.ctx, s.operatorID, s.validInput())
	s.Require().NoError(err)
	s.Equal(1, tpl.Version)
	s.False(tpl.ID.IsNil())

	entries, err := s.chainStore.ListInOrder(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(platformaudit.ActionRoleTemplateCreated, entries[0].Action)
	s.Nil(entries[0].TargetClinicID, "catalog changes are not tied to one clinic")
}

func (s *TemplateSuite) TestCreateValidation() {
	s.Run("role key must be upper snake", func() {
		in := s.validInput()
		in.RoleKey = "read-only"
		_, err := s.service.CreateTemplate(s.ctx, s.operatorID, in)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("privileges must come from the catalog", func() {
		in := s.validInput()
		in.Privileges = append(in.Privileges, "backdoor:all")
		_, err := s.service.CreateTemplate(s.ctx, s.operatorID, in)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("at least one privilege", func() {
		in := s.validInput()
		in.Privileges = []string{"  ", ""}
		_, err := s.service.CreateTemplate(s.ctx, s.operatorID, in)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("duplicate role key", func() {
		_, err := s.service.CreateTemplate(s.ctx, s.operatorID, s.validInput())
		s.Require().NoError(err)
		_, err = s.service.CreateTemplate(s.ctx, s.operatorID, s.validInput())
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

// TestUpdateVersioning verifies the version only moves when the privilege
// set changes.
func (s *TemplateSuite) TestUpdateVersioning() {
	created, err := s.service.CreateTemplate(s.ctx, s.operatorID, s.validInput())
	s.Require().NoError(err)

	s.Run("metadata edit keeps the version", func() {
		in := s.validInput()
		in.Description = "updated description"
		updated, err := s.service.UpdateTemplate(s.ctx, s.operatorID, created.RoleKey, in)
		s.Require().NoError(err)
		s.Equal(1, updated.Version)
	})

	s.Run("reordered privileges are the same set", func() {
		in := s.validInput()
		in.Privileges = []string{"reports:view", "audit:view"}
		updated, err := s.service.UpdateTemplate(s.ctx, s.operatorID, created.RoleKey, in)
		s.Require().NoError(err)
		s.Equal(1, updated.Version)
	})

	s.Run("privilege change bumps the version", func() {
		in := s.validInput()
		in.Privileges = []string{"audit:view"}
		updated, err := s.service.UpdateTemplate(s.ctx, s.operatorID, created.RoleKey, in)
		s.Require().NoError(err)
		s.Equal(2, updated.Version)
	})
}

// TestRoleKeyImmutable verifies the update path writes under the original
// key no matter what the request body claims.
func (s *TemplateSuite) TestRoleKeyImmutable() {
	created, err := s.service.CreateTemplate(s.ctx, s.operatorID, s.validInput())
	s.Require().NoError(err)

	in := s.validInput()
	in.RoleKey = "RENAMED_KEY"
	updated, err := s.service.UpdateTemplate(s.ctx, s.operatorID, created.RoleKey, in)
	s.Require().NoError(err)
	s.Equal(created.RoleKey, updated.RoleKey)

	_, err = s.service.GetTemplate(s.ctx, "RENAMED_KEY")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *TemplateSuite) TestDelete() {
	created, err := s.service.CreateTemplate(s.ctx, s.operatorID, s.validInput())
	s.Require().NoError(err)

	s.Require().NoError(s.service.DeleteTemplate(s.ctx, s.operatorID, created.RoleKey))

	_, err = s.service.GetTemplate(s.ctx, created.RoleKey)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	entries, err := s.chainStore.ListInOrder(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(platformaudit.ActionRoleTemplateDeleted, entries[1].Action)
}

func (s *TemplateSuite) TestDeleteUnknown() {
	err := s.service.DeleteTemplate(s.ctx, s.operatorID, "NO_SUCH_ROLE")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
