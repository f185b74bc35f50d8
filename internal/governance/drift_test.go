package governance

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"pagemd/internal/platformaudit"
	id "pagemd/pkg/domain"
)

type DriftSuite struct {
	suite.Suite
	ctx       context.Context
	tenant    Tenant
	templates *InMemoryTemplates
	roles     *InMemoryRoles
	service   *Service
}

func (s *DriftSuite) SetupTest() {
	s.ctx = context.Background()
	s.tenant = Tenant{ID: id.ClinicID(uuid.New()), SchemaName: "clinic_test"}
	s.templates = NewInMemoryTemplates()
	s.roles = NewInMemoryRoles()

	chain := platformaudit.NewWriter(platformaudit.NewInMemory())
	s.service = NewService(s.templates, s.roles, StaticDirectory{Tenants: []Tenant{s.tenant}}, chain)
}

func TestDriftSuite(t *testing.T) {
	suite.Run(t, new(DriftSuite))
}

func (s *DriftSuite) seedPhysicianTemplate() RoleTemplate {
	tpl := RoleTemplate{
		RoleKey:     "PHYSICIAN",
		DisplayName: "Physician",
		Version:     1,
		Required:    true,
		Privileges:  []string{"patients:view_chart", "notes:sign", "meds:prescribe"},
	}
	s.Require().NoError(s.templates.CreateTemplate(s.ctx, &tpl))
	return tpl
}

func (s *DriftSuite) report(roleKey string) DriftReport {
	reports, err := s.service.DetectDrift(s.ctx, s.tenant.ID)
	s.Require().NoError(err)
	for _, r := range reports {
		if r.RoleKey == roleKey {
			return r
		}
	}
	s.Require().Failf("report missing", "no drift report for %s", roleKey)
	return DriftReport{}
}

func (s *DriftSuite) TestMissingRole() {
	tpl := s.seedPhysicianTemplate()

	report := s.report("PHYSICIAN")
	s.Equal(StatusMissing, report.Status)
	s.False(report.IsLinked)
	s.ElementsMatch(tpl.Privileges, report.MissingPrivileges)
	s.Empty(report.ExtraPrivileges)
	s.Empty(report.UnknownPrivileges)
}

func (s *DriftSuite) TestSyncedRole() {
	tpl := s.seedPhysicianTemplate()
	s.roles.SeedRole(s.tenant, ClinicRole{
		Name:             "Physician",
		SourceTemplateID: &tpl.ID,
		Privileges:       tpl.Privileges,
	})

	report := s.report("PHYSICIAN")
	s.Equal(StatusSynced, report.Status)
	s.True(report.IsLinked)
}

// TestLinkedRoleSurvivesRename is the renamed-role case: a clinic renames
// Physician to Doctor, the template link still identifies it, and only the
// privilege deviation is reported.
func (s *DriftSuite) TestLinkedRoleSurvivesRename() {
	tpl := s.seedPhysicianTemplate()
	s.roles.SeedRole(s.tenant, ClinicRole{
		Name:             "Doctor",
		SourceTemplateID: &tpl.ID,
		Privileges:       []string{"patients:view_chart", "notes:sign"},
	})

	report := s.report("PHYSICIAN")
	s.Equal(StatusDrifted, report.Status)
	s.True(report.IsLinked)
	s.Equal([]string{"meds:prescribe"}, report.MissingPrivileges)
	s.Empty(report.ExtraPrivileges)
}

// TestLinkPreferredOverName verifies that when both a linked role and a
// name-matching role exist, the link wins.
func (s *DriftSuite) TestLinkPreferredOverName() {
	tpl := s.seedPhysicianTemplate()
	s.roles.SeedRole(s.tenant, ClinicRole{
		Name:             "Doctor",
		SourceTemplateID: &tpl.ID,
		Privileges:       tpl.Privileges,
	})
	s.roles.SeedRole(s.tenant, ClinicRole{
		Name:       "Physician",
		Privileges: []string{"patients:view_chart"},
	})

	report := s.report("PHYSICIAN")
	s.Equal(StatusSynced, report.Status, "the linked Doctor role is the template's role")
	s.True(report.IsLinked)
}

func (s *DriftSuite) TestNameFallbackForUnlinkedRole() {
	s.seedPhysicianTemplate()
	s.roles.SeedRole(s.tenant, ClinicRole{
		Name:       "PHYSICIAN",
		Privileges: []string{"patients:view_chart", "notes:sign", "meds:prescribe"},
	})

	report := s.report("PHYSICIAN")
	s.Equal(StatusSynced, report.Status)
	s.False(report.IsLinked, "a name match does not count as linked")
}

// TestUnknownPrivileges verifies catalog policing: privileges outside the
// platform catalog are reported as unknown in addition to extra.
func (s *DriftSuite) TestUnknownPrivileges() {
	tpl := s.seedPhysicianTemplate()
	s.roles.SeedRole(s.tenant, ClinicRole{
		Name:             "Physician",
		SourceTemplateID: &tpl.ID,
		Privileges: []string{
			"patients:view_chart", "notes:sign", "meds:prescribe",
			"billing:view", "backdoor:all",
		},
	})

	report := s.report("PHYSICIAN")
	s.Equal(StatusDrifted, report.Status)
	s.Empty(report.MissingPrivileges)
	s.ElementsMatch([]string{"billing:view", "backdoor:all"}, report.ExtraPrivileges)
	s.Equal([]string{"backdoor:all"}, report.UnknownPrivileges)
}

func (s *DriftSuite) TestUnknownClinic() {
	s.seedPhysicianTemplate()
	_, err := s.service.DetectDrift(s.ctx, id.ClinicID(uuid.New()))
	s.Error(err)
}
