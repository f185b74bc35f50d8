package governance

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"pagemd/internal/platformaudit"
	id "pagemd/pkg/domain"
	dErrors "pagemd/pkg/domain-errors"
)

type SyncSuite struct {
	suite.Suite
	ctx        context.Context
	tenant     Tenant
	operatorID id.OperatorID
	templates  *InMemoryTemplates
	roles      *InMemoryRoles
	chainStore *platformaudit.InMemory
	service    *Service
}

func (s *SyncSuite) SetupTest() {
	s.ctx = context.Background()
	s.tenant = Tenant{ID: id.ClinicID(uuid.New()), SchemaName: "clinic_test"}
	s.operatorID = id.OperatorID(uuid.New())
	s.templates = NewInMemoryTemplates()
	s.roles = NewInMemoryRoles()
	s.chainStore = platformaudit.NewInMemory()

	chain := platformaudit.NewWriter(s.chainStore)
	s.service = NewService(s.templates, s.roles, StaticDirectory{Tenants: []Tenant{s.tenant}}, chain)
}

func TestSyncSuite(t *testing.T) {
	suite.Run(t, new(SyncSuite))
}

func (s *SyncSuite) seedTemplate(key, display string, privileges ...string) RoleTemplate {
	tpl := RoleTemplate{
		RoleKey:     key,
		DisplayName: display,
		Version:     1,
		Privileges:  privileges,
	}
	s.Require().NoError(s.templates.CreateTemplate(s.ctx, &tpl))
	return tpl
}

func (s *SyncSuite) findRole(name string) ClinicRole {
	roles, err := s.roles.ListRoles(s.ctx, s.tenant)
	s.Require().NoError(err)
	for _, role := range roles {
		if role.Name == name {
			return role
		}
	}
	s.Require().Failf("role missing", "no clinic role named %s", name)
	return ClinicRole{}
}

// TestCreatesMissingRole verifies sync provisions the role when the clinic
// has nothing matching the template.
func (s *SyncSuite) TestCreatesMissingRole() {
	tpl := s.seedTemplate("PHYSICIAN", "Physician", "patients:view_chart", "notes:sign")

	result, err := s.service.SyncRole(s.ctx, s.tenant.ID, "PHYSICIAN", s.operatorID)
	s.Require().NoError(err)
	s.Equal("PHYSICIAN", result.RoleKey)
	s.True(result.Created)

	role := s.findRole("Physician")
	s.Require().NotNil(role.SourceTemplateID)
	s.Equal(tpl.ID, *role.SourceTemplateID)
	s.ElementsMatch(tpl.Privileges, role.Privileges)
}

// TestAdoptsRoleByNameAndRelinks covers the unlinked legacy role: sync finds
// it by name, stamps the template link, and normalizes the display name.
func (s *SyncSuite) TestAdoptsRoleByNameAndRelinks() {
	tpl := s.seedTemplate("PHYSICIAN", "Physician", "patients:view_chart", "notes:sign")
	s.roles.SeedRole(s.tenant, ClinicRole{
		Name:       "PHYSICIAN",
		Privileges: []string{"patients:view_chart", "backdoor:all"},
	})

	result, err := s.service.SyncRole(s.ctx, s.tenant.ID, "PHYSICIAN", s.operatorID)
	s.Require().NoError(err)
	s.False(result.Created)

	role := s.findRole("Physician")
	s.Require().NotNil(role.SourceTemplateID)
	s.Equal(tpl.ID, *role.SourceTemplateID)
	s.ElementsMatch(tpl.Privileges, role.Privileges, "extra privileges are removed")
}

// TestRenamedLinkedRoleIsSyncedInPlace is the PHYSICIAN/Doctor scenario:
// the clinic renamed its linked role, sync reconciles that same role and
// restores the canonical name instead of creating a duplicate.
func (s *SyncSuite) TestRenamedLinkedRoleIsSyncedInPlace() {
	tpl := s.seedTemplate("PHYSICIAN", "Physician", "patients:view_chart", "notes:sign")
	roleID := s.roles.SeedRole(s.tenant, ClinicRole{
		Name:             "Doctor",
		SourceTemplateID: &tpl.ID,
		Privileges:       []string{"patients:view_chart"},
	})

	_, err := s.service.SyncRole(s.ctx, s.tenant.ID, "PHYSICIAN", s.operatorID)
	s.Require().NoError(err)

	roles, err := s.roles.ListRoles(s.ctx, s.tenant)
	s.Require().NoError(err)
	s.Require().Len(roles, 1, "no duplicate role is created")
	s.Equal(roleID, roles[0].ID)
	s.Equal("Physician", roles[0].Name)
	s.ElementsMatch(tpl.Privileges, roles[0].Privileges)
}

// TestIdempotent verifies a second sync changes nothing and drift reports
// SYNCED afterwards.
func (s *SyncSuite) TestIdempotent() {
	s.seedTemplate("FRONT_DESK", "Front Desk", "schedule:view", "schedule:edit")

	_, err := s.service.SyncRole(s.ctx, s.tenant.ID, "FRONT_DESK", s.operatorID)
	s.Require().NoError(err)
	first := s.findRole("Front Desk")

	result, err := s.service.SyncRole(s.ctx, s.tenant.ID, "FRONT_DESK", s.operatorID)
	s.Require().NoError(err)
	s.False(result.Created)

	second := s.findRole("Front Desk")
	s.Equal(first.ID, second.ID)
	s.ElementsMatch(first.Privileges, second.Privileges)

	reports, err := s.service.DetectDrift(s.ctx, s.tenant.ID)
	s.Require().NoError(err)
	s.Require().Len(reports, 1)
	s.Equal(StatusSynced, reports[0].Status)
}

// TestChainEntryRecordsBeforeDiff verifies every sync lands a role_force_sync
// chain entry carrying the deviation found before reconciliation.
func (s *SyncSuite) TestChainEntryRecordsBeforeDiff() {
	s.seedTemplate("PHYSICIAN", "Physician", "patients:view_chart", "notes:sign")
	s.roles.SeedRole(s.tenant, ClinicRole{
		Name:       "Physician",
		Privileges: []string{"patients:view_chart", "backdoor:all"},
	})

	_, err := s.service.SyncRole(s.ctx, s.tenant.ID, "PHYSICIAN", s.operatorID)
	s.Require().NoError(err)

	entries, err := s.chainStore.ListInOrder(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(platformaudit.ActionRoleForceSync, entries[0].Action)
	s.Require().NotNil(entries[0].TargetClinicID)
	s.Equal(s.tenant.ID, *entries[0].TargetClinicID)

	var details syncAuditDetails
	s.Require().NoError(json.Unmarshal(entries[0].Details, &details))
	s.Equal("PHYSICIAN", details.RoleKey)
	s.Equal(s.operatorID.String(), details.OperatorID)
	s.Equal([]string{"notes:sign"}, details.Diff.MissingBefore)
	s.Equal([]string{"backdoor:all"}, details.Diff.ExtraBefore)
}

// TestConcurrentSameTenantSyncs verifies the fail-fast lock: of two racing
// syncs for one clinic, exactly one wins and the other gets the
// sync-in-progress code without waiting.
func (s *SyncSuite) TestConcurrentSameTenantSyncs() {
	s.seedTemplate("PHYSICIAN", "Physician", "patients:view_chart")

	gate := make(chan struct{})
	blockingRoles := &gatedRoles{InMemoryRoles: s.roles, gate: gate, entered: make(chan struct{})}
	chain := platformaudit.NewWriter(platformaudit.NewInMemory())
	service := NewService(s.templates, blockingRoles, StaticDirectory{Tenants: []Tenant{s.tenant}}, chain)

	var wg sync.WaitGroup
	wg.Add(1)
	firstDone := make(chan error, 1)
	go func() {
		defer wg.Done()
		_, err := service.SyncRole(s.ctx, s.tenant.ID, "PHYSICIAN", s.operatorID)
		firstDone <- err
	}()

	<-blockingRoles.entered
	_, err := service.SyncRole(s.ctx, s.tenant.ID, "PHYSICIAN", s.operatorID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeSyncInProgress))

	close(gate)
	wg.Wait()
	s.NoError(<-firstDone)

	_, err = service.SyncRole(s.ctx, s.tenant.ID, "PHYSICIAN", s.operatorID)
	s.NoError(err, "the lock is released after the first sync finishes")
}

func (s *SyncSuite) TestUnknownTemplate() {
	_, err := s.service.SyncRole(s.ctx, s.tenant.ID, "NO_SUCH_ROLE", s.operatorID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// gatedRoles blocks the first InSyncTx until the gate opens, to hold the
// tenant lock while a second sync races it.
type gatedRoles struct {
	*InMemoryRoles
	gate    chan struct{}
	once    sync.Once
	entered chan struct{}
}

func (g *gatedRoles) InSyncTx(ctx context.Context, tenant Tenant, fn func(ctx context.Context) error) error {
	return g.InMemoryRoles.InSyncTx(ctx, tenant, func(ctx context.Context) error {
		g.once.Do(func() {
			close(g.entered)
			<-g.gate
		})
		return fn(ctx)
	})
}
