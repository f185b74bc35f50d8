package governance

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	id "pagemd/pkg/domain"
	"pagemd/pkg/platform/sentinel"
)

// InMemoryTemplates is the map-backed template store for unit tests and
// local development.
type InMemoryTemplates struct {
	mu        sync.RWMutex
	templates map[string]RoleTemplate
}

func NewInMemoryTemplates() *InMemoryTemplates {
	return &InMemoryTemplates{templates: make(map[string]RoleTemplate)}
}

func (s *InMemoryTemplates) ListTemplates(ctx context.Context) ([]RoleTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RoleTemplate, 0, len(s.templates))
	for _, tpl := range s.templates {
		out = append(out, cloneTemplate(tpl))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoleKey < out[j].RoleKey })
	return out, nil
}

func (s *InMemoryTemplates) FindByKey(ctx context.Context, roleKey string) (RoleTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tpl, ok := s.templates[roleKey]
	if !ok {
		return RoleTemplate{}, sentinel.ErrNotFound
	}
	return cloneTemplate(tpl), nil
}

func (s *InMemoryTemplates) CreateTemplate(ctx context.Context, tpl *RoleTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.templates[tpl.RoleKey]; exists {
		return sentinel.ErrConflict
	}
	if tpl.ID.IsNil() {
		tpl.ID = id.TemplateID(uuid.New())
	}
	s.templates[tpl.RoleKey] = cloneTemplate(*tpl)
	return nil
}

func (s *InMemoryTemplates) UpdateTemplate(ctx context.Context, tpl RoleTemplate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.templates[tpl.RoleKey]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	tpl.ID = existing.ID
	tpl.Version = existing.Version
	if !samePrivileges(existing.Privileges, tpl.Privileges) {
		tpl.Version++
	}
	s.templates[tpl.RoleKey] = cloneTemplate(tpl)
	return tpl.Version, nil
}

func (s *InMemoryTemplates) DeleteTemplate(ctx context.Context, roleKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[roleKey]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.templates, roleKey)
	return nil
}

// InTx has no transaction to offer; fn runs directly and partial effects of
// a failed fn stay visible. Atomicity with the chain is a postgres property.
func (s *InMemoryTemplates) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func cloneTemplate(tpl RoleTemplate) RoleTemplate {
	tpl.Privileges = append([]string(nil), tpl.Privileges...)
	return tpl
}

// InMemoryRoles holds tenant roles keyed by clinic. InSyncTx emulates the
// per-tenant advisory lock with a non-blocking held-set, so the lock
// contention path is testable without Postgres.
type InMemoryRoles struct {
	mu    sync.Mutex
	roles map[id.ClinicID]map[id.RoleID]ClinicRole
	held  map[id.ClinicID]bool
}

func NewInMemoryRoles() *InMemoryRoles {
	return &InMemoryRoles{
		roles: make(map[id.ClinicID]map[id.RoleID]ClinicRole),
		held:  make(map[id.ClinicID]bool),
	}
}

func (s *InMemoryRoles) ListRoles(ctx context.Context, tenant Tenant) ([]ClinicRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ClinicRole, 0, len(s.roles[tenant.ID]))
	for _, role := range s.roles[tenant.ID] {
		out = append(out, cloneRole(role))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryRoles) FindRoleByTemplate(ctx context.Context, tenant Tenant, templateID id.TemplateID) (ClinicRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.roles[tenant.ID] {
		if role.SourceTemplateID != nil && *role.SourceTemplateID == templateID {
			return cloneRole(role), nil
		}
	}
	return ClinicRole{}, sentinel.ErrNotFound
}

func (s *InMemoryRoles) FindRoleByName(ctx context.Context, tenant Tenant, names ...string) (ClinicRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		for _, role := range s.roles[tenant.ID] {
			if role.Name == name {
				return cloneRole(role), nil
			}
		}
	}
	return ClinicRole{}, sentinel.ErrNotFound
}

func (s *InMemoryRoles) CreateRole(ctx context.Context, tenant Tenant, name, description string, templateID id.TemplateID) (id.RoleID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles[tenant.ID] == nil {
		s.roles[tenant.ID] = make(map[id.RoleID]ClinicRole)
	}
	roleID := id.RoleID(uuid.New())
	link := templateID
	s.roles[tenant.ID][roleID] = ClinicRole{
		ID:               roleID,
		Name:             name,
		SourceTemplateID: &link,
	}
	return roleID, nil
}

func (s *InMemoryRoles) RelinkRole(ctx context.Context, tenant Tenant, roleID id.RoleID, templateID id.TemplateID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[tenant.ID][roleID]
	if !ok {
		return sentinel.ErrNotFound
	}
	link := templateID
	role.SourceTemplateID = &link
	role.Name = name
	s.roles[tenant.ID][roleID] = role
	return nil
}

func (s *InMemoryRoles) ReplacePrivileges(ctx context.Context, tenant Tenant, roleID id.RoleID, privileges []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[tenant.ID][roleID]
	if !ok {
		return sentinel.ErrNotFound
	}
	role.Privileges = append([]string(nil), privileges...)
	s.roles[tenant.ID][roleID] = role
	return nil
}

func (s *InMemoryRoles) InSyncTx(ctx context.Context, tenant Tenant, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	if s.held[tenant.ID] {
		s.mu.Unlock()
		return sentinel.ErrLockHeld
	}
	s.held[tenant.ID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.held, tenant.ID)
		s.mu.Unlock()
	}()
	return fn(ctx)
}

// SeedRole installs a pre-existing tenant role, typically a legacy role with
// no template link. Test helper.
func (s *InMemoryRoles) SeedRole(tenant Tenant, role ClinicRole) id.RoleID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles[tenant.ID] == nil {
		s.roles[tenant.ID] = make(map[id.RoleID]ClinicRole)
	}
	if role.ID.IsNil() {
		role.ID = id.RoleID(uuid.New())
	}
	s.roles[tenant.ID][role.ID] = cloneRole(role)
	return role.ID
}

func cloneRole(role ClinicRole) ClinicRole {
	role.Privileges = append([]string(nil), role.Privileges...)
	if role.SourceTemplateID != nil {
		link := *role.SourceTemplateID
		role.SourceTemplateID = &link
	}
	return role
}

// StaticDirectory is a fixed tenant list for unit tests.
type StaticDirectory struct {
	Tenants []Tenant
}

func (d StaticDirectory) Tenant(ctx context.Context, clinicID id.ClinicID) (Tenant, error) {
	for _, t := range d.Tenants {
		if t.ID == clinicID {
			return t, nil
		}
	}
	return Tenant{}, sentinel.ErrNotFound
}

func (d StaticDirectory) ActiveTenants(ctx context.Context) ([]Tenant, error) {
	return append([]Tenant(nil), d.Tenants...), nil
}
