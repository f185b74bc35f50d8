package clinic

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	id "pagemd/pkg/domain"
	"pagemd/pkg/platform/sentinel"
)

// InMemory backs the clinic directory for unit tests and local development.
type InMemory struct {
	mu      sync.RWMutex
	clinics map[id.ClinicID]Clinic
	grants  map[id.GrantID]ImpersonationGrant
}

func NewInMemory() *InMemory {
	return &InMemory{
		clinics: make(map[id.ClinicID]Clinic),
		grants:  make(map[id.GrantID]ImpersonationGrant),
	}
}

func (s *InMemory) List(ctx context.Context) ([]Clinic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Clinic, 0, len(s.clinics))
	for _, c := range s.clinics {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) ListByStatus(ctx context.Context, status Status) ([]Clinic, error) {
	all, _ := s.List(ctx)
	out := all[:0]
	for _, c := range all {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *InMemory) FindByID(ctx context.Context, clinicID id.ClinicID) (Clinic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clinics[clinicID]
	if !ok {
		return Clinic{}, sentinel.ErrNotFound
	}
	return c, nil
}

func (s *InMemory) Create(ctx context.Context, c *Clinic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID.IsNil() {
		c.ID = id.ClinicID(uuid.New())
	}
	if _, exists := s.clinics[c.ID]; exists {
		return sentinel.ErrConflict
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	c.UpdatedAt = c.CreatedAt
	s.clinics[c.ID] = *c
	return nil
}

func (s *InMemory) UpdateStatus(ctx context.Context, clinicID id.ClinicID, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clinics[clinicID]
	if !ok {
		return sentinel.ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now()
	s.clinics[clinicID] = c
	return nil
}

// InTx has no transaction to offer; fn runs directly and partial effects of
// a failed fn stay visible. Atomicity with the chain is a postgres property.
func (s *InMemory) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *InMemory) CreateGrant(ctx context.Context, grant *ImpersonationGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if grant.ID.IsNil() {
		grant.ID = id.GrantID(uuid.New())
	}
	if grant.CreatedAt.IsZero() {
		grant.CreatedAt = time.Now()
	}
	s.grants[grant.ID] = *grant
	return nil
}

func (s *InMemory) FindGrant(ctx context.Context, grantID id.GrantID) (ImpersonationGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[grantID]
	if !ok {
		return ImpersonationGrant{}, sentinel.ErrNotFound
	}
	return g, nil
}

func (s *InMemory) MarkUsed(ctx context.Context, grantID id.GrantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[grantID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if g.UsedAt != nil {
		return sentinel.ErrConflict
	}
	now := time.Now()
	g.UsedAt = &now
	s.grants[grantID] = g
	return nil
}
