package clinic

import (
	"context"
	"errors"

	"pagemd/internal/governance"
	id "pagemd/pkg/domain"
	"pagemd/pkg/platform/sentinel"
)

// Directory adapts the clinic store to the governance tenant view.
type Directory struct {
	store Store
}

func NewDirectory(store Store) Directory {
	return Directory{store: store}
}

// Tenant resolves a clinic for governance work. Deactivated clinics resolve
// as not found: their schemas are retention-only and must not be written.
func (d Directory) Tenant(ctx context.Context, clinicID id.ClinicID) (governance.Tenant, error) {
	c, err := d.store.FindByID(ctx, clinicID)
	if err != nil {
		return governance.Tenant{}, err
	}
	if c.Status == StatusDeactivated {
		return governance.Tenant{}, sentinel.ErrNotFound
	}
	return governance.Tenant{ID: c.ID, SchemaName: c.SchemaName}, nil
}

func (d Directory) ActiveTenants(ctx context.Context) ([]governance.Tenant, error) {
	clinics, err := d.store.ListByStatus(ctx, StatusActive)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}
	tenants := make([]governance.Tenant, 0, len(clinics))
	for _, c := range clinics {
		tenants = append(tenants, governance.Tenant{ID: c.ID, SchemaName: c.SchemaName})
	}
	return tenants, nil
}
