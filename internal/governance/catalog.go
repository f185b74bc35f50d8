package governance

// PermissionCatalog is the closed set of privilege names the platform
// recognizes. Templates may only grant privileges from this list; any tenant
// privilege outside it is surfaced by drift detection as unknown. Changing
// the catalog is a code change, not a runtime operation.
var PermissionCatalog = []string{
	"patients:view_list", "patients:view_chart", "patients:view_demographics",
	"patients:edit_demographics", "patients:edit_insurance", "patients:create", "patients:delete",
	"notes:view", "notes:create", "notes:edit", "notes:sign", "notes:delete",
	"visits:create", "visits:edit", "visits:sign", "visits:delete",
	"orders:create", "orders:edit", "orders:delete", "orders:view",
	"prescriptions:create", "prescriptions:edit", "prescriptions:view", "prescriptions:delete", "meds:prescribe",
	"referrals:create", "referrals:edit", "referrals:view", "referrals:delete",
	"schedule:view", "schedule:edit", "schedule:status_update", "schedule:assign_provider", "schedule:delete",
	"users:manage", "roles:manage", "permissions:manage",
	"billing:view", "billing:create", "billing:edit", "claims:submit",
	"reports:view", "settings:edit", "admin:access", "audit:view",
	"clinical:document", "clinical:order", "clinical:rx",
}

var catalogSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(PermissionCatalog))
	for _, p := range PermissionCatalog {
		set[p] = struct{}{}
	}
	return set
}()

// InCatalog reports whether a privilege name belongs to the platform
// permission catalog.
func InCatalog(privilege string) bool {
	_, ok := catalogSet[privilege]
	return ok
}
