package governance

// matchRole resolves which clinic role corresponds to a template. The
// template link wins when present; otherwise the role is matched by name
// against the role key or the display name, which catches roles created
// before links existed and roles whose link was severed by a template
// delete and recreate.
func matchRole(roles []ClinicRole, tpl RoleTemplate) (ClinicRole, bool) {
	for _, role := range roles {
		if role.SourceTemplateID != nil && *role.SourceTemplateID == tpl.ID {
			return role, true
		}
	}
	for _, role := range roles {
		if role.Name == tpl.RoleKey || role.Name == tpl.DisplayName {
			return role, true
		}
	}
	return ClinicRole{}, false
}

// diffPrivileges splits a role's deviation from its template three ways:
// template privileges the role lacks, role privileges the template does not
// grant, and role privileges outside the platform catalog entirely. Unknown
// privileges are also extra by definition; they are reported in both sets
// because they demand different remediation.
func diffPrivileges(template, current []string) (missing, extra, unknown []string) {
	templateSet := make(map[string]struct{}, len(template))
	for _, p := range template {
		templateSet[p] = struct{}{}
	}
	currentSet := make(map[string]struct{}, len(current))
	for _, p := range current {
		currentSet[p] = struct{}{}
	}

	missing = []string{}
	extra = []string{}
	unknown = []string{}
	for _, p := range template {
		if _, ok := currentSet[p]; !ok {
			missing = append(missing, p)
		}
	}
	for _, p := range current {
		if _, ok := templateSet[p]; !ok {
			extra = append(extra, p)
		}
		if !InCatalog(p) {
			unknown = append(unknown, p)
		}
	}
	return missing, extra, unknown
}

// compareRole builds the drift report for one template against the clinic's
// role set.
func compareRole(tpl RoleTemplate, roles []ClinicRole) DriftReport {
	role, found := matchRole(roles, tpl)
	if !found {
		return DriftReport{
			RoleKey:           tpl.RoleKey,
			DisplayName:       tpl.DisplayName,
			Status:            StatusMissing,
			MissingPrivileges: append([]string{}, tpl.Privileges...),
			ExtraPrivileges:   []string{},
			UnknownPrivileges: []string{},
		}
	}

	missing, extra, unknown := diffPrivileges(tpl.Privileges, role.Privileges)
	status := StatusSynced
	if len(missing) > 0 || len(extra) > 0 || len(unknown) > 0 {
		status = StatusDrifted
	}
	return DriftReport{
		RoleKey:           tpl.RoleKey,
		DisplayName:       tpl.DisplayName,
		Status:            status,
		IsLinked:          role.SourceTemplateID != nil,
		MissingPrivileges: missing,
		ExtraPrivileges:   extra,
		UnknownPrivileges: unknown,
	}
}
