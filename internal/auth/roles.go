package auth

// Roles. A super admin is the provider-level principal managing tenants
// themselves; the remaining roles are bound to a single tenant.
const (
	RoleSuperAdmin  = "super_admin"
	RoleTenantAdmin = "tenant_admin"
	RoleStaff       = "staff"
	RoleMember      = "member"
)

// Actions evaluated through CanPerform. Keeping the rule set here, instead of
// inlined role comparisons in handlers, makes it independently testable.
const (
	ActionMaintenanceRestart = "maintenance.restart"
	ActionTenantsManage      = "tenants.manage"
	ActionAuditRead          = "audit.read"
	ActionAuditPurge         = "audit.purge"
	ActionStaffManage        = "staff.manage"
)

var rolesByAction = map[string]map[string]struct{}{
	ActionMaintenanceRestart: roleSet(RoleSuperAdmin),
	ActionTenantsManage:      roleSet(RoleSuperAdmin),
	ActionAuditRead:          roleSet(RoleSuperAdmin),
	ActionAuditPurge:         roleSet(RoleSuperAdmin),
	ActionStaffManage:        roleSet(RoleSuperAdmin, RoleTenantAdmin),
}

func roleSet(roles ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// CanPerform reports whether a role may execute the named action.
func CanPerform(role, action string) bool {
	allowed, ok := rolesByAction[action]
	if !ok {
		return false
	}
	_, ok = allowed[role]
	return ok
}

// IsTenantBound reports whether the role operates inside a single tenant.
func IsTenantBound(role string) bool {
	return role == RoleTenantAdmin || role == RoleStaff || role == RoleMember
}

// CanPerformAction is the capability check for a resolved principal.
func (p Principal) CanPerform(action string) bool {
	return CanPerform(p.Role, action)
}
