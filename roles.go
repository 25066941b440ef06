package gate

// Role identifies one of the platform's shared-secret principals. There is
// no per-user directory: each role maps to exactly one credential.
type Role string

const (
	// RoleAdmin owns every privileged surface, including destructive
	// operations behind step-up.
	RoleAdmin Role = "admin"
	// RoleStaff covers day-to-day content management.
	RoleStaff Role = "staff"
	// RoleUpload is limited to media ingestion endpoints.
	RoleUpload Role = "upload"
	// RoleCron identifies the external scheduler driving sweeps.
	RoleCron Role = "cron"
)

// AllRoles returns the predefined roles in privilege order, highest first.
func AllRoles() []Role {
	return []Role{RoleAdmin, RoleStaff, RoleUpload, RoleCron}
}

// IsValid checks if the role is one of the predefined valid roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleUpload, RoleCron:
		return true
	default:
		return false
	}
}

// Satisfies reports whether a session holding r may pass a guard requiring
// the given role. The privilege order is explicit so it stays auditable:
// every role satisfies itself, and admin additionally satisfies the content
// roles (staff, upload). Cron is a scheduler identity, not a privilege tier;
// nothing short of the cron credential itself satisfies it, and cron never
// satisfies anything else. Unknown roles on either side fail closed.
func (r Role) Satisfies(required Role) bool {
	if !r.IsValid() || !required.IsValid() {
		return false
	}
	if r == required {
		return true
	}
	if r == RoleAdmin {
		return required == RoleStaff || required == RoleUpload
	}
	return false
}

// ParseRole safely parses a string into a Role.
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}
