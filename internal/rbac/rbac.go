package rbac

type Role string
type Action string

const (
	RoleUser       Role = "user"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionFinance Action = "finance"
	ActionAdmin   Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleSuperAdmin, RoleAdmin:
		return true
	case RoleManager:
		return action == ActionRead || action == ActionWrite || action == ActionFinance
	case RoleUser:
		return action == ActionRead || action == ActionWrite
	default:
		return false
	}
}

// ParseRole reports whether value names one of the four known roles.
func ParseRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleUser, RoleManager, RoleAdmin, RoleSuperAdmin:
		return Role(value), true
	default:
		return "", false
	}
}

// Normalize maps unknown values to RoleUser. Authorization decisions use
// ParseRole instead so that malformed roles are denied rather than demoted.
func Normalize(role string) Role {
	if parsed, ok := ParseRole(role); ok {
		return parsed
	}
	return RoleUser
}

// Privileged reports whether the role may act in the admin panel.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}
