package rbac

// Kind selects which rule table a request is evaluated against.
type Kind string

const (
	KindRoleChange Kind = "role_change"
	KindDeletion   Kind = "deletion"
)

const (
	ReasonUnauthorized          = "Unauthorized"
	ReasonInvalidRole           = "Invalid role"
	ReasonSelfDemotion          = "Super Admins cannot demote themselves."
	ReasonSuperAdminTerminal    = "Super Admin actions are irreversible. You cannot change this role."
	ReasonPromotionRestricted   = "Only Super Admins can promote to Admin/Super Admin"
	ReasonPeerModification      = "Admins cannot modify other Admins or Super Admins"
	ReasonSuperAdminUndeletable = "Cannot delete a Super Admin."
	ReasonPeerDeletion          = "Admins cannot delete other Admins or Super Admins."
)

// Request is the input to a rule table. NewRole and IsSelf are only
// consulted by role-change rules.
type Request struct {
	Acting  Role
	Target  Role
	NewRole Role
	IsSelf  bool
}

// Decision is the terminal outcome of evaluating a request. A denied
// decision names the rule that fired.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Rule    string `json:"rule,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Rule denies a request when Denies returns true.
type Rule struct {
	Name   string
	Reason string
	Denies func(Request) bool
}

// Rules are evaluated top to bottom; the first rule that denies wins.
var roleChangeRules = []Rule{
	{
		Name:   "actor_not_privileged",
		Reason: ReasonUnauthorized,
		Denies: func(r Request) bool { return !r.Acting.Privileged() },
	},
	{
		Name:   "super_admin_self_demotion",
		Reason: ReasonSelfDemotion,
		Denies: func(r Request) bool {
			return r.IsSelf && r.Acting == RoleSuperAdmin && r.NewRole != RoleSuperAdmin
		},
	},
	{
		Name:   "super_admin_terminal",
		Reason: ReasonSuperAdminTerminal,
		Denies: func(r Request) bool { return r.Target == RoleSuperAdmin },
	},
	{
		Name:   "escalation_gate",
		Reason: ReasonPromotionRestricted,
		Denies: func(r Request) bool {
			return r.NewRole.Privileged() && r.Acting != RoleSuperAdmin
		},
	},
	{
		Name:   "peer_protection",
		Reason: ReasonPeerModification,
		Denies: func(r Request) bool {
			return r.Acting == RoleAdmin && r.Target.Privileged()
		},
	},
	{
		Name:   "unknown_new_role",
		Reason: ReasonInvalidRole,
		Denies: func(r Request) bool {
			_, ok := ParseRole(string(r.NewRole))
			return !ok
		},
	},
}

var deletionRules = []Rule{
	{
		Name:   "actor_not_privileged",
		Reason: ReasonUnauthorized,
		Denies: func(r Request) bool { return !r.Acting.Privileged() },
	},
	{
		Name:   "super_admin_terminal",
		Reason: ReasonSuperAdminUndeletable,
		Denies: func(r Request) bool { return r.Target == RoleSuperAdmin },
	},
	{
		Name:   "peer_protection",
		Reason: ReasonPeerDeletion,
		Denies: func(r Request) bool {
			return r.Acting == RoleAdmin && r.Target.Privileged()
		},
	},
}

// AuthorizeRoleChange decides whether acting may set target's role to newRole.
func AuthorizeRoleChange(acting, target, newRole Role, isSelf bool) Decision {
	return Evaluate(KindRoleChange, Request{Acting: acting, Target: target, NewRole: newRole, IsSelf: isSelf})
}

// AuthorizeDeletion decides whether acting may soft-delete target.
func AuthorizeDeletion(acting, target Role) Decision {
	return Evaluate(KindDeletion, Request{Acting: acting, Target: target})
}

func Evaluate(kind Kind, req Request) Decision {
	for _, rule := range table(kind) {
		if rule.Denies(req) {
			return Decision{Allowed: false, Rule: rule.Name, Reason: rule.Reason}
		}
	}
	return Decision{Allowed: true}
}

// Rules returns a copy of the ordered rule table for kind.
func Rules(kind Kind) []Rule {
	rules := table(kind)
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

func table(kind Kind) []Rule {
	switch kind {
	case KindRoleChange:
		return roleChangeRules
	case KindDeletion:
		return deletionRules
	default:
		return []Rule{{Name: "unknown_kind", Reason: ReasonUnauthorized, Denies: func(Request) bool { return true }}}
	}
}
