package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "user read", role: RoleUser, action: ActionRead, allow: true},
		{name: "user write", role: RoleUser, action: ActionWrite, allow: true},
		{name: "user finance", role: RoleUser, action: ActionFinance, allow: false},
		{name: "user admin", role: RoleUser, action: ActionAdmin, allow: false},
		{name: "manager finance", role: RoleManager, action: ActionFinance, allow: true},
		{name: "manager admin", role: RoleManager, action: ActionAdmin, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "super admin admin", role: RoleSuperAdmin, action: ActionAdmin, allow: true},
		{name: "unknown read", role: Role("guest"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	for _, value := range []string{"user", "manager", "admin", "super_admin"} {
		if _, ok := ParseRole(value); !ok {
			t.Fatalf("ParseRole(%q) rejected a known role", value)
		}
	}
	for _, value := range []string{"", "Admin", "superadmin", "viewer"} {
		if _, ok := ParseRole(value); ok {
			t.Fatalf("ParseRole(%q) accepted an unknown role", value)
		}
	}
	if got := Normalize("viewer"); got != RoleUser {
		t.Fatalf("Normalize(viewer) = %q, want %q", got, RoleUser)
	}
}
