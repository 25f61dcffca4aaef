package rbac

import "testing"

func TestCan(t *testing.T) {
	tests := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleAdmin, ActionRead, true},
		{RoleAdmin, ActionWrite, true},
		{RoleAdmin, ActionAdmin, true},
		{RoleAuthor, ActionRead, true},
		{RoleAuthor, ActionWrite, true},
		{RoleAuthor, ActionAdmin, false},
		{Role("unknown"), ActionRead, false},
	}

	for _, tt := range tests {
		if got := Can(tt.role, tt.action); got != tt.want {
			t.Errorf("Can(%s, %s) = %v, want %v", tt.role, tt.action, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("admin") != RoleAdmin {
		t.Errorf("expected admin to normalize to RoleAdmin")
	}
	if Normalize("author") != RoleAuthor {
		t.Errorf("expected author to normalize to RoleAuthor")
	}
	if Normalize("") != RoleAuthor {
		t.Errorf("expected empty role to fall back to RoleAuthor")
	}
	if Normalize("superuser") != RoleAuthor {
		t.Errorf("expected unknown role to fall back to RoleAuthor")
	}
}

func TestElevated(t *testing.T) {
	if !Elevated(RoleAdmin) {
		t.Errorf("admin should be elevated")
	}
	if Elevated(RoleAuthor) {
		t.Errorf("author should not be elevated")
	}
}
