package access

import (
	"errors"
	"testing"
)

func TestCanMatrix(t *testing.T) {
	nonMember := Role("")

	tests := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleAdmin, ActionRead, true},
		{RoleAdmin, ActionCreate, true},
		{RoleAdmin, ActionUpdate, true},
		{RoleAdmin, ActionDelete, true},
		{RoleAdmin, ActionImport, true},
		{RoleAdmin, ActionManageMembers, true},

		{RoleEditor, ActionRead, true},
		{RoleEditor, ActionCreate, true},
		{RoleEditor, ActionUpdate, true},
		{RoleEditor, ActionDelete, true},
		{RoleEditor, ActionImport, true},
		{RoleEditor, ActionManageMembers, false},

		{RoleViewer, ActionRead, true},
		{RoleViewer, ActionExport, true},
		{RoleViewer, ActionCreate, false},
		{RoleViewer, ActionUpdate, false},
		{RoleViewer, ActionDelete, false},
		{RoleViewer, ActionImport, false},

		{nonMember, ActionRead, false},
		{nonMember, ActionExport, false},
		{nonMember, ActionCreate, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.action), func(t *testing.T) {
			if got := Can(tt.role, tt.action); got != tt.want {
				t.Errorf("Can(%q, %q) = %v, want %v", tt.role, tt.action, got, tt.want)
			}
		})
	}
}

func TestCanDeleteEntity(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleAdmin, true},
		{RoleEditor, false},
		{RoleViewer, false},
		{Role(""), false},
	}

	for _, tt := range tests {
		if got := CanDeleteEntity(tt.role); got != tt.want {
			t.Errorf("CanDeleteEntity(%q) = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestValueVisibility(t *testing.T) {
	tests := []struct {
		role Role
		want Visibility
	}{
		{RoleAdmin, VisibilityFull},
		{RoleEditor, VisibilityFull},
		{RoleViewer, VisibilityHidden},
		{Role(""), VisibilityNoAccess},
		{Role("bogus"), VisibilityNoAccess},
	}

	for _, tt := range tests {
		if got := ValueVisibility(tt.role); got != tt.want {
			t.Errorf("ValueVisibility(%q) = %q, want %q", tt.role, got, tt.want)
		}
	}
}

func TestRoleIsValid(t *testing.T) {
	for _, role := range []Role{RoleAdmin, RoleEditor, RoleViewer} {
		if !role.IsValid() {
			t.Errorf("IsValid(%q) = false, want true", role)
		}
	}
	for _, role := range []Role{"", "owner", "Admin"} {
		if Role(role).IsValid() {
			t.Errorf("IsValid(%q) = true, want false", role)
		}
	}
}

func TestCheckMembershipChange(t *testing.T) {
	t.Run("cannot modify own membership", func(t *testing.T) {
		err := CheckMembershipChange("user-1", "user-1", false, 5)
		if !errors.Is(err, ErrSelfModification) {
			t.Errorf("error = %v, want ErrSelfModification", err)
		}
	})

	t.Run("cannot remove last admin", func(t *testing.T) {
		err := CheckMembershipChange("user-1", "user-2", true, 1)
		if !errors.Is(err, ErrLastAdmin) {
			t.Errorf("error = %v, want ErrLastAdmin", err)
		}
	})

	t.Run("removing a non-last admin is allowed", func(t *testing.T) {
		if err := CheckMembershipChange("user-1", "user-2", true, 2); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("removing a non-admin is always allowed", func(t *testing.T) {
		if err := CheckMembershipChange("user-1", "user-2", false, 1); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("self check takes precedence over admin count", func(t *testing.T) {
		err := CheckMembershipChange("user-1", "user-1", true, 1)
		if !errors.Is(err, ErrSelfModification) {
			t.Errorf("error = %v, want ErrSelfModification", err)
		}
	})
}
