// Package access implements role-based authorization for KeyNest as pure
// functions over explicit enums. Authorization is decided in exactly one
// place — a role/action matrix — rather than being scattered across HTTP
// handlers, so the permission model can be read (and tested) as a table.
//
// The caller's identity and organization role are resolved by the
// authentication layer before any function here is consulted; this package
// never touches the database.
package access

import "errors"

var (
	// ErrLastAdmin is returned when a membership change would leave an
	// organization with no admin, which would lock everyone out of role
	// management permanently.
	ErrLastAdmin = errors.New("access: organization must retain at least one admin")
	// ErrSelfModification is returned when an actor tries to change or remove
	// their own membership.
	ErrSelfModification = errors.New("access: cannot modify your own membership")
)

// Role is a caller's role within an organization. The zero value means the
// caller is not a member of the organization at all.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// IsValid reports whether r names a role that can be stored on a membership.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// Action is an operation a caller can request against an entity.
type Action string

const (
	ActionRead          Action = "read"
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionDelete        Action = "delete"
	ActionExport        Action = "export"
	ActionImport        Action = "import"
	ActionManageMembers Action = "manage_members"
)

// Visibility is the tier of access a role has over decrypted secret values.
type Visibility string

const (
	// VisibilityFull grants the decrypted plaintext.
	VisibilityFull Visibility = "full"
	// VisibilityHidden grants existence and metadata but masks the value.
	VisibilityHidden Visibility = "hidden"
	// VisibilityNoAccess denies the entity entirely.
	VisibilityNoAccess Visibility = "no_access"
)

// Can reports whether role may perform action. Non-members (zero Role) may do
// nothing; viewers may only read and export (with values hidden, see
// ValueVisibility); editors and admins may mutate; member management and
// entity deletion at the organization level are admin-only and checked via
// ActionManageMembers by the membership handlers.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return action != ActionManageMembers
	case RoleViewer:
		return action == ActionRead || action == ActionExport
	}
	return false
}

// CanDeleteEntity reports whether role may delete organization-level entities
// (the organization itself, projects). Variable and environment deletion
// follows the broader Can matrix; top-level containers are admin-only.
func CanDeleteEntity(role Role) bool {
	return role == RoleAdmin
}

// ValueVisibility returns the read-access tier a role has over decrypted
// variable values.
func ValueVisibility(role Role) Visibility {
	switch role {
	case RoleAdmin, RoleEditor:
		return VisibilityFull
	case RoleViewer:
		return VisibilityHidden
	}
	return VisibilityNoAccess
}

// CheckMembershipChange validates a role-change or removal of targetID's
// membership requested by actorID. targetIsAdmin is the target's current
// role, adminCount the organization's current number of admins.
//
// Two guardrails prevent lockout: an actor may never touch their own
// membership, and the last admin can never be demoted or removed.
func CheckMembershipChange(actorID, targetID string, targetIsAdmin bool, adminCount int) error {
	if actorID == targetID {
		return ErrSelfModification
	}
	if targetIsAdmin && adminCount <= 1 {
		return ErrLastAdmin
	}
	return nil
}
