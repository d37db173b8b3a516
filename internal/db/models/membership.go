// Package models - membership.go defines models for user-to-organization
// membership and pending invitations. The membership role is the sole
// authorization signal consumed by the access policy.
package models

import "time"

// Membership represents a user's role within an organization.
// Unique per (user, organization).
type Membership struct {
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	Role           string    `json:"role"` // admin, editor, viewer
	JoinedAt       time.Time `json:"joined_at"`
}

// MemberWithUser includes user details for membership listings
type MemberWithUser struct {
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	Role           string    `json:"role"`
	JoinedAt       time.Time `json:"joined_at"`
	UserName       string    `json:"user_name"`
	UserEmail      string    `json:"user_email"`
}

// Invitation statuses
const (
	InvitationPending   = "pending"
	InvitationAccepted  = "accepted"
	InvitationExpired   = "expired"
	InvitationCancelled = "cancelled"
)

// Invitation represents a pending offer of organization membership.
// Unique per (organization, invitee email).
type Invitation struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	InviterID      string     `json:"inviter_id"`
	InviteeEmail   string     `json:"invitee_email"`
	Role           string     `json:"role"`
	Token          string     `json:"-"` // bearer secret, never serialized in listings
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
}

// CanBeAccepted reports whether the invitation is still open at the given time.
func (i *Invitation) CanBeAccepted(now time.Time) bool {
	return i.Status == InvitationPending && now.Before(i.ExpiresAt)
}
