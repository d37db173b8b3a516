// organization_repository.go implements OrganizationRepository, providing
// database queries for organization CRUD, membership management, and
// invitation lifecycle.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/keynest/keynest/internal/db/models"
)

// OrganizationRepository handles database operations for organizations
type OrganizationRepository struct {
	db *sql.DB
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	query := `
		SELECT id, name, description, created_by, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`

	org := &models.Organization{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&org.ID,
		&org.Name,
		&org.Description,
		&org.CreatedBy,
		&org.CreatedAt,
		&org.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return org, nil
}

// ListForUser retrieves the organizations a user is a member of
func (r *OrganizationRepository) ListForUser(ctx context.Context, userID string) ([]*models.Organization, error) {
	query := `
		SELECT o.id, o.name, o.description, o.created_by, o.created_at, o.updated_at
		FROM organizations o
		JOIN organization_memberships m ON m.organization_id = o.id
		WHERE m.user_id = $1
		ORDER BY o.created_at
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	orgs := make([]*models.Organization, 0)
	for rows.Next() {
		org := &models.Organization{}
		if err := rows.Scan(&org.ID, &org.Name, &org.Description, &org.CreatedBy, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}

	return orgs, rows.Err()
}

// Create creates an organization and makes the creator its first admin
// member in a single transaction.
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO organizations (name, description, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`

	err = tx.QueryRowContext(ctx, query, org.Name, org.Description, org.CreatedBy).Scan(
		&org.ID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	memberQuery := `
		INSERT INTO organization_memberships (user_id, organization_id, role)
		VALUES ($1, $2, 'admin')
	`
	if _, err := tx.ExecContext(ctx, memberQuery, org.CreatedBy, org.ID); err != nil {
		return fmt.Errorf("failed to add creator membership: %w", err)
	}

	return tx.Commit()
}

// Update updates an organization's name and description
func (r *OrganizationRepository) Update(ctx context.Context, org *models.Organization) error {
	query := `
		UPDATE organizations
		SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query, org.ID, org.Name, org.Description).Scan(&org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}

	return nil
}

// Delete removes an organization; projects, environments, variables, and
// versions go with it via ON DELETE CASCADE.
func (r *OrganizationRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	return nil
}

// === Membership operations ===

// GetMember retrieves a user's membership in an organization, or nil
func (r *OrganizationRepository) GetMember(ctx context.Context, orgID, userID string) (*models.Membership, error) {
	query := `
		SELECT user_id, organization_id, role, joined_at
		FROM organization_memberships
		WHERE organization_id = $1 AND user_id = $2
	`

	m := &models.Membership{}
	err := r.db.QueryRowContext(ctx, query, orgID, userID).Scan(
		&m.UserID,
		&m.OrganizationID,
		&m.Role,
		&m.JoinedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not a member
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	return m, nil
}

// ListMembers retrieves all memberships of an organization with user details
func (r *OrganizationRepository) ListMembers(ctx context.Context, orgID string) ([]*models.MemberWithUser, error) {
	query := `
		SELECT m.user_id, m.organization_id, m.role, m.joined_at, u.name, u.email
		FROM organization_memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY m.joined_at
	`

	rows, err := r.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := make([]*models.MemberWithUser, 0)
	for rows.Next() {
		m := &models.MemberWithUser{}
		if err := rows.Scan(&m.UserID, &m.OrganizationID, &m.Role, &m.JoinedAt, &m.UserName, &m.UserEmail); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

// CountAdmins returns the number of admin memberships in an organization
func (r *OrganizationRepository) CountAdmins(ctx context.Context, orgID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM organization_memberships WHERE organization_id = $1 AND role = 'admin'`
	if err := r.db.QueryRowContext(ctx, query, orgID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count admins: %w", err)
	}
	return count, nil
}

// AddMember adds a user to an organization with the given role
func (r *OrganizationRepository) AddMember(ctx context.Context, orgID, userID, role string) error {
	query := `
		INSERT INTO organization_memberships (user_id, organization_id, role)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, userID, orgID, role); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// UpdateMemberRole changes a member's role
func (r *OrganizationRepository) UpdateMemberRole(ctx context.Context, orgID, userID, role string) error {
	query := `
		UPDATE organization_memberships
		SET role = $3
		WHERE organization_id = $1 AND user_id = $2
	`
	result, err := r.db.ExecContext(ctx, query, orgID, userID, role)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RemoveMember removes a user from an organization
func (r *OrganizationRepository) RemoveMember(ctx context.Context, orgID, userID string) error {
	query := `DELETE FROM organization_memberships WHERE organization_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, query, orgID, userID); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

// === Invitation operations ===

// CreateInvitation creates a pending invitation
func (r *OrganizationRepository) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	query := `
		INSERT INTO organization_invitations (organization_id, inviter_id, invitee_email, role, token, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		inv.OrganizationID, inv.InviterID, inv.InviteeEmail, inv.Role, inv.Token, inv.ExpiresAt,
	).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}

	inv.Status = models.InvitationPending
	return nil
}

// GetInvitationByToken retrieves an invitation by its bearer token, or nil
func (r *OrganizationRepository) GetInvitationByToken(ctx context.Context, token string) (*models.Invitation, error) {
	query := `
		SELECT id, organization_id, inviter_id, invitee_email, role, token, status, created_at, expires_at, accepted_at
		FROM organization_invitations
		WHERE token = $1
	`

	inv := &models.Invitation{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&inv.ID, &inv.OrganizationID, &inv.InviterID, &inv.InviteeEmail,
		&inv.Role, &inv.Token, &inv.Status, &inv.CreatedAt, &inv.ExpiresAt, &inv.AcceptedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	return inv, nil
}

// AcceptInvitation marks an invitation accepted and creates the membership
// in one transaction.
func (r *OrganizationRepository) AcceptInvitation(ctx context.Context, invitationID, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var orgID, role string
	query := `
		UPDATE organization_invitations
		SET status = 'accepted', accepted_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING organization_id, role
	`
	if err := tx.QueryRowContext(ctx, query, invitationID).Scan(&orgID, &role); err != nil {
		if err == sql.ErrNoRows {
			return sql.ErrNoRows
		}
		return fmt.Errorf("failed to accept invitation: %w", err)
	}

	memberQuery := `
		INSERT INTO organization_memberships (user_id, organization_id, role)
		VALUES ($1, $2, $3)
	`
	if _, err := tx.ExecContext(ctx, memberQuery, userID, orgID, role); err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}

	return tx.Commit()
}

// CancelInvitation marks a pending invitation of the given organization
// cancelled. Returns sql.ErrNoRows when no pending invitation matched.
func (r *OrganizationRepository) CancelInvitation(ctx context.Context, orgID, invitationID string) error {
	query := `
		UPDATE organization_invitations
		SET status = 'cancelled'
		WHERE id = $1 AND organization_id = $2 AND status = 'pending'
	`
	result, err := r.db.ExecContext(ctx, query, invitationID, orgID)
	if err != nil {
		return fmt.Errorf("failed to cancel invitation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to cancel invitation: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ExpireInvitations marks pending invitations past their expiry as expired
// and returns the number of rows updated.
func (r *OrganizationRepository) ExpireInvitations(ctx context.Context) (int64, error) {
	query := `
		UPDATE organization_invitations
		SET status = 'expired'
		WHERE status = 'pending' AND expires_at < NOW()
	`
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	return rows, nil
}

// HasManagementRole reports whether the user is an admin or editor in at
// least one organization. Used to gate the audit trail listing.
func (r *OrganizationRepository) HasManagementRole(ctx context.Context, userID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM organization_memberships
			WHERE user_id = $1 AND role IN ('admin', 'editor')
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check memberships: %w", err)
	}
	return exists, nil
}
