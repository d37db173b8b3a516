// organizations.go implements handlers for organization CRUD, membership
// management with guardrails, and invitations.
package api

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/keynest/keynest/internal/access"
	"github.com/keynest/keynest/internal/audit"
	"github.com/keynest/keynest/internal/db/models"
	"github.com/keynest/keynest/internal/db/repositories"
	"github.com/keynest/keynest/internal/middleware"
)

// invitationTTL is how long a pending invitation stays acceptable.
const invitationTTL = 7 * 24 * time.Hour

// OrganizationHandlers handles organization management endpoints
type OrganizationHandlers struct {
	orgRepo  *repositories.OrganizationRepository
	recorder audit.Recorder
}

// NewOrganizationHandlers creates a new OrganizationHandlers instance
func NewOrganizationHandlers(orgRepo *repositories.OrganizationRepository, recorder audit.Recorder) *OrganizationHandlers {
	return &OrganizationHandlers{orgRepo: orgRepo, recorder: recorder}
}

// record writes an audit entry for a handler-level mutation. Handler audits
// are best-effort: a failed write is logged, never surfaced to the client.
func record(c *gin.Context, recorder audit.Recorder, action, targetType, targetID string, details map[string]any) {
	ip := c.ClientIP()
	entry := &models.AuditLog{
		UserID:     middleware.CurrentUserID(c),
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
	}
	if ip != "" {
		entry.IPAddress = &ip
	}
	if err := recorder.Record(c.Request.Context(), entry); err != nil {
		slog.Warn("audit record failed", "action", action, "target_type", targetType, "error", err)
	}
}

// requireOrgRole loads the organization and the caller's membership. It writes
// the error response itself and returns ok=false when the caller may not see
// the organization at all.
func requireOrgRole(c *gin.Context, orgRepo *repositories.OrganizationRepository, orgID string) (*models.Organization, access.Role, bool) {
	org, err := orgRepo.GetByID(c.Request.Context(), orgID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to retrieve organization", CodeInternal, nil)
		return nil, "", false
	}
	if org == nil {
		respondError(c, http.StatusNotFound, "Organization not found", CodeNotFound, nil)
		return nil, "", false
	}
	member, err := orgRepo.GetMember(c.Request.Context(), orgID, middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to check membership", CodeInternal, nil)
		return nil, "", false
	}
	if member == nil {
		respondError(c, http.StatusForbidden, "You do not have access to this organization", CodeNoAccess, nil)
		return nil, "", false
	}
	return org, access.Role(member.Role), true
}

// ListHandler lists the organizations the caller belongs to
// GET /api/v1/organizations
func (h *OrganizationHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgs, err := h.orgRepo.ListForUser(c.Request.Context(), middleware.CurrentUserID(c))
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to list organizations", CodeInternal, nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"organizations": orgs})
	}
}

// CreateHandler creates an organization; the creator becomes its first admin
// POST /api/v1/organizations
func (h *OrganizationHandlers) CreateHandler() gin.HandlerFunc {
	type request struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	return func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "name is required", CodeValidationFailed, nil)
			return
		}

		org := &models.Organization{
			Name:        req.Name,
			Description: req.Description,
			CreatedBy:   middleware.CurrentUserID(c),
		}
		if err := h.orgRepo.Create(c.Request.Context(), org); err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to create organization", CodeInternal, nil)
			return
		}

		record(c, h.recorder, models.AuditActionCreate, "organization", org.ID, map[string]any{"name": org.Name})
		c.JSON(http.StatusCreated, gin.H{"organization": org})
	}
}

// GetHandler retrieves an organization the caller is a member of
// GET /api/v1/organizations/:id
func (h *OrganizationHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org, role, ok := requireOrgRole(c, h.orgRepo, c.Param("id"))
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"organization": org, "role": role})
	}
}

// UpdateHandler updates organization metadata (admin only)
// PUT /api/v1/organizations/:id
func (h *OrganizationHandlers) UpdateHandler() gin.HandlerFunc {
	type request struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	return func(c *gin.Context) {
		org, role, ok := requireOrgRole(c, h.orgRepo, c.Param("id"))
		if !ok {
			return
		}
		if role != access.RoleAdmin {
			respondError(c, http.StatusForbidden, "Only admins can update an organization", CodeNoAccess, nil)
			return
		}

		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "name is required", CodeValidationFailed, nil)
			return
		}

		org.Name = req.Name
		org.Description = req.Description
		if err := h.orgRepo.Update(c.Request.Context(), org); err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to update organization", CodeInternal, nil)
			return
		}

		record(c, h.recorder, models.AuditActionUpdate, "organization", org.ID, map[string]any{"name": org.Name})
		c.JSON(http.StatusOK, gin.H{"organization": org})
	}
}

// DeleteHandler deletes an organization and everything under it (admin only)
// DELETE /api/v1/organizations/:id
func (h *OrganizationHandlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org, role, ok := requireOrgRole(c, h.orgRepo, c.Param("id"))
		if !ok {
			return
		}
		if !access.CanDeleteEntity(role) {
			respondError(c, http.StatusForbidden, "Only admins can delete an organization", CodeNoAccess, nil)
			return
		}

		if err := h.orgRepo.Delete(c.Request.Context(), org.ID); err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to delete organization", CodeInternal, nil)
			return
		}

		record(c, h.recorder, models.AuditActionDelete, "organization", org.ID, map[string]any{"name": org.Name})
		c.Status(http.StatusNoContent)
	}
}

// ---------------------------------------------------------------------------
// Membership management
// ---------------------------------------------------------------------------

// ListMembersHandler lists members with user details (any member)
// GET /api/v1/organizations/:id/members
func (h *OrganizationHandlers) ListMembersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org, _, ok := requireOrgRole(c, h.orgRepo, c.Param("id"))
		if !ok {
			return
		}
		members, err := h.orgRepo.ListMembers(c.Request.Context(), org.ID)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to list members", CodeInternal, nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"members": members})
	}
}

// AddMemberHandler adds an existing user to the organization (admin only)
// POST /api/v1/organizations/:id/members
func (h *OrganizationHandlers) AddMemberHandler() gin.HandlerFunc {
	type request struct {
		UserID string `json:"user_id" binding:"required"`
		Role   string `json:"role" binding:"required"`
	}
	return func(c *gin.Context) {
		org, role, ok := requireOrgRole(c, h.orgRepo, c.Param("id"))
		if !ok {
			return
		}
		if !access.Can(role, access.ActionManageMembers) {
			respondError(c, http.StatusForbidden, "Only admins can manage members", CodeNoAccess, nil)
			return
		}

		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "user_id and role are required", CodeValidationFailed, nil)
			return
		}
		if !access.Role(req.Role).IsValid() {
			respondError(c, http.StatusBadRequest, "role must be admin, editor, or viewer", CodeValidationFailed, nil)
			return
		}

		if err := h.orgRepo.AddMember(c.Request.Context(), org.ID, req.UserID, req.Role); err != nil {
			if repositories.IsUniqueViolation(err) {
				respondError(c, http.StatusConflict, "User is already a member", CodeDuplicateName, nil)
				return
			}
			respondError(c, http.StatusInternalServerError, "Failed to add member", CodeInternal, nil)
			return
		}

		record(c, h.recorder, models.AuditActionUpdate, "organization", org.ID, map[string]any{
			"member_added": req.UserID,
			"role":         req.Role,
		})
		c.Status(http.StatusCreated)
	}
}

// UpdateMemberRoleHandler changes a member's role (admin only, guardrails apply)
// PUT /api/v1/organizations/:id/members/:user_id
func (h *OrganizationHandlers) UpdateMemberRoleHandler() gin.HandlerFunc {
	type request struct {
		Role string `json:"role" binding:"required"`
	}
	return func(c *gin.Context) {
		org, role, ok := requireOrgRole(c, h.orgRepo, c.Param("id"))
		if !ok {
			return
		}
		if !access.Can(role, access.ActionManageMembers) {
			respondError(c, http.StatusForbidden, "Only admins can manage members", CodeNoAccess, nil)
			return
		}

		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "role is required", CodeValidationFailed, nil)
			return
		}
		if !access.Role(req.Role).IsValid() {
			respondError(c, http.StatusBadRequest, "role must be admin, editor, or viewer", CodeValidationFailed, nil)
			return
		}

		targetID := c.Param("user_id")
		target, err := h.orgRepo.GetMember(c.Request.Context(), org.ID, targetID)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to load member", CodeInternal, nil)
			return
		}
		if target == nil {
			respondError(c, http.StatusNotFound, "Member not found", CodeNotFound, nil)
			return
		}

		// Demoting the last admin would orphan the organization.
		demotion := target.Role == string(access.RoleAdmin) && req.Role != string(access.RoleAdmin)
		if err := h.checkGuardrails(c, org.ID, targetID, demotion); err != nil {
			respondMembershipError(c, err)
			return
		}

		if err := h.orgRepo.UpdateMemberRole(c.Request.Context(), org.ID, targetID, req.Role); err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to update member role", CodeInternal, nil)
			return
		}

		record(c, h.recorder, models.AuditActionUpdate, "organization", org.ID, map[string]any{
			"member":   targetID,
			"new_role": req.Role,
		})
		c.JSON(http.StatusOK, gin.H{"user_id": targetID, "role": req.Role})
	}
}

// RemoveMemberHandler removes a member (admin only, guardrails apply)
// DELETE /api/v1/organizations/:id/members/:user_id
func (h *OrganizationHandlers) RemoveMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org, role, ok := requireOrgRole(c, h.orgRepo, c.Param("id"))
		if !ok {
			return
		}
		if !access.Can(role, access.ActionManageMembers) {
			respondError(c, http.StatusForbidden, "Only admins can manage members", CodeNoAccess, nil)
			return
		}

		targetID := c.Param("user_id")
		target, err := h.orgRepo.GetMember(c.Request.Context(), org.ID, targetID)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to load member", CodeInternal, nil)
			return
		}
		if target == nil {
			respondError(c, http.StatusNotFound, "Member not found", CodeNotFound, nil)
			return
		}

		if err := h.checkGuardrails(c, org.ID, targetID, target.Role == string(access.RoleAdmin)); err != nil {
			respondMembershipError(c, err)
			return
		}

		if err := h.orgRepo.RemoveMember(c.Request.Context(), org.ID, targetID); err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to remove member", CodeInternal, nil)
			return
		}

		record(c, h.recorder, models.AuditActionUpdate, "organization", org.ID, map[string]any{
			"member_removed": targetID,
		})
		c.Status(http.StatusNoContent)
	}
}

// checkGuardrails applies the self-modification and last-admin rules.
// targetLosesAdmin is true when the change would remove an admin seat.
func (h *OrganizationHandlers) checkGuardrails(c *gin.Context, orgID, targetID string, targetLosesAdmin bool) error {
	adminCount, err := h.orgRepo.CountAdmins(c.Request.Context(), orgID)
	if err != nil {
		return err
	}
	return access.CheckMembershipChange(middleware.CurrentUserID(c), targetID, targetLosesAdmin, adminCount)
}

// ---------------------------------------------------------------------------
// Invitations
// ---------------------------------------------------------------------------

// newInvitationToken returns a 64-character hex bearer secret.
func newInvitationToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// CreateInvitationHandler invites an email address into the organization (admin only)
// POST /api/v1/organizations/:id/invitations
func (h *OrganizationHandlers) CreateInvitationHandler() gin.HandlerFunc {
	type request struct {
		Email string `json:"email" binding:"required,email"`
		Role  string `json:"role" binding:"required"`
	}
	return func(c *gin.Context) {
		org, role, ok := requireOrgRole(c, h.orgRepo, c.Param("id"))
		if !ok {
			return
		}
		if !access.Can(role, access.ActionManageMembers) {
			respondError(c, http.StatusForbidden, "Only admins can invite members", CodeNoAccess, nil)
			return
		}

		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "email and role are required", CodeValidationFailed, nil)
			return
		}
		if !access.Role(req.Role).IsValid() {
			respondError(c, http.StatusBadRequest, "role must be admin, editor, or viewer", CodeValidationFailed, nil)
			return
		}

		token, err := newInvitationToken()
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to create invitation", CodeInternal, nil)
			return
		}

		inv := &models.Invitation{
			OrganizationID: org.ID,
			InviterID:      middleware.CurrentUserID(c),
			InviteeEmail:   req.Email,
			Role:           req.Role,
			Token:          token,
			ExpiresAt:      time.Now().Add(invitationTTL),
		}
		if err := h.orgRepo.CreateInvitation(c.Request.Context(), inv); err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to create invitation", CodeInternal, nil)
			return
		}

		record(c, h.recorder, models.AuditActionCreate, "organization", org.ID, map[string]any{
			"invitation_id": inv.ID,
			"role":          inv.Role,
		})
		// The token is returned exactly once, to the inviter.
		c.JSON(http.StatusCreated, gin.H{"invitation": inv, "token": token})
	}
}

// AcceptInvitationHandler redeems an invitation token for the calling user
// POST /api/v1/invitations/accept
func (h *OrganizationHandlers) AcceptInvitationHandler() gin.HandlerFunc {
	type request struct {
		Token string `json:"token" binding:"required"`
	}
	return func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "token is required", CodeValidationFailed, nil)
			return
		}

		inv, err := h.orgRepo.GetInvitationByToken(c.Request.Context(), req.Token)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to look up invitation", CodeInternal, nil)
			return
		}
		if inv == nil || !inv.CanBeAccepted(time.Now()) {
			respondError(c, http.StatusBadRequest, "Invitation is invalid or has expired", CodeValidationFailed, nil)
			return
		}

		userID := middleware.CurrentUserID(c)
		if err := h.orgRepo.AcceptInvitation(c.Request.Context(), inv.ID, userID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				respondError(c, http.StatusBadRequest, "Invitation is invalid or has expired", CodeValidationFailed, nil)
				return
			}
			if repositories.IsUniqueViolation(err) {
				respondError(c, http.StatusConflict, "You are already a member of this organization", CodeDuplicateName, nil)
				return
			}
			respondError(c, http.StatusInternalServerError, "Failed to accept invitation", CodeInternal, nil)
			return
		}

		record(c, h.recorder, models.AuditActionUpdate, "organization", inv.OrganizationID, map[string]any{
			"invitation_accepted": inv.ID,
			"role":                inv.Role,
		})
		c.JSON(http.StatusOK, gin.H{"organization_id": inv.OrganizationID, "role": inv.Role})
	}
}

// CancelInvitationHandler cancels a pending invitation (admin only)
// DELETE /api/v1/organizations/:id/invitations/:invitation_id
func (h *OrganizationHandlers) CancelInvitationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org, role, ok := requireOrgRole(c, h.orgRepo, c.Param("id"))
		if !ok {
			return
		}
		if !access.Can(role, access.ActionManageMembers) {
			respondError(c, http.StatusForbidden, "Only admins can cancel invitations", CodeNoAccess, nil)
			return
		}

		invID := c.Param("invitation_id")
		if err := h.orgRepo.CancelInvitation(c.Request.Context(), org.ID, invID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				respondError(c, http.StatusNotFound, "Pending invitation not found", CodeNotFound, nil)
				return
			}
			respondError(c, http.StatusInternalServerError, "Failed to cancel invitation", CodeInternal, nil)
			return
		}

		record(c, h.recorder, models.AuditActionUpdate, "organization", org.ID, map[string]any{
			"invitation_cancelled": invID,
		})
		c.Status(http.StatusNoContent)
	}
}
