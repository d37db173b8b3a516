// auditlogs.go implements the audit trail listing endpoint.
package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/keynest/keynest/internal/db/repositories"
	"github.com/keynest/keynest/internal/middleware"
)

// AuditLogHandlers handles audit trail endpoints
type AuditLogHandlers struct {
	auditRepo *repositories.AuditRepository
	orgRepo   *repositories.OrganizationRepository
}

// NewAuditLogHandlers creates a new AuditLogHandlers instance
func NewAuditLogHandlers(auditRepo *repositories.AuditRepository, orgRepo *repositories.OrganizationRepository) *AuditLogHandlers {
	return &AuditLogHandlers{auditRepo: auditRepo, orgRepo: orgRepo}
}

// ListHandler lists audit entries, newest first. Restricted to users holding
// an admin or editor role in at least one organization; viewers and
// membership-less users get 403.
// GET /api/v1/audit-logs?user_id=&action=&target_type=&target_id=&limit=&offset=
func (h *AuditLogHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := h.orgRepo.HasManagementRole(c.Request.Context(), middleware.CurrentUserID(c))
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to check permissions", CodeInternal, nil)
			return
		}
		if !ok {
			respondError(c, http.StatusForbidden, "Audit logs require an admin or editor role", CodeNoAccess, nil)
			return
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if offset < 0 {
			offset = 0
		}

		filter := repositories.AuditFilter{
			UserID:     c.Query("user_id"),
			Action:     c.Query("action"),
			TargetType: c.Query("target_type"),
			TargetID:   c.Query("target_id"),
			Limit:      limit,
			Offset:     offset,
		}
		entries, err := h.auditRepo.List(c.Request.Context(), filter)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to list audit logs", CodeInternal, nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"audit_logs": entries,
			"pagination": gin.H{"limit": filter.Limit, "offset": filter.Offset},
		})
	}
}
