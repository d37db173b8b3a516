// variables.go implements handlers for secret variables: CRUD, value reads
// gated by role visibility, and version history.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keynest/keynest/internal/middleware"
	"github.com/keynest/keynest/internal/secrets"
)

// VariableHandlers handles variable endpoints; all policy, cipher, and audit
// work happens inside the secrets service.
type VariableHandlers struct {
	svc *secrets.Service
}

// NewVariableHandlers creates a new VariableHandlers instance
func NewVariableHandlers(svc *secrets.Service) *VariableHandlers {
	return &VariableHandlers{svc: svc}
}

// actorFrom builds the service actor from the authenticated request.
func actorFrom(c *gin.Context) secrets.Actor {
	return secrets.Actor{
		UserID:    middleware.CurrentUserID(c),
		IPAddress: c.ClientIP(),
	}
}

// ListHandler lists variable metadata in an environment (any member)
// GET /api/v1/environments/:id/variables
func (h *VariableHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		vars, err := h.svc.ListVariables(c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"variables": vars})
	}
}

// CreateHandler creates a variable (editor or admin); duplicate keys return
// 409 with code duplicate_key
// POST /api/v1/environments/:id/variables
func (h *VariableHandlers) CreateHandler() gin.HandlerFunc {
	type request struct {
		Key   string `json:"key" binding:"required"`
		Value string `json:"value"`
	}
	return func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "key is required", CodeValidationFailed, nil)
			return
		}

		v, err := h.svc.CreateVariable(c.Request.Context(), actorFrom(c), c.Param("id"), req.Key, req.Value)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"variable": v})
	}
}

// GetHandler retrieves a variable with its value rendered per the caller's
// visibility tier: plaintext for editors/admins, the hidden marker for
// viewers. Plaintext reads are audited.
// GET /api/v1/variables/:id
func (h *VariableHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		id := c.Param("id")

		v, err := h.svc.GetVariable(c.Request.Context(), actor, id)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		value, err := h.svc.ReadValue(c.Request.Context(), actor, id)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"variable": v, "value": value})
	}
}

// UpdateHandler overwrites a variable's value (editor or admin). The value
// field is optional: omitting it leaves the stored value untouched.
// PUT /api/v1/variables/:id
func (h *VariableHandlers) UpdateHandler() gin.HandlerFunc {
	type request struct {
		Value *string `json:"value"`
	}
	return func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "invalid request body", CodeValidationFailed, nil)
			return
		}

		v, err := h.svc.UpdateVariable(c.Request.Context(), actorFrom(c), c.Param("id"), req.Value)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"variable": v})
	}
}

// DeleteHandler deletes a variable and its history (editor or admin)
// DELETE /api/v1/variables/:id
func (h *VariableHandlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.svc.DeleteVariable(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
			respondServiceError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ListVersionsHandler lists version history metadata, newest first (any
// member). Sealed snapshot values are excluded from serialization by the
// model, so only metadata leaves this endpoint.
// GET /api/v1/variables/:id/versions
func (h *VariableHandlers) ListVersionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		versions, err := h.svc.ListVersions(c.Request.Context(), actorFrom(c), c.Param("id"))
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"versions": versions})
	}
}
