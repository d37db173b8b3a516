// environments.go implements handlers for environment CRUD within a project.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keynest/keynest/internal/access"
	"github.com/keynest/keynest/internal/audit"
	"github.com/keynest/keynest/internal/db/models"
	"github.com/keynest/keynest/internal/db/repositories"
	"github.com/keynest/keynest/internal/middleware"
)

// EnvironmentHandlers handles environment management endpoints
type EnvironmentHandlers struct {
	envRepo     *repositories.EnvironmentRepository
	projectRepo *repositories.ProjectRepository
	orgRepo     *repositories.OrganizationRepository
	recorder    audit.Recorder
}

// NewEnvironmentHandlers creates a new EnvironmentHandlers instance
func NewEnvironmentHandlers(
	envRepo *repositories.EnvironmentRepository,
	projectRepo *repositories.ProjectRepository,
	orgRepo *repositories.OrganizationRepository,
	recorder audit.Recorder,
) *EnvironmentHandlers {
	return &EnvironmentHandlers{envRepo: envRepo, projectRepo: projectRepo, orgRepo: orgRepo, recorder: recorder}
}

// requireEnvironmentRole resolves environment → project → membership, writing
// the error response itself on failure.
func (h *EnvironmentHandlers) requireEnvironmentRole(c *gin.Context, envID string) (*models.Environment, access.Role, bool) {
	env, err := h.envRepo.GetByID(c.Request.Context(), envID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to retrieve environment", CodeInternal, nil)
		return nil, "", false
	}
	if env == nil {
		respondError(c, http.StatusNotFound, "Environment not found", CodeNotFound, nil)
		return nil, "", false
	}
	_, role, ok := requireProjectRole(c, h.projectRepo, h.orgRepo, env.ProjectID)
	if !ok {
		return nil, "", false
	}
	return env, role, true
}

// ListHandler lists environments in a project (any member)
// GET /api/v1/projects/:id/environments
func (h *EnvironmentHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		project, _, ok := requireProjectRole(c, h.projectRepo, h.orgRepo, c.Param("id"))
		if !ok {
			return
		}
		envs, err := h.envRepo.ListByProject(c.Request.Context(), project.ID)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to list environments", CodeInternal, nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"environments": envs})
	}
}

// CreateHandler creates an environment (editor or admin); duplicate names
// within the project return 409
// POST /api/v1/projects/:id/environments
func (h *EnvironmentHandlers) CreateHandler() gin.HandlerFunc {
	type request struct {
		Name            string `json:"name" binding:"required"`
		EnvironmentType string `json:"environment_type" binding:"required"`
		Description     string `json:"description"`
	}
	return func(c *gin.Context) {
		project, role, ok := requireProjectRole(c, h.projectRepo, h.orgRepo, c.Param("id"))
		if !ok {
			return
		}
		if !access.Can(role, access.ActionCreate) {
			respondError(c, http.StatusForbidden, "Viewers cannot create environments", CodeNoAccess, nil)
			return
		}

		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "name and environment_type are required", CodeValidationFailed, nil)
			return
		}
		if !models.ValidEnvironmentType(req.EnvironmentType) {
			respondError(c, http.StatusBadRequest, "environment_type must be development, staging, production, or testing", CodeValidationFailed, nil)
			return
		}

		env := &models.Environment{
			Name:            req.Name,
			ProjectID:       project.ID,
			EnvironmentType: req.EnvironmentType,
			Description:     req.Description,
			CreatedBy:       middleware.CurrentUserID(c),
		}
		if err := h.envRepo.Create(c.Request.Context(), env); err != nil {
			if repositories.IsUniqueViolation(err) {
				respondError(c, http.StatusConflict, "An environment with this name already exists in the project", CodeDuplicateName, nil)
				return
			}
			respondError(c, http.StatusInternalServerError, "Failed to create environment", CodeInternal, nil)
			return
		}

		record(c, h.recorder, models.AuditActionCreate, "environment", env.ID, map[string]any{"name": env.Name})
		c.JSON(http.StatusCreated, gin.H{"environment": env})
	}
}

// GetHandler retrieves an environment (any member)
// GET /api/v1/environments/:id
func (h *EnvironmentHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		env, role, ok := h.requireEnvironmentRole(c, c.Param("id"))
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"environment": env, "role": role})
	}
}

// UpdateHandler updates environment metadata (editor or admin); renaming onto
// an existing name returns 409
// PUT /api/v1/environments/:id
func (h *EnvironmentHandlers) UpdateHandler() gin.HandlerFunc {
	type request struct {
		Name            string `json:"name" binding:"required"`
		EnvironmentType string `json:"environment_type" binding:"required"`
		Description     string `json:"description"`
	}
	return func(c *gin.Context) {
		env, role, ok := h.requireEnvironmentRole(c, c.Param("id"))
		if !ok {
			return
		}
		if !access.Can(role, access.ActionUpdate) {
			respondError(c, http.StatusForbidden, "Viewers cannot update environments", CodeNoAccess, nil)
			return
		}

		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "name and environment_type are required", CodeValidationFailed, nil)
			return
		}
		if !models.ValidEnvironmentType(req.EnvironmentType) {
			respondError(c, http.StatusBadRequest, "environment_type must be development, staging, production, or testing", CodeValidationFailed, nil)
			return
		}

		env.Name = req.Name
		env.EnvironmentType = req.EnvironmentType
		env.Description = req.Description
		if err := h.envRepo.Update(c.Request.Context(), env); err != nil {
			if repositories.IsUniqueViolation(err) {
				respondError(c, http.StatusConflict, "An environment with this name already exists in the project", CodeDuplicateName, nil)
				return
			}
			respondError(c, http.StatusInternalServerError, "Failed to update environment", CodeInternal, nil)
			return
		}

		record(c, h.recorder, models.AuditActionUpdate, "environment", env.ID, map[string]any{"name": env.Name})
		c.JSON(http.StatusOK, gin.H{"environment": env})
	}
}

// DeleteHandler deletes an environment and its variables (editor or admin)
// DELETE /api/v1/environments/:id
func (h *EnvironmentHandlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		env, role, ok := h.requireEnvironmentRole(c, c.Param("id"))
		if !ok {
			return
		}
		if !access.Can(role, access.ActionDelete) {
			respondError(c, http.StatusForbidden, "Viewers cannot delete environments", CodeNoAccess, nil)
			return
		}

		if err := h.envRepo.Delete(c.Request.Context(), env.ID); err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to delete environment", CodeInternal, nil)
			return
		}

		record(c, h.recorder, models.AuditActionDelete, "environment", env.ID, map[string]any{"name": env.Name})
		c.Status(http.StatusNoContent)
	}
}
