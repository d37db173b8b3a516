// projects.go implements handlers for project CRUD within an organization.
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

// ProjectHandlers handles project management endpoints
type ProjectHandlers struct {
	projectRepo *repositories.ProjectRepository
	orgRepo     *repositories.OrganizationRepository
	recorder    audit.Recorder
}

// NewProjectHandlers creates a new ProjectHandlers instance
func NewProjectHandlers(projectRepo *repositories.ProjectRepository, orgRepo *repositories.OrganizationRepository, recorder audit.Recorder) *ProjectHandlers {
	return &ProjectHandlers{projectRepo: projectRepo, orgRepo: orgRepo, recorder: recorder}
}

// requireProjectRole resolves a project up to the caller's role in the owning
// organization, writing the error response itself on failure.
func requireProjectRole(c *gin.Context, projectRepo *repositories.ProjectRepository, orgRepo *repositories.OrganizationRepository, projectID string) (*models.Project, access.Role, bool) {
	project, err := projectRepo.GetByID(c.Request.Context(), projectID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to retrieve project", CodeInternal, nil)
		return nil, "", false
	}
	if project == nil {
		respondError(c, http.StatusNotFound, "Project not found", CodeNotFound, nil)
		return nil, "", false
	}
	member, err := orgRepo.GetMember(c.Request.Context(), project.OrganizationID, middleware.CurrentUserID(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to check membership", CodeInternal, nil)
		return nil, "", false
	}
	if member == nil {
		respondError(c, http.StatusForbidden, "You do not have access to this project", CodeNoAccess, nil)
		return nil, "", false
	}
	return project, access.Role(member.Role), true
}

// ListHandler lists projects in an organization (any member)
// GET /api/v1/organizations/:id/projects
func (h *ProjectHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org, _, ok := requireOrgRole(c, h.orgRepo, c.Param("id"))
		if !ok {
			return
		}
		projects, err := h.projectRepo.ListByOrganization(c.Request.Context(), org.ID)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to list projects", CodeInternal, nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"projects": projects})
	}
}

// CreateHandler creates a project (editor or admin)
// POST /api/v1/organizations/:id/projects
func (h *ProjectHandlers) CreateHandler() gin.HandlerFunc {
	type request struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	return func(c *gin.Context) {
		org, role, ok := requireOrgRole(c, h.orgRepo, c.Param("id"))
		if !ok {
			return
		}
		if !access.Can(role, access.ActionCreate) {
			respondError(c, http.StatusForbidden, "Viewers cannot create projects", CodeNoAccess, nil)
			return
		}

		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "name is required", CodeValidationFailed, nil)
			return
		}

		project := &models.Project{
			Name:           req.Name,
			Description:    req.Description,
			OrganizationID: org.ID,
			CreatedBy:      middleware.CurrentUserID(c),
		}
		if err := h.projectRepo.Create(c.Request.Context(), project); err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to create project", CodeInternal, nil)
			return
		}

		record(c, h.recorder, models.AuditActionCreate, "project", project.ID, map[string]any{"name": project.Name})
		c.JSON(http.StatusCreated, gin.H{"project": project})
	}
}

// GetHandler retrieves a project (any member of the owning organization)
// GET /api/v1/projects/:id
func (h *ProjectHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		project, role, ok := requireProjectRole(c, h.projectRepo, h.orgRepo, c.Param("id"))
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"project": project, "role": role})
	}
}

// UpdateHandler updates project metadata (editor or admin)
// PUT /api/v1/projects/:id
func (h *ProjectHandlers) UpdateHandler() gin.HandlerFunc {
	type request struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	return func(c *gin.Context) {
		project, role, ok := requireProjectRole(c, h.projectRepo, h.orgRepo, c.Param("id"))
		if !ok {
			return
		}
		if !access.Can(role, access.ActionUpdate) {
			respondError(c, http.StatusForbidden, "Viewers cannot update projects", CodeNoAccess, nil)
			return
		}

		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "name is required", CodeValidationFailed, nil)
			return
		}

		project.Name = req.Name
		project.Description = req.Description
		if err := h.projectRepo.Update(c.Request.Context(), project); err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to update project", CodeInternal, nil)
			return
		}

		record(c, h.recorder, models.AuditActionUpdate, "project", project.ID, map[string]any{"name": project.Name})
		c.JSON(http.StatusOK, gin.H{"project": project})
	}
}

// DeleteHandler deletes a project and its environments (admin only)
// DELETE /api/v1/projects/:id
func (h *ProjectHandlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		project, role, ok := requireProjectRole(c, h.projectRepo, h.orgRepo, c.Param("id"))
		if !ok {
			return
		}
		if !access.CanDeleteEntity(role) {
			respondError(c, http.StatusForbidden, "Only admins can delete projects", CodeNoAccess, nil)
			return
		}

		if err := h.projectRepo.Delete(c.Request.Context(), project.ID); err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to delete project", CodeInternal, nil)
			return
		}

		record(c, h.recorder, models.AuditActionDelete, "project", project.ID, map[string]any{"name": project.Name})
		c.Status(http.StatusNoContent)
	}
}
