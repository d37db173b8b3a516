// respond.go centralises the error envelope and the mapping from service
// errors to HTTP status codes so every handler fails the same way.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keynest/keynest/internal/access"
	"github.com/keynest/keynest/internal/secrets"
)

// Stable machine-readable reason codes carried in the "code" field of error
// responses. Clients branch on these, never on the human-readable message.
const (
	CodeNotFound         = "not_found"
	CodeNoAccess         = "no_access"
	CodeDuplicateKey     = "duplicate_key"
	CodeDuplicateName    = "duplicate_name"
	CodeVersionConflict  = "version_conflict"
	CodeValidationFailed = "validation_failed"
	CodeImportConflict   = "import_conflict"
	CodeLastAdmin        = "last_admin"
	CodeSelfModification = "self_modification"
	CodeInternal         = "internal_error"
)

// respondError writes the error envelope. details is optional and must never
// contain secret plaintext.
func respondError(c *gin.Context, status int, message, code string, details any) {
	body := gin.H{"error": message, "code": code}
	if details != nil {
		body["details"] = details
	}
	c.JSON(status, body)
}

// respondServiceError maps the secrets service error taxonomy onto HTTP.
func respondServiceError(c *gin.Context, err error) {
	var validationErr *secrets.ValidationError
	var conflictErr *secrets.ImportConflictError

	switch {
	case errors.Is(err, secrets.ErrNotFound):
		respondError(c, http.StatusNotFound, "Not found", CodeNotFound, nil)
	case errors.Is(err, secrets.ErrNoAccess):
		respondError(c, http.StatusForbidden, "You do not have access to this resource", CodeNoAccess, nil)
	case errors.Is(err, secrets.ErrDuplicateKey):
		respondError(c, http.StatusConflict, "A variable with this key already exists", CodeDuplicateKey, nil)
	case errors.Is(err, secrets.ErrVersionConflict):
		respondError(c, http.StatusConflict, "Concurrent update detected, retry the request", CodeVersionConflict, nil)
	case errors.As(err, &validationErr):
		respondError(c, http.StatusBadRequest, "Validation failed", CodeValidationFailed, validationErr.Problems)
	case errors.As(err, &conflictErr):
		respondError(c, http.StatusConflict, "Import conflicts with existing keys", CodeImportConflict, gin.H{
			"conflicts": conflictErr.Keys,
		})
	default:
		respondError(c, http.StatusInternalServerError, "Internal server error", CodeInternal, nil)
	}
}

// respondMembershipError maps the membership guardrail errors onto 400 with
// their stable reason codes; other errors fall through to 500.
func respondMembershipError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, access.ErrLastAdmin):
		respondError(c, http.StatusBadRequest, "Organizations must retain at least one admin", CodeLastAdmin, nil)
	case errors.Is(err, access.ErrSelfModification):
		respondError(c, http.StatusBadRequest, "You cannot modify your own membership", CodeSelfModification, nil)
	default:
		respondError(c, http.StatusInternalServerError, "Internal server error", CodeInternal, nil)
	}
}
