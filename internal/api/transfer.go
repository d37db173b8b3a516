// transfer.go implements bulk export and import of an environment's
// variables in dotenv, JSON, or YAML form.
package api

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/keynest/keynest/internal/codec"
	"github.com/keynest/keynest/internal/secrets"
)

// maxImportBody bounds the request body read for imports; the service applies
// its own content-size limit on top.
const maxImportBody = 12 << 20

// TransferHandlers handles environment export and import endpoints
type TransferHandlers struct {
	svc *secrets.Service
}

// NewTransferHandlers creates a new TransferHandlers instance
func NewTransferHandlers(svc *secrets.Service) *TransferHandlers {
	return &TransferHandlers{svc: svc}
}

// ExportHandler renders the environment as a downloadable file
// GET /api/v1/environments/:id/export?format=env|json|yaml
func (h *TransferHandlers) ExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		format := c.DefaultQuery("format", string(codec.FormatDotenv))
		if !codec.IsValidFormat(format) {
			respondError(c, http.StatusBadRequest, "format must be env, json, or yaml", CodeValidationFailed, nil)
			return
		}

		result, err := h.svc.ExportEnvironment(c.Request.Context(), actorFrom(c), c.Param("id"), codec.Format(format))
		if err != nil {
			respondServiceError(c, err)
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		if len(result.FailedKeys) > 0 {
			c.Header("X-Decryption-Warnings", strings.Join(result.FailedKeys, ","))
		}
		c.Data(http.StatusOK, result.ContentType, []byte(result.Content))
	}
}

// formatFromFilename infers the import format from an uploaded file's
// extension; unknown extensions fall back to dotenv, the default format.
func formatFromFilename(name string) codec.Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return codec.FormatJSON
	case ".yaml", ".yml":
		return codec.FormatYAML
	}
	return codec.FormatDotenv
}

// ImportHandler bulk-writes variables into the environment. Accepts either a
// multipart upload (field "file", format inferred from the extension) or a
// JSON body {data, format, overwrite}. Conflicts without overwrite return 409
// with the conflicting keys.
// POST /api/v1/environments/:id/import
func (h *TransferHandlers) ImportHandler() gin.HandlerFunc {
	type request struct {
		Data      string `json:"data" binding:"required"`
		Format    string `json:"format"`
		Overwrite bool   `json:"overwrite"`
	}
	return func(c *gin.Context) {
		var content string
		format := codec.FormatDotenv
		overwrite := false

		if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
			file, err := c.FormFile("file")
			if err != nil {
				respondError(c, http.StatusBadRequest, "multipart field 'file' is required", CodeValidationFailed, nil)
				return
			}
			f, err := file.Open()
			if err != nil {
				respondError(c, http.StatusBadRequest, "failed to read uploaded file", CodeValidationFailed, nil)
				return
			}
			defer f.Close()
			data, err := io.ReadAll(io.LimitReader(f, maxImportBody))
			if err != nil {
				respondError(c, http.StatusBadRequest, "failed to read uploaded file", CodeValidationFailed, nil)
				return
			}
			content = string(data)
			format = formatFromFilename(file.Filename)
			overwrite = c.PostForm("overwrite") == "true"
		} else {
			var req request
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "data is required", CodeValidationFailed, nil)
				return
			}
			content = req.Data
			overwrite = req.Overwrite
			if req.Format != "" {
				if !codec.IsValidFormat(req.Format) {
					respondError(c, http.StatusBadRequest, "format must be env, json, yaml, or auto", CodeValidationFailed, nil)
					return
				}
				format = codec.Format(req.Format)
			}
		}

		summary, err := h.svc.ImportEnvironment(c.Request.Context(), actorFrom(c), c.Param("id"), content, format, overwrite)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
