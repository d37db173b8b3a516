// Package api wires together all HTTP routes for the KeyNest backend.
//
// Route grouping philosophy:
//   - /healthz, /ready, and /version are unauthenticated so load balancers
//     and orchestrators can probe the service without credentials.
//   - Everything under /api/v1 requires a bearer JWT; the auth middleware
//     mirrors the token's identity into the users table so foreign keys on
//     memberships, created_by columns, and audit rows always resolve.
//
// Prometheus metrics are NOT served here; they live on the side-channel
// server started by main.go so the scrape endpoint bypasses auth entirely.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/keynest/keynest/internal/audit"
	"github.com/keynest/keynest/internal/config"
	"github.com/keynest/keynest/internal/crypto"
	"github.com/keynest/keynest/internal/db/repositories"
	"github.com/keynest/keynest/internal/jobs"
	"github.com/keynest/keynest/internal/middleware"
	"github.com/keynest/keynest/internal/safego"
	"github.com/keynest/keynest/internal/secrets"
)

// BackgroundServices holds resources that must be released during graceful
// shutdown. The caller (cmd/server) is responsible for calling Shutdown()
// when the process receives a termination signal.
type BackgroundServices struct {
	shipper audit.Shipper
	sweeper *jobs.InvitationExpirySweeper
}

// Shutdown stops background jobs and flushes the audit shippers. It should be
// called after the HTTP server has been shut down so in-flight requests are
// drained first.
func (bg *BackgroundServices) Shutdown() {
	if bg.sweeper != nil {
		bg.sweeper.Stop()
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Warn("failed to close audit shipper", "error", err)
		}
	}
	slog.Info("background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()

	masterKey, err := cfg.Encryption.MasterKey()
	if err != nil {
		return nil, nil, fmt.Errorf("encryption key: %w", err)
	}
	cipher, err := crypto.NewSecretCipher(masterKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize secret cipher: %w", err)
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	orgRepo := repositories.NewOrganizationRepository(db)
	projectRepo := repositories.NewProjectRepository(db)
	envRepo := repositories.NewEnvironmentRepository(db)
	variableRepo := repositories.NewVariableRepository(db)

	// Wrap *sql.DB with sqlx for the audit repository
	sqlxDB := sqlx.NewDb(db, "postgres")
	auditRepo := repositories.NewAuditRepository(sqlxDB)

	// Audit recorder with optional external shipping
	var shipper audit.Shipper
	if cfg.Audit.Enabled && len(cfg.Audit.Shippers) > 0 {
		shipper, err = audit.NewMultiShipper(cfg.Audit.Shippers)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize audit shippers: %w", err)
		}
		log.Printf("Audit shipping enabled (%d shippers configured)", len(cfg.Audit.Shippers))
	}
	recorder := audit.NewDBRecorder(auditRepo, shipper, nil)

	// Secret record store service
	svc := secrets.NewService(cipher, orgRepo, projectRepo, envRepo, variableRepo, recorder, nil)

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))

	// Health check endpoint
	router.GET("/healthz", healthCheckHandler(db))

	// Readiness check endpoint
	router.GET("/ready", readinessHandler(db))

	// API version
	router.GET("/version", versionHandler())

	// Handlers
	orgHandlers := NewOrganizationHandlers(orgRepo, recorder)
	projectHandlers := NewProjectHandlers(projectRepo, orgRepo, recorder)
	envHandlers := NewEnvironmentHandlers(envRepo, projectRepo, orgRepo, recorder)
	variableHandlers := NewVariableHandlers(svc)
	transferHandlers := NewTransferHandlers(svc)
	auditHandlers := NewAuditLogHandlers(auditRepo, orgRepo)

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(userRepo))
	{
		// Organizations
		api.GET("/organizations", orgHandlers.ListHandler())
		api.POST("/organizations", orgHandlers.CreateHandler())
		api.GET("/organizations/:id", orgHandlers.GetHandler())
		api.PUT("/organizations/:id", orgHandlers.UpdateHandler())
		api.DELETE("/organizations/:id", orgHandlers.DeleteHandler())

		// Membership
		api.GET("/organizations/:id/members", orgHandlers.ListMembersHandler())
		api.POST("/organizations/:id/members", orgHandlers.AddMemberHandler())
		api.PUT("/organizations/:id/members/:user_id", orgHandlers.UpdateMemberRoleHandler())
		api.DELETE("/organizations/:id/members/:user_id", orgHandlers.RemoveMemberHandler())

		// Invitations
		api.POST("/organizations/:id/invitations", orgHandlers.CreateInvitationHandler())
		api.DELETE("/organizations/:id/invitations/:invitation_id", orgHandlers.CancelInvitationHandler())
		api.POST("/invitations/accept", orgHandlers.AcceptInvitationHandler())

		// Projects
		api.GET("/organizations/:id/projects", projectHandlers.ListHandler())
		api.POST("/organizations/:id/projects", projectHandlers.CreateHandler())
		api.GET("/projects/:id", projectHandlers.GetHandler())
		api.PUT("/projects/:id", projectHandlers.UpdateHandler())
		api.DELETE("/projects/:id", projectHandlers.DeleteHandler())

		// Environments
		api.GET("/projects/:id/environments", envHandlers.ListHandler())
		api.POST("/projects/:id/environments", envHandlers.CreateHandler())
		api.GET("/environments/:id", envHandlers.GetHandler())
		api.PUT("/environments/:id", envHandlers.UpdateHandler())
		api.DELETE("/environments/:id", envHandlers.DeleteHandler())

		// Variables
		api.GET("/environments/:id/variables", variableHandlers.ListHandler())
		api.POST("/environments/:id/variables", variableHandlers.CreateHandler())
		api.GET("/variables/:id", variableHandlers.GetHandler())
		api.PUT("/variables/:id", variableHandlers.UpdateHandler())
		api.DELETE("/variables/:id", variableHandlers.DeleteHandler())
		api.GET("/variables/:id/versions", variableHandlers.ListVersionsHandler())

		// Bulk transfer
		api.GET("/environments/:id/export", transferHandlers.ExportHandler())
		api.POST("/environments/:id/import", transferHandlers.ImportHandler())

		// Audit trail
		api.GET("/audit-logs", auditHandlers.ListHandler())
	}

	// Housekeeping: sweep stale pending invitations in the background.
	sweeper := jobs.NewInvitationExpirySweeper(orgRepo, 0)
	safego.Go(func() { sweeper.Start(context.Background()) })

	return router, &BackgroundServices{shipper: shipper, sweeper: sweeper}, nil
}

// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler returns the readiness status of the service. Distinct from
// the liveness probe so orchestrators can gate traffic on a database check.
func readinessHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		// Log the request
		if cfg.Logging.Format == "json" {
			logJSON(c, latency, path, query)
		} else {
			logText(c, latency, path, query)
		}
	}
}

// logJSON logs a request as a JSON-structured slog record.
func logJSON(c *gin.Context, latency time.Duration, path, query string) {
	requestID, _ := c.Get(middleware.RequestIDKey)
	slog.LogAttrs(
		c.Request.Context(),
		slog.LevelInfo,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", fmt.Sprintf("%v", requestID)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// logText logs a request as a human-readable slog text record.
func logText(c *gin.Context, latency time.Duration, path, query string) {
	// reuse the same structured output; slog will emit text format when the global
	// handler is a TextHandler (configured in telemetry.SetupLogger).
	logJSON(c, latency, path, query)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
