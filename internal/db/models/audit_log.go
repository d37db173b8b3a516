// Package models - audit_log.go defines the AuditLog model for recording
// security-relevant events, capturing actor, action, affected target, client
// IP, and arbitrary metadata. Details never contain decrypted secret values.
package models

import "time"

// Audit actions emitted by the secret store
const (
	AuditActionCreate = "create"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
	AuditActionView   = "view"
	AuditActionExport = "export"
	AuditActionImport = "import"
)

// AuditLog represents an append-only audit entry for a sensitive operation
type AuditLog struct {
	ID         string         `db:"id" json:"id"`
	UserID     string         `db:"user_id" json:"user_id"`
	Action     string         `db:"action" json:"action"`
	TargetType string         `db:"target_type" json:"target_type"` // organization, project, environment, variable
	TargetID   string         `db:"target_id" json:"target_id"`
	Details    map[string]any `db:"-" json:"details,omitempty"`
	IPAddress  *string        `db:"ip_address" json:"ip_address,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}
