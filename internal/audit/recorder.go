// Package audit records security-relevant events: variable reads and writes,
// imports and exports, membership changes, and deletions. Audit rows are
// intentionally separate from application logs — application logs are
// ephemeral debug output, audit rows are immutable records with their own
// consumers and retention. The database is the primary store; entries can
// additionally be shipped to a file or webhook sink for SIEM ingestion.
//
// Entry details must never contain decrypted secret values. Callers record
// keys, version numbers, and counts only.
package audit

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/keynest/keynest/internal/db/models"
	"github.com/keynest/keynest/internal/db/repositories"
)

// Recorder persists audit entries
type Recorder interface {
	// Record appends an audit entry
	Record(ctx context.Context, entry *models.AuditLog) error
	// RecordTx appends an audit entry inside an existing transaction so the
	// entry commits atomically with the operation it describes
	RecordTx(ctx context.Context, tx *sql.Tx, entry *models.AuditLog) error
}

// DBRecorder writes audit entries to the database and mirrors them to an
// optional shipper. Shipping is best-effort: a sink failure is logged and
// never fails the recorded operation.
type DBRecorder struct {
	repo    *repositories.AuditRepository
	shipper Shipper
	logger  *slog.Logger
}

// NewDBRecorder creates a database-backed audit recorder. shipper may be nil.
func NewDBRecorder(repo *repositories.AuditRepository, shipper Shipper, logger *slog.Logger) *DBRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBRecorder{repo: repo, shipper: shipper, logger: logger}
}

// Record appends an audit entry and mirrors it to the shipper
func (r *DBRecorder) Record(ctx context.Context, entry *models.AuditLog) error {
	if err := r.repo.Create(ctx, entry); err != nil {
		return err
	}
	r.ship(ctx, entry)
	return nil
}

// RecordTx appends an audit entry within tx. The entry is shipped
// immediately; if the caller later rolls back, the sink may hold an entry for
// an operation that never happened, which is acceptable for external sinks.
func (r *DBRecorder) RecordTx(ctx context.Context, tx *sql.Tx, entry *models.AuditLog) error {
	if err := r.repo.CreateTx(ctx, tx, entry); err != nil {
		return err
	}
	r.ship(ctx, entry)
	return nil
}

func (r *DBRecorder) ship(ctx context.Context, entry *models.AuditLog) {
	if r.shipper == nil {
		return
	}
	if err := r.shipper.Ship(ctx, entry); err != nil {
		r.logger.Warn("audit shipper error",
			"action", entry.Action,
			"target_type", entry.TargetType,
			"error", err,
		)
	}
}
