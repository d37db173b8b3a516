// audit_repository.go implements AuditRepository, the append-only store for
// audit entries. Rows are insert-only; there is no update or delete path.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/keynest/keynest/internal/db/models"
)

// auditRow mirrors the audit_logs table for sqlx scanning; details stays raw
// JSONB until decoded for the caller.
type auditRow struct {
	ID         string          `db:"id"`
	UserID     string          `db:"user_id"`
	Action     string          `db:"action"`
	TargetType string          `db:"target_type"`
	TargetID   string          `db:"target_id"`
	Details    json.RawMessage `db:"details"`
	IPAddress  *string         `db:"ip_address"`
	CreatedAt  sql.NullTime    `db:"created_at"`
}

func (row *auditRow) toModel() (*models.AuditLog, error) {
	entry := &models.AuditLog{
		ID:         row.ID,
		UserID:     row.UserID,
		Action:     row.Action,
		TargetType: row.TargetType,
		TargetID:   row.TargetID,
		IPAddress:  row.IPAddress,
	}
	if row.CreatedAt.Valid {
		entry.CreatedAt = row.CreatedAt.Time
	}
	if len(row.Details) > 0 {
		if err := json.Unmarshal(row.Details, &entry.Details); err != nil {
			return nil, fmt.Errorf("failed to decode audit details: %w", err)
		}
	}
	return entry, nil
}

// AuditRepository handles database operations for audit log entries
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends an audit entry
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	return create(ctx, r.db, entry)
}

// CreateTx appends an audit entry within an existing transaction, so the
// audit row commits or rolls back with the operation it records.
func (r *AuditRepository) CreateTx(ctx context.Context, tx *sql.Tx, entry *models.AuditLog) error {
	return create(ctx, tx, entry)
}

func create(ctx context.Context, q execer, entry *models.AuditLog) error {
	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (user_id, action, target_type, target_id, details, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err := q.QueryRowContext(ctx, query,
		entry.UserID, entry.Action, entry.TargetType, entry.TargetID, details, entry.IPAddress,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	return nil
}

// AuditFilter narrows an audit listing. Zero fields match everything.
type AuditFilter struct {
	UserID     string
	Action     string
	TargetType string
	TargetID   string
	Limit      int
	Offset     int
}

// List retrieves audit entries matching the filter, newest first
func (r *AuditRepository) List(ctx context.Context, filter AuditFilter) ([]*models.AuditLog, error) {
	query := `
		SELECT id, user_id, action, target_type, target_id, details, ip_address, created_at
		FROM audit_logs
		WHERE ($1 = '' OR user_id = $1::uuid)
		  AND ($2 = '' OR action = $2)
		  AND ($3 = '' OR target_type = $3)
		  AND ($4 = '' OR target_id = $4)
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6
	`

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows := make([]auditRow, 0)
	err := r.db.SelectContext(ctx, &rows, query,
		filter.UserID, filter.Action, filter.TargetType, filter.TargetID, limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	entries := make([]*models.AuditLog, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
