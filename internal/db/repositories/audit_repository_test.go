package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/keynest/keynest/internal/db/models"
)

var auditCols = []string{"id", "user_id", "action", "target_type", "target_id", "details", "ip_address", "created_at"}

func newAuditRepo(t *testing.T) (*AuditRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAuditRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestAuditCreate_Success(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("INSERT INTO audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("audit-1", time.Now()))

	entry := &models.AuditLog{
		UserID:     "user-1",
		Action:     models.AuditActionUpdate,
		TargetType: "variable",
		TargetID:   "var-1",
		Details:    map[string]any{"key": "DATABASE_URL", "version": 3},
	}
	if err := repo.Create(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.ID != "audit-1" {
		t.Errorf("ID = %s, want audit-1", entry.ID)
	}
}

func TestAuditCreate_NilDetails(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("INSERT INTO audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("audit-2", time.Now()))

	entry := &models.AuditLog{
		UserID:     "user-1",
		Action:     models.AuditActionDelete,
		TargetType: "project",
		TargetID:   "proj-1",
	}
	if err := repo.Create(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAuditCreateTx_CommitsWithOperation(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO audit_logs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("audit-3", time.Now()))
	mock.ExpectCommit()

	tx, err := repo.db.DB.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	entry := &models.AuditLog{
		UserID:     "user-1",
		Action:     models.AuditActionImport,
		TargetType: "environment",
		TargetID:   "env-1",
		Details:    map[string]any{"created": 4, "updated": 2},
	}
	if err := repo.CreateTx(context.Background(), tx, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAuditList_Success(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT.*FROM audit_logs.*ORDER BY created_at DESC").
		WillReturnRows(sqlmock.NewRows(auditCols).
			AddRow("audit-1", "user-1", "update", "variable", "var-1", []byte(`{"key":"DATABASE_URL"}`), nil, time.Now()))

	entries, err := repo.List(context.Background(), AuditFilter{TargetType: "variable"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Details["key"] != "DATABASE_URL" {
		t.Errorf("Details[key] = %v, want DATABASE_URL", entries[0].Details["key"])
	}
}

func TestAuditList_EmptyDetails(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT.*FROM audit_logs").
		WillReturnRows(sqlmock.NewRows(auditCols).
			AddRow("audit-1", "user-1", "delete", "project", "proj-1", nil, nil, time.Now()))

	entries, err := repo.List(context.Background(), AuditFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Details != nil {
		t.Errorf("Details = %v, want nil", entries[0].Details)
	}
}

func TestAuditList_DBError(t *testing.T) {
	repo, mock := newAuditRepo(t)
	mock.ExpectQuery("SELECT.*FROM audit_logs").
		WillReturnError(errDB)

	if _, err := repo.List(context.Background(), AuditFilter{}); err == nil {
		t.Error("expected error")
	}
}
