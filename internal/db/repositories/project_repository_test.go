package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/keynest/keynest/internal/db/models"
)

var projectCols = []string{"id", "name", "description", "organization_id", "created_by", "created_at", "updated_at"}

func sampleProjectRow() *sqlmock.Rows {
	return sqlmock.NewRows(projectCols).
		AddRow("proj-1", "billing", "Billing service", "org-1", "user-1", time.Now(), time.Now())
}

func newProjectRepo(t *testing.T) (*ProjectRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewProjectRepository(db), mock
}

func TestProjectGetByID_Found(t *testing.T) {
	repo, mock := newProjectRepo(t)
	mock.ExpectQuery("SELECT.*FROM projects.*WHERE id").
		WithArgs("proj-1").
		WillReturnRows(sampleProjectRow())

	p, err := repo.GetByID(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected project, got nil")
	}
	if p.OrganizationID != "org-1" {
		t.Errorf("OrganizationID = %s, want org-1", p.OrganizationID)
	}
}

func TestProjectGetByID_NotFound(t *testing.T) {
	repo, mock := newProjectRepo(t)
	mock.ExpectQuery("SELECT.*FROM projects.*WHERE id").
		WillReturnRows(sqlmock.NewRows(projectCols))

	p, err := repo.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Error("expected nil, got non-nil")
	}
}

func TestProjectListByOrganization_Success(t *testing.T) {
	repo, mock := newProjectRepo(t)
	mock.ExpectQuery("SELECT.*FROM projects.*WHERE organization_id").
		WithArgs("org-1").
		WillReturnRows(sampleProjectRow())

	projects, err := repo.ListByOrganization(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(projects) != 1 {
		t.Errorf("len(projects) = %d, want 1", len(projects))
	}
}

// Two projects with the same name can coexist in one organization.
func TestProjectCreate_DuplicateNamesAllowed(t *testing.T) {
	repo, mock := newProjectRepo(t)
	mock.ExpectQuery("INSERT INTO projects").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("proj-2", time.Now(), time.Now()))

	p := &models.Project{Name: "billing", OrganizationID: "org-1", CreatedBy: "user-1"}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "proj-2" {
		t.Errorf("ID = %s, want proj-2", p.ID)
	}
}

func TestProjectUpdate_Success(t *testing.T) {
	repo, mock := newProjectRepo(t)
	mock.ExpectQuery("UPDATE projects").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	p := &models.Project{ID: "proj-1", Name: "billing", Description: "renamed"}
	if err := repo.Update(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProjectDelete_Success(t *testing.T) {
	repo, mock := newProjectRepo(t)
	mock.ExpectExec("DELETE FROM projects").
		WithArgs("proj-1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Delete(context.Background(), "proj-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProjectCreate_DBError(t *testing.T) {
	repo, mock := newProjectRepo(t)
	mock.ExpectQuery("INSERT INTO projects").
		WillReturnError(errDB)

	p := &models.Project{Name: "billing", OrganizationID: "org-1", CreatedBy: "user-1"}
	if err := repo.Create(context.Background(), p); err == nil {
		t.Error("expected error, got nil")
	}
}
