package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/keynest/keynest/internal/db/models"
)

// EnvironmentRepository handles database operations for environments
type EnvironmentRepository struct {
	db *sql.DB
}

// NewEnvironmentRepository creates a new environment repository
func NewEnvironmentRepository(db *sql.DB) *EnvironmentRepository {
	return &EnvironmentRepository{db: db}
}

// GetByID retrieves an environment by ID, or nil
func (r *EnvironmentRepository) GetByID(ctx context.Context, id string) (*models.Environment, error) {
	query := `
		SELECT id, name, project_id, environment_type, description, created_by, created_at, updated_at
		FROM environments
		WHERE id = $1
	`

	env := &models.Environment{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&env.ID,
		&env.Name,
		&env.ProjectID,
		&env.EnvironmentType,
		&env.Description,
		&env.CreatedBy,
		&env.CreatedAt,
		&env.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get environment: %w", err)
	}

	return env, nil
}

// GetByName retrieves an environment by project and name, or nil
func (r *EnvironmentRepository) GetByName(ctx context.Context, projectID, name string) (*models.Environment, error) {
	query := `
		SELECT id, name, project_id, environment_type, description, created_by, created_at, updated_at
		FROM environments
		WHERE project_id = $1 AND name = $2
	`

	env := &models.Environment{}
	err := r.db.QueryRowContext(ctx, query, projectID, name).Scan(
		&env.ID,
		&env.Name,
		&env.ProjectID,
		&env.EnvironmentType,
		&env.Description,
		&env.CreatedBy,
		&env.CreatedAt,
		&env.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get environment by name: %w", err)
	}

	return env, nil
}

// ListByProject retrieves all environments of a project
func (r *EnvironmentRepository) ListByProject(ctx context.Context, projectID string) ([]*models.Environment, error) {
	query := `
		SELECT id, name, project_id, environment_type, description, created_by, created_at, updated_at
		FROM environments
		WHERE project_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list environments: %w", err)
	}
	defer rows.Close()

	envs := make([]*models.Environment, 0)
	for rows.Next() {
		env := &models.Environment{}
		if err := rows.Scan(&env.ID, &env.Name, &env.ProjectID, &env.EnvironmentType, &env.Description, &env.CreatedBy, &env.CreatedAt, &env.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan environment: %w", err)
		}
		envs = append(envs, env)
	}

	return envs, rows.Err()
}

// Create creates an environment. The (project_id, name) unique constraint
// rejects duplicates.
func (r *EnvironmentRepository) Create(ctx context.Context, env *models.Environment) error {
	query := `
		INSERT INTO environments (name, project_id, environment_type, description, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query, env.Name, env.ProjectID, env.EnvironmentType, env.Description, env.CreatedBy).Scan(
		&env.ID,
		&env.CreatedAt,
		&env.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create environment: %w", err)
	}

	return nil
}

// Update updates an environment's name, type, and description
func (r *EnvironmentRepository) Update(ctx context.Context, env *models.Environment) error {
	query := `
		UPDATE environments
		SET name = $2, environment_type = $3, description = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query, env.ID, env.Name, env.EnvironmentType, env.Description).Scan(&env.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update environment: %w", err)
	}

	return nil
}

// Delete removes an environment and cascades to its variables and versions
func (r *EnvironmentRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM environments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete environment: %w", err)
	}
	return nil
}
