// variable_repository.go implements VariableRepository, the storage layer for
// encrypted variables and their append-only version history. Value overwrites
// run inside a caller-owned transaction: the current row is locked with
// SELECT ... FOR UPDATE, the old sealed value is snapshotted into
// variable_versions, and only then is the live row updated. The
// (variable_id, version_number) unique constraint is the backstop against
// concurrent writers assigning the same version number.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/keynest/keynest/internal/db/models"
)

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// VariableRepository handles database operations for variables and versions
type VariableRepository struct {
	db *sql.DB
}

// NewVariableRepository creates a new variable repository
func NewVariableRepository(db *sql.DB) *VariableRepository {
	return &VariableRepository{db: db}
}

// BeginTx starts a transaction for multi-statement variable writes
func (r *VariableRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// GetByID retrieves a variable by ID, or nil
func (r *VariableRepository) GetByID(ctx context.Context, id string) (*models.Variable, error) {
	query := `
		SELECT id, key, sealed_value, environment_id, created_by, created_at, updated_at
		FROM variables
		WHERE id = $1
	`

	v := &models.Variable{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&v.ID,
		&v.Key,
		&v.SealedValue,
		&v.EnvironmentID,
		&v.CreatedBy,
		&v.CreatedAt,
		&v.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get variable: %w", err)
	}

	return v, nil
}

// GetByKeyFold retrieves a variable by environment and case-insensitive key
// match, or nil. Used for duplicate detection: DATABASE_URL and database_url
// may not coexist in one environment.
func (r *VariableRepository) GetByKeyFold(ctx context.Context, environmentID, key string) (*models.Variable, error) {
	query := `
		SELECT id, key, sealed_value, environment_id, created_by, created_at, updated_at
		FROM variables
		WHERE environment_id = $1 AND LOWER(key) = LOWER($2)
	`

	v := &models.Variable{}
	err := r.db.QueryRowContext(ctx, query, environmentID, key).Scan(
		&v.ID,
		&v.Key,
		&v.SealedValue,
		&v.EnvironmentID,
		&v.CreatedBy,
		&v.CreatedAt,
		&v.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get variable by key: %w", err)
	}

	return v, nil
}

// ListByEnvironment retrieves all variables of an environment ordered by key
func (r *VariableRepository) ListByEnvironment(ctx context.Context, environmentID string) ([]*models.Variable, error) {
	query := `
		SELECT id, key, sealed_value, environment_id, created_by, created_at, updated_at
		FROM variables
		WHERE environment_id = $1
		ORDER BY key
	`

	rows, err := r.db.QueryContext(ctx, query, environmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list variables: %w", err)
	}
	defer rows.Close()

	vars := make([]*models.Variable, 0)
	for rows.Next() {
		v := &models.Variable{}
		if err := rows.Scan(&v.ID, &v.Key, &v.SealedValue, &v.EnvironmentID, &v.CreatedBy, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan variable: %w", err)
		}
		vars = append(vars, v)
	}

	return vars, rows.Err()
}

// Create inserts a new variable
func (r *VariableRepository) Create(ctx context.Context, v *models.Variable) error {
	return r.create(ctx, r.db, v)
}

// CreateTx inserts a new variable within an existing transaction
func (r *VariableRepository) CreateTx(ctx context.Context, tx *sql.Tx, v *models.Variable) error {
	return r.create(ctx, tx, v)
}

type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *VariableRepository) create(ctx context.Context, q execer, v *models.Variable) error {
	query := `
		INSERT INTO variables (key, sealed_value, environment_id, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRowContext(ctx, query, v.Key, v.SealedValue, v.EnvironmentID, v.CreatedBy).Scan(
		&v.ID,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create variable: %w", err)
	}

	return nil
}

// GetForUpdateTx retrieves a variable by ID and locks the row until the
// transaction ends. Concurrent updates to the same variable serialize here.
func (r *VariableRepository) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id string) (*models.Variable, error) {
	query := `
		SELECT id, key, sealed_value, environment_id, created_by, created_at, updated_at
		FROM variables
		WHERE id = $1
		FOR UPDATE
	`

	v := &models.Variable{}
	err := tx.QueryRowContext(ctx, query, id).Scan(
		&v.ID,
		&v.Key,
		&v.SealedValue,
		&v.EnvironmentID,
		&v.CreatedBy,
		&v.CreatedAt,
		&v.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to lock variable: %w", err)
	}

	return v, nil
}

// SnapshotVersionTx appends the variable's current sealed value to the
// version history. The version number is max(existing)+1, computed under the
// row lock taken by GetForUpdateTx.
func (r *VariableRepository) SnapshotVersionTx(ctx context.Context, tx *sql.Tx, v *models.Variable, createdBy string) (int, error) {
	query := `
		INSERT INTO variable_versions (variable_id, sealed_value, version_number, created_by)
		SELECT $1, $2, COALESCE(MAX(version_number), 0) + 1, $3
		FROM variable_versions
		WHERE variable_id = $1
		RETURNING version_number
	`

	var version int
	err := tx.QueryRowContext(ctx, query, v.ID, v.SealedValue, createdBy).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to snapshot version: %w", err)
	}

	return version, nil
}

// UpdateSealedValueTx replaces the variable's current sealed value
func (r *VariableRepository) UpdateSealedValueTx(ctx context.Context, tx *sql.Tx, id, sealedValue string) error {
	query := `
		UPDATE variables
		SET sealed_value = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := tx.ExecContext(ctx, query, id, sealedValue)
	if err != nil {
		return fmt.Errorf("failed to update variable: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// Delete removes a variable and its version history
func (r *VariableRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM variables WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete variable: %w", err)
	}
	return nil
}

// DeleteTx removes a variable within an existing transaction
func (r *VariableRepository) DeleteTx(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM variables WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete variable: %w", err)
	}
	return nil
}

// ListVersions retrieves a variable's version history, newest first
func (r *VariableRepository) ListVersions(ctx context.Context, variableID string) ([]*models.VariableVersion, error) {
	query := `
		SELECT id, variable_id, sealed_value, version_number, created_by, created_at
		FROM variable_versions
		WHERE variable_id = $1
		ORDER BY version_number DESC
	`

	rows, err := r.db.QueryContext(ctx, query, variableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	versions := make([]*models.VariableVersion, 0)
	for rows.Next() {
		ver := &models.VariableVersion{}
		if err := rows.Scan(&ver.ID, &ver.VariableID, &ver.SealedValue, &ver.VersionNumber, &ver.CreatedBy, &ver.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, ver)
	}

	return versions, rows.Err()
}

// GetVersion retrieves one numbered snapshot of a variable, or nil
func (r *VariableRepository) GetVersion(ctx context.Context, variableID string, versionNumber int) (*models.VariableVersion, error) {
	query := `
		SELECT id, variable_id, sealed_value, version_number, created_by, created_at
		FROM variable_versions
		WHERE variable_id = $1 AND version_number = $2
	`

	ver := &models.VariableVersion{}
	err := r.db.QueryRowContext(ctx, query, variableID, versionNumber).Scan(
		&ver.ID,
		&ver.VariableID,
		&ver.SealedValue,
		&ver.VersionNumber,
		&ver.CreatedBy,
		&ver.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get version: %w", err)
	}

	return ver, nil
}
