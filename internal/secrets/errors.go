package secrets

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when the addressed entity does not exist
	ErrNotFound = errors.New("secrets: not found")
	// ErrNoAccess is returned when the caller's role does not permit the
	// requested operation
	ErrNoAccess = errors.New("secrets: access denied")
	// ErrDuplicateKey is returned when a variable with the same key (compared
	// case-insensitively) already exists in the environment
	ErrDuplicateKey = errors.New("secrets: a variable with this key already exists")
	// ErrVersionConflict is returned when two writers raced for the same
	// version number. The losing request can be retried safely.
	ErrVersionConflict = errors.New("secrets: concurrent update conflict, retry")
)

// ValidationError reports one or more structural problems with caller input.
// Problems never contain secret plaintext.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("secrets: validation failed: %s", strings.Join(e.Problems, "; "))
}

// ImportConflictError is returned when an import without overwrite targets
// keys that already exist. Keys are sorted; no writes have happened.
type ImportConflictError struct {
	Keys []string
}

func (e *ImportConflictError) Error() string {
	return fmt.Sprintf("secrets: import conflicts with existing keys: %s", strings.Join(e.Keys, ", "))
}
