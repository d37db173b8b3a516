// Package models - variable.go defines the Variable and VariableVersion
// models. A variable holds only the current sealed value; every value change
// first snapshots the previous sealed value into an immutable, append-only
// version row so history can never be rewritten.
package models

import (
	"regexp"
	"time"
)

// VariableKeyPattern is the storage-level key convention: uppercase start,
// then uppercase letters, digits, and underscores.
var VariableKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Variable represents an encrypted configuration value within an environment.
// Unique per (environment, key). SealedValue is the base64 AES-GCM ciphertext;
// an empty SealedValue means the variable has no value.
type Variable struct {
	ID            string    `json:"id"`
	Key           string    `json:"key"`
	SealedValue   string    `json:"-"` // ciphertext never leaves the API layer
	EnvironmentID string    `json:"environment_id"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// VariableVersion is an immutable snapshot of a variable's previous sealed
// value, taken before each overwrite. Unique per (variable, version_number);
// version numbers increase monotonically from 1 with no reuse.
type VariableVersion struct {
	ID            string    `json:"id"`
	VariableID    string    `json:"variable_id"`
	SealedValue   string    `json:"-"`
	VersionNumber int       `json:"version_number"`
	CreatedBy     string    `json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
}
