// Package models - organization.go defines the Organization model representing
// a tenant boundary. Every project, environment, and variable transitively
// belongs to exactly one organization.
package models

import "time"

// Organization represents a tenant namespace in KeyNest
type Organization struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
