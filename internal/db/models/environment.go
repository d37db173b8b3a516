package models

import "time"

// Environment kinds
const (
	EnvironmentDevelopment = "development"
	EnvironmentStaging     = "staging"
	EnvironmentProduction  = "production"
	EnvironmentTesting     = "testing"
)

// ValidEnvironmentType reports whether t names a known environment kind.
func ValidEnvironmentType(t string) bool {
	switch t {
	case EnvironmentDevelopment, EnvironmentStaging, EnvironmentProduction, EnvironmentTesting:
		return true
	}
	return false
}

// Environment is a named container of variables within a project.
// Unique per (project, name).
type Environment struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	ProjectID       string    `json:"project_id"`
	EnvironmentType string    `json:"environment_type"`
	Description     string    `json:"description"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
