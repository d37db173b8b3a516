// Package models - user.go defines the User model. KeyNest does not own
// authentication; users are mirrored here so memberships, audit rows, and
// created_by references have a stable foreign key to point at.
package models

import "time"

// User represents an authenticated caller known to KeyNest
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
