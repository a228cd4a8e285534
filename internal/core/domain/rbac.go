package domain

import "time"

// Built-in role names seeded at startup.
const (
	RoleAdmin   = "Admin"
	RoleUser    = "User"
	RoleManager = "Manager"
)

// Role is a named permission group referenced by name.
type Role struct {
	ID          string
	Name        string
	Description *string
}

// AccountRole assigns a role to an account.
type AccountRole struct {
	AccountID  string
	RoleID     string
	AssignedAt time.Time
}
