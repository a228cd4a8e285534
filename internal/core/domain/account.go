package domain

import (
	"strings"
	"time"
)

// AccountState enumerates the authentication lifecycle of an account.
type AccountState string

const (
	AccountStateUnconfirmed AccountState = "unconfirmed"
	AccountStateActive      AccountState = "active"
	AccountStateLocked      AccountState = "locked"
	AccountStateDeactivated AccountState = "deactivated"
)

// Account mirrors the persisted representation in the accounts table.
type Account struct {
	ID                string
	UserName          string
	Email             string
	PasswordHash      string
	FirstName         string
	LastName          string
	Address           *string
	CreatedAt         time.Time
	DeletedAt         *time.Time
	IsActive          bool
	LastLoginAt       *time.Time
	EmailConfirmed    bool
	SecurityStamp     string
	AccessFailedCount int
	LockoutEnd        *time.Time
}

// FullName joins first and last name.
func (a Account) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// IsLockedOut reports whether the lockout window is still open at the given instant.
func (a Account) IsLockedOut(at time.Time) bool {
	return a.LockoutEnd != nil && a.LockoutEnd.After(at)
}

// State derives the lifecycle state at the given instant.
func (a Account) State(at time.Time) AccountState {
	switch {
	case !a.IsActive:
		return AccountStateDeactivated
	case a.IsLockedOut(at):
		return AccountStateLocked
	case !a.EmailConfirmed:
		return AccountStateUnconfirmed
	default:
		return AccountStateActive
	}
}

func (a *Account) GetCreatedAt() time.Time   { return a.CreatedAt }
func (a *Account) SetCreatedAt(t time.Time)  { a.CreatedAt = t }
func (a *Account) GetDeletedAt() *time.Time  { return a.DeletedAt }
func (a *Account) SetDeletedAt(t *time.Time) { a.DeletedAt = t }
func (a *Account) GetIsActive() bool         { return a.IsActive }
func (a *Account) SetIsActive(active bool)   { a.IsActive = active }

var _ HasLifecycle = (*Account)(nil)

// LockoutPolicy controls how many consecutive failures lock an account and for how long.
type LockoutPolicy struct {
	MaxFailedAttempts int
	Duration          time.Duration
}

// LockoutState is the counter snapshot returned after recording a failed login.
type LockoutState struct {
	AccessFailedCount int
	LockoutEnd        *time.Time
}

// AccountFilter narrows account listings. The zero value lists active accounts.
type AccountFilter struct {
	Inactive     bool
	Role         string
	CreatedAfter *time.Time
	Limit        int
	Offset       int
}

// InactiveAccounts selects deactivated accounts.
func InactiveAccounts() AccountFilter { return AccountFilter{Inactive: true} }

// AccountsCreatedAfter selects active accounts created strictly after ts.
func AccountsCreatedAfter(ts time.Time) AccountFilter { return AccountFilter{CreatedAfter: &ts} }

// AccountsInRole selects active accounts holding role, matched case-insensitively.
func AccountsInRole(role string) AccountFilter { return AccountFilter{Role: role} }
