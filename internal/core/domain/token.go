package domain

import "time"

// TokenPurpose scopes an action token to a single credential operation.
type TokenPurpose string

const (
	TokenPurposePasswordReset     TokenPurpose = "password_reset"
	TokenPurposeEmailConfirmation TokenPurpose = "email_confirmation"
)

// IssuedToken is a freshly signed action token handed to the delivery channel.
type IssuedToken struct {
	Value     string
	Purpose   TokenPurpose
	AccountID string
	ExpiresAt time.Time
}
