package domain

import "time"

// AccountRegisteredEvent represents the payload for iam.account.registered messages.
type AccountRegisteredEvent struct {
	EventID      string
	AccountID    string
	UserName     string
	Email        string
	Roles        []string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// AccountDeactivatedEvent represents the payload for iam.account.deactivated messages.
type AccountDeactivatedEvent struct {
	EventID       string
	AccountID     string
	DeactivatedAt time.Time
	Reason        string
	Metadata      map[string]any
}

// PasswordChangedEvent represents the payload for iam.account.password.changed messages.
type PasswordChangedEvent struct {
	EventID   string
	AccountID string
	ChangedAt time.Time
	// Method is either "change" (current password supplied) or "reset" (token supplied).
	Method   string
	Metadata map[string]any
}

// PasswordResetRequestedEvent represents the payload for iam.account.password.reset_requested messages.
// The token is consumed by the delivery service and never logged.
type PasswordResetRequestedEvent struct {
	EventID           string
	AccountID         string
	Email             string
	MaskedDestination string
	Token             string
	RequestedAt       time.Time
	ExpiresAt         time.Time
	Metadata          map[string]any
}

// EmailConfirmationRequestedEvent represents the payload for iam.account.email.confirmation_requested messages.
type EmailConfirmationRequestedEvent struct {
	EventID     string
	AccountID   string
	Email       string
	Token       string
	RequestedAt time.Time
	ExpiresAt   time.Time
	Metadata    map[string]any
}
