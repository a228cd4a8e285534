package usecase

import (
	"errors"
	"strings"
)

// Failure kinds. Every error returned by IdentityService wraps exactly one of these.
var (
	// ErrValidationFailed indicates malformed input or a broken password rule.
	ErrValidationFailed = errors.New("validation failed")
	// ErrNotFound indicates the account or role does not exist or is no longer active.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness violation or a lost concurrent update.
	ErrConflict = errors.New("conflict")
	// ErrAuthenticationFailed indicates bad credentials or a locked account.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrTokenInvalid indicates an expired, tampered or stamp-mismatched action token.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrUnavailable indicates a store or infrastructure failure.
	ErrUnavailable = errors.New("service unavailable")
)

// Messages returned to callers.
const (
	MsgInvalidCredentials = "Invalid username or password"
	MsgForgotPassword     = "If your email is registered, a password reset link has been sent."
	MsgEmailInUse         = "Email is already in use."
	MsgUserNameInUse      = "Username is already taken."
	MsgUserNotFound       = "User not found"
	MsgInvalidToken       = "Invalid or expired token."
	MsgIncorrectPassword  = "Incorrect password."
	MsgAccountLockedOut   = "The account is temporarily locked. Please try again later."
	MsgPasswordUnchanged  = "New password must be different from the current password."
	MsgConcurrentUpdate   = "The account was modified by another request. Please retry."
	MsgServiceUnavailable = "The service is temporarily unavailable. Please try again later."
	MsgEmailNotConfirmed  = "Email address has not been confirmed."
)

// Error is the typed failure of an identity operation.
type Error struct {
	Kind     error
	Messages []string
}

func newError(kind error, messages ...string) *Error {
	return &Error{Kind: kind, Messages: messages}
}

func (e *Error) Error() string {
	if len(e.Messages) == 0 {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + strings.Join(e.Messages, "; ")
}

// Unwrap lets errors.Is match the kind.
func (e *Error) Unwrap() error {
	return e.Kind
}

// Message joins the caller-facing messages of err, or returns fallback when err carries none.
func Message(err error, fallback string) string {
	var typed *Error
	if errors.As(err, &typed) && len(typed.Messages) > 0 {
		return strings.Join(typed.Messages, ", ")
	}
	return fallback
}

// KindName returns a stable label for the failure kind, used in logs and metrics.
func KindName(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrAuthenticationFailed):
		return "authentication_failed"
	case errors.Is(err, ErrTokenInvalid):
		return "token_invalid"
	default:
		return "unavailable"
	}
}
