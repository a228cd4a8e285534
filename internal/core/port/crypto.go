package port

import (
	"time"

	"github.com/hugopriorizen/Base/internal/core/domain"
)

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// PasswordPolicy reports every rule a candidate password violates.
type PasswordPolicy interface {
	Violations(password string, userInputs ...string) []string
}

// ActionTokenCodec signs and verifies stateless single-purpose tokens bound to a security stamp.
type ActionTokenCodec interface {
	Issue(purpose domain.TokenPurpose, accountID, securityStamp string, issuedAt time.Time) (domain.IssuedToken, error)
	Verify(purpose domain.TokenPurpose, accountID, securityStamp, token string, at time.Time) error
}
