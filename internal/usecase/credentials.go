package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hugopriorizen/Base/internal/core/domain"
	"github.com/hugopriorizen/Base/internal/core/port"
	"github.com/hugopriorizen/Base/internal/repository"
)

var (
	// errLockedOut is reported by CheckPassword when the lockout window is open.
	errLockedOut = errors.New("account locked out")
	// errBadPassword is reported by CheckPassword when the password does not verify.
	errBadPassword = errors.New("password mismatch")
)

// CredentialService hashes passwords, tracks lockout and issues stamp-bound action tokens.
type CredentialService struct {
	accounts port.AccountRepository
	hasher   port.PasswordHasher
	policy   port.PasswordPolicy
	tokens   port.ActionTokenCodec
	lockout  domain.LockoutPolicy
	logger   *zap.Logger
	now      func() time.Time
	newStamp func() string
}

// NewCredentialService constructs the credential engine.
func NewCredentialService(accounts port.AccountRepository, hasher port.PasswordHasher, policy port.PasswordPolicy, tokens port.ActionTokenCodec, lockout domain.LockoutPolicy, logger *zap.Logger) *CredentialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lockout.MaxFailedAttempts <= 0 {
		lockout = DefaultIdentityConfig().Lockout
	}
	return &CredentialService{
		accounts: accounts,
		hasher:   hasher,
		policy:   policy,
		tokens:   tokens,
		lockout:  lockout,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newStamp: uuid.NewString,
	}
}

// WithClock overrides the time source (primarily for tests).
func (s *CredentialService) WithClock(now func() time.Time) *CredentialService {
	if now != nil {
		s.now = now
	}
	return s
}

// NewSecurityStamp returns a fresh random stamp.
func (s *CredentialService) NewSecurityStamp() string {
	return s.newStamp()
}

// Hash derives the stored password hash.
func (s *CredentialService) Hash(password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// Verify reports whether password matches hash. Malformed hashes never verify.
func (s *CredentialService) Verify(password, hash string) bool {
	ok, err := s.hasher.Verify(password, hash)
	if err != nil {
		s.logger.Warn("password hash verification failed", zap.Error(err))
		return false
	}
	return ok
}

// ValidatePasswordPolicy returns every violated password rule. userInputs such as the user name
// and email feed the optional strength check.
func (s *CredentialService) ValidatePasswordPolicy(password string, userInputs ...string) []string {
	if s.policy == nil {
		return nil
	}
	return s.policy.Violations(password, userInputs...)
}

// CheckPassword verifies the password of an active account and records the attempt. A locked
// account is rejected without verifying the password and without counting the attempt.
func (s *CredentialService) CheckPassword(ctx context.Context, account *domain.Account, password string) error {
	now := s.now()
	if account.IsLockedOut(now) {
		return errLockedOut
	}

	if !s.Verify(password, account.PasswordHash) {
		if err := s.recordFailure(ctx, account.ID, now); err != nil {
			return err
		}
		return errBadPassword
	}

	if err := s.accounts.RecordLoginSuccess(ctx, account.ID, now); err != nil {
		return fmt.Errorf("record login success: %w", err)
	}
	loginAt := now
	account.LastLoginAt = &loginAt
	account.AccessFailedCount = 0
	account.LockoutEnd = nil
	return nil
}

func (s *CredentialService) recordFailure(ctx context.Context, accountID string, now time.Time) error {
	state, err := s.accounts.RecordLoginFailure(ctx, accountID, s.lockout, now)
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	if state.LockoutEnd != nil && state.LockoutEnd.After(now) {
		s.logger.Warn("account locked out after repeated failures",
			zap.String("account_id", accountID),
			zap.Time("lockout_end", *state.LockoutEnd),
		)
	}
	return nil
}

// IssuePasswordResetToken rotates the stamp, invalidating every earlier token, and signs a reset
// token bound to the new stamp.
func (s *CredentialService) IssuePasswordResetToken(ctx context.Context, accountID string) (domain.IssuedToken, error) {
	if _, err := s.activeAccount(ctx, accountID); err != nil {
		return domain.IssuedToken{}, err
	}

	stamp := s.newStamp()
	if err := s.accounts.RotateSecurityStamp(ctx, accountID, stamp); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.IssuedToken{}, newError(ErrNotFound, MsgUserNotFound)
		}
		return domain.IssuedToken{}, fmt.Errorf("rotate security stamp: %w", err)
	}

	token, err := s.tokens.Issue(domain.TokenPurposePasswordReset, accountID, stamp, s.now())
	if err != nil {
		return domain.IssuedToken{}, fmt.Errorf("issue password reset token: %w", err)
	}
	return token, nil
}

// VerifyAndConsumePasswordReset checks the token and swaps in the new password hash with a fresh
// stamp. The swap only succeeds against the stamp the token was verified with, so a token can be
// consumed once even under concurrent requests.
func (s *CredentialService) VerifyAndConsumePasswordReset(ctx context.Context, accountID, token, newPassword string) error {
	account, err := s.activeAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if err := s.tokens.Verify(domain.TokenPurposePasswordReset, account.ID, account.SecurityStamp, token, s.now()); err != nil {
		return newError(ErrTokenInvalid, MsgInvalidToken)
	}

	if violations := s.ValidatePasswordPolicy(newPassword, account.UserName, account.Email); len(violations) > 0 {
		return newError(ErrValidationFailed, violations...)
	}

	hash, err := s.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.accounts.UpdateCredentials(ctx, account.ID, account.SecurityStamp, hash, s.newStamp()); err != nil {
		if errors.Is(err, repository.ErrStaleStamp) {
			return newError(ErrTokenInvalid, MsgInvalidToken)
		}
		return fmt.Errorf("update credentials: %w", err)
	}
	return nil
}

// IssueEmailConfirmationToken signs a confirmation token bound to the current stamp. The stamp is
// not rotated, so outstanding reset tokens stay valid.
func (s *CredentialService) IssueEmailConfirmationToken(ctx context.Context, accountID string) (domain.IssuedToken, error) {
	account, err := s.activeAccount(ctx, accountID)
	if err != nil {
		return domain.IssuedToken{}, err
	}

	token, err := s.tokens.Issue(domain.TokenPurposeEmailConfirmation, account.ID, account.SecurityStamp, s.now())
	if err != nil {
		return domain.IssuedToken{}, fmt.Errorf("issue email confirmation token: %w", err)
	}
	return token, nil
}

// VerifyEmailConfirmation reports whether the token confirms the account's current email.
func (s *CredentialService) VerifyEmailConfirmation(ctx context.Context, accountID, token string) (bool, error) {
	account, err := s.activeAccount(ctx, accountID)
	if err != nil {
		return false, err
	}

	if err := s.tokens.Verify(domain.TokenPurposeEmailConfirmation, account.ID, account.SecurityStamp, token, s.now()); err != nil {
		return false, nil
	}
	return true, nil
}

// ConfirmEmail verifies the token and marks the email confirmed in one stamp-guarded write.
func (s *CredentialService) ConfirmEmail(ctx context.Context, accountID, token string) error {
	account, err := s.activeAccount(ctx, accountID)
	if err != nil {
		return err
	}

	if err := s.tokens.Verify(domain.TokenPurposeEmailConfirmation, account.ID, account.SecurityStamp, token, s.now()); err != nil {
		return newError(ErrTokenInvalid, MsgInvalidToken)
	}

	if err := s.accounts.MarkEmailConfirmed(ctx, account.ID, account.SecurityStamp); err != nil {
		if errors.Is(err, repository.ErrStaleStamp) {
			return newError(ErrTokenInvalid, MsgInvalidToken)
		}
		return fmt.Errorf("confirm email: %w", err)
	}
	return nil
}

// ChangePassword replaces the password after checking the current one. A wrong current password
// counts toward lockout like a failed login, and a locked account cannot change its password.
func (s *CredentialService) ChangePassword(ctx context.Context, account *domain.Account, currentPassword, newPassword string) error {
	now := s.now()
	if account.IsLockedOut(now) {
		return newError(ErrValidationFailed, MsgAccountLockedOut)
	}
	if !s.Verify(currentPassword, account.PasswordHash) {
		if err := s.recordFailure(ctx, account.ID, now); err != nil {
			return err
		}
		return newError(ErrValidationFailed, MsgIncorrectPassword)
	}
	if currentPassword == newPassword {
		return newError(ErrValidationFailed, MsgPasswordUnchanged)
	}
	if violations := s.ValidatePasswordPolicy(newPassword, account.UserName, account.Email); len(violations) > 0 {
		return newError(ErrValidationFailed, violations...)
	}

	hash, err := s.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.accounts.UpdateCredentials(ctx, account.ID, account.SecurityStamp, hash, s.newStamp()); err != nil {
		if errors.Is(err, repository.ErrStaleStamp) {
			return newError(ErrConflict, MsgConcurrentUpdate)
		}
		return fmt.Errorf("update credentials: %w", err)
	}
	return nil
}

func (s *CredentialService) activeAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, MsgUserNotFound)
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !account.IsActive {
		return nil, newError(ErrNotFound, MsgUserNotFound)
	}
	return account, nil
}
