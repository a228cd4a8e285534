package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hugopriorizen/Base/internal/core/domain"
	"github.com/hugopriorizen/Base/internal/core/port"
	"github.com/hugopriorizen/Base/internal/infra/logger"
	"github.com/hugopriorizen/Base/internal/repository"
)

const tracerName = "github.com/hugopriorizen/Base/internal/usecase"

const (
	deactivationReasonDeleted       = "deleted"
	deactivationReasonProfileUpdate = "profile_update"
	passwordChangeMethodChange      = "change"
	passwordChangeMethodReset       = "reset"
)

// OutcomeRecorder receives one observation per identity operation.
type OutcomeRecorder interface {
	Observe(operation, outcome string)
}

// NewAccount carries the registration fields of an account.
type NewAccount struct {
	UserName  string
	Email     string
	FirstName string
	LastName  string
	Address   *string
}

// ProfileUpdate carries the mutable profile fields of an account.
type ProfileUpdate struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Address   *string
	IsActive  bool
}

// IdentityService is the single source of truth for whether an account is valid and active.
type IdentityService struct {
	accounts    port.AccountRepository
	roles       port.RoleRepository
	credentials *CredentialService
	events      port.EventPublisher
	metrics     OutcomeRecorder
	cfg         IdentityConfig
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewIdentityService wires the identity service.
func NewIdentityService(accounts port.AccountRepository, roles port.RoleRepository, credentials *CredentialService, cfg IdentityConfig, log *zap.Logger) *IdentityService {
	if log == nil {
		log = zap.NewNop()
	}
	return &IdentityService{
		accounts:    accounts,
		roles:       roles,
		credentials: credentials,
		cfg:         cfg,
		logger:      log,
		tracer:      otel.Tracer(tracerName),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithEvents attaches the lifecycle event publisher.
func (s *IdentityService) WithEvents(events port.EventPublisher) *IdentityService {
	s.events = events
	return s
}

// WithMetrics attaches an outcome recorder.
func (s *IdentityService) WithMetrics(metrics OutcomeRecorder) *IdentityService {
	s.metrics = metrics
	return s
}

// WithClock overrides the time source (primarily for tests).
func (s *IdentityService) WithClock(now func() time.Time) *IdentityService {
	if now != nil {
		s.now = now
		s.credentials.WithClock(now)
	}
	return s
}

func (s *IdentityService) start(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "identity."+operation, trace.WithAttributes(attrs...))
}

// finish records the outcome of an operation on its span and in metrics. Untyped errors are
// logged with context and replaced by a generic unavailable failure.
func (s *IdentityService) finish(ctx context.Context, span trace.Span, operation string, err error) error {
	defer span.End()

	if err != nil {
		var typed *Error
		if !errors.As(err, &typed) {
			logger.WithContext(ctx, s.logger).Error("identity operation failed",
				zap.String("operation", operation),
				zap.Error(err),
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			err = newError(ErrUnavailable, MsgServiceUnavailable)
		} else {
			span.SetAttributes(attribute.String("identity.outcome", KindName(err)))
		}
	}

	if s.metrics != nil {
		s.metrics.Observe(operation, KindName(err))
	}
	return err
}

// Authenticate checks credentials and returns the account on success. Every failure, including a
// missing, deactivated or locked account, is reported with the same message.
func (s *IdentityService) Authenticate(ctx context.Context, userName, password string) (*domain.Account, error) {
	ctx, span := s.start(ctx, "Authenticate")
	account, err := s.authenticate(ctx, userName, password)
	return account, s.finish(ctx, span, "Authenticate", err)
}

func (s *IdentityService) authenticate(ctx context.Context, userName, password string) (*domain.Account, error) {
	denied := newError(ErrAuthenticationFailed, MsgInvalidCredentials)

	account, err := s.accounts.GetByUserName(ctx, userName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, denied
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !account.IsActive {
		return nil, denied
	}

	if err := s.credentials.CheckPassword(ctx, account, password); err != nil {
		switch {
		case errors.Is(err, errLockedOut), errors.Is(err, errBadPassword):
			logger.WithContext(ctx, s.logger).Info("authentication rejected",
				zap.String("account_id", account.ID),
				zap.String("reason", err.Error()),
			)
			return nil, denied
		case errors.Is(err, repository.ErrNotFound):
			return nil, denied
		default:
			return nil, err
		}
	}

	if s.cfg.RequireConfirmedEmail && !account.EmailConfirmed {
		return nil, newError(ErrAuthenticationFailed, MsgEmailNotConfirmed)
	}

	return account, nil
}

// ValidateUser reports whether the credentials belong to an active, unlocked account. On success
// the last login is stamped; on a wrong password the failure counter advances.
func (s *IdentityService) ValidateUser(ctx context.Context, userName, password string) (bool, error) {
	_, err := s.Authenticate(ctx, userName, password)
	if err != nil {
		if errors.Is(err, ErrAuthenticationFailed) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateUser registers an account with the default role. Uniqueness and password violations are
// reported together.
func (s *IdentityService) CreateUser(ctx context.Context, input NewAccount, password string) (*domain.Account, error) {
	ctx, span := s.start(ctx, "CreateUser", attribute.String("identity.user_name", input.UserName))
	account, err := s.createUser(ctx, input, password)
	return account, s.finish(ctx, span, "CreateUser", err)
}

func (s *IdentityService) createUser(ctx context.Context, input NewAccount, password string) (*domain.Account, error) {
	userName := strings.TrimSpace(input.UserName)
	email := strings.TrimSpace(input.Email)

	var (
		conflicts  []string
		violations []string
	)

	if _, err := s.accounts.GetByUserName(ctx, userName); err == nil {
		conflicts = append(conflicts, MsgUserNameInUse)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check user name: %w", err)
	}

	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		conflicts = append(conflicts, MsgEmailInUse)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	violations = s.credentials.ValidatePasswordPolicy(password, userName, email)

	if len(conflicts) > 0 {
		return nil, newError(ErrConflict, append(conflicts, violations...)...)
	}
	if len(violations) > 0 {
		return nil, newError(ErrValidationFailed, violations...)
	}

	hash, err := s.credentials.Hash(password)
	if err != nil {
		return nil, err
	}

	account := &domain.Account{
		ID:            uuid.NewString(),
		UserName:      userName,
		Email:         email,
		PasswordHash:  hash,
		FirstName:     strings.TrimSpace(input.FirstName),
		LastName:      strings.TrimSpace(input.LastName),
		Address:       trimmedPtr(input.Address),
		SecurityStamp: s.credentials.NewSecurityStamp(),
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if conflict := conflictError(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	roles := s.assignDefaultRole(ctx, account.ID)

	logger.WithContext(ctx, s.logger).Info("account registered",
		zap.String("account_id", account.ID),
		zap.String("email", logger.MaskEmail(account.Email)),
	)

	s.publishRegistered(ctx, account, roles)

	if s.cfg.SendConfirmationOnRegister {
		if err := s.requestEmailConfirmation(ctx, account.ID); err != nil {
			logger.WithContext(ctx, s.logger).Warn("email confirmation request failed",
				zap.String("account_id", account.ID),
				zap.Error(err),
			)
		}
	}

	return account, nil
}

func (s *IdentityService) assignDefaultRole(ctx context.Context, accountID string) []string {
	if s.roles == nil || s.cfg.DefaultRole == "" {
		return nil
	}

	role, err := s.roles.GetByName(ctx, s.cfg.DefaultRole)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("default role missing; account created without roles", zap.String("role", s.cfg.DefaultRole))
		} else {
			s.logger.Error("lookup default role failed", zap.String("role", s.cfg.DefaultRole), zap.Error(err))
		}
		return nil
	}

	if err := s.roles.Assign(ctx, accountID, []string{role.ID}); err != nil {
		s.logger.Error("assign default role failed", zap.String("account_id", accountID), zap.Error(err))
		return nil
	}
	return []string{role.Name}
}

// UpdateUser persists profile changes. Changing the email re-checks uniqueness, clears the
// confirmation flag and rotates the stamp. IsActive=false deactivates the account.
func (s *IdentityService) UpdateUser(ctx context.Context, update ProfileUpdate) (*domain.Account, error) {
	ctx, span := s.start(ctx, "UpdateUser", attribute.String("identity.account_id", update.ID))
	account, err := s.updateUser(ctx, update)
	return account, s.finish(ctx, span, "UpdateUser", err)
}

func (s *IdentityService) updateUser(ctx context.Context, update ProfileUpdate) (*domain.Account, error) {
	account, err := s.activeAccount(ctx, update.ID)
	if err != nil {
		return nil, err
	}

	email := strings.TrimSpace(update.Email)
	emailChanged := !strings.EqualFold(email, account.Email)
	if emailChanged {
		existing, err := s.accounts.GetByEmail(ctx, email)
		switch {
		case err == nil && existing.ID != account.ID:
			return nil, newError(ErrConflict, MsgEmailInUse)
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("check email: %w", err)
		}
		account.EmailConfirmed = false
	}

	// guards the stamp write; empty leaves stamp and confirmation untouched
	var expectedStamp string
	if emailChanged || !update.IsActive {
		expectedStamp = account.SecurityStamp
		account.SecurityStamp = s.credentials.NewSecurityStamp()
	}

	account.Email = email
	account.FirstName = strings.TrimSpace(update.FirstName)
	account.LastName = strings.TrimSpace(update.LastName)
	account.Address = trimmedPtr(update.Address)
	account.IsActive = update.IsActive

	if err := s.accounts.Update(ctx, account, expectedStamp); err != nil {
		if conflict := conflictError(err); conflict != nil {
			return nil, conflict
		}
		if errors.Is(err, repository.ErrStaleStamp) {
			return nil, newError(ErrConflict, MsgConcurrentUpdate)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, MsgUserNotFound)
		}
		return nil, fmt.Errorf("update account: %w", err)
	}

	if !account.IsActive {
		s.publishDeactivated(ctx, account.ID, deactivationReasonProfileUpdate)
	}
	return account, nil
}

// DeleteUser soft-deletes the account. Deleting an already deactivated account reports NotFound
// and leaves its deletion timestamp untouched.
func (s *IdentityService) DeleteUser(ctx context.Context, id string) error {
	ctx, span := s.start(ctx, "DeleteUser", attribute.String("identity.account_id", id))
	return s.finish(ctx, span, "DeleteUser", s.deleteUser(ctx, id))
}

func (s *IdentityService) deleteUser(ctx context.Context, id string) error {
	// sessions and pending tokens die with the old stamp, even if the account is reactivated later
	if err := s.accounts.RotateSecurityStamp(ctx, id, s.credentials.NewSecurityStamp()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(ErrNotFound, MsgUserNotFound)
		}
		return fmt.Errorf("rotate security stamp: %w", err)
	}
	if err := s.accounts.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(ErrNotFound, MsgUserNotFound)
		}
		return fmt.Errorf("delete account: %w", err)
	}

	logger.WithContext(ctx, s.logger).Info("account deactivated", zap.String("account_id", id))
	s.publishDeactivated(ctx, id, deactivationReasonDeleted)
	return nil
}

// ChangePassword replaces the password of an active account after checking the current one.
func (s *IdentityService) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	ctx, span := s.start(ctx, "ChangePassword", attribute.String("identity.account_id", id))
	return s.finish(ctx, span, "ChangePassword", s.changePassword(ctx, id, currentPassword, newPassword))
}

func (s *IdentityService) changePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	account, err := s.activeAccount(ctx, id)
	if err != nil {
		return err
	}

	if err := s.credentials.ChangePassword(ctx, account, currentPassword, newPassword); err != nil {
		return err
	}

	s.publishPasswordChanged(ctx, id, passwordChangeMethodChange)
	return nil
}

// ResetPassword consumes a reset token and sets the new password.
func (s *IdentityService) ResetPassword(ctx context.Context, id, token, newPassword string) error {
	ctx, span := s.start(ctx, "ResetPassword", attribute.String("identity.account_id", id))
	return s.finish(ctx, span, "ResetPassword", s.resetPassword(ctx, id, token, newPassword))
}

func (s *IdentityService) resetPassword(ctx context.Context, id, token, newPassword string) error {
	if err := s.credentials.VerifyAndConsumePasswordReset(ctx, id, token, newPassword); err != nil {
		return err
	}

	s.publishPasswordChanged(ctx, id, passwordChangeMethodReset)
	return nil
}

// GeneratePasswordResetToken issues a reset token. Earlier reset tokens stop verifying.
func (s *IdentityService) GeneratePasswordResetToken(ctx context.Context, id string) (domain.IssuedToken, error) {
	ctx, span := s.start(ctx, "GeneratePasswordResetToken", attribute.String("identity.account_id", id))
	token, err := s.credentials.IssuePasswordResetToken(ctx, id)
	return token, s.finish(ctx, span, "GeneratePasswordResetToken", err)
}

// GenerateEmailConfirmationToken issues an email confirmation token.
func (s *IdentityService) GenerateEmailConfirmationToken(ctx context.Context, id string) (domain.IssuedToken, error) {
	ctx, span := s.start(ctx, "GenerateEmailConfirmationToken", attribute.String("identity.account_id", id))
	token, err := s.credentials.IssueEmailConfirmationToken(ctx, id)
	return token, s.finish(ctx, span, "GenerateEmailConfirmationToken", err)
}

// ConfirmEmail consumes a confirmation token.
func (s *IdentityService) ConfirmEmail(ctx context.Context, id, token string) error {
	ctx, span := s.start(ctx, "ConfirmEmail", attribute.String("identity.account_id", id))
	return s.finish(ctx, span, "ConfirmEmail", s.credentials.ConfirmEmail(ctx, id, token))
}

// RequestPasswordReset issues a reset token for the active account registered with email and
// publishes it for delivery. Unknown or deactivated emails succeed silently.
func (s *IdentityService) RequestPasswordReset(ctx context.Context, email string) error {
	ctx, span := s.start(ctx, "RequestPasswordReset")
	return s.finish(ctx, span, "RequestPasswordReset", s.requestPasswordReset(ctx, email))
}

func (s *IdentityService) requestPasswordReset(ctx context.Context, email string) error {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load account: %w", err)
	}
	if !account.IsActive {
		return nil
	}

	token, err := s.credentials.IssuePasswordResetToken(ctx, account.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	s.publishResetRequested(ctx, account, token)
	return nil
}

// RequestEmailConfirmation issues a confirmation token and publishes it for delivery.
func (s *IdentityService) RequestEmailConfirmation(ctx context.Context, id string) error {
	ctx, span := s.start(ctx, "RequestEmailConfirmation", attribute.String("identity.account_id", id))
	return s.finish(ctx, span, "RequestEmailConfirmation", s.requestEmailConfirmation(ctx, id))
}

func (s *IdentityService) requestEmailConfirmation(ctx context.Context, id string) error {
	token, err := s.credentials.IssueEmailConfirmationToken(ctx, id)
	if err != nil {
		return err
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}

	s.publishConfirmationRequested(ctx, account, token)
	return nil
}

// GetUserRoles returns the role names of the account. Unknown accounts hold no roles.
func (s *IdentityService) GetUserRoles(ctx context.Context, id string) ([]string, error) {
	ctx, span := s.start(ctx, "GetUserRoles", attribute.String("identity.account_id", id))
	roles, err := s.roles.ListNamesByAccount(ctx, id)
	if err != nil {
		return nil, s.finish(ctx, span, "GetUserRoles", fmt.Errorf("list roles: %w", err))
	}
	return roles, s.finish(ctx, span, "GetUserRoles", nil)
}

// IsUserInRole reports whether the account holds the named role.
func (s *IdentityService) IsUserInRole(ctx context.Context, id, role string) (bool, error) {
	ctx, span := s.start(ctx, "IsUserInRole", attribute.String("identity.role", role))
	ok, err := s.roles.IsAssigned(ctx, id, role)
	if err != nil {
		return false, s.finish(ctx, span, "IsUserInRole", fmt.Errorf("check role: %w", err))
	}
	return ok, s.finish(ctx, span, "IsUserInRole", nil)
}

// GetUserByID returns the account in any lifecycle state.
func (s *IdentityService) GetUserByID(ctx context.Context, id string) (*domain.Account, error) {
	return s.lookup(ctx, "GetUserByID", func(ctx context.Context) (*domain.Account, error) {
		return s.accounts.GetByID(ctx, id)
	})
}

// GetUserByEmail returns the account registered with email.
func (s *IdentityService) GetUserByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return s.lookup(ctx, "GetUserByEmail", func(ctx context.Context) (*domain.Account, error) {
		return s.accounts.GetByEmail(ctx, email)
	})
}

// GetUserByUserName returns the account with the user name.
func (s *IdentityService) GetUserByUserName(ctx context.Context, userName string) (*domain.Account, error) {
	return s.lookup(ctx, "GetUserByUserName", func(ctx context.Context) (*domain.Account, error) {
		return s.accounts.GetByUserName(ctx, userName)
	})
}

func (s *IdentityService) lookup(ctx context.Context, operation string, get func(context.Context) (*domain.Account, error)) (*domain.Account, error) {
	ctx, span := s.start(ctx, operation)
	account, err := get(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			err = newError(ErrNotFound, MsgUserNotFound)
		} else {
			err = fmt.Errorf("load account: %w", err)
		}
		return nil, s.finish(ctx, span, operation, err)
	}
	return account, s.finish(ctx, span, operation, nil)
}

// ListUsers returns accounts matching the filter, newest first.
func (s *IdentityService) ListUsers(ctx context.Context, filter domain.AccountFilter) ([]domain.Account, error) {
	ctx, span := s.start(ctx, "ListUsers")
	accounts, err := s.accounts.List(ctx, filter)
	if err != nil {
		return nil, s.finish(ctx, span, "ListUsers", fmt.Errorf("list accounts: %w", err))
	}
	return accounts, s.finish(ctx, span, "ListUsers", nil)
}

// CountUsers counts accounts matching the filter.
func (s *IdentityService) CountUsers(ctx context.Context, filter domain.AccountFilter) (int, error) {
	ctx, span := s.start(ctx, "CountUsers")
	count, err := s.accounts.Count(ctx, filter)
	if err != nil {
		return 0, s.finish(ctx, span, "CountUsers", fmt.Errorf("count accounts: %w", err))
	}
	return count, s.finish(ctx, span, "CountUsers", nil)
}

func (s *IdentityService) activeAccount(ctx context.Context, id string) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
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

func conflictError(err error) *Error {
	var conflict *repository.ConflictError
	if !errors.As(err, &conflict) {
		return nil
	}
	switch conflict.Field {
	case repository.FieldEmail:
		return newError(ErrConflict, MsgEmailInUse)
	case repository.FieldUserName:
		return newError(ErrConflict, MsgUserNameInUse)
	default:
		return newError(ErrConflict, MsgConcurrentUpdate)
	}
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
