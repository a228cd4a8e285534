// Package command validates identity commands and queries, runs them against the identity service
// and reduces the result to a caller-facing outcome.
package command

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hugopriorizen/Base/internal/core/domain"
	"github.com/hugopriorizen/Base/internal/infra/logger"
	"github.com/hugopriorizen/Base/internal/infra/security"
	"github.com/hugopriorizen/Base/internal/usecase"
)

// Outward messages.
const (
	MsgRegistered       = "User registered successfully"
	MsgLoggedIn         = "Login successful"
	MsgProfileUpdated   = "Profile updated successfully."
	MsgPasswordChanged  = "Password changed successfully."
	MsgPasswordReset    = "Password has been reset successfully."
	MsgEmailConfirmed   = "Email confirmed successfully."
	MsgConfirmationSent = "A confirmation link has been sent."
	MsgUserDeleted      = "User deleted successfully."
	MsgRegisterFailed   = "Failed to create user"
	MsgOperationFailed  = "The request could not be completed."
	kindSuccess         = "success"
	kindValidationError = "validation_failed"
)

// Outcome is the caller-facing result of a command.
type Outcome struct {
	Succeeded bool
	Message   string
	// Kind is the usecase failure label ("success" when Succeeded).
	Kind string
}

func succeeded(message string) Outcome {
	return Outcome{Succeeded: true, Message: message, Kind: kindSuccess}
}

func invalid(messages []string) Outcome {
	return Outcome{Message: strings.Join(messages, ", "), Kind: kindValidationError}
}

// UserDTO is the public projection of an account.
type UserDTO struct {
	ID          string     `json:"id"`
	UserName    string     `json:"userName"`
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Address     *string    `json:"address,omitempty"`
	FullName    string     `json:"fullName"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	IsActive    bool       `json:"isActive"`
	Roles       []string   `json:"roles"`
}

func newUserDTO(account *domain.Account, roles []string) UserDTO {
	if roles == nil {
		roles = []string{}
	}
	return UserDTO{
		ID:          account.ID,
		UserName:    account.UserName,
		Email:       account.Email,
		FirstName:   account.FirstName,
		LastName:    account.LastName,
		Address:     account.Address,
		FullName:    account.FullName(),
		CreatedAt:   account.CreatedAt,
		LastLoginAt: account.LastLoginAt,
		IsActive:    account.IsActive,
		Roles:       roles,
	}
}

// RegisterResult carries the new account id on success.
type RegisterResult struct {
	Outcome
	UserID string
}

// LoginResult carries the signed-in user on success. RememberMe and SecurityStamp feed session
// issuance; the stamp never leaves the process.
type LoginResult struct {
	Outcome
	User          *UserDTO
	RememberMe    bool
	SecurityStamp string
}

// UserPage is one page of the account listing.
type UserPage struct {
	Users []UserDTO `json:"users"`
	Total int       `json:"total"`
}

// Handlers runs identity commands. Every operation goes through the identity service.
type Handlers struct {
	identity *usecase.IdentityService
	validate *Validator
	logger   *zap.Logger
}

// NewHandlers wires the command handlers.
func NewHandlers(identity *usecase.IdentityService, validate *Validator, log *zap.Logger) *Handlers {
	if validate == nil {
		validate = NewValidator()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{identity: identity, validate: validate, logger: log}
}

// failed logs err at a level chosen by its kind and converts it to an outcome.
func (h *Handlers) failed(ctx context.Context, operation string, err error, fallback string, fields ...zap.Field) Outcome {
	kind := usecase.KindName(err)
	log := logger.WithContext(ctx, h.logger)
	fields = append(fields, zap.String("operation", operation), zap.String("kind", kind), zap.Error(err))

	switch {
	case errors.Is(err, usecase.ErrUnavailable):
		log.Error("identity command failed", fields...)
	default:
		log.Warn("identity command rejected", fields...)
	}

	return Outcome{Message: usecase.Message(err, fallback), Kind: kind}
}

// RegisterUser validates the payload and creates the account.
func (h *Handlers) RegisterUser(ctx context.Context, cmd RegisterUser) RegisterResult {
	if violations := h.validate.Validate(cmd); len(violations) > 0 {
		return RegisterResult{Outcome: invalid(violations)}
	}

	account, err := h.identity.CreateUser(ctx, usecase.NewAccount{
		UserName:  cmd.UserName,
		Email:     cmd.Email,
		FirstName: cmd.FirstName,
		LastName:  cmd.LastName,
		Address:   cmd.Address,
	}, cmd.Password)
	if err != nil {
		return RegisterResult{Outcome: h.failed(ctx, "RegisterUser", err, MsgRegisterFailed,
			zap.String("user_name", cmd.UserName))}
	}

	logger.WithContext(ctx, h.logger).Info("user registered",
		zap.String("account_id", account.ID),
		zap.String("user_name", account.UserName),
	)
	return RegisterResult{Outcome: succeeded(MsgRegistered), UserID: account.ID}
}

// LoginUser checks credentials. Every credential failure yields the same message.
func (h *Handlers) LoginUser(ctx context.Context, cmd LoginUser) LoginResult {
	if violations := h.validate.Validate(cmd); len(violations) > 0 {
		return LoginResult{Outcome: invalid(violations)}
	}

	account, err := h.identity.Authenticate(ctx, cmd.UserName, cmd.Password)
	if err != nil {
		return LoginResult{Outcome: h.failed(ctx, "LoginUser", err, usecase.MsgInvalidCredentials,
			zap.String("user_name", cmd.UserName))}
	}

	roles, err := h.identity.GetUserRoles(ctx, account.ID)
	if err != nil {
		return LoginResult{Outcome: h.failed(ctx, "LoginUser", err, MsgOperationFailed)}
	}

	logger.WithContext(ctx, h.logger).Info("user logged in",
		zap.String("account_id", account.ID),
		zap.Bool("remember_me", cmd.RememberMe),
	)
	user := newUserDTO(account, roles)
	return LoginResult{
		Outcome:       succeeded(MsgLoggedIn),
		User:          &user,
		RememberMe:    cmd.RememberMe,
		SecurityStamp: account.SecurityStamp,
	}
}

// VerifySession checks a parsed session against the stored account and returns the roles it holds
// now. A missing or deactivated account, or a rotated stamp, yields security.ErrRevokedSessionToken.
func (h *Handlers) VerifySession(ctx context.Context, claims *security.SessionClaims) ([]string, error) {
	account, err := h.identity.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, usecase.ErrNotFound) {
			return nil, security.ErrRevokedSessionToken
		}
		return nil, err
	}
	if !account.IsActive || !claims.MatchesStamp(account.SecurityStamp) {
		logger.WithContext(ctx, h.logger).Info("session revoked",
			zap.String("account_id", account.ID),
			zap.Bool("active", account.IsActive),
		)
		return nil, security.ErrRevokedSessionToken
	}

	return h.identity.GetUserRoles(ctx, account.ID)
}

// UpdateProfile persists profile changes.
func (h *Handlers) UpdateProfile(ctx context.Context, cmd UpdateProfile) Outcome {
	if violations := h.validate.Validate(cmd); len(violations) > 0 {
		return invalid(violations)
	}

	active := true
	if cmd.IsActive != nil {
		active = *cmd.IsActive
	}

	if _, err := h.identity.UpdateUser(ctx, usecase.ProfileUpdate{
		ID:        cmd.ID,
		FirstName: cmd.FirstName,
		LastName:  cmd.LastName,
		Email:     cmd.Email,
		Address:   cmd.Address,
		IsActive:  active,
	}); err != nil {
		return h.failed(ctx, "UpdateProfile", err, MsgOperationFailed, zap.String("account_id", cmd.ID))
	}

	logger.WithContext(ctx, h.logger).Info("profile updated", zap.String("account_id", cmd.ID))
	return succeeded(MsgProfileUpdated)
}

// ChangePassword replaces the password after checking the current one.
func (h *Handlers) ChangePassword(ctx context.Context, cmd ChangePassword) Outcome {
	if violations := h.validate.Validate(cmd); len(violations) > 0 {
		return invalid(violations)
	}

	if err := h.identity.ChangePassword(ctx, cmd.UserID, cmd.CurrentPassword, cmd.NewPassword); err != nil {
		return h.failed(ctx, "ChangePassword", err, MsgOperationFailed, zap.String("account_id", cmd.UserID))
	}

	logger.WithContext(ctx, h.logger).Info("password changed", zap.String("account_id", cmd.UserID))
	return succeeded(MsgPasswordChanged)
}

// ResetPassword consumes a reset token.
func (h *Handlers) ResetPassword(ctx context.Context, cmd ResetPassword) Outcome {
	if violations := h.validate.Validate(cmd); len(violations) > 0 {
		return invalid(violations)
	}

	if err := h.identity.ResetPassword(ctx, cmd.UserID, cmd.Token, cmd.NewPassword); err != nil {
		return h.failed(ctx, "ResetPassword", err, usecase.MsgInvalidToken, zap.String("account_id", cmd.UserID))
	}

	logger.WithContext(ctx, h.logger).Info("password reset", zap.String("account_id", cmd.UserID))
	return succeeded(MsgPasswordReset)
}

// ForgotPassword answers identically whether or not the email is registered.
func (h *Handlers) ForgotPassword(ctx context.Context, cmd ForgotPassword) Outcome {
	if violations := h.validate.Validate(cmd); len(violations) > 0 {
		return invalid(violations)
	}

	if err := h.identity.RequestPasswordReset(ctx, cmd.Email); err != nil {
		return h.failed(ctx, "ForgotPassword", err, usecase.MsgServiceUnavailable,
			zap.String("email", logger.MaskEmail(cmd.Email)))
	}
	return succeeded(usecase.MsgForgotPassword)
}

// ConfirmEmail consumes an email confirmation token.
func (h *Handlers) ConfirmEmail(ctx context.Context, cmd ConfirmEmail) Outcome {
	if violations := h.validate.Validate(cmd); len(violations) > 0 {
		return invalid(violations)
	}

	if err := h.identity.ConfirmEmail(ctx, cmd.UserID, cmd.Token); err != nil {
		return h.failed(ctx, "ConfirmEmail", err, usecase.MsgInvalidToken, zap.String("account_id", cmd.UserID))
	}

	logger.WithContext(ctx, h.logger).Info("email confirmed", zap.String("account_id", cmd.UserID))
	return succeeded(MsgEmailConfirmed)
}

// ResendConfirmation issues a fresh email confirmation token for the account.
func (h *Handlers) ResendConfirmation(ctx context.Context, id string) Outcome {
	if strings.TrimSpace(id) == "" {
		return invalid([]string{"User ID is required"})
	}

	if err := h.identity.RequestEmailConfirmation(ctx, id); err != nil {
		return h.failed(ctx, "ResendConfirmation", err, MsgOperationFailed, zap.String("account_id", id))
	}
	return succeeded(MsgConfirmationSent)
}

// DeleteUser soft-deletes an account.
func (h *Handlers) DeleteUser(ctx context.Context, id string) Outcome {
	if strings.TrimSpace(id) == "" {
		return invalid([]string{"User ID is required"})
	}

	if err := h.identity.DeleteUser(ctx, id); err != nil {
		return h.failed(ctx, "DeleteUser", err, MsgOperationFailed, zap.String("account_id", id))
	}

	logger.WithContext(ctx, h.logger).Info("user deleted", zap.String("account_id", id))
	return succeeded(MsgUserDeleted)
}

// GetUserByID projects the account with its roles.
func (h *Handlers) GetUserByID(ctx context.Context, id string) (*UserDTO, Outcome) {
	if strings.TrimSpace(id) == "" {
		return nil, invalid([]string{"User ID is required"})
	}

	account, err := h.identity.GetUserByID(ctx, id)
	if err != nil {
		return nil, h.failed(ctx, "GetUserByID", err, usecase.MsgUserNotFound, zap.String("account_id", id))
	}

	roles, err := h.identity.GetUserRoles(ctx, id)
	if err != nil {
		return nil, h.failed(ctx, "GetUserByID", err, MsgOperationFailed, zap.String("account_id", id))
	}

	user := newUserDTO(account, roles)
	return &user, succeeded("")
}

// GetActiveUser projects an active account; deactivated accounts read as not found.
func (h *Handlers) GetActiveUser(ctx context.Context, id string) (*UserDTO, Outcome) {
	user, outcome := h.GetUserByID(ctx, id)
	if outcome.Succeeded && !user.IsActive {
		return nil, Outcome{Message: usecase.MsgUserNotFound, Kind: usecase.KindName(usecase.ErrNotFound)}
	}
	return user, outcome
}

// ListUsers returns one page of accounts and the total matching the filter.
func (h *Handlers) ListUsers(ctx context.Context, query ListUsers) (UserPage, Outcome) {
	if violations := h.validate.Validate(query); len(violations) > 0 {
		return UserPage{}, invalid(violations)
	}

	filter := domain.AccountFilter{
		Inactive:     query.Inactive,
		Role:         query.Role,
		CreatedAfter: query.CreatedAfter,
		Limit:        query.Limit,
		Offset:       query.Offset,
	}
	if filter.Limit == 0 {
		filter.Limit = 50
	}

	accounts, err := h.identity.ListUsers(ctx, filter)
	if err != nil {
		return UserPage{}, h.failed(ctx, "ListUsers", err, MsgOperationFailed)
	}
	total, err := h.identity.CountUsers(ctx, filter)
	if err != nil {
		return UserPage{}, h.failed(ctx, "ListUsers", err, MsgOperationFailed)
	}

	page := UserPage{Users: make([]UserDTO, 0, len(accounts)), Total: total}
	for i := range accounts {
		roles, err := h.identity.GetUserRoles(ctx, accounts[i].ID)
		if err != nil {
			return UserPage{}, h.failed(ctx, "ListUsers", err, MsgOperationFailed)
		}
		page.Users = append(page.Users, newUserDTO(&accounts[i], roles))
	}
	return page, succeeded("")
}
