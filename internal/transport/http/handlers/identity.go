package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hugopriorizen/Base/internal/command"
	"github.com/hugopriorizen/Base/internal/infra/logger"
	"github.com/hugopriorizen/Base/internal/transport/http/middleware"
)

const (
	msgInvalidPayload = "invalid request payload"
	msgLoggedOut      = "Logged out successfully."
	msgSessionFailed  = "failed to issue session"
)

// SessionIssuer signs the bearer token returned by login.
type SessionIssuer interface {
	Issue(accountID, userName, securityStamp string, roles []string, ttl time.Duration) (string, time.Time, error)
}

// SessionTTL selects the session lifetime for a login.
type SessionTTL struct {
	Default    time.Duration
	RememberMe time.Duration
}

func (t SessionTTL) pick(rememberMe bool) time.Duration {
	if rememberMe && t.RememberMe > 0 {
		return t.RememberMe
	}
	if t.Default > 0 {
		return t.Default
	}
	return 24 * time.Hour
}

// IdentityHandler exposes the identity commands over HTTP.
type IdentityHandler struct {
	commands *command.Handlers
	sessions SessionIssuer
	ttl      SessionTTL
	logger   *zap.Logger
}

// NewIdentityHandler wires the HTTP identity endpoints.
func NewIdentityHandler(commands *command.Handlers, sessions SessionIssuer, ttl SessionTTL, log *zap.Logger) *IdentityHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &IdentityHandler{commands: commands, sessions: sessions, ttl: ttl, logger: log}
}

func (h *IdentityHandler) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		resp := NewErrorResponse(c, msgInvalidPayload)
		resp.Kind = "validation_failed"
		c.JSON(http.StatusBadRequest, resp)
		return false
	}
	return true
}

// Register creates an account and answers 201 with its id.
func (h *IdentityHandler) Register(c *gin.Context) {
	var cmd command.RegisterUser
	if !h.bindJSON(c, &cmd) {
		return
	}

	result := h.commands.RegisterUser(c.Request.Context(), cmd)
	if !result.Succeeded {
		RespondWithOutcome(c, result.Outcome, http.StatusCreated)
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{Message: result.Message, UserID: result.UserID})
}

// Login verifies credentials and issues a session token.
func (h *IdentityHandler) Login(c *gin.Context) {
	var cmd command.LoginUser
	if !h.bindJSON(c, &cmd) {
		return
	}

	result := h.commands.LoginUser(c.Request.Context(), cmd)
	if !result.Succeeded {
		RespondWithOutcome(c, result.Outcome, http.StatusOK)
		return
	}

	ttl := h.ttl.pick(result.RememberMe)
	token, expiresAt, err := h.sessions.Issue(result.User.ID, result.User.UserName, result.SecurityStamp, result.User.Roles, ttl)
	if err != nil {
		logger.WithContext(c.Request.Context(), h.logger).Error("issue session token",
			zap.String("account_id", result.User.ID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, msgSessionFailed))
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Message:     result.Message,
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		ExpiresIn:   int(ttl.Seconds()),
		User:        *result.User,
	})
}

// Logout acknowledges the sign-out. Session tokens are stateless and expire on their own.
func (h *IdentityHandler) Logout(c *gin.Context) {
	if userID, ok := middleware.GetAuthenticatedUserID(c); ok {
		logger.WithContext(c.Request.Context(), h.logger).Info("user logged out", zap.String("account_id", userID))
	}
	c.JSON(http.StatusOK, MessageResponse{Message: msgLoggedOut})
}

// ForgotPassword answers with the same message whether or not the email is registered.
func (h *IdentityHandler) ForgotPassword(c *gin.Context) {
	var cmd command.ForgotPassword
	if !h.bindJSON(c, &cmd) {
		return
	}
	RespondWithOutcome(c, h.commands.ForgotPassword(c.Request.Context(), cmd), http.StatusOK)
}

// ResetPassword consumes a reset token.
func (h *IdentityHandler) ResetPassword(c *gin.Context) {
	var cmd command.ResetPassword
	if !h.bindJSON(c, &cmd) {
		return
	}
	RespondWithOutcome(c, h.commands.ResetPassword(c.Request.Context(), cmd), http.StatusOK)
}

// ConfirmEmail consumes a confirmation token.
func (h *IdentityHandler) ConfirmEmail(c *gin.Context) {
	var cmd command.ConfirmEmail
	if !h.bindJSON(c, &cmd) {
		return
	}
	RespondWithOutcome(c, h.commands.ConfirmEmail(c.Request.Context(), cmd), http.StatusOK)
}

// ResendConfirmation issues a new confirmation token for the signed-in account.
func (h *IdentityHandler) ResendConfirmation(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}
	RespondWithOutcome(c, h.commands.ResendConfirmation(c.Request.Context(), userID), http.StatusOK)
}

// Me returns the signed-in account.
func (h *IdentityHandler) Me(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}
	h.respondUser(c, userID)
}

// ChangePassword replaces the signed-in account's password.
func (h *IdentityHandler) ChangePassword(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ChangePasswordRequest
	if !h.bindJSON(c, &req) {
		return
	}

	RespondWithOutcome(c, h.commands.ChangePassword(c.Request.Context(), command.ChangePassword{
		UserID:          userID,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	}), http.StatusOK)
}

// UpdateProfile replaces the signed-in account's profile fields.
func (h *IdentityHandler) UpdateProfile(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ProfileRequest
	if !h.bindJSON(c, &req) {
		return
	}

	RespondWithOutcome(c, h.commands.UpdateProfile(c.Request.Context(), command.UpdateProfile{
		ID:        userID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Address:   req.Address,
	}), http.StatusOK)
}

// GetUser returns an active account by id. Deactivated accounts answer 404.
func (h *IdentityHandler) GetUser(c *gin.Context) {
	h.respondUser(c, c.Param("id"))
}

// DeleteUser soft-deletes an account.
func (h *IdentityHandler) DeleteUser(c *gin.Context) {
	RespondWithOutcome(c, h.commands.DeleteUser(c.Request.Context(), c.Param("id")), http.StatusOK)
}

// ListUsers returns a filtered page of accounts.
func (h *IdentityHandler) ListUsers(c *gin.Context) {
	var query command.ListUsers
	if err := c.ShouldBindQuery(&query); err != nil {
		resp := NewErrorResponse(c, "invalid query parameters")
		resp.Kind = "validation_failed"
		c.JSON(http.StatusBadRequest, resp)
		return
	}

	page, outcome := h.commands.ListUsers(c.Request.Context(), query)
	if !outcome.Succeeded {
		RespondWithOutcome(c, outcome, http.StatusOK)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *IdentityHandler) respondUser(c *gin.Context, id string) {
	user, outcome := h.commands.GetActiveUser(c.Request.Context(), id)
	if !outcome.Succeeded {
		RespondWithOutcome(c, outcome, http.StatusOK)
		return
	}
	c.JSON(http.StatusOK, user)
}
