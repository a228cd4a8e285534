package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hugopriorizen/Base/internal/infra/security"
)

// ClaimsKey stores the parsed session claims on the gin context.
const ClaimsKey = "session_claims"

// ErrorResponse matches the handlers.ErrorResponse structure.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// SessionParser validates bearer tokens issued at login.
type SessionParser interface {
	Parse(token string) (*security.SessionClaims, error)
}

// SessionVerifier checks parsed claims against the stored account and returns its current roles.
// It fails with security.ErrRevokedSessionToken once the account is deactivated or its security
// stamp rotates.
type SessionVerifier interface {
	VerifySession(ctx context.Context, claims *security.SessionClaims) ([]string, error)
}

// RequireAuth validates the Authorization header and stores the session claims. When verifier is
// set, the stored claims carry the roles the account holds at request time.
func RequireAuth(sessions SessionParser, verifier SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing authorization header"))
			return
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing session token"))
			return
		}

		claims, err := sessions.Parse(token)
		if err != nil {
			switch {
			case errors.Is(err, security.ErrExpiredSessionToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "session token expired"))
			case errors.Is(err, security.ErrInvalidSessionToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "invalid session token"))
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					newErrorResponse(c, "authentication failed"))
			}
			return
		}

		if verifier != nil {
			roles, err := verifier.VerifySession(c.Request.Context(), claims)
			if err != nil {
				if errors.Is(err, security.ErrRevokedSessionToken) {
					c.AbortWithStatusJSON(http.StatusUnauthorized,
						newErrorResponse(c, "session revoked"))
					return
				}
				c.AbortWithStatusJSON(http.StatusServiceUnavailable,
					newErrorResponse(c, "authentication unavailable"))
				return
			}
			claims.Roles = roles
		}

		c.Set(UserIDKey, claims.Subject)
		c.Set(ClaimsKey, claims)

		c.Next()
	}
}

// RequireRole checks that the session holds any of the roles. Names compare case-insensitively.
// Behind a verifying RequireAuth the roles are the ones held at request time.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetSessionClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		for _, role := range roles {
			if claims.HasRole(role) {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden,
			newErrorResponse(c, "insufficient permissions"))
	}
}

// GetSessionClaims returns the claims stored by RequireAuth.
func GetSessionClaims(c *gin.Context) (*security.SessionClaims, bool) {
	v, exists := c.Get(ClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*security.SessionClaims)
	return claims, ok && claims != nil
}

// GetAuthenticatedUserID retrieves the account ID from context.
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}

	if id, ok := userID.(string); ok && id != "" {
		return id, true
	}

	return "", false
}
