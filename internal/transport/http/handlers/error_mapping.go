package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hugopriorizen/Base/internal/command"
)

var kindStatus = map[string]int{
	"validation_failed":     http.StatusBadRequest,
	"not_found":             http.StatusNotFound,
	"conflict":              http.StatusConflict,
	"authentication_failed": http.StatusUnauthorized,
	"token_invalid":         http.StatusBadRequest,
	"unavailable":           http.StatusServiceUnavailable,
}

// StatusForKind maps an outcome kind to its HTTP status. Unknown kinds are server errors.
func StatusForKind(kind string) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RespondWithOutcome writes a failed outcome as an ErrorResponse, or the message with
// successStatus when it succeeded.
func RespondWithOutcome(c *gin.Context, outcome command.Outcome, successStatus int) {
	if outcome.Succeeded {
		c.JSON(successStatus, MessageResponse{Message: outcome.Message})
		return
	}

	resp := NewErrorResponse(c, outcome.Message)
	resp.Kind = outcome.Kind
	c.JSON(StatusForKind(outcome.Kind), resp)
}
