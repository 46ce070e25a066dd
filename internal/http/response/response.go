package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/introspecthq/agentlens-backend/internal/domain"
	"github.com/introspecthq/agentlens-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}

// RespondDomainError maps domain sentinels onto HTTP statuses. Anything
// unmapped is a 500.
func RespondDomainError(c *gin.Context, err error) {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		RespondError(c, apiErr.Status, apiErr.Code, apiErr.Err)
		return
	}
	switch {
	case errors.Is(err, domain.ErrInvalidConfiguration):
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
	case errors.Is(err, domain.ErrInvalidTransition):
		RespondError(c, http.StatusBadRequest, "invalid_transition", err)
	case errors.Is(err, domain.ErrOperationAlreadyRunning):
		RespondError(c, http.StatusConflict, "operation_already_running", err)
	case errors.Is(err, domain.ErrRotationConflict):
		RespondError(c, http.StatusConflict, "rotation_conflict", err)
	case errors.Is(err, domain.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}
