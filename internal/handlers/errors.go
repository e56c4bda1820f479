package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/eco-collect/internal/logging"
	"github.com/example/eco-collect/internal/repository"
	"github.com/example/eco-collect/internal/usecase"
)

const (
	codeValidation         = "validation_error"
	codeNotAuthenticated   = "not_authenticated"
	codeInvalidCredentials = "invalid_credentials"
	codeForbidden          = "forbidden"
	codeNotFound           = "not_found"
	codeMethodNotAllowed   = "method_not_allowed"
	codePayloadTooLarge    = "payload_too_large"
	codeUnsupportedMedia   = "unsupported_media_type"
	codeTooManyRequests    = "too_many_requests"
	codeInternal           = "internal_error"
)

const (
	internalErrorMessage    = "internal server error"
	notAuthenticatedMessage = "not logged in"
)

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error":      code,
		"message":    message,
		"request_id": logging.RequestIDFromContext(c.Request.Context()),
	})
}

// respondError maps use case errors onto HTTP responses. Unexpected errors
// are logged and answered with a generic 500.
func (a *api) respondError(c *gin.Context, operation string, err error) {
	var validation *usecase.ValidationError
	var notFound *usecase.NotFoundError

	switch {
	case errors.As(err, &validation):
		writeError(c, http.StatusBadRequest, codeValidation, validation.Message)
	case errors.As(err, &notFound):
		writeError(c, http.StatusNotFound, codeNotFound, notFound.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(c, http.StatusNotFound, codeNotFound, "resource not found")
	case errors.Is(err, usecase.ErrNotAuthenticated):
		writeError(c, http.StatusUnauthorized, codeNotAuthenticated, notAuthenticatedMessage)
	case errors.Is(err, usecase.ErrInvalidCredentials):
		writeError(c, http.StatusUnauthorized, codeInvalidCredentials, "Invalid email or password")
	case errors.Is(err, usecase.ErrForbidden):
		writeError(c, http.StatusForbidden, codeForbidden, "insufficient role")
	case isBodyTooLarge(err):
		writeError(c, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "Request body size exceeds limit")
	default:
		requestID := logging.RequestIDFromContext(c.Request.Context())
		logging.WithOperation(a.logger, operation, requestID).Error("request failed",
			zap.Strings("operations", logging.Operations(err)),
			zap.Error(err),
		)
		writeError(c, http.StatusInternalServerError, codeInternal, internalErrorMessage)
	}
}
