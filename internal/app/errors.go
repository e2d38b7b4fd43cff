package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"commentary/api/internal/auth"
	"commentary/api/internal/store"
	"commentary/api/internal/thread"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	errForbidden    = domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	errUnauthorized = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
)

// rejected is the response for an operation whose guard did not hold, such
// as closing a closed thread.
func rejected(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrInvalidRef):
		return http.StatusBadRequest, "INVALID_REFERENCE", "Invalid reference", nil
	case errors.Is(err, thread.ErrUnknownCommontable):
		return http.StatusNotFound, "NOT_FOUND", err.Error(), nil
	case errors.Is(err, thread.ErrValidation):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, thread.ErrNotPermitted):
		return http.StatusForbidden, "FORBIDDEN", "Forbidden", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

func writeError(c *gin.Context, status int, code, message string, details any) {
	response := gin.H{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	c.AbortWithStatusJSON(status, response)
}

// fail maps err to a response. Server errors are recorded on the context so
// the request logger reports the cause.
func fail(c *gin.Context, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	writeError(c, status, code, message, details)
}
