// Package httpapi holds what the BMM HTTP handlers share: the error mapping and the
// member view returned by the member and admin routes.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/union-bmm/backend/internal/registration"
	"github.com/union-bmm/backend/pkg/response"
)

type mapping struct {
	err    error
	status int
	code   string
}

var mappings = []mapping{
	{registration.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
	{registration.ErrNotFound, http.StatusNotFound, "not_found"},
	{registration.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{registration.ErrCodeExpired, http.StatusUnauthorized, "code_expired"},
	{registration.ErrIllegalTransition, http.StatusConflict, "illegal_transition"},
	{registration.ErrCapacityExceeded, http.StatusConflict, "capacity_exceeded"},
	{registration.ErrAlreadyUsed, http.StatusConflict, "already_used"},
	{registration.ErrNotEligible, http.StatusForbidden, "not_eligible"},
	{registration.ErrInvalidSelection, http.StatusBadRequest, "invalid_selection"},
	{registration.ErrValidation, http.StatusBadRequest, "validation"},
	{registration.ErrTooManyAttempts, http.StatusTooManyRequests, "too_many_attempts"},
}

// Classify returns the HTTP status and machine code for err. Unknown errors are 500.
func Classify(err error) (int, string) {
	for _, m := range mappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// WriteError writes the envelope for err. Internal errors are logged and hidden from the caller.
func WriteError(c *gin.Context, logger *zap.Logger, err error) {
	status, code := Classify(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err), zap.String("route", c.FullPath()))
		response.Fail(c, status, code, "internal error")
		return
	}
	response.Fail(c, status, code, err.Error())
}

// BadRequest writes a 400 for malformed input that never reached the engine.
func BadRequest(c *gin.Context, msg string) {
	response.Fail(c, http.StatusBadRequest, "bad_request", msg)
}
