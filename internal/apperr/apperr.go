package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a typed application error carrying the HTTP status it maps to.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an error with an explicit status.
func New(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: status}
}

// The taxonomy. Token decode failures all collapse to ErrInvalidToken so the
// boundary leaks nothing about why a token was rejected.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", "invalid username or password", http.StatusUnauthorized)
	ErrInvalidToken       = New("INVALID_TOKEN", "invalid or expired token", http.StatusUnauthorized)
	ErrInvalidOTP         = New("INVALID_OTP", "invalid or already used OTP", http.StatusBadRequest)
	ErrExpiredOTP         = New("EXPIRED_OTP", "OTP has expired", http.StatusBadRequest)
	ErrInactiveSession    = New("INACTIVE_SESSION", "no active session for this OTP", http.StatusBadRequest)
	ErrUnavailable        = New("SERVICE_UNAVAILABLE", "storage temporarily unavailable", http.StatusServiceUnavailable)
)

// Forbidden names the role the operation requires.
func Forbidden(role string) *Error {
	return New("FORBIDDEN", fmt.Sprintf("only %s may perform this operation", role), http.StatusForbidden)
}

// NotFound describes a missing entity.
func NotFound(what string) *Error {
	return New("NOT_FOUND", what+" not found", http.StatusNotFound)
}

// BadRequest flags malformed input.
func BadRequest(message string) *Error {
	return New("BAD_REQUEST", message, http.StatusBadRequest)
}

// Status returns the HTTP status for err, falling back to 500 for anything
// that is not an *Error.
func Status(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.HTTPStatus
	}
	return http.StatusInternalServerError
}

// AsError unwraps err to an *Error when possible.
func AsError(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
