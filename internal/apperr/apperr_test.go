package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	t.Parallel()

	require.Equal(t, http.StatusUnauthorized, Status(ErrInvalidToken))
	require.Equal(t, http.StatusForbidden, Status(Forbidden("faculty")))
	require.Equal(t, http.StatusNotFound, Status(NotFound("student")))
	require.Equal(t, http.StatusServiceUnavailable, Status(ErrUnavailable))
	require.Equal(t, http.StatusInternalServerError, Status(errors.New("boom")))
}

func TestWrappedErrorsUnwrap(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("verify: %w", ErrInvalidOTP)
	ae, ok := AsError(wrapped)
	require.True(t, ok)
	require.Equal(t, "INVALID_OTP", ae.Code)
	require.ErrorIs(t, wrapped, ErrInvalidOTP)
}

func TestForbiddenNamesRole(t *testing.T) {
	t.Parallel()
	require.Contains(t, Forbidden("faculty").Message, "faculty")
}
