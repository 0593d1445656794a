package faults

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapInheritsCode(t *testing.T) {
	cause := fmt.Errorf("fetch: %w", syscall.ETIMEDOUT)
	err := Wrap("scanning repository", cause)

	require.Equal(t, "ETIMEDOUT", err.Code)
	require.Equal(t, Retryable, err.Decision.Category)
	require.ErrorIs(t, err, syscall.ETIMEDOUT)
	require.Contains(t, err.Error(), "scanning repository")
}

func TestWrapInheritsStatus(t *testing.T) {
	err := Wrap("calling upstream", &statusError{status: 429})
	require.Equal(t, 429, err.Status)
	require.Equal(t, Retryable, err.Decision.Category)
	require.Equal(t, RateLimitDelay, err.Decision.Delay)
}

func TestWrapNilCause(t *testing.T) {
	err := Wrap("standalone failure", nil)
	require.Empty(t, err.Code)
	require.NoError(t, err.Unwrap())
	require.Equal(t, "standalone failure", err.Error())
}

func TestPermanent(t *testing.T) {
	err := Permanent("bad input shape", errors.New("field missing"))
	require.Equal(t, NonRetryable, err.Decision.Category)
}

func TestDetailOf(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		require.Nil(t, DetailOf(nil))
	})

	t.Run("structured", func(t *testing.T) {
		cause := fmt.Errorf("dial: %w", syscall.ECONNREFUSED)
		d := DetailOf(Wrap("fetching manifest", cause))
		require.Equal(t, "fetching manifest", d.Message)
		require.Equal(t, "ECONNREFUSED", d.Code)
		require.Contains(t, d.Cause, "dial")
	})

	t.Run("plain error", func(t *testing.T) {
		d := DetailOf(errors.New("plain"))
		require.Equal(t, "plain", d.Message)
		require.Empty(t, d.Code)
	})
}

func TestInfoFields(t *testing.T) {
	info := Info(Wrap("probing", &statusError{status: 503}))
	require.Equal(t, 503, info["status"])
	require.Equal(t, true, info["retryable"])
	require.Nil(t, Info(nil))
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("missing required fields", "repositoryPath")
	require.Contains(t, err.Error(), "repositoryPath")

	var ve *ValidationError
	require.True(t, errors.As(fmt.Errorf("handling request: %w", err), &ve))
}
