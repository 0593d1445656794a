package faults

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type statusError struct {
	status int
}

func (e *statusError) Error() string   { return fmt.Sprintf("upstream returned %d", e.status) }
func (e *statusError) HTTPStatus() int { return e.status }

func TestClassifyNil(t *testing.T) {
	d := Classify(nil)
	require.Equal(t, NonRetryable, d.Category)
	require.Zero(t, d.Delay)
}

func TestClassifyCodes(t *testing.T) {
	tests := []struct {
		code     string
		category Category
		delay    time.Duration
	}{
		{"ENOENT", NonRetryable, 0},
		{"EACCES", NonRetryable, 0},
		{"EPERM", NonRetryable, 0},
		{"ENOTFOUND", NonRetryable, 0},
		{"EISDIR", NonRetryable, 0},
		{"ENOTDIR", NonRetryable, 0},
		{"ETIMEDOUT", Retryable, 5 * time.Second},
		{"ECONNRESET", Retryable, 5 * time.Second},
		{"ECONNREFUSED", Retryable, 10 * time.Second},
		{"EHOSTUNREACH", Retryable, 5 * time.Second},
		{"ENETUNREACH", Retryable, 5 * time.Second},
		{"EAGAIN", Retryable, 5 * time.Second},
		{"EBUSY", Retryable, 5 * time.Second},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			err := &Error{Message: "boom", Code: tc.code}
			d := Classify(err)
			require.Equal(t, tc.category, d.Category)
			require.Equal(t, tc.delay, d.Delay)
			require.Equal(t, tc.code, d.Reason)
		})
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	t.Run("4xx is not retryable", func(t *testing.T) {
		for _, status := range []int{400, 401, 403, 404, 422} {
			d := Classify(&statusError{status: status})
			require.Equal(t, NonRetryable, d.Category, "status %d", status)
		}
	})

	t.Run("429 waits a full minute", func(t *testing.T) {
		d := Classify(&statusError{status: 429})
		require.Equal(t, Retryable, d.Category)
		require.Equal(t, 60*time.Second, d.Delay)
	})

	t.Run("408 is retryable", func(t *testing.T) {
		d := Classify(&statusError{status: 408})
		require.Equal(t, Retryable, d.Category)
		require.Equal(t, 5*time.Second, d.Delay)
	})

	t.Run("5xx is retryable", func(t *testing.T) {
		for _, status := range []int{500, 502, 503, 504} {
			d := Classify(&statusError{status: status})
			require.Equal(t, Retryable, d.Category, "status %d", status)
			require.Equal(t, 5*time.Second, d.Delay)
		}
	})
}

func TestClassifyCodeBeatsStatus(t *testing.T) {
	// A structured code wins over an HTTP status attached to the same error.
	err := &Error{Message: "boom", Code: "ENOENT", Status: 503}
	require.Equal(t, NonRetryable, Classify(err).Category)
}

func TestClassifyMessagePatterns(t *testing.T) {
	for _, msg := range []string{
		"request Timeout while talking to upstream",
		"NETWORK unreachable",
		"connection lost mid-stream",
		"a Temporary glitch",
	} {
		t.Run(msg, func(t *testing.T) {
			d := Classify(errors.New(msg))
			require.Equal(t, Retryable, d.Category)
			require.Equal(t, 5*time.Second, d.Delay)
		})
	}
}

func TestClassifyDefaultIsRetryable(t *testing.T) {
	d := Classify(errors.New("something entirely novel went wrong"))
	require.Equal(t, Retryable, d.Category)
	require.Equal(t, 5*time.Second, d.Delay)
}

func TestClassifyIsPure(t *testing.T) {
	err := fmt.Errorf("dialing: %w", syscall.ECONNREFUSED)
	first := Classify(err)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Classify(err))
	}
}

func TestCodeOf(t *testing.T) {
	t.Run("errno through wrapping", func(t *testing.T) {
		err := fmt.Errorf("reading config: %w", syscall.ECONNRESET)
		require.Equal(t, "ECONNRESET", CodeOf(err))
	})

	t.Run("fs sentinels", func(t *testing.T) {
		require.Equal(t, "ENOENT", CodeOf(fmt.Errorf("open: %w", fs.ErrNotExist)))
		require.Equal(t, "EACCES", CodeOf(fmt.Errorf("open: %w", fs.ErrPermission)))
	})

	t.Run("dns not found", func(t *testing.T) {
		err := &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}
		require.Equal(t, "ENOTFOUND", CodeOf(err))
		require.Equal(t, NonRetryable, Classify(err).Category)
	})

	t.Run("context deadline", func(t *testing.T) {
		require.Equal(t, "ETIMEDOUT", CodeOf(context.DeadlineExceeded))
	})

	t.Run("nothing structured", func(t *testing.T) {
		require.Empty(t, CodeOf(errors.New("plain")))
	})
}

func TestRetryable(t *testing.T) {
	require.True(t, IsRetryable(fmt.Errorf("dial: %w", syscall.ETIMEDOUT)))
	require.False(t, IsRetryable(fmt.Errorf("stat: %w", fs.ErrNotExist)))
	require.False(t, IsRetryable(nil))
}
