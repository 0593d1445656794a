package echo

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/sidequest-dev/foreman/pkg/faults"
)

func doRequest(t *testing.T, handlerErr error) (int, ErrorResponse) {
	t.Helper()

	e := echo.New()
	e.HTTPErrorHandler = HTTPErrorHandler
	e.GET("/boom", func(c echo.Context) error {
		return handlerErr
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestHTTPErrorHandler(t *testing.T) {
	t.Run("validation error", func(t *testing.T) {
		status, resp := doRequest(t, faults.NewValidationError("repositoryPath is required", "repositoryPath"))

		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
		require.Equal(t, "repositoryPath is required", resp.Error.Message)
		require.Equal(t, []string{"repositoryPath"}, resp.Error.Fields)
		require.NotEmpty(t, resp.Timestamp)
	})

	t.Run("not found", func(t *testing.T) {
		status, resp := doRequest(t, fmt.Errorf("job abc123: %w", faults.ErrNotFound))

		require.Equal(t, http.StatusNotFound, status)
		require.Equal(t, "NOT_FOUND", resp.Error.Code)
		require.Contains(t, resp.Error.Message, "abc123")
	})

	t.Run("queue full", func(t *testing.T) {
		status, resp := doRequest(t, fmt.Errorf("pipeline scan: %w", faults.ErrQueueFull))

		require.Equal(t, http.StatusTooManyRequests, status)
		require.Equal(t, "QUEUE_FULL", resp.Error.Code)
	})

	t.Run("echo http error", func(t *testing.T) {
		status, resp := doRequest(t, echo.NewHTTPError(http.StatusBadRequest, "malformed body"))

		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "BAD_REQUEST", resp.Error.Code)
		require.Equal(t, "malformed body", resp.Error.Message)
	})

	t.Run("classified fault keeps its code and status", func(t *testing.T) {
		wrapped := faults.Permanent("catalog rejected pipeline", nil)
		wrapped.Code = "EBADPIPELINE"
		wrapped.Status = http.StatusBadRequest

		status, resp := doRequest(t, wrapped)

		require.Equal(t, http.StatusBadRequest, status)
		require.Equal(t, "EBADPIPELINE", resp.Error.Code)
	})

	t.Run("unclassified error becomes internal", func(t *testing.T) {
		status, resp := doRequest(t, fmt.Errorf("disk exploded"))

		require.Equal(t, http.StatusInternalServerError, status)
		require.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	})

	t.Run("unknown route uses envelope", func(t *testing.T) {
		e := echo.New()
		e.HTTPErrorHandler = HTTPErrorHandler

		req := httptest.NewRequest(http.MethodGet, "/nope", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNotFound, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "NOT_FOUND", resp.Error.Code)
	})
}
