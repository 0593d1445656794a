package echo

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sidequest-dev/foreman/pkg/faults"
)

// ErrorBody is the error object nested inside every error response.
type ErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

// ErrorResponse is the envelope every surface error is converted to. No
// handler writes errors another way.
type ErrorResponse struct {
	Error     ErrorBody `json:"error"`
	Timestamp string    `json:"timestamp"`
}

// HTTPErrorHandler is a centralized error handler for all Echo routes.
// Set as Echo's HTTPErrorHandler to convert the fault taxonomy into the
// wire envelope.
func HTTPErrorHandler(err error, c echo.Context) {
	// Don't handle if response already started
	if c.Response().Committed {
		return
	}

	status, body := extractErrorInfo(err)
	sendErrorResponse(c, status, body)
}

// extractErrorInfo determines the HTTP status code and error body for an
// error, walking the chain for the most specific classification.
func extractErrorInfo(err error) (int, ErrorBody) {
	var ve *faults.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, ErrorBody{
			Code:    "VALIDATION_ERROR",
			Message: ve.Message,
			Fields:  ve.Fields,
		}
	}

	if errors.Is(err, faults.ErrNotFound) {
		return http.StatusNotFound, ErrorBody{
			Code:    "NOT_FOUND",
			Message: err.Error(),
		}
	}

	if errors.Is(err, faults.ErrQueueFull) {
		return http.StatusTooManyRequests, ErrorBody{
			Code:    "QUEUE_FULL",
			Message: err.Error(),
		}
	}

	// Echo's own HTTPError (404 on unknown routes, body binding failures).
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok {
			msg = s
		}
		return he.Code, ErrorBody{Code: codeForStatus(he.Code), Message: msg}
	}

	status := faults.StatusOf(err)
	if status == 0 {
		status = http.StatusInternalServerError
	}
	code := faults.CodeOf(err)
	if code == "" {
		code = codeForStatus(status)
	}
	return status, ErrorBody{Code: code, Message: err.Error()}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusTooManyRequests:
		return "QUEUE_FULL"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

func sendErrorResponse(c echo.Context, status int, body ErrorBody) {
	resp := ErrorResponse{
		Error:     body,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.JSON(status, resp); err != nil {
		log.Errorf("failed to send error response: %v", err)
	}
}
