package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// maxResponseTextLen bounds how much of an error response body is carried in
// the error message. The full body stays on the error for callers that need it.
const maxResponseTextLen = 200

// APIError is an error response from the tracking API: the request reached
// the server and the server rejected it. Retry decisions key off StatusCode;
// callers branch on ErrorCode for machine-readable handling (e.g.
// PIPELINE_NOT_FOUND).
type APIError struct {
	// StatusCode is the HTTP status the server returned.
	StatusCode int

	// ErrorCode is the machine-readable code from the response body, empty
	// when the body carried none.
	ErrorCode string

	// Message is the human-readable message from the response body, falling
	// back to the HTTP status text.
	Message string

	// ResponseText is the raw response body, kept for debugging.
	ResponseText string

	// RetryAfter is the parsed Retry-After header, zero when absent.
	RetryAfter time.Duration
}

// Error implements the error interface. Long response bodies are truncated;
// ResponseText keeps the full text.
func (e *APIError) Error() string {
	text := e.ResponseText
	if len(text) > maxResponseTextLen {
		text = text[:maxResponseTextLen] + "..."
	}
	if e.ErrorCode != "" {
		return fmt.Sprintf("api error (status %d, code %s): %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, text)
}

// IsStatusCode reports whether the error carries the given HTTP status.
func (e *APIError) IsStatusCode(code int) bool {
	return e.StatusCode == code
}

// NetworkError is a failure to complete the HTTP exchange at all: connection
// refused, DNS failure, timeout, or a cancelled context. The server may or
// may not have seen the request.
type NetworkError struct {
	// Op names the failed operation, e.g. "POST /start_pipeline_execution".
	Op string

	// Message is a short classification safe to log.
	Message string

	// Timeout reports whether the failure was a timeout or deadline.
	Timeout bool

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("network error: %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("network error: %s", e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// classifyNetworkError wraps a client-side failure as a *NetworkError with a
// stable message per failure class.
func classifyNetworkError(op string, err error) *NetworkError {
	nerr := &NetworkError{Op: op, Cause: err}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		nerr.Message = "request timed out"
		nerr.Timeout = true
	case errors.Is(err, context.Canceled):
		nerr.Message = "request cancelled"
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			nerr.Message = "request timed out"
			nerr.Timeout = true
		} else {
			nerr.Message = "connection failed"
		}
	}
	return nerr
}

// parseAPIError builds an *APIError from a non-2xx response. The body is
// parsed as JSON when possible; a body that is not JSON, or carries no
// recognized fields, degrades to the raw text and HTTP status text.
func parseAPIError(statusCode int, body []byte, header http.Header) *APIError {
	apiErr := &APIError{
		StatusCode:   statusCode,
		ResponseText: string(body),
		RetryAfter:   parseRetryAfter(header.Get("Retry-After")),
	}

	var parsed struct {
		Code    string `json:"code"`
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.ErrorCode = parsed.Code
		switch {
		case parsed.Message != "":
			apiErr.Message = parsed.Message
		case parsed.Detail != "":
			apiErr.Message = parsed.Detail
		case parsed.Error != "":
			apiErr.Message = parsed.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}
	return apiErr
}

// parseRetryAfter parses a Retry-After header value. Only the delta-seconds
// form is honored; the HTTP-date form and garbage both yield zero.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
