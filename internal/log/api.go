// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"log/slog"
)

// APIRequest represents an outbound API request for logging purposes.
type APIRequest struct {
	// Method is the HTTP method.
	Method string

	// Path is the request path (never the full URL, which may embed tokens
	// in query parameters).
	Path string

	// CorrelationID is the correlation ID attached to the request.
	CorrelationID string

	// Attempt is the 1-based attempt number including retries.
	Attempt int
}

// APIResponse represents the outcome of an outbound API request.
type APIResponse struct {
	// StatusCode is the HTTP status code, zero when the request never
	// reached the service.
	StatusCode int

	// Error is the failure description, empty on success.
	Error string

	// DurationMs is the duration of the request in milliseconds.
	DurationMs int64
}

// LogAPIRequest logs an outbound API request at debug level.
func LogAPIRequest(logger *slog.Logger, req *APIRequest) {
	attrs := []any{
		EventKey, "api_request",
		"method", req.Method,
		"path", req.Path,
	}

	if req.CorrelationID != "" {
		attrs = append(attrs, "correlation_id", req.CorrelationID)
	}

	if req.Attempt > 1 {
		attrs = append(attrs, AttemptKey, req.Attempt)
	}

	logger.Debug("api request", attrs...)
}

// LogAPIResponse logs the outcome of an outbound API request. Failures log
// at warn level so retried attempts remain visible without raising errors
// the retry loop may yet recover from.
func LogAPIResponse(logger *slog.Logger, req *APIRequest, resp *APIResponse) {
	attrs := []any{
		EventKey, "api_response",
		"method", req.Method,
		"path", req.Path,
		DurationKey, resp.DurationMs,
	}

	if resp.StatusCode != 0 {
		attrs = append(attrs, StatusKey, resp.StatusCode)
	}

	if req.CorrelationID != "" {
		attrs = append(attrs, "correlation_id", req.CorrelationID)
	}

	if resp.Error != "" {
		attrs = append(attrs, "error", resp.Error)
		logger.Warn("api request failed", attrs...)
		return
	}

	logger.Debug("api response", attrs...)
}
