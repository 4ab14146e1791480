package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestParseAPIError(t *testing.T) {
	tests := []struct {
		name        string
		statusCode  int
		body        string
		retryAfter  string
		wantCode    string
		wantMessage string
		wantDelay   time.Duration
	}{
		{
			name:        "code and message",
			statusCode:  404,
			body:        `{"code":"PIPELINE_NOT_FOUND","message":"pipeline 42 not found"}`,
			wantCode:    "PIPELINE_NOT_FOUND",
			wantMessage: "pipeline 42 not found",
		},
		{
			name:        "error field only",
			statusCode:  400,
			body:        `{"error":"watermark is malformed"}`,
			wantMessage: "watermark is malformed",
		},
		{
			name:        "detail field",
			statusCode:  422,
			body:        `{"detail":"start_date is required"}`,
			wantMessage: "start_date is required",
		},
		{
			name:        "non-json body falls back to status text",
			statusCode:  502,
			body:        "<html>Bad Gateway</html>",
			wantMessage: "Bad Gateway",
		},
		{
			name:        "empty body",
			statusCode:  500,
			wantMessage: "Internal Server Error",
		},
		{
			name:        "retry-after seconds",
			statusCode:  429,
			body:        `{"message":"slow down"}`,
			retryAfter:  "7",
			wantMessage: "slow down",
			wantDelay:   7 * time.Second,
		},
		{
			name:        "retry-after http date ignored",
			statusCode:  503,
			retryAfter:  "Wed, 21 Oct 2026 07:28:00 GMT",
			wantMessage: "Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.retryAfter != "" {
				header.Set("Retry-After", tt.retryAfter)
			}

			apiErr := parseAPIError(tt.statusCode, []byte(tt.body), header)

			if apiErr.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.statusCode)
			}
			if apiErr.ErrorCode != tt.wantCode {
				t.Errorf("ErrorCode = %q, want %q", apiErr.ErrorCode, tt.wantCode)
			}
			if apiErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMessage)
			}
			if apiErr.RetryAfter != tt.wantDelay {
				t.Errorf("RetryAfter = %v, want %v", apiErr.RetryAfter, tt.wantDelay)
			}
			if apiErr.ResponseText != tt.body {
				t.Errorf("ResponseText = %q, want %q", apiErr.ResponseText, tt.body)
			}
		})
	}
}

func TestAPIErrorTruncatesLongBody(t *testing.T) {
	body := strings.Repeat("x", 500)
	apiErr := parseAPIError(500, []byte(body), http.Header{})
	apiErr.Message = ""

	msg := apiErr.Error()
	if len(msg) > maxResponseTextLen+50 {
		t.Errorf("error message too long: %d chars", len(msg))
	}
	if !strings.Contains(msg, "...") {
		t.Error("truncated message should end with ellipsis")
	}
	if apiErr.ResponseText != body {
		t.Error("ResponseText must keep the full body")
	}
}

func TestClassifyNetworkError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantMessage string
		wantTimeout bool
	}{
		{"deadline", context.DeadlineExceeded, "request timed out", true},
		{"cancelled", context.Canceled, "request cancelled", false},
		{"other", errors.New("connection refused"), "connection failed", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nerr := classifyNetworkError("POST /start_pipeline_execution", tt.err)
			if nerr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", nerr.Message, tt.wantMessage)
			}
			if nerr.Timeout != tt.wantTimeout {
				t.Errorf("Timeout = %v, want %v", nerr.Timeout, tt.wantTimeout)
			}
			if !errors.Is(nerr, tt.err) {
				t.Error("cause must remain reachable via errors.Is")
			}
		})
	}
}

func TestNetworkErrorFormat(t *testing.T) {
	nerr := &NetworkError{Op: "POST /end_pipeline_execution", Message: "request timed out"}
	want := "network error: POST /end_pipeline_execution: request timed out"
	if nerr.Error() != want {
		t.Errorf("Error() = %q, want %q", nerr.Error(), want)
	}
}
