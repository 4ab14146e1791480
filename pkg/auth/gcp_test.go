package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newMetadataTokenServer serves the default service-account token endpoint
// and points the metadata client at itself via GCE_METADATA_HOST.
func newMetadataTokenServer(t *testing.T, handler http.HandlerFunc) *int {
	t.Helper()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, gcpTokenPath) {
			t.Errorf("unexpected metadata path %q", r.URL.Path)
		}
		if r.Header.Get("Metadata-Flavor") != "Google" {
			t.Errorf("Metadata-Flavor = %q, want Google", r.Header.Get("Metadata-Flavor"))
		}
		calls++
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("GCE_METADATA_HOST", strings.TrimPrefix(srv.URL, "http://"))
	return &calls
}

func TestGCPMetadataToken(t *testing.T) {
	calls := newMetadataTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"md-token","expires_in":3599,"token_type":"Bearer"}`)
	})

	src := newGCPSource("", NewCache(), slog.Default())

	headers, err := src.headers(context.Background())
	if err != nil {
		t.Fatalf("headers: %v", err)
	}
	if got := headers["Authorization"]; got != "Bearer md-token" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer md-token")
	}

	// Second call is served from the cache.
	if _, err := src.headers(context.Background()); err != nil {
		t.Fatalf("headers (cached): %v", err)
	}
	if *calls != 1 {
		t.Errorf("metadata server called %d times, want 1", *calls)
	}
}

func TestGCPMetadataTokenUnusableResponse(t *testing.T) {
	newMetadataTokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"token_type":"Bearer"}`)
	})

	src := newGCPSource("", NewCache(), slog.Default())

	_, err := src.headers(context.Background())
	var authErr *Error
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want *auth.Error", err)
	}
	if authErr.Provider != ProviderGCP {
		t.Errorf("Provider = %q, want gcp", authErr.Provider)
	}
}

func TestGCPServiceAccountFileMissing(t *testing.T) {
	src := newGCPSource("/nonexistent/sa.json", NewCache(), slog.Default())

	_, err := src.headers(context.Background())
	var authErr *Error
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want *auth.Error", err)
	}
	if authErr.Op != "service account token" {
		t.Errorf("Op = %q, want %q", authErr.Op, "service account token")
	}
}

func TestGCPCacheKeyPerFile(t *testing.T) {
	if got := newGCPSource("", nil, nil).cacheKey(); got != "gcp_metadata" {
		t.Errorf("cacheKey() = %q, want gcp_metadata", got)
	}
	if got := newGCPSource("/etc/sa.json", nil, nil).cacheKey(); got != "gcp_/etc/sa.json" {
		t.Errorf("cacheKey() = %q, want gcp_/etc/sa.json", got)
	}
}

func TestTokenTTL(t *testing.T) {
	tests := []struct {
		name      string
		expiresIn int64
		want      time.Duration
	}{
		{"shorter than default", 600, 10 * time.Minute},
		{"longer than default is capped", 7200, DefaultTTL},
		{"zero falls back to default", 0, DefaultTTL},
		{"negative falls back to default", -5, DefaultTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tokenTTL(tt.expiresIn); got != tt.want {
				t.Errorf("tokenTTL(%d) = %v, want %v", tt.expiresIn, got, tt.want)
			}
		})
	}
}
