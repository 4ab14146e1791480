package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/compute/metadata"
	"golang.org/x/oauth2/google"
)

const (
	// gcpTokenPath is the metadata-server endpoint for the default service
	// account's access token.
	gcpTokenPath = "instance/service-accounts/default/token"

	// gcpCloudPlatformScope is the scope requested for service-account file
	// token exchange.
	gcpCloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
)

// gcpSource fetches GCP access tokens, either by exchanging a configured
// service-account key file or from the metadata server's default
// service-account token endpoint.
type gcpSource struct {
	// serviceAccountPath is the key file for file-based exchange; empty
	// selects the metadata-server path.
	serviceAccountPath string

	cache  *Cache
	logger *slog.Logger

	// mdc is the metadata-server client. The underlying library honors the
	// GCE_METADATA_HOST override, which tests use to point it at a fake.
	mdc *metadata.Client
}

func newGCPSource(serviceAccountPath string, cache *Cache, logger *slog.Logger) *gcpSource {
	return &gcpSource{
		serviceAccountPath: serviceAccountPath,
		cache:              cache,
		logger:             logger,
		mdc:                metadata.NewClient(&http.Client{Timeout: exchangeTimeout}),
	}
}

func (s *gcpSource) cacheKey() string {
	if s.serviceAccountPath == "" {
		return "gcp_metadata"
	}
	return "gcp_" + s.serviceAccountPath
}

// headers returns the Authorization header for the current token.
func (s *gcpSource) headers(ctx context.Context) (map[string]string, error) {
	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

// token returns a cached access token, fetching a fresh one when the cache
// has no live entry.
func (s *gcpSource) token(ctx context.Context) (string, error) {
	key := s.cacheKey()
	if entry, ok := s.cache.Get(key); ok {
		return entry.Material.(string), nil
	}

	if s.serviceAccountPath == "" {
		return s.metadataToken(ctx, key)
	}
	return s.serviceAccountToken(ctx, key)
}

// metadataToken fetches an access token for the instance's default service
// account from the metadata server.
func (s *gcpSource) metadataToken(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	raw, err := s.mdc.GetWithContext(ctx, gcpTokenPath)
	if err != nil {
		return "", newError(ProviderGCP, "metadata token", "failed to get access token from metadata server", err)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil || body.AccessToken == "" {
		return "", newError(ProviderGCP, "metadata token", "metadata server returned an unusable token response", err)
	}

	s.cache.Put(key, body.AccessToken, tokenTTL(body.ExpiresIn))
	s.logger.Debug("gcp token acquired", "source", "metadata")
	return body.AccessToken, nil
}

// serviceAccountToken exchanges the configured key file for an access token
// via the standard service-account token-refresh protocol.
func (s *gcpSource) serviceAccountToken(ctx context.Context, key string) (string, error) {
	data, err := os.ReadFile(s.serviceAccountPath)
	if err != nil {
		return "", newError(ProviderGCP, "service account token", "failed to read service account file", err)
	}

	cfg, err := google.JWTConfigFromJSON(data, gcpCloudPlatformScope)
	if err != nil {
		return "", newError(ProviderGCP, "service account token", "invalid service account file", err)
	}

	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	tok, err := cfg.TokenSource(ctx).Token()
	if err != nil {
		return "", newError(ProviderGCP, "service account token", "failed to exchange service account credentials", err)
	}

	s.cache.Put(key, tok.AccessToken, DefaultTTL)
	s.logger.Debug("gcp token acquired", "source", "service_account")
	return tok.AccessToken, nil
}

// tokenTTL caps a provider-reported lifetime at DefaultTTL so tokens are
// refreshed with margin to spare.
func tokenTTL(expiresInSeconds int64) time.Duration {
	ttl := time.Duration(expiresInSeconds) * time.Second
	if ttl <= 0 || ttl > DefaultTTL {
		return DefaultTTL
	}
	return ttl
}
