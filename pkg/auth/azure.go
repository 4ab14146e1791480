package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

const (
	// azureIMDSTokenURL is the instance-metadata identity endpoint used when
	// the managed-identity credential cannot produce a token.
	azureIMDSTokenURL = "http://169.254.169.254/metadata/identity/oauth2/token"

	azureIMDSAPIVersion = "2018-02-01"
	azureResource       = "https://management.azure.com/"
	azureScope          = "https://management.azure.com/.default"

	azureCacheKey = "azure_managed_identity"
)

// azureTokenCredential is the portion of azcore.TokenCredential this source
// needs; narrowed so tests can substitute a fake.
type azureTokenCredential interface {
	GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error)
}

// azureSource fetches Azure access tokens through the managed-identity
// credential, falling back to a direct instance-metadata identity call when
// the credential cannot be constructed or declines to issue a token.
type azureSource struct {
	cache  *Cache
	logger *slog.Logger

	// newCredential builds the managed-identity credential; overridable in
	// tests to force either path.
	newCredential func() (azureTokenCredential, error)

	// imdsTokenURL is the fallback endpoint, overridable in tests.
	imdsTokenURL string

	httpClient *http.Client
}

func newAzureSource(cache *Cache, logger *slog.Logger) *azureSource {
	return &azureSource{
		cache:  cache,
		logger: logger,
		newCredential: func() (azureTokenCredential, error) {
			return azidentity.NewManagedIdentityCredential(nil)
		},
		imdsTokenURL: azureIMDSTokenURL,
		httpClient:   &http.Client{Timeout: exchangeTimeout},
	}
}

// headers returns the Authorization header for the current token.
func (s *azureSource) headers(ctx context.Context) (map[string]string, error) {
	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

func (s *azureSource) token(ctx context.Context) (string, error) {
	if entry, ok := s.cache.Get(azureCacheKey); ok {
		return entry.Material.(string), nil
	}

	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	if cred, err := s.newCredential(); err == nil {
		tok, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{azureScope}})
		if err == nil {
			s.cache.Put(azureCacheKey, tok.Token, DefaultTTL)
			s.logger.Debug("azure token acquired", "source", "managed_identity")
			return tok.Token, nil
		}
		s.logger.Debug("managed identity token exchange failed, falling back to instance metadata", "error", err)
	}

	return s.imdsToken(ctx)
}

// imdsToken calls the instance-metadata identity endpoint directly.
func (s *azureSource) imdsToken(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("api-version", azureIMDSAPIVersion)
	q.Set("resource", azureResource)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.imdsTokenURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", newError(ProviderAzure, "imds token", "failed to build instance metadata request", err)
	}
	req.Header.Set("Metadata", "true")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", newError(ProviderAzure, "imds token", "failed to get access token", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", newError(ProviderAzure, "imds token", "instance metadata endpoint returned status "+resp.Status, nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", newError(ProviderAzure, "imds token", "failed to read instance metadata response", err)
	}

	var tokenBody struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in,string"`
	}
	if err := json.Unmarshal(body, &tokenBody); err != nil || tokenBody.AccessToken == "" {
		return "", newError(ProviderAzure, "imds token", "instance metadata endpoint returned an unusable token response", err)
	}

	s.cache.Put(azureCacheKey, tokenBody.AccessToken, tokenTTL(tokenBody.ExpiresIn))
	s.logger.Debug("azure token acquired", "source", "imds")
	return tokenBody.AccessToken, nil
}
