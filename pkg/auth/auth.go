// Package auth acquires and caches short-lived credentials from the cloud
// environment the process runs in, and attaches them to outbound requests.
//
// Three materially different provider protocols hide behind one interface:
// bearer-token exchange (GCP, Azure), signed-request authentication (AWS
// SigV4), and metadata-server polling. A Provider is constructed once,
// resolving its mode from an optional auth input:
//
//   - a filesystem path ending in .json that exists on disk selects
//     service-account file exchange (GCP),
//   - any other non-empty string is used as a static bearer token,
//   - an empty input triggers environment auto-detection (GCP, then Azure,
//     then AWS, then unauthenticated).
//
// Credential material is cached per key with a conservative TTL; concurrent
// callers never corrupt the cache, and a live entry is served without a
// network round-trip.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// exchangeTimeout bounds credential and token-exchange calls.
const exchangeTimeout = 10 * time.Second

// Mode is the resolved authentication mode. It is a closed set: resolution
// happens once at construction and never changes afterwards.
type Mode int

const (
	// ModeNone sends no credentials.
	ModeNone Mode = iota
	// ModeBearer sends a caller-supplied static bearer token.
	ModeBearer
	// ModeGCP sends a GCP access token (service-account file or metadata server).
	ModeGCP
	// ModeAzure sends an Azure access token (managed identity or instance metadata).
	ModeAzure
	// ModeAWS signs each request with SigV4; there are no static headers.
	ModeAWS
)

// String returns the mode name for logging.
func (m Mode) String() string {
	switch m {
	case ModeBearer:
		return "bearer"
	case ModeGCP:
		return "gcp"
	case ModeAzure:
		return "azure"
	case ModeAWS:
		return "aws"
	default:
		return "none"
	}
}

// Provider resolves an authentication mode once and exposes a uniform
// produce-headers / sign-request contract to the transport layer.
//
// Headers covers the bearer-token modes. For ModeAWS, RequiresSigning
// reports true and the transport must call SignRequest with the fully-formed
// request: signatures are bound to method, URL, body and timestamp, so they
// cannot be precomputed into static headers.
type Provider struct {
	mode   Mode
	token  string
	logger *slog.Logger
	cache  *Cache

	gcp   *gcpSource
	azure *azureSource
	aws   *awsSource
}

// Option configures a Provider.
type Option func(*providerConfig)

type providerConfig struct {
	cache     *Cache
	detector  *Detector
	logger    *slog.Logger
	lookupEnv func(string) (string, bool)
	fileExist func(string) bool
}

// WithCache sets the credential cache. Tests inject a fresh cache; by
// default each Provider owns its own.
func WithCache(cache *Cache) Option {
	return func(c *providerConfig) {
		c.cache = cache
	}
}

// WithDetector sets the environment detector used when no explicit auth
// input is given.
func WithDetector(d *Detector) Option {
	return func(c *providerConfig) {
		c.detector = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *providerConfig) {
		c.logger = logger
	}
}

// WithLookupEnv overrides environment variable resolution, for tests.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(c *providerConfig) {
		c.lookupEnv = fn
	}
}

// NewProvider resolves the authentication mode from authInput and constructs
// the matching credential source. An empty authInput auto-detects the cloud
// environment; detection failure selects ModeNone rather than returning an
// error, so callers in unauthenticated environments keep working.
func NewProvider(ctx context.Context, authInput string, opts ...Option) (*Provider, error) {
	cfg := &providerConfig{
		lookupEnv: os.LookupEnv,
		fileExist: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.cache == nil {
		cfg.cache = NewCache()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	p := &Provider{
		logger: cfg.logger,
		cache:  cfg.cache,
	}

	switch {
	case authInput == "":
		if cfg.detector == nil {
			cfg.detector = NewDetector()
			cfg.detector.LookupEnv = cfg.lookupEnv
			cfg.detector.Logger = cfg.logger
		}
		p.mode = modeForProvider(cfg.detector.Detect(ctx))
	case strings.HasSuffix(authInput, ".json") && cfg.fileExist(authInput):
		p.mode = ModeGCP
	default:
		p.mode = ModeBearer
		p.token = authInput
	}

	switch p.mode {
	case ModeGCP:
		saPath := ""
		if authInput != "" {
			saPath = authInput
		}
		p.gcp = newGCPSource(saPath, cfg.cache, cfg.logger)
	case ModeAzure:
		p.azure = newAzureSource(cfg.cache, cfg.logger)
	case ModeAWS:
		p.aws = newAWSSource(cfg.cache, cfg.lookupEnv, cfg.logger)
	}

	cfg.logger.Debug("auth provider resolved", "mode", p.mode.String())
	return p, nil
}

func modeForProvider(provider CloudProvider) Mode {
	switch provider {
	case ProviderGCP:
		return ModeGCP
	case ProviderAzure:
		return ModeAzure
	case ProviderAWS:
		return ModeAWS
	default:
		return ModeNone
	}
}

// Mode returns the resolved authentication mode.
func (p *Provider) Mode() Mode {
	return p.mode
}

// Headers produces the request headers for the resolved mode. For ModeAWS it
// returns an empty map; the transport must call SignRequest instead.
func (p *Provider) Headers(ctx context.Context) (map[string]string, error) {
	switch p.mode {
	case ModeBearer:
		return map[string]string{"Authorization": "Bearer " + p.token}, nil
	case ModeGCP:
		return p.gcp.headers(ctx)
	case ModeAzure:
		return p.azure.headers(ctx)
	default:
		return map[string]string{}, nil
	}
}

// RequiresSigning reports whether each outbound request must be signed
// individually instead of carrying static headers.
func (p *Provider) RequiresSigning() bool {
	return p.mode == ModeAWS
}

// SignRequest signs a fully-formed request with SigV4. payloadHash is the
// hex SHA-256 of the request body. Requests are never sent unsigned: any
// failure here is surfaced as an *Error.
func (p *Provider) SignRequest(ctx context.Context, req *http.Request, payloadHash string) error {
	if p.aws == nil {
		return newError("", "sign request", "request signing is not supported for auth mode "+p.mode.String(), nil)
	}
	return p.aws.signRequest(ctx, req, payloadHash)
}

// SigningCredentials exposes the resolved AWS key material for callers that
// sign requests themselves.
func (p *Provider) SigningCredentials(ctx context.Context) (aws.Credentials, error) {
	if p.aws == nil {
		return aws.Credentials{}, newError("", "signing credentials", "no signing credentials for auth mode "+p.mode.String(), nil)
	}
	return p.aws.credentials(ctx)
}

// Verify checks that the resolved credentials are usable. Only ModeAWS has a
// meaningful verification call (STS GetCallerIdentity); other modes verify
// lazily on first use and return nil here.
func (p *Provider) Verify(ctx context.Context) error {
	if p.mode == ModeAWS {
		return p.aws.verify(ctx)
	}
	return nil
}
