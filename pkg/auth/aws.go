package auth

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/ec2rolecreds"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const (
	// awsSigningService is the service name used for SigV4 signing against
	// the tracking API.
	awsSigningService = "execute-api"

	awsDefaultRegion = "us-east-1"
	awsCacheKey      = "aws_credentials"
)

// awsSource resolves AWS credentials from the instance-metadata role
// endpoints, falling back to the standard environment variables, and signs
// outbound requests with SigV4. Unlike the token providers this source never
// produces static auth headers; signatures are bound to method, URL, body and
// timestamp, so the transport must sign each fully-formed request.
type awsSource struct {
	cache  *Cache
	logger *slog.Logger
	region string

	// roleProvider fetches role credentials from the instance metadata
	// service; overridable in tests.
	roleProvider aws.CredentialsProvider

	lookupEnv func(string) (string, bool)
	signer    *v4.Signer

	// signingTime stamps signatures, overridable for deterministic tests.
	signingTime func() time.Time

	// stsEndpoint overrides the STS endpoint used by Verify in tests.
	stsEndpoint string
}

func newAWSSource(cache *Cache, lookupEnv func(string) (string, bool), logger *slog.Logger) *awsSource {
	s := &awsSource{
		cache:     cache,
		logger:    logger,
		lookupEnv: lookupEnv,
		signer:    v4.NewSigner(),
		roleProvider: ec2rolecreds.New(func(o *ec2rolecreds.Options) {
			o.Client = imds.New(imds.Options{
				HTTPClient: &http.Client{Timeout: exchangeTimeout},
			})
		}),
		signingTime: time.Now,
	}
	s.region = s.resolveRegion()
	return s
}

func (s *awsSource) resolveRegion() string {
	if region, ok := s.lookupEnv("AWS_REGION"); ok && region != "" {
		return region
	}
	if region, ok := s.lookupEnv("AWS_DEFAULT_REGION"); ok && region != "" {
		return region
	}
	return awsDefaultRegion
}

// credentials returns the cached key material, resolving it from the
// instance-metadata role endpoints first and the environment second.
func (s *awsSource) credentials(ctx context.Context) (aws.Credentials, error) {
	if entry, ok := s.cache.Get(awsCacheKey); ok {
		return entry.Material.(aws.Credentials), nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	creds, err := s.roleProvider.Retrieve(fetchCtx)
	if err != nil {
		creds, err = s.envCredentials(err)
		if err != nil {
			return aws.Credentials{}, err
		}
	}

	s.cache.Put(awsCacheKey, creds, DefaultTTL)
	s.logger.Debug("aws credentials resolved", "source", creds.Source)
	return creds, nil
}

// envCredentials builds credentials from the three standard environment
// variables. imdsErr is the instance-metadata failure that forced the
// fallback, carried as the cause when the environment is also unusable.
func (s *awsSource) envCredentials(imdsErr error) (aws.Credentials, error) {
	accessKey, _ := s.lookupEnv("AWS_ACCESS_KEY_ID")
	secretKey, _ := s.lookupEnv("AWS_SECRET_ACCESS_KEY")
	sessionToken, _ := s.lookupEnv("AWS_SESSION_TOKEN")

	if accessKey == "" || secretKey == "" {
		return aws.Credentials{}, newError(ProviderAWS, "resolve credentials", "no usable AWS credentials found", imdsErr)
	}

	return aws.Credentials{
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		SessionToken:    sessionToken,
		Source:          "environment",
	}, nil
}

// signRequest applies a SigV4 signature to req. payloadHash is the hex
// SHA-256 of the request body, computed by the caller because the body has
// already been attached to req.
func (s *awsSource) signRequest(ctx context.Context, req *http.Request, payloadHash string) error {
	creds, err := s.credentials(ctx)
	if err != nil {
		return err
	}

	if err := s.signer.SignHTTP(ctx, creds, req, payloadHash, awsSigningService, s.region, s.signingTime()); err != nil {
		return newError(ProviderAWS, "sign request", "failed to sign request", err)
	}
	return nil
}

// verify calls STS GetCallerIdentity with the resolved credentials. It is an
// optional construction-time check, not part of the per-request path.
func (s *awsSource) verify(ctx context.Context) error {
	creds, err := s.credentials(ctx)
	if err != nil {
		return err
	}

	opts := sts.Options{
		Region:      s.region,
		Credentials: credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
	}
	if s.stsEndpoint != "" {
		opts.BaseEndpoint = aws.String(s.stsEndpoint)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	if _, err := sts.New(opts).GetCallerIdentity(verifyCtx, &sts.GetCallerIdentityInput{}); err != nil {
		return newError(ProviderAWS, "verify credentials", "credential verification failed", err)
	}
	return nil
}
