package auth

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// CloudProvider identifies a cloud platform the process may be running under.
type CloudProvider string

const (
	// ProviderGCP is Google Cloud Platform.
	ProviderGCP CloudProvider = "gcp"
	// ProviderAzure is Microsoft Azure.
	ProviderAzure CloudProvider = "azure"
	// ProviderAWS is Amazon Web Services.
	ProviderAWS CloudProvider = "aws"
	// ProviderNone means no provider was confirmed.
	ProviderNone CloudProvider = ""
)

// Platform-defined metadata endpoints. These are not configurable in
// production; the Detector fields exist so tests can point probes at fake
// servers.
const (
	gcpMetadataRootURL   = "http://metadata.google.internal/computeMetadata/v1/"
	azureMetadataURL     = "http://169.254.169.254/metadata/instance"
	awsMetadataRootURL   = "http://169.254.169.254/latest/meta-data/"
	kubeServiceTokenFile = "/var/run/secrets/kubernetes.io/serviceaccount/token"

	probeTimeout = 2 * time.Second
)

// Detector probes environment variables and well-known metadata endpoints to
// decide which cloud provider the process is running under. Detection order
// is fixed: GCP, then Azure, then AWS; the first confirmed match wins.
//
// A probe failure of any kind (timeout, non-200, DNS failure) means "not this
// provider", never a fatal error.
type Detector struct {
	// HTTPClient issues metadata probes. Defaults to a client with a short
	// probe timeout.
	HTTPClient *http.Client

	// LookupEnv resolves environment variables, overridable in tests.
	// Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)

	// GCPMetadataURL, AzureMetadataURL, AWSMetadataURL override the
	// platform-defined probe endpoints in tests.
	GCPMetadataURL   string
	AzureMetadataURL string
	AWSMetadataURL   string

	// ServiceAccountTokenFile is the in-cluster token file whose presence
	// counts as a GCP signal.
	ServiceAccountTokenFile string

	// Logger receives debug output for probe decisions.
	Logger *slog.Logger
}

// NewDetector creates a Detector with platform defaults.
func NewDetector() *Detector {
	return &Detector{
		HTTPClient:              &http.Client{Timeout: probeTimeout},
		LookupEnv:               os.LookupEnv,
		GCPMetadataURL:          gcpMetadataRootURL,
		AzureMetadataURL:        azureMetadataURL,
		AWSMetadataURL:          awsMetadataRootURL,
		ServiceAccountTokenFile: kubeServiceTokenFile,
		Logger:                  slog.Default(),
	}
}

// Detect returns the confirmed cloud provider, or ProviderNone when no
// provider confirms. Callers must fall back to unauthenticated mode on
// ProviderNone rather than fail.
func (d *Detector) Detect(ctx context.Context) CloudProvider {
	if d.hasGCPSignal() && d.probe(ctx, d.GCPMetadataURL, map[string]string{"Metadata-Flavor": "Google"}) {
		d.logger().Debug("cloud environment detected", "provider", ProviderGCP)
		return ProviderGCP
	}

	if d.hasAzureSignal() && d.probe(ctx, d.AzureMetadataURL, map[string]string{"Metadata": "true"}) {
		d.logger().Debug("cloud environment detected", "provider", ProviderAzure)
		return ProviderAzure
	}

	if d.hasAWSSignal() && d.probe(ctx, d.AWSMetadataURL, nil) {
		d.logger().Debug("cloud environment detected", "provider", ProviderAWS)
		return ProviderAWS
	}

	d.logger().Debug("no cloud environment detected")
	return ProviderNone
}

func (d *Detector) hasGCPSignal() bool {
	if _, ok := d.lookupEnv("GOOGLE_APPLICATION_CREDENTIALS"); ok {
		return true
	}
	_, err := os.Stat(d.ServiceAccountTokenFile)
	return err == nil
}

func (d *Detector) hasAzureSignal() bool {
	if _, ok := d.lookupEnv("AZURE_TENANT_ID"); ok {
		return true
	}
	_, ok := d.lookupEnv("AZURE_CLIENT_ID")
	return ok
}

func (d *Detector) hasAWSSignal() bool {
	if _, ok := d.lookupEnv("AWS_ACCESS_KEY_ID"); ok {
		return true
	}
	_, ok := d.lookupEnv("AWS_REGION")
	return ok
}

// probe issues a short GET against a metadata endpoint. Only a 200 response
// confirms the provider.
func (d *Detector) probe(ctx context.Context, url string, headers map[string]string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := d.httpClient().Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

func (d *Detector) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{Timeout: probeTimeout}
}

func (d *Detector) lookupEnv(key string) (string, bool) {
	if d.LookupEnv != nil {
		return d.LookupEnv(key)
	}
	return os.LookupEnv(key)
}

func (d *Detector) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
