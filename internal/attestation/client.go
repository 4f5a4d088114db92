// Package attestation fetches and decodes PEP 740 attestation bundles from
// the package integrity endpoint, turning signed provenance documents into
// structured build evidence records.
package attestation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wheelvet-project/wheelvet/internal/netrc"
)

const (
	// DefaultBaseURL is the default integrity API base URL.
	DefaultBaseURL = "https://libraries.cgr.dev/python/integrity"

	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultUserAgent is the default User-Agent header.
	DefaultUserAgent = "wheelvet/1.0"

	// maxProvenanceBytes bounds the response body read.
	maxProvenanceBytes = 32 << 20 // 32MB
)

// Sentinel errors
var (
	ErrProvenanceNotFound = errors.New("provenance not found")
	ErrInvalidResponse    = errors.New("invalid provenance response")
	ErrNoCredentials      = errors.New("no credentials available for integrity endpoint")
)

// ErrAPIError represents an API-specific error.
type ErrAPIError struct {
	StatusCode int
	Message    string
	Package    string
}

func (e ErrAPIError) Error() string {
	if e.Package != "" {
		return fmt.Sprintf("integrity API error for package %s: %d %s", e.Package, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("integrity API error: %d %s", e.StatusCode, e.Message)
}

func (e ErrAPIError) Is(target error) bool {
	if target == ErrProvenanceNotFound && e.StatusCode == 404 {
		return true
	}
	if target == ErrInvalidResponse && e.StatusCode >= 400 && e.StatusCode < 500 {
		return true
	}
	return false
}

// HTTPClient defines the interface for HTTP operations.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// CredentialSource supplies login credentials for a host.
type CredentialSource interface {
	Credentials(host string) (netrc.Credentials, error)
}

// NetrcSource reads credentials from a netrc file.
type NetrcSource struct {
	Path string
}

// Credentials looks up the host in the configured netrc file.
func (n NetrcSource) Credentials(host string) (netrc.Credentials, error) {
	path := n.Path
	if path == "" {
		path = netrc.DefaultPath()
	}
	return netrc.Lookup(path, host)
}

// Config holds configuration for the integrity client.
type Config struct {
	BaseURL     string
	UserAgent   string
	Timeout     time.Duration
	HTTPClient  HTTPClient
	Credentials CredentialSource
}

// DefaultConfig returns a default configuration reading credentials from the
// user's netrc.
func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		UserAgent:   DefaultUserAgent,
		Timeout:     DefaultTimeout,
		HTTPClient:  &http.Client{Timeout: DefaultTimeout},
		Credentials: NetrcSource{},
	}
}

// Client fetches provenance documents from the integrity endpoint.
type Client struct {
	config Config
}

// NewClient creates an integrity API client, filling unset config fields
// with defaults.
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.Timeout}
	}
	if config.Credentials == nil {
		config.Credentials = NetrcSource{}
	}
	return &Client{config: config}
}

// NormalizePackageName converts a wheel-style package name to the PyPI
// normalized form the integrity API expects (underscores become hyphens).
func NormalizePackageName(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}

// ProvenanceURL builds the provenance document URL for one wheel.
func (c *Client) ProvenanceURL(pkg, version, wheelFilename string) (string, error) {
	return url.JoinPath(c.config.BaseURL, NormalizePackageName(pkg), version, wheelFilename, "provenance")
}

// FetchProvenance retrieves the raw provenance document for a wheel using
// basic auth credentials for the endpoint host.
func (c *Client) FetchProvenance(ctx context.Context, pkg, version, wheelFilename string) ([]byte, string, error) {
	provURL, err := c.ProvenanceURL(pkg, version, wheelFilename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to construct provenance URL: %w", err)
	}

	parsed, err := url.Parse(provURL)
	if err != nil {
		return nil, "", fmt.Errorf("bad provenance URL %s: %w", provURL, err)
	}

	creds, err := c.config.Credentials.Credentials(parsed.Host)
	if err != nil {
		return nil, provURL, fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provURL, nil)
	if err != nil {
		return nil, provURL, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.SetBasicAuth(creds.Login, creds.Password)

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return nil, provURL, fmt.Errorf("failed to fetch provenance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provURL, ErrAPIError{
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
			Package:    pkg,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProvenanceBytes))
	if err != nil {
		return nil, provURL, fmt.Errorf("failed to read provenance body: %w", err)
	}

	return body, provURL, nil
}
