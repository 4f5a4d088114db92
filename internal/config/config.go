// Package config provides configuration management for the wheel evidence
// service. It handles YAML-based configuration including wheel storage paths,
// verifier invocation settings, and evidence-source endpoints.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Sentinel errors for configuration validation
var (
	ErrVersionRequired     = errors.New("version is required")
	ErrWheelsDirRequired   = errors.New("wheels_dir is required")
	ErrVerifierBinRequired = errors.New("verifier binary is required")
	ErrAuthBinRequired     = errors.New("auth binary is required")
	ErrBaseURLRequired     = errors.New("integrity base_url is required")
)

// Config represents the top-level configuration structure.
type Config struct {
	Version  string         `yaml:"version"`
	Metadata Metadata       `yaml:"metadata"`
	Server   ServerConfig   `yaml:"server"`
	Wheels   WheelsConfig   `yaml:"wheels"`
	Verifier VerifierConfig `yaml:"verifier"`
	Auth     AuthConfig     `yaml:"auth"`
	Evidence EvidenceConfig `yaml:"evidence"`
	Storage  StorageConfig  `yaml:"storage"`
}

// Metadata represents metadata about the configuration.
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Updated     string `yaml:"updated"`
}

// ServerConfig represents HTTP listener configuration.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// WheelsConfig represents the local wheel archive store.
type WheelsConfig struct {
	Dir          string `yaml:"dir"`
	SitePackages string `yaml:"site_packages"`
	KeyringPath  string `yaml:"keyring_path"` // armored public keys for .asc evidence, optional
}

// VerifierConfig represents settings for the external verification tool.
type VerifierConfig struct {
	Binary         string `yaml:"binary"`
	ParentOrg      string `yaml:"parent_org"`
	MinimumVersion string `yaml:"minimum_version"`
	RunTimeout     string `yaml:"run_timeout"`
	VerboseTimeout string `yaml:"verbose_timeout"`
}

// AuthConfig represents settings for the authentication CLI.
type AuthConfig struct {
	Binary        string `yaml:"binary"`
	StatusTimeout string `yaml:"status_timeout"`
}

// EvidenceConfig represents remote evidence-source settings.
type EvidenceConfig struct {
	IntegrityBaseURL string `yaml:"integrity_base_url"`
	NetrcPath        string `yaml:"netrc_path"`
	FetchTimeout     string `yaml:"fetch_timeout"`
}

// StorageConfig represents run-history storage configuration.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// Default timeouts used when the config omits or mangles a duration string.
const (
	DefaultRunTimeout     = 300 * time.Second
	DefaultVerboseTimeout = 60 * time.Second
	DefaultStatusTimeout  = 5 * time.Second
	DefaultFetchTimeout   = 10 * time.Second
)

// GetRunTimeout parses and returns the full verification run timeout.
func (v *VerifierConfig) GetRunTimeout() time.Duration {
	return parseDurationOr(v.RunTimeout, DefaultRunTimeout)
}

// GetVerboseTimeout parses and returns the verbose run timeout.
func (v *VerifierConfig) GetVerboseTimeout() time.Duration {
	return parseDurationOr(v.VerboseTimeout, DefaultVerboseTimeout)
}

// GetStatusTimeout parses and returns the auth status probe timeout.
func (a *AuthConfig) GetStatusTimeout() time.Duration {
	return parseDurationOr(a.StatusTimeout, DefaultStatusTimeout)
}

// GetFetchTimeout parses and returns the attestation fetch timeout.
func (e *EvidenceConfig) GetFetchTimeout() time.Duration {
	return parseDurationOr(e.FetchTimeout, DefaultFetchTimeout)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// ApplyDefaults fills in fields that have sensible defaults so a minimal
// config file stays short. Called before Validate.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":5000"
	}
	if c.Verifier.Binary == "" {
		c.Verifier.Binary = "chainver"
	}
	if c.Auth.Binary == "" {
		c.Auth.Binary = "chainctl"
	}
	if c.Evidence.IntegrityBaseURL == "" {
		c.Evidence.IntegrityBaseURL = "https://libraries.cgr.dev/python/integrity"
	}
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	if c.Version == "" {
		return ErrVersionRequired
	}
	if c.Wheels.Dir == "" {
		return ErrWheelsDirRequired
	}
	if c.Verifier.Binary == "" {
		return ErrVerifierBinRequired
	}
	if c.Auth.Binary == "" {
		return ErrAuthBinRequired
	}
	if c.Evidence.IntegrityBaseURL == "" {
		return ErrBaseURLRequired
	}
	return nil
}

// Load reads and parses a configuration file, applying defaults before
// validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
