package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wheelvet.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_Valid(t *testing.T) {
	path := writeConfig(t, `
version: "1"
metadata:
  name: wheelvet
wheels:
  dir: /app/wheels
  site_packages: /usr/lib/python3.11/site-packages
verifier:
  binary: chainver
  parent_org: example.org
  run_timeout: 5m
auth:
  binary: chainctl
evidence:
  integrity_base_url: https://libraries.cgr.dev/python/integrity
storage:
  database_path: /var/lib/wheelvet/runs.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Wheels.Dir != "/app/wheels" {
		t.Errorf("Wheels.Dir = %q, want /app/wheels", cfg.Wheels.Dir)
	}
	if cfg.Verifier.ParentOrg != "example.org" {
		t.Errorf("Verifier.ParentOrg = %q, want example.org", cfg.Verifier.ParentOrg)
	}
	if got := cfg.Verifier.GetRunTimeout(); got != 5*time.Minute {
		t.Errorf("GetRunTimeout() = %v, want 5m", got)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, `
version: "1"
wheels:
  dir: /app/wheels
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Verifier.Binary != "chainver" {
		t.Errorf("Verifier.Binary default = %q, want chainver", cfg.Verifier.Binary)
	}
	if cfg.Auth.Binary != "chainctl" {
		t.Errorf("Auth.Binary default = %q, want chainctl", cfg.Auth.Binary)
	}
	if cfg.Server.ListenAddr != ":5000" {
		t.Errorf("Server.ListenAddr default = %q, want :5000", cfg.Server.ListenAddr)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "missing version",
			content: "wheels:\n  dir: /app/wheels\n",
			wantErr: ErrVersionRequired,
		},
		{
			name:    "missing wheels dir",
			content: "version: \"1\"\n",
			wantErr: ErrWheelsDirRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Load() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "version: [unclosed\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected error for malformed YAML")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestTimeoutDefaults(t *testing.T) {
	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"run", (&VerifierConfig{}).GetRunTimeout(), DefaultRunTimeout},
		{"verbose", (&VerifierConfig{}).GetVerboseTimeout(), DefaultVerboseTimeout},
		{"status", (&AuthConfig{}).GetStatusTimeout(), DefaultStatusTimeout},
		{"fetch", (&EvidenceConfig{}).GetFetchTimeout(), DefaultFetchTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("timeout = %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestTimeoutBadDuration(t *testing.T) {
	v := &VerifierConfig{RunTimeout: "not-a-duration"}
	if got := v.GetRunTimeout(); got != DefaultRunTimeout {
		t.Errorf("GetRunTimeout() = %v, want default %v", got, DefaultRunTimeout)
	}
}
