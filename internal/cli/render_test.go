package cli

import (
	"strings"
	"testing"

	"github.com/wheelvet-project/wheelvet/internal/service"
	"github.com/wheelvet-project/wheelvet/internal/verifier"
	"github.com/wheelvet-project/wheelvet/internal/wheel"
)

func TestSectionTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"verification_summary", "Verification Summary"},
		{"archive_contents", "Archive Contents"},
		{"digest", "Digest"},
	}
	for _, tt := range tests {
		if got := sectionTitle(tt.in); got != tt.want {
			t.Errorf("sectionTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderSummary(t *testing.T) {
	var sb strings.Builder
	renderSummary(&sb, &verifier.Summary{
		VerifiedCount:   2,
		TotalCount:      2,
		OverallCoverage: 100,
		Packages: []verifier.Record{
			{Name: "flask", Version: "3.1.2", Verified: true, RekorURL: "https://search.sigstore.dev/?logIndex=42"},
			{Name: "click", Version: "8.3.0", Verified: true},
		},
	})

	out := sb.String()
	for _, want := range []string{
		"Verification Summary: 2/2 verified (100% coverage)",
		"All artifacts verified.",
		"✓ flask 3.1.2",
		"https://search.sigstore.dev/?logIndex=42",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderEvidence(t *testing.T) {
	var sb strings.Builder
	renderEvidence(&sb, &service.Evidence{
		Package:   "flask",
		Version:   "3.1.2",
		WheelFile: "flask-3.1.2-py3-none-any.whl",
		Digest: wheel.Digest{
			SHA256:   strings.Repeat("ab", 32),
			RekorURL: "https://search.sigstore.dev/?hash=" + strings.Repeat("ab", 32),
		},
		Manifest:  &wheel.Manifest{TotalFiles: 3, TotalSize: 1024},
		Signature: wheel.SignatureEvidence{},
	})

	out := sb.String()
	for _, want := range []string{
		"flask 3.1.2 (flask-3.1.2-py3-none-any.whl)",
		"Digest",
		"Archive Contents",
		"3 files, 1024 bytes",
		"Detached Signature",
		"Attestations",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestNewApp(t *testing.T) {
	app := NewApp()
	if app.Name != "wheelvet" {
		t.Errorf("Name = %q", app.Name)
	}

	want := map[string]bool{
		"serve": false, "verify": false, "inspect": false,
		"packages": false, "sbom": false, "resolve": false, "runs": false,
	}
	for _, cmd := range app.Commands {
		if _, ok := want[cmd.Name]; ok {
			want[cmd.Name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}
