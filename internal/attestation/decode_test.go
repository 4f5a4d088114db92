package attestation

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
)

// buildStatement returns a base64-encoded in-toto statement.
func buildStatement(t *testing.T) string {
	t.Helper()
	stmt := map[string]any{
		"subject": []map[string]any{
			{"name": "flask-3.1.2-py3-none-any.whl", "digest": map[string]string{"sha256": "abc123"}},
		},
		"predicate": map[string]any{
			"buildDefinition": map[string]any{
				"buildType":          "https://slsa.dev/container-based-build/v0.1",
				"externalParameters": map[string]any{"source": "https://github.com/pallets/flask"},
				"internalParameters": map[string]any{"builderImage": "builder:latest"},
				"resolvedDependencies": []map[string]any{
					{"uri": "git+https://github.com/pallets/flask", "digest": map[string]string{"gitCommit": "deadbeef"}},
				},
			},
			"runDetails": map[string]any{
				"builder":  map[string]any{"id": "https://builder.example/v1", "version": map[string]string{"build": "1.2.3"}},
				"metadata": map[string]any{"invocationId": "run-42", "startedOn": "2025-01-01T00:00:00Z"},
			},
		},
	}
	data, err := json.Marshal(stmt)
	if err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(data)
}

func buildDocument(t *testing.T, statements ...string) []byte {
	t.Helper()
	atts := make([]map[string]any, 0, len(statements))
	for _, s := range statements {
		atts = append(atts, map[string]any{
			"version":  1,
			"envelope": map[string]any{"statement": s},
			"verification_material": map[string]any{
				"certificate": "MIICertBytes",
				"transparency_entries": []map[string]any{
					{"logIndex": 123456, "integratedTime": 1735689600},
				},
			},
		})
	}
	doc := map[string]any{
		"version": 1,
		"attestation_bundles": []map[string]any{
			{
				"publisher": map[string]any{
					"kind":   "GitHub",
					"issuer": "https://issuer.enforce.dev",
				},
				"attestations": atts,
			},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestDecode_WellFormed(t *testing.T) {
	doc, err := Decode(buildDocument(t, buildStatement(t)))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if len(doc.Bundles) != 1 {
		t.Fatalf("bundles = %d, want 1", len(doc.Bundles))
	}
	if doc.SkippedAttestations != 0 {
		t.Errorf("SkippedAttestations = %d, want 0", doc.SkippedAttestations)
	}

	bundle := doc.Bundles[0]
	if bundle.Publisher.Issuer != "https://issuer.enforce.dev" {
		t.Errorf("Publisher.Issuer = %q", bundle.Publisher.Issuer)
	}
	if len(bundle.Attestations) != 1 {
		t.Fatalf("attestations = %d, want 1", len(bundle.Attestations))
	}

	att := bundle.Attestations[0]
	if len(att.Subject) != 1 || att.Subject[0].Name != "flask-3.1.2-py3-none-any.whl" {
		t.Errorf("Subject = %+v", att.Subject)
	}
	if att.Subject[0].Digest["sha256"] != "abc123" {
		t.Errorf("Subject digest = %v", att.Subject[0].Digest)
	}
	if att.BuildType != "https://slsa.dev/container-based-build/v0.1" {
		t.Errorf("BuildType = %q", att.BuildType)
	}
	if len(att.ResolvedDependencies) != 1 {
		t.Errorf("ResolvedDependencies = %+v", att.ResolvedDependencies)
	}
	if att.Builder["id"] != "https://builder.example/v1" {
		t.Errorf("Builder = %+v", att.Builder)
	}
	if att.Metadata["invocationId"] != "run-42" {
		t.Errorf("Metadata = %+v", att.Metadata)
	}

	if att.Verification == nil {
		t.Fatal("Verification = nil")
	}
	if att.Verification.CertificateLength != len("MIICertBytes") {
		t.Errorf("CertificateLength = %d", att.Verification.CertificateLength)
	}
	if att.Verification.TransparencyEntries != 1 {
		t.Errorf("TransparencyEntries = %d, want 1", att.Verification.TransparencyEntries)
	}
	if att.Verification.LogIndex.String() != "123456" {
		t.Errorf("LogIndex = %v", att.Verification.LogIndex)
	}
}

func TestDecode_MalformedSiblingIsolated(t *testing.T) {
	doc, err := Decode(buildDocument(t, buildStatement(t), "!!!not-base64!!!"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if doc.SkippedAttestations != 1 {
		t.Errorf("SkippedAttestations = %d, want 1", doc.SkippedAttestations)
	}
	if got := len(doc.Bundles[0].Attestations); got != 1 {
		t.Errorf("decoded attestations = %d, want 1", got)
	}
}

func TestDecode_BadInnerJSONSkipped(t *testing.T) {
	notJSON := base64.StdEncoding.EncodeToString([]byte("plain text, not a statement"))
	doc, err := Decode(buildDocument(t, notJSON))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if doc.SkippedAttestations != 1 {
		t.Errorf("SkippedAttestations = %d, want 1", doc.SkippedAttestations)
	}
}

func TestDecode_TopLevelMalformed(t *testing.T) {
	_, err := Decode([]byte(`{"attestation_bundles": [`))
	if !errors.Is(err, ErrDecode) {
		t.Errorf("Decode() error = %v, want ErrDecode", err)
	}
}

func TestDecode_MissingOptionalSubObjects(t *testing.T) {
	data := []byte(`{
		"version": 1,
		"attestation_bundles": [
			{"publisher": {"kind": "GitHub"}, "attestations": [{"version": 1}]}
		]
	}`)

	doc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	att := doc.Bundles[0].Attestations[0]
	if att.Verification != nil {
		t.Errorf("Verification = %+v, want nil when absent", att.Verification)
	}
	if att.Subject != nil || att.Builder != nil || att.Metadata != nil {
		t.Errorf("optional fields populated without statement: %+v", att)
	}
}

func TestIsTrustedIssuer(t *testing.T) {
	tests := []struct {
		issuer string
		want   bool
	}{
		{"https://issuer.enforce.dev", true},
		{"https://token.chainguard.example", true},
		{"HTTPS://ISSUER.ENFORCE.DEV", true},
		{"https://token.actions.githubusercontent.com", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.issuer, func(t *testing.T) {
			if got := IsTrustedIssuer(tt.issuer); got != tt.want {
				t.Errorf("IsTrustedIssuer(%q) = %v, want %v", tt.issuer, got, tt.want)
			}
		})
	}
}

func TestDocument_IsChainguardOrigin(t *testing.T) {
	doc := &Document{Bundles: []Bundle{
		{Publisher: Publisher{Issuer: "https://token.actions.githubusercontent.com"}},
		{Publisher: Publisher{Issuer: "https://issuer.enforce.dev"}},
	}}
	if !doc.IsChainguardOrigin() {
		t.Error("IsChainguardOrigin() = false, want true when any bundle matches")
	}
}
