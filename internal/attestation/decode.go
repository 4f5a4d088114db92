package attestation

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors
var (
	ErrDecode = errors.New("attestation statement cannot be decoded")
)

// trustedIssuerFragments classifies bundle publishers. Substring matching
// against the issuer is a heuristic label, not certificate-chain validation.
var trustedIssuerFragments = []string{"chainguard", "enforce.dev"}

// Publisher is the bundle publisher metadata, carried verbatim from the
// document.
type Publisher struct {
	Environment string `json:"environment,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Issuer      string `json:"issuer,omitempty"`
	Identity    string `json:"identity,omitempty"`
	Repository  string `json:"repository,omitempty"`
	Workflow    string `json:"workflow,omitempty"`
}

// Subject identifies one attested artifact with its digests.
type Subject struct {
	Name   string            `json:"name"`
	Digest map[string]string `json:"digest,omitempty"`
}

// Verification summarizes an attestation's verification material: the
// certificate's byte length (not the certificate itself) and transparency-log
// entry details.
type Verification struct {
	CertificateLength   int         `json:"certificate_length"`
	TransparencyEntries int         `json:"transparency_entries"`
	LogIndex            json.Number `json:"log_index,omitempty"`
	IntegratedTime      json.Number `json:"integrated_time,omitempty"`
}

// Attestation is one decoded in-toto statement plus its verification
// material. Optional sub-objects stay nil/absent when the document omits
// them.
type Attestation struct {
	Version              int              `json:"version"`
	Subject              []Subject        `json:"subject,omitempty"`
	BuildType            string           `json:"build_type,omitempty"`
	ExternalParameters   map[string]any   `json:"external_parameters,omitempty"`
	InternalParameters   map[string]any   `json:"internal_parameters,omitempty"`
	ResolvedDependencies []map[string]any `json:"resolved_dependencies,omitempty"`
	Builder              map[string]any   `json:"builder,omitempty"`
	Metadata             map[string]any   `json:"metadata,omitempty"`
	Verification         *Verification    `json:"verification,omitempty"`
}

// Bundle groups a publisher with its decoded attestations.
type Bundle struct {
	Publisher    Publisher     `json:"publisher"`
	Attestations []Attestation `json:"attestations"`
}

// Document is a fully decoded provenance document. SkippedAttestations
// counts attestations dropped because their statement could not be decoded;
// one bad attestation never aborts its siblings.
type Document struct {
	Version             int      `json:"version"`
	Bundles             []Bundle `json:"bundles"`
	SkippedAttestations int      `json:"skipped_attestations"`
}

// HasAttestations reports whether any bundle decoded at least one
// attestation.
func (d *Document) HasAttestations() bool {
	for _, b := range d.Bundles {
		if len(b.Attestations) > 0 {
			return true
		}
	}
	return false
}

// IsChainguardOrigin reports whether any bundle's publisher issuer matches
// the trusted-issuer allow-list. Heuristic classification only.
func (d *Document) IsChainguardOrigin() bool {
	for _, b := range d.Bundles {
		if IsTrustedIssuer(b.Publisher.Issuer) {
			return true
		}
	}
	return false
}

// IsTrustedIssuer reports whether issuer contains, case-insensitively, one
// of the trusted issuer domain fragments.
func IsTrustedIssuer(issuer string) bool {
	lower := strings.ToLower(issuer)
	for _, fragment := range trustedIssuerFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// Raw wire shapes of the provenance document.
type rawDocument struct {
	Version            int         `json:"version"`
	AttestationBundles []rawBundle `json:"attestation_bundles"`
}

type rawBundle struct {
	Publisher    Publisher        `json:"publisher"`
	Attestations []rawAttestation `json:"attestations"`
}

type rawAttestation struct {
	Version              int                  `json:"version"`
	Envelope             rawEnvelope          `json:"envelope"`
	VerificationMaterial *verificationMaterial `json:"verification_material"`
}

type rawEnvelope struct {
	Statement string `json:"statement"` // base64-encoded in-toto statement
}

type verificationMaterial struct {
	Certificate         string             `json:"certificate"`
	TransparencyEntries []transparencyEntry `json:"transparency_entries"`
}

type transparencyEntry struct {
	LogIndex       json.Number `json:"logIndex"`
	IntegratedTime json.Number `json:"integratedTime"`
}

// Shape of the decoded in-toto statement.
type rawStatement struct {
	Subject   []Subject `json:"subject"`
	Predicate struct {
		BuildDefinition struct {
			BuildType            string           `json:"buildType"`
			ExternalParameters   map[string]any   `json:"externalParameters"`
			InternalParameters   map[string]any   `json:"internalParameters"`
			ResolvedDependencies []map[string]any `json:"resolvedDependencies"`
		} `json:"buildDefinition"`
		RunDetails struct {
			Builder  map[string]any `json:"builder"`
			Metadata map[string]any `json:"metadata"`
		} `json:"runDetails"`
	} `json:"predicate"`
}

// Decode parses a raw provenance document and decodes every attestation
// statement. Malformed individual attestations are skipped and counted;
// only a malformed top-level document is an error.
func Decode(data []byte) (*Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	doc := &Document{
		Version: raw.Version,
		Bundles: make([]Bundle, 0, len(raw.AttestationBundles)),
	}
	if doc.Version == 0 {
		doc.Version = 1
	}

	for _, rb := range raw.AttestationBundles {
		bundle := Bundle{
			Publisher:    rb.Publisher,
			Attestations: make([]Attestation, 0, len(rb.Attestations)),
		}
		for _, ra := range rb.Attestations {
			att, err := decodeAttestation(ra)
			if err != nil {
				doc.SkippedAttestations++
				continue
			}
			bundle.Attestations = append(bundle.Attestations, att)
		}
		doc.Bundles = append(doc.Bundles, bundle)
	}

	return doc, nil
}

// decodeAttestation decodes one attestation's envelope statement and
// verification material.
func decodeAttestation(ra rawAttestation) (Attestation, error) {
	att := Attestation{Version: ra.Version}
	if att.Version == 0 {
		att.Version = 1
	}

	if ra.Envelope.Statement != "" {
		statementBytes, err := base64.StdEncoding.DecodeString(ra.Envelope.Statement)
		if err != nil {
			return Attestation{}, fmt.Errorf("%w: bad base64 envelope: %v", ErrDecode, err)
		}

		var stmt rawStatement
		if err := json.Unmarshal(statementBytes, &stmt); err != nil {
			return Attestation{}, fmt.Errorf("%w: bad statement JSON: %v", ErrDecode, err)
		}

		att.Subject = stmt.Subject
		att.BuildType = stmt.Predicate.BuildDefinition.BuildType
		att.ExternalParameters = stmt.Predicate.BuildDefinition.ExternalParameters
		att.InternalParameters = stmt.Predicate.BuildDefinition.InternalParameters
		att.ResolvedDependencies = stmt.Predicate.BuildDefinition.ResolvedDependencies
		att.Builder = stmt.Predicate.RunDetails.Builder
		att.Metadata = stmt.Predicate.RunDetails.Metadata
	}

	if vm := ra.VerificationMaterial; vm != nil {
		verification := &Verification{
			CertificateLength:   len(vm.Certificate),
			TransparencyEntries: len(vm.TransparencyEntries),
		}
		if len(vm.TransparencyEntries) > 0 {
			first := vm.TransparencyEntries[0]
			verification.LogIndex = first.LogIndex
			verification.IntegratedTime = first.IntegratedTime
		}
		att.Verification = verification
	}

	return att, nil
}
