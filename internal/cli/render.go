package cli

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/wheelvet-project/wheelvet/internal/service"
	"github.com/wheelvet-project/wheelvet/internal/verifier"
)

var titler = cases.Title(language.English)

// sectionTitle renders a snake_case field name as a human heading.
func sectionTitle(name string) string {
	return titler.String(strings.ReplaceAll(name, "_", " "))
}

func renderSummary(w io.Writer, s *verifier.Summary) {
	fmt.Fprintf(w, "%s: %d/%d verified (%.0f%% coverage)\n",
		sectionTitle("verification_summary"), s.VerifiedCount, s.TotalCount, s.OverallCoverage)
	if s.FullCoverage() {
		fmt.Fprintln(w, "All artifacts verified.")
	}
	for _, pkg := range s.Packages {
		mark := "✗"
		if pkg.Verified {
			mark = "✓"
		}
		fmt.Fprintf(w, "  %s %s %s", mark, pkg.Name, pkg.Version)
		if pkg.RekorURL != "" {
			fmt.Fprintf(w, "  %s", pkg.RekorURL)
		}
		fmt.Fprintln(w)
	}
}

func renderEvidence(w io.Writer, ev *service.Evidence) {
	fmt.Fprintf(w, "%s %s (%s)\n", ev.Package, ev.Version, ev.WheelFile)
	if ev.Ambiguous {
		fmt.Fprintln(w, "  warning: multiple wheels matched, evidence is for the first match")
	}

	fmt.Fprintf(w, "\n%s\n", sectionTitle("digest"))
	fmt.Fprintf(w, "  sha256: %s\n", ev.Digest.SHA256)
	fmt.Fprintf(w, "  rekor:  %s\n", ev.Digest.RekorURL)

	if ev.Manifest != nil {
		fmt.Fprintf(w, "\n%s\n", sectionTitle("archive_contents"))
		fmt.Fprintf(w, "  %d files, %d bytes\n", ev.Manifest.TotalFiles, ev.Manifest.TotalSize)
	}

	fmt.Fprintf(w, "\n%s\n", sectionTitle("detached_signature"))
	switch {
	case !ev.Signature.Present:
		fmt.Fprintln(w, "  none")
	case ev.Signature.Verified:
		fmt.Fprintf(w, "  verified (%s)\n", ev.Signature.SigFile)
	default:
		fmt.Fprintf(w, "  present but not verified: %s\n", ev.Signature.Error)
	}

	fmt.Fprintf(w, "\n%s\n", sectionTitle("attestations"))
	if ev.Attestations == nil || !ev.Attestations.HasAttestations() {
		fmt.Fprintln(w, "  none")
		return
	}
	if ev.Attestations.IsChainguardOrigin() {
		fmt.Fprintln(w, "  origin: Chainguard")
	}
	for _, bundle := range ev.Attestations.Bundles {
		fmt.Fprintf(w, "  publisher %s (%s): %d attestation(s)\n",
			bundle.Publisher.Kind, bundle.Publisher.Issuer, len(bundle.Attestations))
	}
	if skipped := ev.Attestations.SkippedAttestations; skipped > 0 {
		fmt.Fprintf(w, "  %d malformed attestation(s) skipped\n", skipped)
	}
}
