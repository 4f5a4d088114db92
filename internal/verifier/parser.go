package verifier

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Verification methods reported on records.
const (
	MethodNone      = "none"
	MethodSignature = "signature"
)

// Record is the canonical verification result for one package.
type Record struct {
	Name               string `json:"name"`
	Version            string `json:"version"`
	Verified           bool   `json:"verified"`
	VerificationMethod string `json:"verification_method"`
	RekorURL           string `json:"rekor_url,omitempty"`
	Details            string `json:"details"`
}

// Summary aggregates one verification run.
type Summary struct {
	VerifiedCount    int      `json:"verified_count"`
	TotalCount       int      `json:"total_count"`
	OverallCoverage  float64  `json:"overall_coverage"`
	ArtifactCoverage float64  `json:"artifact_coverage"`
	Details          string   `json:"details"`
	Packages         []Record `json:"packages"`
}

// fullCoverage is the exact score the tool reports for a fully verified
// artifact. This is a discrete 0/100 signal, not a threshold.
const fullCoverage = 100

// FullCoverage reports whether every artifact in the run verified. The tool
// emits exactly 100 for a clean run, so this is an equality check, not a
// threshold comparison.
func (s *Summary) FullCoverage() bool {
	return s.OverallCoverage == fullCoverage
}

// rawOutput covers both output shapes the tool has produced over time:
// the per-artifact shape ("results") and the legacy nested shape
// ("nestedResults").
type rawOutput struct {
	OverallVerificationCoverage  *float64      `json:"overallVerificationCoverage"`
	ArtifactVerificationCoverage *float64      `json:"artifactVerificationCoverage"`
	Details                      string        `json:"details"`
	Results                      []rawArtifact `json:"results"`
	NestedResults                []rawNested   `json:"nestedResults"`
}

type rawArtifact struct {
	Artifact                     string  `json:"artifact"`
	ArtifactVerificationCoverage float64 `json:"artifactVerificationCoverage"`
	Details                      string  `json:"details"`
}

type rawNested struct {
	Coordinates          string  `json:"coordinates"`
	Path                 string  `json:"path"`
	VerificationCoverage float64 `json:"verificationCoverage"`
	VerificationMethod   string  `json:"verificationMethod"`
	Details              string  `json:"details"`
}

var (
	rekorEntryURLRe = regexp.MustCompile(`(https://rekor\.sigstore\.dev/api/v1/log/entries/\?logIndex=\d+)`)
	rekorLogIndexRe = regexp.MustCompile(`logIndex[=:\s]+(\d+)`)
)

// Parse normalizes the tool's raw JSON output into a Summary. Empty result
// lists are valid and yield zero records; malformed JSON is an error.
func Parse(data []byte) (*Summary, error) {
	var raw rawOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	summary := &Summary{
		Details:  raw.Details,
		Packages: []Record{},
	}
	if raw.ArtifactVerificationCoverage != nil {
		summary.ArtifactCoverage = *raw.ArtifactVerificationCoverage
	}
	if raw.OverallVerificationCoverage != nil {
		summary.OverallCoverage = *raw.OverallVerificationCoverage
	} else {
		summary.OverallCoverage = summary.ArtifactCoverage
	}

	if len(raw.Results) > 0 {
		parseArtifactResults(raw.Results, summary)
	} else {
		parseNestedResults(raw.NestedResults, summary)
	}

	return summary, nil
}

// parseArtifactResults handles the per-artifact shape, where each result is
// one wheel file.
func parseArtifactResults(results []rawArtifact, summary *Summary) {
	summary.TotalCount = len(results)

	for _, artifact := range results {
		name, version := splitWheelFilename(path.Base(artifact.Artifact))

		verified := artifact.ArtifactVerificationCoverage == fullCoverage
		if verified {
			summary.VerifiedCount++
		}

		method := MethodNone
		if verified {
			method = MethodSignature
		}

		summary.Packages = append(summary.Packages, Record{
			Name:               name,
			Version:            version,
			Verified:           verified,
			VerificationMethod: method,
			RekorURL:           extractRekorURL(artifact.Details, verified),
			Details:            artifact.Details,
		})
	}
}

// parseNestedResults handles the legacy nested shape produced by
// site-packages analysis, where each result carries a "name==version"
// coordinates string.
func parseNestedResults(results []rawNested, summary *Summary) {
	summary.TotalCount = len(results)

	for _, pkg := range results {
		var name, version string
		if before, after, found := strings.Cut(pkg.Coordinates, "=="); found {
			name, version = before, after
		} else {
			name = pkg.Path
			if name == "" {
				name = "Unknown"
			}
		}

		verified := pkg.VerificationCoverage == fullCoverage
		if verified {
			summary.VerifiedCount++
		}

		method := pkg.VerificationMethod
		if method == "" {
			method = MethodNone
		}

		summary.Packages = append(summary.Packages, Record{
			Name:               name,
			Version:            version,
			Verified:           verified,
			VerificationMethod: method,
			RekorURL:           extractRekorURL(pkg.Details, verified),
			Details:            pkg.Details,
		})
	}
}

// splitWheelFilename derives package name and version from a wheel filename
// like "flask-3.1.2-py3-none-any.whl". Fewer than two dash-separated
// segments yields the whole stripped name and an empty version.
func splitWheelFilename(filename string) (name, version string) {
	if !strings.HasSuffix(filename, ".whl") {
		return filename, ""
	}

	stripped := strings.TrimSuffix(filename, ".whl")
	parts := strings.Split(stripped, "-")
	if len(parts) >= 2 {
		return parts[0], parts[1]
	}
	return stripped, ""
}

// extractRekorURL pulls a transparency-log URL out of free-text details.
// A full entry URL wins; otherwise a bare log index is turned into a search
// URL. Absence of both is ordinary.
func extractRekorURL(details string, verified bool) string {
	if !verified || !strings.Contains(details, "rekor.sigstore.dev") {
		return ""
	}

	if m := rekorEntryURLRe.FindStringSubmatch(details); m != nil {
		return m[1]
	}
	if m := rekorLogIndexRe.FindStringSubmatch(details); m != nil {
		return fmt.Sprintf("https://search.sigstore.dev/?logIndex=%s", m[1])
	}
	return ""
}
