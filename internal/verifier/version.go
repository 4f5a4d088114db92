package verifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// versionProbeTimeout bounds the --version invocation.
const versionProbeTimeout = 5 * time.Second

var versionRe = regexp.MustCompile(`v?(\d+\.\d+\.\d+)`)

// VersionCheck reports the installed verifier version against a configured
// minimum. A too-old verifier is surfaced to operators, not treated as
// fatal.
type VersionCheck struct {
	Installed  string `json:"installed"`
	Minimum    string `json:"minimum,omitempty"`
	Sufficient bool   `json:"sufficient"`
}

// CheckVersion probes the verifier binary's version and compares it against
// minimum (empty minimum means any version is sufficient).
func (r *Runner) CheckVersion(ctx context.Context, minimum string) (VersionCheck, error) {
	probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()

	stdout, stderr, err := r.runner.Run(probeCtx, r.binary, "--version")
	if err != nil {
		return VersionCheck{}, fmt.Errorf("failed to probe %s version: %w", r.binary, err)
	}

	output := strings.TrimSpace(string(stdout))
	if output == "" {
		output = strings.TrimSpace(string(stderr))
	}

	m := versionRe.FindStringSubmatch(output)
	if m == nil {
		return VersionCheck{}, fmt.Errorf("%w: no version in %q", ErrMalformedOutput, output)
	}

	check := VersionCheck{Installed: m[1], Minimum: minimum, Sufficient: true}
	if minimum == "" {
		return check, nil
	}

	installed, err := semver.NewVersion(m[1])
	if err != nil {
		return VersionCheck{}, fmt.Errorf("invalid installed version %q: %w", m[1], err)
	}
	constraint, err := semver.NewConstraint(">= " + minimum)
	if err != nil {
		return VersionCheck{}, fmt.Errorf("invalid minimum version %q: %w", minimum, err)
	}

	check.Sufficient = constraint.Check(installed)
	return check, nil
}
