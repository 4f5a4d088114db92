package sbom

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

// skippedPackages are tooling packages excluded from evidence listings.
var skippedPackages = map[string]bool{
	"pip":        true,
	"setuptools": true,
}

// InstalledPackage is one entry of the site-packages inventory.
type InstalledPackage struct {
	Name         string      `json:"name"`
	Version      string      `json:"version"`
	ValidVersion bool        `json:"valid_version"`
	Provenance   *Provenance `json:"provenance"`
}

// Inventory enumerates the installed packages with their SBOM provenance
// summaries, sorted by name. pip and setuptools are skipped.
func (s *Store) Inventory() ([]InstalledPackage, error) {
	matches, err := filepath.Glob(filepath.Join(s.sitePackages, "*.dist-info"))
	if err != nil {
		return nil, fmt.Errorf("bad dist-info glob in %s: %w", s.sitePackages, err)
	}

	packages := make([]InstalledPackage, 0, len(matches))
	for _, distInfo := range matches {
		name, version := splitDistInfoName(distInfo)
		if name == "" || skippedPackages[name] {
			continue
		}

		pkg := InstalledPackage{Name: name, Version: version}
		if _, err := pep440.Parse(version); err == nil {
			pkg.ValidVersion = true
		}

		prov, err := s.ExtractProvenance(name)
		if err != nil {
			return nil, fmt.Errorf("failed to extract provenance for %s: %w", name, err)
		}
		pkg.Provenance = prov

		packages = append(packages, pkg)
	}

	sort.Slice(packages, func(i, j int) bool {
		return packages[i].Name < packages[j].Name
	})
	return packages, nil
}

// splitDistInfoName splits a dist-info directory name into package name and
// version.
func splitDistInfoName(path string) (name, version string) {
	base := strings.TrimSuffix(filepath.Base(path), ".dist-info")
	i := strings.LastIndex(base, "-")
	if i <= 0 {
		return base, ""
	}
	return base[:i], base[i+1:]
}
