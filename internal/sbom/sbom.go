// Package sbom reads PEP 770 SBOM documents shipped inside installed
// packages' dist-info directories and extracts their provenance facts.
package sbom

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

// Sentinel errors
var (
	ErrPackageNotFound = errors.New("package not found in site-packages")
	ErrSBOMNotFound    = errors.New("package has no SBOM")
	ErrMalformedSBOM   = errors.New("SBOM document is not valid JSON")
)

// sbomRelPath is where PEP 770 places the SBOM inside a dist-info dir.
const sbomRelPath = "sboms/sbom.spdx.json"

// downloadLocationRe extracts the repo URL and commit from an SPDX
// downloadLocation like "git+https://github.com/pallets/flask@<40 hex>".
var downloadLocationRe = regexp.MustCompile(`git\+(https?://[^@]+)@([a-f0-9]{40})`)

// Store reads SBOMs out of a site-packages directory.
type Store struct {
	sitePackages string
}

// NewStore creates a store over the given site-packages directory.
func NewStore(sitePackages string) *Store {
	return &Store{sitePackages: sitePackages}
}

// FindDistInfo locates the dist-info directory for a package. When several
// versions are installed the highest PEP 440 version wins.
func (s *Store) FindDistInfo(name string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.sitePackages, name+"-*.dist-info"))
	if err != nil {
		return "", fmt.Errorf("bad dist-info pattern for %s: %w", name, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s", ErrPackageNotFound, name)
	}
	if len(matches) == 1 {
		return matches[0], nil
	}

	sort.Slice(matches, func(i, j int) bool {
		vi, erri := pep440.Parse(distInfoVersion(matches[i]))
		vj, errj := pep440.Parse(distInfoVersion(matches[j]))
		if erri != nil || errj != nil {
			return matches[i] < matches[j]
		}
		return vi.LessThan(vj)
	})
	return matches[len(matches)-1], nil
}

// LoadDocument reads and parses the SBOM for a package into a generic JSON
// document, preserving fields this service does not model.
func (s *Store) LoadDocument(name string) (map[string]any, error) {
	distInfo, err := s.FindDistInfo(name)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(distInfo, sbomRelPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSBOMNotFound, name)
		}
		return nil, fmt.Errorf("failed to read SBOM %s: %w", path, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedSBOM, path, err)
	}
	return doc, nil
}

// SourceInfos returns the sourceInfo strings of every package entry in an
// SBOM document, keyed by entry index.
func SourceInfos(doc map[string]any) map[int]string {
	out := make(map[int]string)
	packages, ok := doc["packages"].([]any)
	if !ok {
		return out
	}
	for i, p := range packages {
		entry, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if si, ok := entry["sourceInfo"].(string); ok && si != "" {
			out[i] = si
		}
	}
	return out
}

// AttachResolution annotates one package entry of an SBOM document with a
// resolved commit SHA. The resolved flag makes the object-ID fallback
// explicit to consumers rendering commit links.
func AttachResolution(doc map[string]any, index int, commitSHA string, resolved bool) {
	packages, ok := doc["packages"].([]any)
	if !ok || index < 0 || index >= len(packages) {
		return
	}
	entry, ok := packages[index].(map[string]any)
	if !ok {
		return
	}
	entry["_resolved_commit_sha"] = commitSHA
	entry["_commit_resolved"] = resolved
}

// Provenance summarizes the supply-chain facts of one package's SBOM.
type Provenance struct {
	HasSBOM    bool     `json:"has_sbom"`
	Creator    string   `json:"creator,omitempty"`
	Created    string   `json:"created,omitempty"`
	Patches    []string `json:"patches,omitempty"`
	SourceRepo string   `json:"source_repo,omitempty"`
	CommitID   string   `json:"commit_id,omitempty"`
}

// sbomFacts is the typed subset of an SPDX document used for provenance
// extraction.
type sbomFacts struct {
	CreationInfo struct {
		Creators []string `json:"creators"`
		Created  string   `json:"created"`
	} `json:"creationInfo"`
	Packages []struct {
		Name             string `json:"name"`
		SourceInfo       string `json:"sourceInfo"`
		DownloadLocation string `json:"downloadLocation"`
	} `json:"packages"`
}

// ExtractProvenance pulls creator, patch, and source-location facts from a
// package's SBOM. A missing SBOM yields nil, not an error, so inventory
// listings degrade gracefully.
func (s *Store) ExtractProvenance(name string) (*Provenance, error) {
	distInfo, err := s.FindDistInfo(name)
	if err != nil {
		if errors.Is(err, ErrPackageNotFound) {
			return nil, nil
		}
		return nil, err
	}

	path := filepath.Join(distInfo, sbomRelPath)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read SBOM %s: %w", path, err)
	}

	var facts sbomFacts
	if err := json.Unmarshal(data, &facts); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedSBOM, path, err)
	}

	prov := &Provenance{HasSBOM: true}
	prov.Creator = strings.Join(facts.CreationInfo.Creators, ", ")
	prov.Created = facts.CreationInfo.Created

	for _, pkg := range facts.Packages {
		if pkg.Name != name {
			continue
		}
		prov.Patches = parsePatches(pkg.SourceInfo)
		if m := downloadLocationRe.FindStringSubmatch(pkg.DownloadLocation); m != nil {
			prov.SourceRepo = m[1]
			prov.CommitID = m[2]
		}
		break
	}

	return prov, nil
}

// parsePatches returns the comma-separated patch list after the "patches:"
// marker of a sourceInfo string.
func parsePatches(sourceInfo string) []string {
	_, after, found := strings.Cut(sourceInfo, "patches:")
	if !found {
		return nil
	}
	var patches []string
	for _, p := range strings.Split(after, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patches = append(patches, p)
		}
	}
	return patches
}

// distInfoVersion extracts the version segment from a dist-info directory
// name like ".../flask-3.1.2.dist-info".
func distInfoVersion(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), ".dist-info")
	if i := strings.LastIndex(base, "-"); i >= 0 {
		return base[i+1:]
	}
	return ""
}
