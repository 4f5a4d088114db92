// Package gitresolve turns source-control references embedded in SBOM
// provenance text into concrete commit identifiers. SBOMs record the tag
// *object* ID, which for annotated tags is not the commit SHA; links built
// from it point nowhere until the tag is dereferenced.
package gitresolve

import (
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors
var (
	ErrNoSourceRef = errors.New("no source reference found in provenance text")
)

// SourceReference is the repository/tag/object triple parsed out of a
// free-text sourceInfo string.
type SourceReference struct {
	RepoURL  string `json:"repo_url"`
	TagName  string `json:"tag_name"`
	ObjectID string `json:"object_id"` // 40-char hex, tag object or commit
}

// sourceInfoRe matches provenance strings of the shape
// "git+https://github.com/pallets/click ... tag: 8.3.0 ... commit id: <40 hex>".
// Free-text parsing is brittle; every shape change belongs here and nowhere
// else.
var sourceInfoRe = regexp.MustCompile(`(?i)git\+(https?://[^\s,]+).*?tag:\s*([^,\s]+).*?commit\s+id:\s*([a-f0-9]{40})`)

// ParseSourceInfo extracts a SourceReference from a provenance string.
func ParseSourceInfo(s string) (SourceReference, error) {
	m := sourceInfoRe.FindStringSubmatch(s)
	if m == nil {
		return SourceReference{}, fmt.Errorf("%w: %q", ErrNoSourceRef, truncate(s, 120))
	}
	return SourceReference{
		RepoURL:  m[1],
		TagName:  m[2],
		ObjectID: m[3],
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
