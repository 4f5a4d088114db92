// Package wheel inspects Python wheel archives on disk: locating them by
// name/version, computing content digests for transparency-log lookups, and
// extracting their internal file listing.
package wheel

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Sentinel errors
var (
	ErrWheelNotFound     = errors.New("wheel file not found")
	ErrMalformedArchive  = errors.New("wheel is not a valid zip archive")
	ErrNameRequired      = errors.New("package name cannot be empty")
	ErrVersionRequired   = errors.New("package version cannot be empty")
)

// Location identifies a wheel file matched by a name/version pattern.
// When more than one file matches, Path is the first lexical match and
// Ambiguous is set so callers can surface the multi-artifact case instead
// of silently trusting the pick.
type Location struct {
	Path       string
	Filename   string
	Ambiguous  bool
	Candidates []string
}

// Find locates the wheel for a package in dir by glob pattern
// {name}-{version}-*.whl. Wheel filenames escape hyphens in the package name
// to underscores, so a hyphenated name that misses is retried with the
// escaped form. The first lexical match wins.
func Find(dir, name, version string) (Location, error) {
	if name == "" {
		return Location{}, ErrNameRequired
	}
	if version == "" {
		return Location{}, ErrVersionRequired
	}

	pattern := filepath.Join(dir, fmt.Sprintf("%s-%s-*.whl", name, version))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return Location{}, fmt.Errorf("bad wheel pattern %s: %w", pattern, err)
	}
	if len(matches) == 0 && strings.Contains(name, "-") {
		escaped := strings.ReplaceAll(name, "-", "_")
		matches, err = filepath.Glob(filepath.Join(dir, fmt.Sprintf("%s-%s-*.whl", escaped, version)))
		if err != nil {
			return Location{}, fmt.Errorf("bad wheel pattern for %s: %w", escaped, err)
		}
	}
	if len(matches) == 0 {
		return Location{}, fmt.Errorf("%w: %s %s in %s", ErrWheelNotFound, name, version, dir)
	}

	sort.Strings(matches)
	loc := Location{
		Path:     matches[0],
		Filename: filepath.Base(matches[0]),
	}
	if len(matches) > 1 {
		loc.Ambiguous = true
		loc.Candidates = matches
	}
	return loc, nil
}
