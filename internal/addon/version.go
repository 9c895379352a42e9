package addon

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CompareVersions compares two addon version strings field-wise. Kodi
// versions are loosely semver: short forms like "2.1" and leading "v"
// prefixes appear in the wild, so both sides are normalized first.
// Returns -1, 0 or 1. Unparseable versions compare as lowest, so a valid
// version always wins over a malformed one.
func CompareVersions(v1, v2 string) int {
	a, errA := semver.NewVersion(normalizeVersion(v1))
	b, errB := semver.NewVersion(normalizeVersion(v2))

	switch {
	case errA != nil && errB != nil:
		return strings.Compare(v1, v2)
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return a.Compare(b)
}

// NewerVersion reports whether candidate is strictly newer than current.
func NewerVersion(current, candidate string) bool {
	return CompareVersions(current, candidate) < 0
}

// normalizeVersion pads short versions out to major.minor.patch and strips
// a leading "v".
func normalizeVersion(v string) string {
	v = strings.TrimSpace(strings.TrimPrefix(v, "v"))
	if v == "" {
		return "0.0.0"
	}

	// Split off semver build/pre-release parts before counting fields.
	core := v
	suffix := ""
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		core, suffix = v[:i], v[i:]
	}

	switch strings.Count(core, ".") {
	case 0:
		core += ".0.0"
	case 1:
		core += ".0"
	}
	return core + suffix
}
