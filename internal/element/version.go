package element

import (
	"regexp"
	"strings"
)

// semverRegex matches a full three-component semantic version with optional
// pre-release and build metadata.
var semverRegex = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)

// shortVersionRegex matches the tolerated short forms "X" and "X.Y" that
// NormalizeVersion pads out to a full three-component version.
var shortVersionRegex = regexp.MustCompile(`^(0|[1-9]\d*)(\.(0|[1-9]\d*))?$`)

// NormalizeVersion trims whitespace, strips a leading "v", and pads missing
// numeric components so "1.1" becomes "1.1.0" and "2" becomes "2.0.0".
// Human- and LLM-authored elements routinely carry short versions; padding
// here keeps them activatable instead of failing validation on a formality.
// Input that is not a short form is returned trimmed and unpadded so that
// ValidVersion can report the real error.
func NormalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "v")

	if !shortVersionRegex.MatchString(v) {
		return v
	}

	switch strings.Count(v, ".") {
	case 0:
		return v + ".0.0"
	case 1:
		return v + ".0"
	}
	return v
}

// ValidVersion reports whether v is a full three-component semantic version.
// Callers must normalize first; a bare "1.1" fails here by design so the
// specific INVALID_VERSION_FORMAT error can be surfaced.
func ValidVersion(v string) bool {
	return semverRegex.MatchString(v)
}
