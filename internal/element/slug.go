package element

import (
	"regexp"
	"strings"
)

// slugRegex matches a valid slug: alphanumerics, underscore, hyphen, dot.
var slugRegex = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// multiDashRegex collapses runs of dashes produced during slugification.
var multiDashRegex = regexp.MustCompile(`-{2,}`)

// ValidSlug reports whether s is a well-formed slug.
func ValidSlug(s string) bool {
	return slugRegex.MatchString(s)
}

// Slugify derives a slug from a display name: lowercase, spaces and invalid
// runes become hyphens, runs of hyphens collapse, leading/trailing hyphens
// and dots are trimmed. The result is validated independently wherever it is
// used; Slugify returning "" means the name has no usable characters.
func Slugify(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}

	slug := multiDashRegex.ReplaceAllString(b.String(), "-")
	slug = strings.Trim(slug, "-.")
	return slug
}

// NormalizeName normalizes a display name for matching: trim, lowercase,
// collapse internal whitespace. Used by the store's fuzzy lookup so that
// resolution is deterministic.
func NormalizeName(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}
