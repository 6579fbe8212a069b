package element

import (
	"fmt"
	"strings"
)

// Validation error and warning codes.
const (
	CodeMissingField         = "MISSING_REQUIRED_FIELD"
	CodeInvalidType          = "INVALID_TYPE"
	CodeInvalidSlug          = "INVALID_SLUG_FORMAT"
	CodeInvalidVersionFormat = "INVALID_VERSION_FORMAT"
	CodeMissingTags          = "MISSING_TAGS"
	CodeMissingDescription   = "MISSING_DESCRIPTION"
	CodeMissingTriggers      = "MISSING_TRIGGERS"
)

// Issue is one validation error or warning with a stable code and a message
// specific enough to act on.
type Issue struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult contains the outcome of validating one element.
// Warnings never block activation or sync; errors do.
type ValidationResult struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// ErrorMessages flattens the error issues into display strings.
func (r *ValidationResult) ErrorMessages() []string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return msgs
}

// requirements maps each element type to its required fields beyond the
// universal set (name, version, content). One shared table, not six
// parallel validators.
var requirements = map[Type][]string{
	TypePersona:  {"description"},
	TypeSkill:    {"description"},
	TypeTemplate: {"description"},
	TypeAgent:    {"description", "triggers"},
	TypeMemory:   {},
	TypeEnsemble: {"description"},
}

// Validate checks an element's structural correctness: type membership, slug
// format, version format (after normalization), and the per-type required
// fields. It mutates nothing; callers normalize the version via
// NormalizeVersion before persisting.
func Validate(el *Element) *ValidationResult {
	result := &ValidationResult{Valid: true}

	addError := func(code, field, msg string) {
		result.Valid = false
		result.Errors = append(result.Errors, Issue{Code: code, Field: field, Message: msg})
	}
	addWarning := func(code, field, msg string) {
		result.Warnings = append(result.Warnings, Issue{Code: code, Field: field, Message: msg})
	}

	required, known := requirements[el.Type]
	if !known {
		addError(CodeInvalidType, "type",
			fmt.Sprintf("unknown element type %q; must be one of %s", el.Type, strings.Join(TypeNames(), ", ")))
	}

	if strings.TrimSpace(el.Name) == "" {
		addError(CodeMissingField, "name", "name is required")
	}

	if el.Slug == "" {
		addError(CodeMissingField, "slug", "slug is required")
	} else if !ValidSlug(el.Slug) {
		addError(CodeInvalidSlug, "slug",
			fmt.Sprintf("slug %q contains invalid characters; allowed: letters, digits, underscore, hyphen, dot", el.Slug))
	}

	version := NormalizeVersion(el.Version)
	if strings.TrimSpace(el.Version) == "" {
		addError(CodeMissingField, "version", "version is required")
	} else if !ValidVersion(version) {
		addError(CodeInvalidVersionFormat, "version",
			fmt.Sprintf("version %q is not a valid semantic version (expected MAJOR.MINOR.PATCH, e.g. %q)", el.Version, "1.0.0"))
	}

	if strings.TrimSpace(el.Content) == "" {
		addError(CodeMissingField, "content", "content is required")
	}

	for _, field := range required {
		switch field {
		case "description":
			if strings.TrimSpace(el.Metadata.Description) == "" {
				addError(CodeMissingField, "description",
					fmt.Sprintf("description is required for %s elements", el.Type))
			}
		case "triggers":
			if len(el.Metadata.Triggers) == 0 {
				addError(CodeMissingField, "triggers",
					fmt.Sprintf("at least one trigger is required for %s elements", el.Type))
			}
		}
	}

	// Non-blocking quality warnings.
	if known && len(el.Metadata.Tags) == 0 {
		addWarning(CodeMissingTags, "tags", "no tags set; tagged elements are easier to discover")
	}
	if known && el.Type == TypeMemory && strings.TrimSpace(el.Metadata.Description) == "" {
		addWarning(CodeMissingDescription, "description", "memories without a description are hard to tell apart")
	}

	return result
}
