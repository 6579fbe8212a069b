package element

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Type identifies the kind of an element. The set is closed; an element's
// type never changes after creation.
type Type string

const (
	TypePersona  Type = "persona"
	TypeSkill    Type = "skill"
	TypeTemplate Type = "template"
	TypeAgent    Type = "agent"
	TypeMemory   Type = "memory"
	TypeEnsemble Type = "ensemble"
)

// AllTypes lists every element type in stable order.
var AllTypes = []Type{TypePersona, TypeSkill, TypeTemplate, TypeAgent, TypeMemory, TypeEnsemble}

// ParseType validates a type string and returns the Type.
func ParseType(s string) (Type, bool) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllTypes {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// TypeNames returns all type names as strings, in stable order.
func TypeNames() []string {
	names := make([]string, len(AllTypes))
	for i, t := range AllTypes {
		names[i] = string(t)
	}
	return names
}

// Metadata holds the descriptive fields of an element.
type Metadata struct {
	Author      string   `yaml:"author,omitempty" json:"author,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Triggers    []string `yaml:"triggers,omitempty" json:"triggers,omitempty"`
	Category    string   `yaml:"category,omitempty" json:"category,omitempty"`
	Created     string   `yaml:"created,omitempty" json:"created,omitempty"`
	Updated     string   `yaml:"updated,omitempty" json:"updated,omitempty"`
}

// Element is one reusable AI-behavior artifact: a persona, skill, template,
// agent, memory, or ensemble. Elements live as front-matter files under
// <portfolio>/<type>/<slug>.md and are mirrored to the remote repository at
// the same type/slug path.
type Element struct {
	// ID is a ULID assigned at creation, independent of the display name.
	ID string `yaml:"id,omitempty" json:"id"`

	Type Type   `yaml:"type" json:"type"`
	Name string `yaml:"name" json:"name"`

	// Slug is the filesystem- and URL-safe identity ([A-Za-z0-9_.-]+).
	// (Type, Slug) is unique within a portfolio.
	Slug string `yaml:"slug,omitempty" json:"slug"`

	// Version is a three-component semver string. Two-component input is
	// normalized to X.Y.0 before validation.
	Version string `yaml:"version" json:"version"`

	Metadata Metadata `yaml:",inline" json:"metadata"`

	// Content is the behavioral body text, stored after the front matter.
	Content string `yaml:"-" json:"content,omitempty"`

	// LocalRevision is the sha256 of the canonical file bytes from the last
	// successful load from disk.
	LocalRevision string `yaml:"-" json:"local_revision,omitempty"`

	// RemoteRef is the blob SHA of the last successfully synced state, empty
	// if the element has never been synced.
	RemoteRef string `yaml:"-" json:"remote_ref,omitempty"`
}

// Ref returns the canonical "type/slug" reference for the element.
func (e *Element) Ref() string {
	return fmt.Sprintf("%s/%s", e.Type, e.Slug)
}

// RemotePath returns the element's path inside the remote repository.
func (e *Element) RemotePath() string {
	return fmt.Sprintf("%s/%s.md", e.Type, e.Slug)
}

// ContentHash computes the revision hash over the given canonical bytes.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewID generates a fresh element ULID.
func NewID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// SortByRef orders elements by (type, slug). List operations use this so
// callers see a documented, stable ordering rather than map iteration order.
func SortByRef(els []*Element) {
	sort.Slice(els, func(i, j int) bool {
		if els[i].Type != els[j].Type {
			return els[i].Type < els[j].Type
		}
		return els[i].Slug < els[j].Slug
	})
}
