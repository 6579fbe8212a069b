// Package collection provides a TTL-cached view of the community collection
// index, a markdown file in a remote repository listing browsable elements
// grouped by type.
package collection

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"github.com/hpungsan/atelier/internal/element"
	"github.com/hpungsan/atelier/internal/errors"
	"github.com/hpungsan/atelier/internal/remote"
)

// DefaultIndexPath is the index file inside the collection repository.
const DefaultIndexPath = "index.md"

// Entry is one element listed in the collection index. Tags come from
// hashtag tokens in the item description; CachedAt is the fetch time of the
// index copy the entry came from.
type Entry struct {
	Type        element.Type `json:"type"`
	Slug        string       `json:"slug"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Path        string       `json:"path,omitempty"`
	CachedAt    time.Time    `json:"cached_at"`
}

// Cache holds the parsed collection index and refreshes it lazily. A refresh
// failure serves the last good copy rather than erroring; the cache only
// fails when it has never fetched successfully.
type Cache struct {
	client    remote.Client
	repo      remote.RepoRef
	indexPath string
	ttl       time.Duration
	logger    *slog.Logger
	md        goldmark.Markdown

	mu        sync.Mutex
	entries   []Entry
	fetchedAt time.Time
}

// New creates a collection cache over the given repository.
func New(client remote.Client, repo remote.RepoRef, indexPath string, ttl time.Duration, logger *slog.Logger) *Cache {
	if indexPath == "" {
		indexPath = DefaultIndexPath
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		client:    client,
		repo:      repo,
		indexPath: indexPath,
		ttl:       ttl,
		logger:    logger,
		md:        goldmark.New(),
	}
}

// Entries returns the current index, refreshing it when the TTL has lapsed.
func (c *Cache) Entries(ctx context.Context) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries != nil && time.Since(c.fetchedAt) < c.ttl {
		return append([]Entry(nil), c.entries...), nil
	}

	entries, err := c.fetch(ctx)
	if err != nil {
		if c.entries != nil {
			c.logger.Warn("collection index refresh failed, serving stale copy",
				slog.String("path", c.indexPath),
				slog.String("error", err.Error()),
			)
			return append([]Entry(nil), c.entries...), nil
		}
		return nil, err
	}

	c.fetchedAt = time.Now()
	for i := range entries {
		entries[i].CachedAt = c.fetchedAt
	}
	c.entries = entries
	return append([]Entry(nil), entries...), nil
}

// Get returns the index entry at the given repository path, or a typed
// not-found error when the index lists nothing there.
func (c *Cache) Get(ctx context.Context, path string) (*Entry, error) {
	entries, err := c.Entries(ctx)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.Path == path {
			return &entry, nil
		}
	}
	return nil, errors.NewNotFound(fmt.Sprintf("collection entry %s", path))
}

// Search returns index entries whose name, slug, or description contains the
// query, case-insensitively. An empty type matches every type.
func (c *Cache) Search(ctx context.Context, query string, typ element.Type) ([]Entry, error) {
	entries, err := c.Entries(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	var out []Entry
	for _, entry := range entries {
		if typ != "" && entry.Type != typ {
			continue
		}
		if q == "" ||
			strings.Contains(strings.ToLower(entry.Name), q) ||
			strings.Contains(strings.ToLower(entry.Slug), q) ||
			strings.Contains(strings.ToLower(entry.Description), q) ||
			matchesTag(entry.Tags, q) {
			out = append(out, entry)
		}
	}
	return out, nil
}

// Invalidate forces the next read to refetch.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchedAt = time.Time{}
}

func (c *Cache) fetch(ctx context.Context) ([]Entry, error) {
	blob, err := c.client.GetBlob(ctx, c.repo, c.indexPath)
	if err != nil {
		return nil, err
	}
	return c.parse(blob.Content)
}

// parse walks the markdown AST. Headings name element types; list items
// under a heading are entries, either links whose destination carries the
// type/slug path or plain "name - description" text.
func (c *Cache) parse(src []byte) ([]Entry, error) {
	doc := c.md.Parser().Parse(gmtext.NewReader(src))

	var entries []Entry
	var currentType element.Type

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			currentType = headingType(nodeText(node, src))
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			if entry, ok := parseItem(node, src, currentType); ok {
				entries = append(entries, entry)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse collection index: %w", err)
	}
	return entries, nil
}

// headingType maps a heading like "Personas" or "skill" to an element type.
func headingType(heading string) element.Type {
	h := strings.ToLower(strings.TrimSpace(heading))
	if typ, ok := element.ParseType(h); ok {
		return typ
	}
	if typ, ok := element.ParseType(strings.TrimSuffix(h, "s")); ok {
		return typ
	}
	return ""
}

func parseItem(item *ast.ListItem, src []byte, currentType element.Type) (Entry, bool) {
	if currentType == "" {
		return Entry{}, false
	}

	entry := Entry{Type: currentType}

	if link := firstLink(item); link != nil {
		entry.Name = nodeText(link, src)
		entry.Path = string(link.Destination)
		entry.Slug = slugFromPath(entry.Path)
		if typ, ok := element.ParseType(typeDirFromPath(entry.Path)); ok {
			entry.Type = typ
		}
		full := nodeText(item, src)
		entry.Description = trimDescription(strings.TrimPrefix(full, entry.Name))
	} else {
		full := nodeText(item, src)
		name, desc, _ := strings.Cut(full, " - ")
		entry.Name = strings.TrimSpace(name)
		entry.Description = strings.TrimSpace(desc)
		entry.Slug = element.Slugify(entry.Name)
	}

	if entry.Name == "" {
		return Entry{}, false
	}
	if entry.Slug == "" {
		entry.Slug = element.Slugify(entry.Name)
	}
	return entry, true
}

func firstLink(n ast.Node) *ast.Link {
	var found *ast.Link
	ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if link, ok := child.(*ast.Link); ok {
			found = link
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return found
}

func nodeText(n ast.Node, src []byte) string {
	var b strings.Builder
	ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := child.(*ast.Text); ok {
			b.Write(t.Segment.Value(src))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func slugFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	last := parts[len(parts)-1]
	return strings.TrimSuffix(last, ".md")
}

func typeDirFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}

func trimDescription(s string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(s), "-:"))
}

// extractTags pulls #hashtag tokens out of a description, returning the
// remaining text and the lowercased tags.
func extractTags(desc string) (string, []string) {
	var tags []string
	var words []string
	for _, w := range strings.Fields(desc) {
		if tag := strings.TrimPrefix(w, "#"); tag != w && tag != "" {
			tags = append(tags, strings.ToLower(tag))
			continue
		}
		words = append(words, w)
	}
	return strings.Join(words, " "), tags
}

func matchesTag(tags []string, q string) bool {
	for _, tag := range tags {
		if strings.Contains(tag, strings.TrimPrefix(q, "#")) {
			return true
		}
	}
	return false
}
