// Package portfolio implements the local, filesystem-backed element
// registry. One directory per element type, one front-matter file per
// element named by slug. The store is the sole writer of the portfolio tree;
// the sync engine never touches files directly.
package portfolio

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hpungsan/atelier/internal/element"
	"github.com/hpungsan/atelier/internal/errors"
	"github.com/hpungsan/atelier/internal/security"
)

type indexKey struct {
	typ  element.Type
	slug string
}

// Store is the local element registry. The in-memory index is rebuilt
// wholesale by Reload and swapped atomically; readers never observe a
// half-rebuilt index.
type Store struct {
	baseDir  string
	owner    string
	pipeline *security.Pipeline
	logger   *slog.Logger

	mu    sync.RWMutex
	index map[indexKey]*element.Element
}

// New creates a Store rooted at baseDir/portfolio. The owner is the local or
// authenticated account identifier used in audit context.
func New(baseDir, owner string, pipeline *security.Pipeline, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		baseDir:  filepath.Join(baseDir, "portfolio"),
		owner:    owner,
		pipeline: pipeline,
		logger:   logger,
		index:    map[indexKey]*element.Element{},
	}
}

// Owner returns the portfolio owner identifier.
func (s *Store) Owner() string {
	return s.owner
}

// BaseDir returns the portfolio root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Reload rescans the on-disk tree for the given types (all types when none
// given) and atomically replaces the in-memory index. Returns the number of
// elements loaded for the scanned types. Files that fail to parse or are
// rejected by the security pipeline are skipped with a log line; one bad
// file never hides the rest of the portfolio.
func (s *Store) Reload(types ...element.Type) (int, error) {
	scan := types
	if len(scan) == 0 {
		scan = element.AllTypes
	}

	scanned := map[element.Type]bool{}
	for _, t := range scan {
		scanned[t] = true
	}

	fresh := map[indexKey]*element.Element{}

	// Entries of types outside this scan carry over unchanged.
	s.mu.RLock()
	for key, el := range s.index {
		if !scanned[key.typ] {
			fresh[key] = el
		}
	}
	s.mu.RUnlock()

	count := 0
	for _, typ := range scan {
		els, err := s.scanType(typ)
		if err != nil {
			return 0, err
		}
		for _, el := range els {
			fresh[indexKey{el.Type, el.Slug}] = el
			count++
		}
	}

	s.mu.Lock()
	s.index = fresh
	s.mu.Unlock()

	return count, nil
}

// scanType loads every element file under the type's directory.
func (s *Store) scanType(typ element.Type) ([]*element.Element, error) {
	dir := filepath.Join(s.baseDir, string(typ))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewInternal(fmt.Errorf("scan %s: %w", dir, err))
	}

	var els []*element.Element
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		el, err := s.loadFile(typ, path)
		if err != nil {
			s.logger.Warn("skipping element file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		els = append(els, el)
	}
	return els, nil
}

// loadFile reads and screens one element file. The path-derived type and
// slug are authoritative over whatever the front matter claims.
func (s *Store) loadFile(typ element.Type, path string) (*element.Element, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	el, err := DecodeFile(data)
	if err != nil {
		return nil, err
	}

	el.Type = typ
	el.Slug = strings.TrimSuffix(filepath.Base(path), ".md")
	el.LocalRevision = element.ContentHash(data)

	// Disk content is untrusted until screened; a rejected file is skipped,
	// not loaded.
	if s.pipeline != nil {
		result, err := s.pipeline.Validate(el.Content, security.Context{
			ElementRef: el.Ref(),
			Operation:  "reload",
		})
		if err != nil {
			return nil, err
		}
		el.Content = result.NormalizedText
	}

	return el, nil
}

// Get looks up an element by exact slug first, then by normalized display
// name. Name resolution is deterministic: candidates are collected in sorted
// order, a single hit resolves, multiple hits fail with AMBIGUOUS_MATCH.
func (s *Store) Get(typ element.Type, slugOrName string) (*element.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if el, ok := s.index[indexKey{typ, slugOrName}]; ok {
		return el, nil
	}

	want := element.NormalizeName(slugOrName)
	var matches []*element.Element
	for key, el := range s.index {
		if key.typ != typ {
			continue
		}
		if element.NormalizeName(el.Name) == want {
			matches = append(matches, el)
		}
	}

	switch len(matches) {
	case 0:
		return nil, errors.NewNotFound(fmt.Sprintf("%s/%s", typ, slugOrName))
	case 1:
		return matches[0], nil
	default:
		slugs := make([]string, len(matches))
		for i, el := range matches {
			slugs[i] = el.Slug
		}
		sort.Strings(slugs)
		return nil, errors.NewAmbiguousMatch(slugOrName, slugs)
	}
}

// List returns the elements of one type, sorted by slug.
func (s *Store) List(typ element.Type) []*element.Element {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var els []*element.Element
	for key, el := range s.index {
		if key.typ == typ {
			els = append(els, el)
		}
	}
	element.SortByRef(els)
	return els
}

// ListAll returns every element, sorted by (type, slug).
func (s *Store) ListAll() []*element.Element {
	s.mu.RLock()
	defer s.mu.RUnlock()

	els := make([]*element.Element, 0, len(s.index))
	for _, el := range s.index {
		els = append(els, el)
	}
	element.SortByRef(els)
	return els
}

// Put validates and persists an element: security pipeline first, then the
// structural validator, then an atomic temp-file-plus-rename write, then the
// index update. An element that fails either gate is never written.
func (s *Store) Put(el *element.Element) error {
	if el.Slug == "" {
		el.Slug = element.Slugify(el.Name)
	}
	el.Version = element.NormalizeVersion(el.Version)

	if s.pipeline != nil {
		result, err := s.pipeline.Validate(el.Content, security.Context{
			ElementRef: el.Ref(),
			Operation:  "put",
		})
		if err != nil {
			return err
		}
		el.Content = result.NormalizedText
	}

	if result := element.Validate(el); !result.Valid {
		return errors.NewValidationFailed(el.Ref(), result.ErrorMessages())
	}

	if el.ID == "" {
		id, err := element.NewID()
		if err != nil {
			return errors.NewInternal(err)
		}
		el.ID = id
	}

	data, err := EncodeFile(el)
	if err != nil {
		return errors.NewInternal(err)
	}

	dir := filepath.Join(s.baseDir, string(el.Type))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("create type directory: %w", err))
	}

	path := filepath.Join(dir, el.Slug+".md")
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return errors.NewInternal(fmt.Errorf("write element file: %w", err))
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errors.NewInternal(fmt.Errorf("rename element file: %w", err))
	}

	el.LocalRevision = element.ContentHash(data)

	s.mu.Lock()
	s.index[indexKey{el.Type, el.Slug}] = el
	s.mu.Unlock()

	return nil
}

// Delete removes an element from disk and the index. The removal is recorded
// in the audit trail via the reload-time screening of remaining files; a
// hard security gate here would strand exactly the content most worth
// removing, so Delete only requires that the target exists.
func (s *Store) Delete(typ element.Type, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := indexKey{typ, slug}
	if _, ok := s.index[key]; !ok {
		return errors.NewNotFound(fmt.Sprintf("%s/%s", typ, slug))
	}

	path := filepath.Join(s.baseDir, string(typ), slug+".md")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewInternal(fmt.Errorf("remove element file: %w", err))
	}

	delete(s.index, key)
	return nil
}

// SetRemoteRef records the blob SHA of the last synced remote state. The
// indexed element is replaced with a copy rather than mutated, so readers
// holding a pointer from Get or List never observe a mid-write struct.
func (s *Store) SetRemoteRef(typ element.Type, slug, sha string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.index[indexKey{typ, slug}]
	if !ok {
		return
	}
	updated := *el
	updated.RemoteRef = sha
	s.index[indexKey{typ, slug}] = &updated
}

// FilePath returns the on-disk path for an element, for reporting only;
// callers never write to it directly.
func (s *Store) FilePath(typ element.Type, slug string) string {
	return filepath.Join(s.baseDir, string(typ), slug+".md")
}
