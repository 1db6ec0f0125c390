package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"kbase/pkg/config"
	"kbase/pkg/models"
)

const graphVersion = 1

// Store owns the document graph and its durable single-file encoding.
// Every mutation applies to the in-memory graph and rewrites the whole
// file before returning, under one write lock, so concurrent callers are
// linearized and a caller observes durable state as soon as its call
// returns. Save failures are logged and swallowed: the in-memory graph
// then runs ahead of disk until the next successful write.
//
// The durable file is not safe against a second process writing it
// concurrently; the last full-graph write wins.
type Store struct {
	mu     sync.RWMutex
	path   string
	policy string
	logger *slog.Logger
	mirror *mirror
	graph  models.Graph
}

// NewStore wires a store against cfg's database file and files folder.
// Call Open before use.
func NewStore(cfg *config.Config, logger *slog.Logger) *Store {
	return &Store{
		path:   cfg.DBFile,
		policy: cfg.CorruptPolicy,
		logger: logger,
		mirror: &mirror{root: cfg.FilesFolder, logger: logger},
		graph:  models.Graph{Version: graphVersion},
	}
}

// Open loads the durable file. A missing file means a first run and an
// empty graph. An unreadable or corrupt file is logged, optionally
// preserved aside for manual recovery, and replaced by an empty graph;
// Open itself never fails.
func (s *Store) Open() {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		s.recoverCorrupt(err)
		return
	}

	var g models.Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		s.recoverCorrupt(err)
		return
	}
	if g.Version == 0 {
		g.Version = graphVersion
	}

	s.mu.Lock()
	s.graph = g
	s.mu.Unlock()
}

func (s *Store) recoverCorrupt(cause error) {
	s.logger.Error("database unreadable, starting empty", "path", s.path, "error", cause)
	if s.policy != config.CorruptPreserve {
		return
	}
	aside := fmt.Sprintf("%s.corrupt.%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, aside); err != nil {
		s.logger.Error("preserve corrupt database", "path", s.path, "error", err)
		return
	}
	s.logger.Warn("corrupt database preserved", "path", aside)
}

// persist serializes the whole graph and atomically replaces the durable
// file. Callers hold the write lock. Errors are logged, never returned.
func (s *Store) persist() {
	data, err := json.Marshal(&s.graph)
	if err != nil {
		s.logger.Error("serialize graph", "error", err)
		return
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		s.logger.Error("write database", "path", s.path, "error", err)
	}
}

func sectionIndex(sections []models.Section, name string) int {
	for i := range sections {
		if sections[i].Name == name {
			return i
		}
	}
	return -1
}

func (s *Store) docIndex(key string) int {
	for i := range s.graph.Content {
		if s.graph.Content[i].Key == key {
			return i
		}
	}
	return -1
}

func (s *Store) fileSetIndex(key string) int {
	for i := range s.graph.Files {
		if s.graph.Files[i].Key == key {
			return i
		}
	}
	return -1
}

// AddSection appends a new top-level section. A duplicate or invalid name
// is reported as false, not an error.
func (s *Store) AddSection(name string) bool {
	if err := ValidateName(name); err != nil {
		s.logger.Warn("add section rejected", "name", name, "error", err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sectionIndex(s.graph.Sections, name) >= 0 {
		s.logger.Warn("section already exists", "name", name)
		return false
	}
	s.graph.Sections = append(s.graph.Sections, models.Section{Name: name})
	s.persist()
	return true
}

// DeleteSection removes a section with all its categories and purges the
// content and files of the section key and of every child composite key.
// The cascade applies in full and persists once.
func (s *Store) DeleteSection(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sectionIndex(s.graph.Sections, name)
	if i < 0 {
		s.logger.Warn("section not found", "name", name)
		return false
	}
	for _, category := range s.graph.Sections[i].Categories {
		s.purgeLocked(JoinKey(name, category))
	}
	s.purgeLocked(name)
	s.graph.Sections = append(s.graph.Sections[:i], s.graph.Sections[i+1:]...)
	s.persist()
	return true
}

// AddCategory appends a category under an existing section.
func (s *Store) AddCategory(section, name string) bool {
	if err := ValidateName(name); err != nil {
		s.logger.Warn("add category rejected", "section", section, "name", name, "error", err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := sectionIndex(s.graph.Sections, section)
	if i < 0 {
		s.logger.Warn("section not found", "name", section)
		return false
	}
	for _, c := range s.graph.Sections[i].Categories {
		if c == name {
			s.logger.Warn("category already exists", "section", section, "name", name)
			return false
		}
	}
	s.graph.Sections[i].Categories = append(s.graph.Sections[i].Categories, name)
	s.persist()
	return true
}

// DeleteCategory removes a category and purges the content and files of
// its composite key.
func (s *Store) DeleteCategory(section, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sectionIndex(s.graph.Sections, section)
	if i < 0 {
		s.logger.Warn("section not found", "name", section)
		return false
	}
	categories := s.graph.Sections[i].Categories
	for j, c := range categories {
		if c != name {
			continue
		}
		s.graph.Sections[i].Categories = append(categories[:j], categories[j+1:]...)
		s.purgeLocked(JoinKey(section, name))
		s.persist()
		return true
	}
	s.logger.Warn("category not found", "section", section, "name", name)
	return false
}

// purgeLocked drops a key's content entry, file set and mirror directory.
// Callers hold the write lock; persistence is theirs.
func (s *Store) purgeLocked(key string) {
	if i := s.docIndex(key); i >= 0 {
		s.graph.Content = append(s.graph.Content[:i], s.graph.Content[i+1:]...)
	}
	if i := s.fileSetIndex(key); i >= 0 {
		s.graph.Files = append(s.graph.Files[:i], s.graph.Files[i+1:]...)
	}
	s.mirror.removeKey(key)
}

// SaveContent upserts the document under key and persists, unconditionally.
// An existing document keeps its position in the scan order.
func (s *Store) SaveContent(key, html string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.docIndex(key); i >= 0 {
		s.graph.Content[i].HTML = html
	} else {
		s.graph.Content = append(s.graph.Content, models.Document{Key: key, HTML: html})
	}
	s.persist()
}

// LoadContent returns the stored document, or "" when the key has none.
func (s *Store) LoadContent(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.docIndex(key); i >= 0 {
		return s.graph.Content[i].HTML
	}
	return ""
}

// DeleteContent drops the document under key; persists only when one
// existed.
func (s *Store) DeleteContent(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.docIndex(key)
	if i < 0 {
		return
	}
	s.graph.Content = append(s.graph.Content[:i], s.graph.Content[i+1:]...)
	s.persist()
}

// AddFile appends an attachment under key and returns the stored name.
// A name already taken under the key is suffixed with a counter
// (a.txt, a_1.txt, ...); nothing is overwritten. The on-disk mirror copy
// is written alongside.
func (s *Store) AddFile(key, name string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.fileSetIndex(key)
	if i < 0 {
		s.graph.Files = append(s.graph.Files, models.FileSet{Key: key})
		i = len(s.graph.Files) - 1
	}

	stored := uniqueName(s.graph.Files[i].Files, name)
	s.graph.Files[i].Files = append(s.graph.Files[i].Files, models.File{Name: stored, Data: data})
	s.mirror.write(key, stored, data)
	s.persist()
	return stored
}

func uniqueName(files []models.File, name string) string {
	taken := func(n string) bool {
		for _, f := range files {
			if f.Name == n {
				return true
			}
		}
		return false
	}
	if !taken(name) {
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}

// LoadFile returns an attachment's payload.
func (s *Store) LoadFile(key, name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.fileSetIndex(key)
	if i < 0 {
		return nil, false
	}
	for _, f := range s.graph.Files[i].Files {
		if f.Name == name {
			return f.Data, true
		}
	}
	return nil, false
}

// DeleteFiles drops every attachment under key, including the mirror
// directory; persists only when the key held any.
func (s *Store) DeleteFiles(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.fileSetIndex(key)
	if i < 0 {
		return
	}
	s.graph.Files = append(s.graph.Files[:i], s.graph.Files[i+1:]...)
	s.mirror.removeKey(key)
	s.persist()
}

// Files returns a copy of the attachments under key, in stored order.
func (s *Store) Files(key string) []models.File {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.fileSetIndex(key)
	if i < 0 {
		return nil
	}
	out := make([]models.File, len(s.graph.Files[i].Files))
	copy(out, s.graph.Files[i].Files)
	return out
}

// UpdateFileOrder replaces the attachment set under key with the
// caller-supplied order and persists. An empty set drops the key.
func (s *Store) UpdateFileOrder(key string, files []models.File) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ordered := make([]models.File, len(files))
	copy(ordered, files)

	i := s.fileSetIndex(key)
	switch {
	case i >= 0 && len(ordered) == 0:
		s.graph.Files = append(s.graph.Files[:i], s.graph.Files[i+1:]...)
	case i >= 0:
		s.graph.Files[i].Files = ordered
	case len(ordered) > 0:
		s.graph.Files = append(s.graph.Files, models.FileSet{Key: key, Files: ordered})
	default:
		return
	}
	s.persist()
}

// Sections returns a deep copy of the section index, in tree order.
func (s *Store) Sections() []models.Section {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Section, len(s.graph.Sections))
	for i, sec := range s.graph.Sections {
		out[i] = models.Section{Name: sec.Name, Categories: append([]string(nil), sec.Categories...)}
	}
	return out
}

// Documents returns a snapshot of the content map in insertion order, for
// the search scanner to walk without holding the store's lock.
func (s *Store) Documents() []models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Document, len(s.graph.Content))
	copy(out, s.graph.Content)
	return out
}

// MirrorPath returns where the on-disk copy of an attachment lives, for
// collaborators that open or serve files from disk.
func (s *Store) MirrorPath(key, name string) string {
	return s.mirror.path(key, name)
}
