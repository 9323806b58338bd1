// Package bookmarks loads the bookmark_id -> {title, page} table that turns matched
// passages into human-facing section titles and page numbers.
package bookmarks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/shirabe/internal/models"
)

// Mapping is a read-only lookup keyed by bookmark id. The zero value is an empty mapping.
type Mapping struct {
	byID  map[string]models.Bookmark
	order []string
}

// New builds a mapping from entries. A repeated bookmark id replaces the earlier entry.
func New(entries []models.Bookmark) *Mapping {
	m := &Mapping{byID: make(map[string]models.Bookmark, len(entries))}
	for _, b := range entries {
		if b.BookmarkID == "" {
			continue
		}
		if _, seen := m.byID[b.BookmarkID]; !seen {
			m.order = append(m.order, b.BookmarkID)
		}
		m.byID[b.BookmarkID] = b
	}
	return m
}

// Lookup returns the entry for id.
func (m *Mapping) Lookup(id string) (models.Bookmark, bool) {
	if m == nil || id == "" {
		return models.Bookmark{}, false
	}
	b, ok := m.byID[id]
	return b, ok
}

// Len returns the number of entries.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.byID)
}

// Entries returns the entries in load order.
func (m *Mapping) Entries() []models.Bookmark {
	if m == nil {
		return []models.Bookmark{}
	}
	out := make([]models.Bookmark, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.byID[id])
	}
	return out
}

// Sorted returns the entries ordered by page number, for use as a table of contents.
// Entries on the same page keep load order.
func (m *Mapping) Sorted() []models.Bookmark {
	out := m.Entries()
	sort.SliceStable(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out
}

// Parse decodes a JSON array of {title, page_number, bookmark_id}.
func Parse(data []byte) (*Mapping, error) {
	var entries []models.Bookmark
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse bookmarks: %w", err)
	}
	return New(entries), nil
}

// LoadFile reads a bookmark file. A missing or malformed file yields an empty
// mapping: results then carry no title or page, which is not an error.
func LoadFile(path string, logger *zap.Logger) *Mapping {
	return load(func() ([]byte, error) { return os.ReadFile(path) }, path, logger)
}

// LoadFS reads a bookmark file from bundled assets with the same leniency as LoadFile.
func LoadFS(fsys fs.FS, name string, logger *zap.Logger) *Mapping {
	return load(func() ([]byte, error) { return fs.ReadFile(fsys, name) }, name, logger)
}

func load(read func() ([]byte, error), name string, logger *zap.Logger) *Mapping {
	if logger == nil {
		logger = zap.NewNop()
	}
	data, err := read()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info("no bookmark mapping found", zap.String("path", name))
		} else {
			logger.Warn("could not read bookmark mapping", zap.String("path", name), zap.Error(err))
		}
		return New(nil)
	}
	m, err := Parse(data)
	if err != nil {
		logger.Warn("could not load bookmark mapping", zap.String("path", name), zap.Error(err))
		return New(nil)
	}
	logger.Debug("bookmark mapping loaded", zap.String("path", name), zap.Int("count", m.Len()))
	return m
}

// WriteFile writes entries as JSON, replacing path atomically.
func WriteFile(path string, entries []models.Bookmark) error {
	if entries == nil {
		entries = []models.Bookmark{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bookmarks: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create bookmark dir: %w", err)
	}
	f, err := os.CreateTemp(dir, ".bookmarks-*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit bookmarks: %w", err)
	}
	return nil
}
