// Package corpus turns source files (HTML manuals, PDFs, text, spreadsheets and
// prepared JSON) into documents ready for indexing.
package corpus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hyperjump/shirabe/internal/models"
)

// ErrUnsupported is returned for a file whose extension has no reader.
var ErrUnsupported = errors.New("unsupported file type")

// DefaultExtensions are the file types picked up when walking a directory.
var DefaultExtensions = []string{".html", ".htm", ".pdf", ".txt", ".md", ".json", ".xlsx", ".docx", ".pptx", ".odt", ".odp", ".ods"}

// Options controls how files are read.
type Options struct {
	Extensions   []string
	ChunkSize    int
	ChunkOverlap int
	// HTMLText is HTMLTextPlain or HTMLTextMarkdown.
	HTMLText string
	// Lenient records per-file failures in Result.Errors and keeps going.
	Lenient bool
	Logger  *zap.Logger
}

// Result is the outcome of LoadPath.
type Result struct {
	Documents []models.Document
	// Bookmarks holds synthetic page bookmarks for PDF sources.
	Bookmarks []models.Bookmark
	Files     int
	Errors    []error
}

// Err combines the per-file errors collected in lenient mode.
func (r *Result) Err() error {
	return multierr.Combine(r.Errors...)
}

// LoadPath reads a single file or every matching file under a directory, in path
// order. Ids from HTML sources are prefixed with "<source>#" when more than one
// file is read, so they stay unique across the corpus.
func LoadPath(ctx context.Context, root string, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	chunker := NewChunker(opts.ChunkSize, opts.ChunkOverlap)

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	type file struct{ path, source string }
	var files []file
	if info.IsDir() {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if !MatchesExtension(path, exts) {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, file{path: path, source: filepath.ToSlash(rel)})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	} else {
		files = append(files, file{path: root, source: filepath.Base(root)})
	}

	res := &Result{}
	qualify := len(files) > 1
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		docs, marks, err := readFile(f.path, f.source, opts.HTMLText, chunker)
		if err != nil {
			err = fmt.Errorf("%s: %w", f.source, err)
			if !opts.Lenient {
				return nil, err
			}
			logger.Warn("skipping unreadable file", zap.String("path", f.path), zap.Error(err))
			res.Errors = append(res.Errors, err)
			continue
		}
		if qualify && isHTML(f.path) {
			for i := range docs {
				docs[i].ID = f.source + "#" + docs[i].ID
			}
		}
		logger.Debug("file read", zap.String("source", f.source), zap.Int("documents", len(docs)))
		res.Documents = append(res.Documents, docs...)
		res.Bookmarks = append(res.Bookmarks, marks...)
		res.Files++
	}
	logger.Info("corpus loaded",
		zap.String("root", root),
		zap.Int("files", res.Files),
		zap.Int("documents", len(res.Documents)),
		zap.Int("failed", len(res.Errors)))
	return res, nil
}

func readFile(path, source, htmlText string, chunker *Chunker) ([]models.Document, []models.Bookmark, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read file: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".html", ".htm":
		docs, err := FromHTML(bytes.NewReader(content), source, htmlText)
		return docs, nil, err
	case ".pdf":
		docs, pages, err := FromPDF(content, source, chunker)
		if err != nil {
			return nil, nil, err
		}
		return docs, PageBookmarks(source, pages), nil
	case ".txt", ".md", ".rst":
		return FromText(validUTF8(content), source, chunker), nil, nil
	case ".json":
		docs, err := LoadJSON(bytes.NewReader(content))
		return docs, nil, err
	case ".xlsx":
		docs, err := FromXLSX(content, source)
		return docs, nil, err
	default:
		if officeExtensions[ext] {
			docs, err := FromOffice(content, source, ext, chunker)
			return docs, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}

// MatchesExtension reports whether path has one of exts (case-insensitive, with dot).
func MatchesExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func isHTML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".html" || ext == ".htm"
}
