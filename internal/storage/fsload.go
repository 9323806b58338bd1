package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/hyperjump/shirabe/internal/vector"
)

// readMetadataFS reads metadata.json from fsys.
func readMetadataFS(fsys fs.FS) (*Metadata, error) {
	data, err := fs.ReadFile(fsys, MetadataFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", ErrNoIndex, MetadataFile)
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: parse metadata: %v", ErrCorrupt, err)
	}
	return &meta, nil
}

// loadFS reads a full snapshot laid out as metadata.json, documents.json, and
// index.dat or index.bin. The vector generation and the documents checksum must
// match the metadata.
func loadFS(fsys fs.FS) (*Snapshot, error) {
	meta, err := readMetadataFS(fsys)
	if err != nil {
		return nil, err
	}

	name, decode := VectorsFile, vector.DecodeJSON
	if meta.VectorFormat == VectorFormatBinary {
		name, decode = VectorsBinFile, vector.DecodeBinary
	}
	f, err := fsys.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", ErrNoIndex, name)
		}
		return nil, fmt.Errorf("open vectors: %w", err)
	}
	header, entries, err := decode(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if header.Generation != meta.Generation {
		return nil, fmt.Errorf("%w: vector generation %q, metadata generation %q", ErrCorrupt, header.Generation, meta.Generation)
	}
	if meta.Space != "" {
		space, err := vector.ParseMetric(meta.Space)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if space != header.Metric {
			return nil, fmt.Errorf("%w: metadata space %s, vectors use %s", ErrCorrupt, space, header.Metric)
		}
	}

	data, err := fs.ReadFile(fsys, DocumentsFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", ErrNoIndex, DocumentsFile)
		}
		return nil, fmt.Errorf("read documents: %w", err)
	}
	// assets from older tools carry no checksum
	if meta.DocumentsSHA256 != "" {
		sum := sha256.Sum256(data)
		if got := hex.EncodeToString(sum[:]); got != meta.DocumentsSHA256 {
			return nil, fmt.Errorf("%w: %s checksum %s, metadata expects %s", ErrCorrupt, DocumentsFile, got, meta.DocumentsSHA256)
		}
	}
	var docs []DocumentPair
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("%w: parse documents: %v", ErrCorrupt, err)
	}

	if meta.Space == "" {
		meta.Space = string(header.Metric)
	}
	if meta.Dimension == 0 {
		meta.Dimension = header.Dimension
	}
	snap := &Snapshot{Metadata: *meta, Documents: docs, Vectors: entries}
	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}
