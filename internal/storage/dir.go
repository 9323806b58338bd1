package storage

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shirabe/internal/vector"
)

// DirStore is the read-write backend used by the offline indexing tool.
type DirStore struct {
	dir          string
	vectorFormat string
	logger       *zap.Logger
}

// DirOption configures a DirStore.
type DirOption func(*DirStore)

// WithVectorFormat selects "json" (index.dat, the default) or "binary" (index.bin).
func WithVectorFormat(format string) DirOption {
	return func(d *DirStore) {
		if format != "" {
			d.vectorFormat = format
		}
	}
}

// WithDirLogger sets the logger for save events.
func WithDirLogger(l *zap.Logger) DirOption {
	return func(d *DirStore) { d.logger = l }
}

// NewDirStore returns a store rooted at dir. The directory is created on first Save.
func NewDirStore(dir string, opts ...DirOption) (*DirStore, error) {
	d := &DirStore{dir: dir, vectorFormat: VectorFormatJSON, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	if d.vectorFormat != VectorFormatJSON && d.vectorFormat != VectorFormatBinary {
		return nil, fmt.Errorf("unknown vector format: %s (supported: json, binary)", d.vectorFormat)
	}
	return d, nil
}

// Describe returns the storage directory.
func (d *DirStore) Describe() string {
	return d.dir
}

// Dir returns the storage directory.
func (d *DirStore) Dir() string {
	return d.dir
}

// Load reads the snapshot from disk.
func (d *DirStore) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return loadFS(os.DirFS(d.dir))
}

// ReadMetadata reads metadata.json only.
func (d *DirStore) ReadMetadata(ctx context.Context) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readMetadataFS(os.DirFS(d.dir))
}

// Save writes all artifacts to temp files, then renames them into place with
// metadata last. Metadata carries a fresh generation id shared with the vector
// file and the sha256 of documents.json, so a save interrupted between renames
// is detected by Load as ErrCorrupt.
func (d *DirStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	meta := snap.Metadata
	meta.Generation = uuid.New().String()
	meta.VectorFormat = d.vectorFormat
	meta.NumElements = len(snap.Documents)
	if meta.CreatedAt == nil {
		now := time.Now().UTC()
		meta.CreatedAt = &now
	}
	metric, err := vector.ParseMetric(meta.Space)
	if err != nil {
		return err
	}
	meta.Space = string(metric)
	header := vector.Header{Metric: metric, Generation: meta.Generation, Dimension: meta.Dimension}
	check := Snapshot{Metadata: meta, Documents: snap.Documents, Vectors: snap.Vectors}
	if err := check.Validate(); err != nil {
		return fmt.Errorf("refusing to save: %w", err)
	}

	var docs bytes.Buffer
	if err := writeJSON(&docs, nonNilPairs(snap.Documents)); err != nil {
		return fmt.Errorf("encode documents: %w", err)
	}
	sum := sha256.Sum256(docs.Bytes())
	meta.DocumentsSHA256 = hex.EncodeToString(sum[:])

	vectorsName, encode := VectorsFile, vector.EncodeJSON
	if d.vectorFormat == VectorFormatBinary {
		vectorsName, encode = VectorsBinFile, vector.EncodeBinary
	}

	steps := []struct {
		name  string
		write func(io.Writer) error
	}{
		{DocumentsFile, func(w io.Writer) error { _, err := w.Write(docs.Bytes()); return err }},
		{vectorsName, func(w io.Writer) error { return encode(w, header, snap.Vectors) }},
		{MetadataFile, func(w io.Writer) error { return writeJSON(w, meta) }},
	}
	temps := make([]string, 0, len(steps))
	cleanup := func() {
		for _, t := range temps {
			_ = os.Remove(t)
		}
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			cleanup()
			return err
		}
		tmp, err := writeTemp(d.dir, step.name, step.write)
		if err != nil {
			cleanup()
			return fmt.Errorf("write %s: %w", step.name, err)
		}
		temps = append(temps, tmp)
	}
	for i, step := range steps {
		if err := os.Rename(temps[i], filepath.Join(d.dir, step.name)); err != nil {
			cleanup()
			return fmt.Errorf("commit %s: %w", step.name, err)
		}
	}
	d.logger.Info("index saved",
		zap.String("dir", d.dir),
		zap.Int("documents", meta.NumElements),
		zap.String("generation", meta.Generation),
		zap.String("vector_format", d.vectorFormat))
	return nil
}

// Clear removes the persisted snapshot files. Bookmarks are kept.
func (d *DirStore) Clear() error {
	for _, name := range []string{MetadataFile, VectorsFile, VectorsBinFile, DocumentsFile} {
		if err := os.Remove(filepath.Join(d.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

// DiskUsage returns the bytes used by the storage directory.
func (d *DirStore) DiskUsage() (int64, error) {
	return DiskUsageBytes(d.dir)
}

func writeTemp(dir, name string, write func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+"-*.tmp")
	if err != nil {
		return "", err
	}
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nonNilPairs(p []DocumentPair) []DocumentPair {
	if p == nil {
		return []DocumentPair{}
	}
	return p
}
