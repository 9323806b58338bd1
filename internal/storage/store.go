// Package storage persists a search index snapshot: run metadata, the ordered
// document list, and the vector entries.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/vector"
)

var (
	// ErrNoIndex is returned by Load when no persisted index exists.
	ErrNoIndex = errors.New("no persisted index")
	// ErrCorrupt is returned when the persisted artifacts disagree with each other.
	ErrCorrupt = errors.New("persisted index is inconsistent")
)

// File names inside a storage directory or bundle.
const (
	MetadataFile   = "metadata.json"
	DocumentsFile  = "documents.json"
	VectorsFile    = "index.dat"
	VectorsBinFile = "index.bin"
	BookmarksFile  = "title_page.json"
)

// Vector file encodings.
const (
	VectorFormatJSON   = "json"
	VectorFormatBinary = "binary"
)

// Store loads and saves index snapshots.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	// ReadMetadata returns only the run metadata, or ErrNoIndex.
	ReadMetadata(ctx context.Context) (*Metadata, error)
	// Describe returns the location shown in stats (a directory or database path).
	Describe() string
}

// Metadata describes one persisted index run.
type Metadata struct {
	Dimension    int    `json:"dimension"`
	NumElements  int    `json:"numElements"`
	Space        string `json:"space"`
	ModelName    string `json:"modelName"`
	Generation   string `json:"generation,omitempty"`
	VectorFormat string `json:"vectorFormat,omitempty"`
	// DocumentsSHA256 is the hex sha256 of documents.json as written by this run.
	DocumentsSHA256 string     `json:"documentsSha256,omitempty"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
}

// UnmarshalJSON also accepts documentCount as a synonym for numElements.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	type plain Metadata
	var aux struct {
		plain
		DocumentCount *int `json:"documentCount"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Metadata(aux.plain)
	if m.NumElements == 0 && aux.DocumentCount != nil {
		m.NumElements = *aux.DocumentCount
	}
	return nil
}

// DocumentPair is a document keyed by id. It serializes as a two-element JSON array.
type DocumentPair struct {
	ID  string
	Doc models.Document
}

// MarshalJSON writes [id, doc].
func (p DocumentPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.ID, p.Doc})
}

// UnmarshalJSON reads [id, doc].
func (p *DocumentPair) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("document pair has %d elements, want 2", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.ID); err != nil {
		return fmt.Errorf("document pair id: %w", err)
	}
	if err := json.Unmarshal(raw[1], &p.Doc); err != nil {
		return fmt.Errorf("document pair %q: %w", p.ID, err)
	}
	return nil
}

// Snapshot is everything needed to rebuild an engine's in-memory state.
type Snapshot struct {
	Metadata  Metadata
	Documents []DocumentPair
	Vectors   []vector.Entry
}

// Validate checks that metadata, documents and vectors describe the same corpus.
func (s *Snapshot) Validate() error {
	if s.Metadata.NumElements != len(s.Documents) {
		return fmt.Errorf("%w: metadata has %d elements, documents has %d", ErrCorrupt, s.Metadata.NumElements, len(s.Documents))
	}
	if len(s.Vectors) != len(s.Documents) {
		return fmt.Errorf("%w: %d vectors for %d documents", ErrCorrupt, len(s.Vectors), len(s.Documents))
	}
	ids := make(map[string]struct{}, len(s.Documents))
	for _, p := range s.Documents {
		ids[p.ID] = struct{}{}
	}
	for _, e := range s.Vectors {
		if _, ok := ids[e.ID]; !ok {
			return fmt.Errorf("%w: vector %q has no document", ErrCorrupt, e.ID)
		}
		if s.Metadata.Dimension > 0 && len(e.Vector) != s.Metadata.Dimension {
			return fmt.Errorf("%w: vector %q has %d dimensions, metadata says %d", ErrCorrupt, e.ID, len(e.Vector), s.Metadata.Dimension)
		}
	}
	return nil
}
