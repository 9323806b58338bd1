package corpus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/storage"
)

// LoadJSON reads documents from either a documents.json pair list ([[id, doc], ...])
// or a plain array of documents. Each document needs an id and non-blank text.
func LoadJSON(r io.Reader) ([]models.Document, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	docs := make([]models.Document, 0, len(raw))
	for i, elem := range raw {
		var doc models.Document
		if trimmed := bytes.TrimSpace(elem); len(trimmed) > 0 && trimmed[0] == '[' {
			var p storage.DocumentPair
			if err := json.Unmarshal(trimmed, &p); err != nil {
				return nil, fmt.Errorf("document %d: %w", i, err)
			}
			doc = p.Doc
			doc.ID = p.ID
		} else if err := json.Unmarshal(elem, &doc); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		if doc.ID == "" {
			return nil, fmt.Errorf("document %d has no id", i)
		}
		if Preprocess(doc.Text) == "" {
			return nil, fmt.Errorf("document %q has no text", doc.ID)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
