package corpus

import (
	"fmt"

	"github.com/hyperjump/shirabe/internal/models"
)

// FromText chunks plain text into documents with ids "<source>#<n>".
func FromText(text, source string, chunker *Chunker) []models.Document {
	if chunker == nil {
		chunker = NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	}
	chunks := chunker.Chunk(Preprocess(text))
	docs := make([]models.Document, 0, len(chunks))
	for i, chunk := range chunks {
		docs = append(docs, models.Document{
			ID:        fmt.Sprintf("%s#%d", source, i),
			Text:      chunk,
			Source:    source,
			NodeIndex: i,
		})
	}
	return docs
}
