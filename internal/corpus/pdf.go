package corpus

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/hyperjump/shirabe/internal/models"
)

// PageBookmarkID is the synthetic bookmark id given to passages from PDF page n.
func PageBookmarkID(page int) string {
	return fmt.Sprintf("page-%d", page)
}

// PageBookmarks returns one bookmark per page so PDF hits resolve to a page number.
func PageBookmarks(source string, pages int) []models.Bookmark {
	out := make([]models.Bookmark, 0, pages)
	for n := 1; n <= pages; n++ {
		out = append(out, models.Bookmark{
			BookmarkID: PageBookmarkID(n),
			Title:      fmt.Sprintf("%s, page %d", source, n),
			PageNumber: n,
		})
	}
	return out
}

// FromPDF extracts each page's text and chunks it. It also returns the page count.
func FromPDF(content []byte, source string, chunker *Chunker) ([]models.Document, int, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, 0, fmt.Errorf("open PDF: %w", err)
	}
	numPages := r.NumPage()
	pages := make([]string, numPages)
	for i := 0; i < numPages; i++ {
		page := r.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, 0, fmt.Errorf("extract page %d: %w", i+1, err)
		}
		pages[i] = text
	}
	return pageDocuments(pages, source, chunker), numPages, nil
}

// pageDocuments chunks page texts (pages[0] is page 1) into documents with ids
// "<source>#p<page>-<n>" and a page bookmark.
func pageDocuments(pages []string, source string, chunker *Chunker) []models.Document {
	if chunker == nil {
		chunker = NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	}
	var docs []models.Document
	for i, text := range pages {
		page := i + 1
		for n, chunk := range chunker.Chunk(Preprocess(validUTF8([]byte(text)))) {
			if !hasWord(chunk) {
				continue
			}
			docs = append(docs, models.Document{
				ID:        fmt.Sprintf("%s#p%d-%d", source, page, n),
				Text:      chunk,
				Source:    source,
				NodeIndex: len(docs),
				Bookmark:  models.StringPtr(PageBookmarkID(page)),
			})
		}
	}
	return docs
}
