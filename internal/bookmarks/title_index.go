package bookmarks

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/shirabe/internal/models"
)

const defaultFuzziness = 2

// TitleIndex is an in-memory keyword index over bookmark titles, used to search the
// table of contents. It plays no part in semantic ranking.
type TitleIndex struct {
	index   bleve.Index
	mapping *Mapping
}

type titleDoc struct {
	Title string `json:"title"`
	Page  int    `json:"page"`
}

// NewTitleIndex indexes every entry of m.
func NewTitleIndex(m *Mapping) (*TitleIndex, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	titleField := bleve.NewTextFieldMapping()
	// standard analyzer: lowercase + tokenize, no stemming, so "airway" matches exactly
	titleField.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("title", titleField)
	docMapping.AddFieldMappingsAt("page", bleve.NewNumericFieldMapping())
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("create title index: %w", err)
	}
	batch := index.NewBatch()
	for _, b := range m.Entries() {
		if err := batch.Index(b.BookmarkID, titleDoc{Title: b.Title, Page: b.PageNumber}); err != nil {
			index.Close()
			return nil, fmt.Errorf("index bookmark %q: %w", b.BookmarkID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		index.Close()
		return nil, fmt.Errorf("index bookmarks: %w", err)
	}
	return &TitleIndex{index: index, mapping: m}, nil
}

// Find returns up to limit bookmarks whose title matches query, best match first.
// With fuzzy set each term tolerates up to two edits.
func (t *TitleIndex) Find(query string, limit int, fuzzy bool) ([]models.Bookmark, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 || limit <= 0 {
		return []models.Bookmark{}, nil
	}
	var q blevequery.Query
	if fuzzy {
		qs := make([]blevequery.Query, 0, len(terms))
		for _, term := range terms {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(defaultFuzziness)
			fq.SetField("title")
			qs = append(qs, fq)
		}
		q = bleve.NewDisjunctionQuery(qs...)
	} else {
		mq := bleve.NewMatchQuery(query)
		mq.SetField("title")
		q = mq
	}
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	res, err := t.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("title search failed: %w", err)
	}
	out := make([]models.Bookmark, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if b, ok := t.mapping.Lookup(hit.ID); ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// Close releases the index.
func (t *TitleIndex) Close() error {
	return t.index.Close()
}
