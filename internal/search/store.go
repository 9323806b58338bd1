package search

import "github.com/hyperjump/shirabe/internal/models"

// DocumentStore maps document id to document. It is filled during indexing or load
// and read-only afterwards.
type DocumentStore struct {
	byID  map[string]models.Document
	order []string
}

// NewDocumentStore returns an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{byID: make(map[string]models.Document)}
}

// Put stores doc under doc.ID, replacing any previous document with that id but
// keeping its original position.
func (s *DocumentStore) Put(doc models.Document) {
	if _, ok := s.byID[doc.ID]; !ok {
		s.order = append(s.order, doc.ID)
	}
	s.byID[doc.ID] = doc
}

// Get returns the document for id. A miss is reported with ok == false.
func (s *DocumentStore) Get(id string) (models.Document, bool) {
	if s == nil {
		return models.Document{}, false
	}
	doc, ok := s.byID[id]
	return doc, ok
}

// Len returns the number of documents.
func (s *DocumentStore) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byID)
}

// Ordered returns the documents in insertion order.
func (s *DocumentStore) Ordered() []models.Document {
	if s == nil {
		return nil
	}
	out := make([]models.Document, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}
