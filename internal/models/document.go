// Package models defines core data structures for documents, bookmarks, queries, and search results.
package models

// Document is one indexed passage of a source manual.
type Document struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Source    string  `json:"source"`
	NodeIndex int     `json:"nodeIndex"`
	XPath     string  `json:"xpath,omitempty"`
	TagName   string  `json:"tagName,omitempty"`
	Bookmark  *string `json:"bookmark"`
}

// BookmarkID returns the bookmark reference or "" when the document has none.
func (d *Document) BookmarkID() string {
	if d.Bookmark == nil {
		return ""
	}
	return *d.Bookmark
}

// Bookmark maps a named anchor in the source manual to a title and a 1-based page.
type Bookmark struct {
	BookmarkID string `json:"bookmark_id"`
	Title      string `json:"title"`
	PageNumber int    `json:"page_number"`
}

// StringPtr returns a pointer to s. Handy for building documents with bookmarks.
func StringPtr(s string) *string {
	return &s
}
