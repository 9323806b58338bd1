package models

// ResultMetadata carries a hit's provenance plus the title and page resolved from bookmarks.
// Title and PageNumber are nil when the document has no bookmark or the bookmark is unknown.
type ResultMetadata struct {
	Source     string  `json:"source"`
	NodeIndex  int     `json:"nodeIndex"`
	XPath      string  `json:"xpath,omitempty"`
	TagName    string  `json:"tagName,omitempty"`
	Bookmark   *string `json:"bookmark,omitempty"`
	Title      *string `json:"title,omitempty"`
	PageNumber *int    `json:"pageNumber,omitempty"`
}

// SearchResult is a single semantic hit. Distance is the raw metric value; Score is
// normalized so that higher is always better.
type SearchResult struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata ResultMetadata `json:"metadata"`
	Distance float64        `json:"distance"`
	Score    float64        `json:"score"`
}

// Hit is a SearchResult formatted for display.
type Hit struct {
	ID        string  `json:"id"`
	Page      int     `json:"page"`
	Relevance float64 `json:"relevance"`
	Section   string  `json:"section"`
	Title     string  `json:"title,omitempty"`
	Text      string  `json:"text"`
}

// SearchResponse is returned by the HTTP API.
type SearchResponse struct {
	Query     string         `json:"query"`
	Results   []SearchResult `json:"results"`
	Hits      []Hit          `json:"hits"`
	QueryTime int64          `json:"took_ms"`
}

// Stats describes the current index.
type Stats struct {
	DocumentCount int    `json:"documentCount"`
	Dimension     int    `json:"dimension"`
	ModelName     string `json:"modelName"`
	DBPath        string `json:"dbPath"`
	Space         string `json:"space,omitempty"`
	Loaded        bool   `json:"loaded"`
	DiskBytes     int64  `json:"diskBytes,omitempty"`
}
