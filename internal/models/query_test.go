package models

import (
	"encoding/json"
	"testing"
)

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name     string
		query    *SearchQuery
		max      int
		wantErr  bool
		wantTopK int
	}{
		{"empty query", &SearchQuery{Query: ""}, 100, true, 0},
		{"whitespace query", &SearchQuery{Query: "   "}, 100, true, 0},
		{"sets default top k", &SearchQuery{Query: "airway"}, 100, false, DefaultTopK},
		{"keeps explicit top k", &SearchQuery{Query: "airway", TopK: 15}, 100, false, 15},
		{"caps top k", &SearchQuery{Query: "x", TopK: 200}, 100, false, 100},
		{"no cap when max is zero", &SearchQuery{Query: "x", TopK: 200}, 0, false, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate(tt.max)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.query.TopK != tt.wantTopK {
				t.Errorf("TopK=%d, want %d", tt.query.TopK, tt.wantTopK)
			}
		})
	}
}

func TestDocument_JSONFieldNames(t *testing.T) {
	raw := `{"id":"node_3","text":"Assess airway","source":"clinical-guidelines.html","nodeIndex":3,"xpath":"/html/body/p[5]","tagName":"p","bookmark":null}`
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.ID != "node_3" || doc.NodeIndex != 3 || doc.XPath != "/html/body/p[5]" || doc.TagName != "p" {
		t.Errorf("unexpected document: %+v", doc)
	}
	if doc.Bookmark != nil || doc.BookmarkID() != "" {
		t.Errorf("bookmark should be nil, got %v", doc.Bookmark)
	}
}

func TestBookmark_JSONFieldNames(t *testing.T) {
	var b Bookmark
	if err := json.Unmarshal([]byte(`{"title":"Airway","page_number":42,"bookmark_id":"B1"}`), &b); err != nil {
		t.Fatal(err)
	}
	if b.BookmarkID != "B1" || b.Title != "Airway" || b.PageNumber != 42 {
		t.Errorf("unexpected bookmark: %+v", b)
	}
}
