package bookmarks

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hyperjump/shirabe/internal/models"
)

const sampleJSON = `[
  {"title": "Circulation", "page_number": 12, "bookmark_id": "B2"},
  {"title": "Airway", "page_number": 3, "bookmark_id": "B1"},
  {"title": "Breathing and ventilation", "page_number": 7, "bookmark_id": "B3"}
]`

func TestParseAndLookup(t *testing.T) {
	m, err := Parse([]byte(sampleJSON))
	if err != nil {
		t.Fatal(err)
	}
	if m.Len() != 3 {
		t.Fatalf("Len=%d, want 3", m.Len())
	}
	b, ok := m.Lookup("B1")
	if !ok || b.Title != "Airway" || b.PageNumber != 3 {
		t.Errorf("Lookup(B1)=%+v %v", b, ok)
	}
	if _, ok := m.Lookup("missing"); ok {
		t.Error("Lookup(missing) should report false")
	}
	if _, ok := m.Lookup(""); ok {
		t.Error("Lookup(\"\") should report false")
	}
}

func TestSorted(t *testing.T) {
	m, _ := Parse([]byte(sampleJSON))
	sorted := m.Sorted()
	want := []string{"B1", "B3", "B2"}
	for i, id := range want {
		if sorted[i].BookmarkID != id {
			t.Errorf("Sorted[%d]=%s, want %s", i, sorted[i].BookmarkID, id)
		}
	}
}

func TestNew_LastEntryWins(t *testing.T) {
	m := New([]models.Bookmark{
		{BookmarkID: "B1", Title: "old", PageNumber: 1},
		{BookmarkID: "B1", Title: "new", PageNumber: 2},
		{BookmarkID: "", Title: "ignored"},
	})
	if m.Len() != 1 {
		t.Fatalf("Len=%d, want 1", m.Len())
	}
	if b, _ := m.Lookup("B1"); b.Title != "new" {
		t.Errorf("Title=%q, want new", b.Title)
	}
}

func TestNilMapping(t *testing.T) {
	var m *Mapping
	if m.Len() != 0 {
		t.Error("nil mapping should be empty")
	}
	if _, ok := m.Lookup("B1"); ok {
		t.Error("nil mapping lookup should miss")
	}
	if len(m.Sorted()) != 0 {
		t.Error("nil mapping should sort to nothing")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := LoadFile(filepath.Join(t.TempDir(), "title_page.json"), zap.New(core))
	if m.Len() != 0 {
		t.Errorf("Len=%d, want 0", m.Len())
	}
	if logs.FilterMessage("no bookmark mapping found").Len() != 1 {
		t.Error("expected an info log for the missing file")
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "title_page.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	core, logs := observer.New(zap.WarnLevel)
	m := LoadFile(path, zap.New(core))
	if m.Len() != 0 {
		t.Errorf("Len=%d, want 0", m.Len())
	}
	if logs.FilterMessage("could not load bookmark mapping").Len() != 1 {
		t.Error("expected a warning for the malformed file")
	}
}

func TestWriteFileThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "title_page.json")
	entries := []models.Bookmark{{BookmarkID: "page-1", Title: "Page 1", PageNumber: 1}}
	if err := WriteFile(path, entries); err != nil {
		t.Fatal(err)
	}
	m := LoadFile(path, nil)
	if b, ok := m.Lookup("page-1"); !ok || b.PageNumber != 1 {
		t.Errorf("Lookup(page-1)=%+v %v", b, ok)
	}
}

func TestLoadFS(t *testing.T) {
	fsys := fstest.MapFS{"title_page.json": {Data: []byte(sampleJSON)}}
	if m := LoadFS(fsys, "title_page.json", nil); m.Len() != 3 {
		t.Errorf("Len=%d, want 3", m.Len())
	}
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toc.xlsx")
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"Title", "Page_Number", "Bookmark_ID"},
		{"Airway", 3, "B1"},
		{"", 4, ""},
		{"Circulation", 12, "B2"},
	}
	for i, row := range rows {
		cellRef, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cellRef, &row); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := LoadXLSX(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d bookmarks, want 2", len(got))
	}
	if got[0] != (models.Bookmark{BookmarkID: "B1", Title: "Airway", PageNumber: 3}) {
		t.Errorf("got[0]=%+v", got[0])
	}
	if got[1].PageNumber != 12 {
		t.Errorf("got[1].PageNumber=%d, want 12", got[1].PageNumber)
	}
}
