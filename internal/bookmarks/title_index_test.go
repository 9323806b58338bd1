package bookmarks

import "testing"

func TestTitleIndex_Find(t *testing.T) {
	m, _ := Parse([]byte(sampleJSON))
	idx, err := NewTitleIndex(m)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	got, err := idx.Find("airway", 5, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].BookmarkID != "B1" {
		t.Errorf("Find(airway)=%+v, want [B1]", got)
	}

	got, err = idx.Find("ventilation", 5, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].BookmarkID != "B3" {
		t.Errorf("Find(ventilation)=%+v, want [B3]", got)
	}
}

func TestTitleIndex_Fuzzy(t *testing.T) {
	m, _ := Parse([]byte(sampleJSON))
	idx, err := NewTitleIndex(m)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	exact, _ := idx.Find("airwya", 5, false)
	if len(exact) != 0 {
		t.Errorf("exact Find(airwya)=%+v, want none", exact)
	}
	fuzzy, err := idx.Find("airwya", 5, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(fuzzy) == 0 || fuzzy[0].BookmarkID != "B1" {
		t.Errorf("fuzzy Find(airwya)=%+v, want B1 first", fuzzy)
	}
}

func TestTitleIndex_EmptyQuery(t *testing.T) {
	idx, err := NewTitleIndex(New(nil))
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	got, err := idx.Find("  ", 5, false)
	if err != nil || len(got) != 0 {
		t.Errorf("Find(blank)=%v, %v", got, err)
	}
}
