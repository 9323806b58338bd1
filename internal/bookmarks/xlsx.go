package bookmarks

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/shirabe/internal/models"
)

// LoadXLSX imports bookmarks from a spreadsheet. When the first row names the columns
// bookmark_id, title and page_number (in any order) they are matched by name;
// otherwise columns A, B and C are read in that order. sheet "" means the first sheet.
func LoadXLSX(path, sheet string) ([]models.Bookmark, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("spreadsheet %s has no sheets", path)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return []models.Bookmark{}, nil
	}

	idCol, titleCol, pageCol := 0, 1, 2
	start := 0
	if cols, ok := headerColumns(rows[0]); ok {
		idCol, titleCol, pageCol = cols[0], cols[1], cols[2]
		start = 1
	}

	out := make([]models.Bookmark, 0, len(rows)-start)
	for i := start; i < len(rows); i++ {
		row := rows[i]
		id := cell(row, idCol)
		if id == "" {
			continue
		}
		page := 0
		if raw := cell(row, pageCol); raw != "" {
			page, err = strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: page number %q: %w", i+1, raw, err)
			}
		}
		out = append(out, models.Bookmark{BookmarkID: id, Title: cell(row, titleCol), PageNumber: page})
	}
	return out, nil
}

func headerColumns(row []string) ([3]int, bool) {
	cols := [3]int{-1, -1, -1}
	for i, name := range row {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "bookmark_id", "bookmark":
			cols[0] = i
		case "title":
			cols[1] = i
		case "page_number", "page":
			cols[2] = i
		}
	}
	return cols, cols[0] >= 0 && cols[1] >= 0 && cols[2] >= 0
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
