package corpus

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/shirabe/internal/models"
)

// FromXLSX turns every non-blank spreadsheet row into a document with id
// "<source>#<sheet>!<row>". Cells are joined with " | ".
func FromXLSX(content []byte, source string) ([]models.Document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var docs []models.Document
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		for i, row := range rows {
			cells := make([]string, 0, len(row))
			for _, c := range row {
				if c = Preprocess(c); c != "" {
					cells = append(cells, c)
				}
			}
			text := strings.Join(cells, " | ")
			if !hasWord(text) {
				continue
			}
			docs = append(docs, models.Document{
				ID:        fmt.Sprintf("%s#%s!%d", source, sheet, i+1),
				Text:      text,
				Source:    source,
				NodeIndex: len(docs),
			})
		}
	}
	return docs, nil
}
