package search

import (
	"strings"

	"github.com/hyperjump/shirabe/internal/models"
)

// DefaultSectionLabelLength is the number of characters of passage text used as a
// section label when a result has no bookmark title.
const DefaultSectionLabelLength = 100

// FormatHits turns results into display hits. A hit without a resolved page is
// reported on page 1; a hit without a title is labelled by the start of its text.
func FormatHits(results []models.SearchResult, labelLen int) []models.Hit {
	if labelLen <= 0 {
		labelLen = DefaultSectionLabelLength
	}
	hits := make([]models.Hit, 0, len(results))
	for _, r := range results {
		h := models.Hit{
			ID:        r.ID,
			Page:      1,
			Relevance: r.Score,
			Text:      r.Text,
		}
		if r.Metadata.PageNumber != nil {
			h.Page = *r.Metadata.PageNumber
		}
		if r.Metadata.Title != nil && *r.Metadata.Title != "" {
			h.Title = *r.Metadata.Title
			h.Section = h.Title
		} else {
			h.Section = SectionLabel(r.Text, labelLen)
		}
		hits = append(hits, h)
	}
	return hits
}

// SectionLabel returns the first maxLen characters of text with whitespace collapsed.
func SectionLabel(text string, maxLen int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if maxLen <= 0 || len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen])
}
