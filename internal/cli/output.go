// Package cli provides terminal output for the shirabe commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/search"
	"github.com/hyperjump/shirabe/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one line per hit.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const textPreviewLen = 300

// ParseOutputFormat accepts text, compact and json.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format: %s (use text, compact or json)", s)
	}
}

// WriteSearchResponse writes a search response to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResponse(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		for i, h := range response.Hits {
			fmt.Fprintf(w, "%2d. p.%-4d %.4f  %s\n", i+1, h.Page, h.Relevance, h.Section)
		}
		return nil
	default:
		writeSearchText(w, response)
		return nil
	}
}

func writeSearchText(w io.Writer, response *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms for %q\n\n", len(response.Hits), response.QueryTime, response.Query)
	for i, h := range response.Hits {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Relevance: %.4f | Page: %d\n", i+1, h.Relevance, h.Page)
		fmt.Fprintf(w, "Section: %s\n", h.Section)
		if i < len(response.Results) {
			r := response.Results[i]
			fmt.Fprintf(w, "ID: %s (%s, node %d)\n", r.ID, r.Metadata.Source, r.Metadata.NodeIndex)
		}
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(h.Text, textPreviewLen))
	}
}

// WriteStats writes index statistics.
func WriteStats(w io.Writer, stats models.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "Documents:  %d\n", stats.DocumentCount)
	fmt.Fprintf(w, "Dimension:  %d\n", stats.Dimension)
	fmt.Fprintf(w, "Model:      %s\n", stats.ModelName)
	if stats.Space != "" {
		fmt.Fprintf(w, "Metric:     %s\n", stats.Space)
	}
	fmt.Fprintf(w, "Location:   %s\n", stats.DBPath)
	if stats.DiskBytes > 0 {
		fmt.Fprintf(w, "Disk usage: %s\n", formatBytes(stats.DiskBytes))
	}
	fmt.Fprintf(w, "Loaded:     %t\n", stats.Loaded)
	return nil
}

// WriteBookmarks writes a table of contents.
func WriteBookmarks(w io.Writer, marks []models.Bookmark, format OutputFormat) error {
	if format == OutputJSON {
		if marks == nil {
			marks = []models.Bookmark{}
		}
		return writeJSON(w, marks)
	}
	if len(marks) == 0 {
		fmt.Fprintln(w, "No bookmarks.")
		return nil
	}
	for _, b := range marks {
		fmt.Fprintf(w, "p.%-4d %s\n", b.PageNumber, b.Title)
	}
	return nil
}

// WriteIndexReport summarizes an indexing run.
func WriteIndexReport(w io.Writer, report *search.IndexReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "Indexed %d documents (dimension %d) in %s\n",
		report.Indexed, report.Dimension, report.Elapsed.Round(1e6))
	if report.Duplicates > 0 {
		fmt.Fprintf(w, "Replaced %d duplicate ids\n", report.Duplicates)
	}
	if len(report.Skipped) > 0 {
		fmt.Fprintf(w, "Skipped %d documents:\n", len(report.Skipped))
		for _, s := range report.Skipped {
			fmt.Fprintf(w, "  %s: %v\n", s.ID, s.Err)
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
