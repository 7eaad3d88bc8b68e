// Package cli provides CLI output helpers for statsearch.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperjump/statsearch/internal/models"
	"github.com/hyperjump/statsearch/internal/vector"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// SearchOutput is the JSON shape of a CLI search.
type SearchOutput struct {
	Query     string           `json:"query"`
	QueryTime int64            `json:"query_time_ms"`
	Total     int              `json:"total"`
	Results   []*models.Record `json:"results"`
}

// WriteSearchResults writes hydrated search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, query string, records []*models.Record, took time.Duration, format SearchOutputFormat) error {
	out := SearchOutput{Query: query, QueryTime: took.Milliseconds(), Total: len(records), Results: records}
	if out.Results == nil {
		out.Results = []*models.Record{}
	}
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	default:
		writeSearchResultsText(w, out)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, out SearchOutput) {
	fmt.Fprintf(w, "\nFound %d results for %q in %dms\n\n", out.Total, out.Query, out.QueryTime)
	for i, r := range out.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | ID: %d\n", i+1, r.ID)
		if r.Title != "" {
			fmt.Fprintf(w, "Title: %s\n", r.Title)
		}
		if r.Subject != "" {
			fmt.Fprintf(w, "Subject: %s\n", r.Subject)
		}
		if r.Date != "" {
			fmt.Fprintf(w, "Date: %s\n", r.Date)
		}
		if r.Link != "" {
			fmt.Fprintf(w, "Link: %s\n", r.Link)
		}
		if r.Description != "" {
			fmt.Fprintf(w, "\n%s\n", TruncateWords(Truncate(r.Description, 200), 40))
		}
		fmt.Fprintln(w)
	}
}

// WriteNeighbors writes raw index hits (id and squared L2 distance).
func WriteNeighbors(w io.Writer, neighbors []vector.Neighbor, format SearchOutputFormat) error {
	if format == OutputJSON {
		if neighbors == nil {
			neighbors = []vector.Neighbor{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(neighbors)
	}
	fmt.Fprintf(w, "%-6s %-12s %s\n", "RANK", "ID", "DISTANCE")
	for i, n := range neighbors {
		fmt.Fprintf(w, "%-6d %-12d %.6f\n", i+1, n.ID, n.Distance)
	}
	return nil
}

// Truncate truncates s to maxLen bytes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
