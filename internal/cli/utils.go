// Package cli provides output helpers for the yomu subcommands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/yomu/internal/catalog"
	"github.com/hyperjump/yomu/internal/models"
	"github.com/hyperjump/yomu/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat accepts "text" and "json".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteInfo writes document info.
func WriteInfo(w io.Writer, path string, info models.Info, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, struct {
			Path string `json:"path"`
			models.Info
		}{path, info})
	}
	fmt.Fprintf(w, "path:        %s\n", path)
	fmt.Fprintf(w, "pages:       %d\n", info.PageCount)
	fmt.Fprintf(w, "page size:   %.2f x %.2f pt\n", info.Width, info.Height)
	return nil
}

// WriteBookmarks writes the outline as an indented tree.
func WriteBookmarks(w io.Writer, bookmarks models.Bookmarks, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, bookmarks)
	}
	if len(bookmarks.Items) == 0 {
		fmt.Fprintln(w, "(no outline)")
		return nil
	}
	writeBookmarkLevel(w, bookmarks.Items, 0)
	return nil
}

func writeBookmarkLevel(w io.Writer, items []models.Bookmark, depth int) {
	for _, b := range items {
		target := "-"
		if b.PageIndex != nil {
			target = fmt.Sprintf("p.%d", *b.PageIndex+1)
		}
		fmt.Fprintf(w, "%s%s  %s\n", strings.Repeat("  ", depth), b.Title, target)
		writeBookmarkLevel(w, b.Children, depth+1)
	}
}

// WritePageText writes the text fragments of one page, one per line with their position.
func WritePageText(w io.Writer, pt models.PageText, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, pt)
	}
	for _, item := range pt.Items {
		fmt.Fprintf(w, "%7.2f %7.2f  %s\n", item.X, item.Y, item.Text)
	}
	return nil
}

// WriteSearchHits writes in-document search hits with the position of their first character.
func WriteSearchHits(w io.Writer, query string, hits []models.SearchHit, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, struct {
			Query string             `json:"query"`
			Hits  []models.SearchHit `json:"hits"`
		}{query, hits})
	}
	fmt.Fprintf(w, "\nFound %d matches for %q\n\n", len(hits), query)
	for _, h := range hits {
		fmt.Fprintf(w, "page %-4d chars %d-%d", h.Page+1, h.Start, h.End)
		if len(h.Rects) > 0 {
			r := h.Rects[0]
			fmt.Fprintf(w, "  at (%.1f, %.1f)", r.X, r.Y)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteLibraryHits writes cross-document catalog hits.
func WriteLibraryHits(w io.Writer, query string, hits []catalog.Hit, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, struct {
			Query string        `json:"query"`
			Hits  []catalog.Hit `json:"hits"`
		}{query, hits})
	}
	fmt.Fprintf(w, "\nFound %d pages for %q\n\n", len(hits), query)
	for i, h := range hits {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", i+1, h.Score)
		fmt.Fprintf(w, "Title: %s (page %d)\n", h.Title, h.Page+1)
		fmt.Fprintf(w, "Path: %s\n", h.Path)
		for _, f := range h.Fragments {
			fmt.Fprintf(w, "\n%s\n", utils.Truncate(f, 200))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteAnnotations writes annotations, one per line.
func WriteAnnotations(w io.Writer, anns []models.Annotation, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, struct {
			Annotations []models.Annotation `json:"annotations"`
		}{anns})
	}
	if len(anns) == 0 {
		fmt.Fprintln(w, "(no annotations)")
		return nil
	}
	for _, a := range anns {
		fmt.Fprintf(w, "%-12s page %-4d %-10s", a.ID, a.PageIndex+1, a.Subtype)
		if a.Metadata.Author != "" {
			fmt.Fprintf(w, " by %s", a.Metadata.Author)
		}
		if a.Metadata.Contents != "" {
			fmt.Fprintf(w, "  %q", TruncateWords(a.Metadata.Contents, 12))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteLibrary writes recently opened documents.
func WriteLibrary(w io.Writer, entries []*models.LibraryEntry, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, struct {
			Entries []*models.LibraryEntry `json:"entries"`
		}{entries})
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-30s %4d pages  %s\n",
			e.LastOpenedAt.Local().Format("2006-01-02 15:04"), utils.Truncate(e.Title, 30), e.PageCount, e.Path)
	}
	return nil
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
