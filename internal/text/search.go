package text

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/yomu/internal/backend"
	"github.com/hyperjump/yomu/internal/models"
)

// PageSource is the raw input for one page of an Index.
type PageSource struct {
	Chars  []backend.Char
	Width  float64
	Height float64
}

type indexedPage struct {
	text string
	// rects[i] is the top-left rectangle of the i-th character of text
	rects []models.Rect
	// charAt maps a byte offset of text to its character offset; -1 inside a multi-byte rune
	charAt []int
}

// Index is the searchable text of a whole document.
type Index struct {
	pages []indexedPage
}

// BuildIndex concatenates each page's resolvable characters into a linear string with a
// parallel rectangle table.
func BuildIndex(pages []PageSource) *Index {
	idx := &Index{pages: make([]indexedPage, len(pages))}
	for i, src := range pages {
		var sb strings.Builder
		var p indexedPage
		for _, c := range src.Chars {
			if c.Rune == 0 {
				continue
			}
			start := sb.Len()
			sb.WriteRune(c.Rune)
			for b := start; b < sb.Len(); b++ {
				if b == start {
					p.charAt = append(p.charAt, len(p.rects))
				} else {
					p.charAt = append(p.charAt, -1)
				}
			}
			p.rects = append(p.rects, flip(c, src.Height))
		}
		p.text = sb.String()
		idx.pages[i] = p
	}
	return idx
}

// PageCount returns the number of indexed pages.
func (idx *Index) PageCount() int {
	return len(idx.pages)
}

// PageString returns the linear text of page i, or "" when i is out of range.
func (idx *Index) PageString(i int) string {
	if i < 0 || i >= len(idx.pages) {
		return ""
	}
	return idx.pages[i].text
}

// Search finds every non-overlapping, case-sensitive occurrence of query, page by page and
// left to right. An empty query, or one that is not valid UTF-8, yields no hits.
func (idx *Index) Search(query string) []models.SearchHit {
	hits := []models.SearchHit{}
	if query == "" || !utf8.ValidString(query) {
		return hits
	}
	n := utf8.RuneCountInString(query)
	for pageIndex, p := range idx.pages {
		from := 0
		for from < len(p.text) {
			pos := strings.Index(p.text[from:], query)
			if pos < 0 {
				break
			}
			startByte := from + pos
			from = startByte + len(query)

			start := p.charAt[startByte]
			if start < 0 {
				continue
			}
			end := start + n
			hits = append(hits, models.SearchHit{
				Page:  pageIndex,
				Start: start,
				End:   end,
				Rects: append([]models.Rect(nil), p.rects[start:end]...),
			})
		}
	}
	return hits
}
