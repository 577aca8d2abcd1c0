package catalog

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// deletePageSize bounds how many page ids are fetched per delete round.
const deletePageSize = 500

// BleveCatalog implements Catalog using Bleve.
type BleveCatalog struct {
	index bleve.Index
}

// NewBleveCatalog creates or opens a Bleve index at path.
// If the path already exists, the existing index is opened and reused.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveCatalog(path string) (*BleveCatalog, error) {
	im := bleve.NewIndexMapping()

	pageMapping := bleve.NewDocumentMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so queries match the exact word.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	pageMapping.AddFieldMappingsAt("content", textFieldMapping)
	pageMapping.AddFieldMappingsAt("title", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	keywordFieldMapping.Analyzer = keyword.Name
	pageMapping.AddFieldMappingsAt("library_id", keywordFieldMapping)
	pageMapping.AddFieldMappingsAt("path", keywordFieldMapping)
	pageMapping.AddFieldMappingsAt("page", bleve.NewNumericFieldMapping())
	im.AddDocumentMapping("page", pageMapping)
	im.DefaultType = "page"
	im.DefaultMapping = pageMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveCatalog{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveCatalog{index: index}, nil
}

func pageID(libraryID string, page int) string {
	return libraryID + "#" + strconv.Itoa(page)
}

// IndexDocument indexes the non-empty pages of doc in one batch after removing old pages.
func (b *BleveCatalog) IndexDocument(ctx context.Context, doc Document, pages []string) error {
	if doc.LibraryID == "" {
		return fmt.Errorf("catalog document needs a library id")
	}
	if err := b.DeleteDocument(ctx, doc.LibraryID); err != nil {
		return err
	}
	batch := b.index.NewBatch()
	for i, raw := range pages {
		content := normalizePage(raw)
		if content == "" {
			continue
		}
		err := batch.Index(pageID(doc.LibraryID, i), map[string]interface{}{
			"library_id": doc.LibraryID,
			"path":       doc.Path,
			"title":      doc.Title,
			"page":       float64(i),
			"content":    content,
		})
		if err != nil {
			return fmt.Errorf("failed to batch page %d: %w", i, err)
		}
	}
	if batch.Size() == 0 {
		return nil
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index %s: %w", doc.Path, err)
	}
	return nil
}

// Search runs a match (or fuzzy) query over title and content and returns up to limit pages.
func (b *BleveCatalog) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return []Hit{}, nil
	}
	if limit <= 0 {
		limit = 10
	}
	titleBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 2
	if opts != nil {
		if opts.TitleBoost > 1 {
			titleBoost = opts.TitleBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	var q blevequery.Query
	if fuzzyEnabled {
		q = bleve.NewDisjunctionQuery(
			buildFuzzyQuery(query, fuzziness, "content", 1),
			buildFuzzyQuery(query, fuzziness, "title", titleBoost),
		)
	} else {
		cq := bleve.NewMatchQuery(query)
		cq.SetField("content")
		tq := bleve.NewMatchQuery(query)
		tq.SetField("title")
		tq.SetBoost(titleBoost)
		q = bleve.NewDisjunctionQuery(cq, tq)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"library_id", "path", "title", "page"}
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField("content")
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}

	out := make([]Hit, 0, len(results.Hits))
	for _, hit := range results.Hits {
		h := Hit{Score: hit.Score, Fragments: hit.Fragments["content"]}
		h.LibraryID, _ = hit.Fields["library_id"].(string)
		h.Path, _ = hit.Fields["path"].(string)
		h.Title, _ = hit.Fields["title"].(string)
		if page, ok := hit.Fields["page"].(float64); ok {
			h.Page = int(page)
		}
		out = append(out, h)
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms, filtering out empty strings.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries for each term in the query,
// restricted to field.
func buildFuzzyQuery(queryStr string, fuzziness int, field string, boost float64) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		fq.SetBoost(boost)
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// DeleteDocument removes every page indexed for libraryID.
func (b *BleveCatalog) DeleteDocument(ctx context.Context, libraryID string) error {
	for {
		tq := bleve.NewTermQuery(libraryID)
		tq.SetField("library_id")
		req := bleve.NewSearchRequest(tq)
		req.Size = deletePageSize
		results, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to find pages of %s: %w", libraryID, err)
		}
		if len(results.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, hit := range results.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("failed to delete pages of %s: %w", libraryID, err)
		}
	}
}

// DocCount returns the number of indexed pages.
func (b *BleveCatalog) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveCatalog) Close() error {
	return b.index.Close()
}
