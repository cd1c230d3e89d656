package query

import (
	"context"
	"strings"

	"github.com/eunmann/shopsight/internal/logctx"
	"github.com/eunmann/shopsight/pkg/llm"
	"github.com/eunmann/shopsight/pkg/model"
	"github.com/shopspring/decimal"
)

// TermExtractor turns a natural-language query into search terms.
type TermExtractor interface {
	ExtractTerms(ctx context.Context, query string) llm.Terms
}

// ProductResult is one search hit.
type ProductResult struct {
	ArticleID   string           `json:"article_id"`
	Name        string           `json:"name"`
	Category    *string          `json:"category"`
	Price       *decimal.Decimal `json:"price"`
	Description *string          `json:"description"`
}

// SearchResult is the answer to a natural-language search.
type SearchResult struct {
	Query      string          `json:"query"`
	Terms      []string        `json:"terms"`
	TermSource string          `json:"term_source"`
	Results    []ProductResult `json:"results"`
	Count      int             `json:"count"`
}

// Searcher combines term extraction with snapshot search.
type Searcher struct {
	svc   *Service
	terms TermExtractor
}

// NewSearcher returns a Searcher.
func NewSearcher(svc *Service, terms TermExtractor) *Searcher {
	return &Searcher{svc: svc, terms: terms}
}

// Search extracts terms from query, searches each in turn and merges hits
// without duplicates up to limit. When no term matches, the raw query is
// searched as a whole.
func (s *Searcher) Search(ctx context.Context, query string, limit int) (SearchResult, error) {
	snap, err := s.svc.Current()
	if err != nil {
		return SearchResult{}, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	terms := s.terms.ExtractTerms(ctx, query)
	seen := make(map[string]struct{})
	var hits []model.Product
	for _, term := range terms.Terms {
		for _, p := range snap.Search(term, limit) {
			if _, dup := seen[p.ArticleID]; dup {
				continue
			}
			seen[p.ArticleID] = struct{}{}
			hits = append(hits, p)
			if len(hits) == limit {
				break
			}
		}
		if len(hits) == limit {
			break
		}
	}
	if len(hits) == 0 {
		hits = snap.Search(query, limit)
	}

	res := SearchResult{
		Query:      query,
		Terms:      terms.Terms,
		TermSource: terms.Source,
		Results:    make([]ProductResult, len(hits)),
		Count:      len(hits),
	}
	for i, p := range hits {
		res.Results[i] = snap.result(p)
	}
	logger := logctx.FromContext(ctx)
	logger.Debug().
		Str("query", query).
		Strs("terms", terms.Terms).
		Int("results", res.Count).
		Msg("search")
	return res, nil
}

// result formats a hit. Price is the latest average selling price.
func (s *Snapshot) result(p model.Product) ProductResult {
	r := ProductResult{
		ArticleID:   p.ArticleID,
		Name:        productName(p),
		Category:    p.ProductType,
		Description: description(p),
	}
	if rows := s.Sales(p.ArticleID); len(rows) > 0 {
		price := rows[len(rows)-1].AvgPrice.Round(2)
		r.Price = &price
	}
	return r
}

func description(p model.Product) *string {
	var parts []string
	if v := model.Str(p.Colour); v != "" {
		parts = append(parts, v)
	}
	if v := model.Str(p.ProductGroup); v != "" {
		parts = append(parts, v)
	}
	if v := model.Str(p.Department); v != "" {
		parts = append(parts, "from "+v)
	}
	if len(parts) == 0 {
		return nil
	}
	d := strings.Join(parts, " ")
	return &d
}
