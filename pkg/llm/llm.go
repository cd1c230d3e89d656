// Package llm extracts search terms from natural-language queries and turns
// sales summaries into prose insights.
//
// With an API key the work goes to an OpenAI-compatible model. Without one,
// or whenever the model cannot be reached, results come from local keyword
// extraction and templates, and Source on the result says which was used.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/eunmann/shopsight/internal/logctx"
	"github.com/eunmann/shopsight/internal/metrics"
	"github.com/eunmann/shopsight/pkg/humanfmt"
	"github.com/shopspring/decimal"
)

// Result sources.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

const (
	termsPrompt = "You are a search query analyzer for an e-commerce platform. " +
		"Extract key product attributes from the user's query. " +
		"Return a comma-separated list of search terms (product type, brand, color, style, etc.)."
	insightsPrompt = "You are an e-commerce analytics expert. Analyze sales data and provide " +
		"clear, actionable insights. Be specific, mention numbers, and identify patterns. " +
		"Format your response as: 1) A brief summary paragraph, 2) 3-4 specific insights."
)

// SummaryInput is the sales summary of one product.
type SummaryInput struct {
	ArticleID       string
	ProductName     string
	TotalRevenue    decimal.Decimal
	TotalUnits      int64
	AvgDailyRevenue decimal.Decimal
	AvgDailyUnits   float64
	Trend           string
	DaysOfData      int
}

// Insight is one finding about a product.
type Insight struct {
	Type        string  `json:"type"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// Insights is the result of Summarize.
type Insights struct {
	ArticleID string    `json:"article_id"`
	Summary   string    `json:"summary"`
	Insights  []Insight `json:"insights"`
	Source    string    `json:"source"`
}

// Terms is the result of ExtractTerms.
type Terms struct {
	Terms  []string
	Source string
}

// Completer is a chat model.
type Completer interface {
	Complete(ctx context.Context, op string, messages []Message) (string, error)
}

// Service answers with the model when one is configured and falls back
// locally otherwise.
type Service struct {
	model Completer
}

// New returns a Service. A nil model selects the local fallbacks only.
func New(model Completer) *Service {
	return &Service{model: model}
}

// Configured reports whether a remote model is set.
func (s *Service) Configured() bool {
	return s.model != nil
}

// ExtractTerms returns lowercased search terms for query.
func (s *Service) ExtractTerms(ctx context.Context, query string) Terms {
	if s.model == nil {
		metrics.RecordLLMCall("extract_terms", "fallback")
		return Terms{Terms: KeywordTerms(query), Source: SourceFallback}
	}
	out, err := s.model.Complete(ctx, "extract_terms", []Message{
		{Role: "system", Content: termsPrompt},
		{Role: "user", Content: "Extract search terms from: " + query},
	})
	if err != nil {
		return Terms{Terms: KeywordTerms(query), Source: SourceFallback}
	}
	var terms []string
	for _, t := range strings.Split(out, ",") {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		return Terms{Terms: KeywordTerms(query), Source: SourceFallback}
	}
	logger := logctx.FromContext(ctx)
	logger.Debug().Str("query", query).Strs("terms", terms).Msg("terms extracted")
	return Terms{Terms: terms, Source: SourceModel}
}

// KeywordTerms lowercases the words of query longer than two characters.
func KeywordTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(query) {
		if len(w) > 2 {
			terms = append(terms, strings.ToLower(w))
		}
	}
	return terms
}

// Summarize describes a product's sales performance.
func (s *Service) Summarize(ctx context.Context, in SummaryInput) Insights {
	if s.model == nil {
		metrics.RecordLLMCall("summarize", "fallback")
		return TemplateInsights(in)
	}
	out, err := s.model.Complete(ctx, "summarize", []Message{
		{Role: "system", Content: insightsPrompt},
		{Role: "user", Content: "Analyze this product's sales performance:\n" + summaryContext(in)},
	})
	if err != nil {
		return TemplateInsights(in)
	}
	res := ParseInsights(out)
	res.ArticleID = in.ArticleID
	return res
}

func summaryContext(in SummaryInput) string {
	name := in.ProductName
	if name == "" {
		name = "Unknown Product"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s\n", name)
	fmt.Fprintf(&b, "Total Revenue (%d days of data): %s\n", in.DaysOfData, humanfmt.Money(in.TotalRevenue))
	fmt.Fprintf(&b, "Total Units Sold: %d\n", in.TotalUnits)
	fmt.Fprintf(&b, "Average Daily Revenue: %s\n", humanfmt.Money(in.AvgDailyRevenue))
	fmt.Fprintf(&b, "Average Daily Units: %.1f\n", in.AvgDailyUnits)
	fmt.Fprintf(&b, "Trend: %s\n", in.Trend)
	return b.String()
}
