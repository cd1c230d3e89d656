package query

import (
	"fmt"
	"strings"

	"github.com/eunmann/shopsight/pkg/model"
	"github.com/eunmann/shopsight/pkg/tablestore"
	"github.com/shopspring/decimal"
)

// Trend labels.
const (
	TrendIncreasing   = "increasing"
	TrendDecreasing   = "decreasing"
	TrendStable       = "stable"
	TrendInsufficient = "insufficient_data"
)

const (
	defaultSearchLimit = 10
	// SummaryDays is the history window SalesSummary covers.
	SummaryDays = 90
	trendWeek   = 7
)

var (
	trendUp   = decimal.RequireFromString("1.1")
	trendDown = decimal.RequireFromString("0.9")
)

// Snapshot is an immutable, indexed view of one table generation.
type Snapshot struct {
	manifest *tablestore.Manifest
	products []model.Product
	sales    []model.SalesRow
	text     []string
	// spans[i] is the half-open range of sales rows for products[i].
	spans [][2]int
	index *idIndex
}

// NewSnapshot indexes a loaded generation. Sales must be sorted by
// (article_id, date), which tablestore guarantees.
func NewSnapshot(g *tablestore.Generation) (*Snapshot, error) {
	s := &Snapshot{
		manifest: g.Manifest,
		products: g.Products,
		sales:    g.Sales,
		text:     make([]string, len(g.Products)),
		spans:    make([][2]int, len(g.Products)),
	}
	ids := make([]string, len(g.Products))
	for i, p := range g.Products {
		ids[i] = p.ArticleID
		s.text[i] = p.SearchText()
	}
	idx, err := newIDIndex(ids)
	if err != nil {
		return nil, err
	}
	s.index = idx

	for start := 0; start < len(g.Sales); {
		end := start + 1
		for end < len(g.Sales) && g.Sales[end].ArticleID == g.Sales[start].ArticleID {
			end++
		}
		if i, ok := idx.lookup(g.Sales[start].ArticleID); ok {
			s.spans[i] = [2]int{start, end}
		}
		start = end
	}
	return s, nil
}

// Manifest describes the generation.
func (s *Snapshot) Manifest() *tablestore.Manifest { return s.manifest }

// Len returns the number of products.
func (s *Snapshot) Len() int { return len(s.products) }

// Product returns the product with id, or model.ErrNotFound.
func (s *Snapshot) Product(id string) (model.Product, error) {
	i, ok := s.index.lookup(id)
	if !ok {
		return model.Product{}, fmt.Errorf("%w: product %s", model.ErrNotFound, id)
	}
	return s.products[i], nil
}

// Sales returns every sales row of id ordered by date. The slice aliases the
// snapshot and must not be modified.
func (s *Snapshot) Sales(id string) []model.SalesRow {
	i, ok := s.index.lookup(id)
	if !ok {
		return nil
	}
	sp := s.spans[i]
	return s.sales[sp[0]:sp[1]:sp[1]]
}

// Search returns up to limit products whose attributes contain term,
// case-insensitively, in article_id order. An empty term matches everything.
func (s *Snapshot) Search(term string, limit int) []model.Product {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	term = strings.ToLower(strings.TrimSpace(term))
	var out []model.Product
	for i, text := range s.text {
		if strings.Contains(text, term) {
			out = append(out, s.products[i])
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

// SalesPoint is one day of a product's history.
type SalesPoint struct {
	Date      model.Date      `json:"date"`
	Revenue   decimal.Decimal `json:"revenue"`
	UnitsSold int64           `json:"units_sold"`
}

// History is a window of a product's daily sales.
type History struct {
	ArticleID    string          `json:"article_id"`
	ProductName  string          `json:"product_name"`
	Data         []SalesPoint    `json:"data"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalUnits   int64           `json:"total_units"`

	rows []model.SalesRow
}

// Rows returns the sales rows behind Data.
func (h History) Rows() []model.SalesRow { return h.rows }

// SalesHistory returns the rows of id dated within days of its latest sale,
// inclusive. days <= 0 returns the whole history. It fails with
// model.ErrNotFound if the product is unknown or has no sales.
func (s *Snapshot) SalesHistory(id string, days int) (History, error) {
	p, err := s.Product(id)
	if err != nil {
		return History{}, err
	}
	rows := s.Sales(id)
	if len(rows) == 0 {
		return History{}, fmt.Errorf("%w: no sales for product %s", model.ErrNotFound, id)
	}
	if days > 0 {
		from := rows[len(rows)-1].Date.AddDays(-days)
		first := 0
		for first < len(rows) && rows[first].Date < from {
			first++
		}
		rows = rows[first:]
	}

	h := History{
		ArticleID:   id,
		ProductName: productName(p),
		Data:        make([]SalesPoint, len(rows)),
		rows:        rows,
	}
	for i, r := range rows {
		h.Data[i] = SalesPoint{Date: r.Date, Revenue: r.TotalRevenue, UnitsSold: r.UnitsSold}
		h.TotalRevenue = h.TotalRevenue.Add(r.TotalRevenue)
		h.TotalUnits += r.UnitsSold
	}
	return h, nil
}

// Summary condenses the last SummaryDays of a product's sales.
type Summary struct {
	ArticleID       string          `json:"article_id"`
	ProductName     string          `json:"product_name"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	TotalUnits      int64           `json:"total_units"`
	AvgDailyRevenue decimal.Decimal `json:"avg_daily_revenue"`
	AvgDailyUnits   float64         `json:"avg_daily_units"`
	Trend           string          `json:"trend"`
	DaysOfData      int             `json:"days_of_data"`
}

// SalesSummary totals the recent history of id and labels its trend by
// comparing revenue of the first and last week of the window.
func (s *Snapshot) SalesSummary(id string) (Summary, error) {
	h, err := s.SalesHistory(id, SummaryDays)
	if err != nil {
		return Summary{}, err
	}
	n := len(h.Data)
	return Summary{
		ArticleID:       id,
		ProductName:     h.ProductName,
		TotalRevenue:    h.TotalRevenue,
		TotalUnits:      h.TotalUnits,
		AvgDailyRevenue: h.TotalRevenue.DivRound(decimal.NewFromInt(int64(n)), 2),
		AvgDailyUnits:   float64(h.TotalUnits) / float64(n),
		Trend:           trend(h.Data),
		DaysOfData:      n,
	}, nil
}

func trend(points []SalesPoint) string {
	if len(points) < 2*trendWeek {
		return TrendInsufficient
	}
	var first, last decimal.Decimal
	for _, p := range points[:trendWeek] {
		first = first.Add(p.Revenue)
	}
	for _, p := range points[len(points)-trendWeek:] {
		last = last.Add(p.Revenue)
	}
	switch {
	case last.GreaterThan(first.Mul(trendUp)):
		return TrendIncreasing
	case last.LessThan(first.Mul(trendDown)):
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func productName(p model.Product) string {
	if p.Name == nil || *p.Name == "" {
		return "Unknown Product"
	}
	return *p.Name
}
