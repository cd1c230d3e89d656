// Package salesagg folds transactions for a selected product set into one
// row per (article_id, date).
package salesagg

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/eunmann/shopsight/pkg/dataset"
	"github.com/eunmann/shopsight/pkg/model"
	"github.com/shopspring/decimal"
)

// BatchSource yields transaction batches until io.EOF.
type BatchSource interface {
	Next(ctx context.Context) (*dataset.Batch, error)
}

type group struct {
	sum   decimal.Decimal
	count int64
}

// Aggregator accumulates exact per-key sums and counts. Keys seen in several
// batches merge into one group. Not safe for concurrent use.
type Aggregator struct {
	selected map[string]struct{}
	groups   map[model.SalesKey]*group
}

// New returns an Aggregator restricted to selected article ids.
func New(selected map[string]struct{}) *Aggregator {
	return &Aggregator{
		selected: selected,
		groups:   make(map[model.SalesKey]*group),
	}
}

// Add folds one batch. The batch must carry dates and prices.
func (a *Aggregator) Add(b *dataset.Batch) (kept, filtered int) {
	for i, id := range b.ArticleIDs[:b.Len()] {
		if _, ok := a.selected[id]; !ok {
			filtered++
			continue
		}
		key := model.SalesKey{ArticleID: id, Date: b.Dates[i]}
		g := a.groups[key]
		if g == nil {
			g = &group{}
			a.groups[key] = g
		}
		g.sum = g.sum.Add(b.Prices[i])
		g.count++
		kept++
	}
	return kept, filtered
}

// Rows emits one row per key, sorted by article_id then date. Revenue and
// average price are rounded to model.MoneyScale.
func (a *Aggregator) Rows() []model.SalesRow {
	rows := make([]model.SalesRow, 0, len(a.groups))
	for key, g := range a.groups {
		rows = append(rows, model.SalesRow{
			ArticleID:    key.ArticleID,
			Date:         key.Date,
			TotalRevenue: model.RoundMoney(g.sum),
			AvgPrice:     g.sum.DivRound(decimal.NewFromInt(g.count), model.MoneyScale),
			UnitsSold:    g.count,
		})
	}
	model.SortSalesRows(rows)
	return rows
}

// Aggregate runs the aggregation pass over src.
func Aggregate(ctx context.Context, src BatchSource, selected map[string]struct{}) ([]model.SalesRow, error) {
	a := New(selected)
	for {
		b, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return a.Rows(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("aggregation pass: %w", err)
		}
		a.Add(b)
	}
}
