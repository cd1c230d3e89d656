// Package ranker selects a bounded, category-diverse subset of products by
// total revenue over the transaction corpus.
package ranker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/eunmann/shopsight/pkg/dataset"
	"github.com/eunmann/shopsight/pkg/model"
	"github.com/shopspring/decimal"
)

// BatchSource yields transaction batches until io.EOF.
type BatchSource interface {
	Next(ctx context.Context) (*dataset.Batch, error)
}

// Options bounds the selection.
type Options struct {
	TargetCount      int
	PerCategoryQuota int
}

// Revenue maps article_id to summed transaction price.
type Revenue map[string]decimal.Decimal

// Accumulate folds every batch of src into per-product revenue totals.
// Memory grows with distinct products, not rows. Batches must carry prices.
func Accumulate(ctx context.Context, src BatchSource) (Revenue, error) {
	totals := make(Revenue)
	for {
		b, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return totals, nil
		}
		if err != nil {
			return nil, fmt.Errorf("revenue pass: %w", err)
		}
		totals.Add(b)
	}
}

// Add folds one batch into r.
func (r Revenue) Add(b *dataset.Batch) {
	for i, id := range b.ArticleIDs[:b.Len()] {
		r[id] = r[id].Add(b.Prices[i])
	}
}

type candidate struct {
	id      string
	revenue decimal.Decimal
}

// byRevenue orders by revenue descending, then article_id ascending.
func byRevenue(c []candidate) func(i, j int) bool {
	return func(i, j int) bool {
		if cmp := c[i].revenue.Cmp(c[j].revenue); cmp != 0 {
			return cmp > 0
		}
		return c[i].id < c[j].id
	}
}

// Selection is the result of Select.
type Selection struct {
	// IDs are quota picks in category encounter order, then top-up picks by
	// descending revenue.
	IDs        []string
	Candidates int
	Categories int
	FromQuota  int
	FromTopUp  int
}

// Set returns IDs as a membership set.
func (s Selection) Set() map[string]struct{} {
	set := make(map[string]struct{}, len(s.IDs))
	for _, id := range s.IDs {
		set[id] = struct{}{}
	}
	return set
}

// Select joins revenue with the catalog and picks up to TargetCount ids:
// the top PerCategoryQuota per product type, then the highest-revenue
// remainder. Only catalog products with positive revenue are eligible.
// Products without a product type get no quota but may be topped up.
func Select(revenue Revenue, catalog []model.Product, opts Options) Selection {
	var (
		candidates []candidate
		order      []string
		byCategory = make(map[string][]int)
		seen       = make(map[string]struct{}, len(catalog))
	)
	for _, p := range catalog {
		total, ok := revenue[p.ArticleID]
		if !ok || !total.IsPositive() {
			continue
		}
		if _, dup := seen[p.ArticleID]; dup {
			continue
		}
		seen[p.ArticleID] = struct{}{}

		c := candidate{id: p.ArticleID, revenue: total}
		if p.ProductType != nil {
			cat := *p.ProductType
			if _, known := byCategory[cat]; !known {
				order = append(order, cat)
			}
			byCategory[cat] = append(byCategory[cat], len(candidates))
		}
		candidates = append(candidates, c)
	}

	sel := Selection{Candidates: len(candidates), Categories: len(order)}
	if opts.TargetCount <= 0 {
		return sel
	}
	picked := make(map[string]struct{})

	if opts.PerCategoryQuota > 0 {
		for _, cat := range order {
			group := make([]candidate, len(byCategory[cat]))
			for i, idx := range byCategory[cat] {
				group[i] = candidates[idx]
			}
			sort.Slice(group, byRevenue(group))
			if len(group) > opts.PerCategoryQuota {
				group = group[:opts.PerCategoryQuota]
			}
			for _, c := range group {
				sel.IDs = append(sel.IDs, c.id)
				picked[c.id] = struct{}{}
			}
		}
		sel.FromQuota = len(sel.IDs)
	}

	if len(sel.IDs) < opts.TargetCount {
		rest := make([]candidate, 0, len(candidates)-len(picked))
		for _, c := range candidates {
			if _, ok := picked[c.id]; !ok {
				rest = append(rest, c)
			}
		}
		sort.Slice(rest, byRevenue(rest))
		for _, c := range rest {
			if len(sel.IDs) == opts.TargetCount {
				break
			}
			sel.IDs = append(sel.IDs, c.id)
			sel.FromTopUp++
		}
	}

	if len(sel.IDs) > opts.TargetCount {
		sel.IDs = sel.IDs[:opts.TargetCount]
		sel.FromQuota = opts.TargetCount
	}
	return sel
}

// Rank runs the revenue pass over src and selects products from catalog.
func Rank(ctx context.Context, src BatchSource, catalog []model.Product, opts Options) (Selection, error) {
	revenue, err := Accumulate(ctx, src)
	if err != nil {
		return Selection{}, err
	}
	return Select(revenue, catalog, opts), nil
}
