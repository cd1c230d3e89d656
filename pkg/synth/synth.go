// Package synth fabricates plausible daily sales series for products when no
// transaction source is reachable, and provides a small built-in catalog for
// when the product catalog is unreachable too.
package synth

import (
	"hash/fnv"
	"math/rand/v2"

	"github.com/eunmann/shopsight/pkg/model"
	"github.com/shopspring/decimal"
)

const (
	weekendBoost = 1.3
	minBaseUnits = 5
	maxBaseUnits = 30 // exclusive
	minBasePrice = 20.0
	maxBasePrice = 150.0
	// daily trend slope is drawn per day from [trendLow, trendHigh)
	trendLow   = -0.002
	trendHigh  = 0.003
	unitNoise  = 0.3
	priceNoise = 0.05
)

// Generator produces one row per product per day over Days days ending at End.
type Generator struct {
	Days int
	End  model.Date
	Seed int64
}

// Generate returns synthetic aggregate rows for ids. Each product draws from
// its own stream derived from Seed and its id, so output for a product does
// not depend on which other products are generated. Days that round to zero
// units are omitted. Rows are grouped by id in input order, dates ascending.
func (g Generator) Generate(ids []string) []model.SalesRow {
	if g.Days <= 0 {
		return nil
	}
	start := g.End.AddDays(-(g.Days - 1))
	rows := make([]model.SalesRow, 0, len(ids)*g.Days)
	for _, id := range ids {
		rng := g.stream(id)
		baseUnits := float64(minBaseUnits + rng.IntN(maxBaseUnits-minBaseUnits))
		basePrice := uniform(rng, minBasePrice, maxBasePrice)

		for day := range g.Days {
			date := start.AddDays(day)
			boost := 1.0
			if date.IsWeekend() {
				boost = weekendBoost
			}
			trend := 1 + uniform(rng, trendLow, trendHigh)*float64(day)
			units := int64(baseUnits * boost * trend * uniform(rng, 1-unitNoise, 1+unitNoise))
			price := decimal.NewFromFloat(basePrice * uniform(rng, 1-priceNoise, 1+priceNoise)).Round(2)
			if units <= 0 {
				continue
			}
			rows = append(rows, model.SalesRow{
				ArticleID:    id,
				Date:         date,
				TotalRevenue: price.Mul(decimal.NewFromInt(units)),
				AvgPrice:     price,
				UnitsSold:    units,
			})
		}
	}
	return rows
}

func (g Generator) stream(id string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(id))
	return rand.New(rand.NewPCG(uint64(g.Seed), h.Sum64()))
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// IDs returns the article ids of up to limit products, in catalog order.
func IDs(products []model.Product, limit int) []string {
	n := len(products)
	if limit > 0 {
		n = min(n, limit)
	}
	ids := make([]string, n)
	for i := range ids {
		ids[i] = products[i].ArticleID
	}
	return ids
}
