package model

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// SalesKey identifies one aggregate row.
type SalesKey struct {
	ArticleID string
	Date      Date
}

// SalesRow summarizes every transaction of one product on one day.
type SalesRow struct {
	ArticleID    string
	Date         Date
	TotalRevenue decimal.Decimal
	AvgPrice     decimal.Decimal
	UnitsSold    int64
}

// Key returns the composite key of the row.
func (r SalesRow) Key() SalesKey {
	return SalesKey{ArticleID: r.ArticleID, Date: r.Date}
}

// revenueTolerance bounds |avg*units - total| after rounding both to MoneyScale.
var revenueTolerance = decimal.New(1, -4)

// Validate checks the aggregate invariants: at least one unit, and revenue
// consistent with the average price.
func (r SalesRow) Validate() error {
	if r.ArticleID == "" {
		return fmt.Errorf("sales row on %s: empty article_id", r.Date)
	}
	if r.UnitsSold < 1 {
		return fmt.Errorf("sales row %s/%s: units_sold %d < 1", r.ArticleID, r.Date, r.UnitsSold)
	}
	implied := r.AvgPrice.Mul(decimal.NewFromInt(r.UnitsSold))
	if implied.Sub(r.TotalRevenue).Abs().GreaterThan(revenueTolerance) {
		return fmt.Errorf("sales row %s/%s: avg_price*units %s != total_revenue %s",
			r.ArticleID, r.Date, implied, r.TotalRevenue)
	}
	return nil
}

// SortSalesRows orders rows by article_id, then date.
func SortSalesRows(rows []SalesRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ArticleID != rows[j].ArticleID {
			return rows[i].ArticleID < rows[j].ArticleID
		}
		return rows[i].Date < rows[j].Date
	})
}
