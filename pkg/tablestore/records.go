package tablestore

import (
	"fmt"

	"github.com/eunmann/shopsight/pkg/model"
	"github.com/shopspring/decimal"
)

// productRecord is the on-disk row of the products table.
type productRecord struct {
	ArticleID    string  `parquet:"article_id"`
	ProdName     *string `parquet:"prod_name,optional"`
	ProductType  *string `parquet:"product_type_name,optional"`
	ProductGroup *string `parquet:"product_group_name,optional"`
	Colour       *string `parquet:"colour_group_name,optional"`
	Department   *string `parquet:"department_name,optional"`
}

// salesRecord is the on-disk row of the sales table. Dates are parquet DATE
// (days since epoch); money columns are DECIMAL(18,8) stored as int64.
type salesRecord struct {
	ArticleID    string `parquet:"article_id"`
	Date         int32  `parquet:"date,date"`
	TotalRevenue int64  `parquet:"total_revenue,decimal(8:18)"`
	AvgPrice     int64  `parquet:"avg_price,decimal(8:18)"`
	UnitsSold    int64  `parquet:"units_sold"`
}

// maxUnscaled is the largest magnitude DECIMAL(18,8) holds.
var maxUnscaled = decimal.New(1, 18).Sub(decimal.New(1, 0))

func toUnscaled(d decimal.Decimal) (int64, error) {
	u := d.Shift(model.MoneyScale).Round(0)
	if u.Abs().GreaterThan(maxUnscaled) {
		return 0, fmt.Errorf("value %s overflows DECIMAL(18,%d)", d, model.MoneyScale)
	}
	return u.IntPart(), nil
}

func fromUnscaled(v int64) decimal.Decimal {
	return decimal.New(v, -model.MoneyScale)
}

func toProductRecord(p model.Product) productRecord {
	return productRecord{
		ArticleID:    p.ArticleID,
		ProdName:     p.Name,
		ProductType:  p.ProductType,
		ProductGroup: p.ProductGroup,
		Colour:       p.Colour,
		Department:   p.Department,
	}
}

func (r productRecord) product() model.Product {
	return model.Product{
		ArticleID:    r.ArticleID,
		Name:         r.ProdName,
		ProductType:  r.ProductType,
		ProductGroup: r.ProductGroup,
		Colour:       r.Colour,
		Department:   r.Department,
	}
}

func toSalesRecord(r model.SalesRow) (salesRecord, error) {
	total, err := toUnscaled(r.TotalRevenue)
	if err != nil {
		return salesRecord{}, fmt.Errorf("total_revenue for %s/%s: %w", r.ArticleID, r.Date, err)
	}
	avg, err := toUnscaled(r.AvgPrice)
	if err != nil {
		return salesRecord{}, fmt.Errorf("avg_price for %s/%s: %w", r.ArticleID, r.Date, err)
	}
	return salesRecord{
		ArticleID:    r.ArticleID,
		Date:         int32(r.Date),
		TotalRevenue: total,
		AvgPrice:     avg,
		UnitsSold:    r.UnitsSold,
	}, nil
}

func (r salesRecord) row() model.SalesRow {
	return model.SalesRow{
		ArticleID:    r.ArticleID,
		Date:         model.Date(r.Date),
		TotalRevenue: fromUnscaled(r.TotalRevenue),
		AvgPrice:     fromUnscaled(r.AvgPrice),
		UnitsSold:    r.UnitsSold,
	}
}
