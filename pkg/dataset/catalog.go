package dataset

import (
	"errors"
	"fmt"
	"io"

	"github.com/eunmann/shopsight/pkg/model"
	"github.com/parquet-go/parquet-go"
)

// catalogSpecs lists the catalog columns in Product field order.
var catalogSpecs = []columnSpec{
	{names: []string{"article_id"}, required: true},
	{names: []string{"prod_name"}},
	{names: []string{"product_type_name"}},
	{names: []string{"product_group_name"}},
	{names: []string{"colour_group_name"}},
	{names: []string{"department_name"}},
}

// ReadProducts loads the product catalog from a parquet or CSV file in file
// order. Rows without an article_id are dropped; for duplicate ids the first
// row wins. Optional columns may be absent from the file.
func ReadProducts(path string) ([]model.Product, error) {
	src, err := openColumns(path, catalogSpecs)
	if err != nil {
		return nil, err
	}
	defer src.close()

	types := src.types()
	id, err := newIDDecoder(types[0])
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	attrs := make([]textDecoder, len(types)-1)
	for i, t := range types[1:] {
		if !t.present {
			continue
		}
		if attrs[i], err = newTextDecoder(t); err != nil {
			return nil, fmt.Errorf("catalog %s: %s: %w", path, catalogSpecs[i+1].names[0], err)
		}
	}

	var (
		products []model.Product
		seen     = make(map[string]struct{})
		row      = make([]parquet.Value, len(catalogSpecs))
	)
	for {
		if err := src.next(row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		articleID, ok := id(row[0])
		if !ok {
			continue
		}
		if _, dup := seen[articleID]; dup {
			continue
		}
		seen[articleID] = struct{}{}

		var vals [5]*string
		for i, dec := range attrs {
			if dec == nil {
				continue
			}
			if s, ok := dec(row[i+1]); ok {
				vals[i] = model.OptStr(s)
			}
		}
		products = append(products, model.Product{
			ArticleID:    articleID,
			Name:         vals[0],
			ProductType:  vals[1],
			ProductGroup: vals[2],
			Colour:       vals[3],
			Department:   vals[4],
		})
	}
	return products, nil
}
