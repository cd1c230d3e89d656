package synth

import "github.com/eunmann/shopsight/pkg/model"

type demoProduct struct {
	id, name, kind, group, colour, department string
}

var demoProducts = []demoProduct{
	{"0108775001", "Running Shoes", "Shoes", "Footwear", "Black", "Sport"},
	{"0108775002", "Winter Jacket", "Jacket", "Outerwear", "Navy Blue", "Menswear"},
	{"0108775003", "Casual Sneakers", "Shoes", "Footwear", "White", "Sport"},
	{"0108775004", "Sports T-Shirt", "T-shirt", "Activewear", "Red", "Sport"},
	{"0108775005", "Yoga Pants", "Pants", "Activewear", "Black", "Sport"},
	{"0108775006", "Denim Jeans", "Jeans", "Bottoms", "Blue", "Menswear"},
	{"0108775007", "Summer Dress", "Dress", "Dresses", "Floral", "Ladieswear"},
	{"0108775008", "Hoodie", "Sweater", "Tops", "Grey", "Menswear"},
	{"0108775009", "Backpack", "Bag", "Accessories", "Black", "Accessories"},
	{"0108775010", "Baseball Cap", "Hat", "Accessories", "Navy", "Accessories"},
}

// DemoCatalog returns the built-in ten product catalog.
func DemoCatalog() []model.Product {
	out := make([]model.Product, len(demoProducts))
	for i, d := range demoProducts {
		out[i] = model.Product{
			ArticleID:    d.id,
			Name:         model.OptStr(d.name),
			ProductType:  model.OptStr(d.kind),
			ProductGroup: model.OptStr(d.group),
			Colour:       model.OptStr(d.colour),
			Department:   model.OptStr(d.department),
		}
	}
	return out
}
