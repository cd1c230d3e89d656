// Package segments maps a product to illustrative customer personas. The
// personas are fixed templates chosen by department and product type.
package segments

import (
	"strings"

	"github.com/eunmann/shopsight/pkg/model"
)

// Segment is one buyer persona.
type Segment struct {
	Name               string   `json:"name"`
	Percentage         float64  `json:"percentage"`
	AgeRange           string   `json:"age_range"`
	Characteristics    []string `json:"characteristics"`
	PurchaseLikelihood float64  `json:"purchase_likelihood"`
}

// Profile names the template set a product falls into.
type Profile string

const (
	ProfileActive  Profile = "active"
	ProfileWomen   Profile = "women"
	ProfileMen     Profile = "men"
	ProfileGeneral Profile = "general"
)

var templates = map[Profile][]Segment{
	ProfileActive: {
		{"Active Athletes", 35, "25-34", []string{"High purchase frequency", "Brand conscious", "Values performance features", "Willing to pay premium"}, 0.85},
		{"Fitness Enthusiasts", 28, "35-44", []string{"Regular gym-goers", "Quality focused", "Moderate spending", "Loyal to brands"}, 0.72},
		{"Casual Buyers", 37, "18-24", []string{"Price sensitive", "Trend followers", "Occasional purchases", "Social media influenced"}, 0.58},
	},
	ProfileWomen: {
		{"Fashion Forward", 32, "25-34", []string{"Trend conscious", "Frequent shoppers", "Social media active", "Medium to high spending"}, 0.78},
		{"Classic Professionals", 28, "35-50", []string{"Quality over quantity", "Timeless style preference", "Higher price tolerance", "Brand loyal"}, 0.81},
		{"Value Seekers", 40, "18-30", []string{"Budget conscious", "Sale shoppers", "Mix and match style", "Online shoppers"}, 0.65},
	},
	ProfileMen: {
		{"Modern Professionals", 38, "30-45", []string{"Work wardrobe focused", "Quality conscious", "Efficient shoppers", "Brand preference"}, 0.76},
		{"Casual Comfort", 35, "25-40", []string{"Comfort prioritized", "Practical choices", "Moderate spending", "Infrequent shopping"}, 0.68},
		{"Young Trendsetters", 27, "18-28", []string{"Style conscious", "Social media influenced", "Price sensitive", "Frequent browsers"}, 0.62},
	},
	ProfileGeneral: {
		{"Frequent Shoppers", 30, "25-40", []string{"Regular purchases", "Brand aware", "Medium spending", "Quality focused"}, 0.75},
		{"Occasional Buyers", 45, "30-50", []string{"Need-based shopping", "Value conscious", "Research before buying", "Moderate loyalty"}, 0.65},
		{"Bargain Hunters", 25, "18-35", []string{"Price driven", "Sale focused", "Impulse buyers", "Low brand loyalty"}, 0.52},
	},
}

// Classify picks the template set for p. Rules are checked in order, so
// "women" matches before "men".
func Classify(p model.Product) Profile {
	dept := strings.ToLower(model.Str(p.Department))
	ptype := strings.ToLower(model.Str(p.ProductType))
	switch {
	case strings.Contains(dept, "sport"), strings.Contains(ptype, "shoe"), strings.Contains(ptype, "activewear"):
		return ProfileActive
	case strings.Contains(dept, "ladies"), strings.Contains(dept, "women"):
		return ProfileWomen
	case strings.Contains(dept, "men"), strings.Contains(dept, "male"):
		return ProfileMen
	default:
		return ProfileGeneral
	}
}

// For returns a copy of the personas for p. Percentages sum to 100.
func For(p model.Product) []Segment {
	src := templates[Classify(p)]
	out := make([]Segment, len(src))
	for i, s := range src {
		s.Characteristics = append([]string(nil), s.Characteristics...)
		out[i] = s
	}
	return out
}
