package model

import "strings"

// Product is one catalog entry. Descriptive attributes are optional; a nil
// pointer means the source had no value for that column.
type Product struct {
	ArticleID    string
	Name         *string
	ProductType  *string
	ProductGroup *string
	Colour       *string
	Department   *string
}

// Str dereferences an optional attribute, returning "" when absent.
func Str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// OptStr returns a pointer to s, or nil when s is blank.
func OptStr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// Category is the grouping key used for per-category selection.
func (p Product) Category() string {
	return Str(p.ProductType)
}

// SearchText returns the lowercased attributes a text search matches against.
func (p Product) SearchText() string {
	parts := make([]string, 0, 5)
	for _, v := range []*string{p.Name, p.ProductType, p.ProductGroup, p.Colour, p.Department} {
		if v != nil && *v != "" {
			parts = append(parts, *v)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}
