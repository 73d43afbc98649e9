package catalog

import (
	"cmp"
	"slices"
	"strings"

	"github.com/Skotchmaster/farmers_market/internal/models"
)

const (
	SortPriceLow  = "price-low"
	SortPriceHigh = "price-high"
	SortNameAsc   = "name-asc"
	SortNameDesc  = "name-desc"
	SortRating    = "rating"
)

// Filter narrows a product list. Zero values match everything; MaxPrice 0
// means no upper bound.
type Filter struct {
	Search   string
	Category string
	Location string
	MinPrice float64
	MaxPrice float64
	Sort     string
}

func ValidSort(s string) bool {
	switch s {
	case "", SortPriceLow, SortPriceHigh, SortNameAsc, SortNameDesc, SortRating:
		return true
	}
	return false
}

// Apply returns the products matching f, sorted by f.Sort. The input slice is
// not modified; without a sort the original order is kept.
func Apply(products []models.Product, f Filter) []models.Product {
	search := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.Location != "" && p.Location != f.Location {
			continue
		}
		if p.Price < f.MinPrice {
			continue
		}
		if f.MaxPrice > 0 && p.Price > f.MaxPrice {
			continue
		}
		out = append(out, p)
	}

	switch f.Sort {
	case SortPriceLow:
		slices.SortStableFunc(out, func(a, b models.Product) int { return cmp.Compare(a.Price, b.Price) })
	case SortPriceHigh:
		slices.SortStableFunc(out, func(a, b models.Product) int { return cmp.Compare(b.Price, a.Price) })
	case SortNameAsc:
		slices.SortStableFunc(out, func(a, b models.Product) int { return compareNames(a.Name, b.Name) })
	case SortNameDesc:
		slices.SortStableFunc(out, func(a, b models.Product) int { return compareNames(b.Name, a.Name) })
	case SortRating:
		slices.SortStableFunc(out, func(a, b models.Product) int { return cmp.Compare(b.Rating, a.Rating) })
	}
	return out
}

func compareNames(a, b string) int {
	if c := cmp.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}

// Locations lists the distinct product locations in first-seen order.
func Locations(products []models.Product) []string {
	var out []string
	for _, p := range products {
		if p.Location != "" && !slices.Contains(out, p.Location) {
			out = append(out, p.Location)
		}
	}
	return out
}
