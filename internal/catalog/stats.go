package catalog

import (
	"math"

	"github.com/Skotchmaster/farmers_market/internal/models"
)

type Stats struct {
	TotalProducts int     `json:"totalProducts"`
	InStock       int     `json:"inStockProducts"`
	Organic       int     `json:"organicProducts"`
	AverageRating float64 `json:"averageRating"`
}

// FarmerStats summarizes a farmer's products. The average rating is rounded
// to one decimal and is 0 for an empty list.
func FarmerStats(products []models.Product) Stats {
	var st Stats
	var sum float64
	for _, p := range products {
		st.TotalProducts++
		if p.InStock {
			st.InStock++
		}
		if p.Organic {
			st.Organic++
		}
		sum += p.Rating
	}
	if st.TotalProducts > 0 {
		st.AverageRating = math.Round(sum/float64(st.TotalProducts)*10) / 10
	}
	return st
}
