package orders

import (
	"fmt"

	"github.com/Skotchmaster/farmers_market/internal/models"
)

// FarmerOrder is an order as one farmer sees it: only their own lines.
type FarmerOrder struct {
	models.Order
	Subtotal float64 `json:"subtotal"`
}

// ForFarmer keeps the orders that contain at least one of farmerID's lines and
// strips everybody else's lines. status "" or "all" keeps every status.
func ForFarmer(all []models.Order, farmerID models.ID, status string) ([]FarmerOrder, error) {
	want, err := ParseStatusFilter(status)
	if err != nil {
		return nil, err
	}

	out := make([]FarmerOrder, 0)
	for _, o := range all {
		if want != "" && o.Status != want {
			continue
		}
		mine := farmerItems(o, farmerID)
		if len(mine) == 0 {
			continue
		}

		fo := FarmerOrder{Order: o}
		fo.Items = mine
		for _, it := range mine {
			fo.Subtotal += it.Total
		}
		out = append(out, fo)
	}
	return out, nil
}

// ParseStatusFilter returns "" for no filter.
func ParseStatusFilter(status string) (models.OrderStatus, error) {
	if status == "" || status == "all" {
		return "", nil
	}
	s := models.OrderStatus(status)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q: %w", status, ErrValidation)
	}
	return s, nil
}

func farmerItems(o models.Order, farmerID models.ID) []models.OrderItem {
	var mine []models.OrderItem
	for _, it := range o.Items {
		if it.FarmerID == farmerID {
			mine = append(mine, it)
		}
	}
	return mine
}

func hasFarmer(o models.Order, farmerID models.ID) bool {
	return len(farmerItems(o, farmerID)) > 0
}

func farmerIDs(o models.Order) []string {
	seen := make(map[models.ID]struct{})
	var ids []string
	for _, it := range o.Items {
		if _, ok := seen[it.FarmerID]; ok {
			continue
		}
		seen[it.FarmerID] = struct{}{}
		ids = append(ids, it.FarmerID.String())
	}
	return ids
}
