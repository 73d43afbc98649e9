package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/Skotchmaster/farmers_market/internal/cart"
	"github.com/Skotchmaster/farmers_market/internal/models"
)

const dateLayout = "2006-01-02"

type Buyer struct {
	ID   models.ID
	Name string
}

// BuildOrder snapshots cart lines into a new pending order.
func BuildOrder(lines []cart.Line, buyer Buyer, address string, now time.Time) (models.Order, error) {
	if len(lines) == 0 {
		return models.Order{}, ErrEmptyCart
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return models.Order{}, ErrEmptyAddress
	}
	if buyer.ID == "" {
		return models.Order{}, fmt.Errorf("buyer id is required: %w", ErrValidation)
	}

	o := models.Order{
		BuyerID:         buyer.ID,
		BuyerName:       buyer.Name,
		Items:           make([]models.OrderItem, 0, len(lines)),
		Status:          models.OrderStatusPending,
		OrderDate:       now.Format(dateLayout),
		ShippingAddress: address,
	}
	for _, l := range lines {
		item := models.OrderItem{
			ProductID:   l.ProductID,
			ProductName: l.Name,
			FarmerID:    l.FarmerID,
			Quantity:    l.Quantity,
			Price:       l.Price,
			Total:       l.Total(),
		}
		o.Items = append(o.Items, item)
		o.TotalAmount += item.Total
	}
	return o, nil
}
