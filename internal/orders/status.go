// Package orders implements checkout and the order status lifecycle.
//
//	pending -> accepted -> in-transit
//	pending -> rejected
//
// rejected and in-transit are terminal.
package orders

import (
	"errors"

	"github.com/Skotchmaster/farmers_market/internal/models"
)

var (
	ErrValidation        = errors.New("validation")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrEmptyAddress      = errors.New("shipping address is required")
)

var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:  {models.OrderStatusAccepted, models.OrderStatusRejected},
	models.OrderStatusAccepted: {models.OrderStatusInTransit},
}

// CanTransition reports whether an order in status from may move to to.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from s in one step.
func NextStatuses(s models.OrderStatus) []models.OrderStatus {
	return append([]models.OrderStatus(nil), transitions[s]...)
}
