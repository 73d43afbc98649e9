package orders

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/Skotchmaster/farmers_market/internal/cart"
	"github.com/Skotchmaster/farmers_market/internal/datastore"
	"github.com/Skotchmaster/farmers_market/internal/events"
	"github.com/Skotchmaster/farmers_market/internal/models"
	"github.com/Skotchmaster/farmers_market/pkg/logging"
)

// Store is the part of the data store the order service needs.
type Store interface {
	CreateOrder(ctx context.Context, o models.Order) (models.Order, error)
	GetOrder(ctx context.Context, id models.ID) (models.Order, error)
	PatchOrderStatus(ctx context.Context, id models.ID, status models.OrderStatus) (models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	OrdersByBuyer(ctx context.Context, buyerID models.ID) ([]models.Order, error)
}

// Cart is the part of a session cart checkout consumes.
type Cart interface {
	Lines() []cart.Line
	Clear(ctx context.Context) error
}

type Service struct {
	Store Store
	Pub   events.Publisher

	now   func() time.Time
	locks *keyedMutex
}

func NewService(store Store, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Nop
	}
	return &Service{Store: store, Pub: pub, now: time.Now, locks: newKeyedMutex()}
}

// Checkout submits the cart as a pending order and clears the cart once the
// store accepted it. On failure the cart is left as it was.
func (s *Service) Checkout(ctx context.Context, c Cart, buyer Buyer, address string) (models.Order, error) {
	l := logging.FromContext(ctx).With("op", "checkout", "buyer_id", buyer.ID.String())

	o, err := BuildOrder(c.Lines(), buyer, address, s.now())
	if err != nil {
		return models.Order{}, err
	}

	created, err := s.Store.CreateOrder(ctx, o)
	if err != nil {
		return models.Order{}, fmt.Errorf("create order: %w", err)
	}

	if err := c.Clear(ctx); err != nil {
		l.Warn("checkout_cart_clear_failed", "order_id", created.ID.String(), "error", err)
	}

	s.Pub.Publish(ctx, events.Event{
		Type:   events.OrderPlaced,
		UserID: buyer.ID.String(),
		Data: map[string]any{
			"order_id":   created.ID.String(),
			"total":      created.TotalAmount,
			"farmer_ids": farmerIDs(created),
		},
	})
	return created, nil
}

// History returns the buyer's orders, newest first.
func (s *Service) History(ctx context.Context, buyerID models.ID) ([]models.Order, error) {
	list, err := s.Store.OrdersByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list buyer orders: %w", err)
	}
	list = slices.DeleteFunc(list, func(o models.Order) bool { return o.BuyerID != buyerID })
	slices.SortStableFunc(list, func(a, b models.Order) int { return compareIDs(b.ID, a.ID) })
	return list, nil
}

func (s *Service) FarmerOrders(ctx context.Context, farmerID models.ID, status string) ([]FarmerOrder, error) {
	if _, err := ParseStatusFilter(status); err != nil {
		return nil, err
	}
	all, err := s.Store.ListOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return ForFarmer(all, farmerID, status)
}

type TransitionRequest struct {
	OrderID  models.ID
	FarmerID models.ID
	To       models.OrderStatus
	// Expected is the status the caller saw. Empty means whatever is stored now.
	Expected models.OrderStatus
}

// Transition moves an order to req.To. The per-order lock serialises callers
// in this process; the data store has no conditional PATCH, so only Expected
// guards against a writer in another process.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (models.Order, error) {
	if !req.To.Valid() {
		return models.Order{}, fmt.Errorf("unknown status %q: %w", req.To, ErrValidation)
	}
	if req.Expected != "" && !req.Expected.Valid() {
		return models.Order{}, fmt.Errorf("unknown expected status %q: %w", req.Expected, ErrValidation)
	}

	unlock := s.locks.Lock(req.OrderID)
	defer unlock()

	o, err := s.getOrder(ctx, req.OrderID)
	if err != nil {
		return models.Order{}, err
	}
	if !hasFarmer(o, req.FarmerID) {
		return models.Order{}, fmt.Errorf("order %s has no items of farmer %s: %w", o.ID, req.FarmerID, ErrForbidden)
	}
	if req.Expected != "" && o.Status != req.Expected {
		return models.Order{}, fmt.Errorf("order %s is %s, expected %s: %w", o.ID, o.Status, req.Expected, ErrConflict)
	}
	from := o.Status
	if !CanTransition(from, req.To) {
		return models.Order{}, fmt.Errorf("%s -> %s: %w", from, req.To, ErrIllegalTransition)
	}

	updated, err := s.Store.PatchOrderStatus(ctx, req.OrderID, req.To)
	if err != nil {
		return models.Order{}, fmt.Errorf("update order status: %w", err)
	}
	// json-server answers PATCH with the merged record; fill the gaps if a store does not
	if updated.ID == "" {
		updated = o
		updated.Status = req.To
	}

	s.Pub.Publish(ctx, events.Event{
		Type:   events.OrderStatusChanged,
		UserID: updated.BuyerID.String(),
		Data: map[string]any{
			"order_id":  updated.ID.String(),
			"from":      from.String(),
			"to":        req.To.String(),
			"farmer_id": req.FarmerID.String(),
		},
	})
	return updated, nil
}

func (s *Service) getOrder(ctx context.Context, id models.ID) (models.Order, error) {
	o, err := s.Store.GetOrder(ctx, id)
	if errors.Is(err, datastore.ErrNotFound) {
		return models.Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// compareIDs orders numeric ids numerically and everything else lexically.
func compareIDs(a, b models.ID) int {
	na, errA := strconv.ParseInt(string(a), 10, 64)
	nb, errB := strconv.ParseInt(string(b), 10, 64)
	if errA == nil && errB == nil {
		return cmp.Compare(na, nb)
	}
	return cmp.Compare(string(a), string(b))
}
