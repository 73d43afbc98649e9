package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/farmers_market/internal/cart"
	"github.com/Skotchmaster/farmers_market/internal/models"
	"github.com/Skotchmaster/farmers_market/internal/orders"
	"github.com/Skotchmaster/farmers_market/pkg/logging"
	middleware "github.com/Skotchmaster/farmers_market/pkg/middleware/auth"
	"github.com/Skotchmaster/farmers_market/pkg/middleware/session"
)

type OrdersHTTP struct {
	Svc   *orders.Service
	Carts *cart.Registry
}

var transitionMessages = map[models.OrderStatus]string{
	models.OrderStatusAccepted:  "Order accepted successfully!",
	models.OrderStatusRejected:  "Order rejected",
	models.OrderStatusInTransit: "Order marked as in transit!",
}

func (h *OrdersHTTP) Checkout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "orders.checkout")

	var req struct {
		ShippingAddress string `json:"shipping_address"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "checkout_error", "invalid body", err)
	}

	m, err := h.Carts.Get(ctx, session.ID(c))
	if err != nil {
		return fail(l, "checkout_error", "cannot load cart", err)
	}

	buyer := orders.Buyer{ID: models.ID(middleware.UserID(c)), Name: middleware.UserName(c)}
	o, err := h.Svc.Checkout(ctx, m, buyer, req.ShippingAddress)
	if err != nil {
		return fail(l, "checkout_error", "Failed to place order. Please try again.", err)
	}

	l.Info("checkout_success", "order_id", o.ID.String(), "total", o.TotalAmount)
	return c.JSON(http.StatusCreated, echo.Map{
		"status":  "success",
		"message": "Order placed successfully!",
		"order":   o,
	})
}

func (h *OrdersHTTP) MyOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "orders.my_orders")

	list, err := h.Svc.History(ctx, models.ID(middleware.UserID(c)))
	if err != nil {
		return fail(l, "my_orders_failed", "cannot list orders", err)
	}
	if list == nil {
		list = []models.Order{}
	}
	return c.JSON(http.StatusOK, list)
}

func (h *OrdersHTTP) FarmerOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "orders.farmer_orders")

	list, err := h.Svc.FarmerOrders(ctx, models.ID(middleware.UserID(c)), c.QueryParam("status"))
	if err != nil {
		return fail(l, "farmer_orders_failed", "Failed to fetch orders", err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *OrdersHTTP) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "orders.update_status")

	var req struct {
		Status         models.OrderStatus `json:"status"`
		ExpectedStatus models.OrderStatus `json:"expected_status"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "update_status_error", "invalid body", err)
	}

	o, err := h.Svc.Transition(ctx, orders.TransitionRequest{
		OrderID:  models.ID(c.Param("id")),
		FarmerID: models.ID(middleware.UserID(c)),
		To:       req.Status,
		Expected: req.ExpectedStatus,
	})
	if err != nil {
		return fail(l, "update_status_error", "Failed to update order", err)
	}

	l.Info("update_status_success", "order_id", o.ID.String(), "status", o.Status.String())
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"message": transitionMessages[o.Status],
		"order":   o,
	})
}
