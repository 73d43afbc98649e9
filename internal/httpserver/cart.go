package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/farmers_market/internal/cart"
	"github.com/Skotchmaster/farmers_market/internal/catalog"
	"github.com/Skotchmaster/farmers_market/internal/favorites"
	"github.com/Skotchmaster/farmers_market/internal/models"
	"github.com/Skotchmaster/farmers_market/pkg/logging"
	"github.com/Skotchmaster/farmers_market/pkg/middleware/session"
)

type CartHTTP struct {
	Carts     *cart.Registry
	Favorites *favorites.Registry
	Catalog   *catalog.Service
}

type cartView struct {
	Items []cart.Line `json:"items"`
	Count int         `json:"count"`
	Total float64     `json:"total"`
}

func viewOf(m *cart.Manager) cartView {
	lines := m.Lines()
	if lines == nil {
		lines = []cart.Line{}
	}
	return cartView{Items: lines, Count: m.Count(), Total: m.Total()}
}

var errNotNumeric = errors.New("quantity must be a number")

// parseQuantity accepts a JSON number or a numeric string within
// ±cart.MaxQuantity. Fractions are truncated.
func parseQuantity(raw json.RawMessage) (int, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0, errNotNumeric
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, errNotNumeric
	}
	if math.IsNaN(f) {
		return 0, errNotNumeric
	}
	if f > cart.MaxQuantity || f < -cart.MaxQuantity {
		return 0, fmt.Errorf("quantity must be at most %d: %w", cart.MaxQuantity, cart.ErrValidation)
	}
	return int(f), nil
}

func (h *CartHTTP) manager(c echo.Context) (*cart.Manager, error) {
	return h.Carts.Get(c.Request().Context(), session.ID(c))
}

func (h *CartHTTP) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.get_cart")

	m, err := h.manager(c)
	if err != nil {
		return fail(l, "get_cart_failed", "cannot load cart", err)
	}
	return c.JSON(http.StatusOK, viewOf(m))
}

func (h *CartHTTP) AddToCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.add_to_cart")

	var req struct {
		ProductID models.ID       `json:"product_id"`
		Quantity  json.RawMessage `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "add_to_cart_error", "invalid body", err)
	}
	if req.ProductID == "" {
		l.Warn("add_to_cart_error", "status", http.StatusBadRequest, "reason", "product_id is required")
		return echo.NewHTTPError(http.StatusBadRequest, "product_id is required")
	}
	q, err := parseQuantity(req.Quantity)
	switch {
	case errors.Is(err, errNotNumeric):
		q = 1
	case err != nil:
		return fail(l, "add_to_cart_error", "invalid quantity", err)
	case q < 1:
		q = 1
	}

	p, err := h.Catalog.Product(ctx, req.ProductID)
	if err != nil {
		return fail(l, "add_to_cart_error", "cannot load product", err)
	}
	if !p.InStock {
		l.Warn("add_to_cart_error", "status", http.StatusConflict, "reason", "out of stock", "product_id", p.ID.String())
		return echo.NewHTTPError(http.StatusConflict, "product is out of stock")
	}

	m, err := h.manager(c)
	if err != nil {
		return fail(l, "add_to_cart_error", "cannot load cart", err)
	}
	if err := m.Add(ctx, p, q); err != nil {
		return fail(l, "add_to_cart_error", "cannot save cart", err)
	}

	l.Info("add_to_cart_success", "product_id", p.ID.String(), "quantity", q)
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"message": p.Name + " added to cart!",
		"cart":    viewOf(m),
	})
}

func (h *CartHTTP) UpdateQuantity(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.update_quantity")

	var req struct {
		Quantity json.RawMessage `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "update_quantity_error", "invalid body", err)
	}
	q, err := parseQuantity(req.Quantity)
	if err != nil {
		l.Warn("update_quantity_error", "status", http.StatusBadRequest, "reason", "invalid quantity", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	m, err := h.manager(c)
	if err != nil {
		return fail(l, "update_quantity_error", "cannot load cart", err)
	}
	if err := m.UpdateQuantity(ctx, models.ID(c.Param("id")), q); err != nil {
		return fail(l, "update_quantity_error", "cannot save cart", err)
	}

	msg := "Cart updated"
	if q <= 0 {
		msg = "Item removed from cart"
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "message": msg, "cart": viewOf(m)})
}

func (h *CartHTTP) RemoveFromCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.remove_from_cart")

	m, err := h.manager(c)
	if err != nil {
		return fail(l, "remove_from_cart_error", "cannot load cart", err)
	}
	if err := m.Remove(ctx, models.ID(c.Param("id"))); err != nil {
		return fail(l, "remove_from_cart_error", "cannot save cart", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "message": "Item removed from cart", "cart": viewOf(m)})
}

func (h *CartHTTP) ClearCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "cart.clear_cart")

	m, err := h.manager(c)
	if err != nil {
		return fail(l, "clear_cart_error", "cannot load cart", err)
	}
	if err := m.Clear(ctx); err != nil {
		return fail(l, "clear_cart_error", "cannot save cart", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "success", "message": "Cart cleared", "cart": viewOf(m)})
}

func (h *CartHTTP) GetFavorites(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "favorites.get_favorites")

	set, err := h.Favorites.Get(ctx, session.ID(c))
	if err != nil {
		return fail(l, "get_favorites_failed", "cannot load favorites", err)
	}

	ids := set.IDs()
	products := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		p, err := h.Catalog.Product(ctx, id)
		if errors.Is(err, catalog.ErrNotFound) {
			continue
		}
		if err != nil {
			return fail(l, "get_favorites_failed", "cannot load favorite products", err)
		}
		products = append(products, p)
	}
	if ids == nil {
		ids = []models.ID{}
	}
	return c.JSON(http.StatusOK, echo.Map{"ids": ids, "products": products})
}

func (h *CartHTTP) ToggleFavorite(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "favorites.toggle")

	set, err := h.Favorites.Get(ctx, session.ID(c))
	if err != nil {
		return fail(l, "toggle_favorite_failed", "cannot load favorites", err)
	}
	on, err := set.Toggle(ctx, models.ID(c.Param("id")))
	if err != nil {
		return fail(l, "toggle_favorite_failed", "cannot save favorites", err)
	}

	msg := "Removed from favorites"
	if on {
		msg = "Added to favorites"
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":   "success",
		"message":  msg,
		"favorite": on,
		"count":    set.Count(),
	})
}
