package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/farmers_market/internal/auth"
	"github.com/Skotchmaster/farmers_market/internal/cart"
	"github.com/Skotchmaster/farmers_market/internal/catalog"
	"github.com/Skotchmaster/farmers_market/internal/datastore"
	"github.com/Skotchmaster/farmers_market/internal/orders"
	"github.com/Skotchmaster/farmers_market/internal/search"
)

type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, cart.ErrValidation),
		errors.Is(err, catalog.ErrValidation),
		errors.Is(err, orders.ErrValidation),
		errors.Is(err, orders.ErrEmptyCart),
		errors.Is(err, orders.ErrEmptyAddress),
		errors.Is(err, auth.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, catalog.ErrForbidden),
		errors.Is(err, orders.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, orders.ErrNotFound),
		errors.Is(err, datastore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrConflict),
		errors.Is(err, orders.ErrIllegalTransition),
		errors.Is(err, auth.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, datastore.ErrUnavailable),
		errors.Is(err, search.ErrDisabled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fail logs err under event and turns it into an HTTP error. Client errors
// carry the error text; server errors only carry reason.
func fail(l *slog.Logger, event, reason string, err error) error {
	code := statusOf(err)
	switch {
	case code >= http.StatusInternalServerError:
		l.Error(event, "status", code, "reason", reason, "error", err)
		return echo.NewHTTPError(code, reason)
	default:
		l.Warn(event, "status", code, "reason", reason, "error", err)
		return echo.NewHTTPError(code, err.Error())
	}
}

func badRequest(l *slog.Logger, event, reason string, err error) error {
	l.Warn(event, "status", http.StatusBadRequest, "reason", reason, "error", err)
	return echo.NewHTTPError(http.StatusBadRequest, reason)
}
