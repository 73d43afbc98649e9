package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/farmers_market/internal/cart"
	"github.com/Skotchmaster/farmers_market/internal/events"
	"github.com/Skotchmaster/farmers_market/internal/favorites"
	"github.com/Skotchmaster/farmers_market/pkg/logging"
	"github.com/Skotchmaster/farmers_market/pkg/middleware/session"
)

type badgeCounts struct {
	CartCount      int `json:"cart_count"`
	FavoritesCount int `json:"favorites_count"`
}

// BadgesHTTP reports the cart and favorites counters, either once or as a
// server-sent event stream that pushes on every change of the session.
type BadgesHTTP struct {
	Carts     *cart.Registry
	Favorites *favorites.Registry
	Bus       *events.Bus
	Heartbeat time.Duration
}

func (h *BadgesHTTP) counts(ctx context.Context, sid string) (badgeCounts, error) {
	m, err := h.Carts.Get(ctx, sid)
	if err != nil {
		return badgeCounts{}, err
	}
	f, err := h.Favorites.Get(ctx, sid)
	if err != nil {
		return badgeCounts{}, err
	}
	return badgeCounts{CartCount: m.Count(), FavoritesCount: f.Count()}, nil
}

func (h *BadgesHTTP) GetBadges(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "badges.get")

	b, err := h.counts(ctx, session.ID(c))
	if err != nil {
		return fail(l, "get_badges_failed", "cannot load badges", err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *BadgesHTTP) Stream(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "badges.stream")
	sid := session.ID(c)

	// one pending signal is enough, counts are re-read on delivery
	changed := make(chan struct{}, 1)
	unsubscribe := h.Bus.Subscribe(func(_ context.Context, e events.Event) {
		if e.SessionID != sid {
			return
		}
		if e.Type != events.CartUpdated && e.Type != events.FavoritesUpdated {
			return
		}
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func() error {
		b, err := h.counts(ctx, sid)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(b)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: badges\ndata: %s\n\n", raw); err != nil {
			return err
		}
		w.Flush()
		return nil
	}

	if err := send(); err != nil {
		l.Warn("badges_stream_closed", "reason", "initial send failed", "error", err)
		return nil
	}

	hb := h.Heartbeat
	if hb <= 0 {
		hb = 25 * time.Second
	}
	ticker := time.NewTicker(hb)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			if err := send(); err != nil {
				l.Warn("badges_stream_closed", "reason", "send failed", "error", err)
				return nil
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
