package session

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	Cookie = "sessionId"

	ctxKey = "session_id"
)

// Middleware makes sure every request carries a session id, issuing a new
// cookie when the client has none or sends a malformed one.
func Middleware(ttl time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sid := ""
			if ck, err := c.Cookie(Cookie); err == nil {
				if _, perr := uuid.Parse(ck.Value); perr == nil {
					sid = ck.Value
				}
			}
			if sid == "" {
				sid = uuid.NewString()
				c.SetCookie(&http.Cookie{
					Name:     Cookie,
					Value:    sid,
					Path:     "/",
					Expires:  time.Now().Add(ttl),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			c.Set(ctxKey, sid)
			return next(c)
		}
	}
}

func ID(c echo.Context) string {
	s, _ := c.Get(ctxKey).(string)
	return s
}
