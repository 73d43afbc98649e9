package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/farmers_market/pkg/tokens"
)

var secret = []byte("test-jwt-secret")

func newRequest(t *testing.T, token string, bearer bool) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		if bearer {
			req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		} else {
			req.AddCookie(&http.Cookie{Name: AccessCookie, Value: token})
		}
	}
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func issue(t *testing.T, role string) string {
	t.Helper()
	token, err := tokens.NewAccessToken(secret, "42", role, "Asha", time.Now().Add(time.Minute))
	require.NoError(t, err)
	return token
}

func ok(c echo.Context) error { return c.NoContent(http.StatusOK) }

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	m := NewAuth(secret)

	c, _ := newRequest(t, "", false)
	err := m.RequireAuth(ok)(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.Code)

	c, rec := newRequest(t, issue(t, "buyer"), false)
	require.NoError(t, m.RequireAuth(ok)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", UserID(c))
	assert.Equal(t, "buyer", Role(c))
	assert.Equal(t, "Asha", UserName(c))
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	m := NewAuth(secret)

	c, _ := newRequest(t, issue(t, "buyer"), true)
	err := m.RequireRole("farmer")(ok)(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusForbidden, he.Code)

	c, rec := newRequest(t, issue(t, "farmer"), true)
	require.NoError(t, m.RequireRole("farmer")(ok)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIdentify_Anonymous(t *testing.T) {
	t.Parallel()

	c, rec := newRequest(t, "garbage", false)
	require.NoError(t, NewAuth(secret).Identify(ok)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, UserID(c))
}
