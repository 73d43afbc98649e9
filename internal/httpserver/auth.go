package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/farmers_market/internal/auth"
	"github.com/Skotchmaster/farmers_market/internal/models"
	"github.com/Skotchmaster/farmers_market/pkg/logging"
	middleware "github.com/Skotchmaster/farmers_market/pkg/middleware/auth"
)

type AuthHTTP struct {
	Svc *auth.Service
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.login")

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "login_error", "invalid body", err)
	}

	res, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return fail(l, "login_failed", "cannot log in", err)
	}

	middleware.SetAuthCookie(c, res.AccessToken, res.AccessExp)
	l.Info("login_successful", "user_id", res.ID.String(), "role", res.Role)
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"message": "Welcome back, " + res.Name + "!",
		"user":    res.Identity,
	})
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.register")

	var req auth.RegisterInput
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "register_error", "invalid body", err)
	}

	res, err := h.Svc.Register(ctx, req)
	if err != nil {
		return fail(l, "register_failed", "registration failed", err)
	}

	middleware.SetAuthCookie(c, res.AccessToken, res.AccessExp)
	l.Info("register_successful", "user_id", res.ID.String(), "role", res.Role)
	return c.JSON(http.StatusCreated, echo.Map{
		"status":  "success",
		"message": "Registration successful!",
		"user":    res.Identity,
	})
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	middleware.ClearAuthCookie(c)
	return c.JSON(http.StatusOK, Response{Status: "success", Message: "Logged out"})
}

// Me reports who the access token belongs to.
func (h *AuthHTTP) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"id":   middleware.UserID(c),
		"role": middleware.Role(c),
		"name": middleware.UserName(c),
	})
}

// UpdateProfile edits the logged-in buyer's name, phone and address and
// refreshes the access cookie so the new name is visible right away.
func (h *AuthHTTP) UpdateProfile(c echo.Context) error {
	ctx := c.Request().Context()
	userID := middleware.UserID(c)
	l := logging.FromContext(ctx).With("handler", "auth.update_profile", "user_id", userID)

	var req auth.ProfileInput
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "update_profile_error", "invalid body", err)
	}

	res, err := h.Svc.UpdateProfile(ctx, models.ID(userID), req)
	if err != nil {
		return fail(l, "update_profile_failed", "cannot update profile", err)
	}

	middleware.SetAuthCookie(c, res.AccessToken, res.AccessExp)
	l.Info("update_profile_successful")
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"message": "Profile updated",
		"user":    res.Identity,
	})
}
