package httpserver

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/farmers_market/internal/auth"
	"github.com/Skotchmaster/farmers_market/internal/metrics"
	middleware "github.com/Skotchmaster/farmers_market/pkg/middleware/auth"
	"github.com/Skotchmaster/farmers_market/pkg/middleware/csrf"
	loggingmw "github.com/Skotchmaster/farmers_market/pkg/middleware/logging"
	"github.com/Skotchmaster/farmers_market/pkg/middleware/session"
)

type Deps struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	AuthHandler    *AuthHTTP
	CatalogHandler *CatalogHTTP
	CartHandler    *CartHTTP
	OrdersHandler  *OrdersHTTP
	BadgesHandler  *BadgesHTTP
	HealthHandler  *HealthHTTP

	JWTSecret   []byte
	SessionTTL  time.Duration
	CORSOrigins []string
	// CSRF is off when nil.
	CSRF *csrf.Config
}

// New builds the echo instance with the common middleware and every route.
func New(d *Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Pre(echomw.RemoveTrailingSlash())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.Secure())
	e.Use(loggingmw.RequestLogger(d.Logger))
	if d.Metrics != nil {
		e.Use(d.Metrics.Middleware())
	}
	cors := echomw.CORSConfig{AllowCredentials: true, ExposeHeaders: []string{"X-CSRF-Token"}}
	if len(d.CORSOrigins) > 0 {
		cors.AllowOrigins = d.CORSOrigins
	}
	e.Use(echomw.CORSWithConfig(cors))

	Register(e, d)
	return e
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", d.HealthHandler.Live)
	e.GET("/health/ready", d.HealthHandler.Ready)
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	authMW := middleware.NewAuth(d.JWTSecret)

	api := e.Group("/api/v1", session.Middleware(d.SessionTTL), authMW.Identify)
	if d.CSRF != nil {
		cfg := *d.CSRF
		cfg.SkipPaths = append(cfg.SkipPaths, "/api/v1/login", "/api/v1/register")
		api.Use(csrf.Middleware(cfg))
	}

	// per client IP, burst equals the rate
	credentials := echomw.RateLimiter(echomw.NewRateLimiterMemoryStore(10))
	api.POST("/login", d.AuthHandler.Login, credentials)
	api.POST("/register", d.AuthHandler.Register, credentials)
	api.POST("/logout", d.AuthHandler.Logout)
	api.GET("/me", d.AuthHandler.Me, authMW.RequireAuth)

	api.GET("/products", d.CatalogHandler.GetProducts)
	api.GET("/products/search", d.CatalogHandler.SearchProducts)
	api.GET("/products/:id", d.CatalogHandler.GetProduct)
	api.GET("/categories", d.CatalogHandler.GetCategories)
	api.GET("/farmers/:id", d.CatalogHandler.GetFarmer)

	api.GET("/cart", d.CartHandler.GetCart)
	api.POST("/cart", d.CartHandler.AddToCart)
	api.DELETE("/cart", d.CartHandler.ClearCart)
	api.PATCH("/cart/items/:id", d.CartHandler.UpdateQuantity)
	api.DELETE("/cart/items/:id", d.CartHandler.RemoveFromCart)

	api.GET("/favorites", d.CartHandler.GetFavorites)
	api.POST("/favorites/:id", d.CartHandler.ToggleFavorite)

	api.GET("/badges", d.BadgesHandler.GetBadges)
	api.GET("/badges/stream", d.BadgesHandler.Stream)

	buyerOnly := authMW.RequireRole(auth.RoleBuyer)
	api.POST("/checkout", d.OrdersHandler.Checkout, buyerOnly)
	api.GET("/orders", d.OrdersHandler.MyOrders, buyerOnly)
	api.PUT("/me", d.AuthHandler.UpdateProfile, buyerOnly)

	farmer := api.Group("/farmer", authMW.RequireRole(auth.RoleFarmer))
	farmer.GET("/products", d.CatalogHandler.GetFarmerProducts)
	farmer.POST("/products", d.CatalogHandler.CreateProduct)
	farmer.PUT("/products/:id", d.CatalogHandler.UpdateProduct)
	farmer.DELETE("/products/:id", d.CatalogHandler.DeleteProduct)
	farmer.GET("/orders", d.OrdersHandler.FarmerOrders)
	farmer.POST("/orders/:id/status", d.OrdersHandler.UpdateStatus)
}
