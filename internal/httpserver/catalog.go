package httpserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/farmers_market/internal/catalog"
	"github.com/Skotchmaster/farmers_market/internal/models"
	"github.com/Skotchmaster/farmers_market/internal/search"
	"github.com/Skotchmaster/farmers_market/internal/util"
	"github.com/Skotchmaster/farmers_market/pkg/logging"
	middleware "github.com/Skotchmaster/farmers_market/pkg/middleware/auth"
)

type CatalogHTTP struct {
	Svc    *catalog.Service
	Search *search.Index
}

func (h *CatalogHTTP) GetProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.get_products")

	f := catalog.Filter{
		Search:   c.QueryParam("q"),
		Category: c.QueryParam("category"),
		Location: c.QueryParam("location"),
		MinPrice: util.ParseFloatDefault(c.QueryParam("min_price"), 0),
		MaxPrice: util.ParseFloatDefault(c.QueryParam("max_price"), 0),
		Sort:     c.QueryParam("sort"),
	}
	if strings.EqualFold(f.Category, "all") {
		f.Category = ""
	}
	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)

	res, err := h.Svc.Browse(ctx, f, page, size)
	if err != nil {
		return fail(l, "get_products_error", "cannot list products", err)
	}

	l.Info("get_products_success", "total", res.Meta.Total)
	return c.JSON(http.StatusOK, res)
}

func (h *CatalogHTTP) GetProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.get_product")

	id := models.ID(c.Param("id"))
	p, err := h.Svc.Product(ctx, id)
	if err != nil {
		return fail(l, "get_product_failed", "cannot get product", err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *CatalogHTTP) GetCategories(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.get_categories")

	cats, err := h.Svc.Categories(ctx)
	if err != nil {
		return fail(l, "get_categories_failed", "cannot list categories", err)
	}
	return c.JSON(http.StatusOK, cats)
}

func (h *CatalogHTTP) GetFarmer(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.get_farmer")

	f, products, err := h.Svc.Farmer(ctx, models.ID(c.Param("id")))
	if err != nil {
		return fail(l, "get_farmer_failed", "cannot get farmer", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"farmer": f, "products": products})
}

func (h *CatalogHTTP) SearchProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.search_products")

	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		l.Warn("search_products_error", "status", http.StatusBadRequest, "reason", "empty query")
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	from, limit := util.Calculate(page, size)

	res, err := h.Search.Search(ctx, q, from, limit)
	if err != nil {
		return fail(l, "search_products_error", "search failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data": res.Products,
		"meta": util.NewMeta(page, limit, res.Total),
	})
}

func (h *CatalogHTTP) GetFarmerProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.farmer_products")

	products, stats, err := h.Svc.FarmerProducts(ctx, models.ID(middleware.UserID(c)))
	if err != nil {
		return fail(l, "farmer_products_failed", "cannot list products", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"products": products, "stats": stats})
}

func (h *CatalogHTTP) CreateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.create_product")

	var req catalog.ProductInput
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "product_create_error", "invalid body", err)
	}

	p, err := h.Svc.Create(ctx, models.ID(middleware.UserID(c)), req)
	if err != nil {
		return fail(l, "product_create_error", "cannot create product", err)
	}

	l.Info("create_product_success", "product_id", p.ID.String())
	return c.JSON(http.StatusCreated, echo.Map{
		"status":  "success",
		"message": "Product added successfully!",
		"product": p,
	})
}

func (h *CatalogHTTP) UpdateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.update_product")

	var req catalog.ProductInput
	if err := c.Bind(&req); err != nil {
		return badRequest(l, "product_update_error", "invalid body", err)
	}

	p, err := h.Svc.Update(ctx, models.ID(middleware.UserID(c)), models.ID(c.Param("id")), req)
	if err != nil {
		return fail(l, "product_update_error", "cannot update product", err)
	}

	l.Info("update_product_success", "product_id", p.ID.String())
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "success",
		"message": "Product updated successfully!",
		"product": p,
	})
}

func (h *CatalogHTTP) DeleteProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "catalog.delete_product")

	id := models.ID(c.Param("id"))
	if err := h.Svc.Delete(ctx, models.ID(middleware.UserID(c)), id); err != nil {
		return fail(l, "product_delete_error", "cannot delete product", err)
	}

	l.Info("delete_product_success", "product_id", id.String())
	return c.JSON(http.StatusOK, Response{Status: "success", Message: "Product deleted successfully!"})
}
