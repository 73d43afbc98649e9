package datastore

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Skotchmaster/farmers_market/internal/models"
)

const (
	products   = "products"
	categories = "categories"
	farmers    = "farmers"
	buyers     = "buyers"
	orders     = "orders"
)

func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	var out []models.Product
	if err := c.do(ctx, http.MethodGet, "/"+products, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ProductsByFarmer(ctx context.Context, farmerID models.ID) ([]models.Product, error) {
	var out []models.Product
	q := url.Values{"farmerId": {farmerID.String()}}
	if err := c.do(ctx, http.MethodGet, "/"+products, q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetProduct(ctx context.Context, id models.ID) (models.Product, error) {
	var out models.Product
	err := c.do(ctx, http.MethodGet, itemPath(products, id), nil, nil, &out)
	return out, err
}

func (c *Client) CreateProduct(ctx context.Context, p models.Product) (models.Product, error) {
	var out models.Product
	err := c.do(ctx, http.MethodPost, "/"+products, nil, p, &out)
	return out, err
}

func (c *Client) UpdateProduct(ctx context.Context, p models.Product) (models.Product, error) {
	var out models.Product
	err := c.do(ctx, http.MethodPut, itemPath(products, p.ID), nil, p, &out)
	return out, err
}

func (c *Client) DeleteProduct(ctx context.Context, id models.ID) error {
	return c.do(ctx, http.MethodDelete, itemPath(products, id), nil, nil, nil)
}

func (c *Client) ListCategories(ctx context.Context) ([]models.Category, error) {
	var out []models.Category
	if err := c.do(ctx, http.MethodGet, "/"+categories, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetFarmer(ctx context.Context, id models.ID) (models.Farmer, error) {
	var out models.Farmer
	err := c.do(ctx, http.MethodGet, itemPath(farmers, id), nil, nil, &out)
	return out, err
}

func (c *Client) FarmersByEmail(ctx context.Context, email string) ([]models.Farmer, error) {
	var out []models.Farmer
	if err := c.do(ctx, http.MethodGet, "/"+farmers, url.Values{"email": {email}}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateFarmer(ctx context.Context, f models.Farmer) (models.Farmer, error) {
	var out models.Farmer
	err := c.do(ctx, http.MethodPost, "/"+farmers, nil, f, &out)
	return out, err
}

func (c *Client) GetBuyer(ctx context.Context, id models.ID) (models.Buyer, error) {
	var out models.Buyer
	err := c.do(ctx, http.MethodGet, itemPath(buyers, id), nil, nil, &out)
	return out, err
}

func (c *Client) BuyersByEmail(ctx context.Context, email string) ([]models.Buyer, error) {
	var out []models.Buyer
	if err := c.do(ctx, http.MethodGet, "/"+buyers, url.Values{"email": {email}}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateBuyer(ctx context.Context, b models.Buyer) (models.Buyer, error) {
	var out models.Buyer
	err := c.do(ctx, http.MethodPost, "/"+buyers, nil, b, &out)
	return out, err
}

func (c *Client) UpdateBuyer(ctx context.Context, b models.Buyer) (models.Buyer, error) {
	var out models.Buyer
	err := c.do(ctx, http.MethodPut, itemPath(buyers, b.ID), nil, b, &out)
	return out, err
}

func (c *Client) ListOrders(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	if err := c.do(ctx, http.MethodGet, "/"+orders, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OrdersByBuyer asks the store for the buyer's orders, newest id first.
func (c *Client) OrdersByBuyer(ctx context.Context, buyerID models.ID) ([]models.Order, error) {
	var out []models.Order
	q := url.Values{
		"buyerId": {buyerID.String()},
		"_sort":   {"id"},
		"_order":  {"desc"},
	}
	if err := c.do(ctx, http.MethodGet, "/"+orders, q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetOrder(ctx context.Context, id models.ID) (models.Order, error) {
	var out models.Order
	err := c.do(ctx, http.MethodGet, itemPath(orders, id), nil, nil, &out)
	return out, err
}

func (c *Client) CreateOrder(ctx context.Context, o models.Order) (models.Order, error) {
	var out models.Order
	err := c.do(ctx, http.MethodPost, "/"+orders, nil, o, &out)
	return out, err
}

// PatchOrderStatus writes only the status field.
func (c *Client) PatchOrderStatus(ctx context.Context, id models.ID, status models.OrderStatus) (models.Order, error) {
	var out models.Order
	body := map[string]models.OrderStatus{"status": status}
	err := c.do(ctx, http.MethodPatch, itemPath(orders, id), nil, body, &out)
	return out, err
}
