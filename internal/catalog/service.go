// Package catalog serves the product list and lets farmers manage their own
// products.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Skotchmaster/farmers_market/internal/datastore"
	"github.com/Skotchmaster/farmers_market/internal/events"
	"github.com/Skotchmaster/farmers_market/internal/models"
	"github.com/Skotchmaster/farmers_market/internal/util"
	"github.com/Skotchmaster/farmers_market/pkg/logging"
)

var (
	ErrValidation = errors.New("validation")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
)

type Store interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	ProductsByFarmer(ctx context.Context, farmerID models.ID) ([]models.Product, error)
	GetProduct(ctx context.Context, id models.ID) (models.Product, error)
	CreateProduct(ctx context.Context, p models.Product) (models.Product, error)
	UpdateProduct(ctx context.Context, p models.Product) (models.Product, error)
	DeleteProduct(ctx context.Context, id models.ID) error
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetFarmer(ctx context.Context, id models.ID) (models.Farmer, error)
}

// Indexer mirrors product changes into a search index.
type Indexer interface {
	IndexProduct(ctx context.Context, p models.Product) error
	DeleteProduct(ctx context.Context, id models.ID) error
}

type Service struct {
	Store   Store
	Pub     events.Publisher
	Indexer Indexer
}

func NewService(store Store, pub events.Publisher, idx Indexer) *Service {
	if pub == nil {
		pub = events.Nop
	}
	return &Service{Store: store, Pub: pub, Indexer: idx}
}

type ProductInput struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Quantity    string  `json:"quantity"`
	Location    string  `json:"location"`
	Category    string  `json:"category"`
	Image       string  `json:"image"`
	Description string  `json:"description"`
	Organic     bool    `json:"organic"`
	InStock     bool    `json:"inStock"`
	Rating      float64 `json:"rating"`
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("name is required: %w", ErrValidation)
	}
	if in.Price < 0 || math.IsNaN(in.Price) || math.IsInf(in.Price, 0) {
		return fmt.Errorf("price must be a non-negative number: %w", ErrValidation)
	}
	if in.Rating < 0 || in.Rating > 5 {
		return fmt.Errorf("rating must be between 0 and 5: %w", ErrValidation)
	}
	return nil
}

func (in ProductInput) apply(p *models.Product) {
	p.Name = strings.TrimSpace(in.Name)
	p.Price = in.Price
	p.Quantity = in.Quantity
	p.Location = in.Location
	p.Category = in.Category
	p.Image = in.Image
	p.Description = in.Description
	p.Organic = in.Organic
	p.InStock = in.InStock
	p.Rating = in.Rating
}

type Page struct {
	Data []models.Product `json:"data"`
	Meta util.Meta        `json:"meta"`
}

// Browse filters and sorts the whole catalog, then cuts out one page.
func (s *Service) Browse(ctx context.Context, f Filter, page, size int) (Page, error) {
	if !ValidSort(f.Sort) {
		return Page{}, fmt.Errorf("unknown sort %q: %w", f.Sort, ErrValidation)
	}
	if f.MinPrice < 0 || f.MaxPrice < 0 || (f.MaxPrice > 0 && f.MinPrice > f.MaxPrice) {
		return Page{}, fmt.Errorf("invalid price range: %w", ErrValidation)
	}

	all, err := s.Store.ListProducts(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("list products: %w", err)
	}
	matched := Apply(all, f)

	lo, hi := util.Window(len(matched), page, size)
	return Page{
		Data: matched[lo:hi],
		Meta: util.NewMeta(page, size, int64(len(matched))),
	}, nil
}

func (s *Service) Product(ctx context.Context, id models.ID) (models.Product, error) {
	p, err := s.Store.GetProduct(ctx, id)
	if errors.Is(err, datastore.ErrNotFound) {
		return models.Product{}, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	cats, err := s.Store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// Farmer returns a farmer profile without its password, with its products.
func (s *Service) Farmer(ctx context.Context, id models.ID) (models.Farmer, []models.Product, error) {
	f, err := s.Store.GetFarmer(ctx, id)
	if errors.Is(err, datastore.ErrNotFound) {
		return models.Farmer{}, nil, fmt.Errorf("farmer %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Farmer{}, nil, fmt.Errorf("get farmer: %w", err)
	}
	f.Password = ""

	products, err := s.Store.ProductsByFarmer(ctx, id)
	if err != nil {
		return models.Farmer{}, nil, fmt.Errorf("list farmer products: %w", err)
	}
	return f, products, nil
}

func (s *Service) FarmerProducts(ctx context.Context, farmerID models.ID) ([]models.Product, Stats, error) {
	products, err := s.Store.ProductsByFarmer(ctx, farmerID)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("list farmer products: %w", err)
	}
	return products, FarmerStats(products), nil
}

func (s *Service) Create(ctx context.Context, farmerID models.ID, in ProductInput) (models.Product, error) {
	if err := in.validate(); err != nil {
		return models.Product{}, err
	}

	p := models.Product{FarmerID: farmerID}
	in.apply(&p)

	created, err := s.Store.CreateProduct(ctx, p)
	if err != nil {
		return models.Product{}, fmt.Errorf("create product: %w", err)
	}
	s.changed(ctx, "created", created)
	return created, nil
}

// Update replaces the editable fields of a product owned by farmerID.
func (s *Service) Update(ctx context.Context, farmerID, id models.ID, in ProductInput) (models.Product, error) {
	if err := in.validate(); err != nil {
		return models.Product{}, err
	}
	p, err := s.owned(ctx, farmerID, id)
	if err != nil {
		return models.Product{}, err
	}

	in.apply(&p)
	updated, err := s.Store.UpdateProduct(ctx, p)
	if err != nil {
		return models.Product{}, fmt.Errorf("update product: %w", err)
	}
	s.changed(ctx, "updated", updated)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, farmerID, id models.ID) error {
	p, err := s.owned(ctx, farmerID, id)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteProduct(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	s.changed(ctx, "deleted", p)
	return nil
}

func (s *Service) owned(ctx context.Context, farmerID, id models.ID) (models.Product, error) {
	p, err := s.Product(ctx, id)
	if err != nil {
		return models.Product{}, err
	}
	if p.FarmerID != farmerID {
		return models.Product{}, fmt.Errorf("product %s belongs to farmer %s: %w", id, p.FarmerID, ErrForbidden)
	}
	return p, nil
}

func (s *Service) changed(ctx context.Context, action string, p models.Product) {
	if s.Indexer != nil {
		var err error
		if action == "deleted" {
			err = s.Indexer.DeleteProduct(ctx, p.ID)
		} else {
			err = s.Indexer.IndexProduct(ctx, p)
		}
		if err != nil {
			logging.FromContext(ctx).Warn("product_index_failed", "product_id", p.ID.String(), "action", action, "error", err)
		}
	}

	s.Pub.Publish(ctx, events.Event{
		Type:   events.ProductChanged,
		UserID: p.FarmerID.String(),
		Data: map[string]any{
			"action":     action,
			"product_id": p.ID.String(),
			"name":       p.Name,
		},
	})
}
