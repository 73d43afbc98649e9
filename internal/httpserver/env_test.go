package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/farmers_market/internal/auth"
	"github.com/Skotchmaster/farmers_market/internal/cart"
	"github.com/Skotchmaster/farmers_market/internal/catalog"
	"github.com/Skotchmaster/farmers_market/internal/datastore"
	"github.com/Skotchmaster/farmers_market/internal/events"
	"github.com/Skotchmaster/farmers_market/internal/favorites"
	"github.com/Skotchmaster/farmers_market/internal/metrics"
	"github.com/Skotchmaster/farmers_market/internal/models"
	"github.com/Skotchmaster/farmers_market/internal/orders"
	"github.com/Skotchmaster/farmers_market/internal/storage"
	pkgdb "github.com/Skotchmaster/farmers_market/pkg/db"
	middleware "github.com/Skotchmaster/farmers_market/pkg/middleware/auth"
	"github.com/Skotchmaster/farmers_market/pkg/middleware/session"
	"github.com/Skotchmaster/farmers_market/pkg/tokens"
)

const testSession = "6f1c2f0e-3a0b-4f7e-9a51-2d7c8b1e4a10"

var testSecret = []byte("handler-test-secret")

// memStore is an in-memory stand-in for the REST data store.
type memStore struct {
	mu         sync.Mutex
	products   []models.Product
	categories []models.Category
	farmers    []models.Farmer
	buyers     []models.Buyer
	orders     []models.Order
	seq        int
}

func (s *memStore) id() models.ID {
	s.seq++
	return models.ID(fmt.Sprint(1000 + s.seq))
}

func (s *memStore) ListProducts(context.Context) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Product(nil), s.products...), nil
}

func (s *memStore) ProductsByFarmer(_ context.Context, farmerID models.ID) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Product
	for _, p := range s.products {
		if p.FarmerID == farmerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) GetProduct(_ context.Context, id models.ID) (models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Product{}, datastore.ErrNotFound
}

func (s *memStore) CreateProduct(_ context.Context, p models.Product) (models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	s.products = append(s.products, p)
	return p, nil
}

func (s *memStore) UpdateProduct(_ context.Context, p models.Product) (models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].ID == p.ID {
			s.products[i] = p
			return p, nil
		}
	}
	return models.Product{}, datastore.ErrNotFound
}

func (s *memStore) DeleteProduct(_ context.Context, id models.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].ID == id {
			s.products = append(s.products[:i], s.products[i+1:]...)
			return nil
		}
	}
	return datastore.ErrNotFound
}

func (s *memStore) ListCategories(context.Context) ([]models.Category, error) {
	return s.categories, nil
}

func (s *memStore) GetFarmer(_ context.Context, id models.ID) (models.Farmer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.farmers {
		if f.ID == id {
			return f, nil
		}
	}
	return models.Farmer{}, datastore.ErrNotFound
}

func (s *memStore) FarmersByEmail(_ context.Context, email string) ([]models.Farmer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Farmer
	for _, f := range s.farmers {
		if f.Email == email {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *memStore) CreateFarmer(_ context.Context, f models.Farmer) (models.Farmer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.ID = s.id()
	s.farmers = append(s.farmers, f)
	return f, nil
}

func (s *memStore) BuyersByEmail(_ context.Context, email string) ([]models.Buyer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Buyer
	for _, b := range s.buyers {
		if b.Email == email {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) CreateBuyer(_ context.Context, b models.Buyer) (models.Buyer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = s.id()
	s.buyers = append(s.buyers, b)
	return b, nil
}

func (s *memStore) GetBuyer(_ context.Context, id models.ID) (models.Buyer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.buyers {
		if b.ID == id {
			return b, nil
		}
	}
	return models.Buyer{}, datastore.ErrNotFound
}

func (s *memStore) UpdateBuyer(_ context.Context, b models.Buyer) (models.Buyer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.buyers {
		if s.buyers[i].ID == b.ID {
			s.buyers[i] = b
			return b, nil
		}
	}
	return models.Buyer{}, datastore.ErrNotFound
}

func (s *memStore) ListOrders(context.Context) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Order(nil), s.orders...), nil
}

func (s *memStore) OrdersByBuyer(_ context.Context, buyerID models.ID) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if o.BuyerID == buyerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memStore) GetOrder(_ context.Context, id models.ID) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return models.Order{}, datastore.ErrNotFound
}

func (s *memStore) CreateOrder(_ context.Context, o models.Order) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.ID = s.id()
	s.orders = append(s.orders, o)
	return o, nil
}

func (s *memStore) PatchOrderStatus(_ context.Context, id models.ID, status models.OrderStatus) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID == id {
			s.orders[i].Status = status
			return s.orders[i], nil
		}
	}
	return models.Order{}, datastore.ErrNotFound
}

type testEnv struct {
	e     *echo.Echo
	store *memStore
	bus   *events.Bus
	kv    storage.KV
}

func seedStore() *memStore {
	return &memStore{
		products: []models.Product{
			{ID: "1", Name: "Honey", Price: 100, FarmerID: "A", Category: "Pantry", Location: "Valley", InStock: true, Rating: 4.5},
			{ID: "2", Name: "Eggs", Price: 50, FarmerID: "B", Category: "Dairy", Location: "Hills", InStock: true, Rating: 4},
			{ID: "3", Name: "Truffles", Price: 900, FarmerID: "B", Category: "Pantry", Location: "Hills", InStock: false},
		},
		categories: []models.Category{{ID: "1", Name: "Pantry"}, {ID: "2", Name: "Dairy"}},
		farmers: []models.Farmer{
			{ID: "A", Name: "Apiary", Email: "a@farm.test", Password: "pa"},
			{ID: "B", Name: "Barn", Email: "b@farm.test", Password: "pb"},
		},
		buyers: []models.Buyer{{ID: "b1", Name: "Ann", Email: "ann@buy.test", Password: "pw"}},
	}
}

func newTestEnv(t *testing.T, opts ...func(*Deps)) *testEnv {
	t.Helper()

	db, err := pkgdb.Open(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	kv, err := storage.NewGormKV(context.Background(), db, time.Hour)
	require.NoError(t, err)

	store := seedStore()
	bus := events.NewBus()
	carts := cart.NewRegistry(kv, bus)
	favs := favorites.NewRegistry(kv, bus)
	catalogSvc := catalog.NewService(store, bus, nil)

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	d := &Deps{
		Logger:         logger,
		Metrics:        metrics.New("test"),
		AuthHandler:    &AuthHTTP{Svc: auth.NewService(store, testSecret, time.Hour)},
		CatalogHandler: &CatalogHTTP{Svc: catalogSvc},
		CartHandler:    &CartHTTP{Carts: carts, Favorites: favs, Catalog: catalogSvc},
		OrdersHandler:  &OrdersHTTP{Svc: orders.NewService(store, bus), Carts: carts},
		BadgesHandler:  &BadgesHTTP{Carts: carts, Favorites: favs, Bus: bus, Heartbeat: time.Second},
		HealthHandler:  &HealthHTTP{Checks: map[string]Check{"store": func(context.Context) error { return nil }}},
		JWTSecret:      testSecret,
		SessionTTL:     time.Hour,
	}
	for _, o := range opts {
		o(d)
	}
	e := New(d)

	return &testEnv{e: e, store: store, bus: bus, kv: kv}
}

func token(t *testing.T, id, role, name string) string {
	t.Helper()
	tok, err := tokens.NewAccessToken(testSecret, id, role, name, time.Now().Add(time.Hour))
	require.NoError(t, err)
	return tok
}

type reqOpt func(*http.Request)

func withToken(tok string) reqOpt {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: middleware.AccessCookie, Value: tok}) }
}

func withSession(sid string) reqOpt {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: session.Cookie, Value: sid}) }
}

func (env *testEnv) do(t *testing.T, method, path string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			rd = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
