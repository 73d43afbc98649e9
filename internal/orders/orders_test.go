package orders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/farmers_market/internal/cart"
	"github.com/Skotchmaster/farmers_market/internal/datastore"
	"github.com/Skotchmaster/farmers_market/internal/events"
	"github.com/Skotchmaster/farmers_market/internal/models"
)

type fakeStore struct {
	mu        sync.Mutex
	orders    map[models.ID]models.Order
	nextID    int
	patches   int
	gets      int
	createErr error
}

func newFakeStore(orders ...models.Order) *fakeStore {
	fs := &fakeStore{orders: make(map[models.ID]models.Order), nextID: 100}
	for _, o := range orders {
		fs.orders[o.ID] = o
	}
	return fs
}

func (f *fakeStore) CreateOrder(_ context.Context, o models.Order) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return models.Order{}, f.createErr
	}
	f.nextID++
	o.ID = models.ID(fmt.Sprint(f.nextID))
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeStore) GetOrder(_ context.Context, id models.ID) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	o, ok := f.orders[id]
	if !ok {
		return models.Order{}, datastore.ErrNotFound
	}
	return o, nil
}

func (f *fakeStore) PatchOrderStatus(_ context.Context, id models.ID, status models.OrderStatus) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches++
	o, ok := f.orders[id]
	if !ok {
		return models.Order{}, datastore.ErrNotFound
	}
	o.Status = status
	f.orders[id] = o
	return o, nil
}

func (f *fakeStore) ListOrders(context.Context) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeStore) OrdersByBuyer(ctx context.Context, buyerID models.ID) ([]models.Order, error) {
	all, _ := f.ListOrders(ctx)
	var out []models.Order
	for _, o := range all {
		if o.BuyerID == buyerID {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakeCart struct {
	lines    []cart.Line
	clearErr error
	cleared  bool
}

func (c *fakeCart) Lines() []cart.Line { return append([]cart.Line(nil), c.lines...) }

func (c *fakeCart) Clear(context.Context) error {
	if c.clearErr != nil {
		return c.clearErr
	}
	c.lines = nil
	c.cleared = true
	return nil
}

func fixedNow(s *Service) {
	s.now = func() time.Time { return time.Date(2025, 6, 14, 18, 30, 0, 0, time.UTC) }
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	all := []models.OrderStatus{
		models.OrderStatusPending,
		models.OrderStatusAccepted,
		models.OrderStatusRejected,
		models.OrderStatusInTransit,
	}
	allowed := map[[2]models.OrderStatus]bool{
		{models.OrderStatusPending, models.OrderStatusAccepted}:  true,
		{models.OrderStatusPending, models.OrderStatusRejected}:  true,
		{models.OrderStatusAccepted, models.OrderStatusInTransit}: true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]models.OrderStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, CanTransition("", models.OrderStatusAccepted))
	assert.Empty(t, NextStatuses(models.OrderStatusInTransit))
	assert.Equal(t, []models.OrderStatus{models.OrderStatusInTransit}, NextStatuses(models.OrderStatusAccepted))
}

func TestBuildOrder(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 14, 18, 30, 0, 0, time.UTC)
	lines := []cart.Line{
		{ProductID: "1", Name: "Honey", FarmerID: "f1", Price: 100, Quantity: 2},
		{ProductID: "2", Name: "Eggs", FarmerID: "f2", Price: 50, Quantity: 1},
	}

	o, err := BuildOrder(lines, Buyer{ID: "b1", Name: "Ann"}, "  X  ", now)
	require.NoError(t, err)
	assert.Equal(t, 250.0, o.TotalAmount)
	assert.Equal(t, models.OrderStatusPending, o.Status)
	assert.Equal(t, "2025-06-14", o.OrderDate)
	assert.Equal(t, "X", o.ShippingAddress)
	require.Len(t, o.Items, 2)
	assert.Equal(t, models.OrderItem{ProductID: "1", ProductName: "Honey", FarmerID: "f1", Quantity: 2, Price: 100, Total: 200}, o.Items[0])

	_, err = BuildOrder(nil, Buyer{ID: "b1"}, "X", now)
	require.ErrorIs(t, err, ErrEmptyCart)
	_, err = BuildOrder(lines, Buyer{ID: "b1"}, "   ", now)
	require.ErrorIs(t, err, ErrEmptyAddress)
	_, err = BuildOrder(lines, Buyer{}, "X", now)
	require.ErrorIs(t, err, ErrValidation)
}

func TestService_CheckoutClearsCartOnSuccess(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	bus := events.NewBus()
	var got []events.Event
	bus.Subscribe(func(_ context.Context, e events.Event) { got = append(got, e) })
	svc := NewService(store, bus)
	fixedNow(svc)

	c := &fakeCart{lines: []cart.Line{
		{ProductID: "1", Name: "Honey", FarmerID: "f1", Price: 100, Quantity: 2},
		{ProductID: "2", Name: "Eggs", FarmerID: "f2", Price: 50, Quantity: 1},
	}}

	o, err := svc.Checkout(context.Background(), c, Buyer{ID: "b1", Name: "Ann"}, "X")
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, 250.0, o.TotalAmount)
	assert.Equal(t, models.OrderStatusPending, o.Status)
	assert.True(t, c.cleared)
	assert.Empty(t, c.Lines())

	require.Len(t, got, 1)
	assert.Equal(t, events.OrderPlaced, got[0].Type)
	assert.Equal(t, []string{"f1", "f2"}, got[0].Data["farmer_ids"])
}

func TestService_CheckoutFailureKeepsCart(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	store.createErr = errors.New("connection refused")
	svc := NewService(store, nil)

	c := &fakeCart{lines: []cart.Line{{ProductID: "1", FarmerID: "f1", Price: 10, Quantity: 1}}}
	_, err := svc.Checkout(context.Background(), c, Buyer{ID: "b1"}, "X")
	require.Error(t, err)
	assert.False(t, c.cleared)
	assert.Len(t, c.Lines(), 1)
}

func TestService_CheckoutValidation(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	svc := NewService(store, nil)

	_, err := svc.Checkout(context.Background(), &fakeCart{}, Buyer{ID: "b1"}, "X")
	require.ErrorIs(t, err, ErrEmptyCart)

	c := &fakeCart{lines: []cart.Line{{ProductID: "1", Price: 10, Quantity: 1}}}
	_, err = svc.Checkout(context.Background(), c, Buyer{ID: "b1"}, "")
	require.ErrorIs(t, err, ErrEmptyAddress)
	assert.Empty(t, store.orders)
}

func TestService_CheckoutSucceedsWhenClearFails(t *testing.T) {
	t.Parallel()
	svc := NewService(newFakeStore(), nil)

	c := &fakeCart{
		lines:    []cart.Line{{ProductID: "1", FarmerID: "f1", Price: 10, Quantity: 1}},
		clearErr: errors.New("kv down"),
	}
	o, err := svc.Checkout(context.Background(), c, Buyer{ID: "b1"}, "X")
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
}

func TestForFarmer(t *testing.T) {
	t.Parallel()
	mixed := models.Order{
		ID:     "1",
		Status: models.OrderStatusPending,
		Items: []models.OrderItem{
			{ProductID: "a", FarmerID: "A", Quantity: 2, Price: 60, Total: 120},
			{ProductID: "b", FarmerID: "B", Quantity: 4, Price: 20, Total: 80},
		},
		TotalAmount: 200,
	}
	onlyB := models.Order{
		ID:     "2",
		Status: models.OrderStatusAccepted,
		Items:  []models.OrderItem{{ProductID: "c", FarmerID: "B", Quantity: 1, Price: 5, Total: 5}},
	}
	all := []models.Order{mixed, onlyB}

	a, err := ForFarmer(all, "A", "all")
	require.NoError(t, err)
	require.Len(t, a, 1)
	require.Len(t, a[0].Items, 1)
	assert.Equal(t, models.ID("a"), a[0].Items[0].ProductID)
	assert.Equal(t, 120.0, a[0].Subtotal)

	b, err := ForFarmer(all, "B", "")
	require.NoError(t, err)
	require.Len(t, b, 2)
	assert.Equal(t, 80.0, b[0].Subtotal)
	assert.Equal(t, models.ID("b"), b[0].Items[0].ProductID)

	bAccepted, err := ForFarmer(all, "B", "accepted")
	require.NoError(t, err)
	require.Len(t, bAccepted, 1)
	assert.Equal(t, models.ID("2"), bAccepted[0].ID)

	none, err := ForFarmer(all, "C", "")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = ForFarmer(all, "A", "shipped")
	require.ErrorIs(t, err, ErrValidation)

	// the shared order itself is untouched
	assert.Len(t, mixed.Items, 2)
}

func pendingOrder() models.Order {
	return models.Order{
		ID:      "7",
		BuyerID: "b1",
		Status:  models.OrderStatusPending,
		Items: []models.OrderItem{
			{ProductID: "a", FarmerID: "A", Quantity: 1, Price: 10, Total: 10},
			{ProductID: "b", FarmerID: "B", Quantity: 1, Price: 10, Total: 10},
		},
	}
}

func TestService_TransitionLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("accept then ship", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore(pendingOrder())
		svc := NewService(store, nil)

		o, err := svc.Transition(ctx, TransitionRequest{OrderID: "7", FarmerID: "A", To: models.OrderStatusAccepted})
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusAccepted, o.Status)

		o, err = svc.Transition(ctx, TransitionRequest{OrderID: "7", FarmerID: "B", To: models.OrderStatusInTransit, Expected: models.OrderStatusAccepted})
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusInTransit, o.Status)
		assert.Len(t, o.Items, 2)
	})

	t.Run("reject", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore(pendingOrder())
		svc := NewService(store, nil)

		o, err := svc.Transition(ctx, TransitionRequest{OrderID: "7", FarmerID: "A", To: models.OrderStatusRejected})
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusRejected, o.Status)

		_, err = svc.Transition(ctx, TransitionRequest{OrderID: "7", FarmerID: "A", To: models.OrderStatusInTransit})
		require.ErrorIs(t, err, ErrIllegalTransition)
	})
}

func TestService_TransitionRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     TransitionRequest
		wantErr error
	}{
		{name: "pending straight to in-transit", req: TransitionRequest{OrderID: "7", FarmerID: "A", To: models.OrderStatusInTransit}, wantErr: ErrIllegalTransition},
		{name: "back to pending", req: TransitionRequest{OrderID: "7", FarmerID: "A", To: models.OrderStatusPending}, wantErr: ErrIllegalTransition},
		{name: "unknown status", req: TransitionRequest{OrderID: "7", FarmerID: "A", To: "delivered"}, wantErr: ErrValidation},
		{name: "farmer without items", req: TransitionRequest{OrderID: "7", FarmerID: "C", To: models.OrderStatusAccepted}, wantErr: ErrForbidden},
		{name: "stale expectation", req: TransitionRequest{OrderID: "7", FarmerID: "A", To: models.OrderStatusInTransit, Expected: models.OrderStatusAccepted}, wantErr: ErrConflict},
		{name: "missing order", req: TransitionRequest{OrderID: "404", FarmerID: "A", To: models.OrderStatusAccepted}, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := newFakeStore(pendingOrder())
			svc := NewService(store, nil)

			_, err := svc.Transition(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, store.patches)
			assert.Equal(t, models.OrderStatusPending, store.orders["7"].Status)
		})
	}
}

func TestService_TransitionExpectedCatchesOutsideWriter(t *testing.T) {
	t.Parallel()
	store := newFakeStore(pendingOrder())
	svc := NewService(store, nil)

	o, err := svc.Transition(context.Background(), TransitionRequest{OrderID: "7", FarmerID: "A", To: models.OrderStatusAccepted, Expected: models.OrderStatusPending})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusAccepted, o.Status)
	assert.Equal(t, 1, store.gets)

	// a writer in another process rejects the order behind the service's back
	store.mu.Lock()
	moved := store.orders["7"]
	moved.Status = models.OrderStatusRejected
	store.orders["7"] = moved
	store.mu.Unlock()

	_, err = svc.Transition(context.Background(), TransitionRequest{OrderID: "7", FarmerID: "A", To: models.OrderStatusInTransit, Expected: models.OrderStatusAccepted})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, store.patches)
	assert.Equal(t, models.OrderStatusRejected, store.orders["7"].Status)
}

func TestService_ConcurrentTransitionsOneWins(t *testing.T) {
	t.Parallel()
	store := newFakeStore(pendingOrder())
	svc := NewService(store, nil)

	targets := []models.OrderStatus{models.OrderStatusAccepted, models.OrderStatusRejected}
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, to := range targets {
		wg.Add(1)
		go func(i int, to models.OrderStatus) {
			defer wg.Done()
			_, errs[i] = svc.Transition(context.Background(), TransitionRequest{OrderID: "7", FarmerID: "A", To: to, Expected: models.OrderStatusPending})
		}(i, to)
	}
	wg.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrConflict)
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, store.patches)
	assert.Zero(t, svc.locks.size())
}

func TestService_TransitionPublishes(t *testing.T) {
	t.Parallel()
	bus := events.NewBus()
	var got []events.Event
	bus.Subscribe(func(_ context.Context, e events.Event) { got = append(got, e) })
	svc := NewService(newFakeStore(pendingOrder()), bus)

	_, err := svc.Transition(context.Background(), TransitionRequest{OrderID: "7", FarmerID: "B", To: models.OrderStatusAccepted})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, events.OrderStatusChanged, got[0].Type)
	assert.Equal(t, "b1", got[0].UserID)
	assert.Equal(t, "pending", got[0].Data["from"])
	assert.Equal(t, "accepted", got[0].Data["to"])
}

func TestService_HistoryNewestFirst(t *testing.T) {
	t.Parallel()
	store := newFakeStore(
		models.Order{ID: "2", BuyerID: "b1"},
		models.Order{ID: "10", BuyerID: "b1"},
		models.Order{ID: "3", BuyerID: "b2"},
		models.Order{ID: "1", BuyerID: "b1"},
	)
	svc := NewService(store, nil)

	got, err := svc.History(context.Background(), "b1")
	require.NoError(t, err)

	var ids []models.ID
	for _, o := range got {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []models.ID{"10", "2", "1"}, ids)
}

func TestService_FarmerOrders(t *testing.T) {
	t.Parallel()
	svc := NewService(newFakeStore(pendingOrder()), nil)

	got, err := svc.FarmerOrders(context.Background(), "B", "pending")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 10.0, got[0].Subtotal)

	_, err = svc.FarmerOrders(context.Background(), "B", "nope")
	require.ErrorIs(t, err, ErrValidation)
}
