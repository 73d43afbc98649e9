// Package cart holds the per-session shopping cart.
//
// A Manager owns the lines of one session. Every mutation writes the full line
// list to the session store first and only then replaces the in-memory copy,
// so a failed write leaves the cart exactly as it was.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Skotchmaster/farmers_market/internal/events"
	"github.com/Skotchmaster/farmers_market/internal/models"
	"github.com/Skotchmaster/farmers_market/internal/storage"
)

// MaxQuantity caps a single line.
const MaxQuantity = 999

var ErrValidation = errors.New("validation")

type Line struct {
	ProductID models.ID `json:"productId"`
	Name      string    `json:"name"`
	Image     string    `json:"image"`
	Location  string    `json:"location"`
	FarmerID  models.ID `json:"farmerId"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
}

func (l Line) Total() float64 {
	return l.Price * float64(l.Quantity)
}

func Key(sessionID string) string {
	return "cart:" + sessionID
}

type Manager struct {
	mu        sync.Mutex
	sessionID string
	kv        storage.KV
	pub       events.Publisher
	lines     []Line

	// inflight counts mutations that have not finished yet.
	inflight atomic.Int32
}

// Load restores the cart of sessionID from kv. A session that never wrote a
// cart starts empty.
func Load(ctx context.Context, kv storage.KV, pub events.Publisher, sessionID string) (*Manager, error) {
	if pub == nil {
		pub = events.Nop
	}
	m := &Manager{sessionID: sessionID, kv: kv, pub: pub}

	raw, err := kv.Get(ctx, Key(sessionID))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return m, nil
	case err != nil:
		return nil, fmt.Errorf("load cart: %w", err)
	}

	var lines []Line
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	for _, l := range lines {
		if l.ProductID == "" || l.Quantity <= 0 || l.Quantity > MaxQuantity {
			continue
		}
		m.lines = append(m.lines, l)
	}
	return m, nil
}

func (m *Manager) SessionID() string { return m.sessionID }

// Add merges quantity into the line for p, creating it with a snapshot of the
// product's display fields when absent. Non-positive quantities count as 1;
// a line never grows past MaxQuantity.
func (m *Manager) Add(ctx context.Context, p models.Product, quantity int) error {
	if p.ID == "" {
		return fmt.Errorf("product id is required: %w", ErrValidation)
	}
	if quantity <= 0 {
		quantity = 1
	}
	if quantity > MaxQuantity {
		return fmt.Errorf("quantity %d exceeds %d: %w", quantity, MaxQuantity, ErrValidation)
	}

	return m.mutate(ctx, func(lines []Line) ([]Line, bool, error) {
		if i := indexOf(lines, p.ID); i >= 0 {
			if lines[i].Quantity > MaxQuantity-quantity {
				return nil, false, fmt.Errorf("line %s would exceed %d: %w", p.ID, MaxQuantity, ErrValidation)
			}
			lines[i].Quantity += quantity
			return lines, true, nil
		}
		return append(lines, Line{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.Image,
			Location:  p.Location,
			FarmerID:  p.FarmerID,
			Price:     p.Price,
			Quantity:  quantity,
		}), true, nil
	})
}

// Remove drops the line for productID. Absent ids are ignored.
func (m *Manager) Remove(ctx context.Context, productID models.ID) error {
	return m.mutate(ctx, func(lines []Line) ([]Line, bool, error) {
		i := indexOf(lines, productID)
		if i < 0 {
			return lines, false, nil
		}
		return append(lines[:i], lines[i+1:]...), true, nil
	})
}

// UpdateQuantity sets the quantity of an existing line; q <= 0 removes it.
func (m *Manager) UpdateQuantity(ctx context.Context, productID models.ID, q int) error {
	if q > MaxQuantity {
		return fmt.Errorf("quantity %d exceeds %d: %w", q, MaxQuantity, ErrValidation)
	}
	return m.mutate(ctx, func(lines []Line) ([]Line, bool, error) {
		i := indexOf(lines, productID)
		if i < 0 {
			return lines, false, nil
		}
		if q <= 0 {
			return append(lines[:i], lines[i+1:]...), true, nil
		}
		if lines[i].Quantity == q {
			return lines, false, nil
		}
		lines[i].Quantity = q
		return lines, true, nil
	})
}

func (m *Manager) Clear(ctx context.Context) error {
	return m.mutate(ctx, func(lines []Line) ([]Line, bool, error) {
		return nil, len(lines) > 0, nil
	})
}

// Count is the sum of quantities, not the number of lines.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return count(m.lines)
}

func (m *Manager) Total() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return total(m.lines)
}

// Lines returns a copy of the lines in the order they were first added.
func (m *Manager) Lines() []Line {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Line(nil), m.lines...)
}

func (m *Manager) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lines) == 0
}

// mutate applies fn to a private copy of the lines, persists the result and
// swaps it in. fn reports whether anything changed; unchanged carts are not
// written.
func (m *Manager) mutate(ctx context.Context, fn func([]Line) ([]Line, bool, error)) error {
	m.inflight.Add(1)
	defer m.inflight.Add(-1)

	m.mu.Lock()
	next, changed, err := fn(append([]Line(nil), m.lines...))
	if err != nil || !changed {
		m.mu.Unlock()
		return err
	}

	if err := m.persist(ctx, next); err != nil {
		m.mu.Unlock()
		return err
	}
	m.lines = next
	n, sum := count(next), total(next)
	m.mu.Unlock()

	m.pub.Publish(ctx, events.Event{
		Type:      events.CartUpdated,
		SessionID: m.sessionID,
		Data:      map[string]any{"count": n, "total": sum},
	})
	return nil
}

func (m *Manager) persist(ctx context.Context, lines []Line) error {
	if len(lines) == 0 {
		if err := m.kv.Delete(ctx, Key(m.sessionID)); err != nil {
			return fmt.Errorf("save cart: %w", err)
		}
		return nil
	}

	raw, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := m.kv.Set(ctx, Key(m.sessionID), raw); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

func indexOf(lines []Line, id models.ID) int {
	for i := range lines {
		if lines[i].ProductID == id {
			return i
		}
	}
	return -1
}

func count(lines []Line) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

func total(lines []Line) float64 {
	var sum float64
	for _, l := range lines {
		sum += l.Total()
	}
	return sum
}
