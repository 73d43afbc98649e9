// Package events is the in-process change feed. Stores publish after every
// successful mutation; badges, metrics and the Kafka forwarder subscribe.
package events

import (
	"context"
	"sync"
	"time"
)

const (
	CartUpdated        = "cart_updated"
	FavoritesUpdated   = "favorites_updated"
	OrderPlaced        = "order_placed"
	OrderStatusChanged = "order_status_changed"
	ProductChanged     = "product_changed"
)

type Event struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	At        time.Time      `json:"at"`
}

type Handler func(ctx context.Context, e Event)

// Publisher is what stores depend on.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type Bus struct {
	mu     sync.RWMutex
	next   int
	subs   map[int]Handler
	nowFun func() time.Time
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]Handler), nowFun: time.Now}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers e to every subscriber synchronously, in no particular order.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = b.nowFun()
	}

	b.mu.RLock()
	hs := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		hs = append(hs, h)
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(ctx, e)
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

// Nop discards events.
var Nop Publisher = nopPublisher{}
