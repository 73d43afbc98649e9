// Package mykafka forwards storefront events to Kafka topics.
package mykafka

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Skotchmaster/farmers_market/internal/events"
)

const (
	TopicCart    = "cart_events"
	TopicOrder   = "order_events"
	TopicProduct = "product_events"
)

// TopicFor maps an event type to its topic; "" means the event is not forwarded.
func TopicFor(eventType string) string {
	switch eventType {
	case events.CartUpdated, events.FavoritesUpdated:
		return TopicCart
	case events.OrderPlaced, events.OrderStatusChanged:
		return TopicOrder
	case events.ProductChanged:
		return TopicProduct
	}
	return ""
}

type publisher interface {
	PublishEvent(ctx context.Context, topic, key, eventType string, event any) error
}

// Forwarder queues bus events and writes them from a single goroutine, so a
// slow broker never holds up a request. When the queue is full the event is
// dropped and logged.
type Forwarder struct {
	pub   publisher
	log   *slog.Logger
	queue chan events.Event

	wg sync.WaitGroup
}

func NewForwarder(p publisher, log *slog.Logger, buffer int) *Forwarder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Forwarder{pub: p, log: log, queue: make(chan events.Event, buffer)}
}

// Handle is an events.Handler.
func (f *Forwarder) Handle(_ context.Context, e events.Event) {
	if TopicFor(e.Type) == "" {
		return
	}
	select {
	case f.queue <- e:
	default:
		f.log.Warn("kafka_forward_dropped", "event_type", e.Type, "reason", "queue full")
	}
}

// Start drains the queue until ctx is done, then flushes what is left.
func (f *Forwarder) Start(ctx context.Context) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case e := <-f.queue:
				f.send(context.WithoutCancel(ctx), e)
			case <-ctx.Done():
				f.drain(context.WithoutCancel(ctx))
				return
			}
		}
	}()
}

// Wait blocks until the goroutine started by Start has returned.
func (f *Forwarder) Wait() {
	f.wg.Wait()
}

func (f *Forwarder) drain(ctx context.Context) {
	for {
		select {
		case e := <-f.queue:
			f.send(ctx, e)
		default:
			return
		}
	}
}

func (f *Forwarder) send(ctx context.Context, e events.Event) {
	key := e.SessionID
	if key == "" {
		key = e.UserID
	}
	topic := TopicFor(e.Type)
	if err := f.pub.PublishEvent(ctx, topic, key, e.Type, e); err != nil {
		f.log.Error("kafka_forward_failed", "event_type", e.Type, "topic", topic, "error", err)
	}
}
