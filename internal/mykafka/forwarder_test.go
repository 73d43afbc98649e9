package mykafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/farmers_market/internal/events"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTopicFor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, TopicCart, TopicFor(events.CartUpdated))
	assert.Equal(t, TopicCart, TopicFor(events.FavoritesUpdated))
	assert.Equal(t, TopicOrder, TopicFor(events.OrderPlaced))
	assert.Equal(t, TopicOrder, TopicFor(events.OrderStatusChanged))
	assert.Equal(t, TopicProduct, TopicFor(events.ProductChanged))
	assert.Empty(t, TopicFor("unknown"))
}

func TestProducer_PublishEvent(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	p := &Producer{writer: w}

	err := p.PublishEvent(context.Background(), TopicOrder, "b1", events.OrderPlaced, map[string]any{"order_id": "7"})
	require.NoError(t, err)

	msgs := w.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, TopicOrder, msgs[0].Topic)
	assert.Equal(t, "b1", string(msgs[0].Key))
	assert.JSONEq(t, `{"order_id":"7"}`, string(msgs[0].Value))
	assert.Equal(t, []kafka.Header{{Key: "event_type", Value: []byte(events.OrderPlaced)}}, msgs[0].Headers)

	w.err = errors.New("broker down")
	require.Error(t, p.PublishEvent(context.Background(), TopicOrder, "b1", events.OrderPlaced, nil))
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	t.Parallel()
	_, err := NewProducer(nil)
	require.Error(t, err)
}

func TestForwarder_FlushesOnShutdown(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	fwd := NewForwarder(&Producer{writer: w}, discard(), 8)

	bus := events.NewBus()
	bus.Subscribe(fwd.Handle)

	ctx, cancel := context.WithCancel(context.Background())
	bus.Publish(ctx, events.Event{Type: events.CartUpdated, SessionID: "s1"})
	bus.Publish(ctx, events.Event{Type: events.OrderStatusChanged, UserID: "b1"})
	bus.Publish(ctx, events.Event{Type: "ignored"})

	fwd.Start(ctx)
	cancel()
	fwd.Wait()

	msgs := w.messages()
	require.Len(t, msgs, 2)

	byTopic := map[string]kafka.Message{}
	for _, m := range msgs {
		byTopic[m.Topic] = m
	}
	assert.Equal(t, "s1", string(byTopic[TopicCart].Key))
	assert.Equal(t, "b1", string(byTopic[TopicOrder].Key))

	var e events.Event
	require.NoError(t, json.Unmarshal(byTopic[TopicCart].Value, &e))
	assert.Equal(t, events.CartUpdated, e.Type)
}

func TestForwarder_DropsWhenFull(t *testing.T) {
	t.Parallel()
	w := &fakeWriter{}
	fwd := NewForwarder(&Producer{writer: w}, discard(), 1)

	fwd.Handle(context.Background(), events.Event{Type: events.CartUpdated, SessionID: "a"})
	fwd.Handle(context.Background(), events.Event{Type: events.CartUpdated, SessionID: "b"})

	ctx, cancel := context.WithCancel(context.Background())
	fwd.Start(ctx)
	cancel()
	fwd.Wait()

	msgs := w.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "a", string(msgs[0].Key))
}
