// Package favorites keeps the set of favorited product ids per session.
package favorites

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Skotchmaster/farmers_market/internal/events"
	"github.com/Skotchmaster/farmers_market/internal/models"
	"github.com/Skotchmaster/farmers_market/internal/storage"
)

func Key(sessionID string) string {
	return "favorites:" + sessionID
}

type Set struct {
	mu        sync.Mutex
	sessionID string
	kv        storage.KV
	pub       events.Publisher
	ids       []models.ID
}

func Load(ctx context.Context, kv storage.KV, pub events.Publisher, sessionID string) (*Set, error) {
	if pub == nil {
		pub = events.Nop
	}
	s := &Set{sessionID: sessionID, kv: kv, pub: pub}

	raw, err := kv.Get(ctx, Key(sessionID))
	if errors.Is(err, storage.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load favorites: %w", err)
	}
	if err := json.Unmarshal(raw, &s.ids); err != nil {
		return nil, fmt.Errorf("decode favorites: %w", err)
	}
	s.ids = slices.DeleteFunc(s.ids, func(id models.ID) bool { return id == "" })
	return s, nil
}

// Toggle adds id when absent and removes it when present. It reports whether
// id is a favorite afterwards.
func (s *Set) Toggle(ctx context.Context, id models.ID) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("product id is required")
	}

	s.mu.Lock()
	next := slices.Clone(s.ids)
	on := false
	if i := slices.Index(next, id); i >= 0 {
		next = slices.Delete(next, i, i+1)
	} else {
		next = append(next, id)
		on = true
	}

	if err := s.persist(ctx, next); err != nil {
		s.mu.Unlock()
		return !on, err
	}
	s.ids = next
	n := len(next)
	s.mu.Unlock()

	s.pub.Publish(ctx, events.Event{
		Type:      events.FavoritesUpdated,
		SessionID: s.sessionID,
		Data:      map[string]any{"count": n, "product_id": id.String(), "favorite": on},
	})
	return on, nil
}

func (s *Set) Contains(id models.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.ids, id)
}

func (s *Set) IDs() []models.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ids)
}

func (s *Set) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

func (s *Set) persist(ctx context.Context, ids []models.ID) error {
	if len(ids) == 0 {
		if err := s.kv.Delete(ctx, Key(s.sessionID)); err != nil {
			return fmt.Errorf("save favorites: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode favorites: %w", err)
	}
	if err := s.kv.Set(ctx, Key(s.sessionID), raw); err != nil {
		return fmt.Errorf("save favorites: %w", err)
	}
	return nil
}
