package favorites

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Skotchmaster/farmers_market/internal/events"
	"github.com/Skotchmaster/farmers_market/internal/storage"
)

type Registry struct {
	KV  storage.KV
	Pub events.Publisher

	mu    sync.Mutex
	sets  map[string]*Set
	group singleflight.Group
}

func NewRegistry(kv storage.KV, pub events.Publisher) *Registry {
	return &Registry{KV: kv, Pub: pub, sets: make(map[string]*Set)}
}

func (r *Registry) Get(ctx context.Context, sessionID string) (*Set, error) {
	r.mu.Lock()
	s, ok := r.sets[sessionID]
	r.mu.Unlock()
	if ok {
		return s, nil
	}

	v, err, _ := r.group.Do(sessionID, func() (any, error) {
		s, err := Load(ctx, r.KV, r.Pub, sessionID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.sets[sessionID]; ok {
			return cur, nil
		}
		r.sets[sessionID] = s
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Set), nil
}

// Forget drops the cached set; the stored ids stay in the session store.
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	delete(r.sets, sessionID)
	r.mu.Unlock()
}
