package cart

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Skotchmaster/farmers_market/internal/events"
	"github.com/Skotchmaster/farmers_market/internal/storage"
)

type entry struct {
	m        *Manager
	lastUsed time.Time
}

// Registry hands out one Manager per session. Concurrent first requests for
// the same session share a single load.
type Registry struct {
	KV  storage.KV
	Pub events.Publisher

	mu       sync.Mutex
	managers map[string]*entry
	group    singleflight.Group
	now      func() time.Time
}

func NewRegistry(kv storage.KV, pub events.Publisher) *Registry {
	return &Registry{
		KV:       kv,
		Pub:      pub,
		managers: make(map[string]*entry),
		now:      time.Now,
	}
}

func (r *Registry) Get(ctx context.Context, sessionID string) (*Manager, error) {
	r.mu.Lock()
	if e, ok := r.managers[sessionID]; ok {
		e.lastUsed = r.now()
		r.mu.Unlock()
		return e.m, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(sessionID, func() (any, error) {
		m, err := Load(ctx, r.KV, r.Pub, sessionID)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if e, ok := r.managers[sessionID]; ok {
			return e.m, nil
		}
		r.managers[sessionID] = &entry{m: m, lastUsed: r.now()}
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Manager), nil
}

// Evict forgets managers idle for longer than idle. Their state stays in the
// session store and is reloaded on the next Get. Managers with a mutation in
// flight are kept; a caller holding a Manager for longer than idle without
// mutating it may still race a reloaded copy.
func (r *Registry) Evict(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for sid, e := range r.managers {
		if e.lastUsed.Before(cutoff) && e.m.inflight.Load() == 0 {
			delete(r.managers, sid)
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}
