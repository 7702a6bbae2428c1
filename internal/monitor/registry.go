package monitor

import (
	"context"
	"sort"
	"sync"

	"cctvbot/internal/storage"
	logx "cctvbot/pkg/logx"
)

// Registry mirrors the persisted subscriber list in memory. Writes go to the
// store first; the local set is updated regardless of the store outcome.
type Registry struct {
	store storage.SubscriberStore
	log   logx.Logger

	mu  sync.RWMutex
	set map[string]struct{}
	// ver counts local Add/Remove calls; Resync discards a listing that
	// raced with one.
	ver uint64
}

func NewRegistry(store storage.SubscriberStore, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{store: store, log: log.With(logx.String("comp", "registry")), set: map[string]struct{}{}}
}

// Add registers addr. Invalid addresses are rejected without touching the store.
func (r *Registry) Add(ctx context.Context, addr string) bool {
	if !storage.ValidAddress(addr) {
		return false
	}
	if r.store != nil {
		if _, err := r.store.AddAddress(ctx, addr); err != nil {
			r.log.Warn("persist subscriber failed", logx.String("address", addr), logx.Err(err))
		}
	}
	r.mu.Lock()
	r.set[addr] = struct{}{}
	r.ver++
	r.mu.Unlock()
	return true
}

// Remove soft-deletes addr and always drops it locally. It reports whether
// the address was known locally or in the store.
func (r *Registry) Remove(ctx context.Context, addr string) bool {
	var persisted bool
	if r.store != nil {
		ok, err := r.store.DeactivateAddress(ctx, addr)
		if err != nil {
			r.log.Warn("deactivate subscriber failed", logx.String("address", addr), logx.Err(err))
		}
		persisted = ok
	}
	r.mu.Lock()
	_, local := r.set[addr]
	delete(r.set, addr)
	r.ver++
	r.mu.Unlock()
	return local || persisted
}

// Resync replaces the local set with the store's active list. On error the
// previous set is kept. A listing that overlaps a local Add or Remove is
// discarded; the next resync picks the change up.
func (r *Registry) Resync(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	r.mu.RLock()
	ver := r.ver
	r.mu.RUnlock()

	addrs, err := r.store.ListActiveAddresses(ctx)
	if err != nil {
		r.log.Warn("subscriber resync failed", logx.Err(err))
		return err
	}
	next := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		next[a] = struct{}{}
	}

	r.mu.Lock()
	if r.ver != ver {
		r.mu.Unlock()
		r.log.Debug("subscriber resync skipped (concurrent change)")
		return nil
	}
	prev := r.set
	r.set = next
	r.mu.Unlock()

	added, removed := 0, 0
	for a := range next {
		if _, ok := prev[a]; !ok {
			added++
		}
	}
	for a := range prev {
		if _, ok := next[a]; !ok {
			removed++
		}
	}
	if added > 0 || removed > 0 {
		r.log.Info("subscribers resynced", logx.Int("added", added), logx.Int("removed", removed), logx.Int("total", len(next)))
	}
	return nil
}

// Snapshot returns the registered addresses, sorted.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.set))
	for a := range r.set {
		out = append(out, a)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.set)
}

func (r *Registry) Contains(addr string) bool {
	r.mu.RLock()
	_, ok := r.set[addr]
	r.mu.RUnlock()
	return ok
}
