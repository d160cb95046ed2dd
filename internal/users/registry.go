package users

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/munirahkamaluddin/realm-dotnet/pkg/logger"
)

// Registry is the set of currently logged-in users, looked up by identity.
// It writes through to a Store so users survive restarts.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*User
	store Store
}

// NewRegistry wraps store; a nil store keeps users in memory only.
func NewRegistry(store Store) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Registry{users: make(map[string]*User), store: store}
}

// Add persists u and makes it visible to Lookup, replacing any previous
// user with the same identity.
func (r *Registry) Add(ctx context.Context, u *User) error {
	if err := r.store.Save(ctx, u.record()); err != nil {
		return fmt.Errorf("persist user %s: %w", u.Identity(), err)
	}
	r.mu.Lock()
	prev := r.users[u.Identity()]
	r.users[u.Identity()] = u
	r.mu.Unlock()
	if prev != nil && prev != u {
		prev.loggedIn.Store(false)
	}
	return nil
}

// Lookup returns the logged-in user with the given identity, if any.
func (r *Registry) Lookup(identity string) (*User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[identity]
	return u, ok
}

// Remove logs the user out: it disappears from Lookup and from the store.
func (r *Registry) Remove(ctx context.Context, identity string) error {
	r.mu.Lock()
	u, ok := r.users[identity]
	delete(r.users, identity)
	r.mu.Unlock()
	if ok {
		u.loggedIn.Store(false)
	}
	return r.store.Delete(ctx, identity)
}

// All returns the logged-in users ordered by identity.
func (r *Registry) All() []*User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].identity < out[j].identity })
	return out
}

// Restore loads persisted users into the registry and returns how many were loaded.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	recs, err := r.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list persisted users: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		if _, ok := r.users[rec.Identity]; ok {
			continue
		}
		r.users[rec.Identity] = fromRecord(rec)
	}
	logger.Debugf("users: restored %d persisted users", len(recs))
	return len(recs), nil
}
