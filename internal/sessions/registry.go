package sessions

import (
	"fmt"
	"sort"
	"sync"

	"github.com/munirahkamaluddin/realm-dotnet/internal/users"
)

// Registry holds the live sessions, keyed by resource path.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Open registers a session for path. Only one session per path may be open.
func (r *Registry) Open(u *users.User, serverURL, path string, b Binding) (*Session, error) {
	if u == nil || b == nil {
		return nil, fmt.Errorf("open session %s: user and binding are required", path)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[path]; ok {
		return nil, fmt.Errorf("open session %s: %w", path, ErrSessionOpen)
	}
	s := newSession(u, serverURL, path, b)
	r.sessions[path] = s
	return s, nil
}

// Lookup returns the live session for path, if any.
func (r *Registry) Lookup(path string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[path]
	return s, ok
}

// Close removes the session for path and marks it closed. It reports whether
// a session was open.
func (r *Registry) Close(path string) bool {
	r.mu.Lock()
	s, ok := r.sessions[path]
	delete(r.sessions, path)
	r.mu.Unlock()
	if ok {
		s.closed.Store(true)
	}
	return ok
}

// ForUser returns the live sessions of the given identity.
func (r *Registry) ForUser(identity string) []*Session {
	var out []*Session
	for _, s := range r.All() {
		if s.User().Identity() == identity {
			out = append(out, s)
		}
	}
	return out
}

// All returns the live sessions ordered by path.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}
