package users

import (
	"context"
	"sort"
	"sync"

	"github.com/munirahkamaluddin/realm-dotnet/internal/models"
)

// Store persists logged-in users. Get returns nil, nil when the identity is unknown.
type Store interface {
	Save(ctx context.Context, u *models.User) error
	Get(ctx context.Context, identity string) (*models.User, error)
	Delete(ctx context.Context, identity string) error
	List(ctx context.Context) ([]*models.User, error)
}

// MemoryStore keeps users for the lifetime of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	store map[string]*models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{store: make(map[string]*models.User)}
}

func (m *MemoryStore) Save(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.store[u.Identity] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, identity string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[identity]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) Delete(_ context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, identity)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.User, 0, len(m.store))
	for _, u := range m.store {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}
