// Package users tracks the sync users that are currently logged in and
// persists their refresh tokens.
package users

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/munirahkamaluddin/realm-dotnet/internal/models"
)

// User is a logged-in identity. Sessions reference a User but do not own it:
// it lives until LogOut removes it from the Registry.
type User struct {
	identity     string
	refreshToken string
	serverURI    string
	createdAt    time.Time

	handles  atomic.Int32
	loggedIn atomic.Bool
}

func New(identity, refreshToken, serverURI string) *User {
	u := &User{
		identity:     identity,
		refreshToken: refreshToken,
		serverURI:    serverURI,
		createdAt:    time.Now().UTC(),
	}
	u.loggedIn.Store(true)
	return u
}

func fromRecord(rec *models.User) *User {
	u := New(rec.Identity, rec.RefreshToken, rec.ServerURI)
	if !rec.CreatedAt.IsZero() {
		u.createdAt = rec.CreatedAt
	}
	return u
}

func (u *User) Identity() string     { return u.identity }
func (u *User) RefreshToken() string { return u.refreshToken }
func (u *User) ServerURI() string    { return u.serverURI }
func (u *User) LoggedIn() bool       { return u.loggedIn.Load() }

// OpenHandles reports how many acquired handles have not been closed yet.
func (u *User) OpenHandles() int { return int(u.handles.Load()) }

// Acquire returns a fresh handle. Each handle must be closed exactly once;
// extra Close calls are ignored.
func (u *User) Acquire() *Handle {
	u.handles.Add(1)
	return &Handle{user: u}
}

func (u *User) record() *models.User {
	now := time.Now().UTC()
	return &models.User{
		Identity:     u.identity,
		RefreshToken: u.refreshToken,
		ServerURI:    u.serverURI,
		CreatedAt:    u.createdAt,
		UpdatedAt:    now,
	}
}

// Handle is a per-call reference to a User.
type Handle struct {
	user *User
	once sync.Once
}

func (h *Handle) User() *User { return h.user }

func (h *Handle) Close() error {
	h.once.Do(func() { h.user.handles.Add(-1) })
	return nil
}
