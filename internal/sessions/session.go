// Package sessions binds a logged-in user to one synchronized resource path.
package sessions

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/munirahkamaluddin/realm-dotnet/internal/users"
	"github.com/munirahkamaluddin/realm-dotnet/pkg/logger"
)

const errorBuffer = 16

var (
	ErrSessionOpen   = errors.New("session already open for path")
	ErrSessionClosed = errors.New("session closed")
)

// Binding is the native sync session an access token is applied to. The
// storage engine behind it is opaque to this module.
type Binding interface {
	ApplyAccessToken(token, serverPath string) error
}

// Session is the unit the refresh scheduler tracks: one user, one path, the
// access token currently installed in its binding.
type Session struct {
	user      atomic.Pointer[users.User]
	serverURL string
	path      string
	binding   Binding
	openedAt  time.Time

	errs    chan error
	handles atomic.Int32
	closed  atomic.Bool

	mu          sync.RWMutex
	tokenPath   string
	refreshedAt time.Time
}

func newSession(u *users.User, serverURL, path string, b Binding) *Session {
	s := &Session{
		serverURL: serverURL,
		path:      path,
		binding:   b,
		openedAt:  time.Now().UTC(),
		errs:      make(chan error, errorBuffer),
	}
	s.user.Store(u)
	return s
}

func (s *Session) User() *users.User   { return s.user.Load() }
func (s *Session) ServerURL() string   { return s.serverURL }
func (s *Session) Path() string        { return s.path }
func (s *Session) Closed() bool        { return s.closed.Load() }
func (s *Session) OpenedAt() time.Time { return s.openedAt }

// Rebind moves the session to u after the same identity logged in again, so
// later refreshes use the newest refresh token. It refuses a different identity.
func (s *Session) Rebind(u *users.User) bool {
	for {
		cur := s.user.Load()
		if cur == u {
			return true
		}
		if u == nil || cur.Identity() != u.Identity() {
			return false
		}
		if s.user.CompareAndSwap(cur, u) {
			logger.WithFields(logger.Fields{"user": u.Identity(), "path": s.path}).Debug("session rebound to new login")
			return true
		}
	}
}

// OpenHandles reports how many acquired handles have not been closed yet.
func (s *Session) OpenHandles() int { return int(s.handles.Load()) }

// LastRefresh returns when an access token was last installed and the server
// path it was issued for.
func (s *Session) LastRefresh() (time.Time, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt, s.tokenPath
}

// Errors delivers SessionErrors raised on this session.
func (s *Session) Errors() <-chan error { return s.errs }

// RaiseError publishes err on the error channel without blocking. Errors are
// dropped when nobody drains the channel.
func (s *Session) RaiseError(err error) {
	select {
	case s.errs <- err:
	default:
		logger.WithFields(logger.Fields{"path": s.path, "error": err}).Warn("session error channel full, dropping error")
	}
}

// Acquire returns a fresh handle. Each handle must be closed exactly once.
func (s *Session) Acquire() *Handle {
	s.handles.Add(1)
	return &Handle{session: s}
}

// Handle is a per-call reference to a Session.
type Handle struct {
	session *Session
	once    sync.Once
}

func (h *Handle) Session() *Session { return h.session }

// InstallAccessToken applies token to the native binding.
func (h *Handle) InstallAccessToken(token, serverPath string) error {
	s := h.session
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if err := s.binding.ApplyAccessToken(token, serverPath); err != nil {
		return err
	}
	s.mu.Lock()
	s.tokenPath = serverPath
	s.refreshedAt = time.Now().UTC()
	s.mu.Unlock()
	return nil
}

func (h *Handle) Close() error {
	h.once.Do(func() { h.session.handles.Add(-1) })
	return nil
}
