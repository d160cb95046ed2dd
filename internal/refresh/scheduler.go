package refresh

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/munirahkamaluddin/realm-dotnet/internal/authclient"
	"github.com/munirahkamaluddin/realm-dotnet/internal/sessions"
	"github.com/munirahkamaluddin/realm-dotnet/internal/users"
	"github.com/munirahkamaluddin/realm-dotnet/pkg/logger"
	"github.com/munirahkamaluddin/realm-dotnet/pkg/metrics"
)

// DefaultLead is how long before expiry a refresh fires.
const DefaultLead = 10 * time.Second

type UserLookup interface {
	Lookup(identity string) (*users.User, bool)
}

type SessionLookup interface {
	Lookup(path string) (*sessions.Session, bool)
}

// Refresher exchanges the session user's refresh token for a new access token.
type Refresher interface {
	RefreshAccessToken(ctx context.Context, s *sessions.Session, reportErrors bool) authclient.Outcome
}

type entry struct {
	id     string
	userID string
	path   string
	fireAt time.Time
	timer  Timer
}

// Entry describes a pending refresh.
type Entry struct {
	ID     string    `json:"id"`
	UserID string    `json:"userId"`
	Path   string    `json:"path"`
	FireAt time.Time `json:"fireAt"`
}

// Scheduler keeps at most one pending refresh timer per session path.
type Scheduler struct {
	clock     Clock
	users     UserLookup
	sessions  SessionLookup
	refresher Refresher
	lead      time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	stopped bool
}

// NewScheduler builds a scheduler. A nil clock uses the real clock; a lead of
// zero or less uses DefaultLead.
func NewScheduler(clock Clock, ul UserLookup, sl SessionLookup, r Refresher, lead time.Duration) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	if lead <= 0 {
		lead = DefaultLead
	}
	return &Scheduler{
		clock:     clock,
		users:     ul,
		sessions:  sl,
		refresher: r,
		lead:      lead,
		entries:   make(map[string]*entry),
	}
}

// Schedule arranges a refresh of path shortly before expireAt, replacing any
// pending refresh for the same path. When that moment has already passed the
// refresh starts immediately on its own goroutine.
func (s *Scheduler) Schedule(userID, path string, expireAt time.Time) {
	s.install(userID, path, expireAt.Add(-s.lead))
}

// RetryIn arranges a refresh of path after delay, replacing any pending one.
func (s *Scheduler) RetryIn(userID, path string, delay time.Duration) {
	s.install(userID, path, s.clock.Now().Add(delay))
}

func (s *Scheduler) install(userID, path string, fireAt time.Time) {
	e := &entry{id: uuid.NewString(), userID: userID, path: path, fireAt: fireAt}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if prev, ok := s.entries[path]; ok {
		prev.timer.Stop()
		delete(s.entries, path)
	}
	metrics.RefreshScheduled.Inc()

	delay := fireAt.Sub(s.clock.Now())
	if delay <= 0 {
		s.updateGauge()
		logger.WithFields(logger.Fields{"user": userID, "path": path}).Debug("refresh due, firing now")
		go s.run(e)
		return
	}
	e.timer = s.clock.AfterFunc(delay, func() { s.fire(e) })
	s.entries[path] = e
	s.updateGauge()
	logger.WithFields(logger.Fields{"user": userID, "path": path, "in": delay.String()}).Debug("refresh scheduled")
}

// fire runs a timer entry if it is still the current one for its path.
func (s *Scheduler) fire(e *entry) {
	s.mu.Lock()
	current := s.entries[e.path] == e
	s.mu.Unlock()
	if !current {
		metrics.RefreshFired.WithLabelValues("stale").Inc()
		return
	}
	defer s.release(e)
	s.run(e)
}

// release drops e unless the callback already installed a replacement.
func (s *Scheduler) release(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[e.path] == e {
		delete(s.entries, e.path)
		s.updateGauge()
	}
}

func (s *Scheduler) run(e *entry) {
	result := "panic"
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logger.Fields{"user": e.userID, "path": e.path}).Errorf("refresh callback panicked: %v", r)
		}
		metrics.RefreshFired.WithLabelValues(result).Inc()
	}()

	u, ok := s.users.Lookup(e.userID)
	if !ok || !u.LoggedIn() {
		result = "no_user"
		return
	}
	uh := u.Acquire()
	defer uh.Close()

	sess, ok := s.sessions.Lookup(e.path)
	if !ok || !sess.Rebind(u) {
		result = "no_session"
		return
	}
	sh := sess.Acquire()
	defer sh.Close()

	result = s.refresher.RefreshAccessToken(context.Background(), sess, false).String()
}

// Cancel drops the pending refresh for path and reports whether one existed.
func (s *Scheduler) Cancel(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.entries, path)
	s.updateGauge()
	return true
}

// CancelUser drops every pending refresh of userID and returns how many were dropped.
func (s *Scheduler) CancelUser(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for path, e := range s.entries {
		if e.userID == userID {
			e.timer.Stop()
			delete(s.entries, path)
			n++
		}
	}
	s.updateGauge()
	return n
}

// Pending returns when the refresh of path is due.
func (s *Scheduler) Pending(path string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path]
	if !ok {
		return time.Time{}, false
	}
	return e.fireAt, true
}

// Entries lists pending refreshes ordered by path.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, Entry{ID: e.id, UserID: e.userID, Path: e.path, FireAt: e.fireAt})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop cancels every pending timer and refuses new ones. Refreshes already
// running are left to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	for path, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, path)
	}
	s.updateGauge()
	logger.Infof("refresh scheduler stopped")
}

func (s *Scheduler) updateGauge() {
	metrics.RefreshTimersPending.Set(float64(len(s.entries)))
}
