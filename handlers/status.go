package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/munirahkamaluddin/realm-dotnet/internal/refresh"
	"github.com/munirahkamaluddin/realm-dotnet/internal/sessions"
	"github.com/munirahkamaluddin/realm-dotnet/internal/users"
)

// SessionView is the JSON form of a live session.
type SessionView struct {
	Path        string     `json:"path"`
	User        string     `json:"user"`
	ServerURL   string     `json:"serverUrl"`
	OpenedAt    time.Time  `json:"openedAt"`
	TokenPath   string     `json:"tokenPath,omitempty"`
	LastRefresh *time.Time `json:"lastRefresh,omitempty"`
	NextRefresh *time.Time `json:"nextRefresh,omitempty"`
}

// StatusHandler exposes the state of the sync agent.
type StatusHandler struct {
	users     *users.Registry
	sessions  *sessions.Registry
	scheduler *refresh.Scheduler
	deps      func() map[string]bool
	started   time.Time
}

// NewStatusHandler builds the handler. deps reports the availability of
// external dependencies for /ready; nil means none are required.
func NewStatusHandler(ur *users.Registry, sr *sessions.Registry, sched *refresh.Scheduler, deps func() map[string]bool) *StatusHandler {
	return &StatusHandler{users: ur, sessions: sr, scheduler: sched, deps: deps, started: time.Now()}
}

func (h *StatusHandler) Register(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "healthy") })
	r.GET("/ready", h.Ready)
	api := r.Group("/api/v1")
	api.GET("/sessions", h.Sessions)
	api.GET("/users", h.Users)
	api.GET("/refreshes", h.Refreshes)
}

// Ready returns 200 once a user is logged in and every dependency is up.
func (h *StatusHandler) Ready(c *gin.Context) {
	deps := map[string]bool{}
	if h.deps != nil {
		deps = h.deps()
	}
	deps["users"] = len(h.users.All()) > 0
	ready := true
	for _, ok := range deps {
		ready = ready && ok
	}
	body := gin.H{"deps": deps, "uptime": time.Since(h.started).String(), "pendingRefreshes": h.scheduler.Len()}
	if !ready {
		body["status"] = "not_ready"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ready"
	c.JSON(http.StatusOK, body)
}

func (h *StatusHandler) Sessions(c *gin.Context) {
	out := make([]SessionView, 0)
	for _, s := range h.sessions.All() {
		v := SessionView{
			Path:      s.Path(),
			User:      s.User().Identity(),
			ServerURL: s.ServerURL(),
			OpenedAt:  s.OpenedAt(),
		}
		if at, p := s.LastRefresh(); !at.IsZero() {
			v.LastRefresh = &at
			v.TokenPath = p
		}
		if next, ok := h.scheduler.Pending(s.Path()); ok {
			v.NextRefresh = &next
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (h *StatusHandler) Users(c *gin.Context) {
	out := make([]gin.H, 0)
	for _, u := range h.users.All() {
		out = append(out, gin.H{
			"identity": u.Identity(),
			"server":   u.ServerURI(),
			"loggedIn": u.LoggedIn(),
			"sessions": len(h.sessions.ForUser(u.Identity())),
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// Refreshes lists the pending token refreshes ordered by path.
func (h *StatusHandler) Refreshes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"refreshes": h.scheduler.Entries()})
}
