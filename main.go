// Command realmsync is the sync agent: it logs a user in against the sync
// service, opens a session per configured path and keeps their access tokens
// fresh until it is stopped.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/munirahkamaluddin/realm-dotnet/handlers"
	"github.com/munirahkamaluddin/realm-dotnet/internal/authclient"
	"github.com/munirahkamaluddin/realm-dotnet/internal/config"
	"github.com/munirahkamaluddin/realm-dotnet/internal/credentials"
	"github.com/munirahkamaluddin/realm-dotnet/internal/database"
	"github.com/munirahkamaluddin/realm-dotnet/internal/refresh"
	"github.com/munirahkamaluddin/realm-dotnet/internal/sessions"
	"github.com/munirahkamaluddin/realm-dotnet/internal/users"
	"github.com/munirahkamaluddin/realm-dotnet/pkg/logger"
	"github.com/munirahkamaluddin/realm-dotnet/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, deps, closeStore := openUserStore(ctx, cfg)
	defer closeStore()

	ur := users.NewRegistry(store)
	if n, err := ur.Restore(ctx); err != nil {
		logger.Warnf("could not restore persisted users: %v", err)
	} else if n > 0 {
		logger.Infof("restored %d persisted users", n)
	}
	sr := sessions.NewRegistry()

	var limiter *rate.Limiter
	if cfg.Sync.OutboundRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Sync.OutboundRPS), cfg.Sync.OutboundBurst)
	}
	client := authclient.NewClient(&http.Client{}, limiter)
	svc := refresh.NewService(client, ur, sr, refresh.Options{
		Timeout:     cfg.Sync.RequestTimeout,
		RetryDelay:  cfg.Sync.RetryDelay,
		RefreshLead: cfg.Sync.RefreshLead,
	})

	if u, err := currentUser(ctx, svc, ur, cfg.Sync); err != nil {
		logger.Errorf("login against %s failed: %v", cfg.Sync.ServerURL, err)
	} else {
		openSessions(ctx, svc, u, cfg.Sync)
	}

	gin.SetMode(ginMode(cfg.Server.Environment))
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	handlers.NewStatusHandler(ur, sr, svc.Scheduler(), deps).Register(r)
	handlers.RegisterSwagger(r, "realmsync-agent", handlers.AgentAPIDoc)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("agent status API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	svc.Scheduler().Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("status API shutdown: %v", err)
	}
}

// openUserStore prefers Redis, then MongoDB, then memory. The returned deps
// func feeds /ready.
func openUserStore(ctx context.Context, cfg *config.Config) (users.Store, func() map[string]bool, func()) {
	if cfg.Redis.Host != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		err := rc.Ping(ctx).Err()
		if err == nil {
			logger.Infof("using Redis user store at %s", cfg.Redis.Addr())
			deps := func() map[string]bool {
				return map[string]bool{"redis": rc.Ping(context.Background()).Err() == nil}
			}
			return users.NewRedisStore(rc, ""), deps, func() { _ = rc.Close() }
		}
		logger.Warnf("failed to connect to Redis (%s): %v", cfg.Redis.Addr(), err)
		_ = rc.Close()
	}
	if cfg.MongoDB.URI != "" {
		mc, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err == nil {
			logger.Infof("using MongoDB user store (database %s)", cfg.MongoDB.Database)
			deps := func() map[string]bool {
				pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				return map[string]bool{"mongodb": mc.Ping(pingCtx, nil) == nil}
			}
			col := mc.Database(cfg.MongoDB.Database).Collection("sync_users")
			return users.NewMongoStore(col), deps, func() { _ = mc.Disconnect(context.Background()) }
		}
		logger.Warnf("%v", err)
	}
	logger.Infof("using in-memory user store")
	return nil, nil, func() {}
}

// currentUser reuses a persisted user of the configured server or logs in.
func currentUser(ctx context.Context, svc *refresh.Service, ur *users.Registry, sc config.SyncConfig) (*users.User, error) {
	for _, u := range ur.All() {
		if strings.TrimRight(u.ServerURI(), "/") == strings.TrimRight(sc.ServerURL, "/") {
			logger.Infof("reusing persisted user %s", u.Identity())
			return u, nil
		}
	}
	data := sc.Username
	if sc.Provider != credentials.ProviderUsernamePassword && sc.Provider != credentials.ProviderNickname {
		data = sc.Token
	}
	creds, err := credentials.ForProvider(sc.Provider, data, sc.Password, sc.CreateUser)
	if err != nil {
		return nil, err
	}
	return svc.LogIn(ctx, creds, sc.ServerURL)
}

func openSessions(ctx context.Context, svc *refresh.Service, u *users.User, sc config.SyncConfig) {
	for _, path := range sc.Paths {
		s, err := svc.OpenSession(ctx, u, strings.TrimRight(sc.RealmURL, "/")+path, path, sessions.NewMemoryBinding())
		if err != nil {
			logger.Errorf("open session %s: %v", path, err)
			continue
		}
		go watchErrors(ctx, s)
	}
}

func watchErrors(ctx context.Context, s *sessions.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-s.Errors():
			logger.WithFields(logger.Fields{"path": s.Path(), "user": s.User().Identity()}).Errorf("session error: %v", err)
		}
	}
}

func ginMode(env string) string {
	if env == "production" {
		return gin.ReleaseMode
	}
	return gin.DebugMode
}
