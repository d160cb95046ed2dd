// Command authstub is a development stand-in for the sync service auth
// endpoint. It speaks the same /auth protocol as the real service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/munirahkamaluddin/realm-dotnet/handlers"
	"github.com/munirahkamaluddin/realm-dotnet/internal/authserver"
	"github.com/munirahkamaluddin/realm-dotnet/internal/config"
	"github.com/munirahkamaluddin/realm-dotnet/internal/database"
	"github.com/munirahkamaluddin/realm-dotnet/internal/oidc"
	"github.com/munirahkamaluddin/realm-dotnet/internal/tokens"
	"github.com/munirahkamaluddin/realm-dotnet/pkg/logger"
	"github.com/munirahkamaluddin/realm-dotnet/pkg/metrics"
	"github.com/munirahkamaluddin/realm-dotnet/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	if cfg.Stub.JWTSecret == "" {
		logger.Fatalf("STUB_JWT_SECRET is required")
	}
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	var rc *redis.Client
	if cfg.Redis.Host != "" {
		rc = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rc.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", cfg.Redis.Addr(), err)
			_ = rc.Close()
			rc = nil
		} else {
			defer rc.Close()
		}
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rc != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(rc, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	var repo authserver.Repository
	switch {
	case rc != nil:
		repo = authserver.NewRedisRepository(rc, "")
		logger.Infof("using Redis for accounts and grants")
	case cfg.MongoDB.URI != "":
		mc, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			logger.Warnf("%v; falling back to memory", err)
			repo = authserver.NewMemoryRepository()
			break
		}
		defer func() { _ = mc.Disconnect(context.Background()) }()
		repo = authserver.NewMongoRepository(mc.Database(cfg.MongoDB.Database))
		logger.Infof("using MongoDB for accounts and grants")
	default:
		repo = authserver.NewMemoryRepository()
	}

	svc := authserver.NewService(repo, authserver.Options{
		Secret:    cfg.Stub.JWTSecret,
		AccessTTL: cfg.Stub.AccessTokenTTL,
	})
	if cfg.Stub.SeedUsername != "" {
		if err := svc.EnsureAccount(ctx, cfg.Stub.SeedUsername, cfg.Stub.SeedPassword, cfg.Stub.SeedAdmin); err != nil {
			logger.Fatalf("seed account: %v", err)
		}
		logger.Infof("seed account %s ready", cfg.Stub.SeedUsername)
	}

	handlers.NewAuthHandler(svc, idTokenVerifier(ctx, cfg.Stub)).Register(r.Group("/"))
	r.GET("/api/v1/me", middleware.AuthMiddleware(tokens.NewVerifier(cfg.Stub.JWTSecret)), handlers.Me)
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "healthy") })
	handlers.RegisterSwagger(r, "realmsync-authstub", handlers.StubAPIDoc)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Stub.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("auth stub listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
}

// idTokenVerifier returns the verifier for the "jwt" provider, or nil when it
// is not configured.
func idTokenVerifier(ctx context.Context, sc config.StubConfig) middleware.Verifier {
	if sc.OIDCIssuer != "" && sc.OIDCClientID != "" {
		ver, err := oidc.NewVerifier(ctx, sc.OIDCIssuer, sc.OIDCClientID)
		if err == nil {
			logger.Infof("jwt provider verifies ID tokens from %s", sc.OIDCIssuer)
			return ver
		}
		logger.Warnf("failed to initialize OIDC verifier: %v", err)
	}
	if sc.AllowInsecureToken {
		logger.Warn("enabling insecure ID token verifier (integration mode)")
		return oidc.NewInsecureVerifier()
	}
	return nil
}
