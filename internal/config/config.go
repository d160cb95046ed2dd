package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/munirahkamaluddin/realm-dotnet/pkg/logger"
	"github.com/spf13/viper"
)

// Config holds application configuration for both the sync agent and the
// auth stub.
type Config struct {
	Server    ServerConfig
	Sync      SyncConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Stub      StubConfig
	RateLimit RateLimitConfig
	LogLevel  string
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SyncConfig drives the agent: where to log in, as whom, and which paths to
// keep sessions open for.
type SyncConfig struct {
	ServerURL      string
	Provider       string
	Username       string
	Password       string
	Token          string
	CreateUser     bool
	RealmURL       string
	Paths          []string
	RequestTimeout time.Duration
	RefreshLead    time.Duration
	RetryDelay     time.Duration
	OutboundRPS    float64
	OutboundBurst  int
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

type StubConfig struct {
	Port           string
	JWTSecret      string
	AccessTokenTTL time.Duration
	SeedUsername   string
	SeedPassword   string
	SeedAdmin      bool
	// OIDC issuer and client for the "jwt" provider; both empty disables it
	// unless AllowInsecureToken is set.
	OIDCIssuer         string
	OIDCClientID       string
	AllowInsecureToken bool
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and an optional .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5002")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("SYNC_SERVER_URL", "http://localhost:9080")
	v.SetDefault("SYNC_PROVIDER", "password")
	v.SetDefault("SYNC_REQUEST_TIMEOUT", 30)
	v.SetDefault("SYNC_REFRESH_LEAD", 10)
	v.SetDefault("SYNC_RETRY_DELAY", 30)
	v.SetDefault("SYNC_OUTBOUND_RPS", 0)
	v.SetDefault("SYNC_OUTBOUND_BURST", 1)
	v.SetDefault("MONGODB_DATABASE", "realmsync")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("STUB_PORT", "9080")
	v.SetDefault("STUB_ACCESS_TOKEN_TTL", 600)
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Sync: SyncConfig{
			ServerURL:      v.GetString("SYNC_SERVER_URL"),
			Provider:       v.GetString("SYNC_PROVIDER"),
			Username:       v.GetString("SYNC_USERNAME"),
			Password:       v.GetString("SYNC_PASSWORD"),
			Token:          v.GetString("SYNC_TOKEN"),
			CreateUser:     v.GetBool("SYNC_CREATE_USER"),
			RealmURL:       v.GetString("SYNC_REALM_URL"),
			Paths:          splitList(v.GetString("SYNC_PATHS")),
			RequestTimeout: time.Duration(v.GetInt("SYNC_REQUEST_TIMEOUT")) * time.Second,
			RefreshLead:    time.Duration(v.GetInt("SYNC_REFRESH_LEAD")) * time.Second,
			RetryDelay:     time.Duration(v.GetInt("SYNC_RETRY_DELAY")) * time.Second,
			OutboundRPS:    v.GetFloat64("SYNC_OUTBOUND_RPS"),
			OutboundBurst:  v.GetInt("SYNC_OUTBOUND_BURST"),
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Stub: StubConfig{
			Port:               v.GetString("STUB_PORT"),
			JWTSecret:          v.GetString("STUB_JWT_SECRET"),
			AccessTokenTTL:     time.Duration(v.GetInt("STUB_ACCESS_TOKEN_TTL")) * time.Second,
			SeedUsername:       v.GetString("STUB_SEED_USERNAME"),
			SeedPassword:       v.GetString("STUB_SEED_PASSWORD"),
			SeedAdmin:          v.GetBool("STUB_SEED_ADMIN"),
			OIDCIssuer:         v.GetString("STUB_OIDC_ISSUER"),
			OIDCClientID:       v.GetString("STUB_OIDC_CLIENT_ID"),
			AllowInsecureToken: v.GetBool("STUB_ALLOW_INSECURE_TOKEN"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	// Basic validation
	if cfg.Stub.JWTSecret == "" {
		logger.Warn("STUB_JWT_SECRET is not set; the auth stub will refuse to start")
	}
	if len(cfg.Sync.Paths) == 0 {
		logger.Debug("SYNC_PATHS is empty; the agent will log in without opening sessions")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
