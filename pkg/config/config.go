package config

import (
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for the authgate service.
// It supports environment-based initialization, with sensible defaults.
type Config struct {
	ServiceName string // e.g. "authgate"
	Env         string // e.g. "dev", "uat", "prod"
	LogLevel    string // "debug", "info", etc.
	Port        int    // service HTTP + metrics port

	// Upstream API the pipeline authenticates against.
	UpstreamBaseURL string
	LoginPath       string // POST, exchanges username/password for a token pair
	RefreshPath     string // POST, exchanges a refresh token for a new token pair

	HTTPTimeout    time.Duration // per-request timeout on the outbound transport
	RefreshTimeout time.Duration // timeout on the refresh call itself

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	HTTPBodyLimit    int

	// Credential storage. Backend is "memory" or "redis".
	CredentialBackend string
	CredentialKey     string // redis key holding the token pair
	RedisAddr         string // e.g. localhost:6379
	RedisDB           int
	RedisPass         string

	// Auth lifecycle events.
	NATSURL       string // e.g. nats://localhost:4222; empty disables publishing
	EventsSubject string // NATS subject for auth lifecycle events

	// Bootstrap credentials (login username/password) from AWS Secrets Manager.
	AWSRegion       string
	BootstrapSecret string // secret name; empty disables AWS lookup
	SecretCacheTTL  time.Duration
	CleanupFreq     time.Duration

	// Outbound rate limiting.
	RateLimitRPS   int
	RateLimitBurst int
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	// load .env silently (no error if missing)
	_ = godotenv.Load()

	return &Config{
		ServiceName: GetEnv("SERVICE_NAME", "authgate"),
		Env:         GetEnv("ENV", "dev"),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
		Port:        GetEnvInt("AUTHGATE_PORT", 9020),

		UpstreamBaseURL: GetEnv("UPSTREAM_BASE_URL", "http://localhost:8080"),
		LoginPath:       GetEnv("AUTH_LOGIN_PATH", "/auth/login"),
		RefreshPath:     GetEnv("AUTH_REFRESH_PATH", "/auth/refresh"),

		HTTPTimeout:    GetEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		RefreshTimeout: GetEnvDuration("REFRESH_TIMEOUT", 10*time.Second),

		HTTPReadTimeout:  GetEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		HTTPWriteTimeout: GetEnvDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
		HTTPIdleTimeout:  GetEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		HTTPBodyLimit:    GetEnvInt("HTTP_BODY_LIMIT", 1*1024*1024),

		CredentialBackend: GetEnv("CREDENTIAL_BACKEND", "memory"),
		CredentialKey:     GetEnv("CREDENTIAL_KEY", "authgate:credentials"),
		RedisAddr:         GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:           GetEnvInt("REDIS_DB", 0),
		RedisPass:         GetEnv("REDIS_PASS", ""),

		NATSURL:       GetEnv("NATS_URL", ""),
		EventsSubject: GetEnv("EVENTS_SUBJECT", "evt.auth.lifecycle.v1"),

		AWSRegion:       GetEnv("AWS_REGION", "us-east-2"),
		BootstrapSecret: GetEnv("BOOTSTRAP_SECRET", ""),
		SecretCacheTTL:  GetEnvDuration("SECRET_CACHE_TTL", 24*time.Hour),
		CleanupFreq:     GetEnvDuration("SECRET_CACHE_CLEANUP_FREQ", 10*time.Minute),

		RateLimitRPS:   GetEnvInt("RATE_LIMIT_RPS", 20),
		RateLimitBurst: GetEnvInt("RATE_LIMIT_BURST", 40),
	}
}
