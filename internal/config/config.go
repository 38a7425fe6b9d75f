package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/notifyhub/dispatch/internal/domain"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; the gateway requires DATABASE_URL,
// AMQP_URL, and REDIS_ADDR, the worker requires AMQP_URL and WORKER_CHANNEL.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Fast store (idempotency, rate limiting, user cache)
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	IdempotencyTTL time.Duration
	UserCacheTTL   time.Duration

	// Rate limiting: maximum submissions per user per window
	RateLimit       int
	RateLimitWindow time.Duration

	// Broker
	AMQPURL      string
	ExchangeName string

	// Collaborators
	UserServiceURL     string
	UserServiceTimeout time.Duration
	TemplateServiceURL string
	TemplateTimeout    time.Duration
	GatewayURL         string
	StatusTimeout      time.Duration

	// Worker
	WorkerChannel    domain.Channel
	WorkerCount      int
	MaxRetries       int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	SendRatePerSec   int
	BreakerThreshold int
	BreakerCooldown  time.Duration

	// Email transport; empty SMTPHost selects the simulated sender
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPStartTLS bool

	// Push transport; empty FCM settings select the simulated sender
	FCMEndpoint string
	FCMAPIKey   string
	FCMTimeout  time.Duration
}

// LoadGateway loads configuration for the gateway process.
func LoadGateway() (*Config, error) {
	cfg := loadCommon()

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AMQPURL == "" {
		return nil, fmt.Errorf("AMQP_URL is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}

	return cfg, nil
}

// LoadWorker loads configuration for a delivery worker process.
func LoadWorker() (*Config, error) {
	cfg := loadCommon()

	if cfg.AMQPURL == "" {
		return nil, fmt.Errorf("AMQP_URL is required")
	}

	ch := domain.Channel(getEnv("WORKER_CHANNEL", ""))
	if !ch.IsValid() {
		return nil, fmt.Errorf("WORKER_CHANNEL must be email or push, got %q", ch)
	}
	cfg.WorkerChannel = ch

	return cfg, nil
}

func loadCommon() *Config {
	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8000"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DBMaxConns: int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns: int32(getInt("DB_MIN_CONNS", 5)),

		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getInt("REDIS_DB", 0),
		IdempotencyTTL: getDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		UserCacheTTL:   getDuration("USER_CACHE_TTL", 5*time.Minute),

		RateLimit:       getInt("RATE_LIMIT_PER_USER", 100),
		RateLimitWindow: getDuration("RATE_LIMIT_WINDOW", 60*time.Second),

		AMQPURL:      os.Getenv("AMQP_URL"),
		ExchangeName: getEnv("EXCHANGE_NAME", "notifications"),

		UserServiceURL:     getEnv("USER_SERVICE_URL", "http://user-service:8001"),
		UserServiceTimeout: getDuration("USER_SERVICE_TIMEOUT", 5*time.Second),
		TemplateServiceURL: getEnv("TEMPLATE_SERVICE_URL", ""),
		TemplateTimeout:    getDuration("TEMPLATE_TIMEOUT", 10*time.Second),
		GatewayURL:         getEnv("GATEWAY_SERVICE_URL", "http://api-gateway:8000"),
		StatusTimeout:      getDuration("STATUS_TIMEOUT", 5*time.Second),

		WorkerCount:      getInt("WORKER_COUNT", 1),
		MaxRetries:       getInt("MAX_RETRIES", 3),
		RetryBaseDelay:   getDuration("RETRY_BASE_DELAY", 2*time.Second),
		RetryMaxDelay:    getDuration("RETRY_MAX_DELAY", 60*time.Second),
		SendRatePerSec:   getInt("SEND_RATE_PER_SEC", 50),
		BreakerThreshold: getInt("BREAKER_THRESHOLD", 5),
		BreakerCooldown:  getDuration("BREAKER_COOLDOWN", 60*time.Second),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM_EMAIL", "noreply@notifyhub.local"),
		SMTPStartTLS: getBool("SMTP_USE_TLS", true),

		FCMEndpoint: getEnv("FCM_ENDPOINT", ""),
		FCMAPIKey:   getEnv("FCM_API_KEY", ""),
		FCMTimeout:  getDuration("FCM_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
