// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Data directory. Holds the visit log and the consent decision.
	DataDir string

	// Store settings.
	StoreCapacity int    // Maximum retained visits; oldest evicted first.
	StoreFile     string // Log file name inside DataDir.

	// Collection settings.
	OverallDeadline time.Duration // Budget for one full capture run.
	ProviderTimeout time.Duration // Default per-provider budget.

	// Geolocation provider chain, tried in order until one succeeds.
	GeoEndpoints []string
	GeoTimeout   time.Duration

	// Public IP resolvers, raced concurrently.
	IPEndpoints []string
	IPTimeout   time.Duration

	// Consent settings.
	ConsentAutoAccept bool // Record accepted consent on first capture without an explicit decision.

	// Sink settings.
	SinkKind    string // "webhook", "postgres", or "noop"
	SinkURL     string // Webhook endpoint URL.
	DatabaseURL string // Postgres URL for the postgres sink.
	SinkQueue   int    // Pending deliveries before drops.
	SinkTimeout time.Duration

	// JWT settings.
	JWTPrivateKeyPath string // Path to Ed25519 private key PEM file.
	JWTPublicKeyPath  string // Path to Ed25519 public key PEM file.
	JWTExpiration     time.Duration

	// Operator bootstrap.
	OperatorKey string // Key exchanged for an operator token at /auth/token.

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64 // Maximum request body size in bytes.
	RateLimitPerMinute  int   // Capture requests per client per minute; 0 disables.
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("RAIKYAKU_PORT", 8080),
		ReadTimeout:         envDuration("RAIKYAKU_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("RAIKYAKU_WRITE_TIMEOUT", 30*time.Second),
		DataDir:             envStr("RAIKYAKU_DATA_DIR", "./data"),
		StoreCapacity:       envInt("RAIKYAKU_STORE_CAPACITY", 1000),
		StoreFile:           envStr("RAIKYAKU_STORE_FILE", "visitor_logs.json"),
		OverallDeadline:     envDuration("RAIKYAKU_OVERALL_DEADLINE", 10*time.Second),
		ProviderTimeout:     envDuration("RAIKYAKU_PROVIDER_TIMEOUT", 5*time.Second),
		GeoEndpoints:        envList("RAIKYAKU_GEO_ENDPOINTS", "http://ip-api.com/json/,https://ipapi.co/json/"),
		GeoTimeout:          envDuration("RAIKYAKU_GEO_TIMEOUT", 5*time.Second),
		IPEndpoints:         envList("RAIKYAKU_IP_ENDPOINTS", "https://api.ipify.org?format=json,https://api64.ipify.org?format=json,https://icanhazip.com"),
		IPTimeout:           envDuration("RAIKYAKU_IP_TIMEOUT", 5*time.Second),
		ConsentAutoAccept:   envBool("RAIKYAKU_CONSENT_AUTO_ACCEPT", false),
		SinkKind:            envStr("RAIKYAKU_SINK", "noop"),
		SinkURL:             envStr("RAIKYAKU_SINK_URL", ""),
		DatabaseURL:         envStr("DATABASE_URL", ""),
		SinkQueue:           envInt("RAIKYAKU_SINK_QUEUE", 256),
		SinkTimeout:         envDuration("RAIKYAKU_SINK_TIMEOUT", 10*time.Second),
		JWTPrivateKeyPath:   envStr("RAIKYAKU_JWT_PRIVATE_KEY", ""),
		JWTPublicKeyPath:    envStr("RAIKYAKU_JWT_PUBLIC_KEY", ""),
		JWTExpiration:       envDuration("RAIKYAKU_JWT_EXPIRATION", 24*time.Hour),
		OperatorKey:         envStr("RAIKYAKU_OPERATOR_KEY", ""),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "raikyaku"),
		LogLevel:            envStr("RAIKYAKU_LOG_LEVEL", "info"),
		MaxRequestBodyBytes: int64(envInt("RAIKYAKU_MAX_REQUEST_BODY_BYTES", 256*1024)),
		RateLimitPerMinute:  envInt("RAIKYAKU_RATE_LIMIT_PER_MINUTE", 120),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c Config) Validate() error {
	if c.StoreCapacity <= 0 {
		return fmt.Errorf("config: RAIKYAKU_STORE_CAPACITY must be positive")
	}
	if c.OverallDeadline <= 0 {
		return fmt.Errorf("config: RAIKYAKU_OVERALL_DEADLINE must be positive")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("config: RAIKYAKU_PROVIDER_TIMEOUT must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: RAIKYAKU_MAX_REQUEST_BODY_BYTES must be positive")
	}
	switch c.SinkKind {
	case "noop":
	case "webhook":
		if c.SinkURL == "" {
			return fmt.Errorf("config: RAIKYAKU_SINK_URL is required for the webhook sink")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres sink")
		}
	default:
		return fmt.Errorf("config: RAIKYAKU_SINK must be one of noop, webhook, postgres")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// envList parses a comma-separated value, dropping empty entries.
func envList(key, defaultVal string) []string {
	v := os.Getenv(key)
	if v == "" {
		v = defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
