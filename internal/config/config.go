// Package config provides environment configuration for the API server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string        `validate:"required,numeric"`
	ServerReadTimeout  time.Duration `validate:"gt=0"`
	ServerWriteTimeout time.Duration `validate:"gt=0"`
	CORSAllowedOrigins []string

	// Store settings
	StoreBackend     string `validate:"oneof=memory postgres"`
	DatabaseURL      string `validate:"required_if=StoreBackend postgres"`
	DatabaseMaxConns int32  `validate:"gte=0"`
	// DemoMode seeds the memory store with sample conversations for DemoTenantID.
	DemoMode     bool
	DemoTenantID string

	// Scheduler; empty keeps scheduled actions in memory.
	RedisURL string

	// NATS settings
	NATSEnabled  bool
	NATSURL      string `validate:"required_if=NATSEnabled true"`
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret     string `validate:"required,min=16"`
	JWTExpiration time.Duration

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string `validate:"oneof=anthropic openai"`
	AgentConfigFile string

	// Hand-off controller
	ConfirmationTTL time.Duration `validate:"gt=0"`

	// Rate limiting
	RateLimitRequests int `validate:"gte=0"`
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string `validate:"oneof=debug info warn warning error fatal"`

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first; variables already set win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		CORSAllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS"),

		// Store
		StoreBackend:     getEnv("STORE_BACKEND", "memory"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DatabaseMaxConns: int32(getIntEnv("DATABASE_MAX_CONNS", 10)),
		DemoMode:         getBoolEnv("DEMO_MODE", false),
		DemoTenantID:     getEnv("DEMO_TENANT_ID", "demo"),

		RedisURL: getEnv("REDIS_URL", ""),

		// NATS
		NATSEnabled:  getBoolEnv("NATS_ENABLED", true),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 8*time.Hour),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "anthropic"),
		AgentConfigFile: getEnv("AGENT_CONFIG_FILE", ""),

		ConfirmationTTL: getDurationEnv("CONFIRMATION_TTL", 2*time.Minute),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

var validate = validator.New()

// Validate checks the loaded configuration for contradictions.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.DemoMode && c.StoreBackend != "memory" {
		return fmt.Errorf("invalid configuration: DEMO_MODE requires STORE_BACKEND=memory")
	}
	return nil
}

// LLMKey returns the API key for the configured default provider.
func (c *Config) LLMKey() string {
	if c.DefaultLLM == "openai" {
		return c.OpenAIAPIKey
	}
	return c.AnthropicAPIKey
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
