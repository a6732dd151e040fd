// Package config provides environment configuration for the gateway.
package config

import (
	"os"
	"strconv"
	"time"
)

// Backend selects the agent transport implementation.
const (
	BackendAssistants = "assistants"
	BackendLocal      = "local"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Agent service settings
	AgentBackend    string
	AgentID         string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	LocalModel      string

	// Run state machine settings
	PollInterval     time.Duration
	PollMaxAttempts  int
	WakeEnabled      bool
	WakeMaxAttempts  int
	StreamMaxRuntime time.Duration

	// NATS settings; empty URL disables the transcript mirror and the
	// durable thread store.
	NATSURL          string
	NATSCAFile       string
	NATSCertFile     string
	NATSKeyFile      string
	NATSToken        string
	NATSThreadBucket string

	// JWT settings
	JWTSecret string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// Agent service
		AgentBackend:    getEnv("AGENT_BACKEND", BackendAssistants),
		AgentID:         getEnv("AGENT_ID", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		LocalModel:      getEnv("LOCAL_MODEL", ""),

		// Run state machine
		PollInterval:     getDurationEnv("RUN_POLL_INTERVAL", time.Second),
		PollMaxAttempts:  getIntEnv("RUN_POLL_MAX_ATTEMPTS", 60),
		WakeEnabled:      getBoolEnv("WAKE_ENABLED", false),
		WakeMaxAttempts:  getIntEnv("WAKE_MAX_ATTEMPTS", 30),
		StreamMaxRuntime: getDurationEnv("STREAM_MAX_RUNTIME", 5*time.Minute),

		// NATS
		NATSURL:          getEnv("NATS_URL", ""),
		NATSCAFile:       getEnv("NATS_CA_FILE", ""),
		NATSCertFile:     getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:      getEnv("NATS_KEY_FILE", ""),
		NATSToken:        getEnv("NATS_TOKEN", ""),
		NATSThreadBucket: getEnv("NATS_THREAD_BUCKET", "chat-threads"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
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
