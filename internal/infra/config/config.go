// Package config provides application-wide configuration loaded from env vars (Task 1.1).
// All fields have safe defaults so the binary runs locally without any env setup.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds runtime configuration for Synapse.
type Config struct {
	// HTTP
	Host string // HTTP_HOST — default: "0.0.0.0"
	Port int    // HTTP_PORT — default: 8080

	// Storage
	DBPath string // DB_PATH — default: "synapse.sqlite"

	// Logging
	LogLevel  string // LOG_LEVEL — default: "info"
	LogFormat string // LOG_FORMAT — "json" or "console", default: "json"

	// Gateway
	RequestTimeout time.Duration // REQUEST_TIMEOUT_MS — default: 5000

	// Reflex
	DebounceInterval time.Duration // DEBOUNCE_MS — default: 500
	DrainInterval    time.Duration // DRAIN_INTERVAL_MS — default: 1000
	MaxQueueSize     int           // MAX_QUEUE_SIZE — default: 100
	WatchDir         string        // WATCH_DIR — default: "" (watcher disabled)
	GitRepoDir       string        // GIT_REPO_DIR — default: WatchDir

	// LLM
	LLMProvider     string // LLM_PROVIDER — default: "ollama"
	OllamaBaseURL   string // OLLAMA_BASE_URL — default: "http://localhost:11434"
	OllamaChatModel string // OLLAMA_CHAT_MODEL — default: "llama3.2:3b"
}

const (
	envKeyHost             = "HTTP_HOST"
	envKeyPort             = "HTTP_PORT"
	envKeyDBPath           = "DB_PATH"
	envKeyLogLevel         = "LOG_LEVEL"
	envKeyLogFormat        = "LOG_FORMAT"
	envKeyRequestTimeoutMS = "REQUEST_TIMEOUT_MS"
	envKeyDebounceMS       = "DEBOUNCE_MS"
	envKeyDrainIntervalMS  = "DRAIN_INTERVAL_MS"
	envKeyMaxQueueSize     = "MAX_QUEUE_SIZE"
	envKeyWatchDir         = "WATCH_DIR"
	envKeyGitRepoDir       = "GIT_REPO_DIR"
	envKeyLLMProvider      = "LLM_PROVIDER"
	envKeyOllamaBaseURL    = "OLLAMA_BASE_URL"
	envKeyOllamaChatModel  = "OLLAMA_CHAT_MODEL"
)

// Load reads configuration from environment variables, applying defaults for missing values.
func Load() Config {
	watchDir := envOr(envKeyWatchDir, "")
	return Config{
		Host:             envOr(envKeyHost, "0.0.0.0"),
		Port:             envOrInt(envKeyPort, 8080),
		DBPath:           envOr(envKeyDBPath, "synapse.sqlite"),
		LogLevel:         envOr(envKeyLogLevel, "info"),
		LogFormat:        envOr(envKeyLogFormat, "json"),
		RequestTimeout:   time.Duration(envOrInt(envKeyRequestTimeoutMS, 5000)) * time.Millisecond,
		DebounceInterval: time.Duration(envOrInt(envKeyDebounceMS, 500)) * time.Millisecond,
		DrainInterval:    time.Duration(envOrInt(envKeyDrainIntervalMS, 1000)) * time.Millisecond,
		MaxQueueSize:     envOrInt(envKeyMaxQueueSize, 100),
		WatchDir:         watchDir,
		GitRepoDir:       envOr(envKeyGitRepoDir, watchDir),
		LLMProvider:      envOr(envKeyLLMProvider, "ollama"),
		OllamaBaseURL:    envOr(envKeyOllamaBaseURL, "http://localhost:11434"),
		OllamaChatModel:  envOr(envKeyOllamaChatModel, "llama3.2:3b"),
	}
}

// envOr returns the value of the environment variable key, or fallback if not set.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envOrInt parses the environment variable as an integer, falling back on
// absent or malformed values.
func envOrInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
