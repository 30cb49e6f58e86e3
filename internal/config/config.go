package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	RedisURL string
	DataDir  string

	LLMProvider     string
	AnthropicAPIKey string
	OllamaURL       string
	ModelName       string

	// GeneratorTimeout bounds each generator call. Zero means no
	// timeout; resolution blocks until the generator answers.
	GeneratorTimeout time.Duration

	// MaxMemorySize caps each NPC's memory ledger.
	MaxMemorySize int

	// QueueSoftCap is the queue depth that triggers an implicit
	// resolve. Producers are never refused.
	QueueSoftCap int

	// GameID pins the server to a persisted game instance. Empty means
	// a fresh game with a generated ID.
	GameID string

	// AutoSaveInterval is how often the running game is persisted.
	// Zero disables auto-save.
	AutoSaveInterval time.Duration
}

func Load() (*Config, error) {
	genTimeout, err := parseDuration(getEnv("GENERATOR_TIMEOUT", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid GENERATOR_TIMEOUT: %w", err)
	}
	maxMemory, err := strconv.Atoi(getEnv("MAX_MEMORY_SIZE", "50"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_MEMORY_SIZE: %w", err)
	}
	softCap, err := strconv.Atoi(getEnv("QUEUE_SOFT_CAP", "25"))
	if err != nil {
		return nil, fmt.Errorf("invalid QUEUE_SOFT_CAP: %w", err)
	}
	autoSave, err := parseDuration(getEnv("AUTOSAVE_INTERVAL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUTOSAVE_INTERVAL: %w", err)
	}

	return &Config{
		Port:             getEnv("PORT", "8080"),
		Environment:      getEnv("ENVIRONMENT", "development"),
		LogLevel:         parseLogLevel(getEnv("LOG_LEVEL", "info")),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379"),
		DataDir:          getEnv("DATA_DIR", "./data"),
		LLMProvider:      getEnv("LLM_PROVIDER", "ollama"),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		OllamaURL:        getEnv("OLLAMA_URL", "http://localhost:11434"),
		ModelName:        getEnv("MODEL_NAME", "llama3"),
		GeneratorTimeout: genTimeout,
		MaxMemorySize:    maxMemory,
		QueueSoftCap:     softCap,
		GameID:           getEnv("GAME_ID", ""),
		AutoSaveInterval: autoSave,
	}, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "0" || s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
