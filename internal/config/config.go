package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel  slog.Level
	LogFormat string

	DBPath   string
	FilesDir string

	SourceAPIURL string
	SourceAPIKey string

	EmbeddingBaseURL   string
	EmbeddingAPIKey    string
	EmbeddingModelName string

	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int
	DefaultTopK  int

	// VectorBackend selects the search backend: "local" scores embeddings
	// stored in SQLite, "qdrant" queries a Qdrant collection.
	VectorBackend    string
	QdrantURL        string
	QdrantCollection string

	SessionCacheTTLSeconds int
	APIPort                string
}

// Load reads configuration from environment variables and returns a Config
// struct. It applies defaults for optional fields and validates required
// fields. A .env file in the current directory or a parent is loaded
// automatically; variables already set in the environment take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	// Walk up from the working directory looking for a project-root .env.
	if wd, err := os.Getwd(); err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := &Config{
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		DBPath:             getEnv("DB_PATH", "./data/refdex.db"),
		FilesDir:           getEnv("FILES_DIR", "./data/files"),
		SourceAPIURL:       getEnv("SOURCE_API_URL", ""),
		SourceAPIKey:       getEnv("SOURCE_API_KEY", ""),
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingAPIKey:    getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "all-MiniLM-L6-v2"),
		VectorBackend:      getEnv("VECTOR_BACKEND", "local"),
		QdrantURL:          getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "refdex-chunks"),
		APIPort:            getEnv("API_PORT", "9000"),
	}

	var err error
	if cfg.ChunkSize, err = getEnvInt("CHUNK_SIZE", 512); err != nil {
		return nil, err
	}
	if cfg.ChunkOverlap, err = getEnvInt("CHUNK_OVERLAP", 50); err != nil {
		return nil, err
	}
	if cfg.MinChunkSize, err = getEnvInt("MIN_CHUNK_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.DefaultTopK, err = getEnvInt("DEFAULT_TOP_K", 10); err != nil {
		return nil, err
	}
	if cfg.SessionCacheTTLSeconds, err = getEnvInt("SESSION_CACHE_TTL_SECONDS", 300); err != nil {
		return nil, err
	}

	level, err := parseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if cfg.SourceAPIURL == "" {
		return nil, fmt.Errorf("SOURCE_API_URL is required")
	}
	if cfg.VectorBackend != "local" && cfg.VectorBackend != "qdrant" {
		return nil, fmt.Errorf("VECTOR_BACKEND must be \"local\" or \"qdrant\", got %q", cfg.VectorBackend)
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}

	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// parseLogLevel converts a level name to a slog.Level.
func parseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", name)
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}
