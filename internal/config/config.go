// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Storage   StorageConfig
	OCR       OCRConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Index     IndexConfig
	Chunking  ChunkingConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int
	Environment     string
	ShutdownTimeout int
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the Redis host:port address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NATSConfig holds event stream configuration.
type NATSConfig struct {
	Enabled    bool
	URL        string
	ClientName string
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
	Region          string
}

// OCRConfig holds the Mistral OCR client configuration.
type OCRConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider        string
	AnthropicKey    string
	OpenAIKey       string
	Model           string
	MaxTokens       int
	ContextTokens   int
	OllamaBaseURL   string
	LMStudioBaseURL string
	Temperature     float64
}

// EmbeddingConfig holds embedding client configuration.
type EmbeddingConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// IndexConfig holds vector index persistence configuration.
type IndexConfig struct {
	Dir  string
	TopK int
}

// ChunkingConfig holds retrieval chunking parameters.
type ChunkingConfig struct {
	SizeWords    int
	OverlapWords int
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level     string
	Format    string
	AddSource bool
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("PORT", 8080),
			Environment:     getEnv("ENVIRONMENT", "development"),
			ShutdownTimeout: getEnvAsInt("SHUTDOWN_TIMEOUT", 30),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "financial_analyzer"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			Enabled:    getEnvAsBool("NATS_ENABLED", false),
			URL:        getEnv("NATS_URL", "nats://localhost:4222"),
			ClientName: getEnv("NATS_CLIENT_NAME", "financial-analyzer"),
		},
		Storage: StorageConfig{
			Enabled:         getEnvAsBool("STORAGE_ENABLED", false),
			Endpoint:        getEnv("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getEnv("STORAGE_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: getEnv("STORAGE_SECRET_KEY", "minioadmin"),
			BucketName:      getEnv("STORAGE_BUCKET", "findoc"),
			UseSSL:          getEnvAsBool("STORAGE_USE_SSL", false),
			Region:          getEnv("STORAGE_REGION", "us-east-1"),
		},
		OCR: OCRConfig{
			APIKey:         getEnv("MISTRAL_API_KEY", ""),
			BaseURL:        getEnv("MISTRAL_BASE_URL", "https://api.mistral.ai"),
			Model:          getEnv("OCR_MODEL", "mistral-ocr-latest"),
			TimeoutSeconds: getEnvAsInt("OCR_TIMEOUT_SECONDS", 120),
		},
		LLM: LLMConfig{
			Provider:        getEnv("LLM_PROVIDER", "openai"),
			AnthropicKey:    getEnv("ANTHROPIC_API_KEY", ""),
			OpenAIKey:       getEnv("OPENAI_API_KEY", ""),
			Model:           getEnv("LLM_MODEL", "gpt-4o-mini"),
			MaxTokens:       getEnvAsInt("LLM_MAX_TOKENS", 4096),
			ContextTokens:   getEnvAsInt("LLM_CONTEXT_TOKENS", 128000),
			OllamaBaseURL:   getEnv("OLLAMA_BASE_URL", "http://localhost:11434/v1"),
			LMStudioBaseURL: getEnv("LMSTUDIO_BASE_URL", "http://localhost:1234/v1"),
			Temperature:     getEnvAsFloat("LLM_TEMPERATURE", 0.3),
		},
		Embedding: EmbeddingConfig{
			APIKey:  getEnv("EMBEDDING_API_KEY", getEnv("OPENAI_API_KEY", "")),
			BaseURL: getEnv("EMBEDDING_BASE_URL", ""),
			Model:   getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		},
		Index: IndexConfig{
			Dir:  getEnv("INDEX_DIR", "data/indexes"),
			TopK: getEnvAsInt("RETRIEVAL_TOP_K", 3),
		},
		Chunking: ChunkingConfig{
			SizeWords:    getEnvAsInt("CHUNK_SIZE_WORDS", 200),
			OverlapWords: getEnvAsInt("CHUNK_OVERLAP_WORDS", 0),
		},
		Log: LogConfig{
			Level:     getEnv("LOG_LEVEL", "info"),
			Format:    getEnv("LOG_FORMAT", "json"),
			AddSource: getEnvAsBool("LOG_ADD_SOURCE", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Development runs can lean on mock providers; production cannot.
	if c.Server.Environment == "production" {
		if c.OCR.APIKey == "" {
			return fmt.Errorf("MISTRAL_API_KEY must be set in production")
		}
		if c.LLM.AnthropicKey == "" && c.LLM.OpenAIKey == "" {
			return fmt.Errorf("either ANTHROPIC_API_KEY or OPENAI_API_KEY must be set in production")
		}
	}
	if c.Chunking.SizeWords <= 0 {
		return fmt.Errorf("CHUNK_SIZE_WORDS must be positive, got %d", c.Chunking.SizeWords)
	}
	if c.Chunking.OverlapWords < 0 || c.Chunking.OverlapWords >= c.Chunking.SizeWords {
		return fmt.Errorf("CHUNK_OVERLAP_WORDS must be in [0, CHUNK_SIZE_WORDS)")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
