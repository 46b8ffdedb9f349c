// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store implementations selectable through STORE_TYPE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port           int           `env:"PORT" envDefault:"8080"`
	Host           string        `env:"HOST" envDefault:"0.0.0.0"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`
	EngineWorkers  int           `env:"ENGINE_WORKERS" envDefault:"8"`
}

// DatabaseConfig holds ledger store configuration settings
type DatabaseConfig struct {
	Type               string `env:"STORE_TYPE" envDefault:"memory"`
	URI                string `env:"DATABASE_URL"`
	MongoURI           string `env:"MONGO_URI"`
	MongoDatabase      string `env:"MONGO_DATABASE" envDefault:"devfeed"`
	MaxConflictRetries int    `env:"MAX_CONFLICT_RETRIES" envDefault:"3"`
}

// FeedConfig bounds feed assembly.
type FeedConfig struct {
	// AuthorBatchLimit is the cardinality limit of the store's "author in set"
	// query. The caller always takes one slot.
	AuthorBatchLimit int `env:"FEED_AUTHOR_BATCH_LIMIT" envDefault:"10"`
	DefaultPageSize  int `env:"FEED_DEFAULT_PAGE_SIZE" envDefault:"20"`
	MaxPageSize      int `env:"FEED_MAX_PAGE_SIZE" envDefault:"50"`
}

type CacheConfig struct {
	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	FollowCacheTTL time.Duration `env:"FOLLOW_CACHE_TTL" envDefault:"30s"`
}

type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET" envDefault:"devfeed_secret_key_should_be_loaded_from_env"`
	Issuer    string `env:"JWT_ISSUER" envDefault:"devfeed-api"`
}

type AIConfig struct {
	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	Model         string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	RatePerMinute int    `env:"AI_RATE_PER_MINUTE" envDefault:"10"`
}

// Config holds the complete application configuration
type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Feed           FeedConfig
	Cache          CacheConfig
	Auth           AuthConfig
	AI             AIConfig
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	Debug          bool     `env:"DEBUG" envDefault:"false"`
}

// DefaultConfig returns the configuration produced by an empty environment.
func DefaultConfig() *Config {
	cfg := &Config{}
	// Defaults come from struct tags; parsing an empty environment cannot fail.
	_ = env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}})
	return cfg
}

// LoadConfig loads configuration from environment variables and applies defaults
func LoadConfig() (*Config, error) {
	// Try to load .env file from multiple possible locations
	envLocations := []string{
		".env",          // Current directory
		"../../.env",    // Project root when running from cmd/engine
		"../../../.env", // Even higher directory
		filepath.Join(os.Getenv("GOPATH"), "src/devfeed/.env"),
	}

	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			break
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case StoreMemory:
	case StorePostgres:
		if c.Database.URI == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_TYPE is postgres")
		}
	case StoreMongo:
		if c.Database.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORE_TYPE is mongo")
		}
	default:
		return fmt.Errorf("unsupported STORE_TYPE %q", c.Database.Type)
	}

	if c.Feed.AuthorBatchLimit < 1 {
		return fmt.Errorf("FEED_AUTHOR_BATCH_LIMIT must be positive")
	}
	if c.Feed.MaxPageSize < 1 || c.Feed.DefaultPageSize < 1 || c.Feed.DefaultPageSize > c.Feed.MaxPageSize {
		return fmt.Errorf("feed page sizes must satisfy 1 <= FEED_DEFAULT_PAGE_SIZE <= FEED_MAX_PAGE_SIZE")
	}
	if c.Database.MaxConflictRetries < 1 {
		return fmt.Errorf("MAX_CONFLICT_RETRIES must be at least 1")
	}
	if c.Server.EngineWorkers < 1 {
		return fmt.Errorf("ENGINE_WORKERS must be at least 1")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
