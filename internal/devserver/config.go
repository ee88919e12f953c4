package devserver

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the development backend configuration
type Config struct {
	// Server configuration
	Host    string
	Port    int
	Version string

	// Games maps game ids to their keys. Requests for unknown games or
	// with a wrong key are rejected.
	Games map[string]string

	// HeroKeys maps hero keys to the player id they log in as.
	HeroKeys map[string]string

	// Redis configuration. An empty address selects the in-memory store.
	Redis RedisConfig

	// CompressResponses deflates every response body.
	CompressResponses bool

	// LogPageSize caps the number of log ids returned per page.
	LogPageSize int

	ShutdownTimeout int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	games, err := parsePairs(getEnvOrDefault("FLOX_GAMES", "demo:demo-key"))
	if err != nil {
		return nil, fmt.Errorf("invalid FLOX_GAMES: %w", err)
	}

	heroKeys, err := parsePairs(os.Getenv("FLOX_HERO_KEYS"))
	if err != nil {
		return nil, fmt.Errorf("invalid FLOX_HERO_KEYS: %w", err)
	}

	redisDB, err := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	compress, err := strconv.ParseBool(getEnvOrDefault("COMPRESS_RESPONSES", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid COMPRESS_RESPONSES: %w", err)
	}

	pageSize, err := strconv.Atoi(getEnvOrDefault("LOG_PAGE_SIZE", "50"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_PAGE_SIZE: %w", err)
	}

	shutdownTimeout, err := strconv.Atoi(getEnvOrDefault("SHUTDOWN_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Host:     getEnvOrDefault("HOST", "0.0.0.0"),
		Port:     port,
		Version:  getEnvOrDefault("FLOX_SERVER_VERSION", "dev"),
		Games:    games,
		HeroKeys: heroKeys,
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		CompressResponses: compress,
		LogPageSize:       pageSize,
		ShutdownTimeout:   shutdownTimeout,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if len(c.Games) == 0 {
		return fmt.Errorf("at least one game must be configured")
	}
	if c.LogPageSize <= 0 {
		return fmt.Errorf("log page size must be positive, got %d", c.LogPageSize)
	}
	return nil
}

// Address returns the listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// parsePairs reads "a:1,b:2" into a map.
func parsePairs(s string) (map[string]string, error) {
	pairs := make(map[string]string)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, value, ok := strings.Cut(item, ":")
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("expected key:value, got %q", item)
		}
		pairs[key] = value
	}
	return pairs, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
