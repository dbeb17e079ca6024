// Package config provides configuration for the application
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Logging  LoggingConfig
	CORS     CORSConfig
	Search   SearchConfig
	Relay    RelayConfig
	Gateway  GatewayConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port int
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string
}

// SearchConfig holds the search pipeline settings
type SearchConfig struct {
	// SourceChannels are the upstream channels scanned by live search,
	// in the order they are consulted
	SourceChannels []int64
	// PerSourceLimit caps how many messages one channel query may return
	PerSourceLimit int
	// PerSourceTimeout bounds a single upstream channel query
	PerSourceTimeout time.Duration
	// LiveSearchBudget bounds the whole live-search phase across all channels
	LiveSearchBudget time.Duration
	// ResponseCacheTTL is the cache hint attached to search responses
	ResponseCacheTTL time.Duration
}

// RelayConfig holds the relay delivery pipeline settings
type RelayConfig struct {
	// HoldingChannel is the intermediate channel staged copies pass through
	HoldingChannel  int64
	ResolveTimeout  time.Duration
	RetrieveTimeout time.Duration
	StageTimeout    time.Duration
	DeliverTimeout  time.Duration
	// OverallBudget bounds one relay session end to end
	OverallBudget time.Duration
	// RateLimitBudget bounds the total wait spent on rate-limit backoff
	// within a single courier operation
	RateLimitBudget time.Duration
}

// GatewayConfig holds the connection settings for the chat-platform
// agent that carries out message operations on our behalf
type GatewayConfig struct {
	// BaseURL is the agent's HTTP API root
	BaseURL string
	// Timeout bounds one agent call at the HTTP client level
	Timeout time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	godotenv.Load()

	cfg := &Config{}

	// Database configuration
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		return nil, fmt.Errorf("DB_HOST is required")
	}
	cfg.Database.Host = dbHost

	dbPortStr := os.Getenv("DB_PORT")
	if dbPortStr == "" {
		return nil, fmt.Errorf("DB_PORT is required")
	}
	dbPort, err := strconv.Atoi(dbPortStr)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	cfg.Database.Port = dbPort

	dbUser := os.Getenv("DB_USER")
	if dbUser == "" {
		return nil, fmt.Errorf("DB_USER is required")
	}
	cfg.Database.User = dbUser

	dbPassword := os.Getenv("DB_PASSWORD")
	if dbPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	cfg.Database.Password = dbPassword

	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		return nil, fmt.Errorf("DB_NAME is required")
	}
	cfg.Database.DBName = dbName

	// Server configuration
	if cfg.Server.Port, err = intEnv("SERVER_PORT", 8080); err != nil {
		return nil, err
	}

	// Logging configuration
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info" // default level
	}
	cfg.Logging.Level = logLevel

	// CORS configuration
	corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if corsOrigins == "" {
		cfg.CORS.AllowedOrigins = []string{"*"}
	} else {
		origins := strings.Split(corsOrigins, ",")
		cfg.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, origin)
			}
		}
		if len(cfg.CORS.AllowedOrigins) == 0 {
			cfg.CORS.AllowedOrigins = []string{"*"}
		}
	}

	// Redis configuration
	redisHost := os.Getenv("REDIS_HOST")
	if redisHost == "" {
		redisHost = "localhost" // default
	}
	cfg.Redis.Host = redisHost

	if cfg.Redis.Port, err = intEnv("REDIS_PORT", 6379); err != nil {
		return nil, err
	}
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD") // optional
	if cfg.Redis.DB, err = intEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}

	// Search configuration
	cfg.Search.SourceChannels, err = channelListEnv("SOURCE_CHANNELS")
	if err != nil {
		return nil, err
	}
	if cfg.Search.PerSourceLimit, err = intEnv("SEARCH_PER_SOURCE_LIMIT", 50); err != nil {
		return nil, err
	}
	if cfg.Search.PerSourceTimeout, err = durationEnv("SEARCH_PER_SOURCE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Search.LiveSearchBudget, err = durationEnv("SEARCH_LIVE_BUDGET", 25*time.Second); err != nil {
		return nil, err
	}
	if cfg.Search.ResponseCacheTTL, err = durationEnv("SEARCH_RESPONSE_CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}

	// Relay configuration
	holdingStr := os.Getenv("HOLDING_CHANNEL")
	if holdingStr == "" {
		return nil, fmt.Errorf("HOLDING_CHANNEL is required")
	}
	holding, err := strconv.ParseInt(holdingStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid HOLDING_CHANNEL: %w", err)
	}
	cfg.Relay.HoldingChannel = holding

	if cfg.Relay.ResolveTimeout, err = durationEnv("RELAY_RESOLVE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Relay.RetrieveTimeout, err = durationEnv("RELAY_RETRIEVE_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.Relay.StageTimeout, err = durationEnv("RELAY_STAGE_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Relay.DeliverTimeout, err = durationEnv("RELAY_DELIVER_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Relay.OverallBudget, err = durationEnv("RELAY_OVERALL_BUDGET", 90*time.Second); err != nil {
		return nil, err
	}
	if cfg.Relay.RateLimitBudget, err = durationEnv("RELAY_RATE_LIMIT_BUDGET", 15*time.Second); err != nil {
		return nil, err
	}

	// Gateway configuration
	gatewayURL := os.Getenv("GATEWAY_URL")
	if gatewayURL == "" {
		return nil, fmt.Errorf("GATEWAY_URL is required")
	}
	cfg.Gateway.BaseURL = strings.TrimRight(gatewayURL, "/")
	if cfg.Gateway.Timeout, err = durationEnv("GATEWAY_TIMEOUT", 35*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
	)
}

// RedisAddr returns the Redis address in host:port form
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// intEnv parses an integer environment variable with a default
func intEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

// durationEnv parses a duration environment variable with a default
func durationEnv(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

// channelListEnv parses a comma-separated list of channel IDs
func channelListEnv(name string) ([]int64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, ",")
	channels := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %q: %w", name, part, err)
		}
		channels = append(channels, id)
	}
	return channels, nil
}
