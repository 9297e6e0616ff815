// Package config loads runtime configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/marvel-client/pkg/logging"
	"github.com/Sternrassler/marvel-client/pkg/marvel"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// Defaults used when the environment does not set a value.
const (
	DefaultBaseURL     = "https://gateway.marvel.com"
	DefaultPageSize    = 20
	DefaultDailyQuota  = 3000
	DefaultHTTPTimeout = 30 * time.Second
	DefaultPort        = "8080"
)

// ErrMissingKeys is returned by Validate when the API key pair is incomplete.
var ErrMissingKeys = errors.New("MARVEL_PUBLIC_KEY and MARVEL_PRIVATE_KEY must be set")

// Config is the runtime configuration shared by all commands.
type Config struct {
	PublicKey  string
	PrivateKey string
	BaseURL    string

	// RedisURL is either a redis:// URL or a host:port address. Empty disables cache and quota.
	RedisURL string

	PageSize    int
	DailyQuota  int
	HTTPTimeout time.Duration

	LogLevel  string
	LogPretty bool

	Port string
}

// Load reads a .env file from the working directory if it exists, then the environment.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// LoadFile is Load with an explicit .env path. A missing file is an error.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("load env file %s: %w", path, err)
	}
	return FromEnv(), nil
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() *Config {
	return &Config{
		PublicKey:   getEnv("MARVEL_PUBLIC_KEY", ""),
		PrivateKey:  getEnv("MARVEL_PRIVATE_KEY", ""),
		BaseURL:     getEnv("MARVEL_BASE_URL", DefaultBaseURL),
		RedisURL:    getEnv("REDIS_URL", ""),
		PageSize:    getIntEnv("PAGE_SIZE", DefaultPageSize),
		DailyQuota:  getIntEnv("DAILY_QUOTA", DefaultDailyQuota),
		HTTPTimeout: getDurationEnv("HTTP_TIMEOUT", DefaultHTTPTimeout),
		LogLevel:    getEnv("LOG_LEVEL", string(logging.LevelInfo)),
		LogPretty:   getBoolEnv("LOG_PRETTY", false),
		Port:        getEnv("PORT", DefaultPort),
	}
}

// Validate checks the values needed to talk to the Marvel API.
func (c *Config) Validate() error {
	var errs []error

	if c.PublicKey == "" || c.PrivateKey == "" {
		errs = append(errs, ErrMissingKeys)
	}
	if c.PageSize < 1 || c.PageSize > marvel.MaxPageLimit {
		errs = append(errs, fmt.Errorf("PAGE_SIZE must be between 1 and %d (got %d)", marvel.MaxPageLimit, c.PageSize))
	}
	if c.DailyQuota < 1 {
		errs = append(errs, fmt.Errorf("DAILY_QUOTA must be positive (got %d)", c.DailyQuota))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HTTP_TIMEOUT must be positive (got %s)", c.HTTPTimeout))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if c.RedisURL != "" {
		if _, err := c.RedisOptions(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.LogLevel); err == nil {
		cfg.Level = level
	}
	cfg.Pretty = c.LogPretty
	return cfg
}

// RedisOptions parses RedisURL. It returns nil options when Redis is disabled.
func (c *Config) RedisOptions() (*redis.Options, error) {
	if c.RedisURL == "" {
		return nil, nil
	}
	if strings.HasPrefix(c.RedisURL, "redis://") || strings.HasPrefix(c.RedisURL, "rediss://") {
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: c.RedisURL}, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		// Try parsing as duration string (e.g. "1m", "60s")
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// Try parsing as integer seconds
		if i, err := strconv.Atoi(value); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return fallback
}
