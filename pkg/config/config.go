package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Forecast reconciliation engine
	Forecast ForecastConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	Prefix   string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// ForecastConfig holds forecast import / reconciliation policy
type ForecastConfig struct {
	// Pending review bucket
	PendingTTL     time.Duration
	PendingBackend string // memory, redis

	// Row classification
	MTOMarker string
	Brands    []string // empty = accept any brand code

	// Lead-time policy
	MTOGraceDays int

	// Result reporting
	MaxWarnings       int
	DefaultImportedBy string

	// Scheduled jobs (cron with seconds)
	MatchCron          string
	SweepCron          string
	PendingCleanupCron string
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "merchops"),
			User:            getEnv("DB_USER", "merchops"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Prefix:   getEnv("REDIS_PREFIX", "merchops"),
		},

		// Forecast
		Forecast: ForecastConfig{
			PendingTTL:         getEnvAsDuration("FORECAST_PENDING_TTL", "30m"),
			PendingBackend:     strings.ToLower(getEnv("FORECAST_PENDING_BACKEND", "memory")),
			MTOMarker:          getEnv("FORECAST_MTO_MARKER", "MTO"),
			Brands:             getEnvAsList("FORECAST_BRANDS"),
			MTOGraceDays:       getEnvAsInt("FORECAST_MTO_GRACE_DAYS", 14),
			MaxWarnings:        getEnvAsInt("FORECAST_MAX_WARNINGS", 50),
			DefaultImportedBy:  getEnv("FORECAST_IMPORTED_BY", "system"),
			MatchCron:          getEnv("FORECAST_MATCH_CRON", "0 15 * * * *"),
			SweepCron:          getEnv("FORECAST_SWEEP_CRON", "0 0 2 * * *"),
			PendingCleanupCron: getEnv("FORECAST_PENDING_CLEANUP_CRON", "0 */10 * * * *"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Database URL is required
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	// Redis-backed pending store needs Redis
	switch c.Forecast.PendingBackend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("FORECAST_PENDING_BACKEND=redis requires REDIS_ENABLED=true")
		}
	default:
		return fmt.Errorf("FORECAST_PENDING_BACKEND must be one of: memory, redis")
	}

	if c.Forecast.PendingTTL <= 0 {
		return fmt.Errorf("FORECAST_PENDING_TTL must be positive")
	}

	if strings.TrimSpace(c.Forecast.MTOMarker) == "" {
		return fmt.Errorf("FORECAST_MTO_MARKER must not be empty")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env",         // Current directory
		"backend/.env", // From project root
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList splits a comma separated variable, dropping blanks
func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
