package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration. It is constructed once at
// startup and passed by handle into the components that need it; nothing
// reads the environment after LoadConfig returns.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Admin    AdminSeedConfig

	LogLevel string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for probes)
	HealthPort string

	// CORSOrigins lists origins allowed to call the API cross-origin.
	// Empty disables CORS handling entirely; "*" allows any origin.
	CORSOrigins []string
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnTimeout  time.Duration
}

// AuthConfig holds credential hashing and token signing settings
type AuthConfig struct {
	// SigningSecret signs session tokens and peppers password pre-hashes.
	// An empty secret is tolerated (the service still runs) but logged as a
	// security warning at startup.
	SigningSecret string
	TokenTTL      time.Duration
	BcryptCost    int

	// ResolverCacheTTL enables a short-lived in-memory cache of effective
	// permission sets when > 0. Zero disables caching, which is the default:
	// grants then take effect on the very next request.
	ResolverCacheTTL  time.Duration
	ResolverCacheSize int
}

// StorageConfig holds file storage settings
type StorageConfig struct {
	Root          string
	MaxUploadSize int64

	// AllowedTypes restricts upload content types. Entries are either MIME
	// types or the group names "images" and "documents". Empty accepts any
	// content type.
	AllowedTypes []string

	// MaintenanceSchedule is a cron expression for the orphaned-object sweep.
	// Empty disables the job.
	MaintenanceSchedule string
	OrphanGracePeriod   time.Duration
}

// AdminSeedConfig holds the bootstrap administrator account. The defaults
// are development-only and must be overridden in any real deployment.
type AdminSeedConfig struct {
	Email    string
	Username string
	Password string
}

// RedisConfig holds optional Redis settings (health checks only)
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Defaults
const (
	DefaultBcryptCost    = 12
	DefaultTokenTTL      = 24 * time.Hour
	DefaultMaxUploadSize = 10 << 20 // 10 MiB
)

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("GATEHOUSE_HOST", "0.0.0.0"),
			Port:            getEnv("GATEHOUSE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("GATEHOUSE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("GATEHOUSE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("GATEHOUSE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("GATEHOUSE_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("GATEHOUSE_HEALTH_PORT", "9090"),
			CORSOrigins:     getEnvList("GATEHOUSE_CORS_ORIGINS"),
		},
		Database: DatabaseConfig{
			URL:          getEnv("GATEHOUSE_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("GATEHOUSE_POSTGRES_MAX_CONNS", 20),
			MaxIdleConns: getEnvInt("GATEHOUSE_POSTGRES_IDLE_CONNS", 2),
			ConnTimeout:  getEnvDuration("GATEHOUSE_POSTGRES_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			SigningSecret:     getEnv("GATEHOUSE_SECRET_KEY", ""),
			TokenTTL:          getEnvDuration("GATEHOUSE_TOKEN_TTL", DefaultTokenTTL),
			BcryptCost:        getEnvInt("GATEHOUSE_BCRYPT_COST", DefaultBcryptCost),
			ResolverCacheTTL:  getEnvDuration("GATEHOUSE_RESOLVER_CACHE_TTL", 0),
			ResolverCacheSize: getEnvInt("GATEHOUSE_RESOLVER_CACHE_SIZE", 1024),
		},
		Storage: StorageConfig{
			Root:                getEnv("GATEHOUSE_STORAGE_ROOT", "storage"),
			MaxUploadSize:       getEnvInt64("GATEHOUSE_MAX_UPLOAD_SIZE", DefaultMaxUploadSize),
			AllowedTypes:        getEnvList("GATEHOUSE_STORAGE_ALLOWED_TYPES"),
			MaintenanceSchedule: getEnv("GATEHOUSE_MAINTENANCE_SCHEDULE", ""),
			OrphanGracePeriod:   getEnvDuration("GATEHOUSE_ORPHAN_GRACE_PERIOD", 24*time.Hour),
		},
		Admin: AdminSeedConfig{
			Email:    getEnv("GATEHOUSE_ADMIN_EMAIL", "admin@example.com"),
			Username: getEnv("GATEHOUSE_ADMIN_USERNAME", "admin"),
			Password: getEnv("GATEHOUSE_ADMIN_PASSWORD", "admin123"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("GATEHOUSE_REDIS_ADDR", ""),
			Password: getEnv("GATEHOUSE_REDIS_PASSWORD", ""),
			DB:       getEnvInt("GATEHOUSE_REDIS_DB", 0),
		},
		LogLevel: getEnv("GATEHOUSE_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		return fmt.Errorf("bcrypt cost must be between 4 and 31, got %d", c.Auth.BcryptCost)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	if c.Storage.Root == "" {
		return fmt.Errorf("storage root is required")
	}
	if c.Storage.MaxUploadSize <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable as a slice,
// or nil when unset
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
