// Package config provides configuration management for the employee backend.
// Configuration is selected by profile and loaded from environment variables,
// an optional .env.<profile> file and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Profile names a configuration profile
type Profile string

const (
	ProfileDefault Profile = "default"
	ProfileDev     Profile = "dev"
	ProfileTest    Profile = "test"
	ProfileProd    Profile = "prod"
)

// ProfileEnvVar selects the profile when none is passed explicitly
const ProfileEnvVar = "APP_PROFILE"

// Storage, cache and audit drivers
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"

	CacheDriverRedis = "redis"
	CacheDriverNone  = "none"

	AuditDriverClickHouse = "clickhouse"
	AuditDriverMemory     = "memory"
	AuditDriverNone       = "none"
)

// Config holds all application configuration
type Config struct {
	Profile   Profile
	Server    ServerConfig
	Storage   StorageConfig
	Cache     CacheConfig
	Audit     AuditConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	TrustedProxies  []string
}

// StorageConfig selects and configures the employee store
type StorageConfig struct {
	Driver          string
	Postgres        PostgresConfig
	AutoMigrate     bool
	ConnectAttempts int
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	SSLMode        string
	MaxConnections int
}

// URL returns the connection URL used by the migration tooling
func (p PostgresConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	Driver string
	TTL    time.Duration
	Redis  RedisConfig
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// AuditConfig selects where employee change history is written
type AuditConfig struct {
	Driver     string
	ClickHouse ClickHouseConfig
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RateLimitConfig holds per-client rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// profileDefaults are the fallback values a profile supplies when neither the
// environment nor an env file sets a key.
var profileDefaults = map[Profile]map[string]string{
	ProfileTest: {
		"SERVER_HOST":    "127.0.0.1",
		"SERVER_PORT":    "0",
		"STORAGE_DRIVER": StorageDriverMemory,
		"CACHE_DRIVER":   CacheDriverNone,
		"AUDIT_DRIVER":   AuditDriverMemory,
		"LOG_LEVEL":      "warn",
		"LOG_FORMAT":     "text",
	},
	ProfileDev: {
		"STORAGE_AUTO_MIGRATE": "true",
		"LOG_LEVEL":            "debug",
		"LOG_FORMAT":           "text",
	},
	ProfileProd: {
		"POSTGRES_SSLMODE": "require",
		"LOG_LEVEL":        "info",
	},
}

// ParseProfile parses a profile name; an empty name is the default profile
func ParseProfile(name string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return ProfileDefault, nil
	case ProfileDefault, ProfileDev, ProfileTest, ProfileProd:
		return p, nil
	default:
		return "", fmt.Errorf("unknown profile %q", name)
	}
}

// LoadConfig loads configuration for the profile named by APP_PROFILE
func LoadConfig() (*Config, error) {
	profile, err := ParseProfile(os.Getenv(ProfileEnvVar))
	if err != nil {
		return nil, err
	}
	return LoadProfile(profile)
}

// LoadProfile loads configuration for an explicit profile
func LoadProfile(profile Profile) (*Config, error) {
	// godotenv never overrides variables that are already set, so the
	// profile file is loaded first to take precedence over .env.
	for _, file := range []string{".env." + string(profile), ".env"} {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s file: %w", file, err)
		}
	}

	l := loader{defaults: profileDefaults[profile]}

	cfg := &Config{
		Profile: profile,
		Server: ServerConfig{
			Port:            l.get("SERVER_PORT", "8080"),
			Host:            l.get("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     l.duration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    l.duration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     l.duration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: l.duration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  l.list("CORS_ALLOWED_ORIGINS", "http://localhost:4200"),
			TrustedProxies:  l.list("SERVER_TRUSTED_PROXIES", ""),
		},
		Storage: StorageConfig{
			Driver: l.get("STORAGE_DRIVER", StorageDriverPostgres),
			Postgres: PostgresConfig{
				Host:           l.get("POSTGRES_HOST", "localhost"),
				Port:           l.get("POSTGRES_PORT", "5432"),
				Database:       l.get("POSTGRES_DB", "employees"),
				User:           l.get("POSTGRES_USER", "employees"),
				Password:       l.get("POSTGRES_PASSWORD", ""),
				SSLMode:        l.get("POSTGRES_SSLMODE", "disable"),
				MaxConnections: l.int("POSTGRES_MAX_CONNECTIONS", 20),
			},
			AutoMigrate:     l.bool("STORAGE_AUTO_MIGRATE", false),
			ConnectAttempts: l.int("STORAGE_CONNECT_ATTEMPTS", 5),
		},
		Cache: CacheConfig{
			Driver: l.get("CACHE_DRIVER", CacheDriverRedis),
			TTL:    l.duration("CACHE_TTL", 30*time.Second),
			Redis: RedisConfig{
				Host:           l.get("REDIS_HOST", "localhost"),
				Port:           l.get("REDIS_PORT", "6379"),
				Password:       l.get("REDIS_PASSWORD", ""),
				DB:             l.int("REDIS_DB", 0),
				MaxConnections: l.int("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Audit: AuditConfig{
			Driver: l.get("AUDIT_DRIVER", AuditDriverNone),
			ClickHouse: ClickHouseConfig{
				Host:     l.get("CLICKHOUSE_HOST", "localhost"),
				Port:     l.get("CLICKHOUSE_PORT", "9000"),
				Database: l.get("CLICKHOUSE_DB", "employees"),
				User:     l.get("CLICKHOUSE_USER", "default"),
				Password: l.get("CLICKHOUSE_PASSWORD", ""),
			},
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: l.int("RATE_LIMIT_RPS", 50),
			Burst:             l.int("RATE_LIMIT_BURST", 100),
		},
		Logging: LoggingConfig{
			Level:  l.get("LOG_LEVEL", "info"),
			Format: l.get("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// Validate checks that the configuration can be used to build the application
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.Storage.Postgres.Host == "" {
			errs = append(errs, errors.New("POSTGRES_HOST is required for the postgres storage driver"))
		}
		if c.Storage.Postgres.Database == "" {
			errs = append(errs, errors.New("POSTGRES_DB is required for the postgres storage driver"))
		}
		if c.Storage.Postgres.MaxConnections <= 0 {
			errs = append(errs, errors.New("POSTGRES_MAX_CONNECTIONS must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	switch c.Cache.Driver {
	case CacheDriverNone:
	case CacheDriverRedis:
		if c.Cache.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required for the redis cache driver"))
		}
		if c.Cache.TTL <= 0 {
			errs = append(errs, errors.New("CACHE_TTL must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache driver %q", c.Cache.Driver))
	}

	switch c.Audit.Driver {
	case AuditDriverNone, AuditDriverMemory:
	case AuditDriverClickHouse:
		if c.Audit.ClickHouse.Host == "" {
			errs = append(errs, errors.New("CLICKHOUSE_HOST is required for the clickhouse audit driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown audit driver %q", c.Audit.Driver))
	}

	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}

	for _, proxy := range c.Server.TrustedProxies {
		if !validProxy(proxy) {
			errs = append(errs, fmt.Errorf("invalid SERVER_TRUSTED_PROXIES entry %q", proxy))
		}
	}

	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		errs = append(errs, fmt.Errorf("invalid SERVER_PORT %q", c.Server.Port))
	}

	return errors.Join(errs...)
}

// validProxy accepts an IP address or a CIDR range
func validProxy(entry string) bool {
	if strings.Contains(entry, "/") {
		_, _, err := net.ParseCIDR(entry)
		return err == nil
	}
	return net.ParseIP(entry) != nil
}

// loader resolves keys against the environment and then the profile defaults
type loader struct {
	defaults map[string]string
}

func (l loader) get(key, defaultValue string) string {
	if v, ok := l.defaults[key]; ok {
		defaultValue = v
	}
	return getEnv(key, defaultValue)
}

func (l loader) int(key string, defaultValue int) int {
	if v, ok := l.defaults[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			defaultValue = n
		}
	}
	return getEnvAsInt(key, defaultValue)
}

func (l loader) bool(key string, defaultValue bool) bool {
	if v, ok := l.defaults[key]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			defaultValue = b
		}
	}
	return getEnvAsBool(key, defaultValue)
}

func (l loader) duration(key string, defaultValue time.Duration) time.Duration {
	if v, ok := l.defaults[key]; ok {
		if d, err := time.ParseDuration(v); err == nil {
			defaultValue = d
		}
	}
	return getEnvAsDuration(key, defaultValue)
}

func (l loader) list(key, defaultValue string) []string {
	var out []string
	for _, item := range strings.Split(l.get(key, defaultValue), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a bool with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
