package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// LogLevel represents the logging severity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Environment constants.
const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
	EnvironmentTest        = "test"
)

const defaultDatabaseFilename = "poplift.db"

// Config encapsulates runtime configuration sourced from environment variables.
type Config struct {
	AppName     string `envconfig:"POPLIFT_APP_NAME" default:"poplift"`
	Environment string `envconfig:"POPLIFT_ENV" default:"development"`
	Port        string `envconfig:"POPLIFT_PORT" default:"8080"`
	Debug       bool   `envconfig:"POPLIFT_DEBUG" default:"false"`

	LogLevel         LogLevel `envconfig:"POPLIFT_LOG_LEVEL" default:"info"`
	LogsDirectory    string   `envconfig:"POPLIFT_LOGS_DIR" default:"storage/logs"`
	LogsMaxSizeInMB  int      `envconfig:"POPLIFT_LOGS_MAX_SIZE_MB" default:"20"`
	LogsMaxBackups   int      `envconfig:"POPLIFT_LOGS_MAX_BACKUPS" default:"10"`
	LogsMaxAgeInDays int      `envconfig:"POPLIFT_LOGS_MAX_AGE_DAYS" default:"30"`

	// Public base URL of the application, used to build the embeddable snippet.
	AppURL string `envconfig:"POPLIFT_APP_URL" default:"http://localhost:8080"`

	// Service-role connection string (Supabase Postgres). Empty means local SQLite.
	DatabaseURL string `envconfig:"POPLIFT_DATABASE_URL"`
	// Anon-role connection string used by public routes. Falls back to DatabaseURL.
	DatabaseAnonURL      string `envconfig:"POPLIFT_DATABASE_ANON_URL"`
	DataDirectory        string `envconfig:"POPLIFT_DATA_DIR" default:"storage"`
	DatabaseFilename     string `envconfig:"POPLIFT_DATABASE_FILENAME" default:"poplift.db"`
	DatabasePathOverride string `envconfig:"POPLIFT_DATABASE_PATH"`
	DatabasePath         string
	DatabaseMaxOpenConns int  `envconfig:"POPLIFT_DB_MAX_OPEN_CONNS" default:"0"`
	DatabaseMaxIdleConns int  `envconfig:"POPLIFT_DB_MAX_IDLE_CONNS" default:"0"`
	AutoMigrate          bool `envconfig:"POPLIFT_AUTO_MIGRATE" default:"true"`

	// Security: secret the auth service signs bearer tokens with.
	JWTSecret   string `envconfig:"POPLIFT_JWT_SECRET"`
	JWTAudience string `envconfig:"POPLIFT_JWT_AUDIENCE" default:"authenticated"`
	// Security: key for hashing visitor IP addresses before storage.
	AnonSalt string `envconfig:"POPLIFT_ANON_SALT"`

	// Optional shared counter for rate limiting across instances.
	RedisURL string `envconfig:"POPLIFT_REDIS_URL"`

	RateLimitSweepThreshold int           `envconfig:"POPLIFT_RATELIMIT_SWEEP_THRESHOLD" default:"10000"`
	AnalyticsRetentionDays  int           `envconfig:"POPLIFT_ANALYTICS_RETENTION_DAYS" default:"400"`
	MaintenanceInterval     time.Duration `envconfig:"POPLIFT_MAINTENANCE_INTERVAL" default:"10m"`
	MaxConcurrentWrites     int           `envconfig:"POPLIFT_MAX_CONCURRENT_WRITES" default:"8"`
}

var (
	cfgOnce sync.Once
	cfgInst *Config
)

// Get returns the singleton configuration instance populated from environment variables.
func Get() *Config {
	cfgOnce.Do(func() {
		cfgInst = &Config{}
		if err := envconfig.Process("", cfgInst); err != nil {
			log.Fatalf("config: failed to process environment variables: %v", err)
		}

		cfgInst.DatabasePath = cfgInst.resolveDatabasePath()
		cfgInst.ensureDirectories()

		if err := cfgInst.Validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}
	})
	return cfgInst
}

func (c *Config) Validate() error {
	var problems []string

	if c.IsProduction() {
		if c.JWTSecret == "" {
			problems = append(problems, "POPLIFT_JWT_SECRET is REQUIRED in production (copy it from the auth provider settings)")
		}
		if c.AnonSalt == "" {
			problems = append(problems, "POPLIFT_ANON_SALT is REQUIRED in production (generate with: openssl rand -hex 32)")
		}
		if c.DatabaseURL == "" {
			problems = append(problems, "POPLIFT_DATABASE_URL is REQUIRED in production")
		}
	} else {
		if c.JWTSecret == "" {
			c.JWTSecret = generateSecret()
			log.Println("⚠️  POPLIFT_JWT_SECRET not set - generated random secret (issued tokens are invalidated on restart)")
		}
		if c.AnonSalt == "" {
			c.AnonSalt = generateSecret()
			log.Println("⚠️  POPLIFT_ANON_SALT not set - generated random salt (visitor hashes will change on restart)")
		}
	}

	switch c.Environment {
	case EnvironmentDevelopment, EnvironmentProduction, EnvironmentTest:
	default:
		problems = append(problems, fmt.Sprintf("invalid POPLIFT_ENV value %q", c.Environment))
	}

	if c.RateLimitSweepThreshold <= 0 {
		problems = append(problems, "POPLIFT_RATELIMIT_SWEEP_THRESHOLD must be positive")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func generateSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("failed to generate random secret: %v", err)
	}
	return hex.EncodeToString(b)
}

// DatabaseDSN returns the service-tier DSN: the configured URL or the SQLite path.
func (c *Config) DatabaseDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DatabasePath
}

// AnonDatabaseDSN returns the anon-tier DSN, or "" when public routes share the service pool.
func (c *Config) AnonDatabaseDSN() string {
	return c.DatabaseAnonURL
}

// UsesPostgres reports whether the DSN points at a Postgres server.
func UsesPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// IsDevelopment reports whether the application runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvironmentDevelopment
}

// IsProduction reports whether the application runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

// IsTest reports whether the application runs in test mode.
func (c *Config) IsTest() bool {
	return c.Environment == EnvironmentTest
}

// GetMaxOpenConns returns configured or environment-specific max open connections.
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}
	if c.IsProduction() {
		return 10
	}
	return 1
}

// GetMaxIdleConns returns configured or environment-specific max idle connections.
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}
	if c.IsProduction() {
		return 5
	}
	return 1
}

// SnippetBaseURL returns AppURL without a trailing slash.
func (c *Config) SnippetBaseURL() string {
	return strings.TrimRight(strings.TrimSpace(c.AppURL), "/")
}

func (c *Config) ensureDirectories() {
	if err := os.MkdirAll(c.DataDirectory, 0o755); err != nil {
		log.Printf("config: failed to create data directory %q: %v", c.DataDirectory, err)
	}

	if err := os.MkdirAll(c.LogsDirectory, 0o755); err != nil {
		log.Printf("config: failed to create logs directory %q: %v", c.LogsDirectory, err)
	}
}

func (c *Config) resolveDatabasePath() string {
	if c.DatabasePathOverride != "" {
		if filepath.IsAbs(c.DatabasePathOverride) {
			return c.DatabasePathOverride
		}
		return filepath.Join(c.DataDirectory, c.DatabasePathOverride)
	}

	filename := c.DatabaseFilename
	if filename == "" {
		filename = defaultDatabaseFilename
	}

	if strings.EqualFold(filename, defaultDatabaseFilename) {
		filename = addEnvironmentSuffix(filename, c.Environment)
	}

	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(c.DataDirectory, filename)
}

func addEnvironmentSuffix(filename, environment string) string {
	env := strings.ToLower(strings.TrimSpace(environment))
	if env == "" {
		env = EnvironmentDevelopment
	}

	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	if ext == "" {
		ext = ".db"
	}
	return fmt.Sprintf("%s.%s%s", base, env, ext)
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	cfgOnce = sync.Once{}
	cfgInst = nil
}
