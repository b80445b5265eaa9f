package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	// Server
	GinMode       string        `mapstructure:"GIN_MODE"`
	ServerHost    string        `mapstructure:"SERVER_HOST"`
	ServerPort    string        `mapstructure:"SERVER_PORT"`
	ServerTimeout time.Duration `mapstructure:"SERVER_TIMEOUT_SECONDS"`

	// Database
	DBHost            string        `mapstructure:"DB_HOST"`
	DBPort            string        `mapstructure:"DB_PORT"`
	DBUser            string        `mapstructure:"DB_USER"`
	DBPassword        string        `mapstructure:"DB_PASSWORD"`
	DBName            string        `mapstructure:"DB_NAME"`
	DBSSLMode         string        `mapstructure:"DB_SSL_MODE"`
	DBTimezone        string        `mapstructure:"DB_TIMEZONE"`
	DBMaxIdleConns    int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBMaxOpenConns    int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBConnMaxLifetime time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`
	DBMigrateOnStart  bool          `mapstructure:"DB_MIGRATE_ON_START"`

	// Logging
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// Firebase (authentication provider)
	FirebaseServiceAccountKeyPath string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_KEY_PATH"`
	FirebaseProjectID             string `mapstructure:"FIREBASE_PROJECT_ID"`

	// Redis (continuation tokens, finalize guard). Optional: memory stores
	// are used when unset.
	RedisURL string `mapstructure:"REDIS_URL"`

	// RabbitMQ notification side-channel. Optional: noop publisher when unset.
	RabbitURL      string `mapstructure:"RABBIT_URL"`
	RabbitExchange string `mapstructure:"RABBIT_EXCHANGE"`

	// Onboarding
	AppBaseURL            string        `mapstructure:"APP_BASE_URL"`
	DefaultCommunity      string        `mapstructure:"DEFAULT_COMMUNITY"`
	OrphanFastPathMaxAge  time.Duration `mapstructure:"ORPHAN_FAST_PATH_MAX_AGE_HOURS"`
	ContinuationSecret    string        `mapstructure:"CONTINUATION_TOKEN_SECRET"`
	ContinuationTTL       time.Duration `mapstructure:"CONTINUATION_TOKEN_TTL_MINUTES"`
	FinalizeGuardTTL      time.Duration `mapstructure:"FINALIZE_GUARD_TTL_MINUTES"`
	InvitePointsAward     int64         `mapstructure:"INVITE_POINTS_AWARD"`
	MagicLinkRedirectPath string        `mapstructure:"MAGIC_LINK_REDIRECT_PATH"`

	// Cron jobs
	OrphanSweepJobSchedule string `mapstructure:"ORPHAN_SWEEP_JOB_SCHEDULE"`
}

// Load attempts to load configuration from a .env file (if present) and environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	v := viper.New()

	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_TIMEOUT_SECONDS", 30)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "neighborvendors_db")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_TIMEZONE", "UTC")
	v.SetDefault("DB_MAX_IDLE_CONNS", 10)
	v.SetDefault("DB_MAX_OPEN_CONNS", 100)
	v.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 60)
	v.SetDefault("DB_MIGRATE_ON_START", true)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	v.SetDefault("FIREBASE_PROJECT_ID", "")
	v.SetDefault("FIREBASE_SERVICE_ACCOUNT_KEY_PATH", "")

	v.SetDefault("REDIS_URL", "")
	v.SetDefault("RABBIT_URL", "")
	v.SetDefault("RABBIT_EXCHANGE", "onboarding.events")

	v.SetDefault("APP_BASE_URL", "http://localhost:3000")
	v.SetDefault("DEFAULT_COMMUNITY", "general")
	v.SetDefault("ORPHAN_FAST_PATH_MAX_AGE_HOURS", 48)
	v.SetDefault("CONTINUATION_TOKEN_SECRET", "")
	v.SetDefault("CONTINUATION_TOKEN_TTL_MINUTES", 30)
	v.SetDefault("FINALIZE_GUARD_TTL_MINUTES", 10)
	v.SetDefault("INVITE_POINTS_AWARD", 50)
	v.SetDefault("MAGIC_LINK_REDIRECT_PATH", "/auth/complete")

	v.SetDefault("ORPHAN_SWEEP_JOB_SCHEDULE", "@daily")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling configuration: %w", err)
	}

	// Convert duration fields expressed as plain numbers in the environment.
	cfg.ServerTimeout = time.Duration(v.GetInt("SERVER_TIMEOUT_SECONDS")) * time.Second
	cfg.DBConnMaxLifetime = time.Duration(v.GetInt("DB_CONN_MAX_LIFETIME_MINUTES")) * time.Minute
	cfg.OrphanFastPathMaxAge = time.Duration(v.GetInt("ORPHAN_FAST_PATH_MAX_AGE_HOURS")) * time.Hour
	cfg.ContinuationTTL = time.Duration(v.GetInt("CONTINUATION_TOKEN_TTL_MINUTES")) * time.Minute
	cfg.FinalizeGuardTTL = time.Duration(v.GetInt("FINALIZE_GUARD_TTL_MINUTES")) * time.Minute

	if cfg.FirebaseServiceAccountKeyPath == "" {
		return nil, fmt.Errorf("FATAL: FIREBASE_SERVICE_ACCOUNT_KEY_PATH is not set. This is required for Firebase Admin SDK initialization")
	}
	if _, err := os.Stat(cfg.FirebaseServiceAccountKeyPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("FATAL: Firebase service account key file specified in FIREBASE_SERVICE_ACCOUNT_KEY_PATH (%s) not found", cfg.FirebaseServiceAccountKeyPath)
	}
	if cfg.ContinuationSecret == "" {
		return nil, fmt.Errorf("FATAL: CONTINUATION_TOKEN_SECRET is not set. This is required for signing continuation tokens")
	}

	return &cfg, nil
}

// DatabaseDSN builds the GORM DSN from the individual DB_* parameters.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode, c.DBTimezone)
}

// DatabaseURL builds the URL form of the DSN used by golang-migrate.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}
