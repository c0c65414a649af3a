package config

import (
	"time"
)

// Config holds the application configuration
type Config struct {
	// Server settings
	Port        int
	Environment string
	Version     string
	StartTime   time.Time

	// CORS settings
	CORS CORSConfig

	// Rate limiting
	RateLimit RateLimitConfig

	// Dependencies
	Database DatabaseConfig
	Redis    RedisConfig

	// Aggregation pipeline
	Analytics AnalyticsConfig

	// Log output
	Logging LoggingConfig
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Global is the per-client request allowance per minute; zero disables
	// limiting.
	Global int
}

// DatabaseConfig holds the analytics data source connection settings
type DatabaseConfig struct {
	URL          string
	MaxConns     int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// RedisConfig holds the metrics cache settings. An empty Addr disables the
// cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// AnalyticsConfig holds aggregation pipeline settings
type AnalyticsConfig struct {
	// LookbackDays is the default filter window when no dates are supplied.
	LookbackDays int
	// DefaultRoleName is resolved through the role directory when a filter
	// carries no usable role id.
	DefaultRoleName string
	// ReportBaseURL is interpolated into download URLs on saved records.
	ReportBaseURL string
	// BlobRoot is the filesystem root for rendered report files.
	BlobRoot string
	// QueryTimeout bounds each metric query; a timeout degrades that one
	// metric, it does not abort the run.
	QueryTimeout time.Duration
	// TopN bounds the most-used-features / most-visited-screens / drop-off
	// result sizes.
	TopN int
	// DailyCronSpec schedules the per-tenant daily aggregation run.
	DailyCronSpec string
	// TestCronSpec optionally adds a high-frequency schedule for testing;
	// empty disables it.
	TestCronSpec string
	// ReportRetention bounds how long rendered report files are kept.
	ReportRetention time.Duration
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level      string
	FilePath   string // empty logs to stdout only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Defaults returns the built-in configuration used when no overrides are set.
func Defaults() *Config {
	return &Config{
		Port:        8080,
		Environment: "development",
		Version:     "1.0.0",
		StartTime:   time.Now(),
		CORS: CORSConfig{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Global: 100,
		},
		Redis: RedisConfig{
			CacheTTL: 10 * time.Minute,
		},
		Analytics: AnalyticsConfig{
			LookbackDays:    900,
			DefaultRoleName: "Patient",
			ReportBaseURL:   "http://localhost:8080",
			BlobRoot:        "./data/reports",
			QueryTimeout:    30 * time.Second,
			TopN:            10,
			DailyCronSpec:   "0 2 * * *",
			ReportRetention: 30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}
