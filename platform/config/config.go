// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// CronConfig provides the shared secret the external scheduler presents.
type CronConfig interface {
	GetCronSecret() string
}

// SchedulerConfig provides redis/asynq settings for the periodic scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetReconcileCron() string
}

// ReconcileConfig provides tuning for the inbox reconciliation run.
type ReconcileConfig interface {
	GetReconcileLookback() time.Duration
	GetReconcileOverlap() time.Duration
	GetReconcileMaxLookback() time.Duration
	GetReconcilePageSize() int
	GetReconcileConcurrency() int
	GetReconcileFetchTimeout() time.Duration
	GetReconcileRunTimeout() time.Duration
	GetBounceRateThreshold() float64
	GetBounceWindow() time.Duration
	GetBounceRulesPath() string
}

// ProviderConfig provides mailbox provider settings.
type ProviderConfig interface {
	GetGmailEndpoint() string
	GetGmailRequestsPerSecond() float64
	GetGraphBaseURL() string
	GetGraphRequestsPerSecond() float64
	GetGraphBounceDetection() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                    string
	HTTPAddr               string
	DatabaseURL            string
	JWTAccessSecret        string
	CORSAllowAll           bool
	CORSOrigins            []string
	CORSAllowCreds         bool
	CronSecret             string
	RedisURL               string
	RedisTLSInsecure       bool
	AsynqQueueName         string
	AsynqConcurrency       int
	ReconcileCron          string
	ReconcileLookback      time.Duration
	ReconcileOverlap       time.Duration
	ReconcileMaxLookback   time.Duration
	ReconcilePageSize      int
	ReconcileConcurrency   int
	ReconcileFetchTimeout  time.Duration
	ReconcileRunTimeout    time.Duration
	BounceRateThreshold    float64
	BounceWindow           time.Duration
	BounceRulesPath        string
	GmailEndpoint          string
	GmailRequestsPerSecond float64
	GraphBaseURL           string
	GraphRequestsPerSecond float64
	GraphBounceDetection   bool
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// CronConfig implementation
func (c *Config) GetCronSecret() string { return c.CronSecret }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool  { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string  { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int   { return c.AsynqConcurrency }
func (c *Config) GetReconcileCron() string   { return c.ReconcileCron }

// ReconcileConfig implementation
func (c *Config) GetReconcileLookback() time.Duration     { return c.ReconcileLookback }
func (c *Config) GetReconcileOverlap() time.Duration      { return c.ReconcileOverlap }
func (c *Config) GetReconcileMaxLookback() time.Duration  { return c.ReconcileMaxLookback }
func (c *Config) GetReconcilePageSize() int               { return c.ReconcilePageSize }
func (c *Config) GetReconcileConcurrency() int            { return c.ReconcileConcurrency }
func (c *Config) GetReconcileFetchTimeout() time.Duration { return c.ReconcileFetchTimeout }
func (c *Config) GetReconcileRunTimeout() time.Duration   { return c.ReconcileRunTimeout }
func (c *Config) GetBounceRateThreshold() float64         { return c.BounceRateThreshold }
func (c *Config) GetBounceWindow() time.Duration          { return c.BounceWindow }
func (c *Config) GetBounceRulesPath() string              { return c.BounceRulesPath }

// ProviderConfig implementation
func (c *Config) GetGmailEndpoint() string           { return c.GmailEndpoint }
func (c *Config) GetGmailRequestsPerSecond() float64 { return c.GmailRequestsPerSecond }
func (c *Config) GetGraphBaseURL() string            { return c.GraphBaseURL }
func (c *Config) GetGraphRequestsPerSecond() float64 { return c.GraphRequestsPerSecond }
func (c *Config) GetGraphBounceDetection() bool      { return c.GraphBounceDetection }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                    getEnv("APP_ENV", "development"),
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		JWTAccessSecret:        getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:           corsAllowAll,
		CORSOrigins:            corsOrigins,
		CORSAllowCreds:         strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		CronSecret:             getEnv("CRON_SECRET", ""),
		RedisURL:               getEnv("REDIS_URL", ""),
		RedisTLSInsecure:       strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:         getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:       mustInt(getEnv("ASYNQ_CONCURRENCY", "2")),
		ReconcileCron:          getEnv("RECONCILE_CRON", "@every 1h"),
		ReconcileLookback:      mustDuration(getEnv("RECONCILE_LOOKBACK", "1h")),
		ReconcileOverlap:       mustDuration(getEnv("RECONCILE_OVERLAP", "30m")),
		ReconcileMaxLookback:   mustDuration(getEnv("RECONCILE_MAX_LOOKBACK", "24h")),
		ReconcilePageSize:      mustInt(getEnv("RECONCILE_PAGE_SIZE", "50")),
		ReconcileConcurrency:   mustInt(getEnv("RECONCILE_CONCURRENCY", "4")),
		ReconcileFetchTimeout:  mustDuration(getEnv("RECONCILE_FETCH_TIMEOUT", "30s")),
		ReconcileRunTimeout:    mustDuration(getEnv("RECONCILE_RUN_TIMEOUT", "25m")),
		BounceRateThreshold:    mustFloat(getEnv("BOUNCE_RATE_THRESHOLD", "0.05")),
		BounceWindow:           mustDuration(getEnv("BOUNCE_WINDOW", "168h")),
		BounceRulesPath:        getEnv("BOUNCE_RULES_PATH", ""),
		GmailEndpoint:          getEnv("GMAIL_API_ENDPOINT", ""),
		GmailRequestsPerSecond: mustFloat(getEnv("GMAIL_REQUESTS_PER_SECOND", "20")),
		GraphBaseURL:           getEnv("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"),
		GraphRequestsPerSecond: mustFloat(getEnv("GRAPH_REQUESTS_PER_SECOND", "10")),
		GraphBounceDetection:   strings.EqualFold(getEnv("GRAPH_BOUNCE_DETECTION", "true"), "true"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if c.ReconcilePageSize < 1 || c.ReconcilePageSize > 500 {
		return fmt.Errorf("RECONCILE_PAGE_SIZE must be between 1 and 500")
	}
	if c.ReconcileConcurrency < 1 {
		return fmt.Errorf("RECONCILE_CONCURRENCY must be at least 1")
	}
	if c.ReconcileLookback <= 0 || c.ReconcileFetchTimeout <= 0 || c.ReconcileRunTimeout <= 0 || c.BounceWindow <= 0 {
		return fmt.Errorf("RECONCILE_LOOKBACK, RECONCILE_FETCH_TIMEOUT, RECONCILE_RUN_TIMEOUT and BOUNCE_WINDOW must be positive durations")
	}
	if c.ReconcileFetchTimeout > c.ReconcileRunTimeout {
		return fmt.Errorf("RECONCILE_FETCH_TIMEOUT cannot exceed RECONCILE_RUN_TIMEOUT")
	}
	if c.ReconcileMaxLookback < c.ReconcileLookback+c.ReconcileOverlap {
		return fmt.Errorf("RECONCILE_MAX_LOOKBACK must cover RECONCILE_LOOKBACK plus RECONCILE_OVERLAP")
	}
	if c.BounceRateThreshold <= 0 || c.BounceRateThreshold >= 1 {
		return fmt.Errorf("BOUNCE_RATE_THRESHOLD must be between 0 and 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
