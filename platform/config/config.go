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

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq-backed task scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetFullSweepInterval() time.Duration
	GetReservationSyncInterval() time.Duration
}

// EngineConfig provides settings for the reconciliation engine.
type EngineConfig interface {
	GetReconcileMaxAttempts() int
	GetReconcileRetryBase() time.Duration
	GetSweepWorkers() int
	IsDestructiveApplyEnabled() bool
	GetReservationGracePeriod() time.Duration
	GetActiveWindow() time.Duration
	GetStateDictionaryPath() string
}

// StatusCacheConfig provides settings for the status snapshot cache.
type StatusCacheConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetStatusCacheTTL() time.Duration
}

// ArchiveConfig provides settings for the sweep report archive (MinIO).
type ArchiveConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketSweepReports() string
	IsArchiveEnabled() bool
}

// MailConfig provides settings for drift alert emails.
type MailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetMailFromAddress() string
	GetMailAlertRecipients() []string
	GetDriftAlertThreshold() int
	IsMailEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                     string
	HTTPAddr                string
	DatabaseURL             string
	CORSAllowAll            bool
	CORSOrigins             []string
	CORSAllowCreds          bool
	RedisURL                string
	RedisTLSInsecure        bool
	AsynqQueueName          string
	AsynqConcurrency        int
	FullSweepInterval       time.Duration
	ReservationSyncInterval time.Duration
	ReconcileMaxAttempts    int
	ReconcileRetryBase      time.Duration
	SweepWorkers            int
	DestructiveApply        bool
	ReservationGracePeriod  time.Duration
	ActiveWindow            time.Duration
	StateDictionaryPath     string
	StatusCacheTTL          time.Duration
	MinIOEndpoint           string
	MinIOAccessKey          string
	MinIOSecretKey          string
	MinIOUseSSL             bool
	MinioBucketSweepReports string
	SMTPHost                string
	SMTPPort                int
	SMTPUsername            string
	SMTPPassword            string
	MailFromAddress         string
	MailAlertRecipients     []string
	DriftAlertThreshold     int
	MailEnabled             bool
}

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string                       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool                 { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string                 { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int                  { return c.AsynqConcurrency }
func (c *Config) GetFullSweepInterval() time.Duration       { return c.FullSweepInterval }
func (c *Config) GetReservationSyncInterval() time.Duration { return c.ReservationSyncInterval }

// EngineConfig implementation
func (c *Config) GetReconcileMaxAttempts() int             { return c.ReconcileMaxAttempts }
func (c *Config) GetReconcileRetryBase() time.Duration     { return c.ReconcileRetryBase }
func (c *Config) GetSweepWorkers() int                     { return c.SweepWorkers }
func (c *Config) IsDestructiveApplyEnabled() bool          { return c.DestructiveApply }
func (c *Config) GetReservationGracePeriod() time.Duration { return c.ReservationGracePeriod }
func (c *Config) GetActiveWindow() time.Duration           { return c.ActiveWindow }
func (c *Config) GetStateDictionaryPath() string           { return c.StateDictionaryPath }

// StatusCacheConfig implementation
func (c *Config) GetStatusCacheTTL() time.Duration { return c.StatusCacheTTL }

// ArchiveConfig implementation
func (c *Config) GetMinIOEndpoint() string           { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string          { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string          { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool               { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketSweepReports() string { return c.MinioBucketSweepReports }
func (c *Config) IsArchiveEnabled() bool             { return c.MinIOEndpoint != "" }

// MailConfig implementation
func (c *Config) GetSMTPHost() string              { return c.SMTPHost }
func (c *Config) GetSMTPPort() int                 { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string          { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string          { return c.SMTPPassword }
func (c *Config) GetMailFromAddress() string       { return c.MailFromAddress }
func (c *Config) GetMailAlertRecipients() []string { return c.MailAlertRecipients }
func (c *Config) GetDriftAlertThreshold() int      { return c.DriftAlertThreshold }
func (c *Config) IsMailEnabled() bool {
	return c.MailEnabled && c.SMTPHost != "" && len(c.MailAlertRecipients) > 0
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	mailEnabled := strings.EqualFold(getEnv("MAIL_ENABLED", "false"), "true")

	cfg := &Config{
		Env:                     getEnv("APP_ENV", "development"),
		HTTPAddr:                getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		CORSAllowAll:            strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true"),
		CORSOrigins:             splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200")),
		CORSAllowCreds:          strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:                getEnv("REDIS_URL", ""),
		RedisTLSInsecure:        strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:          getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:        mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		FullSweepInterval:       mustDuration(getEnv("FULL_SWEEP_INTERVAL", "6h")),
		ReservationSyncInterval: mustDuration(getEnv("RESERVATION_SYNC_INTERVAL", "1h")),
		ReconcileMaxAttempts:    mustInt(getEnv("RECONCILE_MAX_ATTEMPTS", "3")),
		ReconcileRetryBase:      mustDuration(getEnv("RECONCILE_RETRY_BASE", "100ms")),
		SweepWorkers:            mustInt(getEnv("SWEEP_WORKERS", "8")),
		DestructiveApply:        strings.EqualFold(getEnv("DESTRUCTIVE_APPLY_ENABLED", "false"), "true"),
		ReservationGracePeriod:  mustDuration(getEnv("RESERVATION_GRACE_PERIOD", "168h")),
		ActiveWindow:            mustDuration(getEnv("ENGINE_ACTIVE_WINDOW", "24h")),
		StateDictionaryPath:     getEnv("STATE_DICTIONARY_PATH", ""),
		StatusCacheTTL:          mustDuration(getEnv("STATUS_CACHE_TTL", "30s")),
		MinIOEndpoint:           getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:          getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:          getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:             strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketSweepReports: getEnv("MINIO_BUCKET_SWEEP_REPORTS", "sweep-reports"),
		SMTPHost:                getEnv("SMTP_HOST", ""),
		SMTPPort:                mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:            getEnv("SMTP_USERNAME", ""),
		SMTPPassword:            getEnv("SMTP_PASSWORD", ""),
		MailFromAddress:         getEnv("MAIL_FROM_ADDRESS", ""),
		MailAlertRecipients:     splitCSV(getEnv("MAIL_ALERT_RECIPIENTS", "")),
		DriftAlertThreshold:     mustInt(getEnv("DRIFT_ALERT_THRESHOLD", "10")),
		MailEnabled:             mailEnabled,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if mailEnabled && cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP_HOST is required when MAIL_ENABLED is true")
	}
	if mailEnabled && cfg.MailFromAddress == "" {
		return nil, fmt.Errorf("MAIL_FROM_ADDRESS is required when MAIL_ENABLED is true")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
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
	result, err := strconv.Atoi(value)
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
