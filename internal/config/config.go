package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/store/redis"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

type (
	// Config holds configuration settings for the orchestrator
	Config struct {
		// API Server
		APIHost       string
		APIPort       int
		PublicBaseURL string
		LogLevel      string

		// State Store
		StoreBackend string
		Redis        redis.Config

		// Archiving
		Archive ArchiveConfig

		// Retry
		Retry api.RetryConfig

		// Engine
		Workers         int
		StepTimeout     int64
		ShutdownTimeout time.Duration

		// Workflows
		ShippingWebhookURL string
	}

	// ArchiveConfig controls moving terminal instances to blob storage. An
	// empty BucketURL disables archiving
	ArchiveConfig struct {
		BucketURL     string
		Prefix        string
		MaxAge        time.Duration
		SweepInterval time.Duration
		BatchSize     int
	}
)

const (
	StoreBackendMemory  = "memory"
	StoreBackendRedis   = "redis"
	StoreBackendTimebox = "timebox"
)

const (
	DefaultStepTimeout     = 30 * api.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultAPIPort = 8080
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535
	DefaultRedisDB = 0
	DefaultWorkers = 8
	MaxWorkers     = 1024

	DefaultRedisEndpoint = "localhost:6379"
	DefaultRedisPrefix   = "orchestrator"

	DefaultArchivePrefix        = "instances/"
	DefaultArchiveMaxAge        = 24 * time.Hour
	DefaultArchiveSweepInterval = 5 * time.Minute
	DefaultArchiveBatchSize     = 100

	DefaultRetryMaxAttempts  = 5
	DefaultRetryInitBackoff  = 200
	DefaultRetryMaxBackoff   = 10000
	DefaultRetryBackoffType  = api.BackoffTypeExponential
	MaxRetryMaxAttempts      = 1000
	MaxStepTimeout           = 24 * 60 * api.Minute
	MaxRetryInitBackoff      = 60 * api.Minute
	MaxRetryMaxBackoff       = MaxRetryInitBackoff
	MaxArchiveBatchSize      = 10_000
	defaultPublicBaseURLHost = "localhost"
)

var (
	ErrInvalidAPIPort         = errors.New("invalid API port")
	ErrInvalidStepTimeout     = errors.New("step timeout must be positive")
	ErrInvalidWorkers         = errors.New("workers must be positive")
	ErrInvalidStoreBackend    = errors.New("invalid store backend")
	ErrInvalidRetryMaxAttempt = errors.New(
		"retry max attempts must be positive",
	)
	ErrInvalidRetryInitBackoff = errors.New(
		"retry initial backoff must be positive",
	)
	ErrInvalidRetryMaxBackoff = errors.New(
		"retry max backoff must be positive",
	)
	ErrRetryMaxBackoffTooSmall = errors.New(
		"retry max backoff must be >= retry initial backoff",
	)
	ErrInvalidRetryBackoffType = errors.New("invalid retry backoff type")
	ErrInvalidArchiveInterval  = errors.New(
		"archive sweep interval must be positive",
	)
	ErrInvalidDuration = errors.New("invalid duration")
)

// NewDefaultConfig creates a configuration with sensible defaults for the
// API server, state store, retry behavior, and worker pool
func NewDefaultConfig() *Config {
	return &Config{
		APIPort: DefaultAPIPort,
		APIHost: DefaultAPIHost,
		PublicBaseURL: fmt.Sprintf("http://%s:%d",
			defaultPublicBaseURLHost, DefaultAPIPort),
		StoreBackend: StoreBackendMemory,
		Redis: redis.Config{
			Addr:   DefaultRedisEndpoint,
			DB:     DefaultRedisDB,
			Prefix: DefaultRedisPrefix,
		},
		Archive: ArchiveConfig{
			Prefix:        DefaultArchivePrefix,
			MaxAge:        DefaultArchiveMaxAge,
			SweepInterval: DefaultArchiveSweepInterval,
			BatchSize:     DefaultArchiveBatchSize,
		},
		Retry: api.RetryConfig{
			MaxAttempts: DefaultRetryMaxAttempts,
			InitBackoff: DefaultRetryInitBackoff,
			MaxBackoff:  DefaultRetryMaxBackoff,
			BackoffType: DefaultRetryBackoffType,
		},
		Workers:         DefaultWorkers,
		StepTimeout:     DefaultStepTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		LogLevel:        "info",
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed
func (c *Config) LoadFromEnv() error {
	LoadRedisConfigFromEnv(&c.Redis)
	loadEnvString("API_HOST", &c.APIHost)
	loadEnvString("PUBLIC_BASE_URL", &c.PublicBaseURL)
	loadEnvString("LOG_LEVEL", &c.LogLevel)
	loadEnvString("STORE_BACKEND", &c.StoreBackend)
	loadEnvString("RETRY_BACKOFF_TYPE", &c.Retry.BackoffType)
	loadEnvString("ARCHIVE_BUCKET_URL", &c.Archive.BucketURL)
	loadEnvString("ARCHIVE_PREFIX", &c.Archive.Prefix)
	loadEnvString("SHIPPING_WEBHOOK_URL", &c.ShippingWebhookURL)

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt("WORKERS", &c.Workers, 0, MaxWorkers); err != nil {
		return err
	}
	if err := loadEnvInt(
		"STEP_TIMEOUT", &c.StepTimeout, 0, MaxStepTimeout,
	); err != nil {
		return err
	}

	if err := loadEnvInt(
		"RETRY_MAX_ATTEMPTS", &c.Retry.MaxAttempts, 0, MaxRetryMaxAttempts,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"RETRY_INITIAL_BACKOFF", &c.Retry.InitBackoff, 0, MaxRetryInitBackoff,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"RETRY_MAX_BACKOFF", &c.Retry.MaxBackoff, 0, MaxRetryMaxBackoff,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"ARCHIVE_BATCH_SIZE", &c.Archive.BatchSize, 0, MaxArchiveBatchSize,
	); err != nil {
		return err
	}

	if err := loadEnvDuration("ARCHIVE_MAX_AGE", &c.Archive.MaxAge); err != nil {
		return err
	}
	if err := loadEnvDuration(
		"ARCHIVE_SWEEP_INTERVAL", &c.Archive.SweepInterval,
	); err != nil {
		return err
	}
	return loadEnvDuration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)
}

// WithRetryDefaults returns a copy of the config with zero-valued retry
// fields filled in from defaults
func (c *Config) WithRetryDefaults() *Config {
	res := *c
	if res.Retry.MaxAttempts <= 0 {
		res.Retry.MaxAttempts = DefaultRetryMaxAttempts
	}
	if res.Retry.InitBackoff <= 0 {
		res.Retry.InitBackoff = DefaultRetryInitBackoff
	}
	if res.Retry.MaxBackoff <= 0 {
		res.Retry.MaxBackoff = DefaultRetryMaxBackoff
	}
	if res.Retry.BackoffType == "" {
		res.Retry.BackoffType = DefaultRetryBackoffType
	}
	return &res
}

// ArchiveEnabled reports whether terminal instances should be archived
func (c *Config) ArchiveEnabled() bool {
	return c.Archive.BucketURL != ""
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if c.StepTimeout <= 0 {
		return ErrInvalidStepTimeout
	}

	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}

	switch c.StoreBackend {
	case StoreBackendMemory, StoreBackendRedis, StoreBackendTimebox:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidStoreBackend, c.StoreBackend)
	}

	if err := c.validateRetry(); err != nil {
		return err
	}

	if c.ArchiveEnabled() && c.Archive.SweepInterval <= 0 {
		return ErrInvalidArchiveInterval
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts <= 0 {
		return ErrInvalidRetryMaxAttempt
	}

	if c.Retry.InitBackoff <= 0 {
		return ErrInvalidRetryInitBackoff
	}

	if c.Retry.MaxBackoff <= 0 {
		return ErrInvalidRetryMaxBackoff
	}

	if c.Retry.MaxBackoff < c.Retry.InitBackoff {
		return ErrRetryMaxBackoffTooSmall
	}

	if c.Retry.BackoffType != api.BackoffTypeFixed &&
		c.Retry.BackoffType != api.BackoffTypeLinear &&
		c.Retry.BackoffType != api.BackoffTypeExponential {
		return fmt.Errorf("%w: %s",
			ErrInvalidRetryBackoffType, c.Retry.BackoffType)
	}
	return nil
}

// LoadRedisConfigFromEnv loads Redis store configuration from the
// REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, and REDIS_PREFIX variables
func LoadRedisConfigFromEnv(r *redis.Config) {
	loadEnvString("REDIS_ADDR", &r.Addr)
	loadEnvString("REDIS_PASSWORD", &r.Password)
	loadEnvString("REDIS_PREFIX", &r.Prefix)
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		db, err := strconv.Atoi(dbStr)
		if err == nil && db >= 0 {
			r.DB = db
		}
	}
}

func loadEnvString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]. Returns an error if
// the value cannot be parsed or falls outside the valid range
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}

func loadEnvDuration(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fmt.Errorf("%w: %s=%q", ErrInvalidDuration, key, s)
	}
	*dst = d
	return nil
}
