package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Database   DatabaseConfig   `yaml:"database"`
	Engagement EngagementConfig `yaml:"engagement"`
	Redis      RedisConfig      `yaml:"redis"`
	SQS        SQSConfig        `yaml:"sqs"`
	AWS        AWSConfig        `yaml:"aws"`
	Storage    StorageConfig    `yaml:"storage"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	CORS       CORSConfig       `yaml:"cors"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds API server configuration
type ServerConfig struct {
	Port                   int    `yaml:"port"`
	Host                   string `yaml:"host"`
	ReadTimeoutSeconds     int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// Event sink choices for the tracking edge.
const (
	SinkDispatcher = "dispatcher"
	SinkSQS        = "sqs"
)

// TrackingConfig holds the pixel/redirect edge and recorder settings
type TrackingConfig struct {
	Port            int    `yaml:"port"`
	BaseURL         string `yaml:"base_url"`
	Sink            string `yaml:"sink"`
	Workers         int    `yaml:"workers"`
	QueueSize       int    `yaml:"queue_size"`
	RecordTimeoutMs int    `yaml:"record_timeout_ms"`
	MaxRetries      int    `yaml:"max_retries"`
	RetryInitialMs  int    `yaml:"retry_initial_ms"`
}

func (c TrackingConfig) RecordTimeout() time.Duration {
	return time.Duration(c.RecordTimeoutMs) * time.Millisecond
}

func (c TrackingConfig) RetryInitial() time.Duration {
	return time.Duration(c.RetryInitialMs) * time.Millisecond
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	MigrateOnStart         bool   `yaml:"migrate_on_start"`
}

func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// Engagement record backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

// EngagementConfig selects where engagement records live
type EngagementConfig struct {
	Backend       string `yaml:"backend"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// RedisConfig holds the Redis connection used by the engagement backend and
// the distributed lock. An empty URL disables Redis.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SQSConfig holds the tracking event queue
type SQSConfig struct {
	QueueURL string `yaml:"queue_url"`
}

// AWSConfig holds shared AWS SDK settings
type AWSConfig struct {
	Region  string `yaml:"region"`
	Profile string `yaml:"profile"` // Empty string uses default credential chain (IAM role on ECS)
}

// GetProfile returns the AWS profile, with environment variable override
func (c AWSConfig) GetProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.Profile
}

// Report archive types.
const (
	StorageLog   = "log"
	StorageLocal = "local"
	StorageS3    = "s3"
)

// StorageConfig holds where reconciliation reports are archived
type StorageConfig struct {
	Type      string `yaml:"type"`
	LocalPath string `yaml:"local_path"`
	S3Bucket  string `yaml:"s3_bucket"`
	S3Prefix  string `yaml:"s3_prefix"`
}

// ReconcileConfig holds the record reconciliation job settings
type ReconcileConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Schedule       string `yaml:"schedule"`
	GraceMinutes   int    `yaml:"grace_minutes"`
	DetectOnly     bool   `yaml:"detect_only"`
	BatchSize      int    `yaml:"batch_size"`
	LockTTLMinutes int    `yaml:"lock_ttl_minutes"`
}

func (c ReconcileConfig) Grace() time.Duration {
	return time.Duration(c.GraceMinutes) * time.Minute
}

// Repair reports whether divergent pairs are raised to their maximum.
// Repair is on unless detect_only is set.
func (c ReconcileConfig) Repair() bool {
	return !c.DetectOnly
}

func (c ReconcileConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// AnalyticsConfig holds the circuit breaker guarding analytics reads
type AnalyticsConfig struct {
	BreakerFailureThreshold uint32 `yaml:"breaker_failure_threshold"`
	BreakerOpenSeconds      int    `yaml:"breaker_open_seconds"`
}

func (c AnalyticsConfig) BreakerOpen() time.Duration {
	return time.Duration(c.BreakerOpenSeconds) * time.Second
}

// CORSConfig holds the origins allowed to call the API
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RateLimitConfig holds the per-IP API request limit
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level            string `yaml:"level"`
	DisableRedaction bool   `yaml:"disable_redaction"`
}

// Load reads a YAML config file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 30
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 15
	}

	if cfg.Tracking.Port == 0 {
		cfg.Tracking.Port = 8081
	}
	if cfg.Tracking.BaseURL == "" {
		cfg.Tracking.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Tracking.Port)
	}
	if cfg.Tracking.Sink == "" {
		cfg.Tracking.Sink = SinkDispatcher
	}
	if cfg.Tracking.Workers == 0 {
		cfg.Tracking.Workers = 8
	}
	if cfg.Tracking.QueueSize == 0 {
		cfg.Tracking.QueueSize = 4096
	}
	if cfg.Tracking.RecordTimeoutMs == 0 {
		cfg.Tracking.RecordTimeoutMs = 5000
	}
	if cfg.Tracking.MaxRetries == 0 {
		cfg.Tracking.MaxRetries = 3
	}
	if cfg.Tracking.RetryInitialMs == 0 {
		cfg.Tracking.RetryInitialMs = 50
	}

	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}

	if cfg.Engagement.Backend == "" {
		cfg.Engagement.Backend = BackendPostgres
	}
	if cfg.Engagement.RedisPrefix == "" {
		cfg.Engagement.RedisPrefix = "engagement:"
	}

	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-west-2"
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = StorageLog
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./data/reconcile"
	}
	if cfg.Storage.S3Prefix == "" {
		cfg.Storage.S3Prefix = "reconcile"
	}

	if cfg.Reconcile.Schedule == "" {
		cfg.Reconcile.Schedule = "*/15 * * * *"
	}
	if cfg.Reconcile.GraceMinutes == 0 {
		cfg.Reconcile.GraceMinutes = 10
	}
	if cfg.Reconcile.BatchSize == 0 {
		cfg.Reconcile.BatchSize = 500
	}
	if cfg.Reconcile.LockTTLMinutes == 0 {
		cfg.Reconcile.LockTTLMinutes = 10
	}

	if cfg.Analytics.BreakerFailureThreshold == 0 {
		cfg.Analytics.BreakerFailureThreshold = 5
	}
	if cfg.Analytics.BreakerOpenSeconds == 0 {
		cfg.Analytics.BreakerOpenSeconds = 30
	}

	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads .env, then the YAML file at path if one exists, then
// applies environment overrides. A missing file falls back to defaults so
// containers can be configured from the environment alone.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	var cfg *Config
	if _, statErr := os.Stat(path); path != "" && statErr == nil {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = &Config{}
		cfg.applyDefaults()
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TRACKING_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Tracking.Port = port
		}
	}
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}
	if v := os.Getenv("TRACKING_SINK"); v != "" {
		cfg.Tracking.Sink = v
	}

	// Database override (critical for ECS deployment where config.yaml has local defaults)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("SQS_TRACKING_QUEUE_URL"); v != "" {
		cfg.SQS.QueueURL = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("ENGAGEMENT_BACKEND"); v != "" {
		cfg.Engagement.Backend = v
	}
	if v := os.Getenv("DYNAMODB_ENGAGEMENT_TABLE"); v != "" {
		cfg.Engagement.DynamoDBTable = v
	}
	if v := os.Getenv("RECONCILE_REPORT_BUCKET"); v != "" {
		cfg.Storage.Type = StorageS3
		cfg.Storage.S3Bucket = v
	}
	if v := os.Getenv("RECONCILE_REPAIR"); v != "" {
		if repair, err := strconv.ParseBool(v); err == nil {
			cfg.Reconcile.DetectOnly = !repair
		}
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORS.AllowedOrigins = origins
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}

// Validate reports every inconsistent setting at once.
func (cfg *Config) Validate() error {
	var errs []error
	switch cfg.Tracking.Sink {
	case SinkDispatcher:
	case SinkSQS:
		if cfg.SQS.QueueURL == "" {
			errs = append(errs, errors.New("tracking.sink is sqs but sqs.queue_url is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown tracking.sink %q", cfg.Tracking.Sink))
	}

	switch cfg.Engagement.Backend {
	case BackendPostgres, BackendMemory:
	case BackendRedis:
		if cfg.Redis.URL == "" {
			errs = append(errs, errors.New("engagement.backend is redis but redis.url is empty"))
		}
	case BackendDynamoDB:
		if cfg.Engagement.DynamoDBTable == "" {
			errs = append(errs, errors.New("engagement.backend is dynamodb but engagement.dynamodb_table is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown engagement.backend %q", cfg.Engagement.Backend))
	}

	switch cfg.Storage.Type {
	case StorageLog, StorageLocal:
	case StorageS3:
		if cfg.Storage.S3Bucket == "" {
			errs = append(errs, errors.New("storage.type is s3 but storage.s3_bucket is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.type %q", cfg.Storage.Type))
	}

	if cfg.Engagement.Backend != BackendMemory && cfg.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	return errors.Join(errs...)
}
