// Package config centralizes how ReelDrop reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Backend selectors accepted by the *Backend fields.
const (
	CacheBackendPostgres = "postgres"
	CacheBackendDynamo   = "dynamodb"
	CacheBackendMemory   = "memory"

	StoreBackendMinio = "minio"
	StoreBackendS3    = "s3"

	SchedulerAsynq = "asynq"
	SchedulerTimer = "timer"
)

// Config represents runtime configuration for the bot.
type Config struct {
	Address   string `env:"REELDROP_ADDRESS" envDefault:":8080"`
	LogLevel  string `env:"REELDROP_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"REELDROP_LOG_FORMAT" envDefault:"json"`

	// Resource caps applied to every retrieval.
	MaxDuration time.Duration `env:"REELDROP_MAX_DURATION" envDefault:"60s"`
	MaxFileSize int64         `env:"REELDROP_MAX_FILE_BYTES" envDefault:"8388608"`
	Container   string        `env:"REELDROP_CONTAINER" envDefault:"mp4"`

	Retention   time.Duration `env:"REELDROP_RETENTION" envDefault:"1h"`
	VerifyCache bool          `env:"REELDROP_VERIFY_CACHE" envDefault:"true"`

	Workers    int           `env:"REELDROP_WORKERS" envDefault:"4"`
	QueueDepth int           `env:"REELDROP_QUEUE_DEPTH" envDefault:"64"`
	JobTimeout time.Duration `env:"REELDROP_JOB_TIMEOUT" envDefault:"3m"`

	SessionCapacity int           `env:"REELDROP_SESSION_CAPACITY" envDefault:"10000"`
	SessionIdleTTL  time.Duration `env:"REELDROP_SESSION_IDLE_TTL" envDefault:"24h"`

	CatalogTimeout    time.Duration `env:"REELDROP_CATALOG_TIMEOUT" envDefault:"15s"`
	FetchTimeout      time.Duration `env:"REELDROP_FETCH_TIMEOUT" envDefault:"60s"`
	PublishTimeout    time.Duration `env:"REELDROP_PUBLISH_TIMEOUT" envDefault:"60s"`
	DeliveryTimeout   time.Duration `env:"REELDROP_DELIVERY_TIMEOUT" envDefault:"20s"`
	GenerationTimeout time.Duration `env:"REELDROP_GENERATION_TIMEOUT" envDefault:"45s"`

	VerifyToken     string `env:"MESSENGER_VERIFY_TOKEN"`
	PageAccessToken string `env:"MESSENGER_PAGE_ACCESS_TOKEN"`
	GraphURL        string `env:"MESSENGER_GRAPH_URL" envDefault:"https://graph.facebook.com/v13.0"`

	MistralAPIKey  string `env:"MISTRAL_API_KEY"`
	MistralBaseURL string `env:"MISTRAL_BASE_URL" envDefault:"https://api.mistral.ai/v1"`
	MistralModel   string `env:"MISTRAL_MODEL" envDefault:"mistral-large-latest"`

	YouTubeAPIKey string `env:"YOUTUBE_API_KEY"`

	CacheBackend string `env:"REELDROP_CACHE_BACKEND" envDefault:"postgres"`
	DatabaseURL  string `env:"DATABASE_URL"`
	DynamoTable  string `env:"REELDROP_DYNAMO_TABLE" envDefault:"reeldrop-media"`

	StoreBackend  string `env:"REELDROP_STORE_BACKEND" envDefault:"minio"`
	S3Endpoint    string `env:"S3_ENDPOINT" envDefault:"localhost:9000"`
	S3AccessKey   string `env:"S3_ACCESS_KEY"`
	S3SecretKey   string `env:"S3_SECRET_KEY"`
	S3Region      string `env:"S3_REGION" envDefault:"us-east-1"`
	S3UseSSL      bool   `env:"S3_USE_SSL" envDefault:"false"`
	Bucket        string `env:"REELDROP_BUCKET" envDefault:"reeldrop-transient"`
	PublicBaseURL string `env:"REELDROP_PUBLIC_BASE_URL"`
	// AWSEndpoint overrides the AWS SDK endpoint (LocalStack, MinIO in S3 mode).
	AWSEndpoint string `env:"AWS_ENDPOINT_URL"`

	Scheduler     string `env:"REELDROP_SCHEDULER" envDefault:"asynq"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	SigningSecret string `env:"REELDROP_SIGNING_SECRET"`
}

const (
	defaultMaxDuration = 60 * time.Second
	defaultMaxFileSize = 8 << 20 // 8 MiB
	defaultRetention   = time.Hour
	defaultWorkerCount = 4
	defaultQueueDepth  = 64
	defaultJobTimeout  = 3 * time.Minute
)

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse builds a Config from the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Container = strings.ToLower(strings.TrimSpace(c.Container))
	c.CacheBackend = strings.ToLower(strings.TrimSpace(c.CacheBackend))
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	c.Scheduler = strings.ToLower(strings.TrimSpace(c.Scheduler))
	c.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.PublicBaseURL), "/")
	if c.MaxDuration <= 0 {
		c.MaxDuration = defaultMaxDuration
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = defaultMaxFileSize
	}
	if c.Retention <= 0 {
		c.Retention = defaultRetention
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkerCount
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = defaultQueueDepth
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaultJobTimeout
	}
	if c.Container == "" {
		c.Container = "mp4"
	}
}

// ResolveTimeout is the budget for resolving and publishing one item. It
// leaves room inside JobTimeout for the progress notice and the final reply,
// and is always strictly shorter than JobTimeout.
func (c *Config) ResolveTimeout() time.Duration {
	reserve := 2 * c.DeliveryTimeout
	if reserve <= 0 || reserve > c.JobTimeout/2 {
		reserve = c.JobTimeout / 2
	}
	return c.JobTimeout - reserve
}

func (c *Config) validate() error {
	switch c.CacheBackend {
	case CacheBackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres cache backend")
		}
	case CacheBackendDynamo, CacheBackendMemory:
	default:
		return fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}
	switch c.StoreBackend {
	case StoreBackendMinio, StoreBackendS3:
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	switch c.Scheduler {
	case SchedulerAsynq, SchedulerTimer:
	default:
		return fmt.Errorf("unknown scheduler %q", c.Scheduler)
	}
	return nil
}
