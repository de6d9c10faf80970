package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix namespaces every variable, e.g. REPORTFLOW_SERVER_PORT.
const Prefix = "REPORTFLOW"

// Config centralizes runtime settings for the API, worker and dispatcher.
type Config struct {
	Server     ServerConfig     `envconfig:"SERVER"`
	Auth       AuthConfig       `envconfig:"AUTH"`
	RateLimit  RateLimitConfig  `envconfig:"RATE_LIMIT"`
	Database   DatabaseConfig   `envconfig:"DATABASE"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	Queue      QueueConfig      `envconfig:"QUEUE"`
	Worker     WorkerConfig     `envconfig:"WORKER"`
	Dispatcher DispatcherConfig `envconfig:"DISPATCHER"`
	Storage    StorageConfig    `envconfig:"STORAGE"`
	Renderer   RendererConfig   `envconfig:"RENDERER"`
	Delivery   DeliveryConfig   `envconfig:"DELIVERY"`
	Logging    LoggingConfig    `envconfig:"LOGGING"`
}

type ServerConfig struct {
	Port            int           `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	AllowedOrigins  []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
}

type AuthConfig struct {
	// Token is the static bearer token; empty disables auth.
	Token string `envconfig:"TOKEN"`
}

type RateLimitConfig struct {
	RPS   float64 `envconfig:"RPS" default:"20"`
	Burst int     `envconfig:"BURST" default:"40"`
}

type DatabaseConfig struct {
	// URL selects Postgres; empty keeps everything in memory.
	URL string `envconfig:"URL"`
}

type RedisConfig struct {
	Addr        string `envconfig:"ADDR"`
	Password    string `envconfig:"PASSWORD"`
	DB          int    `envconfig:"DB" default:"0"`
	Stream      string `envconfig:"STREAM" default:"reportflow_jobs"`
	DLQStream   string `envconfig:"DLQ_STREAM" default:"reportflow_jobs_dlq"`
	CancelSet   string `envconfig:"CANCEL_SET" default:"reportflow_jobs_cancelled"`
	Group       string `envconfig:"GROUP" default:"reportflow_workers"`
	Consumer    string `envconfig:"CONSUMER" default:"api-1"`
	MaxAttempts int    `envconfig:"MAX_ATTEMPTS" default:"3"`
}

type QueueConfig struct {
	BufferSize         int           `envconfig:"BUFFER_SIZE" default:"512"`
	BatchingEnabled    bool          `envconfig:"BATCHING_ENABLED" default:"true"`
	BatchSize          int           `envconfig:"BATCH_SIZE" default:"32"`
	BatchFlushInterval time.Duration `envconfig:"BATCH_FLUSH_INTERVAL" default:"25ms"`
	BatchFlushTimeout  time.Duration `envconfig:"BATCH_FLUSH_TIMEOUT" default:"3s"`
	BatchQueueCapacity int           `envconfig:"BATCH_QUEUE_CAPACITY" default:"2048"`
	BatchMaxInFlight   int           `envconfig:"BATCH_MAX_IN_FLIGHT" default:"4"`
}

type WorkerConfig struct {
	Enabled bool `envconfig:"ENABLED" default:"true"`
}

type DispatcherConfig struct {
	Enabled         bool          `envconfig:"ENABLED" default:"true"`
	Interval        time.Duration `envconfig:"INTERVAL" default:"1m"`
	BatchSize       int           `envconfig:"BATCH_SIZE" default:"50"`
	RedispatchAfter time.Duration `envconfig:"REDISPATCH_AFTER" default:"1h"`
}

type StorageConfig struct {
	Dir           string `envconfig:"DIR" default:"data/exports"`
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080/files"`
}

type RendererConfig struct {
	ChromeEnabled bool          `envconfig:"CHROME_ENABLED" default:"false"`
	ChromePath    string        `envconfig:"CHROME_PATH"`
	Timeout       time.Duration `envconfig:"TIMEOUT" default:"30s"`
}

type DeliveryConfig struct {
	SMTPAddr         string        `envconfig:"SMTP_ADDR"`
	SMTPUsername     string        `envconfig:"SMTP_USERNAME"`
	SMTPPassword     string        `envconfig:"SMTP_PASSWORD"`
	SMTPFrom         string        `envconfig:"SMTP_FROM" default:"reports@localhost"`
	WebhookTimeout   time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s"`
	WebhookThreshold uint32        `envconfig:"WEBHOOK_FAILURE_THRESHOLD" default:"5"`
}

type LoggingConfig struct {
	Development bool `envconfig:"DEVELOPMENT" default:"false"`
}

// Load reads .env files, then the process environment.
func Load() (Config, error) {
	if err := LoadDotEnv(".env", ".env.local"); err != nil {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}
	return FromEnv()
}

// FromEnv processes the environment without touching .env files.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config from env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func (c Config) validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate limit rps and burst must be positive"))
	}
	if c.Dispatcher.Interval <= 0 {
		errs = append(errs, errors.New("dispatcher interval must be positive"))
	}
	if c.Storage.Dir == "" {
		errs = append(errs, errors.New("storage dir is required"))
	}
	return errors.Join(errs...)
}
