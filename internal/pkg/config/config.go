package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json or text

	AccessLogPath  string `env:"ACCESS_LOG_PATH" envDefault:"/logs/access.log"`
	SignaturesPath string `env:"SIGNATURES_PATH"` // empty means the embedded default set

	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite"` // sqlite or postgres
	StoreDSN    string `env:"STORE_DSN" envDefault:"/data/bot_data.db"`

	CursorBackend string `env:"CURSOR_BACKEND" envDefault:"file"` // file or redis
	CursorPath    string `env:"CURSOR_PATH" envDefault:"/data/access.cursor"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"redis://localhost:6379/0"`

	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"500ms"`
	BatchSize       int           `env:"BATCH_SIZE" envDefault:"100"`
	ReadChunkBytes  int           `env:"READ_CHUNK_BYTES" envDefault:"65536"`
	MaxLineBytes    int           `env:"MAX_LINE_BYTES" envDefault:"16384"`
	StartAtEnd      bool          `env:"INGEST_START_AT_END" envDefault:"false"`
	WatchFSEvents   bool          `env:"WATCH_FS_EVENTS" envDefault:"true"`
	WriteAttempts   int           `env:"WRITE_MAX_ATTEMPTS" envDefault:"5"`
	WriteBackoff    time.Duration `env:"WRITE_BACKOFF_BASE" envDefault:"100ms"`
	WriteBackoffMax time.Duration `env:"WRITE_BACKOFF_MAX" envDefault:"5s"`

	DeadLetterDir          string `env:"DEADLETTER_DIR"` // empty disables the spool
	DeadLetterSegmentBytes int64  `env:"DEADLETTER_SEGMENT_BYTES" envDefault:"10485760"`
	DeadLetterMaxBytes     int64  `env:"DEADLETTER_MAX_BYTES" envDefault:"104857600"`

	ClassifyCacheSize int    `env:"CLASSIFY_CACHE_SIZE" envDefault:"10000"`
	AdminAddr         string `env:"ADMIN_ADDR" envDefault:":9091"` // empty disables the admin server
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be sqlite or postgres, got %q", c.StoreDriver))
	}
	switch c.CursorBackend {
	case "file", "redis":
	default:
		errs = append(errs, fmt.Errorf("CURSOR_BACKEND must be file or redis, got %q", c.CursorBackend))
	}
	if c.AccessLogPath == "" {
		errs = append(errs, errors.New("ACCESS_LOG_PATH is required"))
	}
	if c.StoreDSN == "" {
		errs = append(errs, errors.New("STORE_DSN is required"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("BATCH_SIZE must be positive"))
	}
	if c.ReadChunkBytes <= 0 || c.MaxLineBytes <= 0 {
		errs = append(errs, errors.New("READ_CHUNK_BYTES and MAX_LINE_BYTES must be positive"))
	}
	if c.WriteAttempts < 1 {
		errs = append(errs, errors.New("WRITE_MAX_ATTEMPTS must be at least 1"))
	}
	if c.WriteBackoffMax < c.WriteBackoff {
		errs = append(errs, errors.New("WRITE_BACKOFF_MAX must not be below WRITE_BACKOFF_BASE"))
	}
	return errors.Join(errs...)
}
