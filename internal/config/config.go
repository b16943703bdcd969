// Package config loads marketd settings: built-in defaults, then an optional
// YAML file named by DATAMARKET_CONFIG, then DATAMARKET_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"datamarket/internal/blob"
	"datamarket/internal/core"
	"datamarket/internal/events"
	"datamarket/internal/validation"
	"datamarket/pkg/domain"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// PathEnv names the variable holding the optional config file path.
const PathEnv = "DATAMARKET_CONFIG"

// Metrics backends.
const (
	MetricsExpvar     = "expvar"
	MetricsPrometheus = "prometheus"
	MetricsNone       = "none"
)

// Config is the full process configuration.
type Config struct {
	HTTPAddr string `yaml:"http_addr" env:"DATAMARKET_HTTP_ADDR"`
	Metrics  string `yaml:"metrics" env:"DATAMARKET_METRICS"`

	Log      LogConfig      `yaml:"log"`
	Storage  StorageConfig  `yaml:"storage"`
	Blob     BlobConfig     `yaml:"blob"`
	Events   EventsConfig   `yaml:"events"`
	Platform PlatformConfig `yaml:"platform"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"DATAMARKET_LOG_LEVEL"`
	Format string `yaml:"format" env:"DATAMARKET_LOG_FORMAT"`
}

// StorageConfig selects the persistent store.
type StorageConfig struct {
	Driver      string `yaml:"driver" env:"DATAMARKET_STORAGE_DRIVER"`
	SQLitePath  string `yaml:"sqlite_path" env:"DATAMARKET_SQLITE_PATH"`
	PostgresDSN string `yaml:"postgres_dsn" env:"DATAMARKET_POSTGRES_DSN"`
}

// BlobConfig selects where verification proofs are archived.
type BlobConfig struct {
	Driver string   `yaml:"driver" env:"DATAMARKET_BLOB_DRIVER"`
	FSRoot string   `yaml:"fs_root" env:"DATAMARKET_BLOB_FS_ROOT"`
	S3     S3Config `yaml:"s3"`
}

// S3Config locates the proof bucket. Credentials come from the default AWS
// chain.
type S3Config struct {
	Bucket    string `yaml:"bucket" env:"DATAMARKET_BLOB_S3_BUCKET"`
	Region    string `yaml:"region" env:"DATAMARKET_BLOB_S3_REGION"`
	Endpoint  string `yaml:"endpoint" env:"DATAMARKET_BLOB_S3_ENDPOINT"`
	PathStyle bool   `yaml:"path_style" env:"DATAMARKET_BLOB_S3_PATH_STYLE"`
}

// EventsConfig selects the outbox sink and tunes the dispatcher.
type EventsConfig struct {
	Sink         string        `yaml:"sink" env:"DATAMARKET_EVENT_SINK"`
	KafkaBrokers []string      `yaml:"kafka_brokers" env:"DATAMARKET_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string        `yaml:"kafka_topic" env:"DATAMARKET_KAFKA_TOPIC"`
	RedisURL     string        `yaml:"redis_url" env:"DATAMARKET_REDIS_URL"`
	RedisStream  string        `yaml:"redis_stream" env:"DATAMARKET_REDIS_STREAM"`
	RedisMaxLen  int64         `yaml:"redis_max_len" env:"DATAMARKET_REDIS_MAX_LEN"`
	SQSQueueURL  string        `yaml:"sqs_queue_url" env:"DATAMARKET_SQS_QUEUE_URL"`
	SQSRegion    string        `yaml:"sqs_region" env:"DATAMARKET_SQS_REGION"`
	SQSEndpoint  string        `yaml:"sqs_endpoint" env:"DATAMARKET_SQS_ENDPOINT"`
	PollInterval time.Duration `yaml:"poll_interval" env:"DATAMARKET_OUTBOX_POLL_INTERVAL"`
	BatchSize    int           `yaml:"batch_size" env:"DATAMARKET_OUTBOX_BATCH_SIZE"`
	MaxAttempts  int           `yaml:"max_attempts" env:"DATAMARKET_OUTBOX_MAX_ATTEMPTS"`
}

// PlatformConfig holds the values used to initialize the platform when the
// store has none yet.
type PlatformConfig struct {
	Admin          string `yaml:"admin" env:"DATAMARKET_ADMIN"`
	Verifier       string `yaml:"verifier" env:"DATAMARKET_VERIFIER"`
	Treasury       string `yaml:"treasury" env:"DATAMARKET_TREASURY"`
	FeeBps         uint64 `yaml:"fee_bps" env:"DATAMARKET_FEE_BPS"`
	DepositPerByte uint64 `yaml:"deposit_per_byte" env:"DATAMARKET_DEPOSIT_PER_BYTE"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		Metrics:  MetricsPrometheus,
		Log:      LogConfig{Level: "info", Format: "json"},
		Storage:  StorageConfig{Driver: string(core.StorageMemory)},
		Blob:     BlobConfig{Driver: string(blob.DriverMemory), FSRoot: "./data/proofs"},
		Events: EventsConfig{
			Sink:         string(events.SinkStdout),
			KafkaTopic:   "datamarket.events",
			RedisStream:  "datamarket:events",
			PollInterval: time.Second,
			BatchSize:    100,
			MaxAttempts:  5,
		},
		Platform: PlatformConfig{
			Admin:    "admin",
			Treasury: "treasury",
			FeeBps:   domain.DefaultPlatformFeeBps,
		},
	}
}

// Load reads the file named by DATAMARKET_CONFIG, if set, and applies
// environment overrides.
func Load() (Config, error) {
	return LoadFile(os.Getenv(PathEnv))
}

// LoadFile layers path (skipped when empty) and the environment over the
// defaults, then validates the result.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Events.KafkaBrokers = trimNonEmpty(cfg.Events.KafkaBrokers)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every unknown driver and missing required setting.
func (c Config) Validate() error {
	var errs []error
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory:
	case core.StorageSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite storage requires DATAMARKET_SQLITE_PATH"))
		}
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres storage requires DATAMARKET_POSTGRES_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverMemory:
	case blob.DriverFilesystem:
		if c.Blob.FSRoot == "" {
			errs = append(errs, errors.New("fs blob driver requires DATAMARKET_BLOB_FS_ROOT"))
		}
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("s3 blob driver requires DATAMARKET_BLOB_S3_BUCKET"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %q", c.Blob.Driver))
	}

	switch events.Sink(c.Events.Sink) {
	case events.SinkMemory, events.SinkStdout:
	case events.SinkKafka:
		if len(c.Events.KafkaBrokers) == 0 || c.Events.KafkaTopic == "" {
			errs = append(errs, errors.New("kafka sink requires DATAMARKET_KAFKA_BROKERS and DATAMARKET_KAFKA_TOPIC"))
		}
	case events.SinkRedis:
		if c.Events.RedisURL == "" || c.Events.RedisStream == "" {
			errs = append(errs, errors.New("redis sink requires DATAMARKET_REDIS_URL and DATAMARKET_REDIS_STREAM"))
		}
	case events.SinkSQS:
		if c.Events.SQSQueueURL == "" {
			errs = append(errs, errors.New("sqs sink requires DATAMARKET_SQS_QUEUE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown event sink %q", c.Events.Sink))
	}

	switch c.Metrics {
	case MetricsExpvar, MetricsPrometheus, MetricsNone:
	default:
		errs = append(errs, fmt.Errorf("unknown metrics backend %q", c.Metrics))
	}

	if c.Platform.Admin == "" {
		errs = append(errs, errors.New("DATAMARKET_ADMIN is required"))
	}
	if c.Platform.Treasury == "" {
		errs = append(errs, errors.New("DATAMARKET_TREASURY is required"))
	}
	if err := validation.PlatformFee(c.Platform.FeeBps); err != nil {
		errs = append(errs, fmt.Errorf("DATAMARKET_FEE_BPS: %w", err))
	}
	return errors.Join(errs...)
}

// StorageOptions maps the storage section onto core.OpenPersistentStore.
func (c Config) StorageOptions() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobOptions maps the blob section onto blob.Open.
func (c Config) BlobOptions() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:    c.Blob.S3.Bucket,
			Region:    c.Blob.S3.Region,
			Endpoint:  c.Blob.S3.Endpoint,
			PathStyle: c.Blob.S3.PathStyle,
		},
	}
}

// SinkOptions maps the events section onto events.Open.
func (c Config) SinkOptions() events.SinkConfig {
	return events.SinkConfig{
		Sink:         events.Sink(c.Events.Sink),
		KafkaBrokers: c.Events.KafkaBrokers,
		KafkaTopic:   c.Events.KafkaTopic,
		RedisURL:     c.Events.RedisURL,
		RedisStream:  c.Events.RedisStream,
		RedisMaxLen:  c.Events.RedisMaxLen,
		SQS: events.SQSConfig{
			QueueURL: c.Events.SQSQueueURL,
			Region:   c.Events.SQSRegion,
			Endpoint: c.Events.SQSEndpoint,
		},
	}
}

// DispatcherOptions maps the events section onto events.NewDispatcher.
func (c Config) DispatcherOptions(startAfter uint64) events.DispatcherConfig {
	return events.DispatcherConfig{
		Interval:    c.Events.PollInterval,
		BatchSize:   c.Events.BatchSize,
		MaxAttempts: c.Events.MaxAttempts,
		StartAfter:  startAfter,
	}
}

// PlatformInit maps the bootstrap section onto core.InitializePlatform.
func (c Config) PlatformInit() (core.Principal, core.PlatformInit) {
	fee := c.Platform.FeeBps
	return core.Principal(c.Platform.Admin), core.PlatformInit{
		Verifier:       core.Principal(c.Platform.Verifier),
		Treasury:       core.Principal(c.Platform.Treasury),
		FeeBps:         &fee,
		DepositPerByte: c.Platform.DepositPerByte,
	}
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
