package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	log "github.com/sirupsen/logrus"
)

const (
	// StorageDriverMemory хранит данные в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит данные в PostgreSQL.
	StorageDriverPostgres = "postgres"

	// IdempotencyBackendStorage хранит ключи идемпотентности в основном хранилище.
	IdempotencyBackendStorage = "storage"
	// IdempotencyBackendRedis хранит ключи идемпотентности в Redis.
	IdempotencyBackendRedis = "redis"
)

// Config описывает настройки запуска приложения. Значения читаются из переменных окружения.
type Config struct {
	HTTPAddr    string `env:"OMS_HTTP_ADDR" envDefault:":8080"`
	GRPCAddr    string `env:"OMS_GRPC_ADDR" envDefault:":50051"`
	MetricsAddr string `env:"OMS_METRICS_ADDR" envDefault:":9090"`

	LogLevel  string `env:"OMS_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"OMS_LOG_FORMAT" envDefault:"text"`

	StorageDriver       string `env:"OMS_STORAGE_DRIVER" envDefault:"memory"`
	PostgresDSN         string `env:"OMS_POSTGRES_DSN"`
	PostgresAutoMigrate bool   `env:"OMS_POSTGRES_AUTO_MIGRATE" envDefault:"true"`

	RedisURL           string `env:"OMS_REDIS_URL"`
	IdempotencyBackend string `env:"OMS_IDEMPOTENCY_BACKEND" envDefault:"storage"`

	KafkaBrokers    []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaOrderTopic string   `env:"OMS_KAFKA_ORDER_TOPIC" envDefault:"oms.order.events"`
	KafkaDLQTopic   string   `env:"OMS_KAFKA_DLQ_TOPIC" envDefault:"oms.order.dlq"`

	OutboxPollInterval time.Duration `env:"OMS_OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	OutboxBatchSize    int           `env:"OMS_OUTBOX_BATCH_SIZE" envDefault:"100"`
	OutboxMaxAttempts  int           `env:"OMS_OUTBOX_MAX_ATTEMPTS" envDefault:"3"`
	OutboxRetryDelay   time.Duration `env:"OMS_OUTBOX_RETRY_DELAY" envDefault:"100ms"`

	IdempotencyTTL              time.Duration `env:"OMS_IDEMPOTENCY_TTL" envDefault:"24h"`
	IdempotencyCleanupInterval  time.Duration `env:"OMS_IDEMPOTENCY_CLEANUP_INTERVAL" envDefault:"10m"`
	IdempotencyCleanupBatchSize int           `env:"OMS_IDEMPOTENCY_CLEANUP_BATCH_SIZE" envDefault:"500"`

	TxMaxAttempts   int           `env:"OMS_TX_MAX_ATTEMPTS" envDefault:"3"`
	ShutdownTimeout time.Duration `env:"OMS_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DefaultConfig возвращает конфигурацию со значениями по умолчанию.
func DefaultConfig() Config {
	cfg, err := LoadConfig(map[string]string{})
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// LoadConfig читает конфигурацию из environ. nil означает окружение процесса.
func LoadConfig(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.IdempotencyBackend = strings.ToLower(strings.TrimSpace(c.IdempotencyBackend))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.PostgresDSN = strings.TrimSpace(c.PostgresDSN)
	c.RedisURL = strings.TrimSpace(c.RedisURL)

	brokers := c.KafkaBrokers[:0]
	for _, broker := range c.KafkaBrokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	c.KafkaBrokers = brokers
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("OMS_POSTGRES_DSN is required for storage driver %q", c.StorageDriver)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q (use memory|postgres)", c.StorageDriver)
	}

	switch c.IdempotencyBackend {
	case IdempotencyBackendStorage:
	case IdempotencyBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("OMS_REDIS_URL is required for idempotency backend %q", c.IdempotencyBackend)
		}
	default:
		return fmt.Errorf("unsupported idempotency backend %q (use storage|redis)", c.IdempotencyBackend)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid OMS_LOG_LEVEL: %w", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unsupported log format %q (use text|json)", c.LogFormat)
	}

	if c.OutboxPollInterval <= 0 {
		return fmt.Errorf("OMS_OUTBOX_POLL_INTERVAL must be positive")
	}
	if c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 {
		return fmt.Errorf("outbox batch size and max attempts must be positive")
	}
	if c.OutboxRetryDelay < 0 {
		return fmt.Errorf("OMS_OUTBOX_RETRY_DELAY must not be negative")
	}
	if c.IdempotencyTTL <= 0 || c.IdempotencyCleanupInterval <= 0 || c.IdempotencyCleanupBatchSize <= 0 {
		return fmt.Errorf("idempotency ttl, cleanup interval and batch size must be positive")
	}
	if c.TxMaxAttempts <= 0 {
		return fmt.Errorf("OMS_TX_MAX_ATTEMPTS must be positive")
	}
	return nil
}

// ConfigureLogger применяет уровень и формат логирования к стандартному логгеру logrus.
func ConfigureLogger(cfg Config) {
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
