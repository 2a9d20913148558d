package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "CART"

	EnvPort            = "CART_PORT"
	EnvLogLevel        = "CART_LOG_LEVEL"
	EnvLogFormat       = "CART_LOG_FORMAT"
	EnvStorageBackend  = "CART_STORAGE_BACKEND"
	EnvBoltPath        = "CART_BOLT_PATH"
	EnvRedisAddr       = "CART_REDIS_ADDR"
	EnvRedisTTL        = "CART_REDIS_TTL"
	EnvMongoURI        = "CART_MONGO_URI"
	EnvMongoDatabase   = "CART_MONGO_DATABASE"
	EnvCatalogDriver   = "CART_CATALOG_DRIVER"
	EnvCatalogDSN      = "CART_CATALOG_DSN"
	EnvCatalogSeedFile = "CART_CATALOG_SEED_FILE"
	EnvKafkaBrokers    = "CART_KAFKA_BROKERS"
	EnvSessionIdleTTL  = "CART_SESSION_IDLE_TTL"
	EnvCurrency        = "CART_CURRENCY"
)

const (
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

type Config struct {
	App     AppConfig
	Storage StorageConfig
	Redis   RedisConfig
	Mongo   MongoConfig
	Catalog CatalogConfig
	Kafka   KafkaConfig
	Session SessionConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Port            string        `envconfig:"CART_PORT" default:"8080"`
	LogLevel        string        `envconfig:"CART_LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"CART_LOG_FORMAT" default:"json"`
	ShutdownTimeout time.Duration `envconfig:"CART_SHUTDOWN_TIMEOUT" default:"30s"`
}

type StorageConfig struct {
	Backend  string `envconfig:"CART_STORAGE_BACKEND" default:"bolt"`
	BoltPath string `envconfig:"CART_BOLT_PATH" default:"carts.db"`
	// Breaker wraps remote backends in a circuit breaker.
	Breaker bool `envconfig:"CART_STORAGE_BREAKER" default:"true"`
}

type RedisConfig struct {
	Addr     string        `envconfig:"CART_REDIS_ADDR" default:"localhost:6379"`
	Password string        `envconfig:"CART_REDIS_PASSWORD"`
	DB       int           `envconfig:"CART_REDIS_DB" default:"0"`
	TTL      time.Duration `envconfig:"CART_REDIS_TTL" default:"168h"`
}

type MongoConfig struct {
	URI      string `envconfig:"CART_MONGO_URI" default:"mongodb://localhost:27017"`
	Database string `envconfig:"CART_MONGO_DATABASE" default:"cartdb"`
}

type CatalogConfig struct {
	Driver   string `envconfig:"CART_CATALOG_DRIVER" default:"sqlite"`
	DSN      string `envconfig:"CART_CATALOG_DSN" default:"catalog.db"`
	SeedFile string `envconfig:"CART_CATALOG_SEED_FILE"`
}

type KafkaConfig struct {
	// Brokers is a comma separated list. Empty disables the checkout consumer.
	Brokers []string `envconfig:"CART_KAFKA_BROKERS"`
	Topic   string   `envconfig:"CART_KAFKA_TOPIC" default:"checkout-outbox"`
	GroupID string   `envconfig:"CART_KAFKA_GROUP_ID" default:"cart-service-consumer"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type SessionConfig struct {
	IdleTTL         time.Duration `envconfig:"CART_SESSION_IDLE_TTL" default:"30m"`
	CleanupInterval time.Duration `envconfig:"CART_SESSION_CLEANUP_INTERVAL" default:"1m"`
	Currency        string        `envconfig:"CART_CURRENCY" default:"USD"`
}

func (c *Config) validate() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	switch c.Storage.Backend {
	case BackendBolt, BackendRedis, BackendMongo, BackendMemory:
	default:
		return fmt.Errorf("unsupported %s %q", EnvStorageBackend, c.Storage.Backend)
	}

	c.Catalog.Driver = strings.ToLower(strings.TrimSpace(c.Catalog.Driver))
	switch c.Catalog.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported %s %q", EnvCatalogDriver, c.Catalog.Driver)
	}
	if c.Catalog.DSN == "" {
		return fmt.Errorf("%s is required", EnvCatalogDSN)
	}

	if c.Session.IdleTTL <= 0 {
		return fmt.Errorf("%s must be positive", EnvSessionIdleTTL)
	}
	c.Session.Currency = strings.ToUpper(strings.TrimSpace(c.Session.Currency))
	if len(c.Session.Currency) != 3 {
		return fmt.Errorf("%s must be a three letter code, got %q", EnvCurrency, c.Session.Currency)
	}
	return nil
}
