package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config is the full process configuration, read from the environment.
type Config struct {
	Addr     string `env:"PARITY_ADDR, default=:8080"`
	LogLevel string `env:"LOG_LEVEL, default=info"`
	// MetricsToken guards /metrics when set.
	MetricsToken string `env:"METRICS_TOKEN"`

	JWT       JWTConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	PayEquity PayEquityConfig
	Assistant AssistantConfig
	Kafka     KafkaConfig
	Audit     AuditConfig
}

type JWTConfig struct {
	SigningKey string `env:"JWT_SIGNING_KEY, default=dev-secret-key-change-in-production"`
	Issuer     string `env:"JWT_ISSUER, default=parity"`
	Audience   string `env:"JWT_AUDIENCE, default=parity-api"`
}

// DatabaseConfig selects the Postgres stores. An empty URL runs on the
// in-memory stores.
type DatabaseConfig struct {
	URL          string `env:"DATABASE_URL"`
	MaxOpenConns int    `env:"DATABASE_MAX_OPEN_CONNS, default=20"`
	MaxIdleConns int    `env:"DATABASE_MAX_IDLE_CONNS, default=5"`
}

// RedisConfig selects the Redis recompute lease. An empty URL falls back to
// the in-process lease.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE, default=10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS, default=2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT, default=5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT, default=3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT, default=3s"`
}

// PayEquityConfig holds the classification thresholds. A group is green when
// its gap is below GreenBelow, yellow up to YellowMax and red above.
type PayEquityConfig struct {
	MinGroupSize int           `env:"PAYEQUITY_MIN_GROUP_SIZE, default=5"`
	GreenBelow   float64       `env:"PAYEQUITY_GREEN_BELOW, default=5"`
	YellowMax    float64       `env:"PAYEQUITY_YELLOW_MAX, default=10"`
	LeaseTTL     time.Duration `env:"PAYEQUITY_LEASE_TTL, default=2m"`
}

// AssistantConfig points at the text generation service. The assistant
// routes are not mounted when Endpoint is empty.
type AssistantConfig struct {
	Endpoint string        `env:"ASSISTANT_ENDPOINT"`
	APIKey   string        `env:"ASSISTANT_API_KEY"`
	Timeout  time.Duration `env:"ASSISTANT_TIMEOUT, default=15s"`
	Attempts uint          `env:"ASSISTANT_ATTEMPTS, default=3"`
	// BreakerFailures consecutive failed requests open the breaker for
	// BreakerCooldown.
	BreakerFailures int           `env:"ASSISTANT_BREAKER_FAILURES, default=5"`
	BreakerCooldown time.Duration `env:"ASSISTANT_BREAKER_COOLDOWN, default=30s"`
	// RateLimit questions per user per RateWindow. Zero disables the limit.
	RateLimit  int           `env:"ASSISTANT_RATE_LIMIT, default=20"`
	RateWindow time.Duration `env:"ASSISTANT_RATE_WINDOW, default=1m"`
}

// KafkaConfig enables publishing committed audit entries.
type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS"`
	Topic   string   `env:"KAFKA_AUDIT_TOPIC, default=parity.audit"`
}

type AuditConfig struct {
	IdempotencyCacheSize int           `env:"AUDIT_IDEMPOTENCY_CACHE_SIZE, default=10000"`
	IdempotencyCacheTTL  time.Duration `env:"AUDIT_IDEMPOTENCY_CACHE_TTL, default=24h"`
}

// Load reads the configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWT.SigningKey) == "" {
		errs = append(errs, errors.New("JWT_SIGNING_KEY must not be empty"))
	}
	if c.PayEquity.MinGroupSize < 1 {
		errs = append(errs, fmt.Errorf("PAYEQUITY_MIN_GROUP_SIZE must be at least 1, got %d", c.PayEquity.MinGroupSize))
	}
	if c.PayEquity.GreenBelow < 0 {
		errs = append(errs, fmt.Errorf("PAYEQUITY_GREEN_BELOW must not be negative, got %v", c.PayEquity.GreenBelow))
	}
	if c.PayEquity.YellowMax < c.PayEquity.GreenBelow {
		errs = append(errs, fmt.Errorf("PAYEQUITY_YELLOW_MAX (%v) must not be below PAYEQUITY_GREEN_BELOW (%v)",
			c.PayEquity.YellowMax, c.PayEquity.GreenBelow))
	}
	if c.PayEquity.LeaseTTL <= 0 {
		errs = append(errs, errors.New("PAYEQUITY_LEASE_TTL must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && strings.TrimSpace(c.Kafka.Topic) == "" {
		errs = append(errs, errors.New("KAFKA_AUDIT_TOPIC is required when KAFKA_BROKERS is set"))
	}
	if c.Assistant.RateLimit < 0 {
		errs = append(errs, errors.New("ASSISTANT_RATE_LIMIT must not be negative"))
	}
	if c.Audit.IdempotencyCacheSize < 0 {
		errs = append(errs, errors.New("AUDIT_IDEMPOTENCY_CACHE_SIZE must not be negative"))
	}
	return errors.Join(errs...)
}
