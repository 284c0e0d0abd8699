// Package config содержит логику чтения конфигурации платёжного сервиса.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Config содержит параметры конфигурации платёжного сервиса.
type Config struct {
	RunAddress   string   `env:"RUN_ADDRESS"`
	DatabaseURI  string   `env:"DATABASE_URI"`
	PGAPIAddress string   `env:"PG_API_ADDRESS"`
	RedisAddress string   `env:"REDIS_ADDRESS"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	KafkaTopic    string `env:"KAFKA_TOPIC" envDefault:"order-events"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`

	WebhookTimeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"5s"`
	ClaimTimeout   time.Duration `env:"CLAIM_TIMEOUT" envDefault:"5s"`
	LockTimeout    time.Duration `env:"LOCK_TIMEOUT" envDefault:"3s"`

	// AmountTolerance задаёт допустимую долю расхождения суммы одобрения, 0 требует точного совпадения.
	AmountTolerance decimal.Decimal `env:"AMOUNT_TOLERANCE" envDefault:"0"`

	ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL" envDefault:"30s"`
	ReconcileStaleAfter time.Duration `env:"RECONCILE_STALE_AFTER" envDefault:"2m"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envPGAPIAddress := cfg.PGAPIAddress
	envRedisAddress := cfg.RedisAddress
	envKafkaBrokers := cfg.KafkaBrokers

	var kafkaBrokers string

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PGAPIAddress, "r", "", "payment gateway API address")
	flag.StringVar(&cfg.RedisAddress, "redis", "", "redis address for webhook idempotency cache")
	flag.StringVar(&kafkaBrokers, "kafka", "", "comma-separated kafka brokers")

	flag.Parse()

	if kafkaBrokers != "" {
		cfg.KafkaBrokers = splitList(kafkaBrokers)
	}

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPGAPIAddress != "" {
		cfg.PGAPIAddress = envPGAPIAddress
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}
	if len(envKafkaBrokers) > 0 {
		cfg.KafkaBrokers = envKafkaBrokers
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.AmountTolerance.IsNegative() || c.AmountTolerance.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("AMOUNT_TOLERANCE must be in [0, 1), got %s", c.AmountTolerance)
	}
	for name, d := range map[string]time.Duration{
		"WEBHOOK_TIMEOUT":       c.WebhookTimeout,
		"CLAIM_TIMEOUT":         c.ClaimTimeout,
		"LOCK_TIMEOUT":          c.LockTimeout,
		"RECONCILE_INTERVAL":    c.ReconcileInterval,
		"RECONCILE_STALE_AFTER": c.ReconcileStaleAfter,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
