package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/storefront/pkg/config"
)

// Config holds all configuration for the storefront.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort       int           `env:"STOREFRONT_HTTP_PORT" envDefault:"8080"`
	RequestTimeout time.Duration `env:"STOREFRONT_REQUEST_TIMEOUT" envDefault:"30s"`
	RateLimitRPS   float64       `env:"STOREFRONT_RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int           `env:"STOREFRONT_RATE_LIMIT_BURST" envDefault:"40"`
	CORSOrigins    []string      `env:"STOREFRONT_CORS_ORIGINS" envDefault:"*" envSeparator:","`

	// Shop API
	ShopAPIURL        string        `env:"SHOP_API_URL" envDefault:"http://localhost:8000"`
	ShopAPITimeout    time.Duration `env:"SHOP_API_TIMEOUT" envDefault:"10s"`
	ShopAPIMaxRetries int           `env:"SHOP_API_MAX_RETRIES" envDefault:"2"`
	BreakerTimeout    time.Duration `env:"SHOP_API_BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerMinReqs    uint32        `env:"SHOP_API_BREAKER_MIN_REQUESTS" envDefault:"5"`

	// Identity. An empty secret sends every token to the shop's /auth/me.
	JWTSecret string `env:"JWT_SECRET" envDefault:""`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Anonymous cart TTL in hours (default: 7 days)
	CartTTL  int           `env:"CART_TTL_HOURS" envDefault:"168"`
	PriceTTL time.Duration `env:"PRICE_CACHE_TTL" envDefault:"5m"`

	// Sessions
	SessionIdle  time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	SessionSweep time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1m"`

	// Kafka
	KafkaEnabled   bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers   []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	EventQueueSize int      `env:"EVENT_QUEUE_SIZE" envDefault:"256"`

	// Tracing
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CartTTLDuration returns the anonymous cart TTL.
func (c *Config) CartTTLDuration() time.Duration {
	return time.Duration(c.CartTTL) * time.Hour
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	u, err := url.Parse(c.ShopAPIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("SHOP_API_URL must be an absolute URL, got %q", c.ShopAPIURL)
	}
	if c.CartTTL < 1 {
		return fmt.Errorf("CART_TTL_HOURS must be positive, got %d", c.CartTTL)
	}
	if c.SessionIdle <= 0 || c.SessionSweep <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT and SESSION_SWEEP_INTERVAL must be positive")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.OTELSampleRate)
	}
	return nil
}
