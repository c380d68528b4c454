package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Config holds the complete application configuration, loadable from
// environment variables (ECOM_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (ECOM_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL     string `default:"" usage:"Redis connection URL for the OTP store; empty uses in-memory" flag:"redis-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com)" flag:"image-base-url"`

	Shipping  ShippingConfig
	OTP       OTPConfig
	Paging    PagingConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// ShippingConfig controls checkout shipping pricing. Values are decimal
// strings to avoid float drift.
type ShippingConfig struct {
	FreeThreshold string `default:"50.00" usage:"Subtotal at or above which shipping is free" flag:"free-shipping-threshold"`
	FlatFee       string `default:"5.99" usage:"Flat shipping fee below the threshold" flag:"flat-shipping-fee"`
}

// OTPConfig controls the mocked phone sign-in flow.
type OTPConfig struct {
	Enabled bool          `default:"true" usage:"Enable the OTP sign-in flow"`
	TTL     time.Duration `default:"5m" usage:"How long an issued code stays valid"`
}

// PagingConfig controls list response defaults.
type PagingConfig struct {
	DefaultPageSize int `default:"10" usage:"Default page size for list endpoints" flag:"default-page-size"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// FreeShippingThreshold parses the configured threshold.
func (c ShippingConfig) FreeShippingThreshold() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.FreeThreshold)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse free shipping threshold")
	}
	return d, nil
}

// FlatShippingFee parses the configured flat fee.
func (c ShippingConfig) FlatShippingFee() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.FlatFee)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse flat shipping fee")
	}
	return d, nil
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ECOM",
		Files:     []string{"config.yaml", "/etc/ecom/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set ECOM_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) with standard names like DATABASE_URL and PORT onto the
// ECOM_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.RedisURL == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.RedisURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
