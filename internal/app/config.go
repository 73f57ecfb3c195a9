package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (RODELA_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (RODELA_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Courier     CourierConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Outbox      OutboxConfig
	Graceful    GracefulConfig
}

// CourierConfig holds the Steadfast-style courier API credentials. With an
// empty BaseURL dispatching is disabled and Dispatch requests fail cleanly.
type CourierConfig struct {
	BaseURL   string        `usage:"Courier API base URL" flag:"courier-base-url"`
	APIKey    string        `usage:"Courier API key" flag:"courier-api-key"`
	SecretKey string        `usage:"Courier secret key" flag:"courier-secret-key"`
	Timeout   time.Duration `default:"15s" usage:"Courier request timeout" flag:"courier-timeout"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins []string `default:"*" usage:"Allowed CORS origins"`
}

// OutboxConfig controls the side-effect dispatcher.
type OutboxConfig struct {
	StaleAfter time.Duration `default:"5m" usage:"Readiness fails if the outbox has not polled for this long" flag:"outbox-stale-after"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "RODELA",
		Files:     []string{"config.yaml", "/etc/rodela/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set RODELA_DATABASE_URL or DATABASE_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that
// use standard names like DATABASE_URL and PORT to the application's
// RODELA_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
