package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the process configuration, read from the environment (and an optional .env file).
type Config struct {
	DatabaseURL    string        `envconfig:"DATABASE_URL" required:"true"`
	ServerPort     string        `envconfig:"SERVER_PORT" default:"8080"`
	AllowedOrigins string        `envconfig:"ALLOWED_ORIGINS"`
	JWTSecret      string        `envconfig:"JWT_SECRET"`
	OpenAIAPIKey   string        `envconfig:"OPENAI_API_KEY"`
	OpenAIModel    string        `envconfig:"OPENAI_MODEL" default:"gpt-4o"`
	RedisAddress   string        `envconfig:"REDIS_ADDRESS"`
	UnitLockTTL    time.Duration `envconfig:"UNIT_LOCK_TTL" default:"10s"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string        `envconfig:"LOG_FORMAT" default:"json"`
	BulkMaxUnits   int           `envconfig:"BULK_MAX_UNITS" default:"500"`
	SaleCodePrefix string        `envconfig:"SALE_CODE_PREFIX" default:"SL"`
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	if cfg.BulkMaxUnits <= 0 {
		return nil, fmt.Errorf("BULK_MAX_UNITS must be positive, got %d", cfg.BulkMaxUnits)
	}
	if cfg.UnitLockTTL <= 0 {
		return nil, fmt.Errorf("UNIT_LOCK_TTL must be positive, got %s", cfg.UnitLockTTL)
	}
	return &cfg, nil
}

// RequireServer checks the keys only the HTTP server needs.
func (c *Config) RequireServer() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable not set")
	}
	return nil
}
