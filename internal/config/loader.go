package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "INVENTORY_"

// Config captures environment driven configuration values for the inventory service.
type Config struct {
	HTTPPort          int           `env:"HTTP_PORT" envDefault:"8080"`
	SQLitePath        string        `env:"SQLITE_PATH" envDefault:"inventory.db"`
	SQLiteBusyTimeout time.Duration `env:"SQLITE_BUSY_TIMEOUT" envDefault:"5s"`
	JWTSecret         string        `env:"JWT_SECRET,required,notEmpty"`
	TokenTTL          time.Duration `env:"TOKEN_TTL" envDefault:"720h"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat         string        `env:"LOG_FORMAT" envDefault:"json"`
	AuditQueueSize    int           `env:"AUDIT_QUEUE_SIZE" envDefault:"256"`
	CORSOrigins       []string      `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
	MetricsEnabled    bool          `env:"METRICS_ENABLED" envDefault:"true"`
}

// Load parses configuration values from the current process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadWithFiles reads the dotenv files that exist before parsing the
// environment. Variables already set in the process take precedence.
func LoadWithFiles(files ...string) (Config, error) {
	existing := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", strings.Join(existing, ", "), err)
		}
	}
	return Load()
}

// Validate reports every invalid value at once.
func (c Config) Validate() error {
	var errs []error
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("%sHTTP_PORT must be between 1 and 65535, got %d", EnvPrefix, c.HTTPPort))
	}
	if strings.TrimSpace(c.SQLitePath) == "" {
		errs = append(errs, fmt.Errorf("%sSQLITE_PATH must not be empty", EnvPrefix))
	}
	if c.SQLiteBusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("%sSQLITE_BUSY_TIMEOUT must not be negative", EnvPrefix))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("%sTOKEN_TTL must be positive", EnvPrefix))
	}
	if c.AuditQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("%sAUDIT_QUEUE_SIZE must be positive", EnvPrefix))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("%sLOG_FORMAT must be json or text, got %q", EnvPrefix, c.LogFormat))
	}
	return errors.Join(errs...)
}

// SlogLevel converts LogLevel into a slog level.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("%sLOG_LEVEL is invalid: %q", EnvPrefix, c.LogLevel)
	}
	return level, nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
