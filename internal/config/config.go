package config

import (
	"fmt"
	"os"
	"strings"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config struct {
	Port          string `env:"PORT"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN"`

	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH"`
	AutoMigrate bool   `env:"AUTO_MIGRATE"`

	RedisAddr                string `env:"REDIS_ADDR"`
	RedisPassword            string `env:"REDIS_PASSWORD"`
	RedisDB                  int    `env:"REDIS_DB"`
	DashboardCacheTTLSeconds int    `env:"DASHBOARD_CACHE_TTL_SECONDS"`

	AuthSecret            string `env:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `env:"ACCESS_TOKEN_TTL_MINUTES"`
	SeedAdminPassword     string `env:"SEED_ADMIN_PASSWORD"`

	RejectUnderpayment bool `env:"REJECT_UNDERPAYMENT"`

	LogLevel     string `env:"LOG_LEVEL"`
	LogFormat    string `env:"LOG_FORMAT"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"SERVICE_NAME"`
}

// Load reads an optional .env file (ENV_FILE or ./.env), then the process
// environment, then fills defaults for anything left unset. Variables that
// are already set win over the file.
func Load() (Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return Config{}, errors.Wrapf(err, "load %s", envFile)
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "read environment")
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.Port = defaultString(c.Port, "8080")
	c.AllowedOrigin = defaultString(c.AllowedOrigin, "http://127.0.0.1:3000")
	c.AuthSecret = strings.TrimSpace(c.AuthSecret)
	c.LogLevel = defaultString(strings.ToLower(c.LogLevel), "info")
	c.LogFormat = defaultString(strings.ToLower(c.LogFormat), "json")
	c.ServiceName = defaultString(c.ServiceName, "pharmapos")
	if c.DashboardCacheTTLSeconds < 1 {
		c.DashboardCacheTTLSeconds = 30
	}
	if c.AccessTokenTTLMinutes < 1 {
		c.AccessTokenTTLMinutes = 480
	}
	if c.RedisDB < 0 {
		c.RedisDB = 0
	}
}

// StoreKind names the backing store the configuration selects.
func (c Config) StoreKind() string {
	switch {
	case c.DatabaseURL != "":
		return "postgres"
	case c.SQLitePath != "":
		return "sqlite"
	default:
		return "memory"
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func defaultString(value string, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
