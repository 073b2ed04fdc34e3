// Package config centralizes runtime configuration, read from environment
// variables into one typed struct.
package config

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/shopspring/decimal"

	"github.com/andrescamacho/guiatrack/internal/model"
)

// Config represents runtime configuration for the API server, the worker and
// the CLI.
type Config struct {
	Address     string `env:"GUIATRACK_ADDRESS" env-default:":8080"`
	StoreDriver string `env:"GUIATRACK_STORE" env-default:"csv"`
	DataDir     string `env:"GUIATRACK_DATA_DIR" env-default:"data"`
	DatabaseURL string `env:"GUIATRACK_DATABASE_URL"`

	// Unit rates per mode: air and domestic in $/kg, sea in $/ft³. Setting all
	// three to the same value reproduces the flat-rate configuration.
	RateAir          string  `env:"GUIATRACK_RATE_AIR" env-default:"5"`
	RateSea          string  `env:"GUIATRACK_RATE_SEA" env-default:"12"`
	RateDomestic     string  `env:"GUIATRACK_RATE_DOMESTIC" env-default:"3"`
	TolerancePercent float64 `env:"GUIATRACK_TOLERANCE_PERCENT" env-default:"5"`

	AdminEmail    string        `env:"GUIATRACK_ADMIN_EMAIL" env-default:"admin@guiatrack.local"`
	AdminPassword string        `env:"GUIATRACK_ADMIN_PASSWORD" env-default:"cambiame"`
	JWTSecret     string        `env:"GUIATRACK_JWT_SECRET"`
	SigningSecret string        `env:"GUIATRACK_SIGNING_SECRET"`
	TokenTTL      time.Duration `env:"GUIATRACK_TOKEN_TTL" env-default:"12h"`
	TrackLinkTTL  time.Duration `env:"GUIATRACK_TRACK_TTL" env-default:"72h"`

	NotifierMode string `env:"GUIATRACK_NOTIFIER" env-default:"log"`
	Workers      int    `env:"GUIATRACK_WORKERS" env-default:"2"`
	SMTPAddr     string `env:"GUIATRACK_SMTP_ADDR"`
	SMTPFrom     string `env:"GUIATRACK_SMTP_FROM" env-default:"no-reply@guiatrack.local"`

	RedisAddr     string `env:"GUIATRACK_REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `env:"GUIATRACK_REDIS_PASSWORD"`
	RedisDB       int    `env:"GUIATRACK_REDIS_DB" env-default:"0"`

	S3Endpoint   string `env:"GUIATRACK_S3_ENDPOINT"`
	S3AccessKey  string `env:"GUIATRACK_S3_ACCESS_KEY"`
	S3SecretKey  string `env:"GUIATRACK_S3_SECRET_KEY"`
	S3UseSSL     bool   `env:"GUIATRACK_S3_USE_SSL" env-default:"false"`
	S3Region     string `env:"GUIATRACK_S3_REGION" env-default:"us-east-1"`
	BackupBucket string `env:"GUIATRACK_BACKUP_BUCKET" env-default:"guiatrack-backups"`
}

// Load reads configuration from the environment, applies defaults and
// validates the combinations the binaries rely on.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	switch cfg.StoreDriver {
	case "memory", "csv":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("GUIATRACK_DATABASE_URL is required for the postgres store")
		}
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	switch cfg.NotifierMode {
	case "log", "smtp", "queue":
	default:
		return nil, fmt.Errorf("unknown notifier mode %q", cfg.NotifierMode)
	}
	if cfg.NotifierMode == "smtp" && cfg.SMTPAddr == "" {
		return nil, fmt.Errorf("GUIATRACK_SMTP_ADDR is required for the smtp notifier")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = randomSecret()
	}
	if cfg.SigningSecret == "" {
		cfg.SigningSecret = randomSecret()
	}
	return &cfg, nil
}

// Rates parses the per-mode unit rates.
func (c *Config) Rates() (map[model.Mode]decimal.Decimal, error) {
	out := make(map[model.Mode]decimal.Decimal, 3)
	for mode, raw := range map[model.Mode]string{
		model.ModeAir:      c.RateAir,
		model.ModeSea:      c.RateSea,
		model.ModeDomestic: c.RateDomestic,
	} {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("unit rate for mode %s: %w", mode, err)
		}
		out[mode] = rate
	}
	return out, nil
}

// randomSecret generates an ephemeral secret for setups that did not supply
// one. Tokens signed with it die with the process, which is fine for dev.
func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "fallback-dev-secret"
	}
	return fmt.Sprintf("%x", buf)
}
