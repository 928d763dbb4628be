package config

import (
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// StripeConfig holds the payment provider credentials. With an empty
// SecretKey the server runs against the in-memory fake client.
type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	BaseURL       string `yaml:"base_url"`
}

// PayoutsConfig controls the scheduled reconciliation batch.
type PayoutsConfig struct {
	// Schedule is a cron expression; empty disables the scheduled run.
	Schedule string `yaml:"schedule"`
	Provider string `yaml:"provider"`
	DryRun   bool   `yaml:"dry_run"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen    string        `yaml:"listen"`
	DBURL     string        `yaml:"db_url"`
	RedisAddr string        `yaml:"redis_addr"`
	JWTSecret string        `yaml:"jwt_secret"`
	Stripe    StripeConfig  `yaml:"stripe"`
	Payouts   PayoutsConfig `yaml:"payouts"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen: "127.0.0.1:8080",
		Payouts: PayoutsConfig{
			// First day of every month at 03:00.
			Schedule: "0 3 1 * *",
			Provider: "stripe",
		},
	}
}

// Load reads the yaml config at path, falling back to defaults when the file
// does not exist, then applies environment overrides. Environment variables
// win so containerized deployments need no config file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		case errors.Is(err, fs.ErrNotExist):
			// Defaults plus environment.
		default:
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setFromEnv(&cfg.Listen, "LISTEN_ADDR")
	setFromEnv(&cfg.DBURL, "DB_URL")
	setFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	setFromEnv(&cfg.JWTSecret, "JWT_SECRET")
	setFromEnv(&cfg.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	setFromEnv(&cfg.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	setFromEnv(&cfg.Payouts.Schedule, "PAYOUTS_SCHEDULE")
	setFromEnv(&cfg.Payouts.Provider, "PAYOUTS_PROVIDER")
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
