package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v2"

	"danceBack/internal/models"
)

const defaultConfigPath = "config/config.yaml"

type Config struct {
	Env string `yaml:"env" env:"APP_ENV"`

	Server struct {
		Address        string        `yaml:"address" env:"ADDR"`
		AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
		ReadTimeout    time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
		WriteTimeout   time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	} `yaml:"server"`

	Database struct {
		Driver string `yaml:"driver" env:"DB_DRIVER"`
		URL    string `yaml:"url" env:"DATABASE_URL"`
	} `yaml:"database"`

	Redis struct {
		Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
		Password string        `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int           `yaml:"db" env:"REDIS_DB"`
		GuestTTL time.Duration `yaml:"guest_cart_ttl" env:"GUEST_CART_TTL"`
	} `yaml:"redis"`

	Firebase struct {
		CredentialsFile string `yaml:"credentials_file" env:"FIREBASE_CREDENTIALS_FILE"`
		ProjectID       string `yaml:"project_id" env:"FIREBASE_PROJECT_ID"`
	} `yaml:"firebase"`

	Stripe struct {
		SecretKey     string `yaml:"secret_key" env:"STRIPE_SECRET_KEY"`
		WebhookSecret string `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
		Currency      string `yaml:"currency" env:"STRIPE_CURRENCY"`
	} `yaml:"stripe"`

	SMTP struct {
		Host     string `yaml:"host" env:"SMTP_HOST"`
		Port     int    `yaml:"port" env:"SMTP_PORT"`
		Username string `yaml:"username" env:"SMTP_USERNAME"`
		Password string `yaml:"password" env:"SMTP_PASSWORD"`
		From     string `yaml:"from" env:"SMTP_FROM"`
	} `yaml:"smtp"`

	Storage struct {
		Endpoint  string        `yaml:"endpoint" env:"S3_ENDPOINT"`
		Region    string        `yaml:"region" env:"S3_REGION"`
		Bucket    string        `yaml:"bucket" env:"S3_BUCKET"`
		AccessKey string        `yaml:"access_key" env:"S3_ACCESS_KEY"`
		SecretKey string        `yaml:"secret_key" env:"S3_SECRET_KEY"`
		URLTTL    time.Duration `yaml:"url_ttl" env:"S3_URL_TTL"`
	} `yaml:"storage"`

	FrontendURL   string `yaml:"frontend_url" env:"FRONTEND_URL"`
	GuestTokenKey string `yaml:"guest_token_key" env:"GUEST_TOKEN_KEY"`

	Jobs struct {
		LapsedSubscriptions string        `yaml:"lapsed_subscriptions" env:"JOB_LAPSED_SUBSCRIPTIONS"`
		AbandonedOrders     string        `yaml:"abandoned_orders" env:"JOB_ABANDONED_ORDERS"`
		LedgerPrune         string        `yaml:"ledger_prune" env:"JOB_LEDGER_PRUNE"`
		AbandonedAfter      time.Duration `yaml:"abandoned_after" env:"ABANDONED_ORDER_AGE"`
		LedgerRetention     time.Duration `yaml:"ledger_retention" env:"WEBHOOK_LEDGER_RETENTION"`
	} `yaml:"jobs"`

	Plans []models.Plan `yaml:"plans"`
}

// Load reads the YAML file (CONFIG_PATH or config/config.yaml) and overlays
// environment variables on top of it. A missing file is not an error.
func Load() (Config, error) {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.setDefaults()
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Env == "" {
		c.Env = "production"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":4001"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.GuestTTL == 0 {
		c.Redis.GuestTTL = 30 * 24 * time.Hour
	}
	if c.Stripe.Currency == "" {
		c.Stripe.Currency = "usd"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.Storage.Region == "" {
		c.Storage.Region = "us-east-1"
	}
	if c.Storage.URLTTL == 0 {
		c.Storage.URLTTL = 15 * time.Minute
	}
	if c.FrontendURL == "" {
		c.FrontendURL = "http://localhost:5173"
	}
	if c.Jobs.LapsedSubscriptions == "" {
		c.Jobs.LapsedSubscriptions = "@every 1h"
	}
	if c.Jobs.AbandonedOrders == "" {
		c.Jobs.AbandonedOrders = "@every 6h"
	}
	if c.Jobs.LedgerPrune == "" {
		c.Jobs.LedgerPrune = "30 3 * * *"
	}
	if c.Jobs.AbandonedAfter == 0 {
		c.Jobs.AbandonedAfter = 24 * time.Hour
	}
	if c.Jobs.LedgerRetention == 0 {
		c.Jobs.LedgerRetention = 30 * 24 * time.Hour
	}
}

// Validate reports every required value that is missing.
func (c Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Stripe.SecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.Stripe.WebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.Firebase.CredentialsFile == "" {
		missing = append(missing, "FIREBASE_CREDENTIALS_FILE")
	}
	if c.GuestTokenKey == "" {
		missing = append(missing, "GUEST_TOKEN_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

// Plan looks up a configured subscription plan by slug.
func (c Config) Plan(slug string) (models.Plan, bool) {
	for _, p := range c.Plans {
		if p.Slug == slug {
			return p, true
		}
	}
	return models.Plan{}, false
}
