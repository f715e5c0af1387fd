package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/JuanCarJ/studioz-academy-sub000/database"
	"github.com/JuanCarJ/studioz-academy-sub000/gateway"
	"github.com/JuanCarJ/studioz-academy-sub000/sender"
)

const (
	dbSecretName      = "payments/DB_CREDENTIALS"
	gatewaySecretName = "payments/WOMPI_KEYS"
)

// Config holds all configuration for the payment service.
type Config struct {
	Port           string
	AppEnv         string
	FrontendURL    string
	AllowedOrigins string
	JWTSecret      string
	CronSecret     string
	RedisURL       string
	SNSTopicARN    string

	DB    database.Config
	Wompi gateway.WompiConfig
	// EventsSecret verifies webhook checksums.
	EventsSecret string
	SMTP         sender.SMTPConfig

	RecheckThrottle  time.Duration
	WebhookRateLimit int
	RecheckRateLimit int
}

// secretSource is satisfied by *aws.SecretsClient.
type secretSource interface {
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

// LoadConfig reads configuration from environment variables. When secrets is
// non-nil its values override the database and gateway credentials.
func LoadConfig(ctx context.Context, secrets secretSource) (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8090"),
		AppEnv:         getEnv("APP_ENV", "development"),
		FrontendURL:    strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		CronSecret:     os.Getenv("CRON_SECRET"),
		RedisURL:       os.Getenv("REDIS_URL"),
		SNSTopicARN:    os.Getenv("PAYMENT_SNS_TOPIC_ARN"),
		DB: database.Config{
			URL:         os.Getenv("DATABASE_URL"),
			Host:        os.Getenv("POSTGRES_HOST"),
			Port:        getEnv("POSTGRES_PORT", "5432"),
			User:        os.Getenv("POSTGRES_USER"),
			Password:    os.Getenv("POSTGRES_PASSWORD"),
			Name:        os.Getenv("POSTGRES_DB"),
			SSLMode:     getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone:    getEnv("POSTGRES_TIMEZONE", "America/Bogota"),
			AutoMigrate: getEnv("AUTO_MIGRATE", "true") == "true",
		},
		Wompi: gateway.WompiConfig{
			PublicKey:       os.Getenv("WOMPI_PUBLIC_KEY"),
			PrivateKey:      os.Getenv("WOMPI_PRIVATE_KEY"),
			IntegritySecret: os.Getenv("WOMPI_INTEGRITY_SECRET"),
			CheckoutBaseURL: os.Getenv("WOMPI_CHECKOUT_URL"),
			APIBaseURL:      os.Getenv("WOMPI_API_URL"),
			Timeout:         getDuration("WOMPI_TIMEOUT", gateway.DefaultTimeout),
		},
		EventsSecret: os.Getenv("WOMPI_EVENTS_SECRET"),
		SMTP: sender.SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},
		RecheckThrottle:  getDuration("RECHECK_THROTTLE", 10*time.Second),
		WebhookRateLimit: getInt("WEBHOOK_RATE_LIMIT", 300),
		RecheckRateLimit: getInt("RECHECK_RATE_LIMIT", 10),
	}

	if secrets != nil {
		if m, err := secrets.GetSecretMap(ctx, dbSecretName); err == nil {
			override(&cfg.DB.User, m["POSTGRES_USER"])
			override(&cfg.DB.Password, m["POSTGRES_PASSWORD"])
			override(&cfg.DB.Name, m["POSTGRES_DB"])
			override(&cfg.DB.Host, m["POSTGRES_HOST"])
			override(&cfg.DB.Port, m["POSTGRES_PORT"])
		}
		if m, err := secrets.GetSecretMap(ctx, gatewaySecretName); err == nil {
			override(&cfg.Wompi.PublicKey, m["WOMPI_PUBLIC_KEY"])
			override(&cfg.Wompi.PrivateKey, m["WOMPI_PRIVATE_KEY"])
			override(&cfg.Wompi.IntegritySecret, m["WOMPI_INTEGRITY_SECRET"])
			override(&cfg.EventsSecret, m["WOMPI_EVENTS_SECRET"])
		}
	}

	if err := cfg.DB.Validate(); err != nil {
		return nil, err
	}
	if cfg.Wompi.PublicKey == "" || cfg.Wompi.PrivateKey == "" || cfg.Wompi.IntegritySecret == "" || cfg.EventsSecret == "" {
		return nil, fmt.Errorf("gateway config incomplete")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET not set")
	}
	return cfg, nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}
