// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// GatewayConfig holds the connection settings for one payment gateway.
type GatewayConfig struct {
	BaseURL       string
	APIKey        string
	WebhookSecret string
	// ConfirmationOverride replaces the method's default confirmation
	// threshold when > 0.
	ConfirmationOverride int64
}

type Config struct {
	HTTPPort string

	// DatabaseURL switches payment/order persistence from memory to
	// PostgreSQL when set.
	DatabaseURL string
	// RedisURL switches the exchange-rate cache from memory to Redis when set.
	RedisURL string
	// KafkaBrokers enables mirroring of payment events onto Kafka when set.
	KafkaBrokers []string
	KafkaTopic   string

	ExchangeBaseURL string
	ExchangeAPIKey  string
	RateTTL         time.Duration
	RateStaleness   time.Duration

	PaymentWindow    time.Duration
	StatusStaleAfter time.Duration

	Wallet  GatewayConfig
	Bitcoin GatewayConfig
	Monero  GatewayConfig
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:        getEnv("PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "payment-events"),
		ExchangeBaseURL: getEnv("EXCHANGE_BASE_URL", "http://localhost:9100"),
		ExchangeAPIKey:  os.Getenv("EXCHANGE_API_KEY"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	var err error
	if cfg.RateTTL, err = getDuration("RATE_TTL_SECONDS", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RateStaleness, err = getDuration("RATE_STALENESS_SECONDS", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.PaymentWindow, err = getDuration("PAYMENT_WINDOW_SECONDS", 60*time.Minute); err != nil {
		return nil, err
	}
	if cfg.StatusStaleAfter, err = getDuration("STATUS_STALE_AFTER_SECONDS", 30*time.Second); err != nil {
		return nil, err
	}

	if cfg.Wallet, err = loadGateway("WALLET", "http://localhost:9201"); err != nil {
		return nil, err
	}
	if cfg.Bitcoin, err = loadGateway("BITCOIN", "http://localhost:9202"); err != nil {
		return nil, err
	}
	if cfg.Monero, err = loadGateway("MONERO", "http://localhost:9203"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadGateway(prefix, defaultBaseURL string) (GatewayConfig, error) {
	gc := GatewayConfig{
		BaseURL:       getEnv(prefix+"_GATEWAY_URL", defaultBaseURL),
		APIKey:        os.Getenv(prefix + "_API_KEY"),
		WebhookSecret: os.Getenv(prefix + "_WEBHOOK_SECRET"),
	}
	raw := os.Getenv(prefix + "_REQUIRED_CONFIRMATIONS")
	if raw == "" {
		return gc, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return gc, fmt.Errorf("config: invalid %s_REQUIRED_CONFIRMATIONS %q", prefix, raw)
	}
	gc.ConfirmationOverride = n
	return gc, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("config: invalid %s %q", key, raw)
	}
	return time.Duration(secs) * time.Second, nil
}
