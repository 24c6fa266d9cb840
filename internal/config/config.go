package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port string
	Mode string

	// Database configuration
	DatabaseURL string

	// Redis configuration (optional, in-process fallbacks are used when empty)
	RedisURL string

	// JWT configuration
	JWTSecret   string
	JWTAudience string

	// ZPay gateway configuration
	GatewayURL     string
	MerchantID     string
	MerchantKey    string
	NotifyURL      string
	GatewayTimeout time.Duration

	// Subscription tiers
	PlansFile string

	// Reconciliation tuning
	OrderLockTTL time.Duration
	ReplayTTL    time.Duration

	// Stale pending order sweep
	StaleOrderAge      time.Duration
	StaleOrderSchedule string

	// Brevo email configuration
	BrevoAPIKey    string
	BrevoFromEmail string
	BrevoFromName  string

	// Membership webhook
	MembershipWebhookURL    string
	MembershipWebhookSecret string
}

// Load reads the .env file (if any) and the process environment.
func Load() (*Config, error) {
	// A missing .env file is not an error
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		Mode:                    getEnv("GIN_MODE", "debug"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		RedisURL:                getEnv("REDIS_URL", ""),
		JWTSecret:               getEnv("JWT_SECRET", ""),
		JWTAudience:             getEnv("JWT_AUDIENCE", "authenticated"),
		GatewayURL:              getEnv("ZPAY_API_URL", "https://zpayz.cn/mapi.php"),
		MerchantID:              getEnv("ZPAY_MERCHANT_ID", ""),
		MerchantKey:             getEnv("ZPAY_MERCHANT_KEY", ""),
		NotifyURL:               getEnv("ZPAY_NOTIFY_URL", ""),
		GatewayTimeout:          getEnvDuration("GATEWAY_TIMEOUT", 5*time.Second),
		PlansFile:               getEnv("PLANS_FILE", ""),
		OrderLockTTL:            getEnvDuration("ORDER_LOCK_TTL", 10*time.Second),
		ReplayTTL:               getEnvDuration("REPLAY_TTL", 24*time.Hour),
		StaleOrderAge:           getEnvDuration("STALE_ORDER_AGE", 30*time.Minute),
		StaleOrderSchedule:      getEnv("STALE_ORDER_SCHEDULE", "@every 10m"),
		BrevoAPIKey:             getEnv("BREVO_API_KEY", ""),
		BrevoFromEmail:          getEnv("BREVO_FROM_EMAIL", ""),
		BrevoFromName:           getEnv("BREVO_FROM_NAME", "Payment Service"),
		MembershipWebhookURL:    getEnv("MEMBERSHIP_WEBHOOK_URL", ""),
		MembershipWebhookSecret: getEnv("MEMBERSHIP_WEBHOOK_SECRET", ""),
	}

	return cfg, nil
}

// Validate reports every required key that is missing.
func (c *Config) Validate() error {
	var missing []string
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.MerchantID == "" {
		missing = append(missing, "ZPAY_MERCHANT_ID")
	}
	if c.MerchantKey == "" {
		missing = append(missing, "ZPAY_MERCHANT_KEY")
	}
	if c.GatewayTimeout <= 0 {
		missing = append(missing, "GATEWAY_TIMEOUT")
	}
	if len(missing) > 0 {
		return errors.New("missing or invalid configuration: " + strings.Join(missing, ", "))
	}
	return nil
}

// IsRelease reports whether gin runs in release mode.
func (c *Config) IsRelease() bool {
	return c.Mode == "release"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("5s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if seconds := getEnvInt(key, -1); seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
