package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	LogLevel    string
	HTTPPort    int
	MetricsPort int

	DatabaseURL       string
	PrimaryTable      string
	LegacyDatabaseURL string
	LegacyTable       string
	RedisURL          string

	KafkaBrokers   []string
	BroadcastTopic string
	OTLPEndpoint   string

	DefaultCountryPrefix string
	BroadcastWorkers     int
	MessagingInterval    time.Duration
	BroadcastTimeout     time.Duration
	BroadcastLockTTL     time.Duration

	GatewayURL       string
	GatewayToken     string
	GatewaySender    string
	SESEndpoint      string
	SESAPIKey        string
	SendGridEndpoint string
	SendGridAPIKey   string
	EmailFrom        string
	ProviderTimeout  time.Duration
}

func LoadConfig(service string) (*Config, error) {
	// a missing .env is the normal case outside local development
	_ = godotenv.Load()

	cfg := &Config{ServiceName: service}

	httpPort, err := getEnvInt("HTTP_PORT", 8080)
	if err != nil {
		return nil, err
	}
	cfg.HTTPPort = httpPort

	metricsPort, err := getEnvInt("METRICS_PORT", httpPort+1000)
	if err != nil {
		return nil, err
	}
	cfg.MetricsPort = metricsPort

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.PrimaryTable = getEnv("PRIMARY_TABLE", "users")
	cfg.LegacyDatabaseURL = os.Getenv("LEGACY_DATABASE_URL")
	cfg.LegacyTable = getEnv("LEGACY_TABLE", "registrations")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.OTLPEndpoint = os.Getenv("OTLP_ENDPOINT")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	cfg.BroadcastTopic = getEnv("BROADCAST_TOPIC", "broadcast.completed")

	cfg.DefaultCountryPrefix = getEnv("DEFAULT_COUNTRY_PREFIX", "+256")
	if cfg.BroadcastWorkers, err = getEnvInt("BROADCAST_WORKERS", 4); err != nil {
		return nil, err
	}
	if cfg.MessagingInterval, err = getEnvDuration("MESSAGING_INTERVAL", 300*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.BroadcastTimeout, err = getEnvDuration("BROADCAST_TIMEOUT", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.BroadcastLockTTL, err = getEnvDuration("BROADCAST_LOCK_TTL", 15*time.Minute); err != nil {
		return nil, err
	}

	cfg.GatewayURL = os.Getenv("MESSAGING_GATEWAY_URL")
	cfg.GatewayToken = os.Getenv("MESSAGING_GATEWAY_TOKEN")
	cfg.GatewaySender = os.Getenv("MESSAGING_SENDER")
	cfg.SESEndpoint = os.Getenv("SES_ENDPOINT")
	cfg.SESAPIKey = os.Getenv("SES_API_KEY")
	cfg.SendGridEndpoint = os.Getenv("SENDGRID_ENDPOINT")
	cfg.SendGridAPIKey = os.Getenv("SENDGRID_API_KEY")
	cfg.EmailFrom = getEnv("EMAIL_FROM", "noreply@localhost")
	if cfg.ProviderTimeout, err = getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		return parsed, nil
	}
	return fallback, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		return parsed, nil
	}
	return fallback, nil
}
