package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration of the registry API.
type Config struct {
	DatabaseURL string
	HTTPAddr    string
	JWTSecret   string

	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Relay    RelayConfig
	Log      LogConfig

	// AdminUserIDs are always notified in addition to the admin accounts in the store.
	AdminUserIDs []string
	// NotifyLocale is the BCP 47 tag used to format amounts in notification messages.
	NotifyLocale string
	// InactiveAfter is the idle period after which ordinary accounts may be purged.
	InactiveAfter time.Duration
	// PaymentPagePath prefixes the payment deep link sent to buyers.
	PaymentPagePath string
}

type RedisConfig struct {
	URL      string
	CacheTTL time.Duration
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
}

type RelayConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

type LogConfig struct {
	Level  string
	Format string
	Color  bool
}

// Load reads configuration from the environment, optionally seeded from a .env
// file. A missing .env file is not an error.
func Load(envPath ...string) (*Config, error) {
	var err error
	if len(envPath) > 0 {
		err = godotenv.Load(envPath...)
	} else {
		err = godotenv.Load()
	}
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load env file %v: %w", envPath, err)
		}
		log.Println("config: no .env file found, using process environment")
	}

	cfg := &Config{
		DatabaseURL: getEnvAsString("DATABASE_URL", ""),
		HTTPAddr:    getEnvAsString("HTTP_ADDR", ":8080"),
		JWTSecret:   getEnvAsString("JWT_SECRET", ""),
		Redis: RedisConfig{
			URL:      getEnvAsString("REDIS_URL", ""),
			CacheTTL: getEnvAsDuration("REGISTRY_CACHE_TTL", 10*time.Minute),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnvAsString("RABBITMQ_URL", ""),
			Exchange: getEnvAsString("NOTIFY_EXCHANGE", "title.notifications"),
		},
		Relay: RelayConfig{
			Interval:    getEnvAsDuration("RELAY_INTERVAL", 2*time.Second),
			BatchSize:   getEnvAsInt("RELAY_BATCH_SIZE", 10),
			MaxAttempts: getEnvAsInt("RELAY_MAX_ATTEMPTS", 5),
		},
		Log: LogConfig{
			Level:  getEnvAsString("LOG_LEVEL", "info"),
			Format: getEnvAsString("LOG_FORMAT", "text"),
			Color:  getEnvAsBool("LOG_COLOR", true),
		},
		AdminUserIDs:    getEnvAsList("ADMIN_USER_IDS"),
		NotifyLocale:    getEnvAsString("NOTIFY_LOCALE", "ar-EG"),
		InactiveAfter:   getEnvAsDuration("INACTIVE_AFTER", 30*24*time.Hour),
		PaymentPagePath: getEnvAsString("PAYMENT_PAGE_PATH", "/paymentPage"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first missing or out of range setting.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	if c.Relay.BatchSize <= 0 {
		return fmt.Errorf("config: RELAY_BATCH_SIZE must be positive, got %d", c.Relay.BatchSize)
	}
	if c.Relay.MaxAttempts <= 0 {
		return fmt.Errorf("config: RELAY_MAX_ATTEMPTS must be positive, got %d", c.Relay.MaxAttempts)
	}
	if c.Relay.Interval <= 0 {
		return fmt.Errorf("config: RELAY_INTERVAL must be positive")
	}
	return nil
}

func getEnvAsString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvAsString(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnvAsString(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvAsString(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := getEnvAsString(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
