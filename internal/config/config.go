package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Payment  PaymentConfig
	Order    OrderConfig
	Events   EventsConfig
	Auth     AuthConfig
	LogLevel string
	QRSecret string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	AutoMigrate  bool
}

// DSN builds the lib/pq connection string, preferring POSTGRES_DSN when set.
func (d DatabaseConfig) DSN() string {
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Enabled bool
	Topics  TopicConfig
}

type TopicConfig struct {
	OrderCreated   string
	OrderPaid      string
	OrderCancelled string
	OrderExpired   string
	Notifications  string
}

// All lists every topic the service produces to or consumes from.
func (t TopicConfig) All() []string {
	return []string{t.OrderCreated, t.OrderPaid, t.OrderCancelled, t.OrderExpired, t.Notifications}
}

type PaymentConfig struct {
	Gateway             string // "midtrans" or "stripe"
	MidtransServerKey   string
	MidtransProduction  bool
	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
	Timeout             time.Duration
}

type OrderConfig struct {
	ExpiryThreshold  time.Duration
	SweepInterval    time.Duration
	PurchaseLockTTL  time.Duration
	HoldNotification bool
}

type EventsConfig struct {
	ListCacheTTL time.Duration
	ViewCooldown time.Duration
}

type AuthConfig struct {
	OIDCIssuer string
	JWTSecret  string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 0),
			IdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			CORSOrigins:  strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "nesavent"),
			Password:     getEnv("DB_PASSWORD", "nesavent"),
			Database:     getEnv("DB_NAME", "nesavent"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			AutoMigrate:  getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			GroupID: getEnv("KAFKA_GROUP_ID", "nesavent"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				OrderCreated:   getEnv("KAFKA_TOPIC_ORDER_CREATED", "nesavent.order.created"),
				OrderPaid:      getEnv("KAFKA_TOPIC_ORDER_PAID", "nesavent.order.paid"),
				OrderCancelled: getEnv("KAFKA_TOPIC_ORDER_CANCELLED", "nesavent.order.cancelled"),
				OrderExpired:   getEnv("KAFKA_TOPIC_ORDER_EXPIRED", "nesavent.order.expired"),
				Notifications:  getEnv("KAFKA_TOPIC_NOTIFICATIONS", "nesavent.notifications"),
			},
		},
		Payment: PaymentConfig{
			Gateway:             getEnv("PAYMENT_GATEWAY", "midtrans"),
			MidtransServerKey:   getEnv("MIDTRANS_SERVER_KEY", ""),
			MidtransProduction:  getEnvBool("MIDTRANS_IS_PRODUCTION", false),
			StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:            getEnv("PAYMENT_CURRENCY", "idr"),
			Timeout:             getEnvDuration("PAYMENT_TIMEOUT", 15*time.Second),
		},
		Order: OrderConfig{
			ExpiryThreshold:  getEnvDuration("ORDER_EXPIRY_THRESHOLD", time.Hour),
			SweepInterval:    getEnvDuration("ORDER_SWEEP_INTERVAL", 10*time.Minute),
			PurchaseLockTTL:  getEnvDuration("PURCHASE_LOCK_TTL", 10*time.Second),
			HoldNotification: getEnvBool("ORDER_HOLD_KEYSPACE_EVENTS", true),
		},
		Events: EventsConfig{
			ListCacheTTL: getEnvDuration("EVENT_LIST_CACHE_TTL", time.Minute),
			ViewCooldown: getEnvDuration("EVENT_VIEW_COOLDOWN", time.Hour),
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
			JWTSecret:  getEnv("JWT_SECRET", ""),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
		QRSecret: getEnv("QR_SECRET_KEY", "nesavent-dev-qr-secret"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s", "1h") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
