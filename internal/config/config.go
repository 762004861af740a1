package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName string
	AppEnv  string
	AppURL  string
	Port    string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Identity: bearer tokens are issued elsewhere and signed with this secret
	JWTSecret string

	// Delivery
	DeliveryBackend string // "email" or "kafka"
	EmailFrom       string
	ResendAPIKey    string
	KafkaBrokers    []string
	KafkaTopic      string

	// Observability (optional)
	SentryDSN string

	// Storage (optional, S3-compatible: MinIO, AWS S3, Cloudflare R2, DigitalOcean Spaces)
	S3Region        string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3Endpoint      string
	S3PresignExpiry time.Duration

	// Lifecycle
	PickupWindow          time.Duration
	PickupExpiryEnforced  bool
	PickupReminderLead    time.Duration
	ExpiringLead          time.Duration
	FanoutRadiusKm        float64
	FanoutMaxRecipients   int
	NearbyRadiusKm        float64
	NotificationRetention time.Duration

	// Runtime
	SweepInterval      time.Duration
	GeoRefreshInterval time.Duration
	TaskTimeout        time.Duration
	RequestTimeout     time.Duration
	VerifyRateLimit    int
	VerifyRateWindow   time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName: envString("APP_NAME", "FoodShare"),
		AppEnv:  envRequired("APP_ENV"), // Required: 'development' or 'production'
		AppURL:  envString("APP_URL", "http://localhost:8090"),
		Port:    envString("PORT", "8090"),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/foodshare.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),

		JWTSecret: envRequired("JWT_SECRET"),

		// Delivery (RESEND_API_KEY optional in development, email is logged instead)
		DeliveryBackend: envString("DELIVERY_BACKEND", "email"),
		EmailFrom:       envString("EMAIL_FROM", "noreply@example.com"),
		ResendAPIKey:    envString("RESEND_API_KEY", ""),
		KafkaBrokers:    envList("KAFKA_BROKERS"),
		KafkaTopic:      envString("KAFKA_TOPIC", "foodshare-alerts"),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),

		// Storage (listing photos are disabled when S3_BUCKET is empty)
		S3Region:        envString("S3_REGION", "us-east-1"),
		S3Bucket:        envString("S3_BUCKET", ""),
		S3AccessKey:     envString("S3_ACCESS_KEY", ""),
		S3SecretKey:     envString("S3_SECRET_KEY", ""),
		S3Endpoint:      envString("S3_ENDPOINT", ""),
		S3PresignExpiry: envDuration("S3_PRESIGN_EXPIRY", 24*time.Hour),

		// Lifecycle
		PickupWindow:          envDuration("PICKUP_WINDOW", 2*time.Hour),
		PickupExpiryEnforced:  envBool("PICKUP_EXPIRY_ENFORCED", true),
		PickupReminderLead:    envDuration("PICKUP_REMINDER_LEAD", 30*time.Minute),
		ExpiringLead:          envDuration("EXPIRING_LEAD", 2*time.Hour),
		FanoutRadiusKm:        envFloat("FANOUT_RADIUS_KM", 10),
		FanoutMaxRecipients:   envInt("FANOUT_MAX_RECIPIENTS", 50),
		NearbyRadiusKm:        envFloat("NEARBY_RADIUS_KM", 5),
		NotificationRetention: envDuration("NOTIFICATION_RETENTION", 7*24*time.Hour),

		// Runtime
		SweepInterval:      envDuration("SWEEP_INTERVAL", time.Minute),
		GeoRefreshInterval: envDuration("GEO_REFRESH_INTERVAL", 5*time.Minute),
		TaskTimeout:        envDuration("TASK_TIMEOUT", 10*time.Second),
		RequestTimeout:     envDuration("REQUEST_TIMEOUT", 15*time.Second),
		VerifyRateLimit:    envInt("VERIFY_RATE_LIMIT", 10),
		VerifyRateWindow:   envDuration("VERIFY_RATE_WINDOW", 15*time.Minute),
	}

	// Production: validate required services
	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// validateProduction ensures a real delivery backend is configured.
// Development logs alerts instead of sending them.
func validateProduction(cfg *Config) {
	switch cfg.DeliveryBackend {
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			slog.Error("production deployment with DELIVERY_BACKEND=kafka requires KAFKA_BROKERS")
			os.Exit(1)
		}
	default:
		if cfg.ResendAPIKey == "" {
			slog.Error("production deployment requires RESEND_API_KEY",
				"hint", "set APP_ENV=development for local testing with email log mode")
			os.Exit(1)
		}
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		slog.Warn("config invalid number, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
