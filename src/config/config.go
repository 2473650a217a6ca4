package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	DatabaseURL   string
	JWTSecret     string
	EncryptionKey string

	AggregatorBaseURL string

	WebhookSecret          string
	WebhookFallbackSecrets []string
	WebhookTolerance       time.Duration

	SyncWorkers    int
	SyncQueueSize  int
	SyncLookback   time.Duration
	SyncPageSize   int
	SyncMaxPages   int
	SyncLockTTL    time.Duration
	SyncRunTimeout time.Duration

	SchedulerEnabled  bool
	SchedulerInterval time.Duration
}

func Load() Config {
	// Load .env file if present
	_ = godotenv.Load()

	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		AggregatorBaseURL: getEnv("AGGREGATOR_BASE_URL", "https://api.aggregator.example.com/v1"),

		WebhookSecret:          getEnv("WEBHOOK_SECRET", ""),
		WebhookFallbackSecrets: splitEnv("WEBHOOK_FALLBACK_SECRETS"),
		WebhookTolerance:       getDurationEnv("WEBHOOK_TOLERANCE", 300*time.Second),

		SyncWorkers:    getIntEnv("SYNC_WORKERS", 4),
		SyncQueueSize:  getIntEnv("SYNC_QUEUE_SIZE", 100),
		SyncLookback:   time.Duration(getIntEnv("SYNC_LOOKBACK_DAYS", 90)) * 24 * time.Hour,
		SyncPageSize:   getIntEnv("SYNC_PAGE_SIZE", 100),
		SyncMaxPages:   getIntEnv("SYNC_MAX_PAGES", 200),
		SyncLockTTL:    getDurationEnv("SYNC_LOCK_TTL", 10*time.Minute),
		SyncRunTimeout: getDurationEnv("SYNC_RUN_TIMEOUT", 5*time.Minute),

		SchedulerEnabled:  getBoolEnv("SCHEDULER_ENABLED", true),
		SchedulerInterval: getDurationEnv("SCHEDULER_INTERVAL", time.Minute),
	}

	// Misconfiguration is surfaced loudly at startup, never papered
	// over with a fallback.
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	if cfg.WebhookSecret == "" {
		log.Fatal("WEBHOOK_SECRET is required")
	}
	if len(cfg.EncryptionKey) != 32 {
		log.Fatal("ENCRYPTION_KEY must be exactly 32 bytes")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return parsed
}

func getBoolEnv(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return parsed
}

func splitEnv(key string) []string {
	value := getEnv(key, "")
	if value == "" {
		return nil
	}
	var parts []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
