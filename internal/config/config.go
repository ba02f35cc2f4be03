// Package config reads service settings from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port            string
	PostgresURL     string
	RedisAddr       string
	KafkaBrokers    []string
	StatusTopic     string
	WorkerGroup     string
	FulfillmentStep time.Duration
	HistoryLimit    int
	SessionIdle     time.Duration
	ServiceName     string
	ServiceVersion  string
	OTLPEndpoint    string
	MigrationsPath  string
	NotifyURL       string
}

// Load reads the environment. Malformed numbers and durations fall back to
// their defaults with a warning on logger.
func Load(logger *slog.Logger) Config {
	return Config{
		Port:            getenv("PORT", "8080"),
		PostgresURL:     os.Getenv("POSTGRES_URL"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		KafkaBrokers:    splitCSV(os.Getenv("KAFKA_BROKERS")),
		StatusTopic:     getenv("STATUS_TOPIC", "order.status"),
		WorkerGroup:     getenv("WORKER_GROUP", "notification-worker"),
		FulfillmentStep: getDuration(logger, "FULFILLMENT_STEP", 5*time.Second),
		HistoryLimit:    getInt(logger, "HISTORY_LIMIT", 5),
		SessionIdle:     getDuration(logger, "SESSION_IDLE_TIMEOUT", 30*time.Minute),
		ServiceName:     getenv("SERVICE_NAME", "grocery-fulfillment"),
		ServiceVersion:  getenv("SERVICE_VERSION", "dev"),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		MigrationsPath:  getenv("MIGRATIONS_PATH", "file://migrations"),
		NotifyURL:       os.Getenv("NOTIFY_URL"),
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(logger *slog.Logger, key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		logger.Warn("invalid integer setting, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return n
}

func getDuration(logger *slog.Logger, key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		logger.Warn("invalid duration setting, using default", "key", key, "value", raw, "default", def)
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
