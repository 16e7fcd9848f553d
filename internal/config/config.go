// Package config loads settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	HTTPPort           string
	DBPath             string
	StoreBackend       string
	RedisAddr          string
	RedisPassword      string
	CacheTTL           time.Duration
	KafkaBrokers       []string
	CatalogTopic       string
	CatalogGroupID     string
	OrdersTopic        string
	OutboxInterval     time.Duration
	LogLevel           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	User               *domain.User // nil: nobody signed in
}

// Load reads envFile when it exists, then the environment. Variables already
// set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		DBPath:             getEnv("DB_PATH", "./storefront.db"),
		StoreBackend:       getEnv("STORE_BACKEND", BackendSQLite),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:       splitList(getEnv("KAFKA_BROKERS", "")),
		CatalogTopic:       getEnv("CATALOG_TOPIC", "catalog-updates"),
		CatalogGroupID:     getEnv("CATALOG_GROUP_ID", "storefront-catalog"),
		OrdersTopic:        getEnv("ORDERS_TOPIC", "orders-outbox"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		MaxRequestBodySize: 1 << 20, // 1MB
	}

	var err error
	durations := []struct {
		key, def string
		dst      *time.Duration
	}{
		{"CACHE_TTL", "15m", &cfg.CacheTTL},
		{"OUTBOX_INTERVAL", "1s", &cfg.OutboxInterval},
		{"REQUEST_TIMEOUT", "30s", &cfg.RequestTimeout},
		{"SHUTDOWN_TIMEOUT", "10s", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(getEnv(d.key, d.def)); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
	}

	switch cfg.StoreBackend {
	case BackendSQLite, BackendMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q", cfg.StoreBackend)
	}

	if cfg.User, err = loadUser(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadUser() (*domain.User, error) {
	raw := getEnv("USER_ID", "")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid USER_ID %q", raw)
	}
	return &domain.User{
		ID:        id,
		Name:      getEnv("USER_NAME", ""),
		Surname:   getEnv("USER_SURNAME", ""),
		RUN:       getEnv("USER_RUN", ""),
		BirthDate: getEnv("USER_BIRTH_DATE", ""),
		Email:     getEnv("USER_EMAIL", ""),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
