package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fjod/cheeseshop/internal/repository"
)

type Config struct {
	HTTPPort string

	CatalogDBPath         string
	CatalogMigrationsPath string

	Purchases repository.Credentials

	// Optional components stay off while their address is unset.
	MongoURI      string
	MongoDBName   string
	RedisAddr     string
	RedisPassword string
	KafkaBrokers  string

	SessionCacheSize   int
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
}

func Load() (*Config, error) {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	sessionCacheSize, err := strconv.Atoi(getEnv("SESSION_CACHE_SIZE", "10000"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_CACHE_SIZE: %w", err)
	}
	if sessionCacheSize <= 0 {
		return nil, fmt.Errorf("invalid SESSION_CACHE_SIZE: must be positive, got %d", sessionCacheSize)
	}

	requestTimeout, err := time.ParseDuration(getEnv("REQUEST_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		CatalogDBPath:         getEnv("CATALOG_DB_PATH", "./data/catalog.db"),
		CatalogMigrationsPath: getEnv("CATALOG_MIGRATIONS_PATH", "./internal/repository/migrations/catalog"),
		Purchases: repository.Credentials{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              dbPort,
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", "postgres"),
			DBName:            getEnv("DB_NAME", "cheeseshop"),
			MigrationsDirPath: getEnv("PURCHASE_MIGRATIONS_PATH", "./internal/repository/migrations/purchases"),
		},
		MongoURI:           getEnv("MONGO_URI", ""),
		MongoDBName:        getEnv("MONGO_DB_NAME", "cheeseshop"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:       getEnv("KAFKA_BROKERS", ""),
		SessionCacheSize:   sessionCacheSize,
		RequestTimeout:     requestTimeout,
		ShutdownTimeout:    shutdownTimeout,
		MaxRequestBodySize: 1 << 20, // 1MB
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
