package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration. Every tunable the pipeline and the
// background workers use lives here; components receive the struct at
// construction and never read the environment themselves.
type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT (validation only; tokens are issued by the identity service)
	JWTSecret string

	// Redis cache. Empty address disables Redis and falls back to the
	// in-process cache.
	RedisAddr string

	// Blob storage bucket for uploaded CSV files.
	GCSBucket string

	// Import pipeline
	ImportBatchSize int           // rows per insert batch
	BulkBatchSize   int           // rows per bulk categorization/detection batch
	UploadURLExpiry time.Duration // lifetime of pre-signed upload URLs

	// Background task execution
	WorkerCount   int
	TaskQueueSize int
	RetryBackoff  time.Duration
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "ledgerly"),
		DBPassword: getEnv("DB_PASSWORD", "ledgerly"),
		DBName:     getEnv("DB_NAME", "ledgerly"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),

		// Collaborators
		RedisAddr: getEnv("REDIS_ADDR", ""),
		GCSBucket: getEnv("GCS_BUCKET", ""),

		// Pipeline tuning
		ImportBatchSize: getEnvInt("IMPORT_BATCH_SIZE", 10000),
		BulkBatchSize:   getEnvInt("BULK_BATCH_SIZE", 50000),
		UploadURLExpiry: getEnvDuration("UPLOAD_URL_EXPIRY", time.Hour),

		// Workers
		WorkerCount:   getEnvInt("WORKER_COUNT", 5),
		TaskQueueSize: getEnvInt("TASK_QUEUE_SIZE", 256),
		RetryBackoff:  getEnvDuration("RETRY_BACKOFF", time.Second),
	}

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		log.Printf("Warning: invalid %s value %q, falling back to %d\n", key, raw, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value %q, falling back to %s\n", key, raw, defaultValue)
		return defaultValue
	}
	return value
}
