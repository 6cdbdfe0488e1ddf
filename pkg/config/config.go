package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the screening backend.
// Every environment variable is read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Screening thresholds
	Screening ScreeningConfig

	// Batch pipeline
	Pipeline PipelineConfig

	// Alert delivery handoff
	Delivery DeliveryConfig

	// Raw filing document store
	ObjectStore ObjectStoreConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// ScreeningConfig holds AAOIFI ratio caps and extraction tolerances.
// Caps are fractions, not percentages: 0.30 means 30%.
type ScreeningConfig struct {
	DebtRatioCap              float64
	NonPermissibleIncomeCap   float64
	IlliquidAssetsCap         float64
	ExtractionConfidenceFloor float64
	ReportingCurrency         string
	OutOfOrderGraceDays       int
}

// PipelineConfig holds batch orchestration settings
type PipelineConfig struct {
	Workers         int
	ExtractTimeout  time.Duration
	DeliveryTimeout time.Duration
}

// DeliveryConfig holds alert handoff settings for the external delivery channel
type DeliveryConfig struct {
	EndpointURL   string
	RetryCeiling  int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	RatePerSecond float64
}

// ObjectStoreConfig holds the document store location for raw filing bodies
type ObjectStoreConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Load reads configuration from environment variables.
// This is the only function in the codebase that calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "halal_lens"),
			User:            getEnv("DB_USER", "halal_lens"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},

		Screening: ScreeningConfig{
			DebtRatioCap:              getEnvAsFloat("DEBT_RATIO_CAP", 0.30),
			NonPermissibleIncomeCap:   getEnvAsFloat("NON_PERMISSIBLE_INCOME_CAP", 0.05),
			IlliquidAssetsCap:         getEnvAsFloat("ILLIQUID_ASSETS_CAP", 0.30),
			ExtractionConfidenceFloor: getEnvAsFloat("EXTRACTION_CONFIDENCE_FLOOR", 0.60),
			ReportingCurrency:         getEnv("REPORTING_CURRENCY", "INR"),
			OutOfOrderGraceDays:       getEnvAsInt("OUT_OF_ORDER_GRACE_DAYS", 93),
		},

		Pipeline: PipelineConfig{
			Workers:         getEnvAsInt("PIPELINE_WORKERS", 5),
			ExtractTimeout:  getEnvAsDuration("PIPELINE_EXTRACT_TIMEOUT", "2m"),
			DeliveryTimeout: getEnvAsDuration("PIPELINE_DELIVERY_TIMEOUT", "30s"),
		},

		Delivery: DeliveryConfig{
			EndpointURL:   getEnv("ALERT_DELIVERY_URL", ""),
			RetryCeiling:  getEnvAsInt("ALERT_RETRY_CEILING", 5),
			InitialDelay:  getEnvAsDuration("ALERT_RETRY_INITIAL_DELAY", "1s"),
			MaxDelay:      getEnvAsDuration("ALERT_RETRY_MAX_DELAY", "30s"),
			RatePerSecond: getEnvAsFloat("ALERT_DELIVERY_RATE", 10),
		},

		ObjectStore: ObjectStoreConfig{
			BaseURL: getEnv("OBJECT_STORE_URL", "http://localhost:9000/filings"),
			Timeout: getEnvAsDuration("OBJECT_STORE_TIMEOUT", "60s"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Screening.DebtRatioCap <= 0 || c.Screening.DebtRatioCap >= 1 {
		return fmt.Errorf("DEBT_RATIO_CAP must be in (0, 1)")
	}
	if c.Screening.NonPermissibleIncomeCap <= 0 || c.Screening.NonPermissibleIncomeCap >= 1 {
		return fmt.Errorf("NON_PERMISSIBLE_INCOME_CAP must be in (0, 1)")
	}
	if c.Screening.IlliquidAssetsCap <= 0 || c.Screening.IlliquidAssetsCap >= 1 {
		return fmt.Errorf("ILLIQUID_ASSETS_CAP must be in (0, 1)")
	}
	if c.Screening.ExtractionConfidenceFloor < 0 || c.Screening.ExtractionConfidenceFloor > 1 {
		return fmt.Errorf("EXTRACTION_CONFIDENCE_FLOOR must be in [0, 1]")
	}
	if c.Screening.OutOfOrderGraceDays < 0 {
		return fmt.Errorf("OUT_OF_ORDER_GRACE_DAYS must be >= 0")
	}
	if c.Delivery.RetryCeiling < 0 {
		return fmt.Errorf("ALERT_RETRY_CEILING must be >= 0")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
			filepath.Join(exeDir, "..", "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
