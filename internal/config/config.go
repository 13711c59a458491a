package config

import (
	"fmt"
	"github.com/joho/godotenv"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort        string
	ServiceApiPort string

	// Auction engine
	BidIncrement       float64       // Fixed minimum increment over the current highest bid
	ExtensionThreshold time.Duration // Trailing window in which a bid triggers an extension
	ExtensionDuration  time.Duration // How far each extension pushes the end time back
	EndingSoonWindow   time.Duration // Lead window for "ending soon" notifications
	EndingTodayWindow  time.Duration // Lead window for "ending today" notifications
	NotifyDedupTTL     time.Duration // TTL for the per-recipient notification dedup ledger
	SettlementCron     string        // Cron spec for the settlement pass
	EndingScanCron     string        // Cron spec for the ending-soon/ending-today scans

	// Email
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string

	// AWS S3 (settlement report archive)
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	ReportS3Prefix     string

	// App Defaults
	AppName     string
	GetCacheTTL time.Duration

	// Rate Limiting Defaults
	RateLimitSoftBucketSize int
	RateLimitSoftRefillRate int // tokens per second
	RateLimitHardBucketSize int
	RateLimitHardRefillRate int // tokens per second
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode, // Set from flag
	}

	var err error

	// Helper function to get env var or default
	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	// Helper function to get required env var
	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	// Load basic string values
	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")
	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "auctions@hbh.example.com")
	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.ReportS3Prefix = getEnv("REPORT_S3_PREFIX", "settlement-reports/")
	cfg.AppName = getEnv("APP_NAME", "HBH")
	cfg.SettlementCron = getEnv("SETTLEMENT_CRON", "*/5 * * * *")
	cfg.EndingScanCron = getEnv("ENDING_SCAN_CRON", "*/10 * * * *")

	// Load numeric and time duration values with defaults and parsing
	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	jwtTTLSeconds, err := strconv.ParseInt(getEnv("JWT_TTL_SECONDS", "3600"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL_SECONDS: %w", err)
	}
	cfg.JwtTTL = time.Duration(jwtTTLSeconds) * time.Second

	cfg.SmtpPort, err = strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	cfg.BidIncrement, err = strconv.ParseFloat(getEnv("BID_INCREMENT", "100.00"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid BID_INCREMENT: %w", err)
	}
	if cfg.BidIncrement <= 0 {
		return nil, fmt.Errorf("BID_INCREMENT must be positive, got %v", cfg.BidIncrement)
	}

	extensionThresholdMinutes, err := strconv.ParseInt(getEnv("EXTENSION_THRESHOLD_MINUTES", "10"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid EXTENSION_THRESHOLD_MINUTES: %w", err)
	}
	cfg.ExtensionThreshold = time.Duration(extensionThresholdMinutes) * time.Minute

	extensionMinutes, err := strconv.ParseInt(getEnv("EXTENSION_MINUTES", "10"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid EXTENSION_MINUTES: %w", err)
	}
	cfg.ExtensionDuration = time.Duration(extensionMinutes) * time.Minute

	endingSoonMinutes, err := strconv.ParseInt(getEnv("ENDING_SOON_WINDOW_MINUTES", "60"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ENDING_SOON_WINDOW_MINUTES: %w", err)
	}
	cfg.EndingSoonWindow = time.Duration(endingSoonMinutes) * time.Minute

	endingTodayHours, err := strconv.ParseInt(getEnv("ENDING_TODAY_WINDOW_HOURS", "24"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ENDING_TODAY_WINDOW_HOURS: %w", err)
	}
	cfg.EndingTodayWindow = time.Duration(endingTodayHours) * time.Hour

	notifyDedupTTLHours, err := strconv.ParseInt(getEnv("NOTIFY_DEDUP_TTL_HOURS", "48"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFY_DEDUP_TTL_HOURS: %w", err)
	}
	cfg.NotifyDedupTTL = time.Duration(notifyDedupTTLHours) * time.Hour

	getCacheTTLSeconds, err := strconv.ParseInt(getEnv("GET_CACHE_TTL_SECONDS", "60"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GET_CACHE_TTL_SECONDS: %w", err)
	}
	cfg.GetCacheTTL = time.Duration(getCacheTTLSeconds) * time.Second

	// Rate Limiting
	cfg.RateLimitSoftBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_BUCKET_SIZE", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitSoftRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_REFILL_RATE", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_REFILL_RATE: %w", err)
	}
	cfg.RateLimitHardBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_BUCKET_SIZE", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitHardRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_REFILL_RATE", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_REFILL_RATE: %w", err)
	}

	return cfg, nil
}
