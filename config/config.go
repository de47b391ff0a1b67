package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration, for the reference server and
// for the operator CLI
type Config struct {
	GoEnv    string
	LogLevel string
	// EnvFile is the .env file the values were read from, empty when none
	EnvFile  string

	// Reference server
	DatabaseURL        string
	Port               string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	CORSAllowedOrigins []string
	SeedDemoData       bool

	// Shared by server and CLI
	PublicPathPrefix string

	// Operator CLI
	APIURL           string
	APIToken         string
	HTTPTimeout      time.Duration
	SweepSchedule    string
	SweepConcurrency int
	MetricsAddr      string

	// Sweep report archive
	AWSRegion          string
	AWSS3Bucket        string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSS3Endpoint      string
}

// Load loads the configuration from environment variables
// It automatically determines which .env file to load based on GO_ENV
func Load() (*Config, error) {
	// Determine which environment file to load
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	// Try to load environment-specific file first
	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		// Variables may be set directly in the environment
		envFile = ".env"
		if err := godotenv.Load(); err != nil {
			envFile = ""
		}
	}

	timeout, err := getDuration("HTTP_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	concurrency, err := getInt("SWEEP_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}

	config := &Config{
		GoEnv:              getEnv("GO_ENV", "development"),
		EnvFile:            envFile,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		Port:               getEnv("PORT", "8080"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		JWTIssuer:          getEnv("JWT_ISSUER", "ordrefab"),
		JWTAudience:        getEnv("JWT_AUDIENCE", "ordrefab-api"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		SeedDemoData:       getEnv("SEED_DEMO_DATA", "false") == "true",
		PublicPathPrefix:   getEnv("PUBLIC_PATH_PREFIX", "/api/public/"),
		APIURL:             getEnv("ORDREFAB_API_URL", "http://localhost:8080"),
		APIToken:           getEnv("ORDREFAB_TOKEN", ""),
		HTTPTimeout:        timeout,
		SweepSchedule:      getEnv("SWEEP_SCHEDULE", "@every 5m"),
		SweepConcurrency:   concurrency,
		MetricsAddr:        getEnv("METRICS_ADDR", ""),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSS3Bucket:        getEnv("AWS_S3_BUCKET", ""),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSS3Endpoint:      getEnv("AWS_S3_ENDPOINT", ""),
	}

	return config, nil
}

// Validate checks the values the reference server cannot start without
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

// ValidateClient checks the values the operator CLI cannot run without
func (c *Config) ValidateClient() error {
	if c.APIURL == "" {
		return fmt.Errorf("ORDREFAB_API_URL is required")
	}
	if c.APIToken == "" {
		return fmt.Errorf("ORDREFAB_TOKEN is required")
	}
	if c.SweepConcurrency < 1 {
		return fmt.Errorf("SWEEP_CONCURRENCY must be at least 1, got %d", c.SweepConcurrency)
	}
	return nil
}

// ArchiveEnabled reports whether sweep reports should be written to S3
func (c *Config) ArchiveEnabled() bool {
	return c.AWSS3Bucket != ""
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration such as 10s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
