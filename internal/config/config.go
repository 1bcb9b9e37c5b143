// Package config loads application configuration from defaults, an optional
// YAML file and environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"server_address"`
	Environment   string `yaml:"environment"`

	// AWS configuration
	AWSRegion        string `yaml:"aws_region"`
	DynamoDBEndpoint string `yaml:"dynamodb_endpoint"`
	TableName        string `yaml:"table_name"`
	GSI1Name         string `yaml:"gsi1_name"`
	EmailIndexName   string `yaml:"email_index_name"`
	EventBusName     string `yaml:"event_bus_name"`

	// In-process store instead of DynamoDB, for local runs.
	UseMemoryStore bool `yaml:"use_memory_store"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Authentication
	JWTSecret   string `yaml:"jwt_secret"`
	JWTIssuer   string `yaml:"jwt_issuer"`
	JWTAudience string `yaml:"jwt_audience"`

	// Feature flags
	EnableMetrics bool   `yaml:"enable_metrics"`
	EnableTracing bool   `yaml:"enable_tracing"`
	EnableCORS    bool   `yaml:"enable_cors"`
	OTLPEndpoint  string `yaml:"otlp_endpoint"`

	AllowedOrigins []string `yaml:"allowed_origins"`

	// Store resilience
	BreakerMaxRequests uint32        `yaml:"breaker_max_requests"`
	BreakerInterval    time.Duration `yaml:"breaker_interval"`
	BreakerTimeout     time.Duration `yaml:"breaker_timeout"`
	BreakerFailureRate float64       `yaml:"breaker_failure_rate"`
	SlowOperation      time.Duration `yaml:"slow_operation"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		ServerAddress:      ":8080",
		Environment:        "development",
		AWSRegion:          "us-east-1",
		TableName:          "strivesync",
		GSI1Name:           "GSI1",
		EmailIndexName:     "EmailIndex",
		EventBusName:       "strivesync-events",
		LogLevel:           "info",
		JWTIssuer:          "strivesync",
		EnableMetrics:      true,
		EnableCORS:         true,
		OTLPEndpoint:       "localhost:4317",
		BreakerMaxRequests: 3,
		BreakerInterval:    10 * time.Second,
		BreakerTimeout:     30 * time.Second,
		BreakerFailureRate: 0.6,
		SlowOperation:      500 * time.Millisecond,
	}
}

// LoadConfig builds the configuration and validates it.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)

	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.DynamoDBEndpoint = getEnv("DYNAMODB_ENDPOINT", c.DynamoDBEndpoint)
	c.TableName = getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", c.TableName))
	c.GSI1Name = getEnv("GSI1_NAME", c.GSI1Name)
	c.EmailIndexName = getEnv("EMAIL_INDEX_NAME", c.EmailIndexName)
	c.EventBusName = getEnv("EVENT_BUS_NAME", c.EventBusName)
	c.UseMemoryStore = getEnvBool("USE_MEMORY_STORE", c.UseMemoryStore)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.JWTIssuer = getEnv("JWT_ISSUER", c.JWTIssuer)
	c.JWTAudience = getEnv("JWT_AUDIENCE", c.JWTAudience)

	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.EnableCORS = getEnvBool("ENABLE_CORS", c.EnableCORS)
	c.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTLPEndpoint)
	if origins := getEnv("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		c.AllowedOrigins = strings.Split(origins, ",")
	}

	c.BreakerMaxRequests = uint32(getEnvInt("BREAKER_MAX_REQUESTS", int(c.BreakerMaxRequests)))
	c.BreakerInterval = getEnvDuration("BREAKER_INTERVAL", c.BreakerInterval)
	c.BreakerTimeout = getEnvDuration("BREAKER_TIMEOUT", c.BreakerTimeout)
	c.BreakerFailureRate = getEnvFloat("BREAKER_FAILURE_RATE", c.BreakerFailureRate)
	c.SlowOperation = getEnvDuration("SLOW_OPERATION_THRESHOLD", c.SlowOperation)
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	var errs []error

	if c.TableName == "" {
		errs = append(errs, errors.New("TABLE_NAME is required"))
	}
	if c.GSI1Name == "" || c.EmailIndexName == "" {
		errs = append(errs, errors.New("GSI1_NAME and EMAIL_INDEX_NAME are required"))
	}
	if c.BreakerFailureRate <= 0 || c.BreakerFailureRate > 1 {
		errs = append(errs, fmt.Errorf("BREAKER_FAILURE_RATE must be in (0, 1], got %v", c.BreakerFailureRate))
	}

	if c.IsProduction() {
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
		if c.EventBusName == "" {
			errs = append(errs, errors.New("EVENT_BUS_NAME is required in production"))
		}
		if c.UseMemoryStore {
			errs = append(errs, errors.New("USE_MEMORY_STORE is not allowed in production"))
		}
	}

	return errors.Join(errs...)
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsLambda reports whether the process runs inside AWS Lambda.
func IsLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
