package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/stackops/stackops/internal/ports"
)

// Config represents application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	AI         AIConfig         `json:"ai"`
	Graph      GraphConfig      `json:"graph"`
	Guardrails GuardrailsConfig `json:"guardrails"`
	Redis      RedisConfig      `json:"redis"`
	RateLimit  RateLimitConfig  `json:"rate_limit"`
	Logging    LoggingConfig    `json:"logging"`
	Security   SecurityConfig   `json:"security"`
	Telemetry  TelemetryConfig  `json:"telemetry"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port         string        `json:"port"`
	Host         string        `json:"host"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	Environment  string        `json:"environment"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	// Driver is postgres or memory
	Driver         string        `json:"driver"`
	URL            string        `json:"-"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleTime    time.Duration `json:"max_idle_time"`
	MigrationsPath string        `json:"migrations_path"`
}

// AIConfig represents oracle configuration
type AIConfig struct {
	Provider    string  `json:"provider"`
	APIKey      string  `json:"-"`
	BaseURL     string  `json:"base_url"`
	Model       string  `json:"model"`
	TimeoutMs   int     `json:"timeout_ms"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// GraphConfig represents directory (Microsoft Graph) configuration
type GraphConfig struct {
	TenantID             string        `json:"tenant_id"`
	ClientID             string        `json:"client_id"`
	ClientSecret         string        `json:"-"`
	BaseURL              string        `json:"base_url"`
	DefaultUsageLocation string        `json:"default_usage_location"`
	Timeout              time.Duration `json:"timeout"`
	DryRun               bool          `json:"dry_run"`
}

// GuardrailsConfig locates the policy file
type GuardrailsConfig struct {
	Path string `json:"path"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	URL      string `json:"-"`
	PoolSize int    `json:"pool_size"`
}

// RateLimitConfig bounds chat requests per tenant
type RateLimitConfig struct {
	Enabled  bool          `json:"enabled"`
	Backend  string        `json:"backend"` // redis, memory
	Requests int           `json:"requests"`
	Window   time.Duration `json:"window"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // json, text
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	JWTSecret       string `json:"-"`
	RequireAuth     bool   `json:"require_auth"`
	DefaultApprover string `json:"default_approver"`
}

// TelemetryConfig represents OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled        bool          `json:"enabled"`
	ServiceName    string        `json:"service_name"`
	ServiceVersion string        `json:"service_version"`
	OTLPEndpoint   string        `json:"otlp_endpoint"`
	Insecure       bool          `json:"insecure"`
	SampleRate     float64       `json:"sample_rate"`
	ExportInterval time.Duration `json:"export_interval"`
}

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required when STORE_DRIVER=postgres")
	ErrMissingJWTSecret   = errors.New("JWT_SECRET is required when AUTH_REQUIRED=true")
)

// Load loads configuration from the environment, reading .env first when present
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvOrDefault("SERVER_PORT", "8080"),
			Host:         getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvOrDefaultDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvOrDefaultDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			IdleTimeout:  getEnvOrDefaultDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Environment:  getEnvOrDefault("ENV", "development"),
		},
		Database: DatabaseConfig{
			Driver:         strings.ToLower(getEnvOrDefault("STORE_DRIVER", "postgres")),
			URL:            os.Getenv("DATABASE_URL"),
			MaxConnections: getEnvOrDefaultInt("DB_MAX_CONNECTIONS", 20),
			MaxIdleTime:    getEnvOrDefaultDuration("DB_MAX_IDLE_TIME", 30*time.Minute),
			MigrationsPath: getEnvOrDefault("DB_MIGRATIONS_PATH", "./migrations"),
		},
		AI: AIConfig{
			Provider:    strings.ToLower(getEnvOrDefault("AI_PROVIDER", "mock")),
			APIKey:      os.Getenv("AI_API_KEY"),
			BaseURL:     os.Getenv("AI_BASE_URL"),
			Model:       os.Getenv("AI_MODEL"),
			TimeoutMs:   getEnvOrDefaultInt("AI_TIMEOUT_MS", 30000),
			MaxTokens:   getEnvOrDefaultInt("AI_MAX_TOKENS", 1500),
			Temperature: getEnvOrDefaultFloat("AI_TEMPERATURE", 0.1),
		},
		Graph: GraphConfig{
			TenantID:             os.Getenv("GRAPH_TENANT_ID"),
			ClientID:             os.Getenv("GRAPH_CLIENT_ID"),
			ClientSecret:         os.Getenv("GRAPH_CLIENT_SECRET"),
			BaseURL:              getEnvOrDefault("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"),
			DefaultUsageLocation: getEnvOrDefault("GRAPH_DEFAULT_USAGE_LOCATION", "FR"),
			Timeout:              getEnvOrDefaultDuration("GRAPH_TIMEOUT", 30*time.Second),
			DryRun:               getEnvOrDefaultBool("GRAPH_DRY_RUN", false),
		},
		Guardrails: GuardrailsConfig{
			Path: getEnvOrDefault("GUARDRAILS_PATH", "./guardrails.yaml"),
		},
		Redis: RedisConfig{
			URL:      getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
			PoolSize: getEnvOrDefaultInt("REDIS_POOL_SIZE", 10),
		},
		RateLimit: RateLimitConfig{
			Enabled:  getEnvOrDefaultBool("RATE_LIMIT_ENABLED", true),
			Backend:  strings.ToLower(getEnvOrDefault("RATE_LIMIT_BACKEND", "memory")),
			Requests: getEnvOrDefaultInt("RATE_LIMIT_REQUESTS", 30),
			Window:   getEnvOrDefaultDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		Security: SecurityConfig{
			JWTSecret:       os.Getenv("JWT_SECRET"),
			RequireAuth:     getEnvOrDefaultBool("AUTH_REQUIRED", false),
			DefaultApprover: getEnvOrDefault("DEFAULT_APPROVER", "admin"),
		},
		Telemetry: TelemetryConfig{
			Enabled:        getEnvOrDefaultBool("OTEL_ENABLED", false),
			ServiceName:    getEnvOrDefault("OTEL_SERVICE_NAME", "stackops"),
			ServiceVersion: getEnvOrDefault("SERVICE_VERSION", "dev"),
			OTLPEndpoint:   getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:       getEnvOrDefaultBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			SampleRate:     getEnvOrDefaultFloat("OTEL_SAMPLE_RATE", 1.0),
			ExportInterval: getEnvOrDefaultDuration("OTEL_EXPORT_INTERVAL", 15*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unusable combinations
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return ErrMissingDatabaseURL
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER: %s", c.Database.Driver)
	}

	switch c.AI.Provider {
	case "mock":
	case "openai", "anthropic":
		if c.AI.APIKey == "" {
			return fmt.Errorf("AI API key is required for provider: %s", c.AI.Provider)
		}
	default:
		return fmt.Errorf("unsupported AI_PROVIDER: %s", c.AI.Provider)
	}

	if !c.Graph.DryRun {
		if c.Graph.TenantID == "" || c.Graph.ClientID == "" || c.Graph.ClientSecret == "" {
			return fmt.Errorf("GRAPH_TENANT_ID, GRAPH_CLIENT_ID and GRAPH_CLIENT_SECRET are required unless GRAPH_DRY_RUN=true")
		}
	}
	if len(c.Graph.DefaultUsageLocation) != 2 {
		return fmt.Errorf("GRAPH_DEFAULT_USAGE_LOCATION must be a two-letter country code")
	}

	if c.Guardrails.Path == "" {
		return fmt.Errorf("GUARDRAILS_PATH is required")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit requests and window must be positive")
		}
		if c.RateLimit.Backend != "redis" && c.RateLimit.Backend != "memory" {
			return fmt.Errorf("unsupported RATE_LIMIT_BACKEND: %s", c.RateLimit.Backend)
		}
	}

	if c.Security.RequireAuth && c.Security.JWTSecret == "" {
		return ErrMissingJWTSecret
	}

	return nil
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Address returns the listen address
func (c *Config) Address() string {
	return c.Server.Host + ":" + c.Server.Port
}

// ToOracleConfig converts to ports.OracleConfig
func (c *Config) ToOracleConfig() ports.OracleConfig {
	return ports.OracleConfig{
		Provider:    c.AI.Provider,
		APIKey:      c.AI.APIKey,
		BaseURL:     c.AI.BaseURL,
		Model:       c.AI.Model,
		TimeoutMs:   c.AI.TimeoutMs,
		MaxTokens:   c.AI.MaxTokens,
		Temperature: c.AI.Temperature,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvOrDefaultDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
