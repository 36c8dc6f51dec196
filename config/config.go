package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Provider      ProviderConfig
	Client        ClientConfig
	Identity      IdentityConfig
	Rules         RulesConfig
	SignIn        SignInConfig
	Preferences   PreferencesConfig
	Observability ObservabilityConfig
	CORS          CORSConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ProviderConfig holds the service-account credentials used to mint and verify
// session cookies. All fields are required.
type ProviderConfig struct {
	ProjectID   string `env:"PROVIDER_PROJECT_ID,required,notEmpty"`
	ClientEmail string `env:"SERVICE_ACCOUNT_CLIENT_EMAIL,required,notEmpty"`
	PrivateKey  string `env:"SERVICE_ACCOUNT_PRIVATE_KEY,required,notEmpty"`
}

// ClientConfig is the public configuration handed to browser clients.
type ClientConfig struct {
	APIKey            string `env:"PUBLIC_API_KEY,required,notEmpty" json:"apiKey"`
	ProjectID         string `env:"PUBLIC_PROJECT_ID,required,notEmpty" json:"projectId"`
	AppID             string `env:"PUBLIC_APP_ID,required,notEmpty" json:"appId"`
	AuthDomain        string `env:"PUBLIC_AUTH_DOMAIN" json:"authDomain,omitempty"`
	StorageBucket     string `env:"PUBLIC_STORAGE_BUCKET" json:"storageBucket,omitempty"`
	MessagingSenderID string `env:"PUBLIC_MESSAGING_SENDER_ID" json:"messagingSenderId,omitempty"`
	MeasurementID     string `env:"PUBLIC_MEASUREMENT_ID" json:"measurementId,omitempty"`
}

// IdentityConfig controls how identity tokens are verified.
// An empty JWKSURL selects local mode: tokens are verified against the
// service-account public key and issued by this service.
type IdentityConfig struct {
	JWKSURL       string
	Issuer        string
	Audience      string
	JWKSCacheTTL  time.Duration
	HTTPTimeout   time.Duration
	LocalTokenTTL time.Duration
}

// RulesConfig holds the chat-completion provider used by the security-rules assistant
type RulesConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// SignInConfig throttles failed password sign-ins per email and per client IP.
// MaxAttempts <= 0 disables throttling.
type SignInConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// PreferencesConfig locates the server-wide preference defaults.
// An empty File leaves the built-in defaults in place.
type PreferencesConfig struct {
	File string
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// CORSConfig holds cross-origin settings for browser clients
type CORSConfig struct {
	AllowedOrigins []string
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: loadDatabaseConfig(),
		Rules: RulesConfig{
			APIKey:     getEnv("OPENAI_API_KEY", ""),
			BaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:      getEnv("RULES_MODEL", "gpt-4o-mini"),
			Timeout:    getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
			MaxRetries: getEnvAsInt("OPENAI_MAX_RETRIES", 0),
		},
		SignIn: SignInConfig{
			MaxAttempts: getEnvAsInt("SIGNIN_MAX_ATTEMPTS", 5),
			Window:      getEnvAsDuration("SIGNIN_WINDOW", 15*time.Minute),
		},
		Preferences: PreferencesConfig{
			File: getEnv("PREFERENCES_FILE", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
	}

	if err := env.Parse(&cfg.Provider); err != nil {
		return nil, fmt.Errorf("provider configuration: %w", err)
	}
	if err := env.Parse(&cfg.Client); err != nil {
		return nil, fmt.Errorf("client configuration: %w", err)
	}

	cfg.Identity = IdentityConfig{
		JWKSURL:       getEnv("IDENTITY_JWKS_URL", ""),
		Issuer:        getEnv("IDENTITY_ISSUER", "https://securetoken.google.com/"+cfg.Provider.ProjectID),
		Audience:      getEnv("IDENTITY_AUDIENCE", cfg.Provider.ProjectID),
		JWKSCacheTTL:  getEnvAsDuration("IDENTITY_JWKS_CACHE_TTL", time.Hour),
		HTTPTimeout:   getEnvAsDuration("IDENTITY_HTTP_TIMEOUT", 10*time.Second),
		LocalTokenTTL: getEnvAsDuration("IDENTITY_LOCAL_TOKEN_TTL", time.Hour),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Provider.ProjectID == "" || c.Provider.ClientEmail == "" || c.Provider.PrivateKey == "" {
		return fmt.Errorf("service account credentials are required")
	}
	if !strings.Contains(c.Provider.PrivateKeyPEM(), "PRIVATE KEY") {
		return fmt.Errorf("SERVICE_ACCOUNT_PRIVATE_KEY is not a PEM encoded private key")
	}

	if c.Identity.Issuer == "" || c.Identity.Audience == "" {
		return fmt.Errorf("identity issuer and audience are required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Observability.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Observability.LogLevel)
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// LocalIdentity reports whether this service verifies identity tokens with its own key.
func (c *IdentityConfig) LocalIdentity() bool {
	return c.JWKSURL == ""
}

// PrivateKeyPEM returns the service-account key with escaped newlines expanded.
// Keys pasted into env files usually carry literal "\n" sequences.
func (c *ProviderConfig) PrivateKeyPEM() string {
	return strings.ReplaceAll(c.PrivateKey, `\n`, "\n")
}

// Enabled reports whether an API key for the rules provider is configured
func (c *RulesConfig) Enabled() bool {
	return c.APIKey != ""
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password).
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

func loadDatabaseConfig() DatabaseConfig {
	pool := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return pool
	}
	pool.Host = getEnv("DB_HOST", "localhost")
	pool.Port = getEnvAsInt("DB_PORT", 5432)
	pool.User = getEnv("DB_USER", "academy")
	pool.Password = getEnv("DB_PASSWORD", "")
	pool.Database = getEnv("DB_NAME", "academy_hub")
	pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	return pool
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
