package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

var ErrEmptyEnvironmentVariable = errors.New("empty environment variable")

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig
	Services   ServicesConfig
	Processing ProcessingConfig
	Server     ServerConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Username string
	Password string
	Name     string
}

// ServicesConfig holds external service API keys and configuration
type ServicesConfig struct {
	OpenAIAPIKey  string
	CRMProvider   string
	CRMWebhookURL string
	WebAppURI     string
}

// ProcessingConfig holds call-processing pipeline settings
type ProcessingConfig struct {
	TranscriptionTimeout time.Duration
	AnalysisTimeout      time.Duration
	SessionIdleTimeout   time.Duration
	UploadDir            string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// Load reads and validates all required environment variables
func Load() (*Config, error) {
	// Load env.local in non-production environments
	if os.Getenv("GO_ENV") != "production" {
		if err := godotenv.Load("env.local"); err != nil {
			return nil, fmt.Errorf("failed to load env.local: %w", err)
		}
	}

	cfg := &Config{}

	// Database configuration
	var err error
	if cfg.Database.Host, err = requireEnv("DB_HOST"); err != nil {
		return nil, err
	}
	if cfg.Database.Username, err = requireEnv("DB_USERNAME"); err != nil {
		return nil, err
	}
	if cfg.Database.Password, err = requireEnv("DB_PASSWORD"); err != nil {
		return nil, err
	}
	if cfg.Database.Name, err = requireEnv("DB_NAME"); err != nil {
		return nil, err
	}

	// Services configuration
	if cfg.Services.OpenAIAPIKey, err = requireEnv("OPENAI_API_KEY"); err != nil {
		return nil, err
	}
	cfg.Services.CRMProvider = getEnvWithDefault("CRM_PROVIDER", "salesforce")
	cfg.Services.CRMWebhookURL = getEnvWithDefault("CRM_WEBHOOK_URL", "")
	cfg.Services.WebAppURI = getEnvWithDefault("WEBAPP_URI", "http://localhost:3000")

	// Processing configuration
	transcriptionTimeout := getEnvWithDefault("TRANSCRIPTION_TIMEOUT_SECONDS", "60")
	seconds, err := strconv.Atoi(transcriptionTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TRANSCRIPTION_TIMEOUT_SECONDS: %w", err)
	}
	cfg.Processing.TranscriptionTimeout = time.Duration(seconds) * time.Second

	analysisTimeout := getEnvWithDefault("ANALYSIS_TIMEOUT_SECONDS", "60")
	seconds, err = strconv.Atoi(analysisTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ANALYSIS_TIMEOUT_SECONDS: %w", err)
	}
	cfg.Processing.AnalysisTimeout = time.Duration(seconds) * time.Second

	sessionIdleTimeout := getEnvWithDefault("SESSION_IDLE_TIMEOUT_SECONDS", "300")
	seconds, err = strconv.Atoi(sessionIdleTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SESSION_IDLE_TIMEOUT_SECONDS: %w", err)
	}
	cfg.Processing.SessionIdleTimeout = time.Duration(seconds) * time.Second

	cfg.Processing.UploadDir = getEnvWithDefault("UPLOAD_DIR", os.TempDir()+"/callgist_uploads")

	// Server configuration
	serverPort, err := requireEnv("SERVER_PORT")
	if err != nil {
		return nil, err
	}
	cfg.Server.Port, err = strconv.Atoi(serverPort)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SERVER_PORT: %w", err)
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s",
		c.Username, c.Password, c.Host, c.Name)
}

// requireEnv retrieves an environment variable or returns an error if empty
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set: %w", key, ErrEmptyEnvironmentVariable)
	}
	return value, nil
}

// getEnvWithDefault retrieves an environment variable or returns a default value
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
