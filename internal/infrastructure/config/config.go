// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	storeURL := cfg.Supabase.URL
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Supabase      SupabaseConfig      `yaml:"supabase"`
	Server        ServerConfig        `yaml:"server"`
	Browser       BrowserConfig       `yaml:"browser"`
	RPA           RPAConfig           `yaml:"rpa"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// SupabaseConfig holds the remote store credentials.
// Both fields are required before any browser work starts.
type SupabaseConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// ResponseDeadlineSeconds bounds how long /run-generic-rpa waits for
	// a job before answering with a "started" status instead.
	ResponseDeadlineSeconds int `yaml:"response_deadline_seconds"`
}

// BrowserConfig holds Chrome session settings
type BrowserConfig struct {
	Headless    bool   `yaml:"headless"`
	NoSandbox   bool   `yaml:"no_sandbox"`
	RemoteURL   string `yaml:"remote_url"`
	UserDataDir string `yaml:"user_data_dir"`
}

// RPAConfig holds pipeline timing and debug settings
type RPAConfig struct {
	LoginWaitSeconds int    `yaml:"login_wait_seconds"`
	DebugDir         string `yaml:"debug_dir"`
}

// StorageConfig holds the local run-history database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ResponseDeadline returns the API response deadline as a duration.
func (c *ServerConfig) ResponseDeadline() time.Duration {
	if c.ResponseDeadlineSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.ResponseDeadlineSeconds) * time.Second
}

// LoginWait returns the login polling bound as a duration.
func (c *RPAConfig) LoginWait() time.Duration {
	if c.LoginWaitSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.LoginWaitSeconds) * time.Second
}

// Validate checks that the store credentials are present.
// This is fatal configuration: callers must refuse to start a run without it.
func (c *Config) Validate() error {
	if c.Supabase.URL == "" || c.Supabase.Key == "" {
		return fmt.Errorf("supabase url and key are required (set SUPABASE_URL and SUPABASE_KEY)")
	}
	return nil
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${SUPABASE_KEY})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	return &Config{
		Supabase: SupabaseConfig{
			URL: os.Getenv("SUPABASE_URL"),
			Key: os.Getenv("SUPABASE_KEY"),
		},
		Server: ServerConfig{
			Port: getEnvInt("PORT", 8000),
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5173",
				"http://localhost:5500",
				"http://localhost:5501",
			},
			ResponseDeadlineSeconds: getEnvInt("RPA_RESPONSE_DEADLINE", 300),
		},
		Browser: BrowserConfig{
			Headless:    getEnv("BROWSER_HEADLESS", "") == "true",
			NoSandbox:   true,
			RemoteURL:   os.Getenv("BROWSER_REMOTE_URL"),
			UserDataDir: os.Getenv("BROWSER_USER_DATA_DIR"),
		},
		RPA: RPAConfig{
			LoginWaitSeconds: getEnvInt("RPA_LOGIN_WAIT", 120),
			DebugDir:         getEnv("RPA_DEBUG_DIR", "."),
		},
		Storage: StorageConfig{
			DatabasePath: getEnv("RPA_DB_PATH", "rpa_runs.db"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from specified path, falls back to environment variables
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}
