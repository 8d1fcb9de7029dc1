// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml), with ${VAR} expansion
//  2. Environment variables (fallback)
//
// A .env file in the working directory is loaded into the environment first
// when present.
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	loc := cfg.Parser.Location()
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Fetcher       FetcherConfig       `yaml:"fetcher"`
	Parser        ParserConfig        `yaml:"parser"`
	Matcher       MatcherConfig       `yaml:"matcher"`
	API           APIConfig           `yaml:"api"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds database and file locations
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	// DataDir holds the match file and the Photos directory.
	DataDir string `yaml:"data_dir"`
}

// FetcherConfig holds receipt authority client settings
type FetcherConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	UserAgent      string        `yaml:"user_agent"`
	AcceptLanguage string        `yaml:"accept_language"`
	Host           string        `yaml:"host"`
	TicketPath     string        `yaml:"ticket_path"`
}

// ParserConfig holds document extraction settings
type ParserConfig struct {
	Timezone string `yaml:"timezone"`
	// TotalPatterns replaces the built-in total label patterns when set.
	TotalPatterns []string `yaml:"total_patterns"`
}

// MatcherConfig holds matcher settings
type MatcherConfig struct {
	BucketSize      time.Duration       `yaml:"bucket_size"`
	MerchantAliases map[string][]string `yaml:"merchant_aliases"`
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
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

const (
	defaultTimezone = "Asia/Bishkek"
	bishkekOffset   = 6 * 60 * 60
)

// Location resolves the configured timezone. Asia/Bishkek falls back to a
// fixed +06:00 zone when the tz database is unavailable.
func (p ParserConfig) Location() *time.Location {
	name := p.Timezone
	if name == "" {
		name = defaultTimezone
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	if name == defaultTimezone {
		return time.FixedZone(defaultTimezone, bishkekOffset)
	}
	return time.UTC
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${RECEIPTS_DATA_DIR})
	expanded := os.ExpandEnv(string(data))

	cfg := defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := defaults()
	cfg.Storage.DatabasePath = getEnv("RECEIPTS_DB_PATH", cfg.Storage.DatabasePath)
	cfg.Storage.DataDir = getEnv("RECEIPTS_DATA_DIR", cfg.Storage.DataDir)
	cfg.Fetcher.Timeout = getEnvDuration("RECEIPTS_FETCH_TIMEOUT", cfg.Fetcher.Timeout)
	cfg.Fetcher.UserAgent = getEnv("RECEIPTS_USER_AGENT", cfg.Fetcher.UserAgent)
	cfg.Fetcher.Host = getEnv("RECEIPTS_HOST", cfg.Fetcher.Host)
	cfg.Parser.Timezone = getEnv("RECEIPTS_TIMEZONE", cfg.Parser.Timezone)
	cfg.Matcher.BucketSize = getEnvDuration("RECEIPTS_BUCKET_SIZE", cfg.Matcher.BucketSize)
	cfg.API.Port = getEnvInt("PORT", cfg.API.Port)
	if origins := os.Getenv("RECEIPTS_ALLOWED_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = splitList(origins)
	}
	cfg.Observability.Logging.Level = getEnv("LOG_LEVEL", cfg.Observability.Logging.Level)
	cfg.Observability.Logging.Format = getEnv("LOG_FORMAT", cfg.Observability.Logging.Format)
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from specified path, falls back to environment variables
func LoadOrEnvWithPath(path string) *Config {
	LoadDotEnv()
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// LoadDotEnv loads variables from the given .env files (default ".env") into
// the process environment. Missing files are ignored; variables already set
// are not overridden.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
	}
}

func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			DatabasePath: "data/receipts.db",
			DataDir:      "data",
		},
		Fetcher: FetcherConfig{
			Timeout:        15 * time.Second,
			AcceptLanguage: "ru-RU,ru;q=0.9,en;q=0.8",
			Host:           "tax.salyk.kg",
			TicketPath:     "/client/api/v1/ticket",
		},
		Parser: ParserConfig{
			Timezone: defaultTimezone,
		},
		Matcher: MatcherConfig{
			BucketSize: time.Hour,
		},
		API: APIConfig{
			Port:           8085,
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
	}
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
