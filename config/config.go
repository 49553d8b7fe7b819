// Package config has the configuration file for the app
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Environment is the deployment environment the service runs in
type Environment string

const (
	EnvDevelopment Environment = "dev"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
)

func (e Environment) String() string { return string(e) }

// ParseEnvironment maps an ENV value, long forms included, to an Environment
func ParseEnvironment(raw string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "dev", "development":
		return EnvDevelopment, nil
	case "staging":
		return EnvStaging, nil
	case "prod", "production":
		return EnvProduction, nil
	case "test":
		return EnvTest, nil
	}
	return EnvDevelopment, fmt.Errorf("ENV must be one of: [dev staging prod test], got: %s", raw)
}

// Config holds all application configuration
type Config struct {
	Port              string
	Address           string
	Env               Environment
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes
	MaxRequestBody    int64 // Maximum request body size in bytes, attachments included
	MaxHeaderSize     int64 // Maximum header size in bytes

	DataDir        string
	ConditionsFile string
	TreatmentsFile string
	MedicinesFile  string
	ReloadAt       string // gocron At() expression, e.g. "06:00;18:00"

	AnalysisURL     string
	AnalysisTimeout time.Duration

	CasesFile          string // empty keeps saved cases in memory only
	ProductName        string
	SessionIdleTimeout time.Duration
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	env, err := ParseEnvironment(getEnvWithDefault("ENV", string(EnvDevelopment)))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: invalid ENV: %w", err)
	}

	cfg := &Config{
		Port:              getEnvWithDefault("PORT", "8000"),
		Address:           getEnvWithDefault("ADDRESS", "127.0.0.1"),
		Env:               env,
		LogLevel:          strings.ToLower(getEnvWithDefault("LOG_LEVEL", "info")),
		LogDir:            getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB
		MaxRequestBody:    getInt64EnvWithDefault("MAX_REQUEST_BODY", 10485760),   // 10MB
		MaxHeaderSize:     getInt64EnvWithDefault("MAX_HEADER_SIZE", 1048576),     // 1MB

		DataDir:        getEnvWithDefault("DATA_DIR", "data"),
		ConditionsFile: getEnvWithDefault("CONDITIONS_FILE", "Cardiovascular and Endocrine Conditions.csv"),
		TreatmentsFile: getEnvWithDefault("TREATMENTS_FILE", "Cardiovascular and Endocrine Treatments.csv"),
		MedicinesFile:  getEnvWithDefault("MEDICINES_FILE", "Cardiovascular and Endocrine Medicine.csv"),
		ReloadAt:       getEnvWithDefault("RELOAD_AT", "06:00;18:00"),

		AnalysisURL:     strings.TrimRight(getEnvWithDefault("ANALYSIS_URL", "http://127.0.0.1:5000"), "/"),
		AnalysisTimeout: getDurationEnvWithDefault("ANALYSIS_TIMEOUT", 30*time.Second),

		CasesFile:          os.Getenv("CASES_FILE"),
		ProductName:        getEnvWithDefault("PRODUCT_NAME", "SaluLink"),
		SessionIdleTimeout: getDurationEnvWithDefault("SESSION_IDLE_TIMEOUT", 2*time.Hour),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// ListenAddr is the address:port pair the HTTP server binds to
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Address, c.Port)
}

// ConditionsPath returns the full path of the conditions dataset
func (c *Config) ConditionsPath() string { return filepath.Join(c.DataDir, c.ConditionsFile) }

// TreatmentsPath returns the full path of the treatments dataset
func (c *Config) TreatmentsPath() string { return filepath.Join(c.DataDir, c.TreatmentsFile) }

// MedicinesPath returns the full path of the medicines dataset
func (c *Config) MedicinesPath() string { return filepath.Join(c.DataDir, c.MedicinesFile) }

func validateConfig(cfg *Config) error {
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}

	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}

	if err := validateEnv(cfg.Env); err != nil {
		return fmt.Errorf("invalid ENV: %w", err)
	}

	if err := validateLogLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxRequestBody, "MAX_REQUEST_BODY"); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}

	if err := validateSizeLimit(cfg.MaxHeaderSize, "MAX_HEADER_SIZE"); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}

	if err := validateLogRetentionWeeks(cfg.LogRetentionWeeks); err != nil {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: %w", err)
	}

	if err := validateMaxLogFileSize(cfg.MaxLogFileSize); err != nil {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: %w", err)
	}

	if err := validateAnalysisURL(cfg.AnalysisURL); err != nil {
		return fmt.Errorf("invalid ANALYSIS_URL: %w", err)
	}

	if cfg.AnalysisTimeout <= 0 {
		return fmt.Errorf("invalid ANALYSIS_TIMEOUT: must be positive, got: %s", cfg.AnalysisTimeout)
	}

	if cfg.SessionIdleTimeout < time.Minute {
		return fmt.Errorf("invalid SESSION_IDLE_TIMEOUT: must be at least 1m, got: %s", cfg.SessionIdleTimeout)
	}

	if strings.TrimSpace(cfg.ProductName) == "" {
		return fmt.Errorf("invalid PRODUCT_NAME: cannot be empty")
	}

	if strings.ContainsAny(cfg.ProductName, `/\ `) {
		return fmt.Errorf("invalid PRODUCT_NAME: %q is used in file names and cannot contain slashes or spaces", cfg.ProductName)
	}

	if _, err := ParseReloadAt(cfg.ReloadAt); err != nil {
		return fmt.Errorf("invalid RELOAD_AT: %w", err)
	}

	return nil
}

// ParseReloadAt parses a semicolon separated list of HH:MM times, the format
// gocron's At() accepts, into offsets from midnight sorted ascending
func ParseReloadAt(expr string) ([]time.Duration, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("cannot be empty")
	}

	var out []time.Duration
	for _, part := range strings.Split(expr, ";") {
		t, err := time.Parse("15:04", strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%q is not a HH:MM time", part)
		}
		out = append(out, time.Duration(t.Hour())*time.Hour+time.Duration(t.Minute())*time.Minute)
	}
	slices.Sort(out)
	return out, nil
}

func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	if portNum < 1024 {
		return fmt.Errorf("PORT %d is privileged (less than 1024), use ports 1024-65535", portNum)
	}

	return nil
}

func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}

	if address == "127.0.0.1" || address == "::1" || address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}

	// Patient data must stay on private networks
	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, use a private network range", address)
	}

	return nil
}

func validateEnv(env Environment) error {
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction, EnvTest:
		return nil
	case "":
		return fmt.Errorf("ENV cannot be empty")
	}

	return fmt.Errorf("ENV must be one of: [dev staging prod test], got: %s", env)
}

func validateLogLevel(logLevel string) error {
	if logLevel == "" {
		return fmt.Errorf("LOG_LEVEL cannot be empty")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	for _, level := range validLevels {
		if logLevel == level {
			return nil
		}
	}

	return fmt.Errorf("LOG_LEVEL must be one of: %v, got: %s", validLevels, logLevel)
}

func validateSizeLimit(size int64, configName string) error {
	if size <= 0 {
		return fmt.Errorf("%s must be positive, got: %d", configName, size)
	}

	if size > 100*1024*1024 {
		return fmt.Errorf("%s is too large (max 100MB), got: %d bytes", configName, size)
	}

	return nil
}

func validateLogRetentionWeeks(weeks int) error {
	if weeks <= 0 {
		return fmt.Errorf("LOG_RETENTION_WEEKS must be positive, got: %d", weeks)
	}

	if weeks > 52 {
		return fmt.Errorf("LOG_RETENTION_WEEKS is too large (max 52 weeks), got: %d", weeks)
	}

	return nil
}

func validateMaxLogFileSize(size int64) error {
	if size < 1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too small (min 1MB), got: %d bytes", size)
	}

	if size > 1024*1024*1024 {
		return fmt.Errorf("MAX_LOG_FILE_SIZE is too large (max 1GB), got: %d bytes", size)
	}

	return nil
}

func validateAnalysisURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got: %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	return nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetEnvVars returns a list of all expected environment variables
func GetEnvVars() []string {
	return []string{
		"PORT",
		"ADDRESS",
		"ENV",
		"LOG_LEVEL",
		"LOG_DIR",
		"LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE",
		"MAX_REQUEST_BODY",
		"MAX_HEADER_SIZE",
		"DATA_DIR",
		"CONDITIONS_FILE",
		"TREATMENTS_FILE",
		"MEDICINES_FILE",
		"RELOAD_AT",
		"ANALYSIS_URL",
		"ANALYSIS_TIMEOUT",
		"CASES_FILE",
		"PRODUCT_NAME",
		"SESSION_IDLE_TIMEOUT",
	}
}
