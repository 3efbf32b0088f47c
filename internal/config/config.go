package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all service configuration
type Config struct {
	// Server configuration
	Port    string
	LogMode string

	// Database configuration
	DBType               string // mysql, postgres, sqlite, sqlserver, etc.
	DBHost               string
	DBPort               string
	DBDatabase           string
	DBAppUser            string
	DBAppPassword        string
	DBAppConnectionLimit int

	// Read-only pool for register/report queries
	DBReadUser            string
	DBReadPassword        string
	DBReadConnectionLimit int

	// Authorizer configuration
	AuthzURL      string
	AuthzClientID string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                  getEnv("PORT", "3000"),
		LogMode:               getEnv("LOG_MODE", "dev"),
		DBType:                getEnv("DB_TYPE", "mysql"),
		DBHost:                getEnv("DB_HOST", "localhost"),
		DBPort:                getEnv("DB_PORT", "3306"),
		DBDatabase:            getEnv("DB_DATABASE", ""),
		DBAppUser:             getEnv("DB_APP_USER", ""),
		DBAppPassword:         getEnv("DB_APP_PASSWORD", ""),
		DBAppConnectionLimit:  getEnvAsInt("DB_APP_CONNECTION_LIMIT", 5),
		DBReadUser:            getEnv("DB_READ_USER", ""),
		DBReadPassword:        getEnv("DB_READ_PASSWORD", ""),
		DBReadConnectionLimit: getEnvAsInt("DB_READ_CONNECTION_LIMIT", 5),
		AuthzURL:              getEnv("AUTHZ_URL", ""),
		AuthzClientID:         getEnv("AUTHZ_CLIENT_ID", ""),
	}

	// Validate required fields
	if cfg.DBDatabase == "" {
		return nil, fmt.Errorf("DB_DATABASE is required")
	}
	if cfg.DBAppUser == "" && cfg.DBType != "sqlite" {
		return nil, fmt.Errorf("DB_APP_USER is required")
	}
	if cfg.DBReadUser == "" {
		// No dedicated read-only user provisioned; reuse the writer credentials.
		cfg.DBReadUser = cfg.DBAppUser
		cfg.DBReadPassword = cfg.DBAppPassword
	}
	if cfg.AuthzURL == "" {
		return nil, fmt.Errorf("AUTHZ_URL is required")
	}
	if cfg.AuthzClientID == "" {
		return nil, fmt.Errorf("AUTHZ_CLIENT_ID is required")
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
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
