package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the companion relay configuration.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	LogLevel string `yaml:"log_level"`
	NATS     struct {
		URL    string `yaml:"url"`
		Stream string `yaml:"stream"`
	} `yaml:"nats"`
}

// DatabaseConfig points at the remote record store.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func defaultConfig() Config {
	var cfg Config
	cfg.HTTPAddr = ":8091"
	cfg.LogLevel = "info"
	cfg.NATS.URL = "nats://localhost:4222"
	cfg.NATS.Stream = "REFWATCH"
	return cfg
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.HTTPAddr = getEnv("COMPANION_HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.Stream = getEnv("NATS_STREAM", cfg.NATS.Stream)
	return cfg, nil
}

func databaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvAsInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "postgres"),
		Database: getEnv("DB_NAME", "refwatch"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
