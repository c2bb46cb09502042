package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the wearable daemon configuration: a yaml file with
// environment-variable overrides.
type Config struct {
	HTTPAddr  string `yaml:"http_addr"`
	StorePath string `yaml:"store_path"`
	LogLevel  string `yaml:"log_level"`
	NATS      struct {
		URL    string `yaml:"url"`
		Stream string `yaml:"stream"`
	} `yaml:"nats"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.HTTPAddr = ":8090"
	cfg.StorePath = "refwatch.db"
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

	cfg.HTTPAddr = getEnv("REFWATCH_HTTP_ADDR", cfg.HTTPAddr)
	cfg.StorePath = getEnv("REFWATCH_STORE_PATH", cfg.StorePath)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.Stream = getEnv("NATS_STREAM", cfg.NATS.Stream)
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
