// Copyright (c) 2026 Nexsentia
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the workspace sync service.
type Config struct {
	// Storage
	DatabaseURL string
	RedisURL    string
	EventsQueue string

	// Provider
	ProviderBaseURL string

	// Sync
	DefaultSyncInterval time.Duration // per-connection default
	SchedulerTick       time.Duration
	StaleRunAfter       time.Duration

	// Server (trigger + health)
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Events string `yaml:"events"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Provider struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"provider"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. The config file is
// optional; every setting has an env fallback.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	var raw rawConfig
	if data, err := os.ReadFile(configPath); err == nil {
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		DatabaseURL:         firstNonEmpty(raw.Database.URL, os.Getenv("DATABASE_URL")),
		RedisURL:            firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		EventsQueue:         firstNonEmpty(raw.Redis.Queues.Events, envOrDefault("EVENTS_QUEUE", "message-events")),
		ProviderBaseURL:     firstNonEmpty(raw.Provider.BaseURL, envOrDefault("PROVIDER_BASE_URL", "https://slack.com/api")),
		DefaultSyncInterval: envOrDefaultDuration("DEFAULT_SYNC_INTERVAL", 60*time.Minute),
		SchedulerTick:       envOrDefaultDuration("SCHEDULER_TICK", time.Minute),
		StaleRunAfter:       envOrDefaultDuration("STALE_RUN_AFTER", 24*time.Hour),
		Port:                envOrDefaultInt("PORT", 8080),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required — set it in the environment or config.yaml")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
