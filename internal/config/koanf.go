// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/regsync/config.yaml",
	"/etc/regsync/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults. They are loaded first and then
// overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			BaseURL:   "https://backend.global-registry.org",
			Timeout:   30 * time.Second,
			RateLimit: 0, // Unlimited
			RateBurst: 10,
			Breaker: BreakerConfig{
				Enabled:      true,
				MaxRequests:  3,
				Interval:     time.Minute,
				Timeout:      2 * time.Minute,
				MinRequests:  10,
				FailureRatio: 0.6,
			},
		},
		Queue: QueueConfig{
			Backend:           "gochannel",
			Topic:             "regsync.tasks",
			DeadLetterTopic:   "regsync.tasks.dead",
			MaxAttempts:       25,
			InitialInterval:   2 * time.Second,
			MaxInterval:       10 * time.Minute,
			Multiplier:        2.0,
			HandlerRetries:    3,
			ThrottlePerSecond: 0,
			DedupTTL:          5 * time.Minute,
			CloseTimeout:      30 * time.Second,
			Mode:              "normal",
			NATS: NATSConfig{
				URL:              "nats://127.0.0.1:4222",
				Embedded:         false,
				Host:             "127.0.0.1",
				Port:             4222,
				StoreDir:         "/data/regsync/jetstream",
				Stream:           "REGSYNC",
				DurableName:      "regsync-worker",
				QueueGroup:       "regsync",
				SubscribersCount: 4,
				AckWait:          30 * time.Second,
				MaxReconnects:    -1,
				ReconnectWait:    2 * time.Second,
			},
		},
		Store: StoreConfig{
			Path:       "/data/regsync/records",
			GCInterval: 10 * time.Minute,
		},
		Sync: SyncConfig{
			TypeCacheTTL:       time.Hour,
			RuntimeErrorAction: "log",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Server: ServerConfig{
			Enabled:           true,
			Listen:            "127.0.0.1:8086",
			ShutdownTimeout:   10 * time.Second,
			RateLimitRequests: 600,
			RateLimitWindow:   time.Minute,
		},
	}
}

// Load loads configuration with layered sources:
//  1. Defaults
//  2. Config file (optional)
//  3. Environment variables
//
// The merged result is validated before it is returned.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return load(path)
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first config file found, or empty string.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Bindings are file-only.
var envMappings = map[string]string{
	"registry_base_url":       "registry.base_url",
	"registry_access_token":   "registry.access_token",
	"registry_timeout":        "registry.timeout",
	"registry_rate_limit":     "registry.rate_limit",
	"registry_rate_burst":     "registry.rate_burst",
	"registry_breaker":        "registry.breaker.enabled",
	"registry_breaker_ratio":  "registry.breaker.failure_ratio",
	"registry_breaker_window": "registry.breaker.interval",

	"queue_backend":           "queue.backend",
	"queue_topic":             "queue.topic",
	"queue_dead_letter_topic": "queue.dead_letter_topic",
	"queue_max_attempts":      "queue.max_attempts",
	"queue_initial_interval":  "queue.initial_interval",
	"queue_max_interval":      "queue.max_interval",
	"queue_handler_retries":   "queue.handler_retries",
	"queue_throttle":          "queue.throttle_per_second",
	"queue_mode":              "queue.mode",
	"nats_url":                "queue.nats.url",
	"nats_embedded":           "queue.nats.embedded",
	"nats_store_dir":          "queue.nats.store_dir",
	"nats_stream":             "queue.nats.stream",
	"nats_subscribers":        "queue.nats.subscribers_count",

	"store_path":        "store.path",
	"store_in_memory":   "store.in_memory",
	"store_gc_interval": "store.gc_interval",

	"sync_type_cache_ttl":       "sync.type_cache_ttl",
	"sync_runtime_error_action": "sync.runtime_error_action",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"http_enabled":          "server.enabled",
	"http_listen":           "server.listen",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"rate_limit_requests":   "server.rate_limit_requests",
	"rate_limit_window":     "server.rate_limit_window",
}

// envTransformFunc maps an environment variable to its koanf path.
// Unmapped variables return "" and are skipped.
//
//   - REGISTRY_BASE_URL -> registry.base_url
//   - QUEUE_BACKEND -> queue.backend
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
