// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

// Package config loads regsync configuration.
//
// Loading order (Koanf v2):
//  1. Defaults: built-in values from defaultConfig()
//  2. Config file: optional YAML (CONFIG_PATH, ./config.yaml, /etc/regsync/config.yaml)
//  3. Environment variables: override any mapped setting
//
// Sections:
//   - Registry: base URL, credentials, timeouts, rate limit and circuit breaker
//   - Queue: task queue backend, retry and dead-letter policy
//   - Store: badger database location for local records
//   - Sync: type cache TTL and the error action policy
//   - Logging, Server: ambient settings
//   - Bindings: declarative descriptors per record kind
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Registry RegistryConfig  `koanf:"registry"`
	Queue    QueueConfig     `koanf:"queue"`
	Store    StoreConfig     `koanf:"store"`
	Sync     SyncConfig      `koanf:"sync"`
	Logging  LoggingConfig   `koanf:"logging"`
	Server   ServerConfig    `koanf:"server"`
	Bindings []BindingConfig `koanf:"bindings" validate:"dive"`
}

// RegistryConfig configures the remote registry client.
type RegistryConfig struct {
	BaseURL     string        `koanf:"base_url" validate:"required,url"`
	AccessToken string        `koanf:"access_token"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`

	// RateLimit caps outgoing requests per second. Zero disables the limiter.
	RateLimit float64 `koanf:"rate_limit" validate:"gte=0"`
	RateBurst int     `koanf:"rate_burst" validate:"gte=0"`

	Breaker BreakerConfig `koanf:"breaker"`
}

// BreakerConfig configures the gobreaker circuit breaker around the registry.
type BreakerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	MaxRequests  uint32        `koanf:"max_requests"`
	Interval     time.Duration `koanf:"interval"`
	Timeout      time.Duration `koanf:"timeout"`
	MinRequests  uint32        `koanf:"min_requests"`
	FailureRatio float64       `koanf:"failure_ratio" validate:"gte=0,lte=1"`
}

// QueueConfig configures the task queue.
type QueueConfig struct {
	// Backend is gochannel (in-process) or nats (JetStream, needs the nats build tag).
	Backend         string `koanf:"backend" validate:"oneof=gochannel nats"`
	Topic           string `koanf:"topic" validate:"required"`
	DeadLetterTopic string `koanf:"dead_letter_topic" validate:"required"`

	// MaxAttempts bounds re-deliveries of a task that keeps reporting a
	// missing prerequisite before it is dead-lettered.
	MaxAttempts     int           `koanf:"max_attempts" validate:"gt=0"`
	InitialInterval time.Duration `koanf:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration `koanf:"max_interval" validate:"gtefield=InitialInterval"`
	Multiplier      float64       `koanf:"multiplier" validate:"gte=1"`

	// HandlerRetries is the in-handler retry count for transport errors.
	HandlerRetries    int           `koanf:"handler_retries" validate:"gte=0"`
	ThrottlePerSecond int64         `koanf:"throttle_per_second" validate:"gte=0"`
	DedupTTL          time.Duration `koanf:"dedup_ttl"`
	CloseTimeout      time.Duration `koanf:"close_timeout"`

	// Mode "skip" drops every enqueue. Used for fixtures and tests.
	Mode string `koanf:"mode" validate:"oneof=normal skip"`

	NATS NATSConfig `koanf:"nats"`
}

// NATSConfig configures the JetStream backend.
type NATSConfig struct {
	URL              string        `koanf:"url"`
	Embedded         bool          `koanf:"embedded"`
	Host             string        `koanf:"host"`
	Port             int           `koanf:"port"`
	StoreDir         string        `koanf:"store_dir"`
	Stream           string        `koanf:"stream"`
	DurableName      string        `koanf:"durable_name"`
	QueueGroup       string        `koanf:"queue_group"`
	SubscribersCount int           `koanf:"subscribers_count"`
	AckWait          time.Duration `koanf:"ack_wait"`
	MaxReconnects    int           `koanf:"max_reconnects"`
	ReconnectWait    time.Duration `koanf:"reconnect_wait"`
}

// StoreConfig configures the badger record store.
type StoreConfig struct {
	Path     string `koanf:"path" validate:"required_without=InMemory"`
	InMemory bool   `koanf:"in_memory"`

	// GCInterval is how often stale value log files are rewritten.
	GCInterval time.Duration `koanf:"gc_interval" validate:"gte=0"`
}

// SyncConfig holds process-wide synchronization policy.
type SyncConfig struct {
	TypeCacheTTL time.Duration `koanf:"type_cache_ttl" validate:"gt=0"`

	// RuntimeErrorAction decides what happens to enqueue and transport
	// failures: ignore, log or raise.
	RuntimeErrorAction string `koanf:"runtime_error_action" validate:"oneof=ignore log raise"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// ServerConfig configures the admin and ingest HTTP API.
type ServerConfig struct {
	Enabled           bool          `koanf:"enabled"`
	Listen            string        `koanf:"listen" validate:"required_if=Enabled true"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// BindingConfig declares how one record kind is synchronized.
type BindingConfig struct {
	Kind          string               `koanf:"kind" validate:"required"`
	Entity        *EntityConfig        `koanf:"entity"`
	Relationships []RelationshipConfig `koanf:"relationships" validate:"dive"`
}

// EntityConfig is the declarative form of an entity descriptor.
type EntityConfig struct {
	Type              string            `koanf:"type"`
	IDColumn          string            `koanf:"id_column"`
	FingerprintColumn string            `koanf:"fingerprint_column"`
	MDMIDColumn       string            `koanf:"mdm_id_column"`
	MDMTimeout        time.Duration     `koanf:"mdm_timeout"`
	Parent            string            `koanf:"parent"`
	ParentKind        string            `koanf:"parent_kind"`
	ParentForeignKey  string            `koanf:"parent_foreign_key"`
	Fields            map[string]string `koanf:"fields"`
	Exclude           []string          `koanf:"exclude"`
	IncludeAllColumns bool              `koanf:"include_all_columns"`
	EnsureType        *bool             `koanf:"ensure_type"`
	PushOn            []string          `koanf:"push_on" validate:"dive,oneof=create update delete"`
}

// RelationshipConfig is the declarative form of a relationship descriptor.
type RelationshipConfig struct {
	Name                  string            `koanf:"name" validate:"required"`
	Type                  string            `koanf:"type"`
	IDColumn              string            `koanf:"id_column"`
	Primary               EndpointConfig    `koanf:"primary"`
	Related               EndpointConfig    `koanf:"related"`
	RelatedType           string            `koanf:"related_type"`
	RelatedRemoteIDColumn string            `koanf:"related_remote_id_column"`
	Fields                map[string]string `koanf:"fields"`
	Exclude               []string          `koanf:"exclude"`
	IncludeAllColumns     bool              `koanf:"include_all_columns"`
	EnsureType            *bool             `koanf:"ensure_type"`
	RenameEntityType      *bool             `koanf:"rename_entity_type"`
}

// EndpointConfig is one side of a declared relationship.
type EndpointConfig struct {
	Link       string `koanf:"link"`
	Kind       string `koanf:"kind"`
	Binding    string `koanf:"binding"`
	Name       string `koanf:"name"`
	ForeignKey string `koanf:"foreign_key"`
}
