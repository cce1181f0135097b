// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

// Package config defines the Keepstack configuration tree and its layered
// loading (defaults -> optional YAML file -> environment variables).
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the server and workers.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Vector     VectorConfig     `koanf:"vector"`
	NATS       NATSConfig       `koanf:"nats"`
	AI         AIConfig         `koanf:"ai"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Clustering ClusteringConfig `koanf:"clustering"`
	Security   SecurityConfig   `koanf:"security"`
	API        APIConfig        `koanf:"api"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	DSN             string        `koanf:"dsn"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
}

// VectorConfig holds vector index settings. The index lives in the same
// Postgres cluster (pgvector) but may use a dedicated DSN.
type VectorConfig struct {
	// DSN overrides Database.DSN for the vector index; empty means share it.
	DSN        string `koanf:"dsn"`
	Dimensions int    `koanf:"dimensions"`
	Table      string `koanf:"table"`
}

// NATSConfig holds queue transport settings (JetStream via Watermill).
type NATSConfig struct {
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`

	DurableName      string `koanf:"durable_name"`
	QueueGroup       string `koanf:"queue_group"`
	SubscribersCount int    `koanf:"subscribers_count"`

	// AckWait is the redelivery visibility timeout: a message not acked
	// within this window is handed to another worker.
	AckWait    time.Duration `koanf:"ack_wait"`
	MaxDeliver int           `koanf:"max_deliver"`

	RouterRetryCount           int           `koanf:"router_retry_count"`
	RouterRetryInitialInterval time.Duration `koanf:"router_retry_initial_interval"`
	RouterPoisonQueueEnabled   bool          `koanf:"router_poison_queue_enabled"`
	RouterPoisonQueueTopic     string        `koanf:"router_poison_queue_topic"`
	RouterCloseTimeout         time.Duration `koanf:"router_close_timeout"`
}

// AIConfig holds provider settings for embeddings and completions.
type AIConfig struct {
	BaseURL        string        `koanf:"base_url"`
	APIKey         string        `koanf:"api_key"`
	EmbeddingModel string        `koanf:"embedding_model"`
	ChatModel      string        `koanf:"chat_model"`
	Timeout        time.Duration `koanf:"timeout"`

	// RequestsPerSecond caps outbound provider calls; 0 disables the limiter.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	BreakerEnabled    bool    `koanf:"breaker_enabled"`
}

// PipelineConfig holds content-processing worker settings.
type PipelineConfig struct {
	StageAttempts  int           `koanf:"stage_attempts"`
	BackoffInitial time.Duration `koanf:"backoff_initial"`
	BackoffMax     time.Duration `koanf:"backoff_max"`

	// Autocluster enqueues a clustering job after a successful pipeline run
	// once the owner has enough READY items in the new category.
	Autocluster bool `koanf:"autocluster"`
}

// ClusteringConfig holds grouping thresholds.
type ClusteringConfig struct {
	// MinItems is the minimum READY item count in a category before any
	// clustering is attempted for it.
	MinItems int `koanf:"min_items"`
	// MinClusterSize drops smaller groups after cutting the dendrogram.
	MinClusterSize int `koanf:"min_cluster_size"`
}

// SecurityConfig holds auth and rate-limit settings.
type SecurityConfig struct {
	JWTSecret       string        `koanf:"jwt_secret"`
	TokenTTL        time.Duration `koanf:"token_ttl"`
	BcryptCost      int           `koanf:"bcrypt_cost"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// APIConfig holds pagination limits.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// LoggingConfig mirrors logging.Config for the config tree.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures. Called by LoadWithKoanf after all layers are applied.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Vector.Dimensions <= 0 {
		return fmt.Errorf("vector.dimensions must be positive")
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret is required")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 bytes")
	}
	if c.AI.BaseURL == "" {
		return fmt.Errorf("ai.base_url is required")
	}
	if c.Clustering.MinItems < 2 {
		return fmt.Errorf("clustering.min_items must be at least 2")
	}
	if c.Clustering.MinClusterSize < 1 {
		return fmt.Errorf("clustering.min_cluster_size must be at least 1")
	}
	if c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("api.max_page_size must be >= api.default_page_size")
	}
	if c.NATS.MaxDeliver < 1 {
		return fmt.Errorf("nats.max_deliver must be at least 1")
	}
	return nil
}

// VectorDSN returns the DSN for the vector index, falling back to the main
// database DSN when no dedicated one is configured.
func (c *Config) VectorDSN() string {
	if c.Vector.DSN != "" {
		return c.Vector.DSN
	}
	return c.Database.DSN
}
