// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package config

import (
	"strings"
	"testing"
	"time"
)

// minimal env for a valid config: the defaults leave dsn/secret/base_url
// empty on purpose so production deployments must set them.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_DSN", "postgres://keepstack:pw@localhost:5432/keepstack")
	t.Setenv("JWT_SECRET", strings.Repeat("s", 32))
	t.Setenv("AI_API_KEY", "test-key")
}

func TestLoadWithKoanfDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Vector.Dimensions != 1536 {
		t.Errorf("Vector.Dimensions = %d, want 1536", cfg.Vector.Dimensions)
	}
	if cfg.AI.EmbeddingModel != "text-embedding-3-small" {
		t.Errorf("AI.EmbeddingModel = %q", cfg.AI.EmbeddingModel)
	}
	if cfg.AI.ChatModel != "gpt-4o-mini" {
		t.Errorf("AI.ChatModel = %q", cfg.AI.ChatModel)
	}
	if cfg.Clustering.MinItems != 3 || cfg.Clustering.MinClusterSize != 2 {
		t.Errorf("Clustering defaults = %+v", cfg.Clustering)
	}
	if !cfg.Pipeline.Autocluster {
		t.Error("Pipeline.Autocluster should default on")
	}
	if cfg.NATS.AckWait != 5*time.Minute {
		t.Errorf("NATS.AckWait = %v, want 5m", cfg.NATS.AckWait)
	}
}

func TestLoadWithKoanfEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("VECTOR_DIMENSIONS", "768")
	t.Setenv("NATS_URL", "nats://queue:4222")
	t.Setenv("PIPELINE_AUTOCLUSTER", "false")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ORIGINS", "https://app.example.com, https://staging.example.com")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Vector.Dimensions != 768 {
		t.Errorf("Vector.Dimensions = %d, want 768", cfg.Vector.Dimensions)
	}
	if cfg.NATS.URL != "nats://queue:4222" {
		t.Errorf("NATS.URL = %q", cfg.NATS.URL)
	}
	if cfg.Pipeline.Autocluster {
		t.Error("Pipeline.Autocluster should be disabled")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	want := []string{"https://app.example.com", "https://staging.example.com"}
	if len(cfg.Security.CORSOrigins) != 2 ||
		cfg.Security.CORSOrigins[0] != want[0] ||
		cfg.Security.CORSOrigins[1] != want[1] {
		t.Errorf("CORSOrigins = %v, want %v", cfg.Security.CORSOrigins, want)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := defaultConfig()
		c.Database.DSN = "postgres://localhost/keepstack"
		c.Security.JWTSecret = strings.Repeat("s", 32)
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"short secret", func(c *Config) { c.Security.JWTSecret = "short" }, "jwt_secret"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"zero dimensions", func(c *Config) { c.Vector.Dimensions = 0 }, "vector.dimensions"},
		{"min items too low", func(c *Config) { c.Clustering.MinItems = 1 }, "clustering.min_items"},
		{"page size inversion", func(c *Config) { c.API.MaxPageSize = 5 }, "max_page_size"},
		{"zero max deliver", func(c *Config) { c.NATS.MaxDeliver = 0 }, "max_deliver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestVectorDSNFallback(t *testing.T) {
	c := defaultConfig()
	c.Database.DSN = "postgres://main"
	if got := c.VectorDSN(); got != "postgres://main" {
		t.Errorf("VectorDSN() = %q, want main DSN", got)
	}
	c.Vector.DSN = "postgres://vectors"
	if got := c.VectorDSN(); got != "postgres://vectors" {
		t.Errorf("VectorDSN() = %q, want dedicated DSN", got)
	}
}

func TestEnvTransformFuncIgnoresUnknown(t *testing.T) {
	if got := envTransformFunc("PATH"); got != "" {
		t.Errorf("envTransformFunc(PATH) = %q, want empty", got)
	}
	if got := envTransformFunc("DATABASE_DSN"); got != "database.dsn" {
		t.Errorf("envTransformFunc(DATABASE_DSN) = %q", got)
	}
}
