// Copyright 2025 Kadir Pekel
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

// Package config loads the tenex.yaml root document and decodes it into
// a typed Config, mirroring Hector's config-first posture: everything the
// engine needs to boot is declared in one file, with environment-variable
// interpolation and sensible per-section defaults.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration document (tenex.yaml).
type Config struct {
	Logging     LoggingConfig     `yaml:"logging,omitempty"`
	Persistence PersistenceConfig `yaml:"persistence,omitempty"`
	ExecQueue   ExecQueueConfig   `yaml:"exec_queue,omitempty"`
	Telemetry   TelemetryConfig   `yaml:"telemetry,omitempty"`
	HTTPAPI     HTTPAPIConfig     `yaml:"http_api,omitempty"`
	Lessons     LessonsConfig     `yaml:"lessons,omitempty"`
}

// LoggingConfig controls the package-level slog handler (pkg/logger).
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level,omitempty"`
	// Format is "text" or "json".
	Format string `yaml:"format,omitempty"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
}

func (c *LoggingConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid level %q (want debug, info, warn, or error)", c.Level)
	}
	switch strings.ToLower(c.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid format %q (want text or json)", c.Format)
	}
	return nil
}

// PersistenceConfig selects and configures the Persistence Adapter.
type PersistenceConfig struct {
	// Backend is "filesystem" (default) or "memory".
	Backend string `yaml:"backend,omitempty"`
	// Dir is the root directory for the filesystem backend
	// (.tenex/conversations/active|archive/<id>.json beneath it).
	Dir string `yaml:"dir,omitempty"`
	// SQLIndex optionally layers pkg/persistence/sqlindex over the
	// backend for faster Search() across many conversations.
	SQLIndex *SQLIndexConfig `yaml:"sql_index,omitempty"`
}

// SQLIndexConfig configures the optional secondary search index.
type SQLIndexConfig struct {
	// Dialect is "postgres", "mysql", or "sqlite".
	Dialect string `yaml:"dialect"`
	// DSN is the database/sql data source name for Dialect.
	DSN string `yaml:"dsn"`
}

func (c *PersistenceConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "filesystem"
	}
	if c.Dir == "" {
		c.Dir = ".tenex"
	}
}

func (c *PersistenceConfig) Validate() error {
	switch c.Backend {
	case "filesystem", "memory":
	default:
		return fmt.Errorf("invalid backend %q (want filesystem or memory)", c.Backend)
	}
	if c.SQLIndex != nil {
		switch c.SQLIndex.Dialect {
		case "postgres", "mysql", "sqlite":
		default:
			return fmt.Errorf("sql_index: invalid dialect %q (want postgres, mysql, or sqlite)", c.SQLIndex.Dialect)
		}
		if c.SQLIndex.DSN == "" {
			return fmt.Errorf("sql_index: dsn is required")
		}
	}
	return nil
}

// ExecQueueConfig configures the Execution Queue's lock-timeout behavior
// (spec §4.6).
type ExecQueueConfig struct {
	// MaxExecutionDuration bounds how long an agent may hold a
	// conversation's execution lock before it is force-released.
	MaxExecutionDuration time.Duration `yaml:"max_execution_duration,omitempty"`
}

func (c *ExecQueueConfig) SetDefaults() {
	if c.MaxExecutionDuration <= 0 {
		c.MaxExecutionDuration = 10 * time.Minute
	}
}

func (c *ExecQueueConfig) Validate() error {
	if c.MaxExecutionDuration <= 0 {
		return fmt.Errorf("max_execution_duration must be positive")
	}
	return nil
}

// TelemetryConfig configures pkg/telemetry's tracer and metrics.
type TelemetryConfig struct {
	Tracing TracingConfig `yaml:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig maps directly onto telemetry.TracerConfig.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled,omitempty"`
	EndpointURL  string  `yaml:"endpoint_url,omitempty"`
	SamplingRate float64 `yaml:"sampling_rate,omitempty"`
	ServiceName  string  `yaml:"service_name,omitempty"`
}

// MetricsConfig configures the Prometheus registry namespace.
type MetricsConfig struct {
	Namespace string `yaml:"namespace,omitempty"`
}

func (c *TelemetryConfig) SetDefaults() {
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "tenex"
	}
	if c.Tracing.SamplingRate <= 0 {
		c.Tracing.SamplingRate = 1.0
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "tenex"
	}
}

func (c *TelemetryConfig) Validate() error {
	if c.Tracing.Enabled && c.Tracing.EndpointURL == "" {
		return fmt.Errorf("tracing: endpoint_url is required when enabled")
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("tracing: sampling_rate must be between 0 and 1")
	}
	return nil
}

// HTTPAPIConfig configures the read-only debug/status HTTP surface
// (pkg/httpapi).
type HTTPAPIConfig struct {
	// ListenAddr is empty to disable the surface entirely.
	ListenAddr string `yaml:"listen_addr,omitempty"`
}

func (c *HTTPAPIConfig) SetDefaults() {}

func (c *HTTPAPIConfig) Validate() error { return nil }

// LessonsConfig configures pkg/lessons' semantic index.
type LessonsConfig struct {
	// Embedder is "hashing" (default, zero external services) or "openai".
	Embedder         string               `yaml:"embedder,omitempty"`
	HashingDimension int                  `yaml:"hashing_dimension,omitempty"`
	OpenAI           *OpenAILessonsConfig `yaml:"openai,omitempty"`
}

// OpenAILessonsConfig configures lessons.OpenAIEmbedder.
type OpenAILessonsConfig struct {
	APIKey         string        `yaml:"api_key,omitempty"`
	Model          string        `yaml:"model,omitempty"`
	BaseURL        string        `yaml:"base_url,omitempty"`
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
}

func (c *LessonsConfig) SetDefaults() {
	if c.Embedder == "" {
		c.Embedder = "hashing"
	}
	if c.HashingDimension <= 0 {
		c.HashingDimension = 256
	}
}

func (c *LessonsConfig) Validate() error {
	switch c.Embedder {
	case "hashing":
	case "openai":
		if c.OpenAI == nil || c.OpenAI.APIKey == "" {
			return fmt.Errorf("lessons: openai.api_key is required when embedder is openai")
		}
	default:
		return fmt.Errorf("lessons: invalid embedder %q (want hashing or openai)", c.Embedder)
	}
	return nil
}

// SetDefaults fills every unset section with its default, mirroring
// hector's per-component SetDefaults fan-out.
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()
	c.Persistence.SetDefaults()
	c.ExecQueue.SetDefaults()
	c.Telemetry.SetDefaults()
	c.HTTPAPI.SetDefaults()
	c.Lessons.SetDefaults()
}

// Validate checks the configuration for errors, collecting every
// section's complaint before returning (rather than failing fast on the
// first) so a misconfigured file can be fixed in one pass.
func (c *Config) Validate() error {
	var errs []string

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging: %v", err))
	}
	if err := c.Persistence.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("persistence: %v", err))
	}
	if err := c.ExecQueue.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("exec_queue: %v", err))
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("telemetry: %v", err))
	}
	if err := c.HTTPAPI.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("http_api: %v", err))
	}
	if err := c.Lessons.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("lessons: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
