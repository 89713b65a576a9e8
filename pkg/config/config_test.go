package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaultsFillsEveryUnsetSection(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "filesystem", cfg.Persistence.Backend)
	assert.Equal(t, ".tenex", cfg.Persistence.Dir)
	assert.Positive(t, cfg.ExecQueue.MaxExecutionDuration)
	assert.Equal(t, "tenex", cfg.Telemetry.Tracing.ServiceName)
	assert.Equal(t, "tenex", cfg.Telemetry.Metrics.Namespace)
	assert.Equal(t, "hashing", cfg.Lessons.Embedder)
	assert.Equal(t, 256, cfg.Lessons.HashingDimension)
}

func TestValidateRejectsUnknownLoggingLevel(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	cfg.Logging.Level = "verbose"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging")
}

func TestValidateRequiresOpenAIKeyWhenEmbedderIsOpenAI(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	cfg.Lessons.Embedder = "openai"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lessons")
}

func TestValidateRequiresEndpointWhenTracingEnabled(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	cfg.Telemetry.Tracing.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telemetry")
}

func TestLoadConfigFromFileExpandsEnvVars(t *testing.T) {
	t.Setenv("TENEX_LOG_LEVEL", "debug")

	dir := t.TempDir()
	path := filepath.Join(dir, "tenex.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: ${TENEX_LOG_LEVEL}\n"), 0o644))

	cfg, err := LoadConfig(LoaderOptions{Type: ConfigTypeFile, Path: path})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestParseConfigType(t *testing.T) {
	typ, err := ParseConfigType("ETCD")
	require.NoError(t, err)
	assert.Equal(t, ConfigTypeEtcd, typ)

	_, err = ParseConfigType("zookeeper")
	assert.Error(t, err)
}
