package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "sqlite", cfg.CheckpointDriver)
	assert.Equal(t, "qwen-plus", cfg.DefaultModel)
	assert.Equal(t, []string{"qwen-plus", "qwen-max", "gpt-4o"}, cfg.Models)
	assert.InDelta(t, 0.7, cfg.Temperature, 1e-6)
	assert.Equal(t, 30*time.Second, cfg.ToolTimeout)
	assert.Equal(t, 60*time.Second, cfg.ReadTimeout)
	assert.Equal(t, int64(65536), cfg.MaxMessageSize)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.False(t, cfg.IsMock())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assistant.yaml")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_PORT: 9000\nMAX_RETRIES: 3\nOPENAI_MODELS: a, b\nDEFAULT_MODEL: a\n"), 0o644))
	t.Setenv("MAX_RETRIES", "7")
	t.Setenv("GOGO_MODE", "mock")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, 7, cfg.MaxRetries)
	assert.Equal(t, []string{"a", "b"}, cfg.Models)
	assert.True(t, cfg.IsMock())
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("CHECKPOINT_DRIVER", "redis")
	_, err := Load(viper.New(), "")
	assert.ErrorContains(t, err, "unknown checkpoint driver")

	t.Setenv("CHECKPOINT_DRIVER", "postgres")
	_, err = Load(viper.New(), "")
	assert.ErrorContains(t, err, "POSTGRES_URL")

	t.Setenv("CHECKPOINT_DRIVER", "memory")
	t.Setenv("WS_READ_TIMEOUT_MS", "1000")
	_, err = Load(viper.New(), "")
	assert.ErrorContains(t, err, "WS_READ_TIMEOUT_MS")
}
