package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
  env: prod
storage:
  data_dir: /var/lib/filesaga
  state_dir: /var/lib/filesaga/state
service:
  url: http://uploads.internal:8089
  timeout_seconds: 60
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "prod", cfg.Server.Env)
	assert.Equal(t, "/var/lib/filesaga", cfg.Storage.DataDir)
	assert.Equal(t, "http://uploads.internal:8089", cfg.Service.URL)
	assert.Equal(t, time.Minute, cfg.Service.Timeout())
}

func TestLoadConfigPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9000\"\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, Default().Service.URL, cfg.Service.URL)
	assert.Equal(t, Default().Storage.DataDir, cfg.Storage.DataDir)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
