package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := loadAppConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, backendMemory, cfg.StoreBackend)
	assert.Equal(t, 5*time.Second, cfg.Windows.Countdown)
	assert.Equal(t, 30*time.Second, cfg.Windows.Marking)
	assert.Equal(t, 4, cfg.Seeder.MaxAttempts)
	assert.Equal(t, "QUIZ_VIEWS", cfg.JetStream.StreamName)
	assert.Equal(t, int64(4096), cfg.Connection.MaxMessageSize)
}

func TestLoadAppConfigOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "nats")
	t.Setenv("MARKING_WINDOW", "45s")

	cfg, err := loadAppConfig()
	require.NoError(t, err)
	assert.Equal(t, backendNATS, cfg.StoreBackend)
	assert.Equal(t, 45*time.Second, cfg.Windows.Marking)

	t.Setenv("STORE_BACKEND", "redis")
	_, err = loadAppConfig()
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
content:
  source: generation
  sources:
    generation:
      url: ${TEST_GEN_URL}
      timeout_sec: "5"
`), 0o600))
	t.Setenv("TEST_GEN_URL", "http://gen.local")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "generation", cfg.Content.Source)
	assert.Equal(t, map[string]string{"url": "http://gen.local", "timeout_sec": "5"}, cfg.sourceSettings())

	require.NoError(t, os.WriteFile(path, []byte("content: {}\n"), 0o600))
	_, err = loadConfig(path)
	assert.Error(t, err)
}

func TestRegistryKnowsSources(t *testing.T) {
	registry, err := setupRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"bank", "generation"}, registry.Keys())

	p, err := registry.Open("bank", map[string]string{"path": "../assets/bank.yaml"})
	require.NoError(t, err)
	assert.NotNil(t, p)
}
