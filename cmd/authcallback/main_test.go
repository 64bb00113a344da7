package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgellow/authcallback/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	require.NoError(t, generateDefaultConfig(path))
	require.NoError(t, validateConfig(path), "the starter config validates cleanly")

	err := generateDefaultConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to overwrite")
}

func TestValidateConfig_ReportsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": "v1", "session": {"encryptionKey": "inline"}}`), 0o600))

	err := validateConfig(path)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "validation failed"))
}

func TestLoadConfig_FallsBackToEnv(t *testing.T) {
	t.Setenv("AUTH_BASE_URL", "http://localhost:8080")
	t.Setenv("AUTH_PROVIDER_URL", "https://id.example.com")
	t.Setenv("AUTH_PROVIDER_PUBLIC_KEY", "client")
	t.Setenv("AUTH_ENCRYPTION_KEY", strings.Repeat("k", 32))

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "https://id.example.com", cfg.Provider.URL)
}

func TestListUsers(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, listUsers(context.Background(), config.Config{
		Storage: config.StorageConfig{Kind: config.StorageKindMemory},
	}, &out))
	assert.Equal(t, "[]\n", out.String())

	err := listUsers(context.Background(), config.Config{
		Storage: config.StorageConfig{Kind: "redis"},
	}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage kind: redis")
}
