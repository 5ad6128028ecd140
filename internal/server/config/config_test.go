package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	old := os.Args
	os.Args = append([]string{"herdsync-server"}, args...)
	t.Cleanup(func() { os.Args = old })
}

func TestLoadConfig_RequiresSecretKey(t *testing.T) {
	withArgs(t)

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfig_FlagSecret(t *testing.T) {
	withArgs(t, "-k", "s3cr3t", "-a", ":9090")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", cfg.SecretKey)
	assert.Equal(t, ":9090", cfg.EndpointAddr)
	assert.Equal(t, 12*time.Hour, cfg.TokenValidity)
}

func TestLoadConfig_JsonThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"endpoint_addr": ":7070",
		"database_dsn": "postgres://json",
		"secret_key": "from-json",
		"token_validity": "1h"
	}`), 0o600))
	withArgs(t, "-c", path, "-dsn", "postgres://flag")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.EndpointAddr)
	assert.Equal(t, "postgres://flag", cfg.DatabaseDSN, "flags override the file")
	assert.Equal(t, "from-json", cfg.SecretKey)
	assert.Equal(t, time.Hour, cfg.TokenValidity)
}
