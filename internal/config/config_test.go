package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, time.Duration(0), cfg.Timeout)
	assert.Equal(t, 50*time.Millisecond, cfg.ChunkDelay)
	assert.Equal(t, []string{"banned"}, cfg.Banned)
}

func TestLoadEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHATSTREAM_ADDRESS", ":9999")
	t.Setenv("CHATSTREAM_STREAM_TIMEOUT", "250ms")
	t.Setenv("CHATSTREAM_CREDENTIAL", "token")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Address)
	assert.Equal(t, 250*time.Millisecond, cfg.StreamTimeout)
	assert.Equal(t, "token", cfg.Credential)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	yaml := "url: http://backend.test/chat\ntimeout: 2s\nheaders:\n  x-team: blue\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://backend.test/chat", cfg.URL)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, map[string]string{"x-team": "blue"}, cfg.Headers)
}
