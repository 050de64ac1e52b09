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
	dir := t.TempDir()
	t.Setenv("RECALL_HOME", dir)

	cfg, err := LoadApp(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, filepath.Join(dir, "recall.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(dir, "MEMORY.md"), cfg.MirrorPath)
	assert.Equal(t, filepath.Join(dir, "vectors"), cfg.Semantic.IndexDir)
	assert.Equal(t, "chromem", cfg.Semantic.Backend)
	assert.Equal(t, 3, cfg.Context.RecentSessions)
	assert.Equal(t, 30*time.Second, cfg.Sandbox.ScriptTimeout)
	assert.False(t, cfg.Semantic.Enabled())
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: `+dir+`
log_level: debug
semantic:
  endpoint: http://localhost:11434
  api_key: from-file
  provider: ollama
context:
  recent_sessions: 7
sandbox:
  script_timeout: 5s
`), 0o644))

	t.Setenv("RECALL_EMBED_KEY", "from-env")
	t.Setenv("RECALL_MAX_TOKENS", "1024")

	cfg, err := LoadApp(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "from-env", cfg.Semantic.APIKey)
	assert.Equal(t, "ollama", cfg.Semantic.Provider)
	assert.True(t, cfg.Semantic.Enabled())
	assert.Equal(t, 7, cfg.Context.RecentSessions)
	assert.Equal(t, 1024, cfg.Completion.MaxTokens)
	assert.Equal(t, 5*time.Second, cfg.Sandbox.ScriptTimeout)
}

func TestValidateAggregatesErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: `+dir+`
log_level: loud
semantic:
  endpoint: http://x
  api_key: k
  backend: qdrant
`), 0o644))

	_, err := LoadApp(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "qdrant_url")
}

func TestLoadRequiredField(t *testing.T) {
	type needs struct {
		Key  string `env:"TEST_RECALL_KEY" yaml:"key" required:"true"`
		Name string `yaml:"name" default:"x"`
	}

	var cfg needs
	err := Load(&cfg, "", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEST_RECALL_KEY")

	t.Setenv("TEST_RECALL_KEY", "v")
	cfg = needs{}
	require.NoError(t, Load(&cfg, "", true))
	assert.Equal(t, "v", cfg.Key)
	assert.Equal(t, "x", cfg.Name)
}

func TestLoadBadFileWhenNotAllowed(t *testing.T) {
	var cfg App
	err := Load(&cfg, filepath.Join(t.TempDir(), "nope.yaml"), false)
	assert.Error(t, err)
}
