package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/recall/internal/config"
	"github.com/rcliao/recall/internal/logger"
	"github.com/rcliao/recall/internal/store"
)

func TestNewSemanticDisabled(t *testing.T) {
	sem, cache, err := newSemantic(&config.App{}, logger.Nop())
	require.NoError(t, err)
	assert.False(t, sem.Enabled())
	assert.Nil(t, cache)
}

func TestAppOwnsEmbeddingCache(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.App{
		Semantic: config.SemanticConfig{
			Endpoint:   "http://127.0.0.1:1",
			APIKey:     "k",
			Provider:   "openai",
			Backend:    "chromem",
			IndexDir:   filepath.Join(dir, "vectors"),
			Collection: "recall",
			CacheSize:  16,
			QueueSize:  4,
		},
	}

	sem, cache, err := newSemantic(cfg, logger.Nop())
	require.NoError(t, err)
	require.NotNil(t, cache)
	assert.True(t, sem.Enabled())

	s, err := store.NewSQLiteStore(filepath.Join(dir, "recall.db"))
	require.NoError(t, err)

	a := &app{cfg: cfg, log: logger.Nop(), store: s, semantic: sem, cache: cache}
	assert.Same(t, cache, a.cache)
	a.Close()
}
