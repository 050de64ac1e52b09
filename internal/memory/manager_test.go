package memory

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/recall/internal/logger"
	"github.com/rcliao/recall/internal/model"
	"github.com/rcliao/recall/internal/store"
)

type recordingIndexer struct {
	mu    sync.Mutex
	facts []string
}

func (r *recordingIndexer) UpsertMemory(_ int64, fact, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.facts = append(r.facts, fact)
}

func newTestManager(t *testing.T) (*Manager, *store.SQLiteStore, *recordingIndexer, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewSQLiteStore(filepath.Join(dir, "recall.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.CreateSession(context.Background(), "s1", "", time.Now())
	require.NoError(t, err)

	idx := &recordingIndexer{}
	mirror := filepath.Join(dir, "memories.md")
	return NewManager(s, idx, mirror, logger.Nop()), s, idx, mirror
}

func TestProcessStripsMarkerAndPrefix(t *testing.T) {
	m, s, idx, mirror := newTestManager(t)
	ctx := context.Background()

	saved, err := m.Process(ctx, "s1", "[MEMORY] Added to memories: User has a cat named Pixel")
	require.NoError(t, err)
	assert.Equal(t, []string{"User has a cat named Pixel"}, saved)

	mems, err := s.GetActiveMemories(ctx)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	assert.Equal(t, "User has a cat named Pixel", mems[0].Fact)
	assert.Equal(t, "s1", mems[0].SourceSessionID)
	assert.Equal(t, model.DefaultCategory, mems[0].Category)
	assert.Equal(t, []string{"User has a cat named Pixel"}, idx.facts)

	data, err := os.ReadFile(mirror)
	require.NoError(t, err)
	assert.Contains(t, string(data), "- User has a cat named Pixel\n")
}

func TestProcessDeduplicates(t *testing.T) {
	m, s, idx, _ := newTestManager(t)
	ctx := context.Background()

	_, err := s.InsertMemory(ctx, store.MemoryParams{Fact: "User likes coffee"})
	require.NoError(t, err)

	saved, err := m.Process(ctx, "s1", "[MEMORY] User likes coffee")
	require.NoError(t, err)
	assert.Empty(t, saved)

	saved, err = m.Process(ctx, "s1", "[MEMORY]\n- User likes coffee\n- User likes coffee")
	require.NoError(t, err)
	assert.Empty(t, saved)

	mems, err := s.GetActiveMemories(ctx)
	require.NoError(t, err)
	assert.Len(t, mems, 1)
	assert.Empty(t, idx.facts)
}

func TestProcessWithoutMarkerLeavesMirrorAlone(t *testing.T) {
	m, _, _, mirror := newTestManager(t)

	saved, err := m.Process(context.Background(), "s1", "nothing to remember")
	require.NoError(t, err)
	assert.Empty(t, saved)
	assert.NoFileExists(t, mirror)
}

func TestAddAndSupersede(t *testing.T) {
	m, s, _, mirror := newTestManager(t)
	ctx := context.Background()

	oldID, created, err := m.Add(ctx, "User lives in Paris", "location", "")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := m.Add(ctx, "User lives in Paris", "location", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, oldID, again)

	newID, err := m.Supersede(ctx, oldID, "User lives in Berlin")
	require.NoError(t, err)
	assert.NotEqual(t, oldID, newID)

	old, err := s.GetMemory(ctx, oldID)
	require.NoError(t, err)
	require.NotNil(t, old.SupersededBy)
	assert.Equal(t, newID, *old.SupersededBy)

	replacement, err := s.GetMemory(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, "location", replacement.Category)

	data, err := os.ReadFile(mirror)
	require.NoError(t, err)
	assert.Contains(t, string(data), "User lives in Berlin")
	assert.NotContains(t, string(data), "User lives in Paris")

	_, err = m.Supersede(ctx, 999, "anything")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSupersedeRequiresActiveHead(t *testing.T) {
	m, s, _, _ := newTestManager(t)
	ctx := context.Background()

	paris, _, err := m.Add(ctx, "User lives in Paris", "location", "")
	require.NoError(t, err)
	berlin, err := m.Supersede(ctx, paris, "User lives in Berlin")
	require.NoError(t, err)

	_, err = m.Supersede(ctx, paris, "User lives in Rome")
	assert.ErrorIs(t, err, store.ErrInvalidArgument)

	active, err := s.GetActiveMemories(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, berlin, active[0].ID)

	found, err := s.FindMemoryByFact(ctx, "User lives in Rome")
	require.NoError(t, err)
	assert.Nil(t, found, "rejected replacement must not be saved")

	rome, err := m.Supersede(ctx, berlin, "User lives in Rome")
	require.NoError(t, err)
	active, err = s.GetActiveMemories(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, rome, active[0].ID)
}

func TestRenderMirror(t *testing.T) {
	out := RenderMirror([]model.Memory{{Fact: "a"}, {Fact: "multi\nline"}})
	assert.Contains(t, out, "# Memories")
	assert.Contains(t, out, "- a\n- multi line\n")
}
