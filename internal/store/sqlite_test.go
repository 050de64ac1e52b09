package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/recall/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func mustSession(t *testing.T, s *SQLiteStore, id string, at time.Time) {
	t.Helper()
	_, err := s.CreateSession(context.Background(), id, "", at)
	require.NoError(t, err)
}

func mustMessage(t *testing.T, s *SQLiteStore, sessionID string, role model.Role, content string) int64 {
	t.Helper()
	id, err := s.InsertMessage(context.Background(), MessageParams{
		SessionID: sessionID, Role: role, Content: content, Timestamp: time.Now(),
	})
	require.NoError(t, err)
	return id
}

func mustMemory(t *testing.T, s *SQLiteStore, fact string) int64 {
	t.Helper()
	id, err := s.InsertMemory(context.Background(), MemoryParams{Fact: fact, CreatedAt: time.Now()})
	require.NoError(t, err)
	return id
}

func TestCreateSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess, err := s.CreateSession(ctx, "s1", "hello", t0)
	require.NoError(t, err)
	assert.Equal(t, t0, sess.CreatedAt)
	assert.Equal(t, sess.CreatedAt, sess.UpdatedAt)

	_, err = s.CreateSession(ctx, "s1", "again", t0)
	assert.ErrorIs(t, err, ErrDuplicateKey)

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Title)
	assert.Nil(t, got.Summary)

	_, err = s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustSession(t, s, "s1", t0)

	// No fields is a no-op, even for an unknown id.
	require.NoError(t, s.UpdateSession(ctx, "s1", SessionUpdate{}))
	require.NoError(t, s.UpdateSession(ctx, "missing", SessionUpdate{}))

	title := "Trip planning"
	later := t0.Add(time.Hour)
	require.NoError(t, s.UpdateSession(ctx, "s1", SessionUpdate{
		Title:     &title,
		Tags:      []string{"travel", "japan", "travel"},
		UpdatedAt: &later,
	}))

	summary := "Discussed Kyoto."
	earlier := t0.Add(-time.Hour)
	require.NoError(t, s.UpdateSession(ctx, "s1", SessionUpdate{Summary: &summary, UpdatedAt: &earlier}))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Trip planning", got.Title)
	require.NotNil(t, got.Summary)
	assert.Equal(t, summary, *got.Summary)
	assert.Equal(t, []string{"japan", "travel"}, got.Tags)
	assert.Equal(t, later, got.UpdatedAt, "updated_at must not move backwards")

	err = s.UpdateSession(ctx, "missing", SessionUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mustSession(t, s, "a", t0)
	mustSession(t, s, "b", t0.Add(time.Minute))
	mustSession(t, s, "c", t0.Add(2*time.Minute))

	got, err := s.ListSessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestInsertMessage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustSession(t, s, "s1", t0)

	_, err := s.InsertMessage(ctx, MessageParams{SessionID: "nope", Role: model.RoleUser, Content: "hi", Timestamp: t0})
	assert.ErrorIs(t, err, ErrForeignKey)

	_, err = s.InsertMessage(ctx, MessageParams{SessionID: "s1", Role: "robot", Content: "hi", Timestamp: t0})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = s.InsertMessage(ctx, MessageParams{SessionID: "s1", Role: model.RoleUser, Content: "  ", Timestamp: t0})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	tokens := 12
	at := t0.Add(5 * time.Minute)
	id, err := s.InsertMessage(ctx, MessageParams{
		SessionID: "s1", Role: model.RoleUser, Content: "hi", Timestamp: at, TokenCount: &tokens,
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	sess, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, at, sess.UpdatedAt)
}

func TestGetMessagesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustSession(t, s, "s1", t0)

	empty, err := s.GetMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, empty)

	contents := []string{"one", "two", "three", "four"}
	roles := []model.Role{model.RoleUser, model.RoleAssistant, model.RoleUser, model.RoleSystem}
	for i, c := range contents {
		// Timestamps deliberately run backwards; id order must still win.
		_, err := s.InsertMessage(ctx, MessageParams{
			SessionID: "s1", Role: roles[i], Content: c, Timestamp: t0.Add(-time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	for range 2 {
		msgs, err := s.GetMessages(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, msgs, len(contents))
		for i, m := range msgs {
			assert.Equal(t, contents[i], m.Content)
			assert.Equal(t, roles[i], m.Role)
			if i > 0 {
				assert.Greater(t, m.ID, msgs[i-1].ID)
			}
		}
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustSession(t, s, "s1", t0)
	mustMessage(t, s, "s1", model.RoleUser, "remember the alamo")

	require.NoError(t, s.DeleteSession(ctx, "s1"))

	msgs, err := s.GetMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	hits, err := s.SearchMessages(ctx, "alamo", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	assert.ErrorIs(t, s.DeleteSession(ctx, "s1"), ErrNotFound)
}

func TestDeleteEmptySessions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustSession(t, s, "empty", t0)
	mustSession(t, s, "current", t0.Add(time.Minute))
	mustSession(t, s, "full", t0.Add(2*time.Minute))
	mustMessage(t, s, "full", model.RoleUser, "hi")

	n, err := s.DeleteEmptySessions(ctx, "current")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetSession(ctx, "empty")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetSession(ctx, "current")
	assert.NoError(t, err)
}

func TestInsertMemory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustSession(t, s, "s1", t0)

	_, err := s.InsertMemory(ctx, MemoryParams{Fact: "   "})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = s.InsertMemory(ctx, MemoryParams{Fact: "x", SourceSessionID: "nope"})
	assert.ErrorIs(t, err, ErrForeignKey)

	id, err := s.InsertMemory(ctx, MemoryParams{Fact: "User likes tea", SourceSessionID: "s1", CreatedAt: t0})
	require.NoError(t, err)

	m, err := s.GetMemory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultCategory, m.Category)
	assert.Equal(t, "s1", m.SourceSessionID)
	assert.True(t, m.Active())
}

func TestActiveMemoriesOrderedByCreation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.InsertMemory(ctx, MemoryParams{Fact: "second", CreatedAt: t0.Add(time.Minute)})
	require.NoError(t, err)
	_, err = s.InsertMemory(ctx, MemoryParams{Fact: "first", CreatedAt: t0})
	require.NoError(t, err)

	mems, err := s.GetActiveMemories(ctx)
	require.NoError(t, err)
	require.Len(t, mems, 2)
	assert.Equal(t, "first", mems[0].Fact)
	assert.Equal(t, "second", mems[1].Fact)
}

func TestFindMemoryByFact(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustMemory(t, s, "User likes coffee")

	got, err := s.FindMemoryByFact(ctx, "User likes coffee")
	require.NoError(t, err)
	require.NotNil(t, got)

	for _, miss := range []string{"user likes coffee", "User likes coffee ", "User likes"} {
		got, err := s.FindMemoryByFact(ctx, miss)
		require.NoError(t, err)
		assert.Nil(t, got, miss)
	}
}

func TestSupersedeMemory(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	oldID := mustMemory(t, s, "User lives in Austin")
	newID := mustMemory(t, s, "User lives in Denver")

	require.NoError(t, s.SupersedeMemory(ctx, oldID, newID))
	require.NoError(t, s.SupersedeMemory(ctx, oldID, newID), "second call is idempotent")

	active, err := s.GetActiveMemories(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, newID, active[0].ID)

	found, err := s.FindMemoryByFact(ctx, "User lives in Austin")
	require.NoError(t, err)
	assert.Nil(t, found)

	hits, err := s.SearchMemories(ctx, "Austin", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	all, err := s.ListMemories(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	hist, err := s.MemoryHistory(ctx, oldID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, newID, hist[1].ID)

	assert.ErrorIs(t, s.SupersedeMemory(ctx, oldID, 999), ErrNotFound)
	assert.ErrorIs(t, s.SupersedeMemory(ctx, 999, newID), ErrNotFound)
	assert.ErrorIs(t, s.SupersedeMemory(ctx, newID, newID), ErrInvalidArgument)
}

func TestSupersedeMemoryKeepsOneActiveHead(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	paris := mustMemory(t, s, "User lives in Paris")
	berlin := mustMemory(t, s, "User lives in Berlin")
	rome := mustMemory(t, s, "User lives in Rome")

	require.NoError(t, s.SupersedeMemory(ctx, paris, berlin))

	// paris is no longer the head of its chain.
	assert.ErrorIs(t, s.SupersedeMemory(ctx, paris, rome), ErrInvalidArgument)
	// A reverse link would leave the chain without an active memory.
	assert.ErrorIs(t, s.SupersedeMemory(ctx, berlin, paris), ErrInvalidArgument)
	// An inactive memory cannot be a replacement.
	assert.ErrorIs(t, s.SupersedeMemory(ctx, rome, paris), ErrInvalidArgument)

	active, err := s.GetActiveMemories(ctx)
	require.NoError(t, err)
	var facts []string
	for _, m := range active {
		facts = append(facts, m.Fact)
	}
	assert.Equal(t, []string{"User lives in Berlin", "User lives in Rome"}, facts)

	require.NoError(t, s.SupersedeMemory(ctx, berlin, rome))
	hist, err := s.MemoryHistory(ctx, paris)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, rome, hist[2].ID)
	assert.True(t, hist[2].Active())
}

func TestStatsAndExport(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustSession(t, s, "s1", t0)
	mustMessage(t, s, "s1", model.RoleUser, "hello")
	a := mustMemory(t, s, "a")
	b := mustMemory(t, s, "b")
	require.NoError(t, s.SupersedeMemory(ctx, a, b))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Sessions)
	assert.Equal(t, 1, st.Messages)
	assert.Equal(t, 1, st.ActiveMemories)
	assert.Equal(t, 1, st.SupersededMemories)

	snap, err := s.Export(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Sessions, 1)
	assert.Len(t, snap.Sessions[0].Messages, 1)
	assert.Len(t, snap.Memories, 2)
}

func TestNewSessionIDIsTimeOrdered(t *testing.T) {
	a := NewSessionID(t0)
	b := NewSessionID(t0.Add(time.Second))
	c := NewSessionID(t0.Add(time.Second))
	assert.Less(t, a, b)
	assert.Less(t, b, c)
}
