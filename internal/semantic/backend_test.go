package semantic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChromemBackend(t *testing.T) {
	ctx := context.Background()
	b, err := NewChromemBackend(t.TempDir(), "test")
	require.NoError(t, err)

	matches, err := b.Query(ctx, []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, matches, "empty collection")

	require.NoError(t, b.Upsert(ctx, "memory:1", []float32{1, 0, 0}, "a", map[string]string{"type": TypeMemory}))
	require.NoError(t, b.Upsert(ctx, "memory:2", []float32{0, 1, 0}, "b", map[string]string{"type": TypeMemory}))
	require.NoError(t, b.Upsert(ctx, "session:x", []float32{0.9, 0.1, 0}, "c", map[string]string{"type": TypeSession}))
	// Upserting the same key replaces the document.
	require.NoError(t, b.Upsert(ctx, "memory:2", []float32{0, 0, 1}, "b2", map[string]string{"type": TypeMemory}))
	assert.Equal(t, 3, b.Count())

	matches, err = b.Query(ctx, []float32{1, 0, 0}, 10, map[string]string{"type": TypeMemory})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "memory:1", matches[0].ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)

	matches, err = b.Query(ctx, []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "memory:1", matches[0].ID)
}

func TestQdrantBackend(t *testing.T) {
	var mu sync.Mutex
	var upserted map[string]any
	created := false

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "k", r.Header.Get("api-key"))

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/recall":
			if !created {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write([]byte(`{"result":{}}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/recall":
			created = true
			w.Write([]byte(`{"result":true}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/recall/index":
			w.Write([]byte(`{"result":{}}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/recall/points":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&upserted))
			w.Write([]byte(`{"result":{"status":"completed"}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/collections/recall/points/search":
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.NotNil(t, body["filter"])
			w.Write([]byte(`{"result":[{"id":"` + PointID("memory:7") + `","score":0.93,
				"payload":{"key":"memory:7","type":"memory","fact":"likes tea","content":"likes tea"}}]}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	q := NewQdrantBackend(srv.URL+"/", "k", "recall", 3)

	require.NoError(t, q.Upsert(ctx, "memory:7", []float32{1, 0, 0}, "likes tea", map[string]string{"type": TypeMemory}))
	mu.Lock()
	assert.True(t, created)
	points := upserted["points"].([]any)
	point := points[0].(map[string]any)
	assert.Equal(t, PointID("memory:7"), point["id"])
	assert.Equal(t, "memory:7", point["payload"].(map[string]any)["key"])
	mu.Unlock()

	matches, err := q.Query(ctx, []float32{1, 0, 0}, 3, map[string]string{"type": TypeMemory})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "memory:7", matches[0].ID)
	assert.Equal(t, "likes tea", matches[0].Metadata["fact"])
	assert.NotContains(t, matches[0].Metadata, "content")
	assert.InDelta(t, 0.93, matches[0].Score, 1e-6)
}

func TestQdrantBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	q := NewQdrantBackend(srv.URL, "", "recall", 3)
	_, err := q.Query(context.Background(), []float32{1, 0, 0}, 3, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestPointIDIsStable(t *testing.T) {
	assert.Equal(t, PointID("session:a"), PointID("session:a"))
	assert.NotEqual(t, PointID("session:a"), PointID("session:b"))
}
