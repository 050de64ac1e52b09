package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// keyField holds the composite key in the point payload, since Qdrant point
// ids must be integers or UUIDs.
const keyField = "key"

// QdrantBackend talks to the Qdrant REST API.
type QdrantBackend struct {
	baseURL    string
	apiKey     string
	collection string
	dimension  int
	httpClient *http.Client

	ensureMu sync.Mutex
	ensured  bool
}

// NewQdrantBackend creates a client for one collection. The collection is
// created on first write using dimension as the vector size.
func NewQdrantBackend(baseURL, apiKey, collection string, dimension int) *QdrantBackend {
	return &QdrantBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// PointID maps a composite key to a stable UUID.
func PointID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("recall:"+key)).String()
}

func (q *QdrantBackend) Upsert(ctx context.Context, id string, vector []float32, content string, metadata map[string]string) error {
	if err := q.ensureCollection(ctx, len(vector)); err != nil {
		return err
	}

	payload := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		payload[k] = v
	}
	payload[keyField] = id
	payload["content"] = content

	body := map[string]any{
		"points": []map[string]any{{
			"id":      PointID(id),
			"vector":  vector,
			"payload": payload,
		}},
	}
	_, err := q.do(ctx, http.MethodPut, "/collections/"+q.collection+"/points?wait=true", body)
	return err
}

func (q *QdrantBackend) Query(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]Match, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if len(filter) > 0 {
		var must []map[string]any
		for k, v := range filter {
			must = append(must, map[string]any{"key": k, "match": map[string]any{"value": v}})
		}
		body["filter"] = map[string]any{"must": must}
	}

	respBody, err := q.do(ctx, http.MethodPost, "/collections/"+q.collection+"/points/search", body)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result []struct {
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	matches := make([]Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		meta := make(map[string]string, len(r.Payload))
		var key string
		for k, v := range r.Payload {
			switch k {
			case keyField:
				key = fmt.Sprint(v)
			case "content":
			default:
				meta[k] = fmt.Sprint(v)
			}
		}
		matches = append(matches, Match{ID: key, Score: r.Score, Metadata: meta})
	}
	return matches, nil
}

func (q *QdrantBackend) ensureCollection(ctx context.Context, size int) error {
	q.ensureMu.Lock()
	defer q.ensureMu.Unlock()
	if q.ensured {
		return nil
	}
	if size == 0 {
		size = q.dimension
	}

	req, err := q.newRequest(ctx, http.MethodGet, "/collections/"+q.collection, nil)
	if err != nil {
		return err
	}
	resp, err := q.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("check collection: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := map[string]any{
			"vectors": map[string]any{"size": size, "distance": "Cosine"},
		}
		if _, err := q.do(ctx, http.MethodPut, "/collections/"+q.collection, body); err != nil {
			return err
		}
		index := map[string]any{"field_name": "type", "field_schema": "keyword"}
		if _, err := q.do(ctx, http.MethodPut, "/collections/"+q.collection+"/index", index); err != nil {
			return err
		}
	}
	q.ensured = true
	return nil
}

func (q *QdrantBackend) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	return req, nil
}

func (q *QdrantBackend) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	req, err := q.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	resp, err := q.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("qdrant %s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
