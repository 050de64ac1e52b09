// Package semantic maintains an optional vector index over session summaries
// and memories. The index is a cache of the structured store: every write is
// best effort and every read degrades to nothing when the index is down.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rcliao/recall/internal/embedding"
	"github.com/rcliao/recall/internal/logger"
)

// ErrUnavailable wraps every failure to reach or use the index.
var ErrUnavailable = errors.New("semantic index unavailable")

// Metadata type values.
const (
	TypeSession = "session"
	TypeMemory  = "memory"
)

// Match is one similarity hit.
type Match struct {
	ID       string            `json:"id"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata"`
}

// Backend stores vectors under string keys with flat string metadata.
type Backend interface {
	Upsert(ctx context.Context, id string, vector []float32, content string, metadata map[string]string) error
	Query(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]Match, error)
}

// SessionKey is the composite index key for a session.
func SessionKey(id string) string { return "session:" + id }

// MemoryKey is the composite index key for a memory.
func MemoryKey(id int64) string { return "memory:" + strconv.FormatInt(id, 10) }

// Options tunes the background writer.
type Options struct {
	QueueSize  int
	JobTimeout time.Duration
}

type job struct {
	key      string
	content  string
	metadata map[string]string
}

// Client is the entry point to the index. A Client built by Disabled, or a
// nil *Client, turns every operation into a no-op.
type Client struct {
	embedder embedding.Embedder
	backend  Backend
	log      logger.Logger
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

// NewClient starts a client with one background writer.
func NewClient(emb embedding.Embedder, backend Backend, log logger.Logger, opts Options) *Client {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	c := &Client{
		embedder: emb,
		backend:  backend,
		log:      log.WithFields(logger.StringField("component", "semantic")),
		timeout:  opts.JobTimeout,
		jobs:     make(chan job, opts.QueueSize),
	}
	c.wg.Add(1)
	go c.worker()
	return c
}

// Disabled returns a client whose operations do nothing.
func Disabled() *Client {
	return &Client{}
}

// Enabled reports whether the index is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.embedder != nil && c.backend != nil
}

// UpsertSessionSummary queues a session for indexing and returns immediately.
func (c *Client) UpsertSessionSummary(id, title, summary string, date time.Time) {
	c.enqueue(sessionJob(id, title, summary, date))
}

// UpsertMemory queues a memory for indexing and returns immediately.
func (c *Client) UpsertMemory(id int64, fact, category string) {
	c.enqueue(memoryJob(id, fact, category))
}

func sessionJob(id, title, summary string, date time.Time) job {
	content := title
	if summary != "" {
		content = title + "\n" + summary
	}
	return job{
		key:     SessionKey(id),
		content: content,
		metadata: map[string]string{
			"type":       TypeSession,
			"session_id": id,
			"title":      title,
			"date":       date.UTC().Format("2006-01-02"),
		},
	}
}

func memoryJob(id int64, fact, category string) job {
	return job{
		key:     MemoryKey(id),
		content: fact,
		metadata: map[string]string{
			"type":      TypeMemory,
			"memory_id": strconv.FormatInt(id, 10),
			"fact":      fact,
			"category":  category,
		},
	}
}

func (c *Client) enqueue(j job) {
	if !c.Enabled() {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.jobs <- j:
	default:
		c.log.Warn("index queue full, dropping upsert", logger.StringField("key", j.key))
	}
}

func (c *Client) worker() {
	defer c.wg.Done()
	for j := range c.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		if err := c.upsert(ctx, j); err != nil {
			c.log.Warn("index upsert failed", logger.StringField("key", j.key), logger.ErrorField(err))
		}
		cancel()
	}
}

func (c *Client) upsert(ctx context.Context, j job) error {
	vec, err := c.embedder.Embed(ctx, j.content)
	if err != nil {
		return fmt.Errorf("%w: embed: %v", ErrUnavailable, err)
	}
	if err := c.backend.Upsert(ctx, j.key, vec, j.content, j.metadata); err != nil {
		return fmt.Errorf("%w: upsert: %v", ErrUnavailable, err)
	}
	return nil
}

// Query returns up to topK matches for text, best first. typeFilter, when
// non-empty, restricts matches to that metadata type. Failures are reported
// as ErrUnavailable so that callers can fall back.
func (c *Client) Query(ctx context.Context, text string, topK int, typeFilter string) ([]Match, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%w: not configured", ErrUnavailable)
	}
	if topK <= 0 {
		return nil, nil
	}
	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed: %v", ErrUnavailable, err)
	}
	var filter map[string]string
	if typeFilter != "" {
		filter = map[string]string{"type": typeFilter}
	}
	matches, err := c.backend.Query(ctx, vec, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrUnavailable, err)
	}
	sortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// QueryRelevantContext is Query with failures swallowed: an unreachable or
// unconfigured index yields an empty result.
func (c *Client) QueryRelevantContext(ctx context.Context, text string, topK int, typeFilter string) []Match {
	matches, err := c.Query(ctx, text, topK, typeFilter)
	if err != nil {
		if c.Enabled() {
			c.log.Warn("index query failed", logger.ErrorField(err))
		}
		return []Match{}
	}
	if matches == nil {
		matches = []Match{}
	}
	return matches
}

// Close stops accepting work and waits for queued upserts to finish.
func (c *Client) Close() {
	if !c.Enabled() {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.jobs)
	c.mu.Unlock()
	c.wg.Wait()
}
