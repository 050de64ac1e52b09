package semantic

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/philippgille/chromem-go"
)

// ChromemBackend is an in-process vector index, optionally persisted to disk.
type ChromemBackend struct {
	db  *chromem.DB
	col *chromem.Collection
}

// NewChromemBackend opens the collection under dir. An empty dir keeps the
// index in memory only.
func NewChromemBackend(dir, collection string) (*ChromemBackend, error) {
	var (
		db  *chromem.DB
		err error
	)
	if dir == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("open vector db: %w", err)
		}
	}

	// Embeddings are always supplied by the caller, so no embedding func.
	col, err := db.GetOrCreateCollection(collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", collection, err)
	}
	return &ChromemBackend{db: db, col: col}, nil
}

func (b *ChromemBackend) Upsert(ctx context.Context, id string, vector []float32, content string, metadata map[string]string) error {
	return b.col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   content,
		Embedding: vector,
		Metadata:  metadata,
	})
}

func (b *ChromemBackend) Query(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]Match, error) {
	limit := min(topK, b.col.Count())
	if limit <= 0 {
		return nil, nil
	}

	// chromem rejects nResults larger than the filtered candidate set, so
	// shrink until it fits.
	var results []chromem.Result
	for ; limit >= 1; limit-- {
		var err error
		results, err = b.col.QueryEmbedding(ctx, vector, limit, filter, nil)
		if err == nil {
			break
		}
		if !isInsufficientDocsError(err) {
			return nil, fmt.Errorf("chromem query: %w", err)
		}
		if limit == 1 {
			return nil, nil
		}
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{ID: r.ID, Score: r.Similarity, Metadata: r.Metadata})
	}
	return matches, nil
}

// Count returns the number of indexed documents.
func (b *ChromemBackend) Count() int {
	return b.col.Count()
}

func isInsufficientDocsError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

func sortMatches(m []Match) {
	sort.SliceStable(m, func(i, j int) bool { return m[i].Score > m[j].Score })
}
