package store

import (
	"context"
	"strings"
	"unicode"

	"github.com/rcliao/recall/internal/model"
)

const defaultSearchLimit = 20

// SearchMessages runs a ranked full-text search over message content.
func (s *SQLiteStore) SearchMessages(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	match := sanitizeFTS(query)
	if match == "" {
		return []model.SearchResult{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.content, m.session_id, s.title, bm25(messages_fts) AS score
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.rowid
		JOIN sessions s ON s.id = m.session_id
		WHERE messages_fts MATCH ?
		ORDER BY score
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []model.SearchResult{}
	for rows.Next() {
		r := model.SearchResult{Source: model.SourceMessage}
		if err := rows.Scan(&r.ID, &r.Text, &r.SessionID, &r.SessionTitle, &r.Rank); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// SearchMemories runs a ranked full-text search over active memories.
func (s *SQLiteStore) SearchMemories(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	match := sanitizeFTS(query)
	if match == "" {
		return []model.SearchResult{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.fact, bm25(memories_fts) AS score
		FROM memories_fts
		JOIN memories m ON m.id = memories_fts.rowid
		WHERE memories_fts MATCH ? AND m.superseded_by IS NULL
		ORDER BY score
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []model.SearchResult{}
	for rows.Next() {
		r := model.SearchResult{Source: model.SourceMemory}
		if err := rows.Scan(&r.ID, &r.Text, &r.Rank); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Search merges message and memory hits. bm25 scores from the two indexes
// are not on one scale, so hits are interleaved by their position within
// each source, memory first. Rank keeps the per-source score.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	msgs, err := s.SearchMessages(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	mems, err := s.SearchMemories(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	results := interleave(mems, msgs)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func interleave(a, b []model.SearchResult) []model.SearchResult {
	out := make([]model.SearchResult, 0, len(a)+len(b))
	for i := 0; i < len(a) || i < len(b); i++ {
		if i < len(a) {
			out = append(out, a[i])
		}
		if i < len(b) {
			out = append(out, b[i])
		}
	}
	return out
}

// sanitizeFTS turns free text into an FTS5 expression: each term becomes a
// quoted string and terms are OR-ed. Terms without letters or digits are
// dropped since they tokenize to nothing.
func sanitizeFTS(query string) string {
	var terms []string
	for _, t := range strings.Fields(query) {
		if !strings.ContainsFunc(t, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " OR ")
}
