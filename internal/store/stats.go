package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath             string `json:"db_path"`
	DBSizeBytes        int64  `json:"db_size_bytes"`
	Sessions           int    `json:"sessions"`
	Messages           int    `json:"messages"`
	ActiveMemories     int    `json:"active_memories"`
	SupersededMemories int    `json:"superseded_memories"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.dbPath}

	if info, err := os.Stat(s.dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM sessions),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM memories WHERE superseded_by IS NULL),
			(SELECT COUNT(*) FROM memories WHERE superseded_by IS NOT NULL)`).
		Scan(&st.Sessions, &st.Messages, &st.ActiveMemories, &st.SupersededMemories)
	if err != nil {
		return nil, err
	}
	return st, nil
}
