package store

import (
	"context"

	"github.com/rcliao/recall/internal/model"
)

// SessionExport is a session together with its transcript.
type SessionExport struct {
	model.Session
	Messages []model.Message `json:"messages"`
}

// Snapshot is a full dump of the store, superseded memories included.
type Snapshot struct {
	Sessions []SessionExport `json:"sessions"`
	Memories []model.Memory  `json:"memories"`
}

// Export returns every session with its messages and every memory.
func (s *SQLiteStore) Export(ctx context.Context) (*Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, summary, created_at, updated_at, tags
		FROM sessions ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	snap := &Snapshot{Sessions: []SessionExport{}}
	for _, sess := range sessions {
		msgs, err := s.GetMessages(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		snap.Sessions = append(snap.Sessions, SessionExport{Session: sess, Messages: msgs})
	}

	snap.Memories, err = s.ListMemories(ctx, true)
	if err != nil {
		return nil, err
	}
	return snap, nil
}
