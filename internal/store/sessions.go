package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rcliao/recall/internal/model"
)

// CreateSession inserts a new session with updated_at equal to createdAt.
func (s *SQLiteStore) CreateSession(ctx context.Context, id, title string, createdAt time.Time) (*model.Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrInvalidArgument)
	}
	ts := formatTime(createdAt)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, created_at, updated_at, tags)
		VALUES (?, ?, ?, ?, '[]')
		ON CONFLICT(id) DO NOTHING`,
		id, title, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: session %s", ErrDuplicateKey, id)
	}
	return &model.Session{
		ID:        id,
		Title:     title,
		CreatedAt: parseTime(ts),
		UpdatedAt: parseTime(ts),
	}, nil
}

// GetSession returns a session by id.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, summary, created_at, updated_at, tags
		FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// UpdateSession applies the non-nil fields of u. updated_at never moves
// backwards.
func (s *SQLiteStore) UpdateSession(ctx context.Context, id string, u SessionUpdate) error {
	if u.empty() {
		return nil
	}

	var sets []string
	var args []interface{}
	if u.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *u.Title)
	}
	if u.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, *u.Summary)
	}
	if u.Tags != nil {
		sets = append(sets, "tags = ?")
		args = append(args, encodeTags(u.Tags))
	}
	if u.UpdatedAt != nil {
		sets = append(sets, "updated_at = MAX(updated_at, ?)")
		args = append(args, formatTime(*u.UpdatedAt))
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE sessions SET %s WHERE id = ?`, strings.Join(sets, ", ")),
		args...)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return nil
}

// ListSessions returns up to limit sessions, most recently created first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]model.Session, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, summary, created_at, updated_at, tags
		FROM sessions
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session; its messages go with it.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return nil
}

// DeleteEmptySessions removes every session without messages except the one
// named by keep, and returns how many were removed.
func (s *SQLiteStore) DeleteEmptySessions(ctx context.Context, keep string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE id != ?
		  AND NOT EXISTS (SELECT 1 FROM messages m WHERE m.session_id = sessions.id)`, keep)
	if err != nil {
		return 0, fmt.Errorf("delete empty sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func scanSession(row scanner) (model.Session, error) {
	var sess model.Session
	var summary sql.NullString
	var createdAt, updatedAt, tags string

	if err := row.Scan(&sess.ID, &sess.Title, &summary, &createdAt, &updatedAt, &tags); err != nil {
		return sess, err
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	if summary.Valid {
		v := summary.String
		sess.Summary = &v
	}
	json.Unmarshal([]byte(tags), &sess.Tags)
	return sess, nil
}

// encodeTags stores tags as a sorted set.
func encodeTags(tags []string) string {
	seen := make(map[string]bool, len(tags))
	set := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		set = append(set, t)
	}
	sort.Strings(set)
	b, _ := json.Marshal(set)
	return string(b)
}
