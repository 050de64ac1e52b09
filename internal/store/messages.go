package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rcliao/recall/internal/model"
)

// InsertMessage appends a message to an existing session and bumps the
// session's updated_at to the message timestamp.
func (s *SQLiteStore) InsertMessage(ctx context.Context, p MessageParams) (int64, error) {
	if !p.Role.Valid() {
		return 0, fmt.Errorf("%w: role %q", ErrInvalidArgument, p.Role)
	}
	if strings.TrimSpace(p.Content) == "" {
		return 0, fmt.Errorf("%w: empty message content", ErrInvalidArgument)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, p.SessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: session %s", ErrForeignKey, p.SessionID)
	}
	if err != nil {
		return 0, err
	}

	var tokens sql.NullInt64
	if p.TokenCount != nil {
		tokens = sql.NullInt64{Int64: int64(*p.TokenCount), Valid: true}
	}
	ts := formatTime(p.Timestamp)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (session_id, role, content, timestamp, token_count)
		VALUES (?, ?, ?, ?, ?)`,
		p.SessionID, string(p.Role), p.Content, ts, tokens)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = MAX(updated_at, ?) WHERE id = ?`, ts, p.SessionID); err != nil {
		return 0, fmt.Errorf("touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetMessages returns all messages for a session ordered by id.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, timestamp, token_count
		FROM messages WHERE session_id = ?
		ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		var m model.Message
		var role, ts string
		var tokens sql.NullInt64
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &ts, &tokens); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		m.Timestamp = parseTime(ts)
		if tokens.Valid {
			n := int(tokens.Int64)
			m.TokenCount = &n
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CountMessages returns the number of messages in a session.
func (s *SQLiteStore) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE session_id = ?`, sessionID).Scan(&n)
	return n, err
}
