package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/recall/internal/model"
)

const memoryColumns = `id, fact, category, source_session_id, created_at, superseded_by`

// InsertMemory appends a new active memory.
func (s *SQLiteStore) InsertMemory(ctx context.Context, p MemoryParams) (int64, error) {
	if strings.TrimSpace(p.Fact) == "" {
		return 0, fmt.Errorf("%w: empty fact", ErrInvalidArgument)
	}
	category := strings.TrimSpace(p.Category)
	if category == "" {
		category = model.DefaultCategory
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var source sql.NullString
	if p.SourceSessionID != "" {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, p.SourceSessionID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: session %s", ErrForeignKey, p.SourceSessionID)
		}
		if err != nil {
			return 0, err
		}
		source = sql.NullString{String: p.SourceSessionID, Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO memories (fact, category, source_session_id, created_at)
		VALUES (?, ?, ?, ?)`,
		p.Fact, category, source, formatTime(p.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert memory: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// GetMemory returns a memory by id, active or not.
func (s *SQLiteStore) GetMemory(ctx context.Context, id int64) (*model.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: memory %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetActiveMemories returns all memories that have not been superseded.
func (s *SQLiteStore) GetActiveMemories(ctx context.Context) ([]model.Memory, error) {
	return s.ListMemories(ctx, false)
}

// ListMemories returns memories oldest first. Superseded rows are included
// only when includeInactive is set.
func (s *SQLiteStore) ListMemories(ctx context.Context, includeInactive bool) ([]model.Memory, error) {
	q := `SELECT ` + memoryColumns + ` FROM memories`
	if !includeInactive {
		q += ` WHERE superseded_by IS NULL`
	}
	q += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mems := []model.Memory{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		mems = append(mems, m)
	}
	return mems, rows.Err()
}

// FindMemoryByFact looks for an active memory whose text equals fact exactly.
// It returns nil, nil when there is no such memory.
func (s *SQLiteStore) FindMemoryByFact(ctx context.Context, fact string) (*model.Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE fact = ? AND superseded_by IS NULL
		ORDER BY id DESC LIMIT 1`, fact)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SupersedeMemory points oldID at newID. Both must be active; repeating
// the same call is a no-op.
func (s *SQLiteStore) SupersedeMemory(ctx context.Context, oldID, newID int64) error {
	if oldID == newID {
		return fmt.Errorf("%w: memory %d cannot supersede itself", ErrInvalidArgument, oldID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pointers := make([]sql.NullInt64, 2)
	for i, id := range []int64{oldID, newID} {
		err := tx.QueryRowContext(ctx, `SELECT superseded_by FROM memories WHERE id = ?`, id).Scan(&pointers[i])
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: memory %d", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
	}
	// Only the head of a chain may be replaced, and only by an active memory.
	if cur := pointers[0]; cur.Valid {
		if cur.Int64 == newID {
			return nil
		}
		return fmt.Errorf("%w: memory %d is already superseded by %d", ErrInvalidArgument, oldID, cur.Int64)
	}
	if pointers[1].Valid {
		return fmt.Errorf("%w: memory %d is superseded and cannot replace %d", ErrInvalidArgument, newID, oldID)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE memories SET superseded_by = ? WHERE id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("supersede memory: %w", err)
	}
	return tx.Commit()
}

// MemoryHistory follows supersession pointers from id to the active head.
func (s *SQLiteStore) MemoryHistory(ctx context.Context, id int64) ([]model.Memory, error) {
	var chain []model.Memory
	seen := map[int64]bool{}
	next := &id
	for next != nil && !seen[*next] {
		seen[*next] = true
		m, err := s.GetMemory(ctx, *next)
		if err != nil {
			return nil, err
		}
		chain = append(chain, *m)
		next = m.SupersededBy
	}
	return chain, nil
}

func scanMemory(row scanner) (model.Memory, error) {
	var m model.Memory
	var source sql.NullString
	var createdAt string
	var supersededBy sql.NullInt64

	if err := row.Scan(&m.ID, &m.Fact, &m.Category, &source, &createdAt, &supersededBy); err != nil {
		return m, err
	}
	m.CreatedAt = parseTime(createdAt)
	if source.Valid {
		m.SourceSessionID = source.String
	}
	if supersededBy.Valid {
		v := supersededBy.Int64
		m.SupersededBy = &v
	}
	return m, nil
}
