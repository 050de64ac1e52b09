// Package store provides durable storage for sessions, messages and memories
// with a synchronous full-text index over message and memory text.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rcliao/recall/internal/model"
)

var (
	// ErrDuplicateKey is returned when creating a row whose id already exists.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrNotFound is returned when a referenced session or memory is absent.
	ErrNotFound = errors.New("not found")
	// ErrForeignKey is returned when a row references a session that does not exist.
	ErrForeignKey = errors.New("foreign key violation")
	// ErrInvalidArgument is returned for malformed input such as an unknown role.
	ErrInvalidArgument = errors.New("invalid argument")
)

// SessionUpdate is a partial session update. Nil fields keep their stored
// value. A non-nil empty Tags slice clears the tag set.
type SessionUpdate struct {
	Title     *string
	Summary   *string
	Tags      []string
	UpdatedAt *time.Time
}

func (u SessionUpdate) empty() bool {
	return u.Title == nil && u.Summary == nil && u.Tags == nil && u.UpdatedAt == nil
}

// MessageParams holds parameters for appending a message.
type MessageParams struct {
	SessionID  string
	Role       model.Role
	Content    string
	Timestamp  time.Time
	TokenCount *int
}

// MemoryParams holds parameters for appending a memory.
type MemoryParams struct {
	Fact            string
	Category        string
	SourceSessionID string
	CreatedAt       time.Time
}

// Store defines the storage interface.
type Store interface {
	// CreateSession inserts an empty session. Fails with ErrDuplicateKey if
	// the id is taken.
	CreateSession(ctx context.Context, id, title string, createdAt time.Time) (*model.Session, error)

	// GetSession returns a session by id or ErrNotFound.
	GetSession(ctx context.Context, id string) (*model.Session, error)

	// UpdateSession applies a partial update. An empty update is a no-op.
	UpdateSession(ctx context.Context, id string, u SessionUpdate) error

	// ListSessions returns sessions newest first.
	ListSessions(ctx context.Context, limit int) ([]model.Session, error)

	// DeleteSession removes a session and its messages.
	DeleteSession(ctx context.Context, id string) error

	// InsertMessage appends a message and returns its id.
	InsertMessage(ctx context.Context, p MessageParams) (int64, error)

	// GetMessages returns a session's messages in insertion order.
	GetMessages(ctx context.Context, sessionID string) ([]model.Message, error)

	// InsertMemory appends an active memory and returns its id.
	InsertMemory(ctx context.Context, p MemoryParams) (int64, error)

	// GetActiveMemories returns every non-superseded memory, oldest first.
	GetActiveMemories(ctx context.Context) ([]model.Memory, error)

	// FindMemoryByFact returns the active memory with exactly this text, or
	// nil if there is none.
	FindMemoryByFact(ctx context.Context, fact string) (*model.Memory, error)

	// SupersedeMemory marks oldID as replaced by newID.
	SupersedeMemory(ctx context.Context, oldID, newID int64) error

	// Search runs a ranked full-text search over messages and active memories.
	Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error)

	// Close closes the store.
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
