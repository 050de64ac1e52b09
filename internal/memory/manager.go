// Package memory turns model output into durable facts and keeps the
// human-readable mirror of the active set up to date.
package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/rcliao/recall/internal/logger"
	"github.com/rcliao/recall/internal/model"
	"github.com/rcliao/recall/internal/store"
)

// Store is the subset of the structured store the manager needs.
type Store interface {
	InsertMemory(ctx context.Context, p store.MemoryParams) (int64, error)
	GetMemory(ctx context.Context, id int64) (*model.Memory, error)
	FindMemoryByFact(ctx context.Context, fact string) (*model.Memory, error)
	GetActiveMemories(ctx context.Context) ([]model.Memory, error)
	SupersedeMemory(ctx context.Context, oldID, newID int64) error
}

// Indexer receives newly saved facts. Implementations must not block.
type Indexer interface {
	UpsertMemory(id int64, fact, category string)
}

// Manager owns the fact lifecycle.
type Manager struct {
	store  Store
	index  Indexer
	mirror string
	log    logger.Logger
	now    func() time.Time
}

// NewManager creates a manager. index and mirrorPath are optional.
func NewManager(s Store, index Indexer, mirrorPath string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		store:  s,
		index:  index,
		mirror: mirrorPath,
		log:    log.WithFields(logger.StringField("component", "memory")),
		now:    time.Now,
	}
}

// Process extracts marked facts from a response and saves the new ones,
// attributed to sessionID. It returns the facts actually persisted.
func (m *Manager) Process(ctx context.Context, sessionID, response string) ([]string, error) {
	saved := []string{}
	for _, fact := range Extract(response) {
		_, created, err := m.save(ctx, fact, model.DefaultCategory, sessionID)
		if err != nil {
			return saved, err
		}
		if created {
			saved = append(saved, fact)
		}
	}
	if len(saved) > 0 {
		m.refreshMirror(ctx)
		m.log.Info("saved memories", logger.IntField("count", len(saved)), logger.StringField("session_id", sessionID))
	}
	return saved, nil
}

// Add saves a single fact unless an identical active one exists. It
// returns the id of the new or existing memory.
func (m *Manager) Add(ctx context.Context, fact, category, sessionID string) (int64, bool, error) {
	id, created, err := m.save(ctx, fact, category, sessionID)
	if err != nil {
		return 0, false, err
	}
	if created {
		m.refreshMirror(ctx)
	}
	return id, created, nil
}

// Supersede records newFact as the replacement for oldID, which must be the
// active head of its chain. If newFact is already an active memory, oldID is
// linked to it instead of inserting a copy.
func (m *Manager) Supersede(ctx context.Context, oldID int64, newFact string) (int64, error) {
	old, err := m.store.GetMemory(ctx, oldID)
	if err != nil {
		return 0, err
	}
	// Checked before saving so a rejected call leaves no orphan fact behind.
	if !old.Active() {
		return 0, fmt.Errorf("%w: memory %d is already superseded by %d", store.ErrInvalidArgument, oldID, *old.SupersededBy)
	}
	newID, _, err := m.save(ctx, newFact, old.Category, old.SourceSessionID)
	if err != nil {
		return 0, err
	}
	if err := m.store.SupersedeMemory(ctx, oldID, newID); err != nil {
		return 0, err
	}
	m.refreshMirror(ctx)
	return newID, nil
}

func (m *Manager) save(ctx context.Context, fact, category, sessionID string) (int64, bool, error) {
	existing, err := m.store.FindMemoryByFact(ctx, fact)
	if err != nil {
		return 0, false, fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		return existing.ID, false, nil
	}

	if category == "" {
		category = model.DefaultCategory
	}
	id, err := m.store.InsertMemory(ctx, store.MemoryParams{
		Fact:            fact,
		Category:        category,
		SourceSessionID: sessionID,
		CreatedAt:       m.now(),
	})
	if err != nil {
		return 0, false, err
	}
	if m.index != nil {
		m.index.UpsertMemory(id, fact, category)
	}
	return id, true, nil
}

// refreshMirror rewrites the mirror file. The file is a view, so failures
// are logged rather than returned.
func (m *Manager) refreshMirror(ctx context.Context) {
	if m.mirror == "" {
		return
	}
	if err := m.WriteMirror(ctx); err != nil {
		m.log.Warn("mirror rewrite failed", logger.StringField("path", m.mirror), logger.ErrorField(err))
	}
}
