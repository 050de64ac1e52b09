// Package model defines the core data types shared by the store and the engine.
package model

import "time"

// DefaultCategory is used when a memory is saved without a category.
const DefaultCategory = "general"

// Memory is a durable fact about the user or their world.
// A memory with a non-nil SupersededBy is inactive.
type Memory struct {
	ID              int64     `json:"id"`
	Fact            string    `json:"fact"`
	Category        string    `json:"category"`
	SourceSessionID string    `json:"source_session_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	SupersededBy    *int64    `json:"superseded_by,omitempty"`
}

// Active reports whether the memory has not been replaced by a later one.
func (m Memory) Active() bool {
	return m.SupersededBy == nil
}

// Source tags where a search hit came from.
type Source string

const (
	SourceMessage Source = "message"
	SourceMemory  Source = "memory"
)

// SearchResult is a single full-text hit. Session fields are only set for
// message hits.
type SearchResult struct {
	Source       Source  `json:"source"`
	ID           int64   `json:"id"`
	Text         string  `json:"text"`
	SessionID    string  `json:"session_id,omitempty"`
	SessionTitle string  `json:"session_title,omitempty"`
	Rank         float64 `json:"rank"`
}
