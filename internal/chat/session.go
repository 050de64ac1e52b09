// Package chat owns the conversation in progress: its id, title and the
// message buffer sent to the agent on every turn.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rcliao/recall/internal/agent"
	"github.com/rcliao/recall/internal/logger"
	"github.com/rcliao/recall/internal/memory"
	"github.com/rcliao/recall/internal/model"
	"github.com/rcliao/recall/internal/prompt"
	"github.com/rcliao/recall/internal/store"
)

// TitleLimit caps derived session titles, in runes.
const TitleLimit = 60

// Store is the part of the structured store a chat session writes to.
type Store interface {
	CreateSession(ctx context.Context, id, title string, createdAt time.Time) (*model.Session, error)
	GetSession(ctx context.Context, id string) (*model.Session, error)
	UpdateSession(ctx context.Context, id string, u store.SessionUpdate) error
	DeleteSession(ctx context.Context, id string) error
	InsertMessage(ctx context.Context, p store.MessageParams) (int64, error)
	GetMessages(ctx context.Context, sessionID string) ([]model.Message, error)
	CountMessages(ctx context.Context, sessionID string) (int, error)
}

// Indexer receives session summaries. Implementations must not block.
type Indexer interface {
	UpsertSessionSummary(id, title, summary string, date time.Time)
}

// Deps wires a session to the rest of the engine. Completer is used for
// the closing summary and may be nil; Index may be nil.
type Deps struct {
	Store          Store
	Assembler      *prompt.Assembler
	Agent          *agent.Agent
	Completer      agent.Completer
	Memory         *memory.Manager
	Index          Indexer
	Log            logger.Logger
	RecentSessions int
	Now            func() time.Time
}

// Session is the explicit session context passed through a conversation.
type Session struct {
	deps      Deps
	log       logger.Logger
	assembler *prompt.Assembler

	id        string
	title     string
	createdAt time.Time
	buffer    []agent.Message
	dirty     bool
}

// TurnResult describes one completed turn.
type TurnResult struct {
	Reply      string
	SavedFacts []string
	Rounds     int
	Exhausted  bool
}

func (d *Deps) defaults() {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.RecentSessions <= 0 {
		d.RecentSessions = 3
	}
}

// Start creates a new empty session with a time-ordered id.
func Start(ctx context.Context, deps Deps) (*Session, error) {
	deps.defaults()
	now := deps.Now()
	id := store.NewSessionID(now)
	sess, err := deps.Store.CreateSession(ctx, id, "", now)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s := newSession(deps, sess)
	s.log.Debug("session started")
	return s, nil
}

// Resume reopens an existing session and reloads its messages.
func Resume(ctx context.Context, deps Deps, id string) (*Session, error) {
	deps.defaults()
	sess, err := deps.Store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	msgs, err := deps.Store.GetMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	s := newSession(deps, sess)
	for _, m := range msgs {
		if m.Role == model.RoleUser || m.Role == model.RoleAssistant {
			s.buffer = append(s.buffer, agent.Message{Role: m.Role, Text: m.Content})
		}
	}
	s.log.Debug("session resumed", logger.IntField("messages", len(msgs)))
	return s, nil
}

func newSession(deps Deps, sess *model.Session) *Session {
	s := &Session{
		deps:      deps,
		log:       deps.Log.WithFields(logger.StringField("component", "chat"), logger.StringField("session_id", sess.ID)),
		id:        sess.ID,
		title:     sess.Title,
		createdAt: sess.CreatedAt,
	}
	if deps.Assembler != nil {
		s.assembler = deps.Assembler.ForSession(sess.ID)
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Title returns the current title, empty until the first user message.
func (s *Session) Title() string { return s.title }

// Messages returns a copy of the conversation buffer.
func (s *Session) Messages() []agent.Message {
	out := make([]agent.Message, len(s.buffer))
	copy(out, s.buffer)
	return out
}

// Turn handles one user message end to end. Reply tokens are passed to
// onToken as they stream in.
func (s *Session) Turn(ctx context.Context, input string, onToken func(string)) (*TurnResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("%w: empty message", store.ErrInvalidArgument)
	}

	if _, err := s.deps.Store.InsertMessage(ctx, store.MessageParams{
		SessionID: s.id,
		Role:      model.RoleUser,
		Content:   input,
		Timestamp: s.deps.Now(),
	}); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}
	s.dirty = true
	s.buffer = append(s.buffer, agent.Message{Role: model.RoleUser, Text: input})

	if s.title == "" {
		title := MakeTitle(input)
		if err := s.deps.Store.UpdateSession(ctx, s.id, store.SessionUpdate{Title: &title}); err != nil {
			return nil, fmt.Errorf("set title: %w", err)
		}
		s.title = title
	}

	var system string
	if s.assembler != nil {
		var err error
		system, err = s.assembler.Build(ctx, input, s.deps.RecentSessions)
		if err != nil {
			return nil, fmt.Errorf("assemble prompt: %w", err)
		}
	}

	res, err := s.deps.Agent.Run(ctx, system, s.buffer, onToken)
	if err != nil {
		return nil, err
	}
	result := &TurnResult{Reply: res.Text, Rounds: res.Rounds, Exhausted: res.Exhausted, SavedFacts: []string{}}

	if strings.TrimSpace(res.Text) == "" {
		s.log.Warn("empty reply", logger.IntField("rounds", res.Rounds), logger.BoolField("exhausted", res.Exhausted))
		return result, nil
	}

	if _, err := s.deps.Store.InsertMessage(ctx, store.MessageParams{
		SessionID: s.id,
		Role:      model.RoleAssistant,
		Content:   res.Text,
		Timestamp: s.deps.Now(),
	}); err != nil {
		return result, fmt.Errorf("save reply: %w", err)
	}
	s.buffer = append(s.buffer, agent.Message{Role: model.RoleAssistant, Text: res.Text})

	if s.deps.Memory != nil {
		saved, err := s.deps.Memory.Process(ctx, s.id, res.Text)
		if err != nil {
			return result, fmt.Errorf("save memories: %w", err)
		}
		result.SavedFacts = saved
	}
	return result, nil
}

// Close ends the session. A session without messages is deleted;
// otherwise a summary is stored and pushed to the index when anything was
// said since the session was opened.
func (s *Session) Close(ctx context.Context) error {
	n, err := s.deps.Store.CountMessages(ctx, s.id)
	if err != nil {
		return err
	}
	if n == 0 {
		s.log.Debug("removing empty session")
		return s.deps.Store.DeleteSession(ctx, s.id)
	}
	if !s.dirty {
		return nil
	}

	var summary string
	if s.deps.Completer != nil {
		summary, err = agent.Summarize(ctx, s.deps.Completer, s.buffer)
		summary = strings.TrimSpace(summary)
		if err != nil {
			s.log.Warn("summary failed", logger.ErrorField(err))
			summary = ""
		}
		if summary != "" {
			if err := s.deps.Store.UpdateSession(ctx, s.id, store.SessionUpdate{Summary: &summary}); err != nil {
				return fmt.Errorf("save summary: %w", err)
			}
		}
	}
	if s.deps.Index != nil {
		s.deps.Index.UpsertSessionSummary(s.id, s.title, summary, s.createdAt)
	}
	return nil
}

// MakeTitle derives a one-line title from the first user message.
func MakeTitle(input string) string {
	title := strings.Join(strings.Fields(input), " ")
	if utf8.RuneCountInString(title) <= TitleLimit {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:TitleLimit])) + "..."
}
