// Package prompt assembles the system prompt for a turn from the base
// instructions, the user profile, the capability catalog, stored memories
// and past conversations.
package prompt

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rcliao/recall/internal/logger"
	"github.com/rcliao/recall/internal/model"
	"github.com/rcliao/recall/internal/semantic"
	"github.com/rcliao/recall/internal/skills"
)

const (
	// Divider separates prompt sections.
	Divider = "\n\n---\n\n"
	// ExcerptLimit caps each rendered message, in runes.
	ExcerptLimit = 300
	ellipsis     = "..."
)

// Store is the read side of the structured store used for assembly.
type Store interface {
	GetActiveMemories(ctx context.Context) ([]model.Memory, error)
	ListSessions(ctx context.Context, limit int) ([]model.Session, error)
	GetSession(ctx context.Context, id string) (*model.Session, error)
	GetMessages(ctx context.Context, sessionID string) ([]model.Message, error)
}

// Retriever answers similarity queries. *semantic.Client satisfies it.
type Retriever interface {
	Enabled() bool
	Query(ctx context.Context, text string, topK int, typeFilter string) ([]semantic.Match, error)
}

// Catalog lists installed capabilities.
type Catalog interface {
	List() []skills.Skill
}

// Options configures an Assembler.
type Options struct {
	Instructions string
	ProfilePath  string
	MemoryTopK   int
	SessionTopK  int
	// ExcludeSessionID keeps the conversation in progress out of the
	// history sections; its messages are already sent as turns.
	ExcludeSessionID string
}

// Assembler builds system prompts.
type Assembler struct {
	store   Store
	sem     Retriever
	catalog Catalog
	opts    Options
	log     logger.Logger
}

// New creates an assembler. sem and catalog may be nil.
func New(store Store, sem Retriever, catalog Catalog, log logger.Logger, opts Options) *Assembler {
	if opts.Instructions == "" {
		opts.Instructions = DefaultInstructions
	}
	if opts.MemoryTopK <= 0 {
		opts.MemoryTopK = 5
	}
	if opts.SessionTopK <= 0 {
		opts.SessionTopK = 3
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Assembler{
		store:   store,
		sem:     sem,
		catalog: catalog,
		opts:    opts,
		log:     log.WithFields(logger.StringField("component", "prompt")),
	}
}

// ForSession returns a copy that leaves sessionID out of history sections.
func (a *Assembler) ForSession(sessionID string) *Assembler {
	cp := *a
	cp.opts.ExcludeSessionID = sessionID
	return &cp
}

// Semantic reports whether augmented assembly is available.
func (a *Assembler) Semantic() bool {
	return a.sem != nil && a.sem.Enabled()
}

// Build picks augmented assembly when the semantic index is enabled and
// baseline assembly otherwise.
func (a *Assembler) Build(ctx context.Context, userMessage string, nSessions int) (string, error) {
	if a.Semantic() {
		return a.BuildAugmentedPrompt(ctx, userMessage, nSessions)
	}
	return a.BuildPrompt(ctx, nSessions)
}

// BuildPrompt assembles the baseline prompt: every active memory and the
// nRecent most recently created sessions.
func (a *Assembler) BuildPrompt(ctx context.Context, nRecent int) (string, error) {
	sections := a.leadingSections()

	mems, err := a.store.GetActiveMemories(ctx)
	if err != nil {
		return "", fmt.Errorf("load memories: %w", err)
	}
	sections = appendSection(sections, renderFacts(memoryFacts(mems)))

	history, err := a.recentHistory(ctx, nRecent)
	if err != nil {
		return "", err
	}
	sections = appendSection(sections, history)

	return strings.Join(sections, Divider), nil
}

// BuildAugmentedPrompt replaces the memory and history sections with
// similarity matches for userMessage. Each of the two lookups falls back to
// its baseline rendering independently when the index fails.
func (a *Assembler) BuildAugmentedPrompt(ctx context.Context, userMessage string, nFallback int) (string, error) {
	sections := a.leadingSections()

	var (
		wg                     sync.WaitGroup
		memMatches, sesMatches []semantic.Match
		memErr, sesErr         error
	)
	if a.sem != nil {
		wg.Add(2)
		go func() {
			defer wg.Done()
			memMatches, memErr = a.sem.Query(ctx, userMessage, a.opts.MemoryTopK, semantic.TypeMemory)
		}()
		go func() {
			defer wg.Done()
			sesMatches, sesErr = a.sem.Query(ctx, userMessage, a.opts.SessionTopK, semantic.TypeSession)
		}()
		wg.Wait()
	} else {
		memErr = semantic.ErrUnavailable
		sesErr = semantic.ErrUnavailable
	}

	memSection, err := a.memorySection(ctx, memMatches, memErr)
	if err != nil {
		return "", err
	}
	sections = appendSection(sections, memSection)

	var history string
	if sesErr != nil {
		a.log.Warn("session lookup failed, using recent sessions", logger.ErrorField(sesErr))
		history, err = a.recentHistory(ctx, nFallback)
	} else {
		history, err = a.relevantHistory(ctx, sesMatches)
	}
	if err != nil {
		return "", err
	}
	sections = appendSection(sections, history)

	return strings.Join(sections, Divider), nil
}

func (a *Assembler) leadingSections() []string {
	sections := []string{strings.TrimSpace(a.opts.Instructions)}
	sections = appendSection(sections, a.profileSection())
	sections = appendSection(sections, a.catalogSection())
	return sections
}

func (a *Assembler) profileSection() string {
	if a.opts.ProfilePath == "" {
		return ""
	}
	data, err := os.ReadFile(a.opts.ProfilePath)
	if err != nil {
		if !os.IsNotExist(err) {
			a.log.Warn("read profile", logger.StringField("path", a.opts.ProfilePath), logger.ErrorField(err))
		}
		return ""
	}
	profile := strings.TrimSpace(string(data))
	if profile == "" {
		return ""
	}
	return "## User profile\n\n" + profile
}

func (a *Assembler) catalogSection() string {
	if a.catalog == nil {
		return ""
	}
	list := a.catalog.List()
	if len(list) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Capabilities\n\nCall get_capability with an id to read its full instructions.\n")
	for _, s := range list {
		fmt.Fprintf(&b, "\n- %s: %s", s.ID, s.Description)
	}
	return b.String()
}

func (a *Assembler) memorySection(ctx context.Context, matches []semantic.Match, queryErr error) (string, error) {
	mems, err := a.store.GetActiveMemories(ctx)
	if err != nil {
		return "", fmt.Errorf("load memories: %w", err)
	}
	if queryErr != nil {
		a.log.Warn("memory lookup failed, using all memories", logger.ErrorField(queryErr))
		return renderFacts(memoryFacts(mems)), nil
	}

	// The index can lag behind supersession, so only active rows count.
	active := make(map[int64]string, len(mems))
	for _, m := range mems {
		active[m.ID] = m.Fact
	}
	var facts []string
	for _, match := range matches {
		id, err := strconv.ParseInt(match.Metadata["memory_id"], 10, 64)
		if err != nil {
			continue
		}
		if fact, ok := active[id]; ok {
			facts = append(facts, fact)
		}
	}
	return renderFacts(facts), nil
}

func (a *Assembler) recentHistory(ctx context.Context, n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	limit := n
	if a.opts.ExcludeSessionID != "" {
		limit++
	}
	sessions, err := a.store.ListSessions(ctx, limit)
	if err != nil {
		return "", fmt.Errorf("list sessions: %w", err)
	}
	picked := make([]model.Session, 0, n)
	for _, s := range sessions {
		if s.ID == a.opts.ExcludeSessionID {
			continue
		}
		if len(picked) == n {
			break
		}
		picked = append(picked, s)
	}
	return a.renderSessions(ctx, "## Recent conversations", picked)
}

func (a *Assembler) relevantHistory(ctx context.Context, matches []semantic.Match) (string, error) {
	var picked []model.Session
	for _, match := range matches {
		id := match.Metadata["session_id"]
		if id == "" || id == a.opts.ExcludeSessionID {
			continue
		}
		s, err := a.store.GetSession(ctx, id)
		if err != nil {
			// Stale index entry for a collected session.
			a.log.Debug("skip indexed session", logger.StringField("session_id", id), logger.ErrorField(err))
			continue
		}
		picked = append(picked, *s)
	}
	return a.renderSessions(ctx, "## Relevant conversations", picked)
}

func (a *Assembler) renderSessions(ctx context.Context, heading string, sessions []model.Session) (string, error) {
	if len(sessions) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString(heading)
	for _, s := range sessions {
		msgs, err := a.store.GetMessages(ctx, s.ID)
		if err != nil {
			return "", fmt.Errorf("load messages for %s: %w", s.ID, err)
		}
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(&b, "\n\n### %s (%s)", title, s.CreatedAt.Format("2006-01-02"))
		for _, m := range msgs {
			fmt.Fprintf(&b, "\n%s: %s", m.Role, Excerpt(m.Content))
		}
	}
	return b.String(), nil
}

// Excerpt flattens text onto one line and caps it at ExcerptLimit runes.
func Excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= ExcerptLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:ExcerptLimit]) + ellipsis
}

func memoryFacts(mems []model.Memory) []string {
	facts := make([]string, 0, len(mems))
	for _, m := range mems {
		facts = append(facts, m.Fact)
	}
	return facts
}

func renderFacts(facts []string) string {
	if len(facts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Memories")
	for _, f := range facts {
		b.WriteString("\n- ")
		b.WriteString(f)
	}
	return b.String()
}

func appendSection(sections []string, s string) []string {
	if s == "" {
		return sections
	}
	return append(sections, s)
}
