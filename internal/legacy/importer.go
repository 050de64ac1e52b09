// Package legacy imports conversation logs and the flat memory document
// written by earlier versions. Importing twice is harmless: existing
// sessions and facts are skipped.
package legacy

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/rcliao/recall/internal/chat"
	"github.com/rcliao/recall/internal/logger"
	"github.com/rcliao/recall/internal/model"
	"github.com/rcliao/recall/internal/store"
)

// Store is the part of the structured store the importer writes to.
type Store interface {
	CreateSession(ctx context.Context, id, title string, createdAt time.Time) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	InsertMessage(ctx context.Context, p store.MessageParams) (int64, error)
}

// Facts saves a fact unless an identical active one exists.
// *memory.Manager satisfies it.
type Facts interface {
	Add(ctx context.Context, fact, category, sessionID string) (int64, bool, error)
}

// Report summarizes an import.
type Report struct {
	SessionsImported int      `json:"sessions_imported"`
	SessionsSkipped  int      `json:"sessions_skipped"`
	MessagesImported int      `json:"messages_imported"`
	LinesSkipped     int      `json:"lines_skipped"`
	FactsImported    int      `json:"facts_imported"`
	FactsSkipped     int      `json:"facts_skipped"`
	Errors           []string `json:"errors,omitempty"`
}

// Importer reads legacy files into the store.
type Importer struct {
	store Store
	facts Facts
	log   logger.Logger
}

// NewImporter creates an importer.
func NewImporter(s Store, facts Facts, log logger.Logger) *Importer {
	if log == nil {
		log = logger.Nop()
	}
	return &Importer{store: s, facts: facts, log: log.WithFields(logger.StringField("component", "legacy"))}
}

// Import reads every *.jsonl log in logsDir and the memory document at
// memoryPath. Either may be empty. Failures are collected per file; the
// returned error aggregates them and the report is always complete.
func (im *Importer) Import(ctx context.Context, logsDir, memoryPath string) (*Report, error) {
	rep := &Report{}
	var result error

	if logsDir != "" {
		files, err := filepath.Glob(filepath.Join(logsDir, "*.jsonl"))
		if err != nil {
			return rep, err
		}
		sort.Strings(files)
		for _, f := range files {
			if err := im.importLog(ctx, f, rep); err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", filepath.Base(f), err))
			}
		}
	}

	if memoryPath != "" {
		if err := im.importMemory(ctx, memoryPath, rep); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", filepath.Base(memoryPath), err))
		}
	}

	if merr, ok := result.(*multierror.Error); ok {
		for _, e := range merr.Errors {
			rep.Errors = append(rep.Errors, e.Error())
		}
	}
	im.log.Info("import finished",
		logger.IntField("sessions", rep.SessionsImported),
		logger.IntField("messages", rep.MessagesImported),
		logger.IntField("facts", rep.FactsImported),
		logger.IntField("errors", len(rep.Errors)))
	return rep, result
}

type logLine struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

type parsedMessage struct {
	role    model.Role
	content string
	at      time.Time
}

func (im *Importer) importLog(ctx context.Context, path string, rep *Report) error {
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	msgs, skipped, err := parseLog(path)
	rep.LinesSkipped += skipped
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		rep.SessionsSkipped++
		return nil
	}

	title := ""
	for _, m := range msgs {
		if m.role == model.RoleUser {
			title = chat.MakeTitle(m.content)
			break
		}
	}

	if _, err := im.store.CreateSession(ctx, id, title, msgs[0].at); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			rep.SessionsSkipped++
			return nil
		}
		return err
	}

	for _, m := range msgs {
		if _, err := im.store.InsertMessage(ctx, store.MessageParams{
			SessionID: id,
			Role:      m.role,
			Content:   m.content,
			Timestamp: m.at,
		}); err != nil {
			// Leave nothing half-imported so that a rerun retries the file.
			if derr := im.store.DeleteSession(ctx, id); derr != nil {
				im.log.Warn("rollback failed", logger.StringField("session_id", id), logger.ErrorField(derr))
			}
			return err
		}
	}
	rep.SessionsImported++
	rep.MessagesImported += len(msgs)
	return nil
}

// parseLog reads one JSONL file. Lines that are not valid messages are
// skipped and counted. Missing timestamps inherit the previous one, or
// the file's modification time for the first line.
func parseLog(path string) ([]parsedMessage, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	fallback := time.Now()
	if info, err := f.Stat(); err == nil {
		fallback = info.ModTime()
	}

	var (
		msgs    []parsedMessage
		skipped int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var line logLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			skipped++
			continue
		}
		role, err := model.ParseRole(strings.ToLower(strings.TrimSpace(line.Role)))
		if err != nil || strings.TrimSpace(line.Content) == "" {
			skipped++
			continue
		}
		at := fallback
		if len(msgs) > 0 {
			at = msgs[len(msgs)-1].at
		}
		if line.Timestamp != "" {
			if ts, err := time.Parse(time.RFC3339Nano, line.Timestamp); err == nil {
				at = ts
			}
		}
		msgs = append(msgs, parsedMessage{role: role, content: line.Content, at: at})
	}
	return msgs, skipped, scanner.Err()
}

func (im *Importer) importMemory(ctx context.Context, path string, rep *Report) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for _, fact := range ParseMemoryDocument(string(data)) {
		_, created, err := im.facts.Add(ctx, fact, model.DefaultCategory, "")
		if err != nil {
			return err
		}
		if created {
			rep.FactsImported++
		} else {
			rep.FactsSkipped++
		}
	}
	return nil
}

// ParseMemoryDocument returns the bullet items of a Markdown document.
func ParseMemoryDocument(doc string) []string {
	var facts []string
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		for _, prefix := range []string{"- ", "* "} {
			if strings.HasPrefix(line, prefix) {
				if fact := strings.TrimSpace(line[len(prefix):]); fact != "" {
					facts = append(facts, fact)
				}
				break
			}
		}
	}
	return facts
}
