package cli

import (
	"fmt"
	"os"

	"github.com/rcliao/recall/internal/agent"
	"github.com/rcliao/recall/internal/config"
	"github.com/rcliao/recall/internal/embedding"
	"github.com/rcliao/recall/internal/logger"
	"github.com/rcliao/recall/internal/memory"
	"github.com/rcliao/recall/internal/prompt"
	"github.com/rcliao/recall/internal/sandbox"
	"github.com/rcliao/recall/internal/semantic"
	"github.com/rcliao/recall/internal/skills"
	"github.com/rcliao/recall/internal/store"
)

// app holds the components shared by commands that go beyond plain store
// reads.
type app struct {
	cfg      *config.App
	log      logger.Logger
	store    *store.SQLiteStore
	semantic *semantic.Client
	cache    *embedding.CachedEmbedder
	memory   *memory.Manager
	catalog  *skills.Catalog
}

func openApp() *app {
	cfg := loadConfig()
	log := newLogger(cfg)

	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}

	sem, cache, err := newSemantic(cfg, log)
	if err != nil {
		// The index is optional; run without it.
		log.Warn("semantic index disabled", logger.ErrorField(err))
		sem = semantic.Disabled()
	}

	catalog, err := skills.Load(cfg.SkillsDir)
	if err != nil {
		log.Warn("capability catalog unavailable", logger.StringField("dir", cfg.SkillsDir), logger.ErrorField(err))
		catalog = &skills.Catalog{}
	}

	return &app{
		cfg:      cfg,
		log:      log,
		store:    s,
		semantic: sem,
		cache:    cache,
		memory:   memory.NewManager(s, sem, cfg.MirrorPath, log),
		catalog:  catalog,
	}
}

// Close drains pending index writes before releasing the embedding cache
// and the store.
func (a *app) Close() {
	a.semantic.Close()
	if a.cache != nil {
		a.cache.Close()
	}
	a.store.Close()
}

// newSemantic builds the index client. The returned cache is nil when the
// index is disabled and must be closed after the client.
func newSemantic(cfg *config.App, log logger.Logger) (*semantic.Client, *embedding.CachedEmbedder, error) {
	sc := cfg.Semantic
	if !sc.Enabled() {
		return semantic.Disabled(), nil, nil
	}

	emb, err := embedding.New(embedding.Config{
		Provider: sc.Provider,
		Endpoint: sc.Endpoint,
		APIKey:   sc.APIKey,
		Model:    sc.Model,
	})
	if err != nil {
		return nil, nil, err
	}
	cached, err := embedding.NewCachedEmbedder(emb, sc.CacheSize)
	if err != nil {
		return nil, nil, fmt.Errorf("embedding cache: %w", err)
	}

	var backend semantic.Backend
	switch sc.Backend {
	case "qdrant":
		backend = semantic.NewQdrantBackend(sc.QdrantURL, sc.QdrantAPIKey, sc.Collection, cached.Dims())
	default:
		backend, err = semantic.NewChromemBackend(sc.IndexDir, sc.Collection)
		if err != nil {
			cached.Close()
			return nil, nil, err
		}
	}

	return semantic.NewClient(cached, backend, log, semantic.Options{QueueSize: sc.QueueSize}), cached, nil
}

func (a *app) instructions() string {
	if a.cfg.InstructionsPath == "" {
		return prompt.DefaultInstructions
	}
	data, err := os.ReadFile(a.cfg.InstructionsPath)
	if err != nil {
		a.log.Warn("instructions file unreadable, using defaults",
			logger.StringField("path", a.cfg.InstructionsPath), logger.ErrorField(err))
		return prompt.DefaultInstructions
	}
	return string(data)
}

func (a *app) assembler() *prompt.Assembler {
	return prompt.New(a.store, a.semantic, a.catalog, a.log, prompt.Options{
		Instructions: a.instructions(),
		ProfilePath:  a.cfg.ProfilePath,
		MemoryTopK:   a.cfg.Context.MemoryTopK,
		SessionTopK:  a.cfg.Context.SessionTopK,
	})
}

func (a *app) toolbox() (*agent.Toolbox, error) {
	ws, err := sandbox.NewWorkspace(a.cfg.WorkspaceDir, a.cfg.Sandbox.MaxOutputBytes)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	return &agent.Toolbox{
		Files:        ws,
		Scripts:      sandbox.NewRunner(a.cfg.ScriptsDir, a.cfg.Sandbox.ScriptTimeout, a.cfg.Sandbox.MaxOutputBytes),
		Capabilities: a.catalog,
		History:      a.store,
	}, nil
}

func (a *app) completer() (*agent.AnthropicCompleter, error) {
	c := a.cfg.Completion
	if c.APIKey == "" {
		return nil, fmt.Errorf("no API key: set ANTHROPIC_API_KEY or completion.api_key")
	}
	return agent.NewAnthropicCompleter(c.APIKey, c.Model, c.MaxTokens), nil
}
