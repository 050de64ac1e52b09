package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// App is the full application configuration.
type App struct {
	DataDir          string `env:"RECALL_HOME" yaml:"data_dir" default:"~/.recall"`
	DBPath           string `env:"RECALL_DB" yaml:"db_path"`
	MirrorPath       string `env:"RECALL_MIRROR" yaml:"mirror_path"`
	ProfilePath      string `env:"RECALL_PROFILE" yaml:"profile_path"`
	InstructionsPath string `env:"RECALL_INSTRUCTIONS" yaml:"instructions_path"`
	SkillsDir        string `env:"RECALL_SKILLS" yaml:"skills_dir"`
	WorkspaceDir     string `env:"RECALL_WORKSPACE" yaml:"workspace_dir"`
	ScriptsDir       string `env:"RECALL_SCRIPTS" yaml:"scripts_dir"`

	LogLevel  string `env:"RECALL_LOG_LEVEL" yaml:"log_level" default:"info"`
	LogFormat string `env:"RECALL_LOG_FORMAT" yaml:"log_format" default:"text"`

	Completion CompletionConfig `yaml:"completion"`
	Semantic   SemanticConfig   `yaml:"semantic"`
	Context    ContextConfig    `yaml:"context"`
	Sandbox    SandboxConfig    `yaml:"sandbox"`
}

// CompletionConfig configures the completion service.
type CompletionConfig struct {
	APIKey    string `env:"ANTHROPIC_API_KEY" yaml:"api_key"`
	Model     string `env:"RECALL_MODEL" yaml:"model" default:"claude-sonnet-4-5"`
	MaxTokens int    `env:"RECALL_MAX_TOKENS" yaml:"max_tokens" default:"4096"`
}

// SemanticConfig configures embeddings and the vector index. The index is
// enabled only when both Endpoint and APIKey are set.
type SemanticConfig struct {
	Endpoint     string `env:"RECALL_EMBED_URL" yaml:"endpoint"`
	APIKey       string `env:"RECALL_EMBED_KEY" yaml:"api_key"`
	Provider     string `env:"RECALL_EMBED_PROVIDER" yaml:"provider" default:"openai"`
	Model        string `env:"RECALL_EMBED_MODEL" yaml:"model"`
	Backend      string `env:"RECALL_VECTOR_BACKEND" yaml:"backend" default:"chromem"`
	IndexDir     string `env:"RECALL_VECTOR_DIR" yaml:"index_dir"`
	QdrantURL    string `env:"RECALL_QDRANT_URL" yaml:"qdrant_url"`
	QdrantAPIKey string `env:"RECALL_QDRANT_KEY" yaml:"qdrant_api_key"`
	Collection   string `env:"RECALL_COLLECTION" yaml:"collection" default:"recall"`
	CacheSize    int    `env:"RECALL_EMBED_CACHE" yaml:"cache_size" default:"1024"`
	QueueSize    int    `yaml:"queue_size" default:"64"`
}

// Enabled reports whether semantic retrieval is configured.
func (c SemanticConfig) Enabled() bool {
	return c.Endpoint != "" && c.APIKey != ""
}

// ContextConfig sizes the assembled prompt.
type ContextConfig struct {
	RecentSessions int `env:"RECALL_RECENT_SESSIONS" yaml:"recent_sessions" default:"3"`
	MemoryTopK     int `yaml:"memory_top_k" default:"5"`
	SessionTopK    int `yaml:"session_top_k" default:"3"`
}

// SandboxConfig bounds script execution.
type SandboxConfig struct {
	ScriptTimeout  time.Duration `env:"RECALL_SCRIPT_TIMEOUT" yaml:"script_timeout" default:"30s"`
	MaxOutputBytes int           `yaml:"max_output_bytes" default:"65536"`
}

// Validate checks enums and sizes.
func (c App) Validate() error {
	var result error

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("log_level must be one of [debug, info, warn, error], got %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		result = multierror.Append(result, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	switch c.Semantic.Provider {
	case "openai", "ollama":
	default:
		result = multierror.Append(result, fmt.Errorf("semantic.provider must be openai or ollama, got %q", c.Semantic.Provider))
	}
	switch c.Semantic.Backend {
	case "chromem":
	case "qdrant":
		if c.Semantic.Enabled() && c.Semantic.QdrantURL == "" {
			result = multierror.Append(result, fmt.Errorf("semantic.qdrant_url is required for the qdrant backend"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("semantic.backend must be chromem or qdrant, got %q", c.Semantic.Backend))
	}

	positive := map[string]int{
		"completion.max_tokens":    c.Completion.MaxTokens,
		"semantic.cache_size":      c.Semantic.CacheSize,
		"semantic.queue_size":      c.Semantic.QueueSize,
		"context.recent_sessions":  c.Context.RecentSessions,
		"context.memory_top_k":     c.Context.MemoryTopK,
		"context.session_top_k":    c.Context.SessionTopK,
		"sandbox.max_output_bytes": c.Sandbox.MaxOutputBytes,
	}
	for name, v := range positive {
		if v <= 0 {
			result = multierror.Append(result, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	if c.Sandbox.ScriptTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("sandbox.script_timeout must be positive"))
	}

	return result
}

// LoadApp loads the configuration and fills in paths derived from DataDir.
func LoadApp(path string) (*App, error) {
	var cfg App
	if path == "" {
		path = filepath.Join(expandHome("~/.recall"), "config.yaml")
	}
	if err := Load(&cfg, path, true); err != nil {
		return nil, err
	}
	cfg.resolvePaths()
	return &cfg, nil
}

func (c *App) resolvePaths() {
	c.DataDir = expandHome(c.DataDir)
	derive := func(p *string, name string) {
		if *p == "" {
			*p = filepath.Join(c.DataDir, name)
		}
		*p = expandHome(*p)
	}
	derive(&c.DBPath, "recall.db")
	derive(&c.MirrorPath, "MEMORY.md")
	derive(&c.ProfilePath, "USER.md")
	derive(&c.SkillsDir, "skills")
	derive(&c.WorkspaceDir, "workspace")
	derive(&c.ScriptsDir, "scripts")
	derive(&c.Semantic.IndexDir, "vectors")
	if c.InstructionsPath != "" {
		c.InstructionsPath = expandHome(c.InstructionsPath)
	}
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
