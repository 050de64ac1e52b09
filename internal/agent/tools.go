package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rcliao/recall/internal/model"
	"github.com/rcliao/recall/internal/skills"
)

var (
	// ErrUnknownTool is returned for a tool name outside the supported set.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments is returned when tool input does not match its schema.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Tool names.
const (
	NameReadFile      = "read_file"
	NameWriteFile     = "write_file"
	NameListFiles     = "list_files"
	NameRunScript     = "run_script"
	NameGetCapability = "get_capability"
	NameSearchHistory = "search_history"
)

// Tool is one of the supported tool invocations. The set is closed: only
// the types in this file implement it.
type Tool interface {
	toolName() string
}

type ReadFile struct {
	Path string `json:"path"`
}

type WriteFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type ListFiles struct {
	Path string `json:"path"`
}

type RunScript struct {
	Name string   `json:"name"`
	Args []string `json:"args"`
}

type GetCapability struct {
	ID string `json:"id"`
}

type SearchHistory struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

func (ReadFile) toolName() string      { return NameReadFile }
func (WriteFile) toolName() string     { return NameWriteFile }
func (ListFiles) toolName() string     { return NameListFiles }
func (RunScript) toolName() string     { return NameRunScript }
func (GetCapability) toolName() string { return NameGetCapability }
func (SearchHistory) toolName() string { return NameSearchHistory }

// DecodeCall turns a named call with raw JSON input into a typed Tool.
func DecodeCall(name string, input json.RawMessage) (Tool, error) {
	var (
		tool Tool
		err  error
	)
	switch name {
	case NameReadFile:
		var t ReadFile
		err = decodeInput(input, &t)
		if err == nil && t.Path == "" {
			err = missing("path")
		}
		tool = t
	case NameWriteFile:
		var t WriteFile
		err = decodeInput(input, &t)
		if err == nil && t.Path == "" {
			err = missing("path")
		}
		tool = t
	case NameListFiles:
		var t ListFiles
		err = decodeInput(input, &t)
		tool = t
	case NameRunScript:
		var t RunScript
		err = decodeInput(input, &t)
		if err == nil && t.Name == "" {
			err = missing("name")
		}
		tool = t
	case NameGetCapability:
		var t GetCapability
		err = decodeInput(input, &t)
		if err == nil && t.ID == "" {
			err = missing("id")
		}
		tool = t
	case NameSearchHistory:
		var t SearchHistory
		err = decodeInput(input, &t)
		if err == nil && strings.TrimSpace(t.Query) == "" {
			err = missing("query")
		}
		tool = t
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return tool, nil
}

func decodeInput(input json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(input)) == 0 {
		input = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(input, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func missing(field string) error {
	return fmt.Errorf("%w: %s is required", ErrInvalidArguments, field)
}

// Files is the workspace the file tools operate on.
type Files interface {
	ReadFile(rel string) (string, error)
	WriteFile(rel, content string) (int, error)
	ListFiles(rel string) ([]string, error)
}

// Scripts runs allow-listed scripts.
type Scripts interface {
	Run(ctx context.Context, name string, args []string) (string, error)
}

// Capabilities looks up catalog entries.
type Capabilities interface {
	Get(id string) (skills.Skill, error)
}

// History searches past conversations and memories.
type History interface {
	Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error)
}

// Toolbox binds the tools to their collaborators. A nil collaborator
// removes the tools that depend on it.
type Toolbox struct {
	Files        Files
	Scripts      Scripts
	Capabilities Capabilities
	History      History
}

const defaultSearchLimit = 10

// Specs declares the available tools.
func (tb *Toolbox) Specs() []ToolSpec {
	if tb == nil {
		return nil
	}
	var specs []ToolSpec
	if tb.Files != nil {
		specs = append(specs,
			ToolSpec{
				Name:        NameReadFile,
				Description: "Read a text file from the workspace.",
				Properties:  map[string]any{"path": stringProp("Path relative to the workspace root")},
				Required:    []string{"path"},
			},
			ToolSpec{
				Name:        NameWriteFile,
				Description: "Create or overwrite a file in the workspace.",
				Properties: map[string]any{
					"path":    stringProp("Path relative to the workspace root"),
					"content": stringProp("Full file content"),
				},
				Required: []string{"path", "content"},
			},
			ToolSpec{
				Name:        NameListFiles,
				Description: "List a workspace directory. Directories end with a slash.",
				Properties:  map[string]any{"path": stringProp("Directory relative to the workspace root; empty for the root")},
			},
		)
	}
	if tb.Scripts != nil {
		specs = append(specs, ToolSpec{
			Name:        NameRunScript,
			Description: "Run an approved script by file name and return its output.",
			Properties: map[string]any{
				"name": stringProp("Script file name"),
				"args": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Command-line arguments"},
			},
			Required: []string{"name"},
		})
	}
	if tb.Capabilities != nil {
		specs = append(specs, ToolSpec{
			Name:        NameGetCapability,
			Description: "Fetch the full instructions of a capability listed in the catalog.",
			Properties:  map[string]any{"id": stringProp("Capability id")},
			Required:    []string{"id"},
		})
	}
	if tb.History != nil {
		specs = append(specs, ToolSpec{
			Name:        NameSearchHistory,
			Description: "Full-text search over past messages and saved memories.",
			Properties: map[string]any{
				"query": stringProp("Search terms"),
				"limit": map[string]any{"type": "integer", "description": "Maximum results (default 10)"},
			},
			Required: []string{"query"},
		})
	}
	return specs
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// Execute runs a decoded tool and returns its textual result.
func (tb *Toolbox) Execute(ctx context.Context, tool Tool) (string, error) {
	if tb == nil {
		tb = &Toolbox{}
	}
	switch t := tool.(type) {
	case ReadFile:
		if tb.Files == nil {
			return "", unavailable(t)
		}
		return tb.Files.ReadFile(t.Path)

	case WriteFile:
		if tb.Files == nil {
			return "", unavailable(t)
		}
		n, err := tb.Files.WriteFile(t.Path, t.Content)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("wrote %d bytes to %s", n, t.Path), nil

	case ListFiles:
		if tb.Files == nil {
			return "", unavailable(t)
		}
		names, err := tb.Files.ListFiles(t.Path)
		if err != nil {
			return "", err
		}
		if len(names) == 0 {
			return "(empty)", nil
		}
		return strings.Join(names, "\n"), nil

	case RunScript:
		if tb.Scripts == nil {
			return "", unavailable(t)
		}
		out, err := tb.Scripts.Run(ctx, t.Name, t.Args)
		if err != nil {
			if out != "" {
				return "", fmt.Errorf("%w\noutput:\n%s", err, out)
			}
			return "", err
		}
		if out == "" {
			return "(no output)", nil
		}
		return out, nil

	case GetCapability:
		if tb.Capabilities == nil {
			return "", unavailable(t)
		}
		s, err := tb.Capabilities.Get(t.ID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("# %s\n\n%s", s.Name, s.Body), nil

	case SearchHistory:
		if tb.History == nil {
			return "", unavailable(t)
		}
		limit := t.Limit
		if limit <= 0 {
			limit = defaultSearchLimit
		}
		results, err := tb.History.Search(ctx, t.Query, limit)
		if err != nil {
			return "", err
		}
		return formatSearchResults(results), nil

	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownTool, tool)
	}
}

func unavailable(t Tool) error {
	return fmt.Errorf("%w: %s is not available", ErrUnknownTool, t.toolName())
}

func formatSearchResults(results []model.SearchResult) string {
	if len(results) == 0 {
		return "no matches"
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		switch r.Source {
		case model.SourceMessage:
			title := r.SessionTitle
			if title == "" {
				title = r.SessionID
			}
			fmt.Fprintf(&b, "[message in %q] %s", title, r.Text)
		default:
			fmt.Fprintf(&b, "[memory] %s", r.Text)
		}
	}
	return b.String()
}
